package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/switchyard"
	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/observability"
	"github.com/go-chi/chi/v5"
)

// Engine is the subset of the workflow engine served over HTTP.
type Engine interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	States(ctx context.Context) ([]domain.StateID, error)
	Edges(ctx context.Context, from domain.StateID) ([]domain.StateID, error)
	AvailableTransitions(ctx context.Context) ([]domain.StateID, error)
	History(ctx context.Context, index uint64) (domain.TransitionRecord, error)
	HistoryRange(ctx context.Context, from, limit uint64) ([]domain.TransitionRecord, error)
	IsTransitionAllowed(ctx context.Context, state domain.StateID, id domain.TransitionID) (bool, error)
	Paused(ctx context.Context) bool
	HasRole(ctx context.Context, account domain.Address, role domain.Role) bool
	CanExecute(ctx context.Context, account domain.Address, id domain.TransitionID) bool
	TransitionRole(id domain.TransitionID) (domain.Role, bool)
	Rule(id domain.TransitionID) (domain.Rule, bool)
	Hooks(id domain.TransitionID, phase domain.Phase) []domain.Address
	TransitionTo(ctx context.Context, caller domain.Address, target domain.StateID, id domain.TransitionID, data []byte) (*domain.TransitionEvent, error)
}

// DefaultHistoryLimit caps GET /history when no limit is given.
const DefaultHistoryLimit = 100

// DefaultSignatureMaxAge bounds how old a signed transition request may be.
const DefaultSignatureMaxAge = 5 * time.Minute

// MaxRequestSize bounds the body of POST /transitions.
const MaxRequestSize = 1 << 20

// ErrUnauthenticated is returned when a transition request does not prove its caller.
var ErrUnauthenticated = errors.New("unauthenticated caller")

// Server serves the query and transition API of one workflow.
type Server struct {
	Engine  Engine
	Streams *StreamManager
	logger  *slog.Logger
	extra   []func(chi.Router)

	callers map[domain.Address]string
	maxAge  time.Duration
	clock   func() time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStreams shares a StreamManager, typically one already wired into the engine's lifecycle hooks.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		if sm != nil {
			s.Streams = sm
		}
	}
}

// WithRoutes mounts additional routes, e.g. the metrics endpoint.
func WithRoutes(fn func(chi.Router)) Option {
	return func(s *Server) {
		s.extra = append(s.extra, fn)
	}
}

// WithCallers sets the secret each caller signs POST /transitions with.
// A caller missing from the table cannot transition.
func WithCallers(secrets map[domain.Address]string) Option {
	return func(s *Server) {
		for addr, secret := range secrets {
			s.callers[addr] = secret
		}
	}
}

// WithSignatureMaxAge overrides DefaultSignatureMaxAge.
func WithSignatureMaxAge(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithClock sets the clock used to check signature timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer creates a Server for the engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		Engine:  engine,
		logger:  logging.NewNop(),
		callers: make(map[domain.Address]string),
		maxAge:  DefaultSignatureMaxAge,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Get("/state", s.GetState)
	r.Get("/states", s.GetStates)
	r.Get("/states/{state}/edges", s.GetEdges)
	r.Get("/available", s.GetAvailable)

	r.Get("/history", s.GetHistory)
	r.Get("/history/{index}", s.GetHistoryEntry)

	r.Post("/transitions", s.PostTransition)
	r.Get("/transitions/{id}", s.GetTransition)
	r.Get("/transitions/{id}/allowed/{state}", s.GetAllowed)

	r.Get("/roles/{role}/{account}", s.GetHasRole)
	r.Get("/events", s.SubscribeEvents)

	for _, fn := range s.extra {
		fn(r)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", HeaderSignature, HeaderTimestamp, HeaderID}, ", "))
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TransitionRequest is the body of POST /transitions.
type TransitionRequest struct {
	Caller       domain.Address      `json:"caller"`
	Target       domain.StateID      `json:"target"`
	TransitionID domain.TransitionID `json:"transition_id"`
	Data         []byte              `json:"data,omitempty"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// StateResponse is the body of GET /state.
type StateResponse struct {
	domain.Snapshot
	Paused bool `json:"paused"`
}

// TransitionInfo is the body of GET /transitions/{id}.
type TransitionInfo struct {
	ID   domain.TransitionID `json:"id"`
	Role *domain.Role        `json:"role,omitempty"`
	Rule *domain.Rule        `json:"rule,omitempty"`
	Pre  []domain.Address    `json:"pre_hooks"`
	Post []domain.Address    `json:"post_hooks"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "switchyard-http",
		"version": strings.TrimSpace(switchyard.Version),
	})
}

// GetState handles the GET /state request.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Engine.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, StateResponse{Snapshot: snap, Paused: s.Engine.Paused(r.Context())})
}

// GetStates handles the GET /states request.
func (s *Server) GetStates(w http.ResponseWriter, r *http.Request) {
	states, err := s.Engine.States(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, states)
}

// GetEdges handles the GET /states/{state}/edges request.
func (s *Server) GetEdges(w http.ResponseWriter, r *http.Request) {
	state, err := domain.ParseStateID(chi.URLParam(r, "state"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	edges, err := s.Engine.Edges(r.Context(), state)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, edges)
}

// GetAvailable handles the GET /available request.
func (s *Server) GetAvailable(w http.ResponseWriter, r *http.Request) {
	targets, err := s.Engine.AvailableTransitions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, targets)
}

// GetHistory handles the GET /history?from=&limit= request.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from", 0)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	limit, err := queryUint(r, "limit", DefaultHistoryLimit)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	records, err := s.Engine.HistoryRange(r.Context(), from, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// GetHistoryEntry handles the GET /history/{index} request.
func (s *Server) GetHistoryEntry(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		s.badRequest(w, fmt.Errorf("invalid index: %w", err))
		return
	}
	rec, err := s.Engine.History(r.Context(), index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// PostTransition handles the POST /transitions request. The body must be
// signed with the secret of the caller it names.
func (s *Server) PostTransition(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestSize))
	if err != nil {
		s.badRequest(w, fmt.Errorf("failed to read request body: %w", err))
		return
	}
	var body TransitionRequest
	if err := json.Unmarshal(raw, &body); err != nil {
		s.logger.Warn("PostTransition: Invalid request body", "err", err)
		s.badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.authenticate(r.Header, body.Caller, raw); err != nil {
		s.logger.Warn("PostTransition: Caller not authenticated", "caller", body.Caller.Hex(), "err", err)
		s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Reason: "unauthenticated"})
		return
	}

	event, err := s.Engine.TransitionTo(r.Context(), body.Caller, body.Target, body.TransitionID, body.Data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

// GetTransition handles the GET /transitions/{id} request.
func (s *Server) GetTransition(w http.ResponseWriter, r *http.Request) {
	id, err := transitionParam(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	info := TransitionInfo{
		ID:   id,
		Pre:  s.Engine.Hooks(id, domain.PhasePre),
		Post: s.Engine.Hooks(id, domain.PhasePost),
	}
	if role, ok := s.Engine.TransitionRole(id); ok {
		info.Role = &role
	}
	if rule, ok := s.Engine.Rule(id); ok {
		info.Rule = &rule
	}
	s.writeJSON(w, http.StatusOK, info)
}

// GetAllowed handles the GET /transitions/{id}/allowed/{state} request.
func (s *Server) GetAllowed(w http.ResponseWriter, r *http.Request) {
	id, err := transitionParam(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	state, err := domain.ParseStateID(chi.URLParam(r, "state"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	ok, err := s.Engine.IsTransitionAllowed(r.Context(), state, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]bool{"allowed": ok}
	if account := r.URL.Query().Get("account"); account != "" {
		addr, err := domain.ParseAddress(account)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		resp["can_execute"] = s.Engine.CanExecute(r.Context(), addr, id)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GetHasRole handles the GET /roles/{role}/{account} request.
func (s *Server) GetHasRole(w http.ResponseWriter, r *http.Request) {
	role, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"has_role": s.Engine.HasRole(r.Context(), account, role)})
}

// SubscribeEvents handles the GET /events request (SSE). Every committed
// transition is pushed as one data line holding the JSON event.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The stream outlives the server's WriteTimeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: transition\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// authenticate checks the request signature against the secret of caller.
func (s *Server) authenticate(h http.Header, caller domain.Address, raw []byte) error {
	secret, ok := s.callers[caller]
	if !ok || secret == "" {
		return fmt.Errorf("%w: no credential for %s", ErrUnauthenticated, caller.Hex())
	}
	sig, err := ReadSignatureHeaders(h)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if err := Verify(secret, raw, sig, s.maxAge, s.clock()); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: "bad_request"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Reason: observability.Reason(err)})
}

// StatusFor maps engine errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrHistoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPaused):
		return http.StatusLocked
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, domain.ErrTransitionNotAllowed),
		errors.Is(err, domain.ErrReentrantCall):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func transitionParam(r *http.Request) (domain.TransitionID, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid transition id: %w", err)
	}
	return domain.TransitionID(v), nil
}

func queryUint(r *http.Request, key string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
