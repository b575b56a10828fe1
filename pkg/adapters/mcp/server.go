package mcp

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/switchyard"
	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI is the resource exposing the registered states and edges.
const GraphURI = "switchyard://graph"

// Engine defines the interface required by the MCP server.
type Engine interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	States(ctx context.Context) ([]domain.StateID, error)
	Edges(ctx context.Context, from domain.StateID) ([]domain.StateID, error)
	AvailableTransitions(ctx context.Context) ([]domain.StateID, error)
	HistoryRange(ctx context.Context, from, limit uint64) ([]domain.TransitionRecord, error)
	Paused(ctx context.Context) bool
	CanExecute(ctx context.Context, account domain.Address, id domain.TransitionID) bool
	TransitionRole(id domain.TransitionID) (domain.Role, bool)
	Rule(id domain.TransitionID) (domain.Rule, bool)
	TransitionTo(ctx context.Context, caller domain.Address, target domain.StateID, id domain.TransitionID, data []byte) (*domain.TransitionEvent, error)
}

// StateResponse is the output of get_state.
type StateResponse struct {
	Current          string    `json:"current" jsonschema_description:"Current state name"`
	Nonce            uint64    `json:"nonce" jsonschema_description:"Number of committed transitions"`
	LastTransitionAt time.Time `json:"last_transition_at" jsonschema_description:"Time of the last pointer change"`
	Initialized      bool      `json:"initialized" jsonschema_description:"Whether the workflow has an initial state"`
	Paused           bool      `json:"paused" jsonschema_description:"Whether transitions are currently refused"`
}

// TransitionResponse is the output of transition_to.
type TransitionResponse struct {
	Event    *domain.TransitionEvent `json:"event,omitempty" jsonschema_description:"The committed transition"`
	Rejected string                  `json:"rejected,omitempty" jsonschema_description:"Why the transition was refused"`
}

// Graph is the content of the graph resource.
type Graph struct {
	States []domain.StateID            `json:"states"`
	Edges  map[string][]domain.StateID `json:"edges"`
}

// ErrNoCaller is returned by transition_to when the server has no identity to act as.
var ErrNoCaller = errors.New("no caller identity configured")

// Server wraps the workflow engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger

	caller domain.Address
	token  string
}

// Option configures the Server.
type Option func(*Server)

// WithCaller sets the account transitions are requested as. Without one
// transition_to refuses every request.
func WithCaller(caller domain.Address) Option {
	return func(s *Server) {
		s.caller = caller
	}
}

// WithToken sets the bearer token SSE clients must present.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// NewServer creates a new MCP Server instance. A nil logger discards output.
func NewServer(engine Engine, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("switchyard-mcp", strings.TrimSpace(switchyard.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx
// is done. A server acting as a caller needs a token to serve SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	if !s.caller.IsZero() && s.token == "" {
		return fmt.Errorf("refusing to serve %s over SSE without a token", s.caller.Hex())
	}
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(s.requireToken(sseServer.SSEHandler())))
	mux.Handle("/message", corsMiddleware(s.requireToken(sseServer.MessageHandler())))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

// requireToken rejects requests without the configured bearer token.
func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				s.logger.Warn("MCP request without valid token", "remote", r.RemoteAddr)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Get the current state, nonce and pause status of the workflow."),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("get_available_transitions",
		mcp.WithDescription("List the states reachable from the current state."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		targets, err := s.engine.AvailableTransitions(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("available transitions failed: %v", err)), nil
		}
		return jsonResult(targets)
	})

	s.mcpServer.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Read committed transitions in commit order."),
		mcp.WithNumber("from", mcp.Description("First history index (default 0)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 50)")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		records, err := s.engine.HistoryRange(ctx, uintArg(args, "from", 0), uintArg(args, "limit", 50))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("history failed: %v", err)), nil
		}
		return jsonResult(records)
	})

	s.mcpServer.AddTool(mcp.NewTool("check_access",
		mcp.WithDescription("Check whether an account may execute a transition and which guard applies."),
		mcp.WithString("account", mcp.Required(), mcp.Description("0x-prefixed account address")),
		mcp.WithNumber("transition_id", mcp.Required(), mcp.Description("Transition identifier")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		account, err := domain.ParseAddress(stringArg(args, "account"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id := domain.TransitionID(uintArg(args, "transition_id", 0))
		resp := map[string]any{"can_execute": s.engine.CanExecute(ctx, account, id)}
		if role, ok := s.engine.TransitionRole(id); ok {
			resp["role"] = role
		}
		if rule, ok := s.engine.Rule(id); ok {
			resp["rule"] = rule
		}
		return jsonResult(resp)
	})

	s.mcpServer.AddTool(mcp.NewTool("transition_to",
		mcp.WithDescription("Move the workflow to a target state through a named transition, acting as the server's configured caller."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target state name or 0x-prefixed 32-byte id")),
		mcp.WithNumber("transition_id", mcp.Required(), mcp.Description("Transition identifier")),
		mcp.WithString("data", mcp.Description("Hex-encoded proof or hook data (optional)")),
		mcp.WithOutputSchema[TransitionResponse](),
	), mcp.NewStructuredToolHandler(s.handleTransition))
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StateResponse, error) {
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		return StateResponse{}, fmt.Errorf("snapshot failed: %w", err)
	}
	return StateResponse{
		Current:          snap.Current.String(),
		Nonce:            snap.Nonce,
		LastTransitionAt: snap.LastTransitionAt,
		Initialized:      snap.Initialized,
		Paused:           s.engine.Paused(ctx),
	}, nil
}

// handleTransition reports rejections in the response body; only malformed
// input or a missing identity is a tool error.
func (s *Server) handleTransition(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TransitionResponse, error) {
	if s.caller.IsZero() {
		return TransitionResponse{}, ErrNoCaller
	}
	target, err := domain.ParseStateID(stringArg(args, "target"))
	if err != nil {
		return TransitionResponse{}, err
	}
	var data []byte
	if raw := stringArg(args, "data"); raw != "" {
		if data, err = hex.DecodeString(strings.TrimPrefix(raw, "0x")); err != nil {
			return TransitionResponse{}, fmt.Errorf("data: %w", err)
		}
	}

	event, err := s.engine.TransitionTo(ctx, s.caller, target, domain.TransitionID(uintArg(args, "transition_id", 0)), data)
	if err != nil {
		s.logger.Warn("MCP transition rejected", "err", err)
		return TransitionResponse{Rejected: err.Error()}, nil
	}
	return TransitionResponse{Event: event}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Workflow graph",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		graph, err := s.graph(ctx)
		if err != nil {
			return nil, err
		}
		jsonBytes, err := json.Marshal(graph)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func (s *Server) graph(ctx context.Context) (Graph, error) {
	states, err := s.engine.States(ctx)
	if err != nil {
		return Graph{}, fmt.Errorf("failed to list states: %w", err)
	}
	g := Graph{States: states, Edges: make(map[string][]domain.StateID, len(states))}
	for _, st := range states {
		edges, err := s.engine.Edges(ctx, st)
		if err != nil {
			return Graph{}, fmt.Errorf("failed to read edges of '%s': %w", st, err)
		}
		if len(edges) > 0 {
			g.Edges[st.String()] = edges
		}
	}
	return g, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// uintArg reads a JSON number argument; negative or missing values yield def.
func uintArg(args map[string]any, key string, def uint64) uint64 {
	switch v := args[key].(type) {
	case float64:
		if v >= 0 {
			return uint64(v)
		}
	case int:
		if v >= 0 {
			return uint64(v)
		}
	}
	return def
}
