package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/switchyard"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = domain.MustAddress("0x0000000000000000000000000000000000000ad1")
	alice    = domain.MustAddress("0x00000000000000000000000000000000000000a1")
	initial  = domain.NewStateID("INITIAL")
	pending  = domain.NewStateID("PENDING")
	approved = domain.NewStateID("APPROVED")
	reviewer = domain.NewRole("REVIEWER")

	secrets = map[domain.Address]string{
		admin: "admin-secret",
		alice: "alice-secret",
	}
)

func newEngine(t *testing.T, opts ...switchyard.Option) *switchyard.Engine {
	t.Helper()
	eng, err := switchyard.New(admin, opts...)
	require.NoError(t, err)
	require.NoError(t, eng.Apply(context.Background(), admin, domain.Definition{
		States: []domain.StateID{initial, pending, approved},
		Edges: []domain.Edge{
			{From: initial, To: pending},
			{From: pending, To: approved},
		},
		Grants: []domain.RoleGrant{{Account: alice, Role: reviewer}},
		Transitions: []domain.TransitionDef{
			{ID: 1, From: []domain.StateID{initial}},
			{ID: 2, From: []domain.StateID{pending}, Role: reviewer},
		},
		Initial: initial,
	}))
	return eng
}

// signedPost builds a POST /transitions request signed with secret; an empty secret sends it unsigned.
func signedPost(t *testing.T, req TransitionRequest, secret string, at time.Time) *http.Request {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	r := httptest.NewRequest("POST", "/transitions", bytes.NewReader(body))
	if secret != "" {
		sig := Sign(secret, body, at)
		r.Header.Set(HeaderSignature, sig.Signature)
		r.Header.Set(HeaderTimestamp, strconv.FormatInt(sig.Timestamp, 10))
		r.Header.Set(HeaderID, sig.ID)
	}
	return r
}

func postTransition(t *testing.T, h http.Handler, req TransitionRequest) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedPost(t, req, secrets[req.Caller], time.Now()))
	return w
}

func TestServer_Transition(t *testing.T) {
	handler := NewHandler(newEngine(t), WithCallers(secrets))

	w := postTransition(t, handler, TransitionRequest{Caller: admin, Target: pending, TransitionID: 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var event domain.TransitionEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))
	assert.Equal(t, initial, event.PreviousState)
	assert.Equal(t, pending, event.NewState)
	assert.Equal(t, admin, event.Actor)

	w = postTransition(t, handler, TransitionRequest{Caller: admin, Target: approved, TransitionID: 2})
	assert.Equal(t, http.StatusForbidden, w.Code)
	var failure ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
	assert.Equal(t, "unauthorized", failure.Reason)

	w = postTransition(t, handler, TransitionRequest{Caller: alice, Target: initial, TransitionID: 2})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/transitions", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_TransitionRequiresCallerSignature(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	_, err := eng.TransitionTo(ctx, admin, pending, 1, nil)
	require.NoError(t, err)
	handler := NewHandler(eng, WithCallers(secrets))
	claim := TransitionRequest{Caller: alice, Target: approved, TransitionID: 2}

	cases := []struct {
		name   string
		secret string
		at     time.Time
	}{
		{"unsigned", "", time.Now()},
		{"wrong secret", "admin-secret", time.Now()},
		{"stale signature", secrets[alice], time.Now().Add(-time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, signedPost(t, claim, tc.secret, tc.at))
			assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
			var failure ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
			assert.Equal(t, "unauthenticated", failure.Reason)
		})
	}

	// A signature over a different body fails.
	r := signedPost(t, claim, secrets[alice], time.Now())
	tampered, err := json.Marshal(TransitionRequest{Caller: alice, Target: approved, TransitionID: 2, Data: []byte{1}})
	require.NoError(t, err)
	r.Body = io.NopCloser(bytes.NewReader(tampered))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	snap, err := eng.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending, snap.Current, "rejected requests must not move the pointer")

	// Without a credential table nobody can transition.
	w = postTransition(t, NewHandler(eng), claim)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postTransition(t, handler, claim)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestServer_Queries(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	_, err := eng.TransitionTo(ctx, admin, pending, 1, nil)
	require.NoError(t, err)
	handler := NewHandler(eng)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		return w
	}

	w := get("/state")
	require.Equal(t, http.StatusOK, w.Code)
	var state StateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, pending, state.Current)
	assert.Equal(t, uint64(1), state.Nonce)
	assert.False(t, state.Paused)

	w = get("/available")
	require.Equal(t, http.StatusOK, w.Code)
	var targets []domain.StateID
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &targets))
	assert.Equal(t, []domain.StateID{approved}, targets)

	w = get("/history")
	require.Equal(t, http.StatusOK, w.Code)
	var records []domain.TransitionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, initial, records[0].From)

	assert.Equal(t, http.StatusOK, get("/history/0").Code)
	assert.Equal(t, http.StatusNotFound, get("/history/5").Code)
	assert.Equal(t, http.StatusBadRequest, get("/history/x").Code)

	w = get("/transitions/2/allowed/PENDING?account=" + alice.Hex())
	require.Equal(t, http.StatusOK, w.Code)
	var allowed map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &allowed))
	assert.True(t, allowed["allowed"])
	assert.True(t, allowed["can_execute"])

	w = get("/transitions/2")
	require.Equal(t, http.StatusOK, w.Code)
	var info TransitionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.NotNil(t, info.Role)
	assert.Equal(t, reviewer, *info.Role)
	assert.Nil(t, info.Rule)

	w = get("/roles/REVIEWER/" + alice.Hex())
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"has_role":true}`, w.Body.String())

	w = get("/states/INITIAL/edges")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["PENDING"]`, w.Body.String())

	w = get("/info")
	assert.Contains(t, w.Body.String(), strings.TrimSpace(switchyard.Version))
}

func TestServer_StatusFor(t *testing.T) {
	assert.Equal(t, http.StatusLocked, StatusFor(domain.ErrPaused))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(&domain.TransitionError{Err: domain.ErrValidationFailed}))
	assert.Equal(t, http.StatusConflict, StatusFor(domain.ErrReentrantCall))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(assert.AnError))
}

func TestSubscribeEvents(t *testing.T) {
	streams := NewStreamManager(nil)
	eng := newEngine(t, switchyard.WithLifecycleHooks(streams.Hooks()))
	srv := httptest.NewServer(NewHandler(eng, WithStreams(streams)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	readUntil := func(prefix string) string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), prefix) {
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q", prefix)
		return ""
	}

	assert.Equal(t, "data: connected", readUntil("data: "))
	assert.Equal(t, 1, streams.Count())

	_, err = eng.TransitionTo(context.Background(), admin, pending, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, "event: transition", readUntil("event: "))
	data := strings.TrimPrefix(readUntil("data: "), "data: ")
	var event domain.TransitionEvent
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, pending, event.NewState)
}
