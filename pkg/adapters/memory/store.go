package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
)

type allowKey struct {
	state domain.StateID
	id    domain.TransitionID
}

// Store implements ports.StateBackend in memory.
// Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	states  map[domain.StateID]struct{}
	order   []domain.StateID
	edges   map[domain.StateID][]domain.StateID
	allowed map[allowKey]bool
	history map[uint64]domain.TransitionRecord
	pointer domain.Snapshot
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		states:  make(map[domain.StateID]struct{}),
		edges:   make(map[domain.StateID][]domain.StateID),
		allowed: make(map[allowKey]bool),
		history: make(map[uint64]domain.TransitionRecord),
	}
}

func (s *Store) PutState(ctx context.Context, id domain.StateID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[id]; ok {
		return false, nil
	}
	s.states[id] = struct{}{}
	s.order = append(s.order, id)
	return true, nil
}

func (s *Store) HasState(ctx context.Context, id domain.StateID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.states[id]
	return ok, nil
}

func (s *Store) ListStates(ctx context.Context) ([]domain.StateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.StateID(nil), s.order...), nil
}

func (s *Store) AppendEdge(ctx context.Context, from, to domain.StateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[from] = append(s.edges[from], to)
	return nil
}

func (s *Store) Edges(ctx context.Context, from domain.StateID) ([]domain.StateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Copy on read so callers can't mutate the adjacency list.
	return append([]domain.StateID(nil), s.edges[from]...), nil
}

func (s *Store) SetAllowed(ctx context.Context, id domain.StateID, tid domain.TransitionID, allowed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if allowed {
		s.allowed[allowKey{id, tid}] = true
	} else {
		delete(s.allowed, allowKey{id, tid})
	}
	return nil
}

func (s *Store) Allowed(ctx context.Context, id domain.StateID, tid domain.TransitionID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowed[allowKey{id, tid}], nil
}

func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pointer, nil
}

func (s *Store) InitPointer(ctx context.Context, id domain.StateID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pointer.Initialized {
		return domain.ErrAlreadyInitialized
	}
	s.pointer.Current = id
	s.pointer.LastTransitionAt = at
	s.pointer.Initialized = true
	return nil
}

func (s *Store) SetPointer(ctx context.Context, id domain.StateID, at time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPointerLocked(id, at), nil
}

func (s *Store) setPointerLocked(id domain.StateID, at time.Time) uint64 {
	s.pointer.Current = id
	s.pointer.LastTransitionAt = at
	s.pointer.Initialized = true
	s.pointer.Nonce++
	return s.pointer.Nonce
}

func (s *Store) PutHistory(ctx context.Context, index uint64, rec domain.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[index] = rec
	return nil
}

func (s *Store) Commit(ctx context.Context, rec domain.TransitionRecord) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.setPointerLocked(rec.To, rec.Timestamp)
	s.history[domain.HistoryIndex(n)] = rec
	return n, nil
}

func (s *Store) History(ctx context.Context, index uint64) (domain.TransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.history[index]
	if !ok {
		return domain.TransitionRecord{}, domain.ErrHistoryNotFound
	}
	return rec, nil
}
