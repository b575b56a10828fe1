package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
)

// Store implements ports.StateBackend on SQLite.
type Store struct {
	db *DB
}

// NewStore creates a store over an opened database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database.
func (s *Store) DB() *DB {
	return s.db
}

func (s *Store) PutState(ctx context.Context, id domain.StateID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO states (id) VALUES (?)`, id[:])
	if err != nil {
		return false, fmt.Errorf("failed to register state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) HasState(ctx context.Context, id domain.StateID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM states WHERE id = ?`, id[:]).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read states: %w", err)
	}
	return true, nil
}

func (s *Store) ListStates(ctx context.Context) ([]domain.StateID, error) {
	return s.queryIDs(ctx, `SELECT id FROM states ORDER BY seq`)
}

func (s *Store) AppendEdge(ctx context.Context, from, to domain.StateID) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO edges (from_id, to_id) VALUES (?, ?)`, from[:], to[:]); err != nil {
		return fmt.Errorf("failed to append edge: %w", err)
	}
	return nil
}

func (s *Store) Edges(ctx context.Context, from domain.StateID) ([]domain.StateID, error) {
	return s.queryIDs(ctx, `SELECT to_id FROM edges WHERE from_id = ? ORDER BY seq`, from[:])
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]domain.StateID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}
	defer rows.Close()

	out := []domain.StateID{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := toStateID(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) SetAllowed(ctx context.Context, id domain.StateID, tid domain.TransitionID, allowed bool) error {
	var err error
	if allowed {
		_, err = s.db.ExecContext(ctx, `INSERT OR IGNORE INTO allow (state_id, transition_id) VALUES (?, ?)`, id[:], int64(tid))
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM allow WHERE state_id = ? AND transition_id = ?`, id[:], int64(tid))
	}
	if err != nil {
		return fmt.Errorf("failed to write allow entry: %w", err)
	}
	return nil
}

func (s *Store) Allowed(ctx context.Context, id domain.StateID, tid domain.TransitionID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM allow WHERE state_id = ? AND transition_id = ?`, id[:], int64(tid)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read allow entry: %w", err)
	}
	return true, nil
}

func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var (
		raw   []byte
		nonce int64
		at    int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT current, nonce, at FROM pointer WHERE singleton = 1`).Scan(&raw, &nonce, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to read pointer: %w", err)
	}
	cur, err := toStateID(raw)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		Current:          cur,
		Nonce:            uint64(nonce),
		LastTransitionAt: time.Unix(0, at).UTC(),
		Initialized:      true,
	}, nil
}

func (s *Store) InitPointer(ctx context.Context, id domain.StateID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pointer (singleton, current, nonce, at) VALUES (1, ?, 0, ?) ON CONFLICT (singleton) DO NOTHING`,
		id[:], at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to initialize pointer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyInitialized
	}
	return nil
}

func (s *Store) SetPointer(ctx context.Context, id domain.StateID, at time.Time) (uint64, error) {
	var n uint64
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = advancePointer(ctx, tx, id, at)
		return err
	})
	return n, err
}

func (s *Store) PutHistory(ctx context.Context, index uint64, rec domain.TransitionRecord) error {
	if err := putHistory(ctx, s.db.DB, index, rec); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

func (s *Store) Commit(ctx context.Context, rec domain.TransitionRecord) (uint64, error) {
	var n uint64
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		if n, err = advancePointer(ctx, tx, rec.To, rec.Timestamp); err != nil {
			return err
		}
		if err := putHistory(ctx, tx, domain.HistoryIndex(n), rec); err != nil {
			return fmt.Errorf("failed to write history: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to commit transition: %w", err)
	}
	return n, nil
}

func (s *Store) History(ctx context.Context, index uint64) (domain.TransitionRecord, error) {
	var (
		rec            domain.TransitionRecord
		from, to, addr []byte
		tid, at        int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT from_id, to_id, actor, transition_id, at FROM history WHERE idx = ?`, int64(index),
	).Scan(&from, &to, &addr, &tid, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, domain.ErrHistoryNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to read history: %w", err)
	}

	if rec.From, err = toStateID(from); err != nil {
		return rec, err
	}
	if rec.To, err = toStateID(to); err != nil {
		return rec, err
	}
	if len(addr) != len(rec.Actor) {
		return rec, fmt.Errorf("corrupt actor of %d bytes", len(addr))
	}
	copy(rec.Actor[:], addr)
	rec.TransitionID = domain.TransitionID(tid)
	rec.Timestamp = time.Unix(0, at).UTC()
	return rec, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func advancePointer(ctx context.Context, tx *sql.Tx, id domain.StateID, at time.Time) (uint64, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO pointer (singleton, current, nonce, at) VALUES (1, ?, 1, ?)
		 ON CONFLICT (singleton) DO UPDATE SET current = excluded.current, nonce = pointer.nonce + 1, at = excluded.at`,
		id[:], at.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to move pointer: %w", err)
	}
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT nonce FROM pointer WHERE singleton = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read nonce: %w", err)
	}
	return uint64(n), nil
}

func putHistory(ctx context.Context, db execer, index uint64, rec domain.TransitionRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO history (idx, from_id, to_id, actor, transition_id, at) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(index), rec.From[:], rec.To[:], rec.Actor[:], int64(rec.TransitionID), rec.Timestamp.UnixNano())
	return err
}

func toStateID(raw []byte) (domain.StateID, error) {
	var id domain.StateID
	if len(raw) != len(id) {
		return id, fmt.Errorf("corrupt state id of %d bytes", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
