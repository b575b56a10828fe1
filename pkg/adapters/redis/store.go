package redis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/switchyard/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the adapters.
const DefaultPrefix = "switchyard:"

// Store implements ports.StateBackend using Redis.
//
// Layout under the prefix:
//
//	states         SET of hex state ids
//	states:order   LIST of hex state ids in registration order
//	edges:<hex>    LIST of hex target ids
//	allow          SET of "<hex>:<transition id>"
//	pointer        HASH current, nonce, at (unix nanos), initialized
//	history        HASH index -> JSON record
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix, typically one per workflow instance.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func encodeID(id domain.StateID) string {
	return hex.EncodeToString(id[:])
}

func decodeID(v string) (domain.StateID, error) {
	var id domain.StateID
	if _, err := hex.Decode(id[:], []byte(v)); err != nil {
		return id, fmt.Errorf("corrupt state id %q: %w", v, err)
	}
	return id, nil
}

func allowMember(id domain.StateID, tid domain.TransitionID) string {
	return encodeID(id) + ":" + strconv.FormatUint(uint64(tid), 10)
}

var putStateScript = backend.NewScript(`
if redis.call("SADD", KEYS[1], ARGV[1]) == 1 then
	redis.call("RPUSH", KEYS[2], ARGV[1])
	return 1
end
return 0
`)

var initPointerScript = backend.NewScript(`
if redis.call("HEXISTS", KEYS[1], "initialized") == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "current", ARGV[1], "nonce", "0", "at", ARGV[2], "initialized", "1")
return 1
`)

var setPointerScript = backend.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], "nonce", 1)
redis.call("HSET", KEYS[1], "current", ARGV[1], "at", ARGV[2], "initialized", "1")
return n
`)

// commitScript moves the pointer and writes the record at nonce-1 atomically.
var commitScript = backend.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], "nonce", 1)
redis.call("HSET", KEYS[1], "current", ARGV[1], "at", ARGV[2], "initialized", "1")
redis.call("HSET", KEYS[2], tostring(n - 1), ARGV[3])
return n
`)

func (s *Store) PutState(ctx context.Context, id domain.StateID) (bool, error) {
	n, err := putStateScript.Run(ctx, s.client, []string{s.key("states"), s.key("states", "order")}, encodeID(id)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to register state: %w", err)
	}
	return n == 1, nil
}

func (s *Store) HasState(ctx context.Context, id domain.StateID) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key("states"), encodeID(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read states: %w", err)
	}
	return ok, nil
}

func (s *Store) ListStates(ctx context.Context) ([]domain.StateID, error) {
	return s.readIDList(ctx, s.key("states", "order"))
}

func (s *Store) AppendEdge(ctx context.Context, from, to domain.StateID) error {
	if err := s.client.RPush(ctx, s.key("edges", encodeID(from)), encodeID(to)).Err(); err != nil {
		return fmt.Errorf("failed to append edge: %w", err)
	}
	return nil
}

func (s *Store) Edges(ctx context.Context, from domain.StateID) ([]domain.StateID, error) {
	return s.readIDList(ctx, s.key("edges", encodeID(from)))
}

func (s *Store) readIDList(ctx context.Context, key string) ([]domain.StateID, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	out := make([]domain.StateID, 0, len(vals))
	for _, v := range vals {
		id, err := decodeID(v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) SetAllowed(ctx context.Context, id domain.StateID, tid domain.TransitionID, allowed bool) error {
	var err error
	if allowed {
		err = s.client.SAdd(ctx, s.key("allow"), allowMember(id, tid)).Err()
	} else {
		err = s.client.SRem(ctx, s.key("allow"), allowMember(id, tid)).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to write allow entry: %w", err)
	}
	return nil
}

func (s *Store) Allowed(ctx context.Context, id domain.StateID, tid domain.TransitionID) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key("allow"), allowMember(id, tid)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read allow entry: %w", err)
	}
	return ok, nil
}

func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	vals, err := s.client.HGetAll(ctx, s.key("pointer")).Result()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to read pointer: %w", err)
	}
	if vals["initialized"] != "1" {
		return domain.Snapshot{}, nil
	}

	snap := domain.Snapshot{Initialized: true}
	if snap.Current, err = decodeID(vals["current"]); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Nonce, err = strconv.ParseUint(vals["nonce"], 10, 64); err != nil {
		return domain.Snapshot{}, fmt.Errorf("corrupt nonce: %w", err)
	}
	at, err := strconv.ParseInt(vals["at"], 10, 64)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("corrupt timestamp: %w", err)
	}
	snap.LastTransitionAt = time.Unix(0, at).UTC()
	return snap, nil
}

func (s *Store) InitPointer(ctx context.Context, id domain.StateID, at time.Time) error {
	n, err := initPointerScript.Run(ctx, s.client, []string{s.key("pointer")}, encodeID(id), at.UnixNano()).Int()
	if err != nil {
		return fmt.Errorf("failed to initialize pointer: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyInitialized
	}
	return nil
}

func (s *Store) SetPointer(ctx context.Context, id domain.StateID, at time.Time) (uint64, error) {
	n, err := setPointerScript.Run(ctx, s.client, []string{s.key("pointer")}, encodeID(id), at.UnixNano()).Uint64()
	if err != nil {
		return 0, fmt.Errorf("failed to move pointer: %w", err)
	}
	return n, nil
}

func (s *Store) PutHistory(ctx context.Context, index uint64, rec domain.TransitionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.client.HSet(ctx, s.key("history"), strconv.FormatUint(index, 10), data).Err(); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

func (s *Store) Commit(ctx context.Context, rec domain.TransitionRecord) (uint64, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal record: %w", err)
	}
	keys := []string{s.key("pointer"), s.key("history")}
	n, err := commitScript.Run(ctx, s.client, keys, encodeID(rec.To), rec.Timestamp.UnixNano(), data).Uint64()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transition: %w", err)
	}
	return n, nil
}

func (s *Store) History(ctx context.Context, index uint64) (domain.TransitionRecord, error) {
	var rec domain.TransitionRecord
	val, err := s.client.HGet(ctx, s.key("history"), strconv.FormatUint(index, 10)).Result()
	if errors.Is(err, backend.Nil) {
		return rec, domain.ErrHistoryNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("failed to read history: %w", err)
	}
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return rec, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}
