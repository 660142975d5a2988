package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps failures of the backing session storage.
var ErrStoreUnavailable = errors.New("session store unavailable")

// SessionStore persists session data between runs.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Get returns the session stored under id, or nil if there is none or it expired.
	Get(ctx context.Context, id string) (object.Record, error)

	// Set stores data under id for ttl. A zero ttl never expires.
	Set(ctx context.Context, id string, data object.Record, ttl time.Duration) error

	// Destroy removes the session. Destroying a missing session is not an error.
	Destroy(ctx context.Context, id string) error
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Data is stored as JSON so a
// handler never shares a Record with a concurrent run, the same as with Redis.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

// Get implements SessionStore.
func (s *MemoryStore) Get(_ context.Context, id string) (object.Record, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok && !entry.expires.IsZero() && s.now().After(entry.expires) {
		delete(s.sessions, id)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return decodeSession(entry.data)
}

// Set implements SessionStore.
func (s *MemoryStore) Set(_ context.Context, id string, data object.Record, ttl time.Duration) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	entry := memoryEntry{data: b}
	if ttl > 0 {
		entry.expires = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = entry
	return nil
}

// Destroy implements SessionStore.
func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RedisStore keeps sessions in Redis as JSON strings under Prefix+id.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "sess:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sess:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get implements SessionStore.
func (s *RedisStore) Get(ctx context.Context, id string) (object.Record, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeSession(data)
}

// Set implements SessionStore.
func (s *RedisStore) Set(ctx context.Context, id string, data object.Record, ttl time.Duration) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), b, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Destroy implements SessionStore.
func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func decodeSession(data []byte) (object.Record, error) {
	var r object.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if r == nil {
		r = object.NewRecord()
	}
	return r, nil
}
