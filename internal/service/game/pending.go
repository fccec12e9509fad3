package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"jonglog-service/internal/engine"
	appErr "jonglog-service/pkg/errors"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// Pending is a match submission parked on the tie-break protocol.
type Pending struct {
	SessionID  int64             `json:"sessionId"`
	MatchID    int64             `json:"matchId,omitempty"`
	Submission engine.Submission `json:"submission"`
	ExpiresAt  time.Time         `json:"expiresAt"`
}

// UpdateFunc mutates a pending submission in place. Returning keep=false
// drops the submission; a non-nil error leaves it untouched.
type UpdateFunc func(p *Pending) (keep bool, err error)

// PendingStore keeps pending submissions by token until they resolve,
// are cancelled or expire.
type PendingStore interface {
	Save(ctx context.Context, token string, p Pending, ttl time.Duration) error
	Load(ctx context.Context, token string) (*Pending, error)
	// Update applies fn atomically. Kept submissions retain their original
	// deadline.
	Update(ctx context.Context, token string, fn UpdateFunc) (*Pending, error)
	Delete(ctx context.Context, token string) error
}

func encodePending(p Pending) ([]byte, error) {
	return json.Marshal(p)
}

func decodePending(data []byte) (*Pending, error) {
	var p Pending
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pending submission: %w", err)
	}
	return &p, nil
}

type RedisPendingStore struct {
	rdb *redis.Client
}

func NewRedisPendingStore(rdb *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{rdb: rdb}
}

func buildPendingKey(token string) string {
	return fmt.Sprintf("jonglog:tiebreak:%s", token)
}

func (s *RedisPendingStore) Save(ctx context.Context, token string, p Pending, ttl time.Duration) error {
	if ttl <= 0 {
		return s.rdb.Del(ctx, buildPendingKey(token)).Err()
	}
	data, err := encodePending(p)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, buildPendingKey(token), data, ttl).Err()
}

func (s *RedisPendingStore) Load(ctx context.Context, token string) (*Pending, error) {
	data, err := s.rdb.Get(ctx, buildPendingKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErr.ErrTieBreakNotFound
		}
		return nil, err
	}
	return decodePending(data)
}

// Update watches the key, so a concurrent change aborts the transaction
// with ErrTieBreakState.
func (s *RedisPendingStore) Update(ctx context.Context, token string, fn UpdateFunc) (*Pending, error) {
	key := buildPendingKey(token)
	var out *Pending
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return appErr.ErrTieBreakNotFound
			}
			return err
		}
		p, err := decodePending(data)
		if err != nil {
			return err
		}
		keep, err := fn(p)
		if err != nil {
			return err
		}

		ttl := time.Until(p.ExpiresAt)
		expired := keep && ttl <= 0
		if keep && !expired {
			if data, err = encodePending(*p); err != nil {
				return err
			}
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if keep && !expired {
				pipe.Set(ctx, key, data, ttl)
			} else {
				pipe.Del(ctx, key)
			}
			return nil
		}); err != nil {
			return err
		}
		if expired {
			return appErr.ErrTieBreakNotFound
		}
		out = p
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, fmt.Errorf("%w: tie-break changed concurrently", appErr.ErrTieBreakState)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisPendingStore) Delete(ctx context.Context, token string) error {
	n, err := s.rdb.Del(ctx, buildPendingKey(token)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErr.ErrTieBreakNotFound
	}
	return nil
}

// MemoryPendingStore keeps pending submissions in process. It is used when
// no Redis is configured and in tests.
type MemoryPendingStore struct {
	// mu serialises read-modify-write sequences; the cache itself is safe
	// for concurrent use.
	mu    sync.Mutex
	cache *ttlcache.Cache[string, []byte]
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{
		cache: ttlcache.New[string, []byte](
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
	}
}

func (s *MemoryPendingStore) Save(_ context.Context, token string, p Pending, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A zero ttl would mean "never expires" to the cache.
	if ttl <= 0 {
		s.cache.Delete(token)
		return nil
	}
	data, err := encodePending(p)
	if err != nil {
		return err
	}
	s.cache.DeleteExpired()
	s.cache.Set(token, data, ttl)
	return nil
}

func (s *MemoryPendingStore) Load(_ context.Context, token string) (*Pending, error) {
	item := s.cache.Get(token)
	if item == nil {
		return nil, appErr.ErrTieBreakNotFound
	}
	return decodePending(item.Value())
}

func (s *MemoryPendingStore) Update(_ context.Context, token string, fn UpdateFunc) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(token)
	if item == nil {
		return nil, appErr.ErrTieBreakNotFound
	}
	p, err := decodePending(item.Value())
	if err != nil {
		return nil, err
	}
	keep, err := fn(p)
	if err != nil {
		return nil, err
	}
	if !keep {
		s.cache.Delete(token)
		return p, nil
	}

	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		s.cache.Delete(token)
		return nil, appErr.ErrTieBreakNotFound
	}
	data, err := encodePending(*p)
	if err != nil {
		return nil, err
	}
	s.cache.Set(token, data, ttl)
	return p, nil
}

func (s *MemoryPendingStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Get(token) == nil {
		return appErr.ErrTieBreakNotFound
	}
	s.cache.Delete(token)
	return nil
}
