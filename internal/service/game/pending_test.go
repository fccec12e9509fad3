package game_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"jonglog-service/internal/service/game"
	appErr "jonglog-service/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *game.RedisPendingStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, game.NewRedisPendingStore(rdb)
}

func TestRedisPendingStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, store := newRedisStore(t)

	p := game.Pending{SessionID: 7, MatchID: 3, ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Save(ctx, "tok", p, time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !mr.Exists("jonglog:tiebreak:tok") {
		t.Fatal("expected the key to be written")
	}
	got, err := store.Load(ctx, "tok")
	if err != nil || got.SessionID != 7 || got.MatchID != 3 {
		t.Fatalf("unexpected load: %v %+v", err, got)
	}

	updated, err := store.Update(ctx, "tok", func(p *game.Pending) (bool, error) {
		p.MatchID = 4
		return true, nil
	})
	if err != nil || updated.MatchID != 4 {
		t.Fatalf("update failed: %v %+v", err, updated)
	}
	if ttl := mr.TTL("jonglog:tiebreak:tok"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected the deadline to be kept, ttl %v", ttl)
	}

	if err := store.Delete(ctx, "tok"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.Delete(ctx, "tok"); !errors.Is(err, appErr.ErrTieBreakNotFound) {
		t.Fatalf("expected ErrTieBreakNotFound, got %v", err)
	}
}

func TestRedisPendingStoreExpiry(t *testing.T) {
	ctx := context.Background()
	mr, store := newRedisStore(t)

	if err := store.Save(ctx, "tok", game.Pending{SessionID: 1}, time.Second); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := store.Load(ctx, "tok"); !errors.Is(err, appErr.ErrTieBreakNotFound) {
		t.Fatalf("expected expired entry, got %v", err)
	}
	if _, err := store.Update(ctx, "tok", func(*game.Pending) (bool, error) { return true, nil }); !errors.Is(err, appErr.ErrTieBreakNotFound) {
		t.Fatalf("expected ErrTieBreakNotFound on update, got %v", err)
	}
}

func TestRedisPendingStoreConcurrentChange(t *testing.T) {
	ctx := context.Background()
	_, store := newRedisStore(t)

	p := game.Pending{SessionID: 1, ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.Save(ctx, "tok", p, time.Minute); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	_, err := store.Update(ctx, "tok", func(cur *game.Pending) (bool, error) {
		// Another writer lands between the read and the commit.
		other := *cur
		other.MatchID = 9
		if err := store.Save(ctx, "tok", other, time.Minute); err != nil {
			t.Fatalf("concurrent save failed: %v", err)
		}
		cur.MatchID = 5
		return true, nil
	})
	if !errors.Is(err, appErr.ErrTieBreakState) {
		t.Fatalf("expected ErrTieBreakState, got %v", err)
	}
	got, err := store.Load(ctx, "tok")
	if err != nil || got.MatchID != 9 {
		t.Fatalf("expected the concurrent write to win, got %v %+v", err, got)
	}
}

func TestPendingStoreUpdateDrop(t *testing.T) {
	ctx := context.Background()
	_, redisStore := newRedisStore(t)
	stores := map[string]game.PendingStore{
		"memory": game.NewMemoryPendingStore(),
		"redis":  redisStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			p := game.Pending{SessionID: 1, ExpiresAt: time.Now().Add(time.Minute)}
			if err := store.Save(ctx, "drop", p, time.Minute); err != nil {
				t.Fatalf("save failed: %v", err)
			}

			rejected := errors.New("rejected")
			if _, err := store.Update(ctx, "drop", func(p *game.Pending) (bool, error) {
				p.SessionID = 2
				return false, rejected
			}); !errors.Is(err, rejected) {
				t.Fatalf("expected the callback error, got %v", err)
			}
			if got, err := store.Load(ctx, "drop"); err != nil || got.SessionID != 1 {
				t.Fatalf("failed update changed state: %v %+v", err, got)
			}

			if _, err := store.Update(ctx, "drop", func(*game.Pending) (bool, error) { return false, nil }); err != nil {
				t.Fatalf("drop failed: %v", err)
			}
			if _, err := store.Load(ctx, "drop"); !errors.Is(err, appErr.ErrTieBreakNotFound) {
				t.Fatalf("expected dropped entry, got %v", err)
			}
		})
	}
}
