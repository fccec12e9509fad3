package feed_test

import (
	"context"
	"testing"

	"jonglog-service/internal/service/feed"
)

func TestHubDeliversPerSession(t *testing.T) {
	ctx := context.Background()
	hub := feed.NewHub()

	one, cancelOne, err := hub.Subscribe(ctx, 1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancelOne()
	two, cancelTwo, err := hub.Subscribe(ctx, 2)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancelTwo()

	for i := 0; i < 2; i++ {
		if err := hub.Publish(ctx, feed.Message{Type: feed.TypeSettlement, SessionID: 1}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	first, second := <-one, <-one
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected sequential seq, got %d and %d", first.Seq, second.Seq)
	}
	select {
	case msg := <-two:
		t.Fatalf("session 2 received %+v", msg)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	ctx := context.Background()
	hub := feed.NewHub()

	ch, cancel, err := hub.Subscribe(ctx, 1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if err := hub.Publish(ctx, feed.Message{SessionID: 1}); err != nil {
		t.Fatalf("publish after cancel failed: %v", err)
	}
}

func TestNopSubscribeIsClosed(t *testing.T) {
	ch, cancel, err := feed.Nop{}.Subscribe(context.Background(), 1)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
}
