// Package feed fans session updates out to live subscribers.
package feed

import (
	"context"
	"encoding/json"
)

// Message types pushed to subscribers.
const (
	TypeSettlement = "settlement"
	TypeDeleted    = "deleted"
)

type Message struct {
	Type      string          `json:"type"`
	SessionID int64           `json:"sessionId"`
	Seq       int64           `json:"seq"`
	Reason    string          `json:"reason,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Broker publishes to and subscribes on per-session channels. The cancel
// func returned by Subscribe releases the subscription and closes the
// channel.
type Broker interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, sessionID int64) (<-chan Message, func(), error)
}

// Observer is notified after a session changed.
type Observer interface {
	SessionChanged(ctx context.Context, sessionID int64, reason string)
}

// Nop is a Broker and Observer that drops everything.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }

func (Nop) Subscribe(context.Context, int64) (<-chan Message, func(), error) {
	ch := make(chan Message)
	close(ch)
	return ch, func() {}, nil
}

func (Nop) SessionChanged(context.Context, int64, string) {}
