package feed

import (
	"context"
	"sync"

	"jonglog-service/pkg/logger"

	"go.uber.org/zap"
)

const subscriberBuffer = 8

// Hub is an in-process Broker for a single server instance.
type Hub struct {
	mu     sync.Mutex
	nextID int64
	seq    map[int64]int64
	subs   map[int64]map[int64]chan Message
}

func NewHub() *Hub {
	return &Hub{
		seq:  make(map[int64]int64),
		subs: make(map[int64]map[int64]chan Message),
	}
}

func (h *Hub) Publish(_ context.Context, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq[msg.SessionID]++
	msg.Seq = h.seq[msg.SessionID]
	for id, ch := range h.subs[msg.SessionID] {
		select {
		case ch <- msg:
		default:
			logger.Log.Warn("feed subscriber channel full", zap.Int64("sessionID", msg.SessionID), zap.Int64("subscriber", id))
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, sessionID int64) (<-chan Message, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan Message, subscriberBuffer)
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[int64]chan Message)
	}
	h.subs[sessionID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subs[sessionID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subs, sessionID)
				}
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}
