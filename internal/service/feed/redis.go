package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"jonglog-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker relays messages over Redis pub/sub so every server instance
// sees every session update.
type RedisBroker struct {
	rdb *redis.Client
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb}
}

func buildChannel(sessionID int64) string {
	return fmt.Sprintf("jonglog:feed:session:%d", sessionID)
}

func buildSeqKey(sessionID int64) string {
	return fmt.Sprintf("jonglog:feed:seq:%d", sessionID)
}

func (b *RedisBroker) Publish(ctx context.Context, msg Message) error {
	seq, err := b.rdb.Incr(ctx, buildSeqKey(msg.SessionID)).Result()
	if err != nil {
		return err
	}
	msg.Seq = seq
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, buildChannel(msg.SessionID), data).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, sessionID int64) (<-chan Message, func(), error) {
	ps := b.rdb.Subscribe(ctx, buildChannel(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, err
	}

	out := make(chan Message, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-done:
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					logger.Log.Warn("dropping malformed feed message", zap.String("channel", raw.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- msg:
				default:
					logger.Log.Warn("feed subscriber channel full", zap.Int64("sessionID", sessionID))
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			ps.Close()
		})
	}
	return out, cancel, nil
}
