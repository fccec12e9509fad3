package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"jonglog-service/internal/metrics"
	"jonglog-service/internal/service/feed"
	"jonglog-service/internal/service/settlement"
	appErr "jonglog-service/pkg/errors"
	"jonglog-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler streams settlement updates of one session to read-only viewers.
type Handler struct {
	broker      feed.Broker
	settlements *settlement.Service
	metrics     *metrics.Metrics
}

func NewHandler(broker feed.Broker, settlements *settlement.Service, m *metrics.Metrics) *Handler {
	return &Handler{broker: broker, settlements: settlements, metrics: m}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the feed is public and read-only
	},
}

func (h *Handler) HandleSessionWS(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	if _, disabled := h.broker.(feed.Nop); disabled {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed is disabled"})
		return
	}

	// Subscribe before taking the snapshot so no update falls in between.
	// The subscription outlives the upgrade request.
	ctx, cancel := context.WithCancel(context.Background())
	updates, unsubscribe, err := h.broker.Subscribe(ctx, sessionID)
	if err != nil {
		cancel()
		logger.Log.Error("Failed to subscribe to session feed", zap.Int64("sessionID", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "feed unavailable"})
		return
	}

	snapshot, err := h.snapshot(c.Request.Context(), sessionID)
	if err != nil {
		unsubscribe()
		cancel()
		if errors.Is(err, appErr.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		cancel()
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New WebSocket connection", zap.Int64("sessionID", sessionID))
	h.metrics.FeedClient(1)
	defer h.metrics.FeedClient(-1)

	cl := newClient(conn, sessionID, updates, func() {
		unsubscribe()
		cancel()
	})
	cl.send(*snapshot)
	cl.run()
}

// snapshot is sent on connect so a viewer never waits for the next change.
func (h *Handler) snapshot(ctx context.Context, sessionID int64) (*feed.Message, error) {
	result, err := h.settlements.Compute(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &feed.Message{Type: feed.TypeSettlement, SessionID: sessionID, Reason: "snapshot", Data: data}, nil
}

type client struct {
	conn      *websocket.Conn
	sessionID int64
	outbound  <-chan feed.Message
	release   func()
	done      chan struct{}
	pingEvery time.Duration
}

func newClient(conn *websocket.Conn, sessionID int64, outbound <-chan feed.Message, release func()) *client {
	conn.SetReadLimit(4 << 10)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	return &client{
		conn:      conn,
		sessionID: sessionID,
		outbound:  outbound,
		release:   release,
		done:      make(chan struct{}),
		pingEvery: 25 * time.Second,
	}
}

func (c *client) run() {
	go c.writePump()
	c.readPump()
}

// readPump only keeps the read deadline alive; viewers send nothing.
func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.release()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.Int64("sessionID", c.sessionID))
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(5*time.Second))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Log.Info("WS write error", zap.Error(err), zap.Int64("sessionID", c.sessionID))
				return
			}
			if msg.Type == feed.TypeDeleted {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session deleted"),
					time.Now().Add(5*time.Second))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// send writes before the pumps start, so it cannot race writePump.
func (c *client) send(msg feed.Message) {
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Log.Info("WS write error", zap.Error(err), zap.Int64("sessionID", c.sessionID))
	}
}
