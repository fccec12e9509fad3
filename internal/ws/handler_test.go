package ws_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"jonglog-service/internal/engine"
	"jonglog-service/internal/model"
	"jonglog-service/internal/service/feed"
	"jonglog-service/internal/service/settlement"
	"jonglog-service/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type feedEnv struct {
	db          *gorm.DB
	settlements *settlement.Service
	server      *httptest.Server
	sessionID   int64
}

func newFeedEnv(t *testing.T, broker feed.Broker) *feedEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	ms := model.MatchSet{
		Date:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		PlayersJSON: model.MustJSON([]string{"A", "B", "C", "D"}),
		RulesJSON:   model.MustJSON(engine.DefaultRules()),
		Rate:        50,
	}
	if err := db.Create(&ms).Error; err != nil {
		t.Fatalf("seed session failed: %v", err)
	}

	settlements := settlement.NewService(db, broker, nil)
	r := gin.New()
	r.GET("/ws/sessions/:id", ws.NewHandler(broker, settlements, nil).HandleSessionWS)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &feedEnv{db: db, settlements: settlements, server: server, sessionID: ms.ID}
}

func (e *feedEnv) url(sessionID int64) string {
	return fmt.Sprintf("ws%s/ws/sessions/%d", strings.TrimPrefix(e.server.URL, "http"), sessionID)
}

func readMessage(t *testing.T, conn *websocket.Conn) feed.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg feed.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func TestSessionFeedSnapshotThenUpdates(t *testing.T) {
	env := newFeedEnv(t, feed.NewHub())

	conn, _, err := websocket.DefaultDialer.Dial(env.url(env.sessionID), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	snapshot := readMessage(t, conn)
	if snapshot.Type != feed.TypeSettlement || snapshot.Reason != "snapshot" || len(snapshot.Data) == 0 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	// The viewer is subscribed by the time the snapshot arrives.
	env.settlements.SessionChanged(context.Background(), env.sessionID, "expense_added")
	update := readMessage(t, conn)
	if update.Seq != 1 || update.Reason != "expense_added" {
		t.Fatalf("unexpected update: %+v", update)
	}

	if err := env.db.Delete(&model.MatchSet{}, env.sessionID).Error; err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	env.settlements.SessionChanged(context.Background(), env.sessionID, "deleted")
	if msg := readMessage(t, conn); msg.Type != feed.TypeDeleted {
		t.Fatalf("expected a deletion notice, got %+v", msg)
	}
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected a normal close frame, got %v", err)
	}
}

func TestSessionFeedUnknownSession(t *testing.T) {
	env := newFeedEnv(t, feed.NewHub())

	_, resp, err := websocket.DefaultDialer.Dial(env.url(999), nil)
	if !errors.Is(err, websocket.ErrBadHandshake) || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake failure, got %v %v", err, resp)
	}
}

func TestSessionFeedDisabled(t *testing.T) {
	env := newFeedEnv(t, feed.Nop{})

	_, resp, err := websocket.DefaultDialer.Dial(env.url(env.sessionID), nil)
	if !errors.Is(err, websocket.ErrBadHandshake) || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 handshake failure, got %v %v", err, resp)
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) first() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return ""
	}
	return l.events[0]
}

type recordingBroker struct {
	*feed.Hub
	log *eventLog
}

func (b recordingBroker) Subscribe(ctx context.Context, sessionID int64) (<-chan feed.Message, func(), error) {
	b.log.add("subscribe")
	return b.Hub.Subscribe(ctx, sessionID)
}

func TestSessionFeedSubscribesBeforeSnapshot(t *testing.T) {
	log := &eventLog{}
	env := newFeedEnv(t, recordingBroker{Hub: feed.NewHub(), log: log})
	if err := env.db.Callback().Query().After("gorm:query").Register("test:record_query", func(*gorm.DB) {
		log.add("query")
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(env.url(env.sessionID), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)

	if got := log.first(); got != "subscribe" {
		t.Fatalf("expected the subscription before the snapshot query, first event was %q", got)
	}
}
