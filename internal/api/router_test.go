package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jonglog-service/internal/api"
	"jonglog-service/internal/config"
	"jonglog-service/internal/engine"
	"jonglog-service/internal/model"
	"jonglog-service/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	conf := &config.Config{
		JWT:      config.JWTConfig{Secret: "test-secret", Expire: 1},
		Rules:    engine.DefaultRules(),
		TieBreak: config.TieBreakConfig{TTLSeconds: 60},
		Feed:     config.FeedConfig{Enabled: true},
	}
	services := service.NewContainer(db, nil, conf)
	token, err := services.Signer.GenerateToken("tests")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	r := gin.New()
	api.RegisterRoutes(r, services)
	return &testServer{t: t, router: r, token: token}
}

func (s *testServer) do(method, path string, body interface{}, auth bool) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("decode response of %s %s: %v", method, path, err)
		}
	}
	return w, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func score(name string, v float64) map[string]interface{} {
	return map[string]interface{}{"name": name, "score": v}
}

func TestPingAndAuth(t *testing.T) {
	s := newTestServer(t)

	if w, _ := s.do(http.MethodGet, "/ping", nil, false); w.Code != http.StatusOK {
		t.Fatalf("ping: expected 200, got %d", w.Code)
	}
	body := map[string]interface{}{"players": []string{"A", "B", "C", "D"}}
	if w, _ := s.do(http.MethodPost, "/jonglog/v1/sessions", body, false); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w, _ := s.do(http.MethodGet, "/jonglog/v1/sessions", nil, false); w.Code != http.StatusOK {
		t.Fatalf("reads are public, got %d", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/jonglog/v1/sessions", map[string]interface{}{
		"date":    "2024-06-01",
		"players": []string{"A", "B", "C", "D"},
		"rate":    50,
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", w.Code, env.Msg)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, env.Data, &created)
	base := fmt.Sprintf("/jonglog/v1/sessions/%d", created.ID)

	w, env = s.do(http.MethodPost, base+"/matches", map[string]interface{}{
		"scores": []interface{}{score("A", 30000), score("B", 30000), score("C", 25000), score("D", 15000)},
	}, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("tied submit: expected 202, got %d (%s)", w.Code, env.Msg)
	}
	var tie struct {
		Token string `json:"token"`
		Group []int  `json:"group"`
	}
	decode(t, env.Data, &tie)
	if tie.Token == "" || len(tie.Group) != 2 {
		t.Fatalf("unexpected tie-break: %+v", tie)
	}

	if w, _ := s.do(http.MethodPost, "/jonglog/v1/tiebreaks/"+tie.Token+"/select", map[string]int{"index": 3}, true); w.Code != http.StatusBadRequest {
		t.Fatalf("bad selection: expected 400, got %d", w.Code)
	}
	if w, _ := s.do(http.MethodPost, "/jonglog/v1/tiebreaks/"+tie.Token+"/select", map[string]int{"index": 0}, true); w.Code != http.StatusAccepted {
		t.Fatalf("first selection: expected 202, got %d", w.Code)
	}
	if w, _ := s.do(http.MethodPost, "/jonglog/v1/tiebreaks/"+tie.Token+"/select", map[string]int{"index": 1}, true); w.Code != http.StatusCreated {
		t.Fatalf("final selection: expected 201, got %d", w.Code)
	}
	if w, _ := s.do(http.MethodGet, "/jonglog/v1/tiebreaks/"+tie.Token, nil, false); w.Code != http.StatusGone {
		t.Fatalf("resolved token: expected 410, got %d", w.Code)
	}

	w, env = s.do(http.MethodGet, base+"/settlement", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("settlement: expected 200, got %d", w.Code)
	}
	var settlement struct {
		MatchCount int `json:"matchCount"`
		Lines      []struct {
			Name  string `json:"name"`
			Final int64  `json:"final"`
		} `json:"lines"`
	}
	decode(t, env.Data, &settlement)
	if settlement.MatchCount != 1 || settlement.Lines[0].Final != 25000 {
		t.Fatalf("unexpected settlement: %+v", settlement)
	}

	if w, _ := s.do(http.MethodPut, base+"/rules", map[string]interface{}{
		"startScore": 25000, "returnScore": 25000, "uma": []int{20, 10, -10, -20},
	}, true); w.Code != http.StatusConflict {
		t.Fatalf("rules change with matches: expected 409, got %d", w.Code)
	}

	if w, _ := s.do(http.MethodPut, base+"/lock", map[string]bool{"locked": true}, true); w.Code != http.StatusOK {
		t.Fatalf("lock: expected 200, got %d", w.Code)
	}
	if w, _ := s.do(http.MethodPut, base+"/rate", map[string]float64{"rate": 100}, true); w.Code != http.StatusLocked {
		t.Fatalf("rate on locked session: expected 423, got %d", w.Code)
	}

	w, _ = s.do(http.MethodGet, base+"/settlement.xlsx", nil, false)
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Disposition"), "session-") {
		t.Fatalf("workbook export failed: %d", w.Code)
	}

	if w, _ := s.do(http.MethodGet, "/jonglog/v1/sessions/999", nil, false); w.Code != http.StatusNotFound {
		t.Fatalf("missing session: expected 404, got %d", w.Code)
	}
	if w, _ := s.do(http.MethodGet, "/jonglog/v1/sessions/abc", nil, false); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "jonglog_feed_clients") {
		t.Fatalf("unexpected metrics response: %d", w.Code)
	}
}

func TestChartsOfEmptySessionAndLeague(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/jonglog/v1/sessions", map[string]interface{}{
		"date":    "2024-06-01",
		"players": []string{"A", "B", "C", "D"},
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d (%s)", w.Code, env.Msg)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, env.Data, &created)

	w, env = s.do(http.MethodPost, "/jonglog/v1/leagues", map[string]interface{}{
		"title":   "spring",
		"players": []string{"E", "F", "G", "H"},
		"rule":    map[string]interface{}{"type": "count", "count": 4},
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create league: expected 201, got %d (%s)", w.Code, env.Msg)
	}
	var league struct {
		League struct {
			ID int64 `json:"id"`
		} `json:"league"`
	}
	decode(t, env.Data, &league)

	for _, path := range []string{
		fmt.Sprintf("/jonglog/v1/sessions/%d/chart.png", created.ID),
		fmt.Sprintf("/jonglog/v1/leagues/%d/chart.png", league.League.ID),
	} {
		w, _ := s.do(http.MethodGet, path, nil, false)
		if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
			t.Fatalf("%s: expected a png, got %d %s", path, w.Code, w.Body.String())
		}
		if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
			t.Fatalf("%s: body is not a png", path)
		}
	}
}
