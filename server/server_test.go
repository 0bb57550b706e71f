package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"lanarena/client"
	"lanarena/protocol"
)

func testServerConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.RoomCode = "LOOP"
	cfg.GameAddr = "127.0.0.1:0"
	cfg.DiscoveryAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.AdvertiseHost = "127.0.0.1"
	cfg.TickRate = 50
	cfg.Logger = zaptest.NewLogger(t).Sugar()
	return cfg
}

// startServer 启动服务端，测试结束时取消并等待 Run 返回
func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
	return s
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func sessionConfig(t *testing.T) client.SessionConfig {
	cfg := client.DefaultSessionConfig()
	cfg.Logger = zaptest.NewLogger(t).Sugar()
	return cfg
}

func ownPosition(s *client.Session) (protocol.PlayerState, bool) {
	id, ok := s.Identity()
	if !ok {
		return protocol.PlayerState{}, false
	}
	for _, p := range s.LatestState() {
		if p.ID == id.ID {
			return p, true
		}
	}
	return protocol.PlayerState{}, false
}

func TestServerAnswersDiscovery(t *testing.T) {
	s := startServer(t, testServerConfig(t))

	dcfg := client.DefaultDiscoveryConfig()
	dcfg.BroadcastAddr = "127.0.0.1"
	dcfg.Port = s.DiscoveryAddr().(*net.UDPAddr).Port
	dcfg.Timeout = 300 * time.Millisecond
	dcfg.AttemptTimeout = 100 * time.Millisecond
	dcfg.Logger = zaptest.NewLogger(t).Sugar()

	rooms, err := client.Discover(context.Background(), dcfg)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(rooms) == 0 {
		t.Fatal("Expected the room to answer")
	}
	// 每次探测一条应答，内容与服务端通告的一致
	want := protocol.RoomDescriptor{Host: "127.0.0.1", RoomCode: "LOOP"}
	for _, r := range rooms {
		if r != want {
			t.Errorf("Expected %+v, got %+v", want, r)
		}
	}
}

func TestServerSessionRoundTrip(t *testing.T) {
	s := startServer(t, testServerConfig(t))

	sess, err := client.Dial(context.Background(), s.GameAddr().String(), sessionConfig(t))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	waitUntil(t, "own player in state", func() bool {
		_, ok := ownPosition(sess)
		return ok
	})
	start, _ := ownPosition(sess)
	if start.X != 500 || start.Y != 350 {
		t.Errorf("Expected spawn at the world center, got %+v", start)
	}

	waitUntil(t, "movement to be applied", func() bool {
		_ = sess.SendInput(5, 0)
		p, _ := ownPosition(sess)
		return p.X > start.X
	})
}

func TestServerTwoPlayersSeeEachOther(t *testing.T) {
	s := startServer(t, testServerConfig(t))

	a, err := client.Dial(context.Background(), s.GameAddr().String(), sessionConfig(t))
	if err != nil {
		t.Fatalf("Dial a failed: %v", err)
	}
	defer a.Close()
	b, err := client.Dial(context.Background(), s.GameAddr().String(), sessionConfig(t))
	if err != nil {
		t.Fatalf("Dial b failed: %v", err)
	}

	waitUntil(t, "both players listed", func() bool {
		return len(a.LatestState()) == 2 && len(b.LatestState()) == 2
	})
	idA, _ := a.Identity()
	idB, _ := b.Identity()
	if idA.ID == idB.ID {
		t.Errorf("Expected distinct ids, both are %q", idA.ID)
	}

	b.Close()
	waitUntil(t, "departure to be broadcast", func() bool {
		players := a.LatestState()
		return len(players) == 1 && players[0].ID == idA.ID
	})
}

func TestServerKCPTransport(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Transport = "kcp"
	s := startServer(t, cfg)

	scfg := sessionConfig(t)
	scfg.Dialer = client.KCPDialer{}
	sess, err := client.Dial(context.Background(), s.GameAddr().String(), scfg)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	// kcp 连接在首个数据包到达时才被服务端 Accept
	waitUntil(t, "welcome over kcp", func() bool {
		_ = sess.SendInput(0, 0)
		_, ok := ownPosition(sess)
		return ok
	})
}

func TestServerShutdownClosesSessions(t *testing.T) {
	s, err := New(testServerConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	sess, err := client.Dial(context.Background(), s.GameAddr().String(), sessionConfig(t))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()
	waitUntil(t, "identity", func() bool {
		_, ok := sess.Identity()
		return ok
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Session was not closed by the server shutdown")
	}
	if sess.State() != client.Closed {
		t.Errorf("Expected Closed, got %v", sess.State())
	}
}

func TestServerSpectatorReceivesState(t *testing.T) {
	s := startServer(t, testServerConfig(t))

	sess, err := client.Dial(context.Background(), s.GameAddr().String(), sessionConfig(t))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+s.HTTPAddr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect spectator: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		mt, payload, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("Spectator read failed: %v", err)
		}
		if mt != websocket.TextMessage {
			t.Fatalf("Expected a text frame, got %d", mt)
		}
		if strings.HasSuffix(string(payload), "\n") {
			t.Fatal("Websocket frames should not carry the line delimiter")
		}
		msg, err := protocol.Decode(payload)
		if err != nil {
			t.Fatalf("Spectator frame did not decode: %v", err)
		}
		if st, ok := msg.(protocol.State); ok && len(st.Players) == 1 {
			return
		}
	}
}

func TestAdminConfig(t *testing.T) {
	s, err := New(testServerConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.closeListeners()
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/config", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET returned %d", rec.Code)
	}
	var got Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if got != DefaultSettings() {
		t.Errorf("Expected defaults, got %+v", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(`{"step":2.5}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST returned %d: %s", rec.Code, rec.Body.String())
	}
	cur := s.Room().Settings()
	if cur.Step != 2.5 || cur.MaxInputsPerTick != DefaultSettings().MaxInputsPerTick {
		t.Errorf("Expected a partial update, got %+v", cur)
	}

	tests := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{"invalid json", http.MethodPost, `{`, http.StatusBadRequest},
		{"negative step", http.MethodPost, `{"step":-1}`, http.StatusBadRequest},
		{"drop out of range", http.MethodPost, `{"simulateDropProb":1.5}`, http.StatusBadRequest},
		{"method", http.MethodDelete, ``, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/admin/config", strings.NewReader(tt.body)))
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
	if s.Room().Settings().Step != 2.5 {
		t.Error("Rejected updates must not change the settings")
	}
}

func TestMetricsAndHealth(t *testing.T) {
	s, err := New(testServerConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.closeListeners()
	s.Room().Tick()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var payload struct {
		Room    string         `json:"room"`
		Tick    int64          `json:"tick"`
		Metrics map[string]any `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if payload.Room != "LOOP" || payload.Tick != 1 {
		t.Errorf("Unexpected payload: %+v", payload)
	}
	if _, ok := payload.Metrics["avg_tick_ms"]; !ok {
		t.Errorf("Missing avg_tick_ms: %v", payload.Metrics)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Body.String() != "ok" {
		t.Errorf("Expected ok, got %q", rec.Body.String())
	}
}

func TestNewRejectsUnknownTransport(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Transport = "carrier-pigeon"
	if _, err := New(cfg); err == nil {
		t.Fatal("Expected an error for an unknown transport")
	}
}

func TestNewRoomCode(t *testing.T) {
	code := NewRoomCode()
	if len(code) != 6 || strings.ToUpper(code) != code {
		t.Errorf("Unexpected room code %q", code)
	}
}
