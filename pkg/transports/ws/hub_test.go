package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/presentation"
)

func dialViewer(t *testing.T, h *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for h.Viewers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("viewer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestHubBroadcastsEvents(t *testing.T) {
	h := New(Config{}, logging.Discard(), nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn := dialViewer(t, h, srv)
	defer conn.Close()

	if err := h.Publish(context.Background(), presentation.AgentMessage("agent2", "hello there")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev presentation.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Name != presentation.EventAgentMessage || ev.Data.AgentID != "agent2" || ev.Data.Text != "hello there" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.ID == "" || ev.Time == 0 {
		t.Fatalf("expected id and timestamp on the wire")
	}
}

func TestHubStopDropsViewers(t *testing.T) {
	h := New(Config{}, logging.Discard(), nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	conn := dialViewer(t, h, srv)
	defer conn.Close()

	if err := h.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if h.Viewers() != 0 {
		t.Fatalf("expected viewers cleared")
	}
	if err := h.Publish(context.Background(), presentation.ClearAgent("agent1")); err != nil {
		t.Fatalf("expected publish after stop to be a no-op, got %v", err)
	}
	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining, got %d", resp.StatusCode)
	}
}

func TestHubServesAudioAndHealth(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clip.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := New(Config{AudioDir: dir}, logging.Discard(), nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/static/msg/clip.mp3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ID3" {
		t.Fatalf("unexpected audio response %d %q", resp.StatusCode, body)
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy, got %d", health.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := New(Config{AllowedOrigins: []string{"https://viewer.example.com", "localhost:5000"}}, logging.Discard(), nil)
	cases := []struct {
		origin string
		want   bool
	}{
		{origin: "", want: true},
		{origin: "https://viewer.example.com/", want: true},
		{origin: "http://localhost:5000", want: true},
		{origin: "https://evil.example.com", want: false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := h.checkOrigin(req); got != tc.want {
			t.Fatalf("origin %q: expected %v, got %v", tc.origin, tc.want, got)
		}
	}
}

func TestStartReportsListenAddr(t *testing.T) {
	h := New(Config{ServerAddr: "127.0.0.1:0"}, logging.Discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.Stop()
	addr, _ := h.ReadyFields()["listen_addr"].(string)
	if addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("expected resolved listen addr, got %q", addr)
	}
	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
}

func TestHubOutlivesCancelledStartContext(t *testing.T) {
	h := New(Config{ServerAddr: "127.0.0.1:0"}, logging.Discard(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := h.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)
	addr, _ := h.ReadyFields()["listen_addr"].(string)
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("expected hub to keep serving until Stop: %v", err)
	}
	resp.Body.Close()

	if err := h.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := client.Get("http://" + addr + "/health"); err == nil {
		t.Fatalf("expected stopped hub to refuse requests")
	}
}
