package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/presentation"
)

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	AudioDir       string   `mapstructure:"audio_dir"`
	AudioPath      string   `mapstructure:"audio_path"`
	WebDir         string   `mapstructure:"web_dir"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SendBuffer     int      `mapstructure:"send_buffer"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":5000"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.AudioPath == "" {
		c.AudioPath = "/static/msg/"
	}
	if !strings.HasSuffix(c.AudioPath, "/") {
		c.AudioPath += "/"
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Hub broadcasts presentation events to every connected viewer and serves
// the synthesized audio they reference.
type Hub struct {
	cfg      Config
	server   *http.Server
	upgrader websocket.Upgrader
	obs      metrics.Observer
	logger   *slog.Logger

	mu      sync.Mutex
	viewers map[string]*viewer
	addr    string

	draining atomic.Bool
}

func New(cfg Config, logger *slog.Logger, obs metrics.Observer) *Hub {
	cfg = cfg.withDefaults()
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	h := &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		obs:     obs,
		logger:  logging.NewComponentLogger(logger, "hub"),
		viewers: make(map[string]*viewer),
	}
	h.upgrader.CheckOrigin = h.checkOrigin
	return h
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) ReadyFields() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]any{
		"listen_addr": h.addr,
		"ws_path":     h.cfg.WebsocketPath,
		"audio_path":  h.cfg.AudioPath,
	}
}

// Handler exposes the hub routes without starting a listener.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(h.cfg.WebsocketPath, h)
	if h.cfg.AudioDir != "" {
		mux.Handle(h.cfg.AudioPath, http.StripPrefix(h.cfg.AudioPath, http.FileServer(http.Dir(h.cfg.AudioDir))))
	}
	if h.cfg.WebDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(h.cfg.WebDir)))
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start listens on ServerAddr and serves until Stop is called. ctx only
// bounds the listen; the owner stops the hub after the final presentation
// events are out.
func (h *Hub) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.cfg.ServerAddr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.addr = ln.Addr().String()
	h.server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           h.Handler(),
	}
	server := h.server
	h.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("hub_server_error", "error", err.Error())
		}
	}()
	h.logger.Info("hub_listening", "addr", h.addr, "ws_path", h.cfg.WebsocketPath)
	return nil
}

// Stop closes the server and every viewer; events published afterwards are dropped.
func (h *Hub) Stop() error {
	if !h.draining.CompareAndSwap(false, true) {
		return nil
	}
	h.mu.Lock()
	server := h.server
	viewers := h.viewers
	h.viewers = make(map[string]*viewer)
	h.mu.Unlock()
	for _, v := range viewers {
		_ = v.close()
	}
	if server != nil {
		return server.Close()
	}
	return nil
}

// Viewers returns the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Publish broadcasts ev to every viewer. Slow viewers drop events rather than
// blocking the speaking participant.
func (h *Hub) Publish(_ context.Context, ev presentation.Event) error {
	if h.draining.Load() {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.mu.Lock()
	targets := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		targets = append(targets, v)
	}
	h.mu.Unlock()
	for _, v := range targets {
		if !v.enqueue(b) {
			metrics.Record(h.obs, metrics.EventSendDropped, 1, map[string]string{"viewer": v.id})
		}
	}
	return nil
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	v := &viewer{id: uuid.NewString(), conn: conn, sendCh: make(chan []byte, h.cfg.SendBuffer)}
	h.mu.Lock()
	h.viewers[v.id] = v
	h.mu.Unlock()
	h.logger.Info("viewer_connected", "viewer", v.id, "remote", r.RemoteAddr)
	go v.loop()

	// Viewers only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	delete(h.viewers, v.id)
	h.mu.Unlock()
	_ = v.close()
	h.logger.Info("viewer_disconnected", "viewer", v.id)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range h.cfg.AllowedOrigins {
		a := strings.TrimSpace(allowed)
		if a == "" {
			continue
		}
		a = strings.TrimRight(a, "/")
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

type viewer struct {
	id     string
	conn   *websocket.Conn
	sendCh chan []byte
	mu     sync.Mutex
	closed atomic.Bool
}

func (v *viewer) enqueue(msg []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed.Load() {
		return false
	}
	select {
	case v.sendCh <- msg:
		return true
	default:
		return false
	}
}

func (v *viewer) loop() {
	for msg := range v.sendCh {
		_ = v.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = v.conn.Close()
		}
	}
}

func (v *viewer) close() error {
	v.mu.Lock()
	if v.closed.CompareAndSwap(false, true) {
		close(v.sendCh)
	}
	v.mu.Unlock()
	return v.conn.Close()
}
