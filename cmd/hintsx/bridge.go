package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Overlay bridge: hub + per-client pumps + pending pusher
// ============================================================================
//
// The overlay renderer is a separate process. It connects here over a
// websocket, draws whatever the engine announces, and forwards the user's
// keystrokes back. This file implements:
//   - A Hub that tracks connected overlay clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A pusher loop that coalesces bursty pending_changed updates
//
// Design constraints:
//   - The session loop stays single-threaded; the bridge only hands it
//     keystrokes through a channel and serializes outbound announcements.
//   - Slow clients must be disconnected if they can't keep up.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//
// ============================================================================

// envelope is the wire format envelope for bridge messages, both directions.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// hintGeometry is one label with its element's box, for the overlay to draw.
type hintGeometry struct {
	Label  string `json:"label"`
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
	Width  int32  `json:"width"`
	Height int32  `json:"height"`
}

// sessionStartedData is the JSON `data` payload for "session_started".
type sessionStartedData struct {
	SessionID string         `json:"session_id"`
	Region    scanRegion     `json:"region"`
	Hints     []hintGeometry `json:"hints"`
}

// pendingChangedData is the JSON `data` payload for "pending_changed".
type pendingChangedData struct {
	Buffer     string `json:"buffer"`
	Repeat     int    `json:"repeat"`
	Shift      bool   `json:"shift"`
	Alt        bool   `json:"alt"`
	Ctrl       bool   `json:"ctrl"`
	Candidates int    `json:"candidates"`
}

// sessionEndedData is the JSON `data` payload for "session_ended".
type sessionEndedData struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"` // committed, cancelled, empty, failed
	Action    string `json:"action,omitempty"`
}

// keyEventData is the inbound `data` payload for "key" envelopes.
type keyEventData struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Ctrl  bool   `json:"ctrl"`
}

// toKeystroke decodes the overlay's key name. Single characters map
// directly; "escape" is the cancel keystroke.
func (d keyEventData) toKeystroke() (keystroke, bool) {
	if d.Key == "escape" || d.Key == "esc" {
		return keystroke{Key: keyEscape}, true
	}
	runes := []rune(d.Key)
	if len(runes) != 1 {
		return keystroke{}, false
	}
	k := keystroke{Key: runes[0], Shift: d.Shift, Alt: d.Alt, Ctrl: d.Ctrl}
	if k.Key >= 'A' && k.Key <= 'Z' {
		k.Key += 'a' - 'A'
		k.Shift = true
	}
	return k, true
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg BridgeConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("overlay client connected", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Avoid mutating the clients map while ranging over it.
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("overlay client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("bridge broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					if code, text, ok := closeStatus(err); ok {
						c.logger.Debug("bridge writePump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
					} else {
						c.logger.Debug("bridge writePump exiting (write error)", "remote_addr", c.remoteAddr, "error", err)
					}
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes inbound key envelopes and forwards them to the session's
// keystroke channel. It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context, keys chan<- keystroke) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				if code, text, ok := closeStatus(err); ok {
					c.logger.Debug("bridge readPump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
				} else {
					c.logger.Debug("bridge readPump exiting (read error)", "remote_addr", c.remoteAddr, "error", err)
				}
			}
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.logger.Warn("bridge client sent invalid json", "remote_addr", c.remoteAddr, "error", err)
			continue
		}
		if env.Type != "key" {
			c.logger.Debug("bridge ignoring envelope", "type", env.Type)
			continue
		}
		var ke keyEventData
		if err := json.Unmarshal(env.Data, &ke); err != nil {
			c.logger.Warn("bridge key envelope invalid", "remote_addr", c.remoteAddr, "error", err)
			continue
		}
		k, ok := ke.toKeystroke()
		if !ok {
			c.logger.Debug("bridge ignoring key", "key", ke.Key)
			continue
		}

		select {
		case keys <- k:
		case <-ctx.Done():
			return
		}
	}
}

// ============================================================================
// Bridge server
// ============================================================================

var upgrader = websocket.Upgrader{
	// The bridge binds localhost; the overlay is a local process.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bridge is the engine-side endpoint overlay clients talk to. One bridge per
// hintsx invocation.
type bridge struct {
	logger *slog.Logger
	cfg    BridgeConfig
	hub    *Hub

	keys    chan keystroke
	pending chan pendingChangedData
}

func newBridge(logger *slog.Logger, cfg BridgeConfig) *bridge {
	return &bridge{
		logger:  logger,
		cfg:     cfg,
		hub:     NewHub(logger, cfg),
		keys:    make(chan keystroke, 16),
		pending: make(chan pendingChangedData, 64),
	}
}

// Run serves /overlay until ctx is canceled, running the hub and the pending
// pusher alongside the HTTP server.
func (b *bridge) Run(ctx context.Context) error {
	go b.hub.Run(ctx)
	go b.runPendingPusher(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/overlay", b.handleOverlay(ctx))

	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", b.cfg.Port),
		Handler: mux,
	}

	b.logger.Info("bridge listening", "addr", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("bridge server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("bridge shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}

// handleOverlay upgrades and registers one overlay client.
func (b *bridge) handleOverlay(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn("bridge upgrade failed", "error", err)
			return
		}

		client := NewClient(b.hub, conn, r.RemoteAddr, b.logger)

		// Register first so announcements reach the client immediately.
		b.hub.register <- client

		// The pumps outlive the HTTP handler. Do not tie them to r.Context():
		// net/http cancels it when the handler returns, which would kill the
		// connection with an abnormal closure.
		go client.writePump(ctx)
		go client.readPump(ctx, b.keys)
	}
}

// Announce serializes and broadcasts one envelope immediately.
func (b *bridge) Announce(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Warn("bridge marshal failed", "type", msgType, "error", err)
		return
	}
	now := time.Now().UTC()
	msg, err := json.Marshal(envelope{Type: msgType, Ts: &now, Data: raw})
	if err != nil {
		b.logger.Warn("bridge marshal failed", "type", msgType, "error", err)
		return
	}
	b.hub.BroadcastBytes(msg)
}

// PushPending enqueues a pending_changed update for the coalescing pusher.
// Never blocks; latest-wins semantics make dropping older entries harmless.
func (b *bridge) PushPending(data pendingChangedData) {
	for {
		select {
		case b.pending <- data:
			return
		default:
			// Queue full: discard the oldest pending update and retry.
			select {
			case <-b.pending:
			default:
			}
		}
	}
}

// runPendingPusher rate-limits pending_changed broadcasts: the latest update
// is flushed at most once per push interval, even while updates keep
// arriving. Keystroke autorepeat on direction keys produces exactly that
// burst shape.
func (b *bridge) runPendingPusher(ctx context.Context) {
	interval := time.Duration(b.cfg.PushIntervalMS) * time.Millisecond

	var pending *pendingChangedData
	var timer *time.Timer
	var timerCh <-chan time.Time

	flush := func() {
		if pending == nil {
			return
		}
		b.Announce("pending_changed", *pending)
		pending = nil
	}

	stopTimer := func() {
		if timer == nil {
			timerCh = nil
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			stopTimer()
			return

		case <-timerCh:
			flush()
			stopTimer()

		case data := <-b.pending:
			pending = &data
			if interval <= 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(interval)
				timerCh = timer.C
			}
		}
	}
}

// Keys exposes the inbound keystroke stream for the session loop.
func (b *bridge) Keys() <-chan keystroke { return b.keys }

// bridgeKeySource adapts the bridge to the keySource interface.
type bridgeKeySource struct {
	bridge *bridge
}

func (s *bridgeKeySource) Start(ctx context.Context) (<-chan keystroke, error) {
	return s.bridge.Keys(), nil
}

func (s *bridgeKeySource) Stop() error { return nil }
