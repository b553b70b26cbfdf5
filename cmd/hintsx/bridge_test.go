package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

func testBridgeConfig() BridgeConfig {
	return BridgeConfig{SendBuf: 8, BroadcastBuf: 16, PushIntervalMS: 20}
}

// startBridge runs a bridge on an httptest server and returns it with a
// dialer-ready URL.
func startBridge(t *testing.T, cfg BridgeConfig) (*bridge, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	b := newBridge(setupLogger(LogLevelError), cfg)
	go b.hub.Run(ctx)
	go b.runPendingPusher(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/overlay", b.handleOverlay(ctx))
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return b, "ws" + strings.TrimPrefix(srv.URL, "http") + "/overlay"
}

func dialBridge(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := d.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func clientCount(b *bridge) int {
	b.hub.mu.Lock()
	defer b.hub.mu.Unlock()
	return len(b.hub.clients)
}

func TestBridgeFansOutAnnouncements(t *testing.T) {
	b, url := startBridge(t, testBridgeConfig())

	c1 := dialBridge(t, url)
	c2 := dialBridge(t, url)
	waitUntil(t, 2*time.Second, func() bool { return clientCount(b) == 2 }, "both clients registered")

	b.Announce("session_started", sessionStartedData{
		SessionID: "test",
		Region:    scanRegion{Width: 100, Height: 100},
		Hints:     []hintGeometry{{Label: "a", Width: 10, Height: 10}},
	})

	for _, conn := range []*websocket.Conn{c1, c2} {
		env := readEnvelope(t, conn)
		if env.Type != "session_started" {
			t.Errorf("envelope type = %q, want session_started", env.Type)
		}
		var data sessionStartedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if data.SessionID != "test" || len(data.Hints) != 1 {
			t.Errorf("data = %+v", data)
		}
	}
}

func TestBridgeForwardsKeys(t *testing.T) {
	b, url := startBridge(t, testBridgeConfig())
	conn := dialBridge(t, url)
	waitUntil(t, 2*time.Second, func() bool { return clientCount(b) == 1 }, "client registered")

	msg := `{"type":"key","data":{"key":"a","shift":true}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case k := <-b.Keys():
		want := keystroke{Key: 'a', Shift: true}
		if k != want {
			t.Errorf("keystroke = %+v, want %+v", k, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for forwarded keystroke")
	}
}

func TestBridgeKeyNameEscape(t *testing.T) {
	d := keyEventData{Key: "escape"}
	k, ok := d.toKeystroke()
	if !ok || k.Key != keyEscape {
		t.Fatalf("toKeystroke(escape) = (%+v, %v)", k, ok)
	}

	// Uppercase single characters fold to Shift+lowercase.
	d = keyEventData{Key: "B"}
	k, ok = d.toKeystroke()
	if !ok || k.Key != 'b' || !k.Shift {
		t.Fatalf("toKeystroke(B) = (%+v, %v)", k, ok)
	}

	// Unknown multi-character names are dropped.
	if _, ok := (keyEventData{Key: "F13"}).toKeystroke(); ok {
		t.Fatal("expected F13 to be rejected")
	}
}

// A client that stops draining its send queue is disconnected instead of
// blocking broadcasts to everyone else.
func TestHubEvictsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(setupLogger(LogLevelError), BridgeConfig{SendBuf: 1, BroadcastBuf: 16})
	go hub.Run(ctx)

	// No pumps: the send buffer fills after one message.
	slow := NewClient(hub, nil, "slow", setupLogger(LogLevelError))
	hub.register <- slow
	waitUntil(t, 2*time.Second, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 1
	}, "client registered")

	hub.BroadcastBytes([]byte("one"))
	hub.BroadcastBytes([]byte("two")) // buffer full: eviction

	waitUntil(t, 2*time.Second, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 0
	}, "slow client evicted")

	// The send channel is closed on eviction, after the buffered message.
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Fatal("send channel still open after eviction")
	}
}

// Bursty pending updates coalesce: one push per interval, latest wins.
func TestBridgeCoalescesPendingUpdates(t *testing.T) {
	b, url := startBridge(t, BridgeConfig{SendBuf: 8, BroadcastBuf: 16, PushIntervalMS: 40})
	conn := dialBridge(t, url)
	waitUntil(t, 2*time.Second, func() bool { return clientCount(b) == 1 }, "client registered")

	b.PushPending(pendingChangedData{Buffer: "a", Candidates: 3})
	b.PushPending(pendingChangedData{Buffer: "ab", Candidates: 2})
	b.PushPending(pendingChangedData{Buffer: "abc", Candidates: 1})

	env := readEnvelope(t, conn)
	if env.Type != "pending_changed" {
		t.Fatalf("envelope type = %q, want pending_changed", env.Type)
	}
	var data pendingChangedData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Buffer != "abc" || data.Candidates != 1 {
		t.Errorf("data = %+v, want the latest update only", data)
	}

	// Nothing further: the earlier updates were coalesced away.
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, msg, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected extra message: %s", msg)
	}
}
