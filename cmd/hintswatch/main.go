package main

// hintswatch connects to a hintsx overlay bridge and prints the envelope
// stream, one line per message. Handy for debugging overlay integration and
// for watching what the matcher does with your keystrokes without a real
// overlay attached.

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// reconnect backoff bounds; the bridge comes and goes with every hintsx
// session, so retrying forever is the point.
const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

func main() {
	var (
		bridgeURL = flag.String("url", "ws://127.0.0.1:9311/overlay", "hintsx bridge websocket URL")
		raw       = flag.Bool("raw", false, "Print frames verbatim instead of one summary line each")
		once      = flag.Bool("once", false, "Exit when the connection closes instead of reconnecting")
	)
	flag.Parse()

	u, err := url.Parse(*bridgeURL)
	if err != nil {
		log.Fatalf("invalid bridge URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		backoff := initialBackoff
		for {
			connected, err := listenOnce(u.String(), *raw)
			if err != nil {
				log.Printf("bridge: %v", err)
			}
			if *once {
				return
			}
			if connected {
				backoff = initialBackoff
			}
			log.Printf("reconnecting in %s...", backoff)
			select {
			case <-time.After(backoff):
			case <-sigc:
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
	case <-done:
	}
}

// listenOnce dials the bridge and prints messages until the connection
// drops. It reports whether the dial succeeded, so the caller can reset its
// backoff.
func listenOnce(wsURL string, raw bool) (connected bool, err error) {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.Dial(wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()
	log.Printf("connected to %s", wsURL)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				return true, fmt.Errorf("read: %w", err)
			}
			log.Printf("connection closed")
			return true, nil
		}
		if raw {
			fmt.Printf("%s\n", msg)
			continue
		}
		printEnvelope(msg)
	}
}

// envelope mirrors the bridge wire format.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// printEnvelope prints one message as a single "ts type payload" line. The
// payload is compacted JSON; unparseable frames print verbatim.
func printEnvelope(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		fmt.Printf("[RAW] %s\n", msg)
		return
	}
	ts := ""
	if env.Ts != nil {
		ts = env.Ts.Local().Format("15:04:05.000") + " "
	}
	if len(env.Data) == 0 {
		fmt.Printf("%s%s\n", ts, env.Type)
		return
	}
	fmt.Printf("%s%-16s %s\n", ts, env.Type, env.Data)
}
