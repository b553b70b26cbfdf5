package wire

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// ioTimeout bounds a single request/response exchange. Device writes in the
// daemon are paced in tens of milliseconds, so a stuck exchange this long
// means the daemon is gone or wedged.
const ioTimeout = 10 * time.Second

// Client is a connection to the hintsd daemon. A mutex serializes Do calls so
// the connection never interleaves two requests; the protocol is strictly
// request-then-response.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the daemon socket. A missing socket or refused connection
// means the daemon is not running; callers should surface that, not retry.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Do sends one request and reads its response.
func (c *Client) Do(req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return Response{}, fmt.Errorf("wire: client is closed")
	}

	if err := c.conn.SetDeadline(time.Now().Add(ioTimeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	if err := EncodeRequest(c.conn, req); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	resp, err := DecodeResponse(c.conn)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Close closes the underlying connection. Safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
