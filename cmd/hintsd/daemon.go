package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"hints/internal/wire"
)

// ============================================================================
// Socket Server - Unix Domain Socket Interface
// ============================================================================
// Clients connect to a well-known socket path and exchange binary frames, one
// request per response, strictly alternating. Multiple clients may be
// connected at once; their requests are serialized by the execution queue,
// not by the connection layer.
//
// A frame that fails to decode is answered with Error(Malformed) and the
// connection stays open; the failure never affects other connections or other
// requests on the same connection.
// ============================================================================

// runSocketServer owns the socket file lifecycle: it creates the socket at
// startup, removes it at shutdown, and accepts connections until ctx is
// canceled.
func runSocketServer(ctx context.Context, socketPath string, exec *executor, logger *slog.Logger) error {
	// Remove a stale socket from a previous run.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// The daemon runs privileged; the socket is the unprivileged side's way in.
	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("listener closed")
				return nil
			}
			logger.Error("accept error", "error", err)
			continue
		}

		go handleConn(conn, exec, logger)
	}
}

// handleConn serves one client: decode a request, submit it to the execution
// queue, write the response, repeat until the client hangs up.
func handleConn(conn net.Conn, exec *executor, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("client connected")

	for {
		req, err := wire.DecodeRequest(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Debug("client disconnected")
				return
			}
			if errors.Is(err, wire.ErrMalformed) {
				logger.Warn("malformed request", "error", err)
				if werr := wire.EncodeResponse(conn, wire.ErrResponse(wire.ErrorMalformed)); werr != nil {
					logger.Debug("client gone after malformed request", "error", werr)
					return
				}
				continue
			}
			logger.Warn("read request", "error", err)
			return
		}

		logger.Debug("request received", "request", req.String())

		resp := exec.submit(req)

		if err := wire.EncodeResponse(conn, resp); err != nil {
			// Executed but unreported; the client gave up waiting. Nothing to
			// roll back: injected events cannot be un-sent.
			logger.Warn("write response", "request", req.String(), "error", err)
			return
		}

		if !resp.Ok() {
			logger.Warn("request failed", "request", req.String(), "kind", resp.Kind.String())
		}
	}
}
