package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"hints/internal/wire"
)

// ============================================================================
// Execution Queue
// ============================================================================
// Every request from every connection funnels into one FIFO queue drained by
// a single executor goroutine. The executor is the only code that touches the
// injection devices: interleaved button presses from two callers would leave
// the virtual mouse in a corrupt physical state, so requests are executed
// strictly in arrival order, never concurrently.
//
// Connection handlers block on a per-request reply channel while waiting for
// their turn. A client disconnecting does not retract a request that is
// already queued; button events cannot be un-sent.
// ============================================================================

// pacing holds the delays between injected events.
type pacing struct {
	writePause  time.Duration // after each positioning/scroll batch
	buttonPause time.Duration // between button state transitions
	settle      time.Duration // after positioning, before button events
}

// displayBounds is the known screen size for absolute coordinate validation.
// A zero width or height disables the check.
type displayBounds struct {
	width  int32
	height int32
}

func (b displayBounds) contains(x, y int32) bool {
	if b.width <= 0 || b.height <= 0 {
		return true
	}
	return x >= 0 && x < b.width && y >= 0 && y < b.height
}

// queuedRequest pairs a decoded request with the channel its connection
// handler is blocked on.
type queuedRequest struct {
	req   wire.Request
	reply chan wire.Response
}

// executor owns the injection devices and drains the queue.
//
// Single owner: dev is touched only by the run goroutine. devReady mirrors
// its availability for the status endpoint.
type executor struct {
	queue      chan queuedRequest
	openDevice func() (injector, error)
	dev        injector
	devReady   atomic.Bool
	pacing     pacing
	bounds     displayBounds
	metrics    *daemonMetrics
	logger     *slog.Logger
}

func newExecutor(openDevice func() (injector, error), pc pacing, bounds displayBounds, metrics *daemonMetrics, logger *slog.Logger) *executor {
	return &executor{
		queue:      make(chan queuedRequest, defaultQueueDepth),
		openDevice: openDevice,
		pacing:     pc,
		bounds:     bounds,
		metrics:    metrics,
		logger:     logger,
	}
}

// submit enqueues a request and blocks until it has been executed.
// Called from connection handler goroutines.
func (e *executor) submit(req wire.Request) wire.Response {
	qr := queuedRequest{req: req, reply: make(chan wire.Response, 1)}
	e.queue <- qr
	e.metrics.queueDepth.Set(float64(len(e.queue)))
	return <-qr.reply
}

// run drains the queue until ctx is canceled or a device write fails.
// A failed write is fatal: the device state is unknown and every further
// write would fail the same way, so the daemon exits rather than retrying
// silently.
func (e *executor) run(ctx context.Context) error {
	// First open attempt at startup. Failure is not fatal: the daemon keeps
	// serving DeviceUnavailable so an operator can fix /dev/uinput
	// permissions and retry without a restart.
	e.tryOpen()

	defer e.closeDevice()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return nil

		case qr := <-e.queue:
			e.metrics.queueDepth.Set(float64(len(e.queue)))

			start := time.Now()
			resp, fatal := e.execute(qr.req)
			e.metrics.observe(qr.req, resp, time.Since(start))

			qr.reply <- resp

			if fatal != nil {
				e.drain()
				return fmt.Errorf("injection device write: %w", fatal)
			}
		}
	}
}

// execute runs one request. The returned error is non-nil only for fatal
// device failures; per-request problems are carried in the response.
func (e *executor) execute(req wire.Request) (wire.Response, error) {
	// Validate bounds before touching the device.
	switch r := req.(type) {
	case wire.Click:
		if r.Absolute && !e.bounds.contains(r.X, r.Y) {
			return wire.ErrResponse(wire.ErrorOutOfRange), nil
		}
	case wire.Move:
		if r.Absolute && !e.bounds.contains(r.DX, r.DY) {
			return wire.ErrResponse(wire.ErrorOutOfRange), nil
		}
	}

	if e.dev == nil && !e.tryOpen() {
		return wire.ErrResponse(wire.ErrorDeviceUnavailable), nil
	}

	var err error
	switch r := req.(type) {
	case wire.Click:
		err = e.runClick(r)
	case wire.Move:
		err = e.runMove(r)
	case wire.Scroll:
		err = e.runScroll(r)
	default:
		// DecodeRequest never produces anything else.
		return wire.ErrResponse(wire.ErrorMalformed), nil
	}
	if err != nil {
		e.logger.Error("device write failed", "request", req.String(), "error", err)
		return wire.ErrResponse(wire.ErrorDeviceUnavailable), err
	}
	return wire.OkResponse(), nil
}

func (e *executor) runClick(c wire.Click) error {
	if c.Absolute {
		if err := e.dev.PositionAbs(c.X, c.Y); err != nil {
			return err
		}
		e.sleep(e.pacing.settle)
	} else if c.X != 0 || c.Y != 0 {
		if err := e.dev.MoveRel(c.X, c.Y); err != nil {
			return err
		}
		e.sleep(e.pacing.settle)
	}

	for rep := uint32(0); rep < c.Repeat; rep++ {
		for i, state := range c.States {
			if rep > 0 || i > 0 {
				e.sleep(e.pacing.buttonPause)
			}
			if err := e.dev.Button(c.Button, state); err != nil {
				return err
			}
		}
	}

	e.sleep(e.pacing.writePause)
	return nil
}

func (e *executor) runMove(m wire.Move) error {
	if m.Absolute {
		if err := e.dev.PositionAbs(m.DX, m.DY); err != nil {
			return err
		}
		e.sleep(e.pacing.writePause)
		return nil
	}

	steps := m.Steps
	if steps == 0 {
		steps = 1
	}
	for i := uint32(0); i < steps; i++ {
		if i > 0 {
			e.sleep(e.pacing.writePause)
		}
		if err := e.dev.MoveRel(m.DX, m.DY); err != nil {
			return err
		}
	}
	e.sleep(e.pacing.writePause)
	return nil
}

func (e *executor) runScroll(s wire.Scroll) error {
	steps := s.Steps
	if steps == 0 {
		steps = 1
	}
	for i := uint32(0); i < steps; i++ {
		if i > 0 {
			e.sleep(e.pacing.writePause)
		}
		if err := e.dev.Wheel(s.Direction); err != nil {
			return err
		}
	}
	e.sleep(e.pacing.writePause)
	return nil
}

// tryOpen attempts to open the injection devices, reporting success.
func (e *executor) tryOpen() bool {
	dev, err := e.openDevice()
	if err != nil {
		e.logger.Warn("injection device unavailable", "error", err,
			"tip", "check permissions on /dev/uinput (udev rule or run as root)")
		return false
	}
	e.dev = dev
	e.devReady.Store(true)
	e.logger.Info("injection devices ready")
	return true
}

func (e *executor) closeDevice() {
	if e.dev == nil {
		return
	}
	if err := e.dev.Close(); err != nil {
		e.logger.Warn("close injection devices", "error", err)
	}
	e.dev = nil
	e.devReady.Store(false)
}

// drain answers everything still queued so no connection handler is left
// blocked once the executor stops.
func (e *executor) drain() {
	for {
		select {
		case qr := <-e.queue:
			qr.reply <- wire.ErrResponse(wire.ErrorDeviceUnavailable)
		default:
			return
		}
	}
}

// health is the status endpoint's snapshot of executor state.
func (e *executor) health() healthStatus {
	device := "unavailable"
	if e.devReady.Load() {
		device = "ready"
	}
	return healthStatus{
		QueueDepth: len(e.queue),
		Device:     device,
	}
}

func (e *executor) sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
