package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"hints/internal/wire"
)

// ============================================================================
// Session
// ============================================================================
// One hintsx invocation is one session: a frozen element snapshot, its label
// mapping, a matcher, and the in-progress drag state, alive from "hints
// shown" until an action resolves or the user cancels.
//
// Single owner: the run loop is the only goroutine touching session state.
// Key sources and the bridge talk to it through channels only.
// ============================================================================

// errDaemonRejected marks a session that reached the daemon but got an error
// response. The response kind is in the message; main maps this to exit 1.
var errDaemonRejected = errors.New("daemon rejected request")

// sessionOutcome is how a session ended.
type sessionOutcome int

const (
	outcomeCommitted sessionOutcome = iota
	outcomeCancelled
	outcomeKeysClosed
)

func (o sessionOutcome) String() string {
	switch o {
	case outcomeCommitted:
		return "committed"
	case outcomeCancelled:
		return "cancelled"
	case outcomeKeysClosed:
		return "keys_closed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type session struct {
	id      string
	hints   *hintMap
	matcher *matcher
	tracker *moveTracker
	drag    *openDrag

	client requestSender
	bridge *bridge // nil when no overlay bridge is running
	mouse  MouseConfig
	logger *slog.Logger

	lastAction string
}

// requestSender is the session's view of the daemon connection. The real
// implementation is *wire.Client; tests substitute a recorder.
type requestSender interface {
	Do(req wire.Request) (wire.Response, error)
}

func newSession(hints *hintMap, bindings directionBindings, client requestSender, br *bridge, mouse MouseConfig, logger *slog.Logger) *session {
	id := uuid.NewString()
	return &session{
		id:      id,
		hints:   hints,
		matcher: newMatcher(hints, bindings),
		tracker: newMoveTracker(),
		client:  client,
		bridge:  br,
		mouse:   mouse,
		logger:  logger.With("session", id),
	}
}

// run consumes keystrokes until a session-ending commit, a cancel, or the
// key stream closing.
//
// Move and scroll commits do not end the session: the matcher resets and the
// user keeps steering, which is what makes held-key pointer movement (and
// its velocity ramp-up) work. Click and hover commits end it. A drag commit
// holds the button, resets the matcher and waits for the follow-up commit
// that releases it.
func (s *session) run(ctx context.Context, keys <-chan keystroke) (sessionOutcome, error) {
	defer s.releaseDanglingDrag()

	for {
		var k keystroke
		var ok bool
		select {
		case <-ctx.Done():
			s.announceEnd("cancelled")
			return outcomeCancelled, ctx.Err()
		case k, ok = <-keys:
			if !ok {
				s.logger.Debug("key source closed")
				s.announceEnd("cancelled")
				return outcomeKeysClosed, nil
			}
		}

		res := s.matcher.step(k)

		if res.rejected {
			s.logger.Debug("keystroke rejected", "key", k.String(), "buffer", res.pending.buffer)
			continue
		}

		s.pushPending(res)

		switch res.state {
		case matchCancelled:
			s.logger.Info("session cancelled")
			s.announceEnd("cancelled")
			return outcomeCancelled, nil

		case matchCommitted:
			done, err := s.execute(*res.commit)
			if err != nil {
				s.announceEnd("failed")
				return outcomeCommitted, err
			}
			if done {
				s.announceEnd("committed")
				return outcomeCommitted, nil
			}
			// Steering or drag-open commit: back to idle for the next one.
			s.matcher.reset()
		}
	}
}

// execute sends one commitment's requests. It reports whether the session is
// finished afterwards.
func (s *session) execute(c commitment) (done bool, err error) {
	c = s.applyVelocity(c)

	requests, drag := buildRequests(c, s.drag, int32(s.mouse.MovePixels))
	s.drag = drag
	s.lastAction = c.act.String()

	s.logger.Info("action committed", "action", c.act.String(), "requests", len(requests))

	for _, req := range requests {
		resp, err := s.client.Do(req)
		if err != nil {
			return false, fmt.Errorf("send %s: %w", req.String(), err)
		}
		if !resp.Ok() {
			return false, fmt.Errorf("%w: %s: %s", errDaemonRejected, req.String(), resp.Kind)
		}
		s.logger.Debug("request executed", "request", req.String())
	}

	switch c.act.(type) {
	case actionMove, actionScroll:
		// Steering keeps the session open, drag held or not.
		return false, nil
	case actionDrag:
		s.logger.Info("drag held, awaiting release target")
		return false, nil
	default:
		// A click or hover ends the session, as does the element commit
		// that just released an open drag.
		return true, nil
	}
}

// applyVelocity scales a move commit once enough same-direction nudges land
// inside the velocity window. The boost multiplies the step count, so the
// daemon paces the longer distance as individual deltas instead of one jump.
func (s *session) applyVelocity(c commitment) commitment {
	mv, ok := c.act.(actionMove)
	if !ok || s.mouse.VelocityThreshold <= 0 {
		return c
	}
	recent := s.tracker.addStep(mv.Direction, s.mouse.VelocityWindowMS)
	if recent < s.mouse.VelocityThreshold {
		return c
	}
	boosted := mv.Steps * uint32(s.mouse.VelocityMultiplier)
	s.logger.Debug("velocity boost", "direction", mv.Direction.String(), "recent", recent, "steps", boosted)
	c.act = actionMove{Direction: mv.Direction, Steps: boosted}
	return c
}

// releaseDanglingDrag sends the safety release when the session ends with a
// button still held. Leaving a virtual button pressed wedges the whole
// desktop until the daemon restarts.
func (s *session) releaseDanglingDrag() {
	if s.drag == nil {
		return
	}
	s.logger.Warn("session ended with drag held, releasing button")
	if _, err := s.client.Do(dragRelease(s.drag)); err != nil {
		s.logger.Error("drag safety release failed", "error", err)
	}
	s.drag = nil
}

// announceStart tells overlay clients what to draw.
func (s *session) announceStart(region scanRegion) {
	if s.bridge == nil {
		return
	}
	hints := make([]hintGeometry, s.hints.len())
	for i, label := range s.hints.labels {
		e := s.hints.elements[i]
		hints[i] = hintGeometry{Label: label, X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}
	}
	s.bridge.Announce("session_started", sessionStartedData{
		SessionID: s.id,
		Region:    region,
		Hints:     hints,
	})
}

func (s *session) pushPending(res matchResult) {
	if s.bridge == nil {
		return
	}
	s.bridge.PushPending(pendingChangedData{
		Buffer:     res.pending.buffer,
		Repeat:     int(res.pending.repeat()),
		Shift:      res.pending.shift,
		Alt:        res.pending.alt,
		Ctrl:       res.pending.ctrl,
		Candidates: res.candidates,
	})
}

func (s *session) announceEnd(outcome string) {
	if s.bridge == nil {
		return
	}
	s.bridge.Announce("session_ended", sessionEndedData{
		SessionID: s.id,
		Outcome:   outcome,
		Action:    s.lastAction,
	})
}
