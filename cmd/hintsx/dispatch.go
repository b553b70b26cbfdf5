package main

import "hints/internal/wire"

// ============================================================================
// Action Dispatcher
// ============================================================================
// Translates committed actions into daemon requests. Pure translation: the
// session loop sends the requests and owns the connection.
// ============================================================================

// openDrag is a button held down by a drag commit, waiting for the follow-up
// commit that releases it.
type openDrag struct {
	button clickButton
}

// buildRequests maps one commitment to its wire requests and the resulting
// drag state.
//
// While a drag is open, any element-addressed commit glides the pointer to
// that element and releases the held button there; the original modifiers of
// the follow-up are irrelevant. Moves and scrolls pass through with the drag
// still held, which is how mid-drag adjustments work.
func buildRequests(c commitment, drag *openDrag, movePixels int32) ([]wire.Request, *openDrag) {
	if drag != nil && c.hasElement {
		x, y := c.element.Center()
		return []wire.Request{
			wire.Move{DX: x, DY: y, Absolute: true},
			dragRelease(drag),
		}, nil
	}

	switch act := c.act.(type) {
	case actionClick:
		x, y := c.element.Center()
		states := make([]wire.ButtonState, 0, act.Repeat*2)
		for i := uint32(0); i < act.Repeat; i++ {
			states = append(states, wire.StateDown, wire.StateUp)
		}
		return []wire.Request{wire.Click{
			X:        x,
			Y:        y,
			Button:   wireButton(act.Button),
			States:   states,
			Repeat:   1,
			Absolute: true,
		}}, nil

	case actionDrag:
		x, y := c.element.Center()
		return []wire.Request{wire.Click{
			X:        x,
			Y:        y,
			Button:   wireButton(act.Button),
			States:   []wire.ButtonState{wire.StateDown},
			Repeat:   1,
			Absolute: true,
		}}, &openDrag{button: act.Button}

	case actionHover:
		x, y := c.element.Center()
		return []wire.Request{wire.Move{DX: x, DY: y, Absolute: true}}, nil

	case actionMove:
		dx, dy := moveDelta(act.Direction, movePixels)
		return []wire.Request{wire.Move{DX: dx, DY: dy, Steps: act.Steps}}, drag

	case actionScroll:
		return []wire.Request{wire.Scroll{
			Direction: scrollDirection(act.Direction),
			Steps:     act.Steps,
		}}, drag

	default:
		return nil, drag
	}
}

// dragRelease is the in-place release that closes an open drag. Also used as
// the safety release when a session ends with a button still held.
func dragRelease(d *openDrag) wire.Request {
	return wire.Click{
		Button: wireButton(d.button),
		States: []wire.ButtonState{wire.StateUp},
		Repeat: 1,
	}
}

func wireButton(b clickButton) wire.Button {
	switch b {
	case buttonRight:
		return wire.ButtonRight
	case buttonMiddle:
		return wire.ButtonMiddle
	default:
		return wire.ButtonLeft
	}
}

func moveDelta(d direction, pixels int32) (dx, dy int32) {
	switch d {
	case dirLeft:
		return -pixels, 0
	case dirRight:
		return pixels, 0
	case dirUp:
		return 0, -pixels
	default:
		return 0, pixels
	}
}

func scrollDirection(d direction) wire.ScrollDirection {
	switch d {
	case dirUp:
		return wire.ScrollUp
	case dirDown:
		return wire.ScrollDown
	case dirLeft:
		return wire.ScrollLeft
	default:
		return wire.ScrollRight
	}
}
