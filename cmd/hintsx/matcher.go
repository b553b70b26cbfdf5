package main

import "fmt"

// ============================================================================
// Keystroke Matcher
// ============================================================================
// One matcher per session, single-threaded: the session loop feeds it one
// keystroke at a time and every transition completes before the next
// keystroke is accepted.
//
// step() is a pure transition over the matcher's own fields: it performs no
// I/O and never touches anything outside the matcher. The session loop
// executes the side effects (dispatching requests, notifying the overlay)
// from the returned result.
// ============================================================================

// keyEscape is the decoded cancel keystroke.
const keyEscape = '\x1b'

// maxRepeatCount bounds the numeric prefix: two digits is plenty, and the
// expanded press/release sequence for a click must stay within one frame.
const maxRepeatCount = 99

// keystroke is one decoded key event with the modifier flags held while it
// was pressed. Sources normalize letters to lowercase, reporting an
// uppercase press as the lowercase key with Shift set.
type keystroke struct {
	Key   rune
	Shift bool
	Alt   bool
	Ctrl  bool
}

func (k keystroke) String() string {
	if k.Key == keyEscape {
		return "escape"
	}
	mods := ""
	if k.Ctrl {
		mods += "C-"
	}
	if k.Alt {
		mods += "A-"
	}
	if k.Shift {
		mods += "S-"
	}
	return fmt.Sprintf("%s%c", mods, k.Key)
}

// direction is a pointer move/scroll direction.
type direction int

const (
	dirLeft direction = iota
	dirDown
	dirUp
	dirRight
)

func (d direction) String() string {
	switch d {
	case dirLeft:
		return "left"
	case dirDown:
		return "down"
	case dirUp:
		return "up"
	case dirRight:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// directionBindings maps keys to directions, plus the session exit key.
type directionBindings struct {
	left  rune
	down  rune
	up    rune
	right rune
	exit  rune
}

func (b directionBindings) lookup(key rune) (direction, bool) {
	switch key {
	case b.left:
		return dirLeft, true
	case b.down:
		return dirDown, true
	case b.up:
		return dirUp, true
	case b.right:
		return dirRight, true
	default:
		return 0, false
	}
}

// ============================================================================
// Actions
// ============================================================================

// action is a resolved user intent, ready for dispatch.
type action interface {
	actionMarker()
	String() string
}

// actionClick is a click-family action against a labeled element.
// Repeat > 1 expands into repeated press/release pairs (2 = double click).
type actionClick struct {
	Button clickButton
	Repeat uint32
}

func (actionClick) actionMarker() {}
func (a actionClick) String() string {
	return fmt.Sprintf("click(button=%s repeat=%d)", a.Button, a.Repeat)
}

// actionDrag presses and holds at the element; the release is bound to a
// follow-up commit.
type actionDrag struct {
	Button clickButton
}

func (actionDrag) actionMarker() {}
func (a actionDrag) String() string {
	return fmt.Sprintf("drag(button=%s)", a.Button)
}

// actionHover positions the pointer on the element without any button event.
type actionHover struct{}

func (actionHover) actionMarker() {}
func (actionHover) String() string { return "hover" }

// actionMove nudges the pointer, Steps times.
type actionMove struct {
	Direction direction
	Steps     uint32
}

func (actionMove) actionMarker() {}
func (a actionMove) String() string {
	return fmt.Sprintf("move(%s steps=%d)", a.Direction, a.Steps)
}

// actionScroll turns the wheel, Steps detents.
type actionScroll struct {
	Direction direction
	Steps     uint32
}

func (actionScroll) actionMarker() {}
func (a actionScroll) String() string {
	return fmt.Sprintf("scroll(%s steps=%d)", a.Direction, a.Steps)
}

// clickButton is the engine-level button identity.
type clickButton int

const (
	buttonLeft clickButton = iota
	buttonRight
	buttonMiddle
)

func (b clickButton) String() string {
	switch b {
	case buttonLeft:
		return "left"
	case buttonRight:
		return "right"
	case buttonMiddle:
		return "middle"
	default:
		return fmt.Sprintf("button(%d)", int(b))
	}
}

// ============================================================================
// Matcher state machine
// ============================================================================

type matcherState int

const (
	matchIdle matcherState = iota
	matchAccumulatingCount
	matchAccumulatingLabel
	matchCommitted
	matchCancelled
)

func (s matcherState) String() string {
	switch s {
	case matchIdle:
		return "idle"
	case matchAccumulatingCount:
		return "accumulating_count"
	case matchAccumulatingLabel:
		return "accumulating_label"
	case matchCommitted:
		return "committed"
	case matchCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// pendingInput is the accumulated interpretation of keystrokes so far.
type pendingInput struct {
	count  int // 0 means no prefix typed; effective repeat is 1
	shift  bool
	alt    bool
	ctrl   bool
	buffer string
}

// repeat is the effective repeat count once committed.
func (p pendingInput) repeat() uint32 {
	if p.count < 1 {
		return 1
	}
	return uint32(p.count)
}

// commitment is a resolved action plus its target, when label-addressed.
type commitment struct {
	act        action
	element    Element
	hasElement bool
}

// matchResult reports what one keystroke did.
type matchResult struct {
	state      matcherState
	commit     *commitment // non-nil only when state == matchCommitted
	rejected   bool        // keystroke did not fit and was dropped
	pending    pendingInput
	candidates int // labels matching the current buffer as a prefix
}

type matcher struct {
	hints    *hintMap
	bindings directionBindings
	state    matcherState
	pending  pendingInput
}

func newMatcher(hints *hintMap, bindings directionBindings) *matcher {
	return &matcher{hints: hints, bindings: bindings}
}

// reset returns the matcher to idle with the same label mapping. Used for
// the follow-up commit while a drag is held open.
func (m *matcher) reset() {
	m.state = matchIdle
	m.pending = pendingInput{}
}

// step consumes one keystroke.
//
// Interpretation order: cancel key, digits (repeat prefix), direction keys
// (only while no label character has been typed), label characters. A
// keystroke that fits none of these is rejected and changes nothing.
func (m *matcher) step(k keystroke) matchResult {
	if m.state == matchCommitted || m.state == matchCancelled {
		return m.reject()
	}

	if k.Key == keyEscape || (m.bindings.exit != 0 && k.Key == m.bindings.exit) {
		m.state = matchCancelled
		m.pending = pendingInput{}
		return m.result(nil)
	}

	if k.Key >= '0' && k.Key <= '9' && m.pending.buffer == "" {
		d := int(k.Key - '0')
		if m.pending.count == 0 && d == 0 {
			// A leading zero would read as "repeat zero times".
			return m.reject()
		}
		if m.pending.count*10+d > maxRepeatCount {
			return m.reject()
		}
		m.pending.count = m.pending.count*10 + d
		m.recordModifiers(k)
		m.state = matchAccumulatingCount
		return m.result(nil)
	}

	// Direction keys act only before any label input. A session whose labels
	// collide with the bindings resolves in favor of the direction; rebind
	// the keys or pick a different alphabet to avoid the shadowing.
	if m.pending.buffer == "" {
		if dir, ok := m.bindings.lookup(k.Key); ok {
			var act action
			if k.Shift {
				act = actionScroll{Direction: dir, Steps: m.pending.repeat()}
			} else {
				act = actionMove{Direction: dir, Steps: m.pending.repeat()}
			}
			m.state = matchCommitted
			return m.result(&commitment{act: act})
		}
	}

	next := m.pending.buffer + string(k.Key)
	candidates, exact := m.hints.matchPrefix(next)
	if candidates == 0 {
		// No label continues this way: drop the keystroke, keep everything
		// else exactly as it was.
		return m.reject()
	}

	if m.pending.buffer == "" {
		// Modifiers freeze with the first label character.
		m.recordModifiers(k)
	}
	m.pending.buffer = next

	if exact && candidates == 1 {
		element, _ := m.hints.lookup(next)
		act := m.commitAction()
		m.state = matchCommitted
		return m.result(&commitment{act: act, element: element, hasElement: true})
	}

	m.state = matchAccumulatingLabel
	return m.result(nil)
}

// recordModifiers accumulates held modifier flags. Not called once the label
// buffer is non-empty.
func (m *matcher) recordModifiers(k keystroke) {
	m.pending.shift = m.pending.shift || k.Shift
	m.pending.alt = m.pending.alt || k.Alt
	m.pending.ctrl = m.pending.ctrl || k.Ctrl
}

// commitAction maps the frozen modifiers to the committed action for a
// label match. Shift wins over Alt wins over Ctrl when several are held.
// Repeat applies to clicks only; drag and hover ignore it.
func (m *matcher) commitAction() action {
	switch {
	case m.pending.shift:
		return actionClick{Button: buttonRight, Repeat: m.pending.repeat()}
	case m.pending.alt:
		return actionDrag{Button: buttonLeft}
	case m.pending.ctrl:
		return actionHover{}
	default:
		return actionClick{Button: buttonLeft, Repeat: m.pending.repeat()}
	}
}

func (m *matcher) result(c *commitment) matchResult {
	candidates, _ := m.hints.matchPrefix(m.pending.buffer)
	return matchResult{state: m.state, commit: c, pending: m.pending, candidates: candidates}
}

func (m *matcher) reject() matchResult {
	candidates, _ := m.hints.matchPrefix(m.pending.buffer)
	return matchResult{state: m.state, rejected: true, pending: m.pending, candidates: candidates}
}
