package main

import "testing"

func testBindings() directionBindings {
	return directionBindings{left: 'h', down: 'j', up: 'k', right: 'l'}
}

// testMatcher builds a matcher over the given labels, with elements placed
// so each is identifiable by its X coordinate (index*100).
func testMatcher(t *testing.T, labels ...string) *matcher {
	t.Helper()
	elements := make([]Element, len(labels))
	for i := range elements {
		elements[i] = Element{X: int32(i * 100), Width: 10, Height: 10}
	}
	hints, err := newHintMap(elements, labels)
	if err != nil {
		t.Fatalf("new hint map: %v", err)
	}
	return newMatcher(hints, testBindings())
}

func key(r rune) keystroke { return keystroke{Key: r} }

func typeAll(m *matcher, keys ...keystroke) matchResult {
	var res matchResult
	for _, k := range keys {
		res = m.step(k)
	}
	return res
}

func TestMatcherCommitsUniqueLabel(t *testing.T) {
	m := testMatcher(t, "a", "b", "c")

	res := m.step(key('b'))
	if res.state != matchCommitted {
		t.Fatalf("state = %v, want committed", res.state)
	}
	if res.commit == nil || !res.commit.hasElement {
		t.Fatal("commit has no element")
	}
	if res.commit.element.X != 100 {
		t.Errorf("committed element X = %d, want 100 (element 2)", res.commit.element.X)
	}
	click, ok := res.commit.act.(actionClick)
	if !ok {
		t.Fatalf("action = %T, want actionClick", res.commit.act)
	}
	if click.Button != buttonLeft || click.Repeat != 1 {
		t.Errorf("action = %v, want left click repeat 1", click)
	}
}

func TestMatcherDisambiguatesPrefix(t *testing.T) {
	m := testMatcher(t, "aa", "ab", "ba", "bb")

	res := m.step(key('a'))
	if res.state != matchAccumulatingLabel {
		t.Fatalf("state after 'a' = %v, want accumulating_label", res.state)
	}
	if res.candidates != 2 {
		t.Errorf("candidates = %d, want 2", res.candidates)
	}

	res = m.step(key('b'))
	if res.state != matchCommitted {
		t.Fatalf("state after 'ab' = %v, want committed", res.state)
	}
	if res.commit.element.X != 100 {
		t.Errorf("committed element X = %d, want 100 (label ab)", res.commit.element.X)
	}
}

// A keystroke matching no label prefix must leave the buffer exactly as it
// was; the session must stay usable.
func TestMatcherRejectsUnknownCharacter(t *testing.T) {
	m := testMatcher(t, "aa", "ab")

	m.step(key('a'))
	res := m.step(key('z'))
	if !res.rejected {
		t.Fatal("expected rejection")
	}
	if res.pending.buffer != "a" {
		t.Errorf("buffer = %q, want %q", res.pending.buffer, "a")
	}
	if res.state != matchAccumulatingLabel {
		t.Errorf("state = %v, want accumulating_label", res.state)
	}

	// The session continues as if 'z' never happened.
	res = m.step(key('b'))
	if res.state != matchCommitted {
		t.Fatalf("state = %v, want committed after recovery", res.state)
	}
}

func TestMatcherRepeatPrefix(t *testing.T) {
	m := testMatcher(t, "a", "b")

	res := m.step(key('2'))
	if res.state != matchAccumulatingCount {
		t.Fatalf("state = %v, want accumulating_count", res.state)
	}

	res = m.step(key('a'))
	if res.state != matchCommitted {
		t.Fatalf("state = %v, want committed", res.state)
	}
	click := res.commit.act.(actionClick)
	if click.Repeat != 2 {
		t.Errorf("repeat = %d, want 2", click.Repeat)
	}
}

func TestMatcherMultiDigitRepeat(t *testing.T) {
	m := testMatcher(t, "a")
	res := typeAll(m, key('1'), key('2'), key('a'))
	if res.state != matchCommitted {
		t.Fatalf("state = %v, want committed", res.state)
	}
	if got := res.commit.act.(actionClick).Repeat; got != 12 {
		t.Errorf("repeat = %d, want 12", got)
	}
}

// A leading zero would read as "repeat zero times"; it is rejected, and the
// eventual commit keeps the default repeat of 1.
func TestMatcherRejectsLeadingZero(t *testing.T) {
	m := testMatcher(t, "a")

	res := m.step(key('0'))
	if !res.rejected {
		t.Fatal("leading zero not rejected")
	}
	if res.state != matchIdle {
		t.Errorf("state = %v, want idle", res.state)
	}

	res = m.step(key('a'))
	if got := res.commit.act.(actionClick).Repeat; got != 1 {
		t.Errorf("repeat = %d, want 1", got)
	}
}

func TestMatcherZeroAfterDigitIsFine(t *testing.T) {
	m := testMatcher(t, "a")
	res := typeAll(m, key('1'), key('0'), key('a'))
	if got := res.commit.act.(actionClick).Repeat; got != 10 {
		t.Errorf("repeat = %d, want 10", got)
	}
}

// Digits stop being count input once the label buffer is non-empty; there
// are no digit labels, so the keystroke is rejected outright.
func TestMatcherRejectsDigitAfterLabelStart(t *testing.T) {
	m := testMatcher(t, "aa", "ab")

	m.step(key('a'))
	res := m.step(key('2'))
	if !res.rejected {
		t.Fatal("digit after label start not rejected")
	}
	if res.pending.buffer != "a" {
		t.Errorf("buffer = %q, want %q", res.pending.buffer, "a")
	}
}

func TestMatcherShiftIsRightClick(t *testing.T) {
	m := testMatcher(t, "a", "b")

	res := m.step(keystroke{Key: 'a', Shift: true})
	click, ok := res.commit.act.(actionClick)
	if !ok {
		t.Fatalf("action = %T, want actionClick", res.commit.act)
	}
	if click.Button != buttonRight {
		t.Errorf("button = %v, want right", click.Button)
	}

	// Plain label in a fresh matcher: left click. The two are mutually
	// exclusive for the same label.
	m2 := testMatcher(t, "a", "b")
	res = m2.step(key('a'))
	if got := res.commit.act.(actionClick).Button; got != buttonLeft {
		t.Errorf("button = %v, want left", got)
	}
}

func TestMatcherAltIsDrag(t *testing.T) {
	m := testMatcher(t, "a")
	res := m.step(keystroke{Key: 'a', Alt: true})
	drag, ok := res.commit.act.(actionDrag)
	if !ok {
		t.Fatalf("action = %T, want actionDrag", res.commit.act)
	}
	if drag.Button != buttonLeft {
		t.Errorf("drag button = %v, want left", drag.Button)
	}
}

func TestMatcherCtrlIsHover(t *testing.T) {
	m := testMatcher(t, "a")
	res := m.step(keystroke{Key: 'a', Ctrl: true})
	if _, ok := res.commit.act.(actionHover); !ok {
		t.Fatalf("action = %T, want actionHover", res.commit.act)
	}
}

// Repeat applies to clicks only; drag and hover treat any numeric prefix as
// if it were absent.
func TestMatcherRepeatIgnoredForDragAndHover(t *testing.T) {
	m := testMatcher(t, "a")
	res := typeAll(m, key('3'), keystroke{Key: 'a', Alt: true})
	if _, ok := res.commit.act.(actionDrag); !ok {
		t.Fatalf("action = %T, want actionDrag", res.commit.act)
	}

	m2 := testMatcher(t, "a")
	res = typeAll(m2, key('3'), keystroke{Key: 'a', Ctrl: true})
	if _, ok := res.commit.act.(actionHover); !ok {
		t.Fatalf("action = %T, want actionHover", res.commit.act)
	}
}

// Modifiers freeze with the first label character: a Shift held only on the
// second character of a two-character label does not turn the click into a
// right click.
func TestMatcherModifiersFreezeOnFirstLabelChar(t *testing.T) {
	m := testMatcher(t, "aa", "ab")
	res := typeAll(m, key('a'), keystroke{Key: 'b', Shift: true})
	if res.state != matchCommitted {
		t.Fatalf("state = %v, want committed", res.state)
	}
	if got := res.commit.act.(actionClick).Button; got != buttonLeft {
		t.Errorf("button = %v, want left (Shift arrived after buffer froze)", got)
	}
}

func TestMatcherDirectionCommitsMove(t *testing.T) {
	m := testMatcher(t, "a", "b")

	res := m.step(key('j'))
	if res.state != matchCommitted {
		t.Fatalf("state = %v, want committed", res.state)
	}
	mv, ok := res.commit.act.(actionMove)
	if !ok {
		t.Fatalf("action = %T, want actionMove", res.commit.act)
	}
	if mv.Direction != dirDown || mv.Steps != 1 {
		t.Errorf("move = %v, want down steps=1", mv)
	}
	if res.commit.hasElement {
		t.Error("direction commit should carry no element")
	}
}

func TestMatcherShiftDirectionCommitsScroll(t *testing.T) {
	m := testMatcher(t, "a")
	res := typeAll(m, key('3'), keystroke{Key: 'k', Shift: true})
	sc, ok := res.commit.act.(actionScroll)
	if !ok {
		t.Fatalf("action = %T, want actionScroll", res.commit.act)
	}
	if sc.Direction != dirUp || sc.Steps != 3 {
		t.Errorf("scroll = %v, want up steps=3", sc)
	}
}

// Direction keys only act while the label buffer is empty; afterwards they
// are ordinary label characters.
func TestMatcherDirectionKeyInsideLabel(t *testing.T) {
	m := testMatcher(t, "ah", "aj")

	m.step(key('a'))
	res := m.step(key('h'))
	if res.state != matchCommitted {
		t.Fatalf("state = %v, want committed", res.state)
	}
	if _, ok := res.commit.act.(actionClick); !ok {
		t.Fatalf("action = %T, want actionClick ('h' is a label char here)", res.commit.act)
	}
}

func TestMatcherEscapeCancels(t *testing.T) {
	m := testMatcher(t, "aa", "ab")

	typeAll(m, key('2'), key('a'))
	res := m.step(key(keyEscape))
	if res.state != matchCancelled {
		t.Fatalf("state = %v, want cancelled", res.state)
	}
	if res.commit != nil {
		t.Fatal("cancel must not produce a commitment")
	}
	if res.pending.buffer != "" || res.pending.count != 0 {
		t.Errorf("pending not cleared: %+v", res.pending)
	}

	// Terminal: further keystrokes are rejected.
	res = m.step(key('a'))
	if !res.rejected {
		t.Error("keystroke after cancel not rejected")
	}
}

func TestMatcherConfiguredExitKey(t *testing.T) {
	hints, err := newHintMap([]Element{{Width: 10, Height: 10}}, []string{"a"})
	if err != nil {
		t.Fatalf("new hint map: %v", err)
	}
	b := testBindings()
	b.exit = 'q'
	m := newMatcher(hints, b)

	res := m.step(key('q'))
	if res.state != matchCancelled {
		t.Fatalf("state = %v, want cancelled via exit key", res.state)
	}
}

func TestMatcherEmptySession(t *testing.T) {
	hints, err := newHintMap(nil, nil)
	if err != nil {
		t.Fatalf("new hint map: %v", err)
	}
	m := newMatcher(hints, testBindings())

	res := m.step(key('a'))
	if !res.rejected {
		t.Fatal("label keystroke in an empty session should be rejected")
	}
	if res.state != matchIdle {
		t.Errorf("state = %v, want idle", res.state)
	}
}

// Typing a label character by character always lands on its element, however
// many labels shared prefixes along the way.
func TestMatcherFullLabelAlwaysCommits(t *testing.T) {
	labels := []string{"aaa", "aab", "aba", "abb", "baa"}

	for i, l := range labels {
		m2 := testMatcher(t, labels...)
		var res matchResult
		for _, r := range l {
			res = m2.step(key(r))
		}
		if res.state != matchCommitted {
			t.Fatalf("label %q: state = %v, want committed", l, res.state)
		}
		if res.commit.element.X != int32(i*100) {
			t.Errorf("label %q committed element X = %d, want %d", l, res.commit.element.X, i*100)
		}
	}
}

func TestMatcherRepeatCapRejectsExcess(t *testing.T) {
	m := testMatcher(t, "a")
	typeAll(m, key('9'), key('9'))
	res := m.step(key('9'))
	if !res.rejected {
		t.Fatal("third digit past the cap not rejected")
	}
	res = m.step(key('a'))
	if got := res.commit.act.(actionClick).Repeat; got != 99 {
		t.Errorf("repeat = %d, want 99", got)
	}
}
