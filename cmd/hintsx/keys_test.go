package main

import "testing"

func assertKeys(t *testing.T, got, want []keystroke) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d keystrokes %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keystroke %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeTTYPlainLetters(t *testing.T) {
	got := decodeTTYBytes([]byte("ab"))
	assertKeys(t, got, []keystroke{{Key: 'a'}, {Key: 'b'}})
}

func TestDecodeTTYUppercaseIsShift(t *testing.T) {
	got := decodeTTYBytes([]byte("A"))
	assertKeys(t, got, []keystroke{{Key: 'a', Shift: true}})
}

func TestDecodeTTYDigits(t *testing.T) {
	got := decodeTTYBytes([]byte("2a"))
	assertKeys(t, got, []keystroke{{Key: '2'}, {Key: 'a'}})
}

func TestDecodeTTYCtrlLetter(t *testing.T) {
	got := decodeTTYBytes([]byte{0x01}) // Ctrl-A
	assertKeys(t, got, []keystroke{{Key: 'a', Ctrl: true}})
}

func TestDecodeTTYLoneEscape(t *testing.T) {
	got := decodeTTYBytes([]byte{0x1b})
	assertKeys(t, got, []keystroke{{Key: keyEscape}})
}

func TestDecodeTTYAltLetter(t *testing.T) {
	got := decodeTTYBytes([]byte{0x1b, 'x'})
	assertKeys(t, got, []keystroke{{Key: 'x', Alt: true}})
}

func TestDecodeTTYAltShiftedLetter(t *testing.T) {
	got := decodeTTYBytes([]byte{0x1b, 'X'})
	assertKeys(t, got, []keystroke{{Key: 'x', Alt: true, Shift: true}})
}

// Arrow keys and friends arrive as CSI sequences; they decode to nothing
// rather than leaking bracket characters into the label buffer.
func TestDecodeTTYSwallowsCSISequences(t *testing.T) {
	got := decodeTTYBytes([]byte{0x1b, '[', 'A'}) // Up arrow
	assertKeys(t, got, nil)

	got = decodeTTYBytes([]byte{0x1b, '[', '1', ';', '5', 'C', 'a'}) // Ctrl-Right then 'a'
	assertKeys(t, got, []keystroke{{Key: 'a'}})
}

func TestDecodeTTYMixedBuffer(t *testing.T) {
	got := decodeTTYBytes([]byte{'2', 0x1b, 'a', 'B'})
	assertKeys(t, got, []keystroke{
		{Key: '2'},
		{Key: 'a', Alt: true},
		{Key: 'b', Shift: true},
	})
}
