package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ============================================================================
// Keystroke sources
// ============================================================================
// A source produces the session's lazy stream of decoded keystrokes. Two
// implementations exist: the overlay bridge (clients forward key events as
// JSON envelopes) and the controlling terminal in raw mode, which is what
// makes the engine usable for scripting and from a drop-down terminal even
// without an overlay client.
// ============================================================================

// keySource produces decoded keystrokes until stopped. The channel closes
// when the source ends (terminal closed, last bridge client gone, Stop
// called).
type keySource interface {
	Start(ctx context.Context) (<-chan keystroke, error)
	Stop() error
}

// ttyKeySource reads the controlling terminal in raw mode.
type ttyKeySource struct {
	f        *os.File
	oldState *term.State
}

func newTTYKeySource() *ttyKeySource {
	return &ttyKeySource{f: os.Stdin}
}

func (t *ttyKeySource) Start(ctx context.Context) (<-chan keystroke, error) {
	fd := int(t.f.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal; use -keys=bridge")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}
	t.oldState = oldState

	out := make(chan keystroke, 16)
	go func() {
		defer close(out)
		buf := make([]byte, 64)
		for {
			n, err := t.f.Read(buf)
			if err != nil {
				return
			}
			for _, k := range decodeTTYBytes(buf[:n]) {
				select {
				case out <- k:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *ttyKeySource) Stop() error {
	if t.oldState == nil {
		return nil
	}
	err := term.Restore(int(t.f.Fd()), t.oldState)
	t.oldState = nil
	return err
}

// decodeTTYBytes turns one raw-mode read into keystrokes.
//
// Raw terminal input has no separate modifier events, so modifiers are
// recovered from the encoding: an uppercase letter is the lowercase key with
// Shift, a control byte (0x01..0x1a) is the corresponding letter with Ctrl,
// and ESC immediately followed by a printable byte is that key with Alt
// (the classic meta encoding). A lone ESC is the cancel keystroke. Multi-byte
// CSI sequences (arrow keys and friends) are swallowed whole: they are not
// bound to anything and half-decoding them would leak garbage keystrokes.
func decodeTTYBytes(buf []byte) []keystroke {
	var out []keystroke
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		switch {
		case b == keyEscape:
			if i+1 >= len(buf) {
				out = append(out, keystroke{Key: keyEscape})
				continue
			}
			next := buf[i+1]
			if next == '[' || next == 'O' {
				// CSI / SS3 sequence: skip the introducer and every byte up
				// to (and including) its terminator.
				i += 2
				for i < len(buf) && (buf[i] < 0x40 || buf[i] > 0x7e) {
					i++
				}
				continue
			}
			if k, ok := decodePlainByte(next); ok {
				k.Alt = true
				out = append(out, k)
				i++
				continue
			}
			out = append(out, keystroke{Key: keyEscape})

		case b >= 0x01 && b <= 0x1a:
			// Ctrl-letter. Tab (0x09), LF (0x0a) and CR (0x0d) are more
			// likely meant literally, but none of them are bound to anything
			// either way, so the uniform decoding stays.
			out = append(out, keystroke{Key: rune('a' + b - 0x01), Ctrl: true})

		default:
			if k, ok := decodePlainByte(b); ok {
				out = append(out, k)
			}
		}
	}
	return out
}

// decodePlainByte decodes a single printable byte, folding uppercase to
// Shift+lowercase.
func decodePlainByte(b byte) (keystroke, bool) {
	switch {
	case b >= 'A' && b <= 'Z':
		return keystroke{Key: rune(b - 'A' + 'a'), Shift: true}, true
	case b >= 0x20 && b < 0x7f:
		return keystroke{Key: rune(b)}, true
	default:
		return keystroke{}, false
	}
}
