package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	reqs := []Request{
		Click{X: 640, Y: 360, Button: ButtonLeft, States: []ButtonState{StateDown, StateUp}, Repeat: 1, Absolute: true},
		Click{X: -5, Y: 12, Button: ButtonRight, States: []ButtonState{StateDown}, Repeat: 3, Absolute: false},
		Move{DX: -10, DY: 0, Steps: 4},
		Move{DX: 800, DY: 450, Steps: 1, Absolute: true},
		Scroll{Direction: ScrollDown, Steps: 2},
	}

	var buf bytes.Buffer
	for _, req := range reqs {
		if err := EncodeRequest(&buf, req); err != nil {
			t.Fatalf("encode %v: %v", req, err)
		}
	}

	// All frames sit back to back in one stream; decoding must stop exactly
	// at each frame boundary.
	for i, want := range reqs {
		got, err := DecodeRequest(&buf)
		if err != nil {
			t.Fatalf("decode request %d: %v", i, err)
		}
		switch w := want.(type) {
		case Click:
			g, ok := got.(Click)
			if !ok {
				t.Fatalf("request %d: got %T, want Click", i, got)
			}
			if g.X != w.X || g.Y != w.Y || g.Button != w.Button || g.Repeat != w.Repeat || g.Absolute != w.Absolute {
				t.Fatalf("request %d: got %+v, want %+v", i, g, w)
			}
			if len(g.States) != len(w.States) {
				t.Fatalf("request %d: got %d states, want %d", i, len(g.States), len(w.States))
			}
			for j := range g.States {
				if g.States[j] != w.States[j] {
					t.Fatalf("request %d state %d: got %v, want %v", i, j, g.States[j], w.States[j])
				}
			}
		case Move:
			if g, ok := got.(Move); !ok || g != w {
				t.Fatalf("request %d: got %#v, want %#v", i, got, w)
			}
		case Scroll:
			if g, ok := got.(Scroll); !ok || g != w {
				t.Fatalf("request %d: got %#v, want %#v", i, got, w)
			}
		}
	}

	if buf.Len() != 0 {
		t.Fatalf("expected empty stream after decoding all frames, %d bytes left", buf.Len())
	}
	if _, err := DecodeRequest(&buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestEncodeRequestRejectsInvalid(t *testing.T) {
	cases := []Request{
		Click{States: nil, Repeat: 1},
		Click{States: []ButtonState{StateDown}, Repeat: 0},
		Click{Button: Button(9), States: []ButtonState{StateDown}, Repeat: 1},
		Scroll{Direction: ScrollDirection(7), Steps: 1},
	}
	for i, req := range cases {
		var buf bytes.Buffer
		if err := EncodeRequest(&buf, req); !errors.Is(err, ErrMalformed) {
			t.Errorf("case %d: expected ErrMalformed, got %v", i, err)
		}
	}
}

func TestDecodeRequestMalformed(t *testing.T) {
	frame := func(payload []byte) []byte {
		var header [4]byte
		binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
		return append(header[:], payload...)
	}

	cases := map[string][]byte{
		"zero length payload":  frame(nil),
		"oversize declaration": func() []byte { var h [4]byte; binary.LittleEndian.PutUint32(h[:], MaxFrameSize+1); return h[:] }(),
		"bad version":          frame([]byte{9, msgMove, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}),
		"unknown message type": frame([]byte{Version, 7}),
		"truncated move body":  frame([]byte{Version, msgMove, 1, 2}),
		"trailing bytes":       frame([]byte{Version, msgScroll, 0, 1, 0, 0, 0, 0xff}),
		"scroll bad direction": frame([]byte{Version, msgScroll, 4, 1, 0, 0, 0}),
	}

	for name, raw := range cases {
		if _, err := DecodeRequest(bytes.NewReader(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}

	// A click whose declared state count exceeds the payload must not
	// over-read or panic.
	var click bytes.Buffer
	click.Write([]byte{Version, msgClick})
	binary.Write(&click, binary.LittleEndian, int32(1))
	binary.Write(&click, binary.LittleEndian, int32(2))
	click.WriteByte(uint8(ButtonLeft))
	binary.Write(&click, binary.LittleEndian, uint16(500))
	click.WriteByte(uint8(StateDown))
	if _, err := DecodeRequest(bytes.NewReader(frame(click.Bytes()))); !errors.Is(err, ErrMalformed) {
		t.Fatalf("oversized state count: expected ErrMalformed, got %v", err)
	}
}

func TestDecodeRequestRejectsZeroRepeat(t *testing.T) {
	// Hand-build a click frame with repeat=0; EncodeRequest refuses to
	// produce one, so the decoder check needs its own bytes.
	var body bytes.Buffer
	body.Write([]byte{Version, msgClick})
	binary.Write(&body, binary.LittleEndian, int32(10))
	binary.Write(&body, binary.LittleEndian, int32(20))
	body.WriteByte(uint8(ButtonLeft))
	binary.Write(&body, binary.LittleEndian, uint16(1))
	body.WriteByte(uint8(StateDown))
	binary.Write(&body, binary.LittleEndian, uint32(0)) // repeat
	body.WriteByte(1)                                   // absolute

	var raw bytes.Buffer
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(body.Len()))
	raw.Write(header[:])
	raw.Write(body.Bytes())

	if _, err := DecodeRequest(&raw); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for repeat=0, got %v", err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	if err := EncodeResponse(&buf, OkResponse()); err != nil {
		t.Fatalf("encode ok: %v", err)
	}
	if err := EncodeResponse(&buf, ErrResponse(ErrorOutOfRange)); err != nil {
		t.Fatalf("encode error: %v", err)
	}

	ok, err := DecodeResponse(&buf)
	if err != nil {
		t.Fatalf("decode ok: %v", err)
	}
	if !ok.Ok() || ok.Kind != ErrorNone {
		t.Fatalf("expected ok response, got %v", ok)
	}

	bad, err := DecodeResponse(&buf)
	if err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if bad.Ok() || bad.Kind != ErrorOutOfRange {
		t.Fatalf("expected out-of-range error, got %v", bad)
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	frame := func(payload []byte) []byte {
		var header [4]byte
		binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
		return append(header[:], payload...)
	}

	cases := map[string][]byte{
		"short payload":      frame([]byte{Version, outcomeOk}),
		"bad version":        frame([]byte{3, outcomeOk, 0}),
		"unknown outcome":    frame([]byte{Version, 5, 0}),
		"error without kind": frame([]byte{Version, outcomeError, 0}),
		"unknown error kind": frame([]byte{Version, outcomeError, 9}),
	}

	for name, raw := range cases {
		if _, err := DecodeResponse(bytes.NewReader(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}
