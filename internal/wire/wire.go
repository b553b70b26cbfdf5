// Package wire defines the pointer-command protocol spoken between the hints
// engine and the hintsd execution daemon.
//
// Transport is a Unix domain socket. Each message is one frame: a uint32
// little-endian payload length followed by the payload. Payloads start with a
// version byte and a message type byte; everything after that is fixed-width
// little-endian fields, except the click button-state list which carries a
// uint16 count prefix. A connection carries any number of strictly alternating
// request/response pairs.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Version is the protocol version emitted and accepted by this package.
const Version = 1

// MaxFrameSize caps the payload length of a single frame. Frames claiming a
// larger payload are rejected without reading the body.
const MaxFrameSize = 1024

// DefaultSocketPath is where hintsd listens unless configured otherwise.
const DefaultSocketPath = "/tmp/hints.socket"

// ErrMalformed marks any decode failure: bad framing, unknown version or
// message type, out-of-range enum values, or violated field invariants.
// The daemon answers such requests with ErrorMalformed and keeps the
// connection open.
var ErrMalformed = errors.New("wire: malformed frame")

// Button identifies a pointer button.
type Button uint8

const (
	ButtonLeft   Button = 0
	ButtonRight  Button = 1
	ButtonMiddle Button = 2
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	default:
		return fmt.Sprintf("button(%d)", uint8(b))
	}
}

// ButtonState is one element of a click's press/release sequence.
type ButtonState uint8

const (
	StateDown ButtonState = 0
	StateUp   ButtonState = 1
)

func (s ButtonState) String() string {
	if s == StateDown {
		return "down"
	}
	return "up"
}

// ScrollDirection selects the wheel axis and sign for a Scroll request.
type ScrollDirection uint8

const (
	ScrollUp    ScrollDirection = 0
	ScrollDown  ScrollDirection = 1
	ScrollLeft  ScrollDirection = 2
	ScrollRight ScrollDirection = 3
)

func (d ScrollDirection) String() string {
	switch d {
	case ScrollUp:
		return "up"
	case ScrollDown:
		return "down"
	case ScrollLeft:
		return "left"
	case ScrollRight:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Request is a decoded pointer command. Implementations are Click, Move and
// Scroll; nothing else satisfies the interface.
type Request interface {
	requestMarker()
	String() string
}

// Click positions the pointer and plays a button-state sequence.
//
// States must hold at least one element and Repeat must be >= 1; the whole
// States sequence is executed Repeat times. When Absolute is true (x, y) are
// screen pixels, otherwise a relative offset applied before the first button
// event.
type Click struct {
	X        int32
	Y        int32
	Button   Button
	States   []ButtonState
	Repeat   uint32
	Absolute bool
}

func (Click) requestMarker() {}

func (c Click) String() string {
	return fmt.Sprintf("click %s x=%d y=%d states=%d repeat=%d abs=%v",
		c.Button, c.X, c.Y, len(c.States), c.Repeat, c.Absolute)
}

// Move repositions the pointer without touching buttons. Absolute moves place
// the pointer at (dx, dy) and ignore Steps; relative moves replay the (dx, dy)
// delta Steps times so the daemon can pace them like held-key motion.
type Move struct {
	DX       int32
	DY       int32
	Steps    uint32
	Absolute bool
}

func (Move) requestMarker() {}

func (m Move) String() string {
	return fmt.Sprintf("move dx=%d dy=%d steps=%d abs=%v", m.DX, m.DY, m.Steps, m.Absolute)
}

// Scroll emits Steps wheel detents in the given direction.
type Scroll struct {
	Direction ScrollDirection
	Steps     uint32
}

func (Scroll) requestMarker() {}

func (s Scroll) String() string {
	return fmt.Sprintf("scroll %s steps=%d", s.Direction, s.Steps)
}

// ErrorKind classifies a failed request in a Response.
type ErrorKind uint8

const (
	// ErrorNone is the kind carried by successful responses.
	ErrorNone ErrorKind = 0
	// ErrorDeviceUnavailable: the injection device could not be opened,
	// typically a permissions problem on /dev/uinput.
	ErrorDeviceUnavailable ErrorKind = 1
	// ErrorMalformed: the request frame failed to decode.
	ErrorMalformed ErrorKind = 2
	// ErrorOutOfRange: absolute coordinates fall outside the configured
	// display bounds.
	ErrorOutOfRange ErrorKind = 3
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return "none"
	case ErrorDeviceUnavailable:
		return "device-unavailable"
	case ErrorMalformed:
		return "malformed"
	case ErrorOutOfRange:
		return "out-of-range"
	default:
		return fmt.Sprintf("error(%d)", uint8(k))
	}
}

// Response is the daemon's answer to one request.
type Response struct {
	Kind ErrorKind
}

// Ok reports whether the request was executed.
func (r Response) Ok() bool { return r.Kind == ErrorNone }

func (r Response) String() string {
	if r.Ok() {
		return "ok"
	}
	return "error: " + r.Kind.String()
}

// OkResponse is the canonical success response.
func OkResponse() Response { return Response{Kind: ErrorNone} }

// ErrResponse builds a failure response of the given kind.
func ErrResponse(kind ErrorKind) Response { return Response{Kind: kind} }

// Message type bytes on the wire.
const (
	msgClick  uint8 = 0
	msgMove   uint8 = 1
	msgScroll uint8 = 2
)

// Response outcome bytes on the wire.
const (
	outcomeOk    uint8 = 0
	outcomeError uint8 = 1
)

// EncodeRequest writes req as one frame. It validates the same invariants the
// decoder enforces, so a request that encodes cleanly also decodes cleanly.
func EncodeRequest(w io.Writer, req Request) error {
	var buf bytes.Buffer
	buf.WriteByte(Version)

	switch r := req.(type) {
	case Click:
		if len(r.States) == 0 {
			return fmt.Errorf("%w: click with empty button states", ErrMalformed)
		}
		if len(r.States) > MaxFrameSize/2 {
			return fmt.Errorf("%w: click with %d button states", ErrMalformed, len(r.States))
		}
		if r.Repeat == 0 {
			return fmt.Errorf("%w: click with repeat 0", ErrMalformed)
		}
		if r.Button > ButtonMiddle {
			return fmt.Errorf("%w: unknown button %d", ErrMalformed, r.Button)
		}
		buf.WriteByte(msgClick)
		writeLE(&buf, r.X)
		writeLE(&buf, r.Y)
		buf.WriteByte(uint8(r.Button))
		writeLE(&buf, uint16(len(r.States)))
		for _, s := range r.States {
			if s > StateUp {
				return fmt.Errorf("%w: unknown button state %d", ErrMalformed, s)
			}
			buf.WriteByte(uint8(s))
		}
		writeLE(&buf, r.Repeat)
		buf.WriteByte(boolByte(r.Absolute))

	case Move:
		buf.WriteByte(msgMove)
		writeLE(&buf, r.DX)
		writeLE(&buf, r.DY)
		writeLE(&buf, r.Steps)
		buf.WriteByte(boolByte(r.Absolute))

	case Scroll:
		if r.Direction > ScrollRight {
			return fmt.Errorf("%w: unknown scroll direction %d", ErrMalformed, r.Direction)
		}
		buf.WriteByte(msgScroll)
		buf.WriteByte(uint8(r.Direction))
		writeLE(&buf, r.Steps)

	default:
		return fmt.Errorf("wire: unsupported request type %T", req)
	}

	return writeFrame(w, buf.Bytes())
}

// DecodeRequest reads one frame and decodes it. Errors other than io.EOF wrap
// ErrMalformed when the failure is isolated to the frame contents; transport
// errors are returned as-is.
func DecodeRequest(r io.Reader) (Request, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	body := bytes.NewReader(payload)

	version, err := body.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: version %d (want %d)", ErrMalformed, version, Version)
	}

	msgType, err := body.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: missing message type", ErrMalformed)
	}

	switch msgType {
	case msgClick:
		return decodeClick(body)
	case msgMove:
		return decodeMove(body)
	case msgScroll:
		return decodeScroll(body)
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrMalformed, msgType)
	}
}

func decodeClick(body *bytes.Reader) (Request, error) {
	var c Click
	var button uint8
	var nstates uint16

	if err := readLE(body, &c.X, &c.Y); err != nil {
		return nil, err
	}
	if err := readLE(body, &button); err != nil {
		return nil, err
	}
	if button > uint8(ButtonMiddle) {
		return nil, fmt.Errorf("%w: unknown button %d", ErrMalformed, button)
	}
	c.Button = Button(button)

	if err := readLE(body, &nstates); err != nil {
		return nil, err
	}
	if nstates == 0 {
		return nil, fmt.Errorf("%w: click with empty button states", ErrMalformed)
	}
	if int(nstates) > body.Len() {
		return nil, fmt.Errorf("%w: button state count %d exceeds payload", ErrMalformed, nstates)
	}
	c.States = make([]ButtonState, nstates)
	for i := range c.States {
		b, err := body.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated button states", ErrMalformed)
		}
		if b > uint8(StateUp) {
			return nil, fmt.Errorf("%w: unknown button state %d", ErrMalformed, b)
		}
		c.States[i] = ButtonState(b)
	}

	var abs uint8
	if err := readLE(body, &c.Repeat); err != nil {
		return nil, err
	}
	if c.Repeat == 0 {
		return nil, fmt.Errorf("%w: click with repeat 0", ErrMalformed)
	}
	if err := readLE(body, &abs); err != nil {
		return nil, err
	}
	if abs > 1 {
		return nil, fmt.Errorf("%w: bad absolute flag %d", ErrMalformed, abs)
	}
	c.Absolute = abs == 1

	if body.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, body.Len())
	}
	return c, nil
}

func decodeMove(body *bytes.Reader) (Request, error) {
	var m Move
	var abs uint8
	if err := readLE(body, &m.DX, &m.DY, &m.Steps, &abs); err != nil {
		return nil, err
	}
	if abs > 1 {
		return nil, fmt.Errorf("%w: bad absolute flag %d", ErrMalformed, abs)
	}
	m.Absolute = abs == 1
	if body.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, body.Len())
	}
	return m, nil
}

func decodeScroll(body *bytes.Reader) (Request, error) {
	var s Scroll
	var dir uint8
	if err := readLE(body, &dir, &s.Steps); err != nil {
		return nil, err
	}
	if dir > uint8(ScrollRight) {
		return nil, fmt.Errorf("%w: unknown scroll direction %d", ErrMalformed, dir)
	}
	s.Direction = ScrollDirection(dir)
	if body.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, body.Len())
	}
	return s, nil
}

// EncodeResponse writes resp as one frame.
func EncodeResponse(w io.Writer, resp Response) error {
	outcome := outcomeOk
	if !resp.Ok() {
		outcome = outcomeError
	}
	payload := []byte{Version, outcome, uint8(resp.Kind)}
	return writeFrame(w, payload)
}

// DecodeResponse reads one response frame.
func DecodeResponse(r io.Reader) (Response, error) {
	payload, err := readFrame(r)
	if err != nil {
		return Response{}, err
	}
	if len(payload) != 3 {
		return Response{}, fmt.Errorf("%w: response payload length %d", ErrMalformed, len(payload))
	}
	if payload[0] != Version {
		return Response{}, fmt.Errorf("%w: version %d (want %d)", ErrMalformed, payload[0], Version)
	}
	switch payload[1] {
	case outcomeOk:
		return OkResponse(), nil
	case outcomeError:
		kind := ErrorKind(payload[2])
		if kind == ErrorNone || kind > ErrorOutOfRange {
			return Response{}, fmt.Errorf("%w: unknown error kind %d", ErrMalformed, payload[2])
		}
		return ErrResponse(kind), nil
	default:
		return Response{}, fmt.Errorf("%w: unknown outcome %d", ErrMalformed, payload[1])
	}
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: payload %d exceeds max frame size", ErrMalformed, len(payload))
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		// EOF between frames is a clean close, not a protocol error.
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header[:])
	if n == 0 {
		return nil, fmt.Errorf("%w: zero-length payload", ErrMalformed)
	}
	if n > MaxFrameSize {
		// Drain the declared payload so the stream stays frame-aligned and
		// the connection remains usable after the error response.
		_, _ = io.CopyN(io.Discard, r, int64(n))
		return nil, fmt.Errorf("%w: payload %d exceeds max frame size", ErrMalformed, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated payload: %v", ErrMalformed, err)
	}
	return payload, nil
}

func writeLE(buf *bytes.Buffer, vs ...any) {
	for _, v := range vs {
		// bytes.Buffer never fails; the values are fixed-width integers.
		_ = binary.Write(buf, binary.LittleEndian, v)
	}
}

func readLE(r io.Reader, vs ...any) error {
	for _, v := range vs {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: truncated payload: %v", ErrMalformed, err)
		}
	}
	return nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
