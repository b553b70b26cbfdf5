package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"hints/internal/wire"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
//
// The daemon writes these to uinput; timestamps are left zero and filled in
// by the kernel.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// injector is the executor's view of the virtual pointer hardware. The real
// implementation drives uinput; tests substitute a recorder.
type injector interface {
	PositionAbs(x, y int32) error
	MoveRel(dx, dy int32) error
	Button(button wire.Button, state wire.ButtonState) error
	Wheel(direction wire.ScrollDirection) error
	Close() error
}

// inputID mirrors struct input_id from <linux/input.h>.
type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev mirrors struct uinput_user_dev from <linux/uinput.h>.
// It is written to /dev/uinput before UI_DEV_CREATE.
type uinputUserDev struct {
	Name         [uinputMaxNameSize]byte
	ID           inputID
	FFEffectsMax uint32
	AbsMax       [absCnt]int32
	AbsMin       [absCnt]int32
	AbsFuzz      [absCnt]int32
	AbsFlat      [absCnt]int32
}

// uinputDevice is one virtual input device backed by an open /dev/uinput fd.
type uinputDevice struct {
	f *os.File
}

// uinputPointer drives two uinput devices: a relative one carrying buttons,
// motion deltas and wheels, and an absolute one carrying ABS_X/ABS_Y for
// pointer placement. Compositors handle mixed rel/abs capabilities on a
// single device inconsistently, so the split mirrors how physical mice and
// tablets present themselves.
type uinputPointer struct {
	rel *uinputDevice
	abs *uinputDevice
}

// openUinputPointer creates both virtual devices. absMaxX/absMaxY bound the
// absolute axes; pass 0 to fall back to the default axis range.
func openUinputPointer(path string, absMaxX, absMaxY int32) (*uinputPointer, error) {
	if absMaxX <= 0 {
		absMaxX = defaultAbsAxisMax
	}
	if absMaxY <= 0 {
		absMaxY = defaultAbsAxisMax
	}

	rel, err := createUinputDevice(path, "hintsd virtual mouse", func(fd int) error {
		if err := devIoctls(fd, UI_SET_EVBIT, EV_KEY); err != nil {
			return err
		}
		if err := devIoctls(fd, UI_SET_KEYBIT, BTN_LEFT, BTN_RIGHT, BTN_MIDDLE); err != nil {
			return err
		}
		if err := devIoctls(fd, UI_SET_EVBIT, EV_REL); err != nil {
			return err
		}
		return devIoctls(fd, UI_SET_RELBIT, REL_X, REL_Y, REL_WHEEL, REL_HWHEEL)
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("create relative device: %w", err)
	}

	abs, err := createUinputDevice(path, "hintsd virtual pointer", func(fd int) error {
		if err := devIoctls(fd, UI_SET_EVBIT, EV_KEY); err != nil {
			return err
		}
		// At least one button bit is required for libinput to classify the
		// device as a pointer rather than a touchscreen.
		if err := devIoctls(fd, UI_SET_KEYBIT, BTN_LEFT); err != nil {
			return err
		}
		if err := devIoctls(fd, UI_SET_EVBIT, EV_ABS); err != nil {
			return err
		}
		return devIoctls(fd, UI_SET_ABSBIT, ABS_X, ABS_Y)
	}, func(ud *uinputUserDev) {
		ud.AbsMax[ABS_X] = absMaxX
		ud.AbsMax[ABS_Y] = absMaxY
	})
	if err != nil {
		rel.Close()
		return nil, fmt.Errorf("create absolute device: %w", err)
	}

	return &uinputPointer{rel: rel, abs: abs}, nil
}

// createUinputDevice opens path, applies the capability ioctls, registers the
// device and returns it ready for event writes.
func createUinputDevice(path, name string, capabilities func(fd int) error, tweak func(*uinputUserDev)) (*uinputDevice, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	fd := int(f.Fd())
	if err := capabilities(fd); err != nil {
		f.Close()
		return nil, err
	}

	var ud uinputUserDev
	copy(ud.Name[:], name)
	ud.ID = inputID{Bustype: busVirtual, Vendor: 0x1, Product: 0x1, Version: 1}
	if tweak != nil {
		tweak(&ud)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &ud); err != nil {
		f.Close()
		return nil, fmt.Errorf("encode device setup: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write device setup: %w", err)
	}

	if err := unix.IoctlSetInt(fd, UI_DEV_CREATE, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("UI_DEV_CREATE: %w", err)
	}

	return &uinputDevice{f: f}, nil
}

// devIoctls applies one uinput ioctl for each value.
func devIoctls(fd int, req uint, values ...int) error {
	for _, v := range values {
		if err := unix.IoctlSetInt(fd, req, v); err != nil {
			return fmt.Errorf("ioctl 0x%x value 0x%x: %w", req, v, err)
		}
	}
	return nil
}

// emit writes the events plus a closing SYN_REPORT as a single batch.
func (d *uinputDevice) emit(events ...inputEvent) error {
	var buf bytes.Buffer
	for _, ev := range events {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			return fmt.Errorf("encode input event: %w", err)
		}
	}
	syn := inputEvent{Type: EV_SYN, Code: SYN_REPORT}
	if err := binary.Write(&buf, binary.LittleEndian, syn); err != nil {
		return fmt.Errorf("encode syn event: %w", err)
	}
	if _, err := d.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write input events: %w", err)
	}
	return nil
}

// Close unregisters and closes the device.
func (d *uinputDevice) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	_ = unix.IoctlSetInt(int(d.f.Fd()), UI_DEV_DESTROY, 0)
	err := d.f.Close()
	d.f = nil
	return err
}

func (p *uinputPointer) PositionAbs(x, y int32) error {
	return p.abs.emit(
		inputEvent{Type: EV_ABS, Code: ABS_X, Value: x},
		inputEvent{Type: EV_ABS, Code: ABS_Y, Value: y},
	)
}

func (p *uinputPointer) MoveRel(dx, dy int32) error {
	return p.rel.emit(
		inputEvent{Type: EV_REL, Code: REL_X, Value: dx},
		inputEvent{Type: EV_REL, Code: REL_Y, Value: dy},
	)
}

func (p *uinputPointer) Button(button wire.Button, state wire.ButtonState) error {
	var code uint16
	switch button {
	case wire.ButtonRight:
		code = BTN_RIGHT
	case wire.ButtonMiddle:
		code = BTN_MIDDLE
	default:
		code = BTN_LEFT
	}
	value := int32(evValuePress)
	if state == wire.StateUp {
		value = evValueRelease
	}
	return p.rel.emit(inputEvent{Type: EV_KEY, Code: code, Value: value})
}

func (p *uinputPointer) Wheel(direction wire.ScrollDirection) error {
	var code uint16
	var value int32
	switch direction {
	case wire.ScrollUp:
		code, value = REL_WHEEL, 1
	case wire.ScrollDown:
		code, value = REL_WHEEL, -1
	case wire.ScrollLeft:
		code, value = REL_HWHEEL, -1
	case wire.ScrollRight:
		code, value = REL_HWHEEL, 1
	}
	return p.rel.emit(inputEvent{Type: EV_REL, Code: code, Value: value})
}

func (p *uinputPointer) Close() error {
	var first error
	if err := p.rel.Close(); err != nil {
		first = err
	}
	if err := p.abs.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
