package main

// Linux input event types and codes (from <linux/input-event-codes.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02
	EV_ABS = 0x03

	SYN_REPORT = 0

	BTN_LEFT   = 0x110
	BTN_RIGHT  = 0x111
	BTN_MIDDLE = 0x112

	REL_X      = 0x00
	REL_Y      = 0x01
	REL_HWHEEL = 0x06
	REL_WHEEL  = 0x08

	ABS_X = 0x00
	ABS_Y = 0x01
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
)

// uinput ioctls and limits (from <linux/uinput.h>)
const (
	UI_DEV_CREATE  = 0x5501
	UI_DEV_DESTROY = 0x5502

	UI_SET_EVBIT  = 0x40045564
	UI_SET_KEYBIT = 0x40045565
	UI_SET_RELBIT = 0x40045566
	UI_SET_ABSBIT = 0x40045567

	uinputMaxNameSize = 80
	absCnt            = 0x40

	// BUS_VIRTUAL from <linux/input.h>; the devices have no physical bus.
	busVirtual = 0x06
)

// Daemon defaults
const (
	defaultUinputPath = "/dev/uinput"

	// Pacing between injected event batches. The compositor needs a beat to
	// observe a position change before button events land on it, and some
	// toolkits debounce button transitions that arrive too close together.
	defaultWritePauseMS  = 30  // after each event batch
	defaultButtonPauseMS = 50  // between button state transitions
	defaultSettleMS      = 100 // after positioning, before the first button event

	// Absolute axis range when no display bounds are configured.
	defaultAbsAxisMax = 65535

	defaultQueueDepth = 64
)
