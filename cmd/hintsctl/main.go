package main

// ============================================================================
// hintsctl - Command-line wire client
// ============================================================================
// This tool sends pointer commands straight to the hintsd daemon, bypassing
// the hint engine. Useful for scripting, permission diagnostics, and testing
// drags by hand (press at one spot, release at another).
//
// Usage:
//   hintsctl click -x 500 -y 300
//   hintsctl click -x 500 -y 300 -button right
//   hintsctl click -x 500 -y 300 -double
//   hintsctl press -x 100 -y 100
//   hintsctl release
//   hintsctl move -dx 10 -dy 0 -steps 5
//   hintsctl moveto -x 960 -y 540
//   hintsctl scroll -dir down -steps 3
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/hints.socket)
// ============================================================================

import (
	"flag"
	"fmt"
	"os"

	"hints/internal/wire"
)

func main() {
	socketPath := wire.DefaultSocketPath

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag before the subcommand
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var req wire.Request
	var err error

	switch args[0] {
	case "click":
		req, err = parseClick(args[1:])

	case "press":
		req, err = parsePress(args[1:])

	case "release":
		req, err = parseRelease(args[1:])

	case "move":
		req, err = parseMove(args[1:])

	case "moveto":
		req, err = parseMoveTo(args[1:])

	case "scroll":
		req, err = parseScroll(args[1:])

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := sendRequest(socketPath, req); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

func parseClick(args []string) (wire.Request, error) {
	fs := flag.NewFlagSet("click", flag.ContinueOnError)
	x := fs.Int("x", 0, "X coordinate")
	y := fs.Int("y", 0, "Y coordinate")
	button := fs.String("button", "left", "Button: left, right, middle")
	repeat := fs.Uint("repeat", 1, "Press/release repetitions")
	double := fs.Bool("double", false, "Double click (same as -repeat 2)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	btn, err := parseButton(*button)
	if err != nil {
		return nil, err
	}
	rep := uint32(*repeat)
	if *double {
		rep = 2
	}
	if rep < 1 {
		return nil, fmt.Errorf("repeat must be >= 1")
	}
	return wire.Click{
		X:        int32(*x),
		Y:        int32(*y),
		Button:   btn,
		States:   []wire.ButtonState{wire.StateDown, wire.StateUp},
		Repeat:   rep,
		Absolute: true,
	}, nil
}

func parsePress(args []string) (wire.Request, error) {
	fs := flag.NewFlagSet("press", flag.ContinueOnError)
	x := fs.Int("x", -1, "X coordinate (optional; press in place if omitted)")
	y := fs.Int("y", -1, "Y coordinate")
	button := fs.String("button", "left", "Button: left, right, middle")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	btn, err := parseButton(*button)
	if err != nil {
		return nil, err
	}
	req := wire.Click{
		Button: btn,
		States: []wire.ButtonState{wire.StateDown},
		Repeat: 1,
	}
	if *x >= 0 && *y >= 0 {
		req.X, req.Y, req.Absolute = int32(*x), int32(*y), true
	}
	return req, nil
}

func parseRelease(args []string) (wire.Request, error) {
	fs := flag.NewFlagSet("release", flag.ContinueOnError)
	button := fs.String("button", "left", "Button: left, right, middle")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	btn, err := parseButton(*button)
	if err != nil {
		return nil, err
	}
	return wire.Click{
		Button: btn,
		States: []wire.ButtonState{wire.StateUp},
		Repeat: 1,
	}, nil
}

func parseMove(args []string) (wire.Request, error) {
	fs := flag.NewFlagSet("move", flag.ContinueOnError)
	dx := fs.Int("dx", 0, "X delta per step")
	dy := fs.Int("dy", 0, "Y delta per step")
	steps := fs.Uint("steps", 1, "Number of steps")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *dx == 0 && *dy == 0 {
		return nil, fmt.Errorf("move needs a non-zero -dx or -dy")
	}
	return wire.Move{DX: int32(*dx), DY: int32(*dy), Steps: uint32(*steps)}, nil
}

func parseMoveTo(args []string) (wire.Request, error) {
	fs := flag.NewFlagSet("moveto", flag.ContinueOnError)
	x := fs.Int("x", 0, "X coordinate")
	y := fs.Int("y", 0, "Y coordinate")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return wire.Move{DX: int32(*x), DY: int32(*y), Absolute: true}, nil
}

func parseScroll(args []string) (wire.Request, error) {
	fs := flag.NewFlagSet("scroll", flag.ContinueOnError)
	dir := fs.String("dir", "down", "Direction: up, down, left, right")
	steps := fs.Uint("steps", 1, "Wheel detents")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	var d wire.ScrollDirection
	switch *dir {
	case "up":
		d = wire.ScrollUp
	case "down":
		d = wire.ScrollDown
	case "left":
		d = wire.ScrollLeft
	case "right":
		d = wire.ScrollRight
	default:
		return nil, fmt.Errorf("invalid direction %q (want up, down, left or right)", *dir)
	}
	return wire.Scroll{Direction: d, Steps: uint32(*steps)}, nil
}

func parseButton(name string) (wire.Button, error) {
	switch name {
	case "left":
		return wire.ButtonLeft, nil
	case "right":
		return wire.ButtonRight, nil
	case "middle":
		return wire.ButtonMiddle, nil
	default:
		return 0, fmt.Errorf("invalid button %q (want left, right or middle)", name)
	}
}

func sendRequest(socketPath string, req wire.Request) error {
	client, err := wire.Dial(socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	if !resp.Ok() {
		return fmt.Errorf("daemon error: %s", resp.Kind)
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `hintsctl - Send pointer commands to the hintsd daemon

Usage:
  hintsctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  click -x N -y N [-button left|right|middle] [-repeat N] [-double]
                          Click at absolute screen coordinates
  press [-x N -y N] [-button B]
                          Press and hold a button (optionally position first)
  release [-button B]     Release a held button in place
  move -dx N -dy N [-steps N]
                          Nudge the pointer by a relative delta, N times
  moveto -x N -y N        Place the pointer at absolute coordinates
  scroll -dir D [-steps N]
                          Scroll up/down/left/right, N detents
  help, -h, --help        Show this help message

Examples:
  hintsctl click -x 500 -y 300
  hintsctl click -x 500 -y 300 -button right
  hintsctl press -x 100 -y 100 && hintsctl moveto -x 400 -y 400 && hintsctl release
  hintsctl -socket /run/hints.socket scroll -dir down -steps 3
`, wire.DefaultSocketPath)
}
