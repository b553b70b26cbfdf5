package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// Window system queries
// ============================================================================
// Scan regions come from the compositor: hyprctl on Hyprland, swaymsg on
// Sway, xdotool on X11. Each query shells out once and parses the output;
// the parsers are separated from the subprocess plumbing so they can be
// tested against captured tool output.
// ============================================================================

// windowToolTimeout bounds a single compositor query.
const windowToolTimeout = 5 * time.Second

// windowSystem identifies the running compositor or display server.
type windowSystem int

const (
	wsUnknown windowSystem = iota
	wsHyprland
	wsSway
	wsX11
)

func (w windowSystem) String() string {
	switch w {
	case wsHyprland:
		return "hyprland"
	case wsSway:
		return "sway"
	case wsX11:
		return "x11"
	default:
		return "unknown"
	}
}

// detectWindowSystem sniffs the session environment. Hyprland and Sway both
// set WAYLAND_DISPLAY, so their own variables are checked first; a plain
// DISPLAY falls back to X11 tooling, which also covers XWayland.
func detectWindowSystem(getenv func(string) string) windowSystem {
	if getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return wsHyprland
	}
	if getenv("SWAYSOCK") != "" {
		return wsSway
	}
	if getenv("DISPLAY") != "" {
		return wsX11
	}
	return wsUnknown
}

// scanRegion is a rectangle in screen pixels. It is handed to scan backends
// as JSON and frames every element they report.
type scanRegion struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

func (r scanRegion) center() (int32, int32) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

func (r scanRegion) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// activeWindowRegion returns the focused window's geometry.
func activeWindowRegion(ctx context.Context, ws windowSystem) (scanRegion, error) {
	switch ws {
	case wsHyprland:
		out, err := runTool(ctx, "hyprctl", "activewindow", "-j")
		if err != nil {
			return scanRegion{}, err
		}
		return parseHyprlandWindow(out)
	case wsSway:
		out, err := runTool(ctx, "swaymsg", "-t", "get_tree")
		if err != nil {
			return scanRegion{}, err
		}
		return findSwayFocused(out)
	case wsX11:
		out, err := runTool(ctx, "xdotool", "getactivewindow", "getwindowgeometry", "--shell")
		if err != nil {
			return scanRegion{}, err
		}
		return parseXdotoolGeometry(out)
	default:
		return scanRegion{}, errors.New("window system not detected; set scan.region in the config or scan the whole screen")
	}
}

// screenRegion returns the focused output's geometry.
func screenRegion(ctx context.Context, ws windowSystem) (scanRegion, error) {
	switch ws {
	case wsHyprland:
		out, err := runTool(ctx, "hyprctl", "monitors", "-j")
		if err != nil {
			return scanRegion{}, err
		}
		return parseHyprlandMonitors(out)
	case wsSway:
		out, err := runTool(ctx, "swaymsg", "-t", "get_outputs")
		if err != nil {
			return scanRegion{}, err
		}
		return parseSwayOutputs(out)
	case wsX11:
		out, err := runTool(ctx, "xdotool", "getdisplaygeometry")
		if err != nil {
			return scanRegion{}, err
		}
		return parseDisplayGeometry(out)
	default:
		return scanRegion{}, errors.New("window system not detected; set scan.region in the config")
	}
}

// runTool executes one compositor query and returns its stdout.
func runTool(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s not found in PATH", name)
	}
	tctx, cancel := context.WithTimeout(ctx, windowToolTimeout)
	defer cancel()
	out, err := exec.CommandContext(tctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %v: %s", name, err, bytes.TrimSpace(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// parseHyprlandWindow decodes `hyprctl activewindow -j`. With no focused
// window hyprctl prints an empty object, which shows up as a zero size.
func parseHyprlandWindow(out []byte) (scanRegion, error) {
	var win struct {
		At   [2]int32 `json:"at"`
		Size [2]int32 `json:"size"`
	}
	if err := json.Unmarshal(out, &win); err != nil {
		return scanRegion{}, fmt.Errorf("parse hyprctl activewindow: %w", err)
	}
	if win.Size[0] <= 0 || win.Size[1] <= 0 {
		return scanRegion{}, errors.New("hyprctl reported no active window")
	}
	return scanRegion{X: win.At[0], Y: win.At[1], Width: win.Size[0], Height: win.Size[1]}, nil
}

func parseHyprlandMonitors(out []byte) (scanRegion, error) {
	var monitors []struct {
		X       int32 `json:"x"`
		Y       int32 `json:"y"`
		Width   int32 `json:"width"`
		Height  int32 `json:"height"`
		Focused bool  `json:"focused"`
	}
	if err := json.Unmarshal(out, &monitors); err != nil {
		return scanRegion{}, fmt.Errorf("parse hyprctl monitors: %w", err)
	}
	if len(monitors) == 0 {
		return scanRegion{}, errors.New("hyprctl reported no monitors")
	}
	pick := monitors[0]
	for _, m := range monitors {
		if m.Focused {
			pick = m
			break
		}
	}
	return scanRegion{X: pick.X, Y: pick.Y, Width: pick.Width, Height: pick.Height}, nil
}

// swayNode is the slice of the sway tree we care about. Focused windows can
// hide in floating_nodes, which a plain nodes walk would miss.
type swayNode struct {
	Focused       bool       `json:"focused"`
	Rect          swayRect   `json:"rect"`
	Nodes         []swayNode `json:"nodes"`
	FloatingNodes []swayNode `json:"floating_nodes"`
}

type swayRect struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// findSwayFocused decodes `swaymsg -t get_tree` and walks it for the focused
// node.
func findSwayFocused(out []byte) (scanRegion, error) {
	var root swayNode
	if err := json.Unmarshal(out, &root); err != nil {
		return scanRegion{}, fmt.Errorf("parse swaymsg get_tree: %w", err)
	}
	node, ok := focusedSwayNode(&root)
	if !ok {
		return scanRegion{}, errors.New("sway tree has no focused window")
	}
	return scanRegion{X: node.Rect.X, Y: node.Rect.Y, Width: node.Rect.Width, Height: node.Rect.Height}, nil
}

func focusedSwayNode(n *swayNode) (*swayNode, bool) {
	if n.Focused {
		return n, true
	}
	for i := range n.Nodes {
		if f, ok := focusedSwayNode(&n.Nodes[i]); ok {
			return f, true
		}
	}
	for i := range n.FloatingNodes {
		if f, ok := focusedSwayNode(&n.FloatingNodes[i]); ok {
			return f, true
		}
	}
	return nil, false
}

func parseSwayOutputs(out []byte) (scanRegion, error) {
	var outputs []struct {
		Focused bool     `json:"focused"`
		Rect    swayRect `json:"rect"`
	}
	if err := json.Unmarshal(out, &outputs); err != nil {
		return scanRegion{}, fmt.Errorf("parse swaymsg get_outputs: %w", err)
	}
	if len(outputs) == 0 {
		return scanRegion{}, errors.New("sway reported no outputs")
	}
	pick := outputs[0]
	for _, o := range outputs {
		if o.Focused {
			pick = o
			break
		}
	}
	return scanRegion{X: pick.Rect.X, Y: pick.Rect.Y, Width: pick.Rect.Width, Height: pick.Rect.Height}, nil
}

// parseXdotoolGeometry decodes `xdotool getwindowgeometry --shell`, which
// prints KEY=VALUE lines.
func parseXdotoolGeometry(out []byte) (scanRegion, error) {
	var r scanRegion
	seen := 0
	for _, line := range strings.Split(string(out), "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(val, 10, 32)
		if err != nil {
			continue
		}
		switch key {
		case "X":
			r.X = int32(n)
			seen++
		case "Y":
			r.Y = int32(n)
			seen++
		case "WIDTH":
			r.Width = int32(n)
			seen++
		case "HEIGHT":
			r.Height = int32(n)
			seen++
		}
	}
	if seen != 4 {
		return scanRegion{}, fmt.Errorf("xdotool geometry output missing fields: %q", strings.TrimSpace(string(out)))
	}
	return r, nil
}

// parseDisplayGeometry decodes `xdotool getdisplaygeometry`, a single
// "WIDTH HEIGHT" line.
func parseDisplayGeometry(out []byte) (scanRegion, error) {
	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return scanRegion{}, fmt.Errorf("xdotool display geometry: unexpected output %q", strings.TrimSpace(string(out)))
	}
	w, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return scanRegion{}, fmt.Errorf("xdotool display geometry: %w", err)
	}
	h, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return scanRegion{}, fmt.Errorf("xdotool display geometry: %w", err)
	}
	return scanRegion{Width: int32(w), Height: int32(h)}, nil
}
