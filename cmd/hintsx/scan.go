package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"time"
)

// ============================================================================
// Scanning backends
// ============================================================================
// Backends are external executables. Each one receives the scan region as
// JSON on stdin and prints a JSON array of elements on stdout; how it finds
// them (accessibility tree, screenshot matching) is its own business. Results
// concatenate in config order. A failing backend is logged and skipped: one
// broken detector should not kill the session when another still delivers.
// ============================================================================

// backendTimeout bounds one backend run. Vision backends grab and process a
// screenshot, which can take a while on large displays.
const backendTimeout = 15 * time.Second

// runBackends executes every configured backend against the region and
// returns the combined element list. The error is non-nil only when every
// backend failed; an empty element list from working backends is a valid
// result (the session simply has nothing to show).
func runBackends(ctx context.Context, backends []BackendConfig, region scanRegion, logger *slog.Logger) ([]Element, error) {
	var elements []Element
	failures := 0

	for _, b := range backends {
		found, err := runBackend(ctx, b, region)
		if err != nil {
			logger.Warn("scan backend failed", "backend", b.Name, "error", err)
			failures++
			continue
		}
		logger.Debug("scan backend finished", "backend", b.Name, "elements", len(found))
		elements = append(elements, found...)
	}

	if failures > 0 && failures == len(backends) {
		return nil, fmt.Errorf("all %d scan backends failed", failures)
	}
	return elements, nil
}

// runBackend executes one backend and parses its output.
func runBackend(ctx context.Context, b BackendConfig, region scanRegion) ([]Element, error) {
	input, err := json.Marshal(region)
	if err != nil {
		return nil, fmt.Errorf("encode scan region: %w", err)
	}

	bctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()

	cmd := exec.CommandContext(bctx, b.Command[0], b.Command[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %v: %s", b.Command[0], err, bytes.TrimSpace(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%s: %w", b.Command[0], err)
	}

	return parseBackendOutput(out)
}

// parseBackendOutput decodes the element array a backend printed. Elements
// with a non-positive size are dropped; a degenerate box has no center to
// click.
func parseBackendOutput(out []byte) ([]Element, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var elements []Element
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, fmt.Errorf("parse backend output: %w", err)
	}

	kept := elements[:0]
	for _, e := range elements {
		if e.Width <= 0 || e.Height <= 0 {
			continue
		}
		kept = append(kept, e)
	}
	return kept, nil
}

// truncateElements keeps the n elements closest to (cx, cy), preserving scan
// order among the kept ones so labels remain stable for the survivors.
// Called when the allocator reports more candidates than labels.
func truncateElements(elements []Element, n int, cx, cy int32) []Element {
	if n >= len(elements) {
		return elements
	}
	if n <= 0 {
		return nil
	}

	type ranked struct {
		index int
		dist  int64
	}
	order := make([]ranked, len(elements))
	for i, e := range elements {
		ex, ey := e.Center()
		dx, dy := int64(ex-cx), int64(ey-cy)
		order[i] = ranked{index: i, dist: dx*dx + dy*dy}
	}
	sort.SliceStable(order, func(a, b int) bool {
		if order[a].dist != order[b].dist {
			return order[a].dist < order[b].dist
		}
		return order[a].index < order[b].index
	})

	keep := make([]bool, len(elements))
	for _, r := range order[:n] {
		keep[r.index] = true
	}

	out := make([]Element, 0, n)
	for i, e := range elements {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}
