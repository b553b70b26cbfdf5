package main

import (
	"context"
	"testing"
)

func TestParseBackendOutput(t *testing.T) {
	out := []byte(`[
		{"x": 10, "y": 20, "width": 30, "height": 40, "role": "button"},
		{"x": 50, "y": 60, "width": 70, "height": 80}
	]`)
	elements, err := parseBackendOutput(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(elements) != 2 {
		t.Fatalf("got %d elements, want 2", len(elements))
	}
	if elements[0].Role != "button" || elements[0].X != 10 {
		t.Errorf("elements[0] = %+v", elements[0])
	}
}

func TestParseBackendOutputDropsDegenerate(t *testing.T) {
	out := []byte(`[
		{"x": 10, "y": 20, "width": 0, "height": 40},
		{"x": 50, "y": 60, "width": 70, "height": 80}
	]`)
	elements, err := parseBackendOutput(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(elements) != 1 || elements[0].X != 50 {
		t.Fatalf("elements = %+v, want only the 70x80 box", elements)
	}
}

func TestParseBackendOutputEmpty(t *testing.T) {
	elements, err := parseBackendOutput([]byte("  \n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(elements) != 0 {
		t.Fatalf("got %d elements, want 0", len(elements))
	}
}

func TestParseBackendOutputInvalid(t *testing.T) {
	if _, err := parseBackendOutput([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

// A failing backend is skipped; the others still deliver.
func TestRunBackendsSkipsFailures(t *testing.T) {
	backends := []BackendConfig{
		{Name: "broken", Command: []string{"false"}},
		{Name: "echo", Command: []string{"sh", "-c",
			`cat >/dev/null; echo '[{"x":1,"y":2,"width":3,"height":4}]'`}},
	}
	elements, err := runBackends(context.Background(), backends, scanRegion{Width: 100, Height: 100}, setupLogger(LogLevelError))
	if err != nil {
		t.Fatalf("run backends: %v", err)
	}
	if len(elements) != 1 || elements[0].X != 1 {
		t.Fatalf("elements = %+v, want the echoed box", elements)
	}
}

func TestRunBackendsAllFailed(t *testing.T) {
	backends := []BackendConfig{
		{Name: "broken", Command: []string{"false"}},
	}
	if _, err := runBackends(context.Background(), backends, scanRegion{}, setupLogger(LogLevelError)); err == nil {
		t.Fatal("expected error when every backend fails")
	}
}

// The backend receives the scan region on stdin.
func TestRunBackendReceivesRegion(t *testing.T) {
	b := BackendConfig{Name: "cat", Command: []string{"sh", "-c",
		`read line; echo "[$line]" >/dev/null; echo '[]'`}}
	if _, err := runBackend(context.Background(), b, scanRegion{X: 5, Y: 6, Width: 7, Height: 8}); err != nil {
		t.Fatalf("run backend: %v", err)
	}
}

func TestTruncateElementsKeepsClosest(t *testing.T) {
	elements := []Element{
		{X: 0, Y: 0, Width: 10, Height: 10},     // far
		{X: 95, Y: 95, Width: 10, Height: 10},   // at center
		{X: 200, Y: 200, Width: 10, Height: 10}, // far
		{X: 90, Y: 100, Width: 10, Height: 10},  // near center
	}
	kept := truncateElements(elements, 2, 100, 100)
	if len(kept) != 2 {
		t.Fatalf("kept %d elements, want 2", len(kept))
	}
	// Scan order is preserved among the survivors.
	if kept[0].X != 95 || kept[1].X != 90 {
		t.Errorf("kept = %+v, want the two center-adjacent boxes in scan order", kept)
	}
}

func TestTruncateElementsNoOpWhenSmall(t *testing.T) {
	elements := []Element{{Width: 10, Height: 10}}
	kept := truncateElements(elements, 5, 0, 0)
	if len(kept) != 1 {
		t.Fatalf("kept %d elements, want 1", len(kept))
	}
}

// Truncation is deterministic: same inputs, same survivors.
func TestTruncateElementsDeterministic(t *testing.T) {
	elements := []Element{
		{X: 10, Y: 10, Width: 10, Height: 10},
		{X: 20, Y: 20, Width: 10, Height: 10},
		{X: 30, Y: 30, Width: 10, Height: 10},
		{X: 40, Y: 40, Width: 10, Height: 10},
	}
	first := truncateElements(elements, 2, 25, 25)
	second := truncateElements(elements, 2, 25, 25)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("truncation not deterministic at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}
