package main

import (
	"sync"
	"time"
)

// moveTracker records recent direction-key activity for velocity detection.
// Holding a direction key delivers autorepeat as individual keystrokes; once
// enough land in the window the session scales the nudge distance up, so a
// held key crosses the screen without a thousand taps.
//
// Thread-safe: key sources run on their own goroutines.
type moveTracker struct {
	recent []moveStep
	mu     sync.Mutex
}

// moveStep records a single pointer nudge.
type moveStep struct {
	timestamp time.Time
	dir       direction
}

func newMoveTracker() *moveTracker {
	return &moveTracker{
		recent: make([]moveStep, 0, 16),
	}
}

// addStep records a nudge and returns the count of recent nudges in the same
// direction within the window, the new one included. The caller compares the
// count against its velocity threshold to decide whether to scale the step.
func (m *moveTracker) addStep(dir direction, windowMS int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Duration(windowMS) * time.Millisecond)

	filtered := m.recent[:0] // reuse underlying array
	for _, s := range m.recent {
		if s.timestamp.After(cutoff) {
			filtered = append(filtered, s)
		}
	}

	filtered = append(filtered, moveStep{timestamp: now, dir: dir})
	m.recent = filtered

	sameDir := 0
	for _, s := range filtered {
		if s.dir == dir {
			sameDir++
		}
	}

	return sameDir
}
