package main

import (
	"fmt"
	"strings"
)

// Element is one candidate target produced by a scanning backend.
// Immutable once produced; discarded when the session ends.
type Element struct {
	ID     string `json:"id,omitempty"`
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
	Width  int32  `json:"width"`
	Height int32  `json:"height"`
	Role   string `json:"role,omitempty"`
}

// Center returns the element's click point in screen coordinates.
func (e Element) Center() (int32, int32) {
	return e.X + e.Width/2, e.Y + e.Height/2
}

// TooManyElementsError reports that the candidate set cannot be labeled
// within the configured maximum label length. Capacity is how many labels
// fit; callers truncate to that and reallocate.
type TooManyElementsError struct {
	Elements int
	Capacity int
}

func (e *TooManyElementsError) Error() string {
	return fmt.Sprintf("too many elements: %d candidates, at most %d labels available", e.Elements, e.Capacity)
}

// allocateLabels assigns each of n elements a unique label over the alphabet.
//
// Labels are the first n base-k numerals (k = alphabet size) of the minimal
// length that can distinguish n elements, never shorter than minLength.
// Numerals are zero-padded with the alphabet's first character, so the result
// is in lexicographic alphabet order and every label has the same length.
// Deterministic: identical inputs produce identical labels in identical order.
func allocateLabels(n int, alphabet []rune, minLength, maxLength int) ([]string, error) {
	if n < 0 {
		return nil, fmt.Errorf("element count must be >= 0, got %d", n)
	}
	if n == 0 {
		return nil, nil
	}
	k := len(alphabet)
	if k < 2 {
		return nil, fmt.Errorf("alphabet must have at least 2 characters, got %d", k)
	}
	if minLength < 1 {
		minLength = 1
	}
	if maxLength < minLength {
		maxLength = minLength
	}

	length := minLength
	capacity := intPow(k, length)
	for capacity < n && length < maxLength {
		length++
		capacity *= k
	}
	if capacity < n {
		return nil, &TooManyElementsError{Elements: n, Capacity: capacity}
	}

	labels := make([]string, n)
	buf := make([]rune, length)
	for i := 0; i < n; i++ {
		v := i
		for pos := length - 1; pos >= 0; pos-- {
			buf[pos] = alphabet[v%k]
			v /= k
		}
		labels[i] = string(buf)
	}
	return labels, nil
}

// intPow is integer exponentiation, saturating well above any plausible
// element count so capacity comparisons stay meaningful.
func intPow(base, exp int) int {
	const limit = 1 << 30
	out := 1
	for i := 0; i < exp; i++ {
		out *= base
		if out > limit {
			return limit
		}
	}
	return out
}

// hintMap is a session's label-to-element mapping. Built once per session
// and read-only afterwards.
type hintMap struct {
	labels   []string
	elements []Element
	byLabel  map[string]int
}

func newHintMap(elements []Element, labels []string) (*hintMap, error) {
	if len(elements) != len(labels) {
		return nil, fmt.Errorf("label/element count mismatch: %d labels for %d elements", len(labels), len(elements))
	}
	byLabel := make(map[string]int, len(labels))
	for i, l := range labels {
		if _, dup := byLabel[l]; dup {
			return nil, fmt.Errorf("duplicate label %q", l)
		}
		byLabel[l] = i
	}
	return &hintMap{labels: labels, elements: elements, byLabel: byLabel}, nil
}

func (m *hintMap) len() int { return len(m.labels) }

// lookup returns the element bound to an exact label.
func (m *hintMap) lookup(label string) (Element, bool) {
	i, ok := m.byLabel[label]
	if !ok {
		return Element{}, false
	}
	return m.elements[i], true
}

// matchPrefix reports how many labels start with prefix and whether the
// prefix is itself a complete label.
func (m *hintMap) matchPrefix(prefix string) (candidates int, exact bool) {
	for _, l := range m.labels {
		if strings.HasPrefix(l, prefix) {
			candidates++
		}
	}
	_, exact = m.byLabel[prefix]
	return candidates, exact
}
