// Package pulse flags display values that just changed.
//
// A Tracker holds the last displayed text for a set of target ids. Setting
// a value whose stringified form differs from what is currently displayed
// marks the target as pulsing for a fixed duration; setting the identical
// value again does nothing. The pulse is purely cosmetic and never feeds
// back into the data model.
package pulse

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tsarna/go-structdiff"
)

// DefaultDuration is how long a target stays pulsing after a change.
const DefaultDuration = 600 * time.Millisecond

// Cell is one target's display state.
type Cell struct {
	Text    string
	Pulsing bool
}

// Tracker tracks displayed values and their pulse state for registered
// target ids. Unregistered ids are silently ignored.
type Tracker struct {
	duration time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cells map[string]*cell
}

type cell struct {
	text       string
	pulseUntil time.Time
}

// Register creates targets for the given ids. Registering an existing id
// keeps its current state.
func (t *Tracker) Register(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if _, ok := t.cells[id]; !ok {
			t.cells[id] = &cell{}
		}
	}
}

// Set updates the target's displayed value. It returns true iff the
// stringified value differs from what was displayed before, in which case
// the target pulses for the configured duration. An unknown id is a silent
// no-op returning false.
func (t *Tracker) Set(id string, value any) bool {
	text := formatValue(value)

	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.cells[id]
	if !ok {
		return false
	}
	if c.text == text {
		return false
	}
	c.text = text
	c.pulseUntil = t.now().Add(t.duration)
	return true
}

// Apply sets every id/value pair independently and returns how many
// targets pulsed. Missing ids are skipped without affecting the rest.
func (t *Tracker) Apply(values map[string]any) int {
	pulsed := 0
	for id, value := range values {
		if t.Set(id, value) {
			pulsed++
		}
	}
	return pulsed
}

// ApplyChanged diffs two snapshots of the same shape and applies only the
// fields that changed, using "<prefix>.<field>" as target ids. Fields the
// diff does not mention keep their current display state, so an unchanged
// field never pulses.
func (t *Tracker) ApplyChanged(prefix string, oldValue, newValue any) (int, error) {
	diff, err := structdiff.Diff(oldValue, newValue)
	if err != nil {
		return 0, fmt.Errorf("failed to diff values: %w", err)
	}

	diffMap, _ := diff.(map[string]any)
	values := make(map[string]any, len(diffMap))
	for field, value := range diffMap {
		values[prefix+"."+field] = value
	}
	return t.Apply(values), nil
}

// IsPulsing reports whether the target changed within the pulse duration.
func (t *Tracker) IsPulsing(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.cells[id]
	if !ok {
		return false
	}
	return t.now().Before(c.pulseUntil)
}

// Text returns the currently displayed text for a target.
func (t *Tracker) Text(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.cells[id]; ok {
		return c.text
	}
	return ""
}

// Snapshot returns the display state of every registered target.
func (t *Tracker) Snapshot() map[string]Cell {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	snapshot := make(map[string]Cell, len(t.cells))
	for id, c := range t.cells {
		snapshot[id] = Cell{
			Text:    c.text,
			Pulsing: now.Before(c.pulseUntil),
		}
	}
	return snapshot
}

// formatValue stringifies a display value. Strings pass through; composite
// values use JSON so equal values always stringify identically.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}

	if data, err := json.Marshal(value); err == nil {
		return string(data)
	}
	return fmt.Sprint(value)
}

// TrackerBuilder provides a fluent interface for building Trackers.
type TrackerBuilder struct {
	duration time.Duration
	now      func() time.Time
}

// NewTracker creates a new Tracker builder.
func NewTracker() *TrackerBuilder {
	return &TrackerBuilder{
		duration: DefaultDuration,
		now:      time.Now,
	}
}

// WithDuration sets how long a target pulses after a change.
func (b *TrackerBuilder) WithDuration(d time.Duration) *TrackerBuilder {
	if d > 0 {
		b.duration = d
	}
	return b
}

// WithClock sets the time source, mainly for tests.
func (b *TrackerBuilder) WithClock(now func() time.Time) *TrackerBuilder {
	if now != nil {
		b.now = now
	}
	return b
}

// Build creates the Tracker.
func (b *TrackerBuilder) Build() *Tracker {
	return &Tracker{
		duration: b.duration,
		now:      b.now,
		cells:    make(map[string]*cell),
	}
}
