package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced time source.
type testClock struct {
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	return c.current
}

func (c *testClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestTracker(clock *testClock) *Tracker {
	return NewTracker().WithClock(clock.now).Build()
}

func TestSetPulsesOnChange(t *testing.T) {
	clock := newTestClock()
	tracker := newTestTracker(clock)
	tracker.Register("cpu")

	assert.True(t, tracker.Set("cpu", "42%"))
	assert.True(t, tracker.IsPulsing("cpu"))
	assert.Equal(t, "42%", tracker.Text("cpu"))
}

func TestSetSameValueDoesNotPulse(t *testing.T) {
	clock := newTestClock()
	tracker := newTestTracker(clock)
	tracker.Register("cpu")

	require.True(t, tracker.Set("cpu", "42%"))
	clock.advance(DefaultDuration + time.Millisecond)
	require.False(t, tracker.IsPulsing("cpu"))

	assert.False(t, tracker.Set("cpu", "42%"))
	assert.False(t, tracker.IsPulsing("cpu"))
}

func TestPulseExpires(t *testing.T) {
	clock := newTestClock()
	tracker := newTestTracker(clock)
	tracker.Register("cpu")

	tracker.Set("cpu", "42%")

	clock.advance(DefaultDuration - time.Millisecond)
	assert.True(t, tracker.IsPulsing("cpu"))

	clock.advance(2 * time.Millisecond)
	assert.False(t, tracker.IsPulsing("cpu"))
	assert.Equal(t, "42%", tracker.Text("cpu"), "the value stays after the pulse fades")
}

func TestChangeDuringPulseExtendsIt(t *testing.T) {
	clock := newTestClock()
	tracker := newTestTracker(clock)
	tracker.Register("cpu")

	tracker.Set("cpu", "42%")
	clock.advance(DefaultDuration / 2)
	require.True(t, tracker.Set("cpu", "43%"))

	clock.advance(DefaultDuration - time.Millisecond)
	assert.True(t, tracker.IsPulsing("cpu"), "pulse window restarts on each change")
}

func TestUnknownTargetIsIgnored(t *testing.T) {
	tracker := newTestTracker(newTestClock())

	assert.False(t, tracker.Set("nope", "x"))
	assert.False(t, tracker.IsPulsing("nope"))
	assert.Equal(t, "", tracker.Text("nope"))
}

func TestApplyCountsChangedTargets(t *testing.T) {
	clock := newTestClock()
	tracker := newTestTracker(clock)
	tracker.Register("cpu", "mem")
	tracker.Set("cpu", "42%")

	pulsed := tracker.Apply(map[string]any{
		"cpu":  "42%", // unchanged
		"mem":  "2048",
		"disk": "90%", // unregistered
	})
	assert.Equal(t, 1, pulsed)
	assert.False(t, tracker.Set("cpu", "42%"))
	assert.Equal(t, "2048", tracker.Text("mem"))
}

func TestApplyChangedOnlyTouchesDiffedFields(t *testing.T) {
	type hostStats struct {
		CPU  float64 `json:"cpu"`
		Mem  int     `json:"mem"`
		Disk float64 `json:"disk"`
	}

	clock := newTestClock()
	tracker := newTestTracker(clock)
	tracker.Register("host.cpu", "host.mem", "host.disk")

	before := hostStats{CPU: 10, Mem: 2048, Disk: 61.5}
	after := hostStats{CPU: 35, Mem: 2048, Disk: 61.5}

	pulsed, err := tracker.ApplyChanged("host", before, after)
	require.NoError(t, err)

	assert.Equal(t, 1, pulsed)
	assert.True(t, tracker.IsPulsing("host.cpu"))
	assert.False(t, tracker.IsPulsing("host.mem"))
	assert.False(t, tracker.IsPulsing("host.disk"))
}

func TestFormatValueStringifiesConsistently(t *testing.T) {
	clock := newTestClock()
	tracker := newTestTracker(clock)
	tracker.Register("x")

	require.True(t, tracker.Set("x", map[string]any{"b": 2, "a": 1}))
	clock.advance(DefaultDuration + time.Millisecond)

	// Equal maps stringify identically regardless of insertion order.
	assert.False(t, tracker.Set("x", map[string]any{"a": 1, "b": 2}))

	require.True(t, tracker.Set("x", nil))
	assert.Equal(t, "", tracker.Text("x"))
}

func TestSnapshot(t *testing.T) {
	clock := newTestClock()
	tracker := NewTracker().
		WithDuration(100 * time.Millisecond).
		WithClock(clock.now).
		Build()
	tracker.Register("cpu", "mem")

	tracker.Set("cpu", "42%")
	clock.advance(150 * time.Millisecond)
	tracker.Set("mem", "2048")

	snapshot := tracker.Snapshot()
	assert.Equal(t, Cell{Text: "42%", Pulsing: false}, snapshot["cpu"])
	assert.Equal(t, Cell{Text: "2048", Pulsing: true}, snapshot["mem"])
}
