package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// run feeds one decision per second and returns the transitions.
func run(tr *Tracker, signal ...bool) []Transition {
	out := make([]Transition, 0, len(signal))
	for i, m := range signal {
		out = append(out, tr.Update(m, epoch.Add(time.Duration(i)*time.Second)))
	}
	return out
}

func TestTrackerTransitions(t *testing.T) {
	const (
		N = TransitionNone
		O = TransitionOpen
		C = TransitionContinue
		X = TransitionClose
	)

	tests := []struct {
		name      string
		threshold time.Duration
		signal    []bool
		expected  []Transition
		final     State
	}{
		{
			name:      "no motion",
			threshold: 2 * time.Second,
			signal:    []bool{false, false, false},
			expected:  []Transition{N, N, N},
			final:     Idle,
		},
		{
			name:      "confirmed exactly at threshold",
			threshold: 2 * time.Second,
			signal:    []bool{true, true, true, true},
			expected:  []Transition{N, N, O, C},
			final:     Active,
		},
		{
			name:      "transient discarded",
			threshold: 2 * time.Second,
			signal:    []bool{true, true, false, true, true},
			expected:  []Transition{N, N, N, N, N},
			final:     Pending,
		},
		{
			name:      "immediate close",
			threshold: 1 * time.Second,
			signal:    []bool{true, true, true, false, false},
			expected:  []Transition{N, O, C, X, N},
			final:     Idle,
		},
		{
			name:      "zero threshold confirms on second positive",
			threshold: 0,
			signal:    []bool{false, true, true, false, true, true},
			expected:  []Transition{N, N, O, X, N, O},
			final:     Active,
		},
		{
			name:      "zero threshold single positive stays pending",
			threshold: 0,
			signal:    []bool{true},
			expected:  []Transition{N},
			final:     Pending,
		},
		{
			name:      "negative threshold acts as zero",
			threshold: -time.Second,
			signal:    []bool{true, true},
			expected:  []Transition{N, O},
			final:     Active,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(tt.threshold)
			assert.Equal(t, tt.expected, run(tr, tt.signal...))
			assert.Equal(t, tt.final, tr.State())
		})
	}
}

func TestTrackerStartedAt(t *testing.T) {
	tr := NewTracker(2 * time.Second)
	assert.True(t, tr.StartedAt().IsZero())

	tr.Update(true, epoch)
	tr.Update(true, epoch.Add(time.Second))
	assert.Equal(t, epoch, tr.StartedAt())
	assert.Equal(t, Pending, tr.State())
	assert.False(t, tr.Confirmed())

	// A transient clears the start so the next event measures afresh.
	tr.Update(false, epoch.Add(2*time.Second))
	assert.True(t, tr.StartedAt().IsZero())

	tr.Update(true, epoch.Add(3*time.Second))
	assert.Equal(t, epoch.Add(3*time.Second), tr.StartedAt())
	assert.Equal(t, TransitionNone, tr.Update(true, epoch.Add(4*time.Second)))
	assert.Equal(t, TransitionOpen, tr.Update(true, epoch.Add(5*time.Second)))
	assert.True(t, tr.Confirmed())
	assert.Equal(t, epoch.Add(3*time.Second), tr.StartedAt())
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker(0)
	assert.False(t, tr.Reset())

	tr.Update(true, epoch)
	require.Equal(t, Pending, tr.State())
	assert.False(t, tr.Reset())

	tr.Update(true, epoch)
	tr.Update(true, epoch.Add(time.Second))
	require.Equal(t, Active, tr.State())
	assert.True(t, tr.Reset())
	assert.Equal(t, Idle, tr.State())
	assert.True(t, tr.StartedAt().IsZero())
	assert.False(t, tr.Reset())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "close", TransitionClose.String())
	assert.Equal(t, "state(9)", State(9).String())
}
