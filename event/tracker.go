// Package event - Debounces the per-frame motion signal into motion events.
//
// A motion event starts Pending on the first positive frame and becomes
// Active once motion has been reported continuously for the duration
// threshold. Hysteresis applies on entry only: the first negative frame
// ends a Pending event without a trace and closes an Active one at once.
package event

import (
	"fmt"
	"sync"
	"time"
)

// State is the tracker state.
type State int

const (
	// Idle means no motion is being tracked.
	Idle State = iota
	// Pending means motion started but is not yet confirmed.
	Pending
	// Active means motion is confirmed and a recording is open.
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Active:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transition tells the caller what to do with the recording this tick.
type Transition int

const (
	// TransitionNone requires no recording action.
	TransitionNone Transition = iota
	// TransitionOpen confirms the event: open a recording and append this frame.
	TransitionOpen
	// TransitionContinue appends this frame to the open recording.
	TransitionContinue
	// TransitionClose ends the event: close the recording, this frame is not appended.
	TransitionClose
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionOpen:
		return "open"
	case TransitionContinue:
		return "continue"
	case TransitionClose:
		return "close"
	}
	return fmt.Sprintf("transition(%d)", int(t))
}

// Tracker is the motion event state machine.
type Tracker struct {
	threshold time.Duration
	state     State
	startedAt time.Time
	mu        sync.Mutex
}

// NewTracker creates an Idle tracker. A non-positive threshold confirms
// motion on the second consecutive positive frame.
//
// @example
// tracker := NewTracker(2 * time.Second)
// switch tracker.Update(res.Motion, now) {
// case TransitionOpen:
// ...
// }
func NewTracker(threshold time.Duration) *Tracker {
	if threshold < 0 {
		threshold = 0
	}
	return &Tracker{threshold: threshold}
}

// Update feeds one frame's motion decision observed at now.
func (t *Tracker) Update(motion bool, now time.Time) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case Idle:
		if !motion {
			return TransitionNone
		}
		t.state = Pending
		t.startedAt = now
		return TransitionNone

	case Pending:
		if !motion {
			t.state = Idle
			t.startedAt = time.Time{}
			return TransitionNone
		}
		return t.confirm(now)

	case Active:
		if !motion {
			t.state = Idle
			t.startedAt = time.Time{}
			return TransitionClose
		}
		return TransitionContinue
	}
	return TransitionNone
}

// confirm promotes a Pending event once it lasted long enough.
func (t *Tracker) confirm(now time.Time) Transition {
	if now.Sub(t.startedAt) >= t.threshold {
		t.state = Active
		return TransitionOpen
	}
	return TransitionNone
}

// Reset returns to Idle. Returns true if an Active event was abandoned, in
// which case the caller must close its recording.
func (t *Tracker) Reset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasActive := t.state == Active
	t.state = Idle
	t.startedAt = time.Time{}
	return wasActive
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// StartedAt returns when the current event began. Zero when Idle.
func (t *Tracker) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// Confirmed reports whether the current event is Active.
func (t *Tracker) Confirmed() bool {
	return t.State() == Active
}

// Threshold returns the confirmation duration.
func (t *Tracker) Threshold() time.Duration {
	return t.threshold
}
