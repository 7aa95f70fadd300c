package profiler

import (
	"sync"
	"time"
)

// FPSMeter measures the average frame rate since the first frame, refreshed
// every window frames.
type FPSMeter struct {
	window int
	now    func() time.Time
	start  time.Time
	frames int
	fps    float64
	mu     sync.Mutex
}

// NewFPSMeter creates a meter. now defaults to time.Now.
func NewFPSMeter(window int, now func() time.Time) *FPSMeter {
	if window < 1 {
		window = 1
	}
	if now == nil {
		now = time.Now
	}
	return &FPSMeter{window: window, now: now}
}

// Tick counts one frame. It returns the frame rate and true when a new
// measurement was taken.
func (m *FPSMeter) Tick() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.start.IsZero() {
		m.start = m.now()
	}
	m.frames++
	if m.frames%m.window != 0 {
		return m.fps, false
	}
	if elapsed := m.now().Sub(m.start).Seconds(); elapsed > 0 {
		m.fps = float64(m.frames) / elapsed
	}
	return m.fps, true
}

// FPS returns the last measurement.
func (m *FPSMeter) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}

// Frames returns the number of frames counted.
func (m *FPSMeter) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Reset clears the count and the measurement.
func (m *FPSMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start = time.Time{}
	m.frames = 0
	m.fps = 0
}
