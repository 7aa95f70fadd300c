package profiler

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCollector map[string]float64

func (c staticCollector) CollectMetrics() map[string]float64 { return c }

func TestOperationStats(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 3})
	for _, d := range []time.Duration{10, 20, 30, 40} {
		rp.RecordOperation("estimate", d*time.Millisecond)
	}

	op := rp.Stats().Operations["estimate"]
	assert.Equal(t, int64(4), op.Count)
	// Window holds the last three samples.
	assert.Equal(t, 30*time.Millisecond, op.Avg)
	assert.Equal(t, 10*time.Millisecond, op.Min)
	assert.Equal(t, 40*time.Millisecond, op.Max)
}

func TestStartOperation(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{})
	done := rp.StartOperation("tick")
	done()

	assert.Equal(t, int64(1), rp.Stats().Operations["tick"].Count)
}

func TestMetricsAndCollectors(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{})
	rp.RecordMetric("fps", 10)
	rp.RecordMetric("fps", 20)
	rp.AddMetricsCollector(staticCollector{"dropped": 3})

	snap := rp.Stats()
	assert.Equal(t, 15.0, snap.Metrics["fps"].Avg)
	assert.Equal(t, 2, snap.Metrics["fps"].Samples)
	assert.Equal(t, 3.0, snap.Metrics["dropped"].Max)
}

func TestReportLogsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	rp := NewRuntimeProfiler(ProfilingOptions{Logger: logger})
	rp.RecordOperation("estimate", 5*time.Millisecond)
	rp.Report()

	assert.Contains(t, buf.String(), "profiler report")
	assert.Contains(t, buf.String(), "op.estimate")
}

func TestStartStop(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	rp := NewRuntimeProfiler(ProfilingOptions{ReportInterval: 5 * time.Millisecond, Logger: logger})
	rp.Start()
	rp.Start()
	require.Eventually(t, func() bool {
		rp.mu.RLock()
		defer rp.mu.RUnlock()
		return rp.running
	}, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	rp.Stop()
	rp.Stop()
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}

func TestFPSMeter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(100 * time.Millisecond)
		return now
	}
	m := NewFPSMeter(10, clock)

	for i := 1; i < 10; i++ {
		_, updated := m.Tick()
		assert.False(t, updated, "frame %d", i)
	}
	fps, updated := m.Tick()
	require.True(t, updated)
	// First Tick reads the clock for start, the tenth reads it again: 100ms apart.
	assert.InDelta(t, 100.0, fps, 0.001)
	assert.Equal(t, 10, m.Frames())

	m.Reset()
	assert.Equal(t, 0.0, m.FPS())
	assert.Equal(t, 0, m.Frames())
}

func TestRestartAfterStop(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{ReportInterval: time.Millisecond, Logger: logrus.New()})
	rp.Start()
	rp.Stop()
	rp.Start()
	assert.True(t, rp.running)
	rp.Stop()
	assert.False(t, rp.running)
}

func TestCollectorFunc(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{})
	rp.AddMetricsCollector(CollectorFunc(func() map[string]float64 { return nil }))
	assert.Empty(t, rp.Stats().Metrics)
}
