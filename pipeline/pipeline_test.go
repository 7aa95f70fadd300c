package pipeline

import (
	"context"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-motion/catalog"
	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/event"
	"github.com/nvr-ai/go-motion/images"
	"github.com/nvr-ai/go-motion/inference/detectors"
	"github.com/nvr-ai/go-motion/profiler"
	"github.com/nvr-ai/go-motion/recording"
	"github.com/nvr-ai/go-motion/source"
	"github.com/nvr-ai/go-motion/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// sliceSource plays back a fixed list of frames, then ends.
type sliceSource struct {
	frames []gocv.Mat
	next   int
	closed int
}

func (s *sliceSource) Next(dst *gocv.Mat) error {
	if s.next >= len(s.frames) {
		return source.ErrEndOfStream
	}
	f := s.frames[s.next]
	s.next++
	return f.CopyTo(dst)
}

func (s *sliceSource) Size() image.Point {
	if len(s.frames) == 0 {
		return image.Point{}
	}
	return image.Pt(s.frames[0].Cols(), s.frames[0].Rows())
}

func (s *sliceSource) Describe() string { return "slice" }

func (s *sliceSource) Close() error {
	s.closed++
	for _, f := range s.frames {
		f.Close()
	}
	return nil
}

// emptySource yields empty frames, which the estimator rejects.
type emptySource struct {
	closed int
}

func (s *emptySource) Next(dst *gocv.Mat) error {
	dst.Close()
	*dst = gocv.NewMat()
	return nil
}

func (s *emptySource) Size() image.Point { return image.Point{} }
func (s *emptySource) Describe() string  { return "empty" }
func (s *emptySource) Close() error      { s.closed++; return nil }

// scenario builds ten frames: three static, five with a moving block, and the
// last block frame twice more.
func scenario() *sliceSource {
	gen := test.NewFrameGenerator(640, 480)
	src := &sliceSource{}
	for i := 0; i < 3; i++ {
		src.frames = append(src.frames, gen.Static())
	}
	for i := 0; i < 5; i++ {
		src.frames = append(src.frames, gen.Block(100+60*i, 150, 80))
	}
	for i := 0; i < 2; i++ {
		src.frames = append(src.frames, gen.Block(100+60*4, 150, 80))
	}
	return src
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Video.OutputDir = dir
	cfg.Video.FPS = 10
	cfg.YOLO.Enabled = false
	cfg.Detector.MotionDurationThreshold = 2
	cfg.Pipeline.ReportInterval = 0
	return cfg
}

type harness struct {
	cfg      *config.Config
	clock    *test.Clock
	pipeline *Pipeline
	catalog  *catalog.Catalog
	clips    []recording.Clip
}

func newHarness(t *testing.T, src source.Source, detector detectors.Detector) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{cfg: testConfig(dir), clock: test.NewClock(epoch)}

	rec, err := recording.NewRecorder(recording.Options{
		Dir:       dir,
		Codec:     h.cfg.Recording.Codec,
		Extension: h.cfg.Recording.Extension,
		FPS:       h.cfg.Video.FPS,
		Now:       h.clock.Now,
		OnClose:   func(c recording.Clip) { h.clips = append(h.clips, c) },
	})
	require.NoError(t, err)

	snaps, err := recording.NewSnapshotSink(dir, images.FormatJPEG, 90)
	require.NoError(t, err)

	h.catalog, err = catalog.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.catalog.Close() })

	h.pipeline, err = New(h.cfg, Deps{
		Open:      func(source.Descriptor) (source.Source, error) { return src, nil },
		Detector:  detector,
		Recorder:  rec,
		Snapshots: snaps,
		Catalog:   h.catalog,
		Now:       h.clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.pipeline.Close() })
	return h
}

func TestMotionEventScenario(t *testing.T) {
	src := scenario()
	h := newHarness(t, src, nil)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{Kind: config.SourceVideo}))

	var results []*TickResult
	for i := 0; i < 10; i++ {
		h.clock.Advance(time.Second)
		res, err := h.pipeline.Tick(ctx)
		require.NoError(t, err, "tick %d", i+1)
		require.NoError(t, res.Err, "tick %d", i+1)
		results = append(results, res)
	}

	motion := make([]bool, len(results))
	for i, r := range results {
		motion[i] = r.Motion
	}
	assert.Equal(t, []bool{false, false, false, true, true, true, true, true, false, false}, motion)
	assert.True(t, results[0].Warmup)

	assert.Equal(t, event.Pending, results[3].State)
	assert.Equal(t, event.Pending, results[4].State)
	assert.Equal(t, event.TransitionOpen, results[5].Transition)
	assert.Equal(t, event.Active, results[5].State)
	assert.NotEmpty(t, results[5].Recording)
	assert.Equal(t, event.TransitionContinue, results[7].Transition)
	assert.Equal(t, event.TransitionClose, results[8].Transition)
	assert.Equal(t, event.Idle, results[8].State)
	assert.Empty(t, results[8].Recording)

	require.Len(t, h.clips, 1)
	assert.Equal(t, 3, h.clips[0].Frames)
	assert.Equal(t, filepath.Join(h.cfg.Video.OutputDir, recording.ClipName(epoch.Add(4*time.Second), ".avi")), h.clips[0].Path)
	assert.FileExists(t, h.clips[0].Path)

	snaps, err := filepath.Glob(filepath.Join(h.cfg.Video.OutputDir, recording.SnapshotPrefix+"*.jpg"))
	require.NoError(t, err)
	assert.Len(t, snaps, 5)

	_, err = h.pipeline.Tick(ctx)
	assert.True(t, errors.Is(err, source.ErrEndOfStream))

	recs, err := h.catalog.Recordings()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 3, recs[0].Frames)
	assert.False(t, recs[0].EndedAt.IsZero())

	rows, err := h.catalog.Snapshots()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	linked := 0
	for _, s := range rows {
		if s.RecordingID.Valid {
			assert.Equal(t, recs[0].ID, s.RecordingID.UUID)
			linked++
		}
	}
	assert.Equal(t, 3, linked)
}

func TestRunStopsAtEndOfStream(t *testing.T) {
	src := scenario()
	h := newHarness(t, src, nil)
	h.pipeline.tracker = event.NewTracker(0)

	ctx := context.Background()
	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{Kind: config.SourceVideo}))
	require.NoError(t, h.pipeline.Run(ctx))

	assert.Equal(t, 1, src.closed)
	assert.False(t, h.pipeline.Stats().Running)
	require.Len(t, h.clips, 1)
	// Opened on the second motion frame, closed on frame 9.
	assert.Equal(t, 4, h.clips[0].Frames)
}

func TestStopClosesOpenSession(t *testing.T) {
	src := scenario()
	h := newHarness(t, src, nil)
	h.pipeline.tracker = event.NewTracker(0)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{Kind: config.SourceVideo}))
	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Second)
		_, err := h.pipeline.Tick(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, event.Active, h.pipeline.Stats().State)
	require.Empty(t, h.clips)

	require.NoError(t, h.pipeline.Stop())
	require.NoError(t, h.pipeline.Stop())

	require.Len(t, h.clips, 1)
	assert.Equal(t, 1, h.clips[0].Frames)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, event.Idle, h.pipeline.Stats().State)

	_, err := h.pipeline.Tick(ctx)
	assert.True(t, errors.Is(err, ErrNotStarted))
}

func TestCircuitBreaker(t *testing.T) {
	src := &emptySource{}
	h := newHarness(t, src, nil)
	h.cfg.Pipeline.MaxConsecutiveFailures = 3
	ctx := context.Background()

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{Kind: config.SourceVideo}))
	err := h.pipeline.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooManyFailures))
	assert.Equal(t, 1, src.closed)
}

func TestCircuitBreakerDisabled(t *testing.T) {
	src := &emptySource{}
	h := newHarness(t, src, nil)
	h.cfg.Pipeline.MaxConsecutiveFailures = 0
	ctx := context.Background()

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{Kind: config.SourceVideo}))
	for i := 0; i < 50; i++ {
		res, err := h.pipeline.Tick(ctx)
		require.NoError(t, err)
		require.Error(t, res.Err)
	}
	assert.Equal(t, 50, h.pipeline.Stats().Failures)
}

func TestStartFailureLeavesNothingOpen(t *testing.T) {
	h := newHarness(t, &emptySource{}, nil)
	h.pipeline.deps.Open = func(source.Descriptor) (source.Source, error) {
		return nil, errors.Wrap(source.ErrSourceUnavailable, "camera 0")
	}
	ctx := context.Background()

	err := h.pipeline.Start(ctx, source.Descriptor{Kind: config.SourceCamera})
	require.Error(t, err)
	assert.True(t, errors.Is(err, source.ErrSourceUnavailable))
	assert.False(t, h.pipeline.Stats().Running)

	_, err = h.pipeline.Tick(ctx)
	assert.True(t, errors.Is(err, ErrNotStarted))
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, scenario(), nil)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{}))
	assert.True(t, errors.Is(h.pipeline.Start(ctx, source.Descriptor{}), ErrAlreadyStarted))
}

func TestCancelledContext(t *testing.T) {
	src := scenario()
	h := newHarness(t, src, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{}))
	cancel()
	require.NoError(t, h.pipeline.Run(ctx))
	assert.Equal(t, 1, src.closed)
}

func TestDetectorFailureKeepsTicking(t *testing.T) {
	failing := detectors.Func(func(gocv.Mat, float32) ([]detectors.Detection, error) {
		return nil, errors.New("session lost")
	})
	h := newHarness(t, scenario(), failing)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{}))
	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Second)
		res, err := h.pipeline.Tick(ctx)
		require.NoError(t, err)
		assert.NoError(t, res.Err)
		assert.Empty(t, res.Detections)
	}
	assert.Zero(t, h.pipeline.Stats().Failures)
}

func TestStatsReportsDetections(t *testing.T) {
	person := detectors.Func(func(gocv.Mat, float32) ([]detectors.Detection, error) {
		return []detectors.Detection{{Label: "person", Box: image.Rect(10, 10, 50, 90), Score: 0.9}}, nil
	})
	h := newHarness(t, scenario(), person)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{}))
	var frames []image.Point
	var fps []float64
	h.pipeline.SetPreview(func(frame gocv.Mat, r *TickResult) {
		frames = append(frames, image.Pt(frame.Cols(), frame.Rows()))
		fps = append(fps, r.FPS)
	})
	for i := 0; i < 4; i++ {
		h.clock.Advance(time.Second)
		_, err := h.pipeline.Tick(ctx)
		require.NoError(t, err)
	}

	stats := h.pipeline.Stats()
	assert.Equal(t, "slice", stats.Source)
	assert.Equal(t, []string{"person"}, stats.Labels)
	assert.Equal(t, 1, stats.Objects)
	assert.Equal(t, "Status: Moving Object detected, Objects: 1, YOLO: person", stats.String())
	assert.Len(t, frames, 4)
	assert.Equal(t, image.Pt(640, 480), frames[0])
	assert.Equal(t, []float64{0, 0, 0, 0}, fps)
}

func TestFPSMeasuredEveryWindow(t *testing.T) {
	h := newHarness(t, scenario(), nil)
	h.cfg.Pipeline.FPSWindow = 5
	h.pipeline.fps = profiler.NewFPSMeter(5, h.clock.Now)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{}))
	var last *TickResult
	for i := 0; i < 5; i++ {
		h.clock.Advance(500 * time.Millisecond)
		res, err := h.pipeline.Tick(ctx)
		require.NoError(t, err)
		last = res
	}
	// Five frames over the two seconds between the first and fifth tick.
	assert.InDelta(t, 2.5, last.FPS, 0.001)
	assert.Equal(t, 5, h.pipeline.Stats().Frames)
}

func TestResetBackgroundWarmsUp(t *testing.T) {
	h := newHarness(t, scenario(), nil)
	ctx := context.Background()

	require.NoError(t, h.pipeline.Start(ctx, source.Descriptor{}))
	for i := 0; i < 3; i++ {
		_, err := h.pipeline.Tick(ctx)
		require.NoError(t, err)
	}
	h.pipeline.ResetBackground()

	// The first block frame becomes the new reference.
	res, err := h.pipeline.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, res.Warmup)
	assert.False(t, res.Motion)
}

func TestStatsStringIdle(t *testing.T) {
	assert.Equal(t, "Status: Normal, Objects: 0, YOLO: None", Stats{}.String())
}

func TestNewRequiresRecorder(t *testing.T) {
	_, err := New(config.Default(), Deps{})
	assert.Error(t, err)
}
