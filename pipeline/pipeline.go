// Package pipeline - The tick loop that turns frames into motion events,
// clips and snapshots.
//
// Each tick acquires one frame, estimates motion, feeds the event tracker and
// drives the recording session: a session opens when an event is confirmed,
// receives every frame while the event lasts and closes on the first frame
// without motion. Snapshots are saved for every motion-positive frame.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-motion/catalog"
	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/event"
	"github.com/nvr-ai/go-motion/inference/detectors"
	"github.com/nvr-ai/go-motion/logging"
	"github.com/nvr-ai/go-motion/motion"
	"github.com/nvr-ai/go-motion/profiler"
	"github.com/nvr-ai/go-motion/recording"
	"github.com/nvr-ai/go-motion/source"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var (
	// ErrTooManyFailures aborts Run after too many failing ticks in a row.
	ErrTooManyFailures = errors.New("too many consecutive failures")
	// ErrNotStarted is returned by Tick before Start or after Stop.
	ErrNotStarted = errors.New("pipeline not started")
	// ErrAlreadyStarted is returned by Start while a source is open.
	ErrAlreadyStarted = errors.New("pipeline already started")
)

// Catalog indexes clips and snapshots. *catalog.Catalog implements it.
type Catalog interface {
	StartRecording(path string, width, height int, fps float64, startedAt time.Time) (uuid.UUID, error)
	FinishRecording(id uuid.UUID, frames int, endedAt time.Time) error
	AddSnapshot(s catalog.Snapshot) (uuid.UUID, error)
}

// PreviewFunc receives the annotated frame of every tick. The frame is only
// valid during the call.
type PreviewFunc func(frame gocv.Mat, result *TickResult)

// Deps are the collaborators of a Pipeline. Only Recorder is required.
type Deps struct {
	// Open defaults to source.Open.
	Open     source.Opener
	Detector detectors.Detector
	Recorder *recording.Recorder
	// Snapshots nil disables snapshots.
	Snapshots *recording.SnapshotSink
	// Catalog nil disables indexing.
	Catalog  Catalog
	Preview  PreviewFunc
	Profiler *profiler.RuntimeProfiler
	// Now is read once per tick. Defaults to time.Now.
	Now    func() time.Time
	Logger logrus.FieldLogger
}

// TickResult describes one processed frame.
type TickResult struct {
	At         time.Time
	Motion     bool
	Warmup     bool
	Regions    []motion.Region
	Detections []detectors.Detection
	Transition event.Transition
	State      event.State
	// Recording is the path of the open clip, empty when idle.
	Recording string
	// Snapshot is the path saved this tick, empty if none.
	Snapshot string
	FPS      float64
	// Err is the failure of this tick. The loop continues unless the
	// failure limit is reached.
	Err error
}

// Pipeline runs one source at a time.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	log  logrus.FieldLogger

	estimator *motion.Estimator
	tracker   *event.Tracker
	fps       *profiler.FPSMeter
	prof      *profiler.RuntimeProfiler

	src         source.Source
	buffered    atomic.Pointer[source.Buffered]
	frame       gocv.Mat
	session     *recording.Session
	recordingID uuid.NullUUID
	failures    int
	last        TickResult

	mu sync.Mutex
}

// New builds a pipeline from validated settings.
//
// Arguments:
//   - cfg: The validated configuration.
//   - deps: Collaborators; Recorder is required.
//
// Returns:
//   - *Pipeline: The pipeline, to be released with Close.
//   - error: A config.ErrInvalid error for bad motion settings.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if deps.Recorder == nil {
		return nil, errors.New("pipeline requires a recorder")
	}
	if deps.Open == nil {
		deps.Open = source.Open
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Profiler == nil {
		deps.Profiler = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
			ReportInterval: cfg.Pipeline.ReportInterval,
			Logger:         deps.Logger,
		})
	}

	var opts []motion.Option
	if deps.Detector != nil {
		opts = append(opts, motion.WithDetector(deps.Detector, float32(cfg.YOLO.Confidence)))
	}
	est, err := motion.NewEstimator(motion.ConfigFrom(cfg), opts...)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		deps:      deps,
		log:       deps.Logger,
		estimator: est,
		tracker:   event.NewTracker(cfg.Detector.MotionDuration()),
		fps:       profiler.NewFPSMeter(cfg.Pipeline.FPSWindow, deps.Now),
		prof:      deps.Profiler,
		frame:     gocv.NewMat(),
	}
	p.prof.AddMetricsCollector(profiler.CollectorFunc(func() map[string]float64 {
		if b := p.buffered.Load(); b != nil {
			return map[string]float64{"dropped_frames": float64(b.Dropped())}
		}
		return nil
	}))
	return p, nil
}

// Start opens the source described by d. On failure nothing is left open.
func (p *Pipeline) Start(ctx context.Context, d source.Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.src != nil {
		return ErrAlreadyStarted
	}

	src, err := p.deps.Open(d)
	if err != nil {
		p.log.WithError(err).Error("failed to open source")
		return err
	}
	if n := p.cfg.Video.BufferFrames; n > 0 {
		buffered := source.NewBuffered(src, n)
		p.buffered.Store(buffered)
		src = buffered
	}

	p.src = src
	p.failures = 0
	p.last = TickResult{}
	p.estimator.Reset()
	p.tracker.Reset()
	p.fps.Reset()
	p.prof.Start()

	p.log.WithField("source", src.Describe()).Info("started processing")
	return nil
}

// Tick processes one frame.
//
// It returns source.ErrEndOfStream when a file is exhausted,
// source.ErrSourceUnavailable when a read fails and ErrTooManyFailures when
// the failure limit is reached. Other failures are reported in
// TickResult.Err.
func (p *Pipeline) Tick(ctx context.Context) (*TickResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.src == nil {
		return nil, ErrNotStarted
	}
	defer p.prof.StartOperation("tick")()

	done := p.prof.StartOperation("capture")
	err := p.src.Next(&p.frame)
	done()
	if err != nil {
		return nil, err
	}

	result := &TickResult{At: p.deps.Now()}
	est, err := p.process(result)
	if est != nil {
		defer est.Close()
	}
	if err != nil {
		result.Err = err
		p.failures++
		p.log.WithError(err).WithField("failures", p.failures).Warn("tick failed")
	} else {
		p.failures = 0
	}

	if fps, updated := p.fps.Tick(); updated {
		p.prof.RecordMetric("fps", fps)
		p.log.WithField("fps", fps).Debug("frame rate")
	}
	result.FPS = p.fps.FPS()
	result.State = p.tracker.State()
	if p.session != nil {
		result.Recording = p.session.Path()
	}
	p.last = *result

	if est != nil && p.deps.Preview != nil {
		p.deps.Preview(est.Annotated, result)
	}

	if limit := p.cfg.Pipeline.MaxConsecutiveFailures; limit > 0 && p.failures >= limit {
		return result, errors.Wrapf(ErrTooManyFailures, "%d in a row, last: %v", p.failures, result.Err)
	}
	return result, nil
}

// process runs one frame through estimation, the event tracker, recording
// and snapshots. The returned estimate, if any, is owned by the caller.
func (p *Pipeline) process(result *TickResult) (*motion.Result, error) {
	done := p.prof.StartOperation("estimate")
	est, err := p.estimator.Estimate(p.frame, result.At)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "failed to estimate motion")
	}

	result.Motion = est.Motion
	result.Warmup = est.Warmup
	result.Regions = est.Regions
	result.Detections = est.Detections
	if est.DetectorErr != nil {
		p.log.WithError(est.DetectorErr).Warn("object detection failed")
	}

	result.Transition = p.tracker.Update(est.Motion, result.At)
	err = p.record(result, est.Annotated)

	if est.Motion && p.deps.Snapshots != nil {
		p.snapshot(result, est.Annotated)
	}
	return est, err
}

// record applies the tracker transition to the recording session.
func (p *Pipeline) record(result *TickResult, frame gocv.Mat) error {
	defer p.prof.StartOperation("record")()

	switch result.Transition {
	case event.TransitionOpen:
		if err := p.openSession(frame.Cols(), frame.Rows()); err != nil {
			// A confirmed event without a clip is not allowed; start over.
			p.tracker.Reset()
			return err
		}
		return p.append(frame)
	case event.TransitionContinue:
		return p.append(frame)
	case event.TransitionClose:
		return p.closeSession()
	}
	return nil
}

func (p *Pipeline) openSession(width, height int) error {
	startedAt := p.tracker.StartedAt()
	session, err := p.deps.Recorder.Open(startedAt, width, height)
	if err != nil {
		p.log.WithError(err).Error("failed to start recording")
		return err
	}
	p.session = session
	p.log.WithFields(logrus.Fields{"path": session.Path(), "state": p.tracker.State()}).Info("motion event confirmed")

	if p.deps.Catalog != nil {
		id, err := p.deps.Catalog.StartRecording(session.Path(), width, height, p.cfg.Video.FPS, startedAt)
		if err != nil {
			p.log.WithError(err).Warn("failed to index recording")
		} else {
			p.recordingID = uuid.NullUUID{UUID: id, Valid: true}
		}
	}
	return nil
}

func (p *Pipeline) append(frame gocv.Mat) error {
	if p.session == nil {
		return errors.Wrap(recording.ErrWriteFailure, "no open session")
	}
	return p.session.Append(frame)
}

// closeSession closes the open session, if any, and finishes its catalog row.
func (p *Pipeline) closeSession() error {
	if p.session == nil {
		return nil
	}
	session := p.session
	p.session = nil

	err := session.Close()
	clip := session.Info()
	if p.deps.Catalog != nil && p.recordingID.Valid {
		if cerr := p.deps.Catalog.FinishRecording(p.recordingID.UUID, clip.Frames, clip.ClosedAt); cerr != nil {
			p.log.WithError(cerr).WithField("path", clip.Path).Warn("failed to finish recording in catalog")
		}
	}
	p.recordingID = uuid.NullUUID{}
	return err
}

// snapshot saves the annotated frame. Failures are logged only.
func (p *Pipeline) snapshot(result *TickResult, frame gocv.Mat) {
	defer p.prof.StartOperation("snapshot")()

	path, err := p.deps.Snapshots.Save(frame, result.At)
	if err != nil {
		p.log.WithError(err).Warn("failed to save snapshot")
		return
	}
	result.Snapshot = path
	p.log.WithField("path", path).Debug("snapshot saved")

	if p.deps.Catalog == nil {
		return
	}
	_, err = p.deps.Catalog.AddSnapshot(catalog.Snapshot{
		RecordingID: p.recordingID,
		Path:        path,
		TakenAt:     result.At,
		Regions:     len(result.Regions),
		Labels:      detectors.Labels(result.Detections),
	})
	if err != nil {
		p.log.WithError(err).WithField("path", path).Warn("failed to index snapshot")
	}
}

// Run ticks until the stream ends, ctx is cancelled or a fatal error occurs.
// It always stops the pipeline before returning and returns nil at end of
// stream and on cancellation.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		_, err := p.Tick(ctx)
		if err == nil {
			continue
		}

		stopErr := p.Stop()
		switch {
		case errors.Is(err, source.ErrEndOfStream):
			p.log.Info("video ended")
			return stopErr
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return stopErr
		}
		p.log.WithError(err).Error("processing aborted")
		return err
	}
}

// SetPreview replaces the preview hook.
func (p *Pipeline) SetPreview(fn PreviewFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deps.Preview = fn
}

// ResetBackground discards the reference frame. The next tick is a warm-up
// tick.
func (p *Pipeline) ResetBackground() {
	p.estimator.Reset()
	p.log.Info("background reset")
}

// Stop closes the open session and the source. It is safe to call more than
// once; Start may be called again afterwards.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.src == nil {
		return nil
	}

	p.tracker.Reset()
	err := p.closeSession()
	if serr := p.src.Close(); serr != nil && err == nil {
		err = errors.Wrap(serr, "failed to close source")
	}
	p.src = nil
	p.buffered.Store(nil)
	p.prof.Stop()

	p.log.WithField("frames", p.fps.Frames()).Info("stopped processing")
	return err
}

// Close stops the pipeline and releases native memory. The detector is not
// closed.
func (p *Pipeline) Close() error {
	err := p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if cerr := p.estimator.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := p.frame.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Stats is the status line of the running pipeline.
type Stats struct {
	Source    string
	Running   bool
	State     event.State
	Objects   int
	Labels    []string
	FPS       float64
	Frames    int
	Recording string
	Failures  int
}

// String formats the status line.
func (s Stats) String() string {
	status := motion.StatusNormal
	if s.Objects > 0 {
		status = motion.StatusMotion
	}
	labels := "None"
	if len(s.Labels) > 0 {
		labels = strings.Join(s.Labels, ", ")
	}
	return fmt.Sprintf("Status: %s, Objects: %d, YOLO: %s", status, s.Objects, labels)
}

// Stats returns a snapshot of the pipeline status.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Running:   p.src != nil,
		State:     p.tracker.State(),
		Objects:   len(p.last.Regions),
		Labels:    detectors.Labels(p.last.Detections),
		FPS:       p.fps.FPS(),
		Frames:    p.fps.Frames(),
		Recording: p.last.Recording,
		Failures:  p.failures,
	}
	if p.src != nil {
		s.Source = p.src.Describe()
	}
	return s
}
