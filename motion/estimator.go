// Package motion - Motion estimation by frame differencing.
//
// The Estimator turns each frame into a binary motion signal: the frame is
// resized, converted to grayscale, blurred and differenced against the
// previous frame. The difference is binarized, dilated and split into
// external contours; contours large enough become motion regions.
package motion

import (
	"image"
	"sync"
	"time"

	"github.com/nvr-ai/go-motion/images"
	"github.com/nvr-ai/go-motion/inference/detectors"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Region is a bounding box around a contour that survived the area filter.
type Region struct {
	Rect image.Rectangle
	Area float64
}

// Result is the outcome of one Estimate call.
type Result struct {
	Motion  bool
	Regions []Region
	// Warmup is set on the tick that captured the reference frame.
	Warmup     bool
	Detections []detectors.Detection
	// DetectorErr is the detector failure of this tick, if any. Detections is empty when set.
	DetectorErr error
	Status      string
	// Annotated is the resized frame with the overlay drawn. Owned by the caller.
	Annotated gocv.Mat
}

// Close releases the annotated frame.
func (r *Result) Close() error {
	return r.Annotated.Close()
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithDetector runs d on every non warm-up tick and keeps detections scoring
// at least confidence.
func WithDetector(d detectors.Detector, confidence float32) Option {
	return func(e *Estimator) {
		e.detector = d
		e.confidence = confidence
	}
}

// Estimator produces one motion decision per frame.
//
// It owns its reference frame and scratch Mats; it is safe to call from
// several goroutines but frames are processed one at a time.
type Estimator struct {
	cfg        Config
	detector   detectors.Detector
	confidence float32

	reference *ReferenceFrame
	kernel    gocv.Mat
	resized   gocv.Mat
	gray      gocv.Mat
	blurred   gocv.Mat
	diff      gocv.Mat
	mask      gocv.Mat

	mu sync.Mutex
}

// NewEstimator creates an estimator after validating cfg.
//
// Arguments:
//   - cfg: The frame differencing parameters.
//   - opts: Optional detector wiring.
//
// Returns:
//   - *Estimator: The estimator, to be released with Close.
//   - error: A config.ErrInvalid error for out of range parameters.
//
// @example
// est, err := NewEstimator(DefaultConfig())
// defer est.Close()
// res, err := est.Estimate(frame, time.Now())
// defer res.Close()
func NewEstimator(cfg Config, opts ...Option) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Estimator{
		cfg:       cfg,
		reference: NewReferenceFrame(),
		kernel:    gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
		resized:   gocv.NewMat(),
		gray:      gocv.NewMat(),
		blurred:   gocv.NewMat(),
		diff:      gocv.NewMat(),
		mask:      gocv.NewMat(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Estimate processes one frame captured at the given time.
//
// The first frame after construction or Reset only establishes the reference
// and never reports motion. The reference advances on every tick, so motion
// is measured between consecutive frames.
func (e *Estimator) Estimate(frame gocv.Mat, at time.Time) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.prepare(frame); err != nil {
		return nil, err
	}

	result := &Result{Status: StatusNormal}

	if e.reference.Empty() {
		if err := e.reference.Establish(e.blurred); err != nil {
			return nil, err
		}
		result.Warmup = true
	} else {
		regions, err := e.regions()
		if err != nil {
			return nil, err
		}
		if err := e.reference.Advance(e.blurred); err != nil {
			return nil, err
		}
		result.Regions = regions
		result.Motion = len(regions) > 0
		if result.Motion {
			result.Status = StatusMotion
		}
		result.Detections, result.DetectorErr = e.detect()
	}

	result.Annotated = e.resized.Clone()
	Annotate(&result.Annotated, result.Regions, result.Detections, result.Status, at)
	return result, nil
}

// prepare resizes frame into e.resized (BGR) and its blurred gray into e.blurred.
func (e *Estimator) prepare(frame gocv.Mat) error {
	if frame.Empty() {
		return errors.New("empty frame")
	}
	if err := images.ResizeToWidth(frame, &e.resized, e.cfg.FrameWidth); err != nil {
		return err
	}

	switch e.resized.Channels() {
	case 3:
		if err := gocv.CvtColor(e.resized, &e.gray, gocv.ColorBGRToGray); err != nil {
			return errors.Wrap(err, "failed to convert to grayscale")
		}
	case 1:
		if err := e.resized.CopyTo(&e.gray); err != nil {
			return errors.Wrap(err, "failed to copy grayscale frame")
		}
		if err := gocv.CvtColor(e.gray, &e.resized, gocv.ColorGrayToBGR); err != nil {
			return errors.Wrap(err, "failed to convert to BGR")
		}
	default:
		return errors.Errorf("unsupported frame with %d channels", e.resized.Channels())
	}

	k := e.cfg.BlurSize
	if err := gocv.GaussianBlur(e.gray, &e.blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault); err != nil {
		return errors.Wrap(err, "failed to blur frame")
	}
	return nil
}

// regions differences e.blurred against the previous frame.
func (e *Estimator) regions() ([]Region, error) {
	prev := e.reference.Previous()
	if prev.Rows() != e.blurred.Rows() || prev.Cols() != e.blurred.Cols() {
		// The source changed resolution; start over from this frame.
		return nil, nil
	}

	if err := gocv.AbsDiff(e.blurred, prev, &e.diff); err != nil {
		return nil, errors.Wrap(err, "failed to difference frames")
	}
	gocv.Threshold(e.diff, &e.mask, float32(e.cfg.ThresholdValue), 255, gocv.ThresholdBinary)
	for i := 0; i < e.cfg.DilateIterations; i++ {
		if err := gocv.Dilate(e.mask, &e.mask, e.kernel); err != nil {
			return nil, errors.Wrap(err, "failed to dilate mask")
		}
	}

	contours := gocv.FindContours(e.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []Region
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < e.cfg.MinContourArea {
			continue
		}
		regions = append(regions, Region{Rect: gocv.BoundingRect(contour), Area: area})
	}
	return regions, nil
}

// detect runs the optional detector on the resized frame.
func (e *Estimator) detect() ([]detectors.Detection, error) {
	if e.detector == nil {
		return nil, nil
	}
	detections, err := e.detector.Detect(e.resized, e.confidence)
	if err != nil {
		if !errors.Is(err, detectors.ErrDetectorFailure) {
			err = errors.Wrapf(detectors.ErrDetectorFailure, "%v", err)
		}
		return nil, err
	}
	return detections, nil
}

// Reset clears the reference frame; the next Estimate is a warm-up tick.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reference.Reset()
}

// Close releases all native memory. The detector is not closed.
func (e *Estimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, m := range []*gocv.Mat{&e.kernel, &e.resized, &e.gray, &e.blurred, &e.diff, &e.mask} {
		if err := m.Close(); err != nil {
			return err
		}
	}
	return e.reference.Close()
}
