package detectors

import (
	"image"
	"sync"

	"github.com/nvr-ai/go-motion/inference"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// ONNXDetector runs a YOLOv8 model through onnxruntime.
type ONNXDetector struct {
	session         *inference.Session
	nmsThreshold    float32
	relevantClasses map[string]bool
	mu              sync.Mutex
}

// NewONNXDetector loads the model described by cfg.
//
// Arguments:
//   - cfg: The configuration for the ONNX detector.
//
// Returns:
//   - *ONNXDetector: The detector, to be released with Close.
//   - error: An error if the runtime or the model cannot be loaded.
func NewONNXDetector(cfg Config) (*ONNXDetector, error) {
	session, err := inference.NewSession(inference.SessionOptions{
		ModelPath:         cfg.ModelPath,
		SharedLibraryPath: cfg.SharedLibraryPath,
		Provider:          cfg.Provider,
		IntraOpThreads:    cfg.IntraOpThreads,
		InputName:         "images",
		OutputName:        "output0",
		InputShape:        ort.NewShape(1, 3, inference.InputSize, inference.InputSize),
		OutputShape:       ort.NewShape(1, 4+inference.NumClasses, inference.Anchors),
	})
	if err != nil {
		return nil, err
	}
	return newONNXDetector(session, cfg), nil
}

func newONNXDetector(session *inference.Session, cfg Config) *ONNXDetector {
	relevant := make(map[string]bool, len(cfg.RelevantClasses))
	for _, c := range cfg.RelevantClasses {
		relevant[c] = true
	}
	return &ONNXDetector{
		session:         session,
		nmsThreshold:    cfg.NMSThreshold,
		relevantClasses: relevant,
	}
}

// Detect runs inference on a BGR frame.
func (d *ONNXDetector) Detect(frame gocv.Mat, confidence float32) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.Wrap(ErrDetectorFailure, "detector is closed")
	}
	if frame.Empty() {
		return nil, errors.Wrap(ErrDetectorFailure, "empty frame")
	}

	img, err := frame.ToImage()
	if err != nil {
		return nil, errors.Wrapf(ErrDetectorFailure, "failed to convert frame: %v", err)
	}
	if err := inference.PrepareInput(img, inference.InputSize, d.session.Input); err != nil {
		return nil, errors.Wrapf(ErrDetectorFailure, "failed to prepare input: %v", err)
	}
	if err := d.session.Run(); err != nil {
		return nil, errors.Wrapf(ErrDetectorFailure, "failed to run inference: %v", err)
	}

	return d.postprocess(d.session.Output.GetData(), img.Bounds(), confidence), nil
}

// postprocess decodes, suppresses overlaps and filters to relevant classes.
func (d *ONNXDetector) postprocess(output []float32, bounds image.Rectangle, confidence float32) []Detection {
	boxes := inference.ProcessInferenceOutput(output, bounds.Dx(), bounds.Dy(), confidence)
	boxes = inference.ApplyGreedyNMS(boxes, d.nmsThreshold)

	detections := make([]Detection, 0, len(boxes))
	for _, b := range boxes {
		if len(d.relevantClasses) > 0 && !d.relevantClasses[b.Label] {
			continue
		}
		box := b.Box.ToRectangle(bounds)
		if box.Empty() {
			continue
		}
		detections = append(detections, Detection{Label: b.Label, Box: box, Score: b.Confidence})
	}
	return detections
}

// Close releases the session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		d.session.Close()
		d.session = nil
	}
	return nil
}
