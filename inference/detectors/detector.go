// Package detectors - Object detectors that label what is moving in a frame.
package detectors

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrDetectorFailure marks a failed inference. The caller treats the tick as
// having no detections.
var ErrDetectorFailure = errors.New("object detector failure")

// Detection is a labelled box in frame pixel coordinates.
type Detection struct {
	Label string
	Box   image.Rectangle
	Score float32
}

// Detector finds objects in a BGR frame.
type Detector interface {
	// Detect returns detections scoring at least confidence.
	Detect(frame gocv.Mat, confidence float32) ([]Detection, error)
	Close() error
}

// Func adapts a plain function to the Detector interface.
type Func func(frame gocv.Mat, confidence float32) ([]Detection, error)

// Detect calls f.
func (f Func) Detect(frame gocv.Mat, confidence float32) ([]Detection, error) {
	return f(frame, confidence)
}

// Close is a no-op.
func (f Func) Close() error { return nil }

// Nop is used when object detection is disabled.
type Nop struct{}

// Detect returns no detections.
func (Nop) Detect(gocv.Mat, float32) ([]Detection, error) { return nil, nil }

// Close is a no-op.
func (Nop) Close() error { return nil }

// Labels returns the labels of detections, in order.
func Labels(detections []Detection) []string {
	labels := make([]string, 0, len(detections))
	for _, d := range detections {
		labels = append(labels, d.Label)
	}
	return labels
}
