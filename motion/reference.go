package motion

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ReferenceFrame is the blurred grayscale baseline frames are compared to.
//
// first is captured on the warm-up tick and only cleared by Reset. previous
// is replaced on every tick and is what differencing runs against.
type ReferenceFrame struct {
	first    gocv.Mat
	previous gocv.Mat
	present  bool
}

// NewReferenceFrame returns an absent reference.
func NewReferenceFrame() *ReferenceFrame {
	return &ReferenceFrame{
		first:    gocv.NewMat(),
		previous: gocv.NewMat(),
	}
}

// Empty reports whether no baseline has been captured yet.
func (r *ReferenceFrame) Empty() bool {
	return !r.present
}

// Establish stores gray as both the first and the previous frame.
func (r *ReferenceFrame) Establish(gray gocv.Mat) error {
	if err := gray.CopyTo(&r.first); err != nil {
		return errors.Wrap(err, "failed to store first frame")
	}
	if err := gray.CopyTo(&r.previous); err != nil {
		return errors.Wrap(err, "failed to store previous frame")
	}
	r.present = true
	return nil
}

// Advance replaces the previous frame with gray.
func (r *ReferenceFrame) Advance(gray gocv.Mat) error {
	if err := gray.CopyTo(&r.previous); err != nil {
		return errors.Wrap(err, "failed to store previous frame")
	}
	return nil
}

// Previous returns the frame the next tick is differenced against. The Mat
// stays owned by r.
func (r *ReferenceFrame) Previous() gocv.Mat {
	return r.previous
}

// First returns the warm-up frame. The Mat stays owned by r.
func (r *ReferenceFrame) First() gocv.Mat {
	return r.first
}

// Reset clears both frames to absent. Calling it twice is the same as once.
func (r *ReferenceFrame) Reset() {
	r.present = false
}

// Close releases the native memory.
func (r *ReferenceFrame) Close() error {
	r.present = false
	if err := r.first.Close(); err != nil {
		return err
	}
	return r.previous.Close()
}
