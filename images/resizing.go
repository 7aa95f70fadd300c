package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// TargetSize returns the size of a width x height frame scaled to
// targetWidth with its aspect ratio preserved. The height never drops below 1.
//
// Arguments:
//   - width, height: The intrinsic frame size.
//   - targetWidth: The desired width.
//
// Returns:
//   - image.Point: X is targetWidth, Y the proportional height.
//
// @example
// TargetSize(1920, 1080, 640) // (640, 360)
func TargetSize(width, height, targetWidth int) image.Point {
	if width <= 0 || height <= 0 || targetWidth <= 0 {
		return image.Point{}
	}
	h := int(float64(height) * float64(targetWidth) / float64(width))
	if h < 1 {
		h = 1
	}
	return image.Point{X: targetWidth, Y: h}
}

// ResizeToWidth scales src into dst so that dst is targetWidth wide, keeping
// the aspect ratio. Shrinking uses area interpolation, enlarging uses linear.
func ResizeToWidth(src gocv.Mat, dst *gocv.Mat, targetWidth int) error {
	if src.Empty() {
		return errors.New("cannot resize an empty frame")
	}
	size := TargetSize(src.Cols(), src.Rows(), targetWidth)
	if size.X == 0 {
		return errors.Errorf("invalid target width %d", targetWidth)
	}
	if size.X == src.Cols() && size.Y == src.Rows() {
		return src.CopyTo(dst)
	}

	interp := gocv.InterpolationArea
	if size.X > src.Cols() {
		interp = gocv.InterpolationLinear
	}
	if err := gocv.Resize(src, dst, size, 0, 0, interp); err != nil {
		return errors.Wrap(err, "failed to resize frame")
	}
	return nil
}
