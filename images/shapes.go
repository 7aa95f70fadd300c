// Package images - Geometry, sizing and format helpers shared by the estimator,
// the detectors and the recording sinks.
package images

import "image"

// Rect is a lightweight floating point bounding box as produced by detectors.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// RectFromCenter builds a Rect from a center point and a size, the layout
// YOLO style models emit.
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}
}

// Area returns the area of r, or 0 for a degenerate box.
func (r Rect) Area() float32 {
	w, h := r.X2-r.X1, r.Y2-r.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Scale multiplies every coordinate by sx horizontally and sy vertically.
func (r Rect) Scale(sx, sy float32) Rect {
	return Rect{X1: r.X1 * sx, Y1: r.Y1 * sy, X2: r.X2 * sx, Y2: r.Y2 * sy}
}

// ToRectangle converts r to integer pixel coordinates clipped to bounds.
//
// This loses fractional pixels around the edges, which is fine for drawing
// and reporting boxes in frame coordinates.
func (r Rect) ToRectangle(bounds image.Rectangle) image.Rectangle {
	return image.Rect(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2)).Canon().Intersect(bounds)
}

// IoU returns the Intersection over Union of r and o.
func (r Rect) IoU(o Rect) float32 {
	return CalculateIoU(r, o)
}

// CalculateIoU measures how much two boxes overlap, between 0.0 (disjoint)
// and 1.0 (identical).
//
//	IoU = Area of Intersection / Area of Union
//
// The intersection corners are the max of the two top-left corners and the
// min of the two bottom-right corners; a non-positive width or height means
// the boxes do not overlap. The union follows from inclusion-exclusion:
// Area(A) + Area(B) - Intersection(A, B).
//
// Example Usage:
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	CalculateIoU(a, b) // 25 / 175 = 0.142857
func CalculateIoU(r, o Rect) float32 {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}
	return interArea / unionArea
}
