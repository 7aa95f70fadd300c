package inference

import (
	"fmt"
	"sort"

	"github.com/nvr-ai/go-motion/images"
)

// YOLOv8 output layout: 4 box rows followed by one row per class, each
// Anchors wide.
const (
	InputSize  = 640
	Anchors    = 8400
	NumClasses = 80
)

// BoundingBox is one decoded detection in original image coordinates.
type BoundingBox struct {
	Label      string
	ClassID    int
	Confidence float32
	Box        images.Rect
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%f, %f), (%f, %f)",
		b.Label, b.Confidence, b.Box.X1, b.Box.Y1, b.Box.X2, b.Box.Y2)
}

// ProcessInferenceOutput decodes a 1x84x8400 YOLOv8 output into boxes scaled
// to originalWidth x originalHeight, keeping those whose best class score is
// at least confidence. Boxes are returned sorted by descending confidence.
func ProcessInferenceOutput(output []float32, originalWidth, originalHeight int, confidence float32) []BoundingBox {
	if len(output) < Anchors*(NumClasses+4) {
		return nil
	}
	boxes := make([]BoundingBox, 0, 64)
	sx := float32(originalWidth) / InputSize
	sy := float32(originalHeight) / InputSize

	for idx := 0; idx < Anchors; idx++ {
		classID := 0
		probability := float32(-1e9)
		for col := 0; col < NumClasses; col++ {
			p := output[Anchors*(col+4)+idx]
			if p > probability {
				probability = p
				classID = col
			}
		}
		if probability < confidence {
			continue
		}

		xc, yc := output[idx], output[Anchors+idx]
		w, h := output[2*Anchors+idx], output[3*Anchors+idx]
		boxes = append(boxes, BoundingBox{
			Label:      ClassName(classID),
			ClassID:    classID,
			Confidence: probability,
			Box:        images.RectFromCenter(xc, yc, w, h).Scale(sx, sy),
		})
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})
	return boxes
}

// ApplyGreedyNMS performs class-agnostic greedy Non-Maximum Suppression.
//
// Arguments:
//   - boxes: Slice of detections sorted by descending confidence.
//   - iouThreshold: IoU above which the lower scored box is suppressed.
//
// Returns:
//   - Filtered slice of detections, still sorted.
func ApplyGreedyNMS(boxes []BoundingBox, iouThreshold float32) []BoundingBox {
	n := len(boxes)
	if n == 0 {
		return nil
	}

	filtered := make([]BoundingBox, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		anchor := boxes[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if !used[j] && anchor.Box.IoU(boxes[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}
	return filtered
}
