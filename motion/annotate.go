package motion

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/nvr-ai/go-motion/inference/detectors"
	"gocv.io/x/gocv"
)

// Status texts drawn on every frame.
const (
	StatusNormal = "Normal"
	StatusMotion = "Moving Object detected"
)

// TimestampLayout is the overlay timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	regionColor    = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	detectionColor = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	statusColor    = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	countColor     = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	clockColor     = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// Annotate draws motion regions, detections and the status overlay onto img.
//
// Arguments:
//   - img: The resized BGR frame, modified in place.
//   - regions: Surviving motion regions, drawn in green.
//   - detections: Object detections, drawn in yellow with their label.
//   - status: StatusNormal or StatusMotion.
//   - at: The time printed at the bottom-left corner.
func Annotate(img *gocv.Mat, regions []Region, detections []detectors.Detection, status string, at time.Time) {
	for _, d := range detections {
		gocv.Rectangle(img, d.Box, detectionColor, 2)
		label := image.Pt(d.Box.Min.X, max(d.Box.Min.Y-10, 10))
		gocv.PutText(img, d.Label, label, gocv.FontHersheySimplex, 0.5, detectionColor, 2)
	}
	for _, r := range regions {
		gocv.Rectangle(img, r.Rect, regionColor, 2)
	}

	gocv.PutText(img, at.Format(TimestampLayout), image.Pt(10, img.Rows()-10),
		gocv.FontHersheySimplex, 0.5, clockColor, 1)
	gocv.PutText(img, status, image.Pt(10, 20), gocv.FontHersheySimplex, 0.5, statusColor, 2)
	gocv.PutText(img, fmt.Sprintf("Objects: %d", len(regions)), image.Pt(10, 40),
		gocv.FontHersheySimplex, 0.5, countColor, 2)
}
