// Package test - Deterministic frames and clocks shared by package tests.
package test

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// FrameGenerator creates deterministic BGR frames for motion tests.
//
// @example
// gen := NewFrameGenerator(640, 480)
// frame := gen.Static()
// defer frame.Close()
type FrameGenerator struct {
	width      int
	height     int
	background color.RGBA
	foreground color.RGBA
}

// NewFrameGenerator creates a generator with a mid-gray background and a
// white foreground.
func NewFrameGenerator(width, height int) *FrameGenerator {
	return &FrameGenerator{
		width:      width,
		height:     height,
		background: color.RGBA{R: 128, G: 128, B: 128, A: 0},
		foreground: color.RGBA{R: 255, G: 255, B: 255, A: 0},
	}
}

// Size returns the frame size.
func (g *FrameGenerator) Size() image.Point {
	return image.Pt(g.width, g.height)
}

// Static creates the plain background frame.
func (g *FrameGenerator) Static() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(g.background.B), float64(g.background.G), float64(g.background.R), 0),
		g.height, g.width, gocv.MatTypeCV8UC3)
}

// Uniform creates a frame filled with a single gray level.
func (g *FrameGenerator) Uniform(level uint8) gocv.Mat {
	v := float64(level)
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), g.height, g.width, gocv.MatTypeCV8UC3)
}

// Block creates a background frame with a filled square of the given size
// whose top-left corner is at (x, y).
func (g *FrameGenerator) Block(x, y, size int) gocv.Mat {
	frame := g.Static()
	gocv.Rectangle(&frame, image.Rect(x, y, x+size, y+size), g.foreground, -1)
	return frame
}

// Noise creates a background frame with a single bright pixel every step
// pixels, a change too small to survive blurring and thresholding.
func (g *FrameGenerator) Noise(step int) gocv.Mat {
	frame := g.Static()
	for y := step / 2; y < g.height; y += step {
		for x := step / 2; x < g.width; x += step {
			frame.SetUCharAt3(y, x, 0, 140)
		}
	}
	return frame
}
