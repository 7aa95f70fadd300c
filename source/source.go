// Package source - Frame sources: capture devices and video files.
package source

import (
	"image"

	"github.com/nvr-ai/go-motion/config"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	// ErrSourceUnavailable means the device or file cannot be opened or read.
	ErrSourceUnavailable = errors.New("frame source unavailable")
	// ErrEndOfStream means a video file has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// SupportedVideoExtensions are the file types accepted as video input.
var SupportedVideoExtensions = []string{".mp4", ".avi", ".wmv", ".mkv", ".vob", ".flv", ".mov"}

// Descriptor says which source to open.
type Descriptor struct {
	Kind     config.SourceKind
	CameraID int
	// FallbackID is tried once if CameraID fails. Negative disables.
	FallbackID int
	Path       string
	// Flip mirrors frames horizontally.
	Flip bool
}

// DescriptorFrom builds a Descriptor from the video settings. Only cameras
// are flipped.
func DescriptorFrom(v config.Video) Descriptor {
	return Descriptor{
		Kind:       v.Source,
		CameraID:   v.CameraID,
		FallbackID: v.CameraFallbackID,
		Path:       v.InputPath,
		Flip:       v.Source == config.SourceCamera && v.FlipCamera,
	}
}

// Source produces frames one at a time.
type Source interface {
	// Next reads the next frame into dst. It returns ErrEndOfStream when a
	// file is exhausted and ErrSourceUnavailable when a read fails.
	Next(dst *gocv.Mat) error
	// Size is the intrinsic frame size, zero if unknown.
	Size() image.Point
	// Describe names the source for logs and the status line.
	Describe() string
	Close() error
}

// Opener opens a Source.
type Opener func(Descriptor) (Source, error)

// Open opens the capture device or video file described by d.
func Open(d Descriptor) (Source, error) {
	switch d.Kind {
	case config.SourceCamera:
		return openCamera(d)
	case config.SourceVideo:
		return openFile(d)
	}
	return nil, errors.Wrapf(ErrSourceUnavailable, "unknown source kind %q", d.Kind)
}
