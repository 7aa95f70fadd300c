package source

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Capture reads frames through an OpenCV VideoCapture.
type Capture struct {
	vc    *gocv.VideoCapture
	name  string
	file  bool
	flip  bool
	frame int
}

func openCamera(d Descriptor) (*Capture, error) {
	vc, err := openDevice(d.CameraID)
	id := d.CameraID
	if err != nil && d.FallbackID >= 0 && d.FallbackID != d.CameraID {
		var ferr error
		vc, ferr = openDevice(d.FallbackID)
		if ferr != nil {
			return nil, errors.Wrapf(ErrSourceUnavailable, "camera %d: %v; fallback camera %d: %v", d.CameraID, err, d.FallbackID, ferr)
		}
		id = d.FallbackID
		err = nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrSourceUnavailable, "camera %d: %v", d.CameraID, err)
	}
	return &Capture{vc: vc, name: fmt.Sprintf("Camera %d", id), flip: d.Flip}, nil
}

func openDevice(id int) (*gocv.VideoCapture, error) {
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.New("device did not open")
	}
	return vc, nil
}

func openFile(d Descriptor) (*Capture, error) {
	if err := ValidateFile(d.Path); err != nil {
		return nil, errors.Wrapf(ErrSourceUnavailable, "%v", err)
	}
	vc, err := gocv.OpenVideoCapture(d.Path)
	if err != nil {
		return nil, errors.Wrapf(ErrSourceUnavailable, "video %s: %v", d.Path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrSourceUnavailable, "video %s could not be decoded", d.Path)
	}
	return &Capture{vc: vc, name: "Video: " + filepath.Base(d.Path), file: true, flip: d.Flip}, nil
}

// ValidateFile checks that path exists and has a supported extension.
func ValidateFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Errorf("file not found: %s", path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedVideoExtensions {
		if ext == supported {
			return nil
		}
	}
	return errors.Errorf("unsupported file extension: %s. Supported extensions: %v", ext, SupportedVideoExtensions)
}

// Next implements Source.
func (c *Capture) Next(dst *gocv.Mat) error {
	if c.vc == nil {
		return errors.Wrap(ErrSourceUnavailable, "capture is closed")
	}
	if ok := c.vc.Read(dst); !ok || dst.Empty() {
		if c.file {
			return ErrEndOfStream
		}
		return errors.Wrapf(ErrSourceUnavailable, "%s: failed to read frame %d", c.name, c.frame)
	}
	c.frame++
	if c.flip {
		if err := gocv.Flip(*dst, dst, 1); err != nil {
			return errors.Wrap(err, "failed to flip frame")
		}
	}
	return nil
}

// Size implements Source.
func (c *Capture) Size() image.Point {
	if c.vc == nil {
		return image.Point{}
	}
	return image.Pt(int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight)))
}

// Describe implements Source.
func (c *Capture) Describe() string {
	return c.name
}

// Close releases the device or file. Safe to call twice.
func (c *Capture) Close() error {
	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	return err
}
