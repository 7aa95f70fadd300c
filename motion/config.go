package motion

import (
	"github.com/nvr-ai/go-motion/config"
	"github.com/pkg/errors"
)

// Config holds the frame differencing parameters.
type Config struct {
	// FrameWidth is the width frames are resized to, height follows the aspect ratio.
	FrameWidth int
	// BlurSize is the square Gaussian kernel edge. Must be positive and odd.
	BlurSize int
	// ThresholdValue binarizes the difference image: pixels strictly above it become 255.
	ThresholdValue float64
	// MinContourArea drops contours smaller than this many pixels.
	MinContourArea   float64
	DilateIterations int
}

// DefaultConfig mirrors the detector defaults of config.Default.
func DefaultConfig() Config {
	return ConfigFrom(config.Default())
}

// ConfigFrom extracts the estimator parameters from the application settings.
func ConfigFrom(c *config.Config) Config {
	return Config{
		FrameWidth:       c.Video.FrameWidth,
		BlurSize:         c.Detector.BlurSize,
		ThresholdValue:   c.Detector.ThresholdValue,
		MinContourArea:   c.Detector.MinContourArea,
		DilateIterations: c.Detector.DilateIterations,
	}
}

// Validate rejects parameters the estimator cannot run with. Blur sizes are
// never rounded to the next odd number.
func (c Config) Validate() error {
	switch {
	case c.BlurSize <= 0 || c.BlurSize%2 == 0:
		return errors.Wrapf(config.ErrInvalid, "blur size must be a positive odd number, got %d", c.BlurSize)
	case c.ThresholdValue < 0 || c.ThresholdValue > 255:
		return errors.Wrapf(config.ErrInvalid, "threshold must be within [0, 255], got %g", c.ThresholdValue)
	case c.MinContourArea < 0:
		return errors.Wrapf(config.ErrInvalid, "min contour area must be >= 0, got %g", c.MinContourArea)
	case c.DilateIterations < 0:
		return errors.Wrapf(config.ErrInvalid, "dilate iterations must be >= 0, got %d", c.DilateIterations)
	case c.FrameWidth <= 0:
		return errors.Wrapf(config.ErrInvalid, "frame width must be > 0, got %d", c.FrameWidth)
	}
	return nil
}
