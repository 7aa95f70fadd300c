package images

import "github.com/pkg/errors"

// ImageFormat represents supported image formats.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// Extension returns the file extension, dot included.
func (f ImageFormat) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatWebP:
		return ".webp"
	case FormatPNG:
		return ".png"
	}
	return ""
}

// ParseFormat validates a format name.
func ParseFormat(s string) (ImageFormat, error) {
	switch f := ImageFormat(s); f {
	case FormatJPEG, FormatWebP, FormatPNG:
		return f, nil
	}
	return "", errors.Errorf("unsupported image format %q", s)
}
