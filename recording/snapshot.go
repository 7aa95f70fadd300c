package recording

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	"github.com/chai2010/webp"
	"github.com/nvr-ai/go-motion/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// SnapshotSink saves single annotated frames.
type SnapshotSink struct {
	dir     string
	format  images.ImageFormat
	quality int
}

// NewSnapshotSink creates dir if missing.
//
// Arguments:
//   - dir: The snapshot directory.
//   - format: FormatJPEG, FormatWebP or FormatPNG.
//   - quality: Encoder quality in [1, 100]; ignored for PNG.
func NewSnapshotSink(dir string, format images.ImageFormat, quality int) (*SnapshotSink, error) {
	if format.Extension() == "" {
		return nil, errors.Errorf("unsupported snapshot format %q", format)
	}
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	return &SnapshotSink{dir: dir, format: format, quality: quality}, nil
}

// Save writes frame as a snapshot taken at t and returns its path.
func (s *SnapshotSink) Save(frame gocv.Mat, t time.Time) (string, error) {
	if frame.Empty() {
		return "", errors.Wrap(ErrWriteFailure, "empty snapshot frame")
	}
	path := filepath.Join(s.dir, SnapshotName(t, s.format))

	var err error
	switch s.format {
	case images.FormatWebP:
		err = s.saveWebP(path, frame)
	case images.FormatJPEG:
		if !gocv.IMWriteWithParams(path, frame, []int{int(gocv.IMWriteJpegQuality), s.quality}) {
			err = errors.New("IMWrite returned false")
		}
	default:
		if !gocv.IMWrite(path, frame) {
			err = errors.New("IMWrite returned false")
		}
	}
	if err != nil {
		return "", errors.Wrapf(ErrWriteFailure, "failed to save snapshot %s: %v", path, err)
	}
	return path, nil
}

func (s *SnapshotSink) saveWebP(path string, frame gocv.Mat) (err error) {
	img, err := frame.ToImage()
	if err != nil {
		return errors.Wrap(err, "failed to convert frame")
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	if err := webp.Encode(w, img, &webp.Options{Quality: float32(s.quality)}); err != nil {
		return errors.Wrap(err, "failed to encode webp")
	}
	return w.Flush()
}

// Dir returns the snapshot directory.
func (s *SnapshotSink) Dir() string {
	return s.dir
}
