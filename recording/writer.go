package recording

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Writer encodes frames into a video file.
type Writer interface {
	Write(frame gocv.Mat) error
	Close() error
}

// WriterFactory opens a Writer for a new clip.
type WriterFactory func(path, codec string, fps float64, width, height int) (Writer, error)

// videoWriter is the gocv backed Writer.
type videoWriter struct {
	vw *gocv.VideoWriter
}

// NewVideoWriter opens a colour video file through OpenCV. codec is a FourCC
// such as MJPG.
func NewVideoWriter(path, codec string, fps float64, width, height int) (Writer, error) {
	vw, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create video writer for %s", path)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, errors.Errorf("video writer for %s did not open (codec %s)", path, codec)
	}
	return &videoWriter{vw: vw}, nil
}

func (w *videoWriter) Write(frame gocv.Mat) error {
	return w.vw.Write(frame)
}

func (w *videoWriter) Close() error {
	return w.vw.Close()
}
