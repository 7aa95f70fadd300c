// Package recording - Motion clips, snapshots and their post-processing.
package recording

import (
	"image"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvr-ai/go-motion/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var (
	// ErrWriteFailure marks a clip or snapshot that could not be written.
	ErrWriteFailure = errors.New("recording write failure")
	// ErrSessionClosed is returned when appending to a closed session.
	ErrSessionClosed = errors.New("recording session is closed")
)

// Clip describes a finished or in-progress recording.
type Clip struct {
	Path      string
	Width     int
	Height    int
	FPS       float64
	Frames    int
	StartedAt time.Time
	ClosedAt  time.Time
}

// Options configures a Recorder.
type Options struct {
	Dir       string
	Codec     string
	Extension string
	FPS       float64
	// NewWriter defaults to NewVideoWriter.
	NewWriter WriterFactory
	// OnClose runs after a session's writer is released, once per session.
	OnClose func(Clip)
	Logger  logrus.FieldLogger
	// Now stamps ClosedAt. Defaults to time.Now.
	Now func() time.Time
}

// Recorder opens recording sessions in a directory.
type Recorder struct {
	opts Options
}

// NewRecorder validates the output directory, creating it if missing.
func NewRecorder(opts Options) (*Recorder, error) {
	if err := EnsureDir(opts.Dir); err != nil {
		return nil, err
	}
	if opts.NewWriter == nil {
		opts.NewWriter = NewVideoWriter
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{opts: opts}, nil
}

// Dir returns the output directory.
func (r *Recorder) Dir() string {
	return r.opts.Dir
}

// Open starts a clip for an event that began at startedAt.
//
// Arguments:
//   - startedAt: The start of the motion event, used for the file name.
//   - width, height: The size of every frame that will be appended.
//
// Returns:
//   - *Session: The open session.
//   - error: An ErrWriteFailure error if the writer cannot be opened.
func (r *Recorder) Open(startedAt time.Time, width, height int) (*Session, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid clip size %dx%d", width, height)
	}
	path := filepath.Join(r.opts.Dir, ClipName(startedAt, r.opts.Extension))

	w, err := r.opts.NewWriter(path, r.opts.Codec, r.opts.FPS, width, height)
	if err != nil {
		return nil, errors.Wrapf(ErrWriteFailure, "%v", err)
	}

	r.opts.Logger.WithField("path", path).Info("recording started")
	return &Session{
		clip: Clip{
			Path:      path,
			Width:     width,
			Height:    height,
			FPS:       r.opts.FPS,
			StartedAt: startedAt,
		},
		writer:  w,
		scratch: gocv.NewMat(),
		rec:     r,
	}, nil
}

// Session is one open clip. Append and Close may be called from different
// goroutines.
type Session struct {
	clip    Clip
	writer  Writer
	scratch gocv.Mat
	closed  bool
	rec     *Recorder
	mu      sync.Mutex
}

// Path returns the clip path.
func (s *Session) Path() string {
	return s.clip.Path
}

// Info returns a copy of the clip description.
func (s *Session) Info() Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Append encodes one frame. Frames of a different size are scaled to the
// clip size.
func (s *Session) Append(frame gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Wrap(ErrSessionClosed, s.clip.Path)
	}
	if frame.Empty() {
		return errors.Wrap(ErrWriteFailure, "empty frame")
	}

	out := frame
	if frame.Cols() != s.clip.Width || frame.Rows() != s.clip.Height {
		if err := gocv.Resize(frame, &s.scratch, image.Pt(s.clip.Width, s.clip.Height), 0, 0, gocv.InterpolationLinear); err != nil {
			return errors.Wrapf(ErrWriteFailure, "failed to scale frame: %v", err)
		}
		out = s.scratch
	}
	if err := s.writer.Write(out); err != nil {
		return errors.Wrapf(ErrWriteFailure, "failed to write frame to %s: %v", s.clip.Path, err)
	}
	s.clip.Frames++
	return nil
}

// Close flushes and releases the writer. Only the first call has an effect.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.clip.ClosedAt = s.rec.opts.Now()
	err := s.writer.Close()
	s.scratch.Close()
	clip := s.clip
	s.mu.Unlock()

	log := s.rec.opts.Logger.WithFields(logrus.Fields{"path": clip.Path, "frames": clip.Frames})
	if err != nil {
		log.WithError(err).Error("failed to finalize recording")
		return errors.Wrapf(ErrWriteFailure, "failed to finalize %s: %v", clip.Path, err)
	}
	log.Info("recording stopped")

	if s.rec.opts.OnClose != nil {
		s.rec.opts.OnClose(clip)
	}
	return nil
}
