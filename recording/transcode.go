package recording

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xfrr/goffmpeg/transcoder"
)

// TranscodeOptions configures post-processing of finished clips.
type TranscodeOptions struct {
	Codec        string
	Format       string
	Extension    string
	KeepOriginal bool
}

// Transcoder converts finished clips with ffmpeg.
type Transcoder struct {
	opts   TranscodeOptions
	logger logrus.FieldLogger
	// run is swapped in tests to avoid spawning ffmpeg.
	run func(in, out string) error
}

// NewTranscoder creates a Transcoder.
func NewTranscoder(opts TranscodeOptions, logger logrus.FieldLogger) *Transcoder {
	t := &Transcoder{opts: opts, logger: logger}
	t.run = t.ffmpeg
	return t
}

// OutputPath returns where a clip at path is transcoded to.
func (t *Transcoder) OutputPath(path string) string {
	ext := t.opts.Extension
	if ext == "" {
		ext = "." + strings.TrimLeft(t.opts.Format, ".")
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// Transcode converts clip.Path and returns the new path. The original is
// removed only on success and when KeepOriginal is false.
func (t *Transcoder) Transcode(clip Clip) (string, error) {
	out := t.OutputPath(clip.Path)
	if out == clip.Path {
		return "", errors.Errorf("transcode output would overwrite %s", clip.Path)
	}
	if err := t.run(clip.Path, out); err != nil {
		return "", errors.Wrapf(err, "failed to transcode %s", clip.Path)
	}
	if !t.opts.KeepOriginal {
		if err := os.Remove(clip.Path); err != nil {
			return out, errors.Wrapf(err, "failed to remove %s", clip.Path)
		}
	}
	return out, nil
}

// Hook returns an OnClose callback that transcodes every finished clip and
// reports the result to done. Failures are logged and the original is kept.
func (t *Transcoder) Hook(done func(clip Clip, output string)) func(Clip) {
	return func(clip Clip) {
		log := t.logger.WithField("path", clip.Path)
		out, err := t.Transcode(clip)
		if err != nil {
			log.WithError(err).Warn("transcode failed, keeping original clip")
			return
		}
		log.WithField("output", out).Info("clip transcoded")
		if done != nil {
			done(clip, out)
		}
	}
}

func (t *Transcoder) ffmpeg(in, out string) error {
	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(in, out); err != nil {
		return errors.Wrap(err, "failed to initialize transcoder")
	}
	trans.MediaFile().SetVideoCodec(t.opts.Codec)
	trans.MediaFile().SetOutputFormat(t.opts.Format)
	trans.MediaFile().SetSkipAudio(true)

	return <-trans.Run(false)
}
