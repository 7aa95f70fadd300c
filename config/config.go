// Package config - YAML configuration for the motion recorder.
//
// Values are layered: Default() first, then the YAML file, then command line
// overrides. Validate must be called once all layers are applied; every
// problem it finds is reported as an ErrInvalid configuration error so that
// bad settings fail at startup and never at the first frame.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for settings when no -config flag is given.
const DefaultPath = "config/settings.yaml"

// ErrInvalid marks a missing or out-of-range setting. Match with errors.Is.
var ErrInvalid = errors.New("invalid configuration")

// SourceKind selects where frames come from.
type SourceKind string

const (
	// SourceCamera reads from a capture device.
	SourceCamera SourceKind = "camera"
	// SourceVideo reads from a recorded video file.
	SourceVideo SourceKind = "video"
)

// Video holds acquisition and output settings.
type Video struct {
	Source SourceKind `yaml:"source"`
	// CameraID is the capture device index.
	CameraID int `yaml:"camera_id"`
	// CameraFallbackID is tried once when CameraID cannot be opened. Negative disables the retry.
	CameraFallbackID int    `yaml:"camera_fallback_id"`
	InputPath        string `yaml:"input_path"`
	// FrameWidth is the width every frame is resized to before processing.
	FrameWidth int `yaml:"frame_width"`
	// FPS is the frame rate written into recorded clips.
	FPS       float64 `yaml:"fps"`
	OutputDir string  `yaml:"output_dir"`
	// FlipCamera mirrors camera frames horizontally. Video files are never flipped.
	FlipCamera bool `yaml:"flip_camera"`
	// BufferFrames > 0 enables background capture with a drop-oldest queue of this depth.
	BufferFrames int `yaml:"buffer_frames"`
}

// Detector holds the motion estimator and event tracker parameters.
type Detector struct {
	MinContourArea   float64 `yaml:"min_contour_area"`
	BlurSize         int     `yaml:"blur_size"`
	ThresholdValue   float64 `yaml:"threshold_value"`
	DilateIterations int     `yaml:"dilate_iterations"`
	// MotionDurationThreshold is in seconds.
	MotionDurationThreshold float64 `yaml:"motion_duration_threshold"`
}

// MotionDuration returns the duration threshold as a time.Duration.
func (d Detector) MotionDuration() time.Duration {
	return time.Duration(d.MotionDurationThreshold * float64(time.Second))
}

// YOLO configures the optional object detector.
type YOLO struct {
	Enabled   bool   `yaml:"enabled"`
	ModelPath string `yaml:"model_path"`
	// SharedLibraryPath points at the onnxruntime shared library. Empty picks a per-platform default.
	SharedLibraryPath string `yaml:"shared_library_path"`
	// Provider is the onnxruntime execution provider: cpu, coreml or openvino.
	Provider        string   `yaml:"provider"`
	Confidence      float64  `yaml:"confidence"`
	NMSThreshold    float64  `yaml:"nms_threshold"`
	RelevantClasses []string `yaml:"relevant_classes"`
	IntraOpThreads  int      `yaml:"intra_op_threads"`
}

// Transcode configures post-processing of finished clips with ffmpeg.
type Transcode struct {
	Enabled      bool   `yaml:"enabled"`
	Codec        string `yaml:"codec"`
	Format       string `yaml:"format"`
	Extension    string `yaml:"extension"`
	KeepOriginal bool   `yaml:"keep_original"`
}

// Recording configures clip and snapshot output.
type Recording struct {
	// Codec is the FourCC handed to the video writer.
	Codec     string `yaml:"codec"`
	Extension string `yaml:"extension"`
	// SnapshotDir defaults to Video.OutputDir when empty.
	SnapshotDir     string    `yaml:"snapshot_dir"`
	SnapshotFormat  string    `yaml:"snapshot_format"`
	SnapshotQuality int       `yaml:"snapshot_quality"`
	Transcode       Transcode `yaml:"transcode"`
}

// Catalog configures the SQLite index of recordings and snapshots.
type Catalog struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Log configures the logger.
type Log struct {
	LogDir string `yaml:"log_dir"`
	Level  string `yaml:"level"`
}

// Pipeline configures the tick loop.
type Pipeline struct {
	// MaxConsecutiveFailures aborts the loop after this many failing ticks in a row. 0 disables.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	// FPSWindow is the number of frames between FPS measurements.
	FPSWindow int `yaml:"fps_window"`
	// ReportInterval controls how often the profiler logs stage timings. 0 disables reports.
	ReportInterval time.Duration `yaml:"report_interval"`
}

// Config is the root of settings.yaml.
type Config struct {
	Video     Video     `yaml:"video"`
	Detector  Detector  `yaml:"detector"`
	YOLO      YOLO      `yaml:"yolo"`
	Recording Recording `yaml:"recording"`
	Catalog   Catalog   `yaml:"catalog"`
	Log       Log       `yaml:"log"`
	Pipeline  Pipeline  `yaml:"pipeline"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Video: Video{
			Source:           SourceCamera,
			CameraID:         0,
			CameraFallbackID: 1,
			FrameWidth:       640,
			FPS:              20,
			OutputDir:        "output",
			FlipCamera:       true,
		},
		Detector: Detector{
			MinContourArea:          500,
			BlurSize:                21,
			ThresholdValue:          25,
			DilateIterations:        2,
			MotionDurationThreshold: 2,
		},
		YOLO: YOLO{
			Enabled:         true,
			ModelPath:       "models/yolov8n.onnx",
			Provider:        "cpu",
			Confidence:      0.5,
			NMSThreshold:    0.7,
			RelevantClasses: []string{},
			IntraOpThreads:  4,
		},
		Recording: Recording{
			Codec:           "MJPG",
			Extension:       ".avi",
			SnapshotFormat:  "jpeg",
			SnapshotQuality: 90,
			Transcode: Transcode{
				Codec:        "libx264",
				Format:       "mp4",
				Extension:    ".mp4",
				KeepOriginal: true,
			},
		},
		Catalog: Catalog{
			Enabled: true,
			Path:    "output/catalog.db",
		},
		Log: Log{
			LogDir: "logs",
			Level:  "info",
		},
		Pipeline: Pipeline{
			MaxConsecutiveFailures: 25,
			FPSWindow:              10,
			ReportInterval:         10 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. It does not validate, so that
// command line overrides can be applied first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty document is valid and yields the defaults.
		if err == io.EOF {
			return cfg, nil
		}
		return nil, errors.Wrapf(ErrInvalid, "failed to parse config: %v", err)
	}
	return cfg, nil
}

// SnapshotDirectory returns where snapshots go.
func (c *Config) SnapshotDirectory() string {
	if c.Recording.SnapshotDir != "" {
		return c.Recording.SnapshotDir
	}
	return c.Video.OutputDir
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Video.Source {
	case SourceCamera:
		if c.Video.CameraID < 0 {
			add("video.camera_id must be >= 0, got %d", c.Video.CameraID)
		}
	case SourceVideo:
		if c.Video.InputPath == "" {
			add("video.input_path is required when video.source is %q", SourceVideo)
		}
	default:
		add("video.source must be %q or %q, got %q", SourceCamera, SourceVideo, c.Video.Source)
	}
	if c.Video.FrameWidth <= 0 {
		add("video.frame_width must be > 0, got %d", c.Video.FrameWidth)
	}
	if c.Video.FPS <= 0 {
		add("video.fps must be > 0, got %g", c.Video.FPS)
	}
	if c.Video.OutputDir == "" {
		add("video.output_dir is required")
	}
	if c.Video.BufferFrames < 0 {
		add("video.buffer_frames must be >= 0, got %d", c.Video.BufferFrames)
	}

	if c.Detector.BlurSize <= 0 || c.Detector.BlurSize%2 == 0 {
		add("detector.blur_size must be a positive odd number, got %d", c.Detector.BlurSize)
	}
	if c.Detector.ThresholdValue < 0 || c.Detector.ThresholdValue > 255 {
		add("detector.threshold_value must be within [0, 255], got %g", c.Detector.ThresholdValue)
	}
	if c.Detector.MinContourArea < 0 {
		add("detector.min_contour_area must be >= 0, got %g", c.Detector.MinContourArea)
	}
	if c.Detector.DilateIterations < 0 {
		add("detector.dilate_iterations must be >= 0, got %d", c.Detector.DilateIterations)
	}
	if c.Detector.MotionDurationThreshold < 0 {
		add("detector.motion_duration_threshold must be >= 0, got %g", c.Detector.MotionDurationThreshold)
	}

	if c.YOLO.Enabled {
		if c.YOLO.ModelPath == "" {
			add("yolo.model_path is required when yolo.enabled is true")
		}
		switch c.YOLO.Provider {
		case "cpu", "coreml", "openvino":
		default:
			add("yolo.provider must be one of cpu, coreml, openvino, got %q", c.YOLO.Provider)
		}
		if c.YOLO.Confidence <= 0 || c.YOLO.Confidence > 1 {
			add("yolo.confidence must be within (0, 1], got %g", c.YOLO.Confidence)
		}
		if c.YOLO.NMSThreshold <= 0 || c.YOLO.NMSThreshold > 1 {
			add("yolo.nms_threshold must be within (0, 1], got %g", c.YOLO.NMSThreshold)
		}
	}

	if len(c.Recording.Codec) != 4 {
		add("recording.codec must be a four character code, got %q", c.Recording.Codec)
	}
	if !strings.HasPrefix(c.Recording.Extension, ".") {
		add("recording.extension must start with a dot, got %q", c.Recording.Extension)
	}
	switch c.Recording.SnapshotFormat {
	case "jpeg", "webp", "png":
	default:
		add("recording.snapshot_format must be one of jpeg, webp, png, got %q", c.Recording.SnapshotFormat)
	}
	if c.Recording.SnapshotQuality < 1 || c.Recording.SnapshotQuality > 100 {
		add("recording.snapshot_quality must be within [1, 100], got %d", c.Recording.SnapshotQuality)
	}
	if t := c.Recording.Transcode; t.Enabled {
		if t.Codec == "" || t.Format == "" {
			add("recording.transcode needs codec and format when enabled")
		}
		if !strings.HasPrefix(t.Extension, ".") || t.Extension == c.Recording.Extension {
			add("recording.transcode.extension must start with a dot and differ from recording.extension, got %q", t.Extension)
		}
	}

	if c.Catalog.Enabled && c.Catalog.Path == "" {
		add("catalog.path is required when catalog.enabled is true")
	}
	if c.Log.LogDir == "" {
		add("log.log_dir is required")
	}
	if c.Pipeline.MaxConsecutiveFailures < 0 {
		add("pipeline.max_consecutive_failures must be >= 0, got %d", c.Pipeline.MaxConsecutiveFailures)
	}
	if c.Pipeline.FPSWindow <= 0 {
		add("pipeline.fps_window must be > 0, got %d", c.Pipeline.FPSWindow)
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Overrides holds optional values from the command line. Nil or zero values are ignored.
type Overrides struct {
	Source       *string
	CameraID     *int
	InputPath    *string
	OutputDir    *string
	FrameWidth   *int
	ModelPath    *string
	Confidence   *float64
	DisableYOLO  *bool
	MinArea      *float64
	MinDuration  *float64
	BufferFrames *int
}

// Override applies command line values on top of the loaded configuration.
func (c *Config) Override(o Overrides) {
	if o.Source != nil && *o.Source != "" {
		c.Video.Source = SourceKind(*o.Source)
	}
	if o.CameraID != nil && *o.CameraID >= 0 {
		c.Video.CameraID = *o.CameraID
	}
	if o.InputPath != nil && *o.InputPath != "" {
		c.Video.InputPath = *o.InputPath
		c.Video.Source = SourceVideo
	}
	if o.OutputDir != nil && *o.OutputDir != "" {
		c.Video.OutputDir = *o.OutputDir
	}
	if o.FrameWidth != nil && *o.FrameWidth > 0 {
		c.Video.FrameWidth = *o.FrameWidth
	}
	if o.ModelPath != nil && *o.ModelPath != "" {
		c.YOLO.ModelPath = *o.ModelPath
	}
	if o.Confidence != nil && *o.Confidence > 0 {
		c.YOLO.Confidence = *o.Confidence
	}
	if o.DisableYOLO != nil && *o.DisableYOLO {
		c.YOLO.Enabled = false
	}
	if o.MinArea != nil && *o.MinArea > 0 {
		c.Detector.MinContourArea = *o.MinArea
	}
	if o.MinDuration != nil && *o.MinDuration >= 0 {
		c.Detector.MotionDurationThreshold = *o.MinDuration
	}
	if o.BufferFrames != nil && *o.BufferFrames > 0 {
		c.Video.BufferFrames = *o.BufferFrames
	}
}
