// Command motion-recorder watches a camera or a video file, records a clip
// while confirmed motion lasts and saves snapshots of every motion frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nvr-ai/go-motion/catalog"
	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/images"
	"github.com/nvr-ai/go-motion/inference/detectors"
	"github.com/nvr-ai/go-motion/logging"
	"github.com/nvr-ai/go-motion/pipeline"
	"github.com/nvr-ai/go-motion/profiler"
	"github.com/nvr-ai/go-motion/recording"
	"github.com/nvr-ai/go-motion/source"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const windowName = "Motion Recorder"

func main() {
	var (
		configPath   string
		sourceKind   string
		cameraID     int
		inputPath    string
		outputDir    string
		frameWidth   int
		modelPath    string
		confidence   float64
		disableYOLO  bool
		minArea      float64
		minDuration  float64
		bufferFrames int
		showWindow   bool
		migrateOnly  bool
	)
	flag.StringVar(&configPath, "config", config.DefaultPath, "Path to the YAML settings file")
	flag.StringVar(&sourceKind, "source", "", "Frame source: camera or video")
	flag.IntVar(&cameraID, "camera", -1, "Capture device index")
	flag.StringVar(&inputPath, "video", "", "Path to a video file (.mp4, .avi, .wmv, .mkv, .vob, .flv, .mov)")
	flag.StringVar(&outputDir, "output-dir", "", "Output directory for clips and snapshots")
	flag.IntVar(&frameWidth, "width", 0, "Processing frame width")
	flag.StringVar(&modelPath, "onnx-model", "", "Path to the YOLO ONNX model file")
	flag.Float64Var(&confidence, "confidence", 0, "Object detection confidence threshold")
	flag.BoolVar(&disableYOLO, "no-detection", false, "Disable object detection")
	flag.Float64Var(&minArea, "min-area", 0, "Minimum contour area in pixels")
	flag.Float64Var(&minDuration, "min-duration", -1, "Seconds of motion before recording starts")
	flag.IntVar(&bufferFrames, "buffer", 0, "Capture in the background with a queue of this many frames")
	flag.BoolVar(&showWindow, "show-window", false, "Show the preview window (r resets the background, q or ESC quits)")
	flag.BoolVar(&migrateOnly, "migrate", false, "Migrate the catalog database and exit")
	flag.Parse()

	overrides := config.Overrides{
		Source:       &sourceKind,
		CameraID:     &cameraID,
		InputPath:    &inputPath,
		OutputDir:    &outputDir,
		FrameWidth:   &frameWidth,
		ModelPath:    &modelPath,
		Confidence:   &confidence,
		DisableYOLO:  &disableYOLO,
		MinArea:      &minArea,
		MinDuration:  &minDuration,
		BufferFrames: &bufferFrames,
	}

	cfg, err := loadConfig(configPath, overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, logFile, err := logging.New(cfg.Log.LogDir, cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logFile.Close()

	if migrateOnly {
		if err := migrateCatalog(cfg, logger); err != nil {
			logger.WithError(err).Error("failed to migrate catalog")
			logFile.Close()
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger, showWindow); err != nil {
		logger.WithError(err).Error("motion recorder failed")
		logFile.Close()
		os.Exit(1)
	}
}

// loadConfig layers the settings file and the command line over the defaults.
// A missing file at the default path is not an error.
func loadConfig(path string, o config.Overrides) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if path != config.DefaultPath || !os.IsNotExist(errors.Cause(err)) {
			return nil, err
		}
		cfg = config.Default()
	}
	cfg.Override(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrateCatalog(cfg *config.Config, logger logrus.FieldLogger) error {
	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer cat.Close()

	version, dirty, err := cat.MigrateVersion()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"path": cfg.Catalog.Path, "version": version, "dirty": dirty}).Info("catalog migrated")
	return nil
}

func run(cfg *config.Config, logger *logrus.Logger, showWindow bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	detector := newDetector(cfg, logger)
	defer detector.Close()

	var cat *catalog.Catalog
	if cfg.Catalog.Enabled {
		var err error
		if cat, err = catalog.Open(cfg.Catalog.Path); err != nil {
			return err
		}
		defer cat.Close()
	}

	var transcodes sync.WaitGroup
	defer transcodes.Wait()

	rec, err := recording.NewRecorder(recording.Options{
		Dir:       cfg.Video.OutputDir,
		Codec:     cfg.Recording.Codec,
		Extension: cfg.Recording.Extension,
		FPS:       cfg.Video.FPS,
		OnClose:   onClose(cfg, cat, &transcodes, logger),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	format, err := images.ParseFormat(cfg.Recording.SnapshotFormat)
	if err != nil {
		return errors.Wrap(config.ErrInvalid, err.Error())
	}
	snaps, err := recording.NewSnapshotSink(cfg.SnapshotDirectory(), format, cfg.Recording.SnapshotQuality)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Detector:  detector,
		Recorder:  rec,
		Snapshots: snaps,
		Logger:    logger,
		Profiler: profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
			ReportInterval: cfg.Pipeline.ReportInterval,
			Logger:         logger.WithField("component", "profiler"),
		}),
	}
	if cat != nil {
		deps.Catalog = cat
	}

	p, err := pipeline.New(cfg, deps)
	if err != nil {
		return err
	}
	defer p.Close()

	if showWindow {
		window := gocv.NewWindow(windowName)
		defer window.Close()
		p.SetPreview(previewWindow(window, p, stop))
	}

	if err := p.Start(ctx, source.DescriptorFrom(cfg.Video)); err != nil {
		return err
	}
	err = p.Run(ctx)
	logger.WithField("status", p.Stats().String()).Info("motion recorder stopped")
	return err
}

// newDetector loads the ONNX detector. Failures fall back to motion only.
func newDetector(cfg *config.Config, logger logrus.FieldLogger) detectors.Detector {
	if !cfg.YOLO.Enabled {
		logger.Info("object detection disabled")
		return detectors.Nop{}
	}
	d, err := detectors.NewONNXDetector(detectors.ConfigFrom(cfg.YOLO))
	if err != nil {
		logger.WithError(err).Warn("failed to initialize object detector, continuing with motion detection only")
		return detectors.Nop{}
	}
	logger.WithField("model", cfg.YOLO.ModelPath).Info("object detector initialized")
	return d
}

// onClose transcodes every finished clip in the background and indexes the
// result. wg tracks running transcodes.
func onClose(cfg *config.Config, cat *catalog.Catalog, wg *sync.WaitGroup, logger logrus.FieldLogger) func(recording.Clip) {
	t := cfg.Recording.Transcode
	if !t.Enabled {
		return nil
	}
	tc := recording.NewTranscoder(recording.TranscodeOptions{
		Codec:        t.Codec,
		Format:       t.Format,
		Extension:    t.Extension,
		KeepOriginal: t.KeepOriginal,
	}, logger)
	hook := tc.Hook(func(clip recording.Clip, output string) {
		if cat == nil {
			return
		}
		if err := cat.SetTranscoded(clip.Path, output); err != nil {
			logger.WithError(err).WithField("path", clip.Path).Warn("failed to index transcoded clip")
		}
	})
	return func(clip recording.Clip) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hook(clip)
		}()
	}
}

// previewWindow shows every annotated frame. r resets the background; q or
// ESC stops processing.
func previewWindow(window *gocv.Window, p *pipeline.Pipeline, quit context.CancelFunc) pipeline.PreviewFunc {
	return func(frame gocv.Mat, r *pipeline.TickResult) {
		window.IMShow(frame)
		window.SetWindowTitle(fmt.Sprintf("%s | %s | FPS: %.2f", windowName, r.State, r.FPS))

		switch window.WaitKey(1) {
		case 'r', 'R':
			p.ResetBackground()
		case 'q', 'Q', 27:
			quit()
		}
	}
}
