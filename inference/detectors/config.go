package detectors

import (
	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/inference"
)

// Config configures the ONNX detector.
type Config struct {
	ModelPath         string
	SharedLibraryPath string
	Provider          inference.ExecutionProvider
	IntraOpThreads    int

	// NMSThreshold controls Non-Maximum Suppression IoU threshold.
	NMSThreshold float32

	// RelevantClasses lists object classes to keep (empty = all classes).
	RelevantClasses []string
}

// DefaultConfig returns the detector defaults for a YOLOv8n model.
//
// @example
// cfg := DefaultConfig()
// cfg.ModelPath = "models/yolov8n.onnx"
// detector, err := NewONNXDetector(cfg)
func DefaultConfig() Config {
	return Config{
		ModelPath:       "models/yolov8n.onnx",
		Provider:        inference.ProviderCPU,
		IntraOpThreads:  4,
		NMSThreshold:    0.7,
		RelevantClasses: []string{},
	}
}

// ConfigFrom maps the yolo settings section onto a detector Config.
func ConfigFrom(y config.YOLO) Config {
	return Config{
		ModelPath:         y.ModelPath,
		SharedLibraryPath: y.SharedLibraryPath,
		Provider:          inference.ExecutionProvider(y.Provider),
		IntraOpThreads:    y.IntraOpThreads,
		NMSThreshold:      float32(y.NMSThreshold),
		RelevantClasses:   y.RelevantClasses,
	}
}
