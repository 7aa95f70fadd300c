package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/go-motion/images"
	"github.com/pkg/errors"
)

// Clip and snapshot file name layouts. Clip names have second granularity:
// two clips opened within the same second share a name and the second one
// overwrites the first.
const (
	ClipPrefix     = "motion_"
	SnapshotPrefix = "snapshot_"
	stampLayout    = "20060102_150405"
)

// ClipName returns the file name of a clip started at t.
//
// @example
// ClipName(time.Date(2024, 5, 1, 12, 30, 5, 0, time.Local), ".avi") // motion_20240501_123005.avi
func ClipName(t time.Time, ext string) string {
	return ClipPrefix + t.Format(stampLayout) + ext
}

// SnapshotName returns the file name of a snapshot taken at t. Milliseconds
// keep snapshots of consecutive frames apart.
func SnapshotName(t time.Time, format images.ImageFormat) string {
	return fmt.Sprintf("%s%s_%03d%s", SnapshotPrefix, t.Format(stampLayout), t.Nanosecond()/int(time.Millisecond), format.Extension())
}

// EnsureDir creates dir if needed. An existing file that is not a directory
// is an error.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return errors.Errorf("output path %s exists and is not a directory", dir)
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return errors.Wrapf(err, "failed to inspect %s", dir)
	}
	if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	return nil
}
