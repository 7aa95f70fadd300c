package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		target        int
		expected      image.Point
	}{
		{"1080p to 640", 1920, 1080, 640, image.Point{640, 360}},
		{"4:3 to 640", 1280, 960, 640, image.Point{640, 480}},
		{"upscale", 320, 240, 640, image.Point{640, 480}},
		{"unchanged", 640, 480, 640, image.Point{640, 480}},
		{"tall thin strip keeps one row", 4000, 1, 10, image.Point{10, 1}},
		{"zero source", 0, 480, 640, image.Point{}},
		{"zero target", 640, 480, 0, image.Point{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TargetSize(tt.width, tt.height, tt.target))
		})
	}
}

func TestResizeToWidth(t *testing.T) {
	src := gocv.NewMatWithSize(480, 1280, gocv.MatTypeCV8UC3)
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	require.NoError(t, ResizeToWidth(src, &dst, 640))
	assert.Equal(t, 640, dst.Cols())
	assert.Equal(t, 240, dst.Rows())
	assert.Equal(t, 3, dst.Channels())

	require.NoError(t, ResizeToWidth(src, &dst, 1280))
	assert.Equal(t, 1280, dst.Cols())
}

func TestResizeToWidthRejectsEmptyFrame(t *testing.T) {
	src := gocv.NewMat()
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	assert.Error(t, ResizeToWidth(src, &dst, 640))
}

func TestFormat(t *testing.T) {
	for _, name := range []string{"jpeg", "webp", "png"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.NotEmpty(t, f.Extension())
	}
	assert.Equal(t, ".jpg", FormatJPEG.Extension())

	_, err := ParseFormat("gif")
	assert.Error(t, err)
}

func TestComputeMatChecksum(t *testing.T) {
	a := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 0, 0, 0), 8, 8, gocv.MatTypeCV8UC1)
	defer a.Close()
	b := a.Clone()
	defer b.Close()
	c := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(11, 0, 0, 0), 8, 8, gocv.MatTypeCV8UC1)
	defer c.Close()
	empty := gocv.NewMat()
	defer empty.Close()

	assert.Equal(t, ComputeMatChecksum(a), ComputeMatChecksum(b))
	assert.NotEqual(t, ComputeMatChecksum(a), ComputeMatChecksum(c))
	assert.Equal(t, "empty", ComputeMatChecksum(empty))
}
