package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// PrepareInput writes img into dst as a planar RGB tensor of size x size,
// normalized to [0, 1].
//
// Arguments:
//   - img: The image to prepare.
//   - size: The square model input edge, 640 for YOLOv8.
//   - dst: The destination tensor to populate.
//
// Returns:
//   - error: An error if the tensor is too small.
func PrepareInput(img image.Image, size int, dst *ort.Tensor[float32]) error {
	return FillPlanarRGB(img, size, dst.GetData())
}

// FillPlanarRGB is PrepareInput on a raw buffer.
func FillPlanarRGB(img image.Image, size int, data []float32) error {
	channelSize := size * size
	if len(data) < channelSize*3 {
		return errors.Errorf("destination tensor only holds %d floats, needs %d", len(data), channelSize*3)
	}
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	img = resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	bounds := img.Bounds()

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
