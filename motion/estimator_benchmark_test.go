package motion

import (
	"testing"
	"time"

	"github.com/nvr-ai/go-motion/test"
	"gocv.io/x/gocv"
)

func benchmarkEstimate(b *testing.B, width, height, frameWidth int) {
	gen := test.NewFrameGenerator(width, height)
	frames := []gocv.Mat{gen.Static(), gen.Block(width/4, height/4, width/8), gen.Block(width/3, height/4, width/8)}
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	cfg := DefaultConfig()
	cfg.FrameWidth = frameWidth
	est, err := NewEstimator(cfg)
	if err != nil {
		b.Fatal(err)
	}
	defer est.Close()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := est.Estimate(frames[i%len(frames)], at)
		if err != nil {
			b.Fatal(err)
		}
		res.Close()
	}
}

func BenchmarkEstimate_VGA_640(b *testing.B)    { benchmarkEstimate(b, 640, 480, 640) }
func BenchmarkEstimate_720p_640(b *testing.B)   { benchmarkEstimate(b, 1280, 720, 640) }
func BenchmarkEstimate_1080p_640(b *testing.B)  { benchmarkEstimate(b, 1920, 1080, 640) }
func BenchmarkEstimate_1080p_1280(b *testing.B) { benchmarkEstimate(b, 1920, 1080, 1280) }
