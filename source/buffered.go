package source

import (
	"image"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Buffered reads a Source on a background goroutine into a bounded queue.
// When the consumer falls behind, the oldest queued frame is released and
// counted as dropped so the consumer always sees the most recent frames.
type Buffered struct {
	src     Source
	frames  chan gocv.Mat
	stop    chan struct{}
	err     error
	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewBuffered starts capturing src into a queue of depth frames.
//
// @example
// src, _ := source.Open(desc)
// buffered := source.NewBuffered(src, 4)
// defer buffered.Close()
func NewBuffered(src Source, depth int) *Buffered {
	if depth < 1 {
		depth = 1
	}
	b := &Buffered{
		src:    src,
		frames: make(chan gocv.Mat, depth),
		stop:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.produce()
	return b
}

func (b *Buffered) produce() {
	defer b.wg.Done()
	defer close(b.frames)

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		m := gocv.NewMat()
		if err := b.src.Next(&m); err != nil {
			m.Close()
			// Read by the consumer only after frames is closed.
			b.err = err
			return
		}

		select {
		case b.frames <- m:
			continue
		default:
		}

		// Queue full: drop the oldest frame. Only this goroutine sends, so
		// there is room afterwards.
		select {
		case old, ok := <-b.frames:
			if ok {
				old.Close()
				b.dropped.Add(1)
			}
		default:
		}
		select {
		case b.frames <- m:
		case <-b.stop:
			m.Close()
			return
		}
	}
}

// Next implements Source. Queued frames are delivered before the error that
// ended capture.
func (b *Buffered) Next(dst *gocv.Mat) error {
	m, ok := <-b.frames
	if !ok {
		if b.err == nil {
			return ErrEndOfStream
		}
		return b.err
	}
	defer m.Close()
	return m.CopyTo(dst)
}

// Dropped returns the number of frames discarded so far.
func (b *Buffered) Dropped() int64 {
	return b.dropped.Load()
}

// Size implements Source.
func (b *Buffered) Size() image.Point {
	return b.src.Size()
}

// Describe implements Source.
func (b *Buffered) Describe() string {
	return b.src.Describe()
}

// Close stops the producer, releases queued frames and closes the source.
func (b *Buffered) Close() error {
	var err error
	b.once.Do(func() {
		close(b.stop)
		// Unblock a producer waiting on a full queue.
		go func() {
			for m := range b.frames {
				m.Close()
			}
		}()
		b.wg.Wait()
		err = b.src.Close()
	})
	return err
}
