package capture

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/ayusman/headtrack/internal/frame"
	"gocv.io/x/gocv"
)

// ErrConverterClosed is returned by Deliver after Close.
var ErrConverterClosed = errors.New("converter is closed")

// Consumer receives converted frames. The frame is only valid for the
// duration of the call.
type Consumer interface {
	OnNewFrame(frame gocv.Mat, timestamp time.Time) error
}

// Converter turns raw camera frames into the frames the engine consumes:
// resized to the attached output size and optionally flipped vertically.
// Output goes through a ring of numBuffers reusable Mats.
//
// The display sees each frame after the resize and before the flip, so the
// preview stays upright while the engine gets the orientation it expects.
type Converter struct {
	mu        sync.Mutex
	flipY     bool
	size      image.Point
	buffers   []gocv.Mat
	next      int
	consumer  Consumer
	display   Consumer
	closed    bool
	converted uint64
}

// NewConverter creates a Converter with numBuffers output buffers.
func NewConverter(numBuffers int) *Converter {
	if numBuffers <= 0 {
		numBuffers = 2
	}
	buffers := make([]gocv.Mat, numBuffers)
	for i := range buffers {
		buffers[i] = gocv.NewMat()
	}
	return &Converter{buffers: buffers}
}

// SetFlipY enables vertical flipping.
func (c *Converter) SetFlipY(flip bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flipY = flip
}

// SetConsumer sets the engine-side consumer.
func (c *Converter) SetConsumer(consumer Consumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumer = consumer
}

// SetDisplay sets the consumer that receives unflipped frames.
func (c *Converter) SetDisplay(display Consumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.display = display
}

// SetOutputSize sets the converted frame size. A zero size keeps the input
// size.
func (c *Converter) SetOutputSize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if width <= 0 || height <= 0 {
		c.size = image.Point{}
		return
	}
	c.size = image.Pt(width, height)
}

// OutputSize returns the configured output size.
func (c *Converter) OutputSize() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Converted returns the number of frames converted.
func (c *Converter) Converted() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.converted
}

// Deliver converts h and hands the result to the display and the consumer.
// A failing display does not keep the frame from the consumer. It implements
// frame.Sink.
func (c *Converter) Deliver(h *frame.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConverterClosed
	}
	if h == nil || h.Mat.Empty() {
		return ErrEmptyFrame
	}

	buf := &c.buffers[c.next]
	c.next = (c.next + 1) % len(c.buffers)

	if c.size != (image.Point{}) && (h.Mat.Cols() != c.size.X || h.Mat.Rows() != c.size.Y) {
		gocv.Resize(h.Mat, buf, c.size, 0, 0, gocv.InterpolationLinear)
	} else {
		h.Mat.CopyTo(buf)
	}

	c.converted++

	var errs []error
	if c.display != nil {
		if err := c.display.OnNewFrame(*buf, h.Timestamp); err != nil {
			errs = append(errs, err)
		}
	}

	if c.flipY {
		gocv.Flip(*buf, buf, 0)
	}
	if c.consumer != nil {
		if err := c.consumer.OnNewFrame(*buf, h.Timestamp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the output buffers. Close is idempotent.
func (c *Converter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	for i := range c.buffers {
		c.buffers[i].Close()
	}
	c.closed = true
}

// Closed reports whether Close was called.
func (c *Converter) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
