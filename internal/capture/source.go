package capture

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/ayusman/headtrack/internal/frame"
)

// StartedListener is called once per Start, from the read goroutine, after
// the first frame has been stored.
type StartedListener func(slot *frame.Slot)

// SourceConfig configures a Source.
type SourceConfig struct {
	Devices Devices

	// Requested capture format. Zero values use the defaults.
	Width  int
	Height int
	FPS    int

	// Rotation of the sensor relative to the display, in degrees.
	Rotation int

	// NewCamera opens a device. Defaults to NewCamera.
	NewCamera func(dev Device) Camera
}

// Source owns the camera device while capturing. Its read goroutine stores
// every frame in the slot and reports frame availability.
type Source struct {
	config SourceConfig
	slot   *frame.Slot

	mu          sync.Mutex
	camera      Camera
	facing      Facing
	onStarted   StartedListener
	onAvailable func()
	frameSize   image.Point
	busy        bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewSource creates a stopped Source writing into slot.
func NewSource(config SourceConfig, slot *frame.Slot) *Source {
	if config.NewCamera == nil {
		config.NewCamera = NewCamera
	}
	return &Source{
		config: config,
		slot:   slot,
	}
}

// SetOnCameraStarted sets the listener called when capture produces its
// first frame.
func (s *Source) SetOnCameraStarted(fn StartedListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStarted = fn
}

// SetOnFrameAvailable sets the callback run after every stored frame.
func (s *Source) SetOnFrameAvailable(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAvailable = fn
}

// Start opens the camera for facing and starts capturing. Starting a running
// source does nothing.
func (s *Source) Start(facing Facing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return nil
	}

	dev := Device{
		ID:     s.config.Devices.For(facing),
		Facing: facing,
		Width:  s.config.Width,
		Height: s.config.Height,
		FPS:    s.config.FPS,
	}

	cam := s.config.NewCamera(dev)
	if err := cam.Open(); err != nil {
		s.busy = errors.Is(err, ErrCameraBusy)
		return fmt.Errorf("start %s: %w", dev, err)
	}
	s.busy = false

	s.camera = cam
	s.facing = facing
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.readLoop(cam, s.stopCh)

	log.Printf("Camera started: %s", dev)
	return nil
}

// Stop halts capture, releases the device and invalidates the current frame.
func (s *Source) Stop() {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	cam := s.camera
	s.camera = nil
	s.mu.Unlock()

	s.wg.Wait()

	if err := cam.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	s.slot.Invalidate()
	log.Println("Camera stopped")
}

// Running reports whether capture is active.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// Busy reports whether the last Start failed because the device was held
// by another application.
func (s *Source) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Facing returns the facing of the last Start.
func (s *Source) Facing() Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// IsRotated reports whether the sensor is rotated a quarter turn relative to
// the display.
func (s *Source) IsRotated() bool {
	r := ((s.config.Rotation % 360) + 360) % 360
	return r == 90 || r == 270
}

// FrameSize returns the raw size of captured frames, or the default capture
// size before the first frame.
func (s *Source) FrameSize() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frameSize == (image.Point{}) {
		return image.Pt(DefaultWidth, DefaultHeight)
	}
	return s.frameSize
}

// ComputeDisplaySizeFromViewSize fits the camera frame into view while
// keeping the camera aspect ratio. The frame is measured in display
// orientation, so a rotated sensor has its sides swapped.
func (s *Source) ComputeDisplaySizeFromViewSize(view image.Point) image.Point {
	if view.X <= 0 || view.Y <= 0 {
		return image.Point{}
	}

	fs := s.FrameSize()
	if s.IsRotated() {
		fs = image.Pt(fs.Y, fs.X)
	}

	// Match the view height and scale width by the frame aspect ratio.
	width := int(float64(view.Y) * float64(fs.X) / float64(fs.Y))
	return image.Pt(width, view.Y)
}

func (s *Source) readLoop(cam Camera, stopCh chan struct{}) {
	defer s.wg.Done()

	fps := cam.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	started := false
	var lastErr error

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		mat, err := cam.ReadFrame()
		if err != nil {
			// Log once per distinct failure to avoid flooding at frame rate.
			if lastErr == nil || lastErr.Error() != err.Error() {
				log.Printf("Error reading frame: %v", err)
			}
			lastErr = err
			continue
		}
		lastErr = nil

		size := image.Pt(mat.Cols(), mat.Rows())
		s.slot.Store(*mat)

		s.mu.Lock()
		s.frameSize = size
		onStarted := s.onStarted
		onAvailable := s.onAvailable
		s.mu.Unlock()

		if !started {
			started = true
			if onStarted != nil {
				onStarted(s.slot)
			}
		}
		if onAvailable != nil {
			onAvailable()
		}
	}
}
