// Package capture provides camera capture and frame conversion using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings.
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrCameraBusy is returned by Open when the device cannot be acquired,
	// usually because another application holds it.
	ErrCameraBusy = errors.New("camera is in use by another application")
	// ErrReadFailed is returned when the device yields no frame.
	ErrReadFailed = errors.New("failed to read frame from camera")
	// ErrEmptyFrame is returned when the device yields an empty frame.
	ErrEmptyFrame = errors.New("captured frame is empty")
)

// Facing selects which camera to open.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// Devices maps each facing to an OpenCV device index.
type Devices struct {
	Front int
	Back  int
}

// For returns the device index for facing.
func (d Devices) For(f Facing) int {
	if f == FacingFront {
		return d.Front
	}
	return d.Back
}

// Device describes one capture device and the format requested from it.
// Zero size and rate fields mean the defaults.
type Device struct {
	ID     int
	Facing Facing
	Width  int
	Height int
	FPS    int
}

func (d Device) withDefaults() Device {
	if d.Width <= 0 || d.Height <= 0 {
		d.Width, d.Height = DefaultWidth, DefaultHeight
	}
	if d.FPS <= 0 {
		d.FPS = DefaultFPS
	}
	return d
}

func (d Device) String() string {
	return fmt.Sprintf("%s camera (device %d)", d.Facing, d.ID)
}

// Camera is an opened or openable capture device.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	FPS() int
	IsOpen() bool
}

// videoCamera captures from an OpenCV VideoCapture device.
type videoCamera struct {
	dev Device

	mu      sync.Mutex
	capture *gocv.VideoCapture
}

// NewCamera returns an unopened Camera for dev.
func NewCamera(dev Device) Camera {
	return &videoCamera{dev: dev.withDefaults()}
}

// Open acquires the device and requests the configured format. A device
// that exists but cannot be acquired reports ErrCameraBusy.
func (c *videoCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.dev.ID)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCameraBusy, c.dev, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: %s", ErrCameraBusy, c.dev)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.dev.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.dev.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.dev.FPS))
	c.capture = vc
	return nil
}

// Close releases the device. Closing an unopened camera is a no-op.
func (c *videoCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame grabs the next frame. The caller owns the returned Mat.
func (c *videoCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if !c.capture.Read(&mat) {
		mat.Close()
		return nil, fmt.Errorf("%w: %s", ErrReadFailed, c.dev)
	}
	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}
	return &mat, nil
}

// FPS returns the requested frame rate.
func (c *videoCamera) FPS() int {
	return c.dev.FPS
}

func (c *videoCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}
