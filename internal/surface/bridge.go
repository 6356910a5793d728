// Package surface associates the current camera frame with the output size
// the engine should assume, and keeps the preview display.
package surface

import (
	"image"
	"log"
	"sync"
	"time"

	"github.com/ayusman/headtrack/internal/frame"
	"gocv.io/x/gocv"
)

// Target receives the attached output size. The capture converter
// implements it.
type Target interface {
	SetOutputSize(width, height int)
}

// Camera reports what the bridge needs to size the display.
type Camera interface {
	ComputeDisplaySizeFromViewSize(view image.Point) image.Point
	IsRotated() bool
}

// AttachSize applies the rotation rule: a rotated camera has the display
// width and height swapped before attach.
func AttachSize(display image.Point, rotated bool) image.Point {
	if rotated {
		return image.Pt(display.Y, display.X)
	}
	return display
}

// Bridge binds a frame slot to a converter target and serves the preview.
type Bridge struct {
	mu       sync.RWMutex
	target   Target
	slot     *frame.Slot
	size     image.Point
	attached bool
	visible  bool

	preview     []byte
	previewTime time.Time
}

// NewBridge creates a detached, hidden Bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// SetTarget sets the converter that receives the attached size. A nil target
// is allowed while the converter is closed.
func (b *Bridge) SetTarget(t Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = t
	if t != nil && b.attached {
		t.SetOutputSize(b.size.X, b.size.Y)
	}
}

// Attach binds slot with the display-adjusted width and height.
func (b *Bridge) Attach(slot *frame.Slot, width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slot = slot
	b.size = image.Pt(width, height)
	b.attached = true
	if b.target != nil {
		b.target.SetOutputSize(width, height)
	}
}

// Detach releases the binding. It is safe to call when never attached.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return
	}
	b.slot = nil
	b.size = image.Point{}
	b.attached = false
	b.preview = nil
	if b.target != nil {
		b.target.SetOutputSize(0, 0)
	}
}

// SurfaceChanged recomputes the display size for a view of viewW x viewH and
// attaches slot with the rotation rule applied.
func (b *Bridge) SurfaceChanged(cam Camera, slot *frame.Slot, viewW, viewH int) image.Point {
	display := cam.ComputeDisplaySizeFromViewSize(image.Pt(viewW, viewH))
	size := AttachSize(display, cam.IsRotated())
	b.Attach(slot, size.X, size.Y)
	log.Printf("Surface attached at %dx%d (view %dx%d, rotated %v)", size.X, size.Y, viewW, viewH, cam.IsRotated())
	return size
}

// Attached reports whether a slot is bound, and the bound size.
func (b *Bridge) Attached() (bool, image.Point) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.attached, b.size
}

// Slot returns the bound slot, or nil.
func (b *Bridge) Slot() *frame.Slot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slot
}

// SetVisible shows or hides the preview display. Hiding drops the last
// preview frame.
func (b *Bridge) SetVisible(visible bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visible = visible
	if !visible {
		b.preview = nil
	}
}

// Visible reports whether the preview display is shown.
func (b *Bridge) Visible() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.visible
}

// OnNewFrame keeps the display frame as a JPEG preview while visible.
func (b *Bridge) OnNewFrame(m gocv.Mat, timestamp time.Time) error {
	if !b.Visible() {
		return nil
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, m)
	if err != nil {
		return err
	}
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	buf.Close()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.visible {
		b.preview = data
		b.previewTime = timestamp
	}
	return nil
}

// Preview returns the latest preview JPEG and its timestamp. ok is false when
// hidden or before the first frame.
func (b *Bridge) Preview() (jpeg []byte, timestamp time.Time, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.visible || b.preview == nil {
		return nil, time.Time{}, false
	}
	return b.preview, b.previewTime, true
}
