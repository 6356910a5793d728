// Package frame holds the most recent camera frame and serializes its delivery
// to the processing pipeline.
package frame

import (
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when no camera frame has been captured yet, or the
// last one was invalidated by a camera stop.
var ErrNoFrame = errors.New("no frame captured")

// Handle is a captured camera frame with metadata.
// The Mat is owned by whoever holds the handle and must be released with Close.
type Handle struct {
	Mat       gocv.Mat
	Seq       uint64
	Timestamp time.Time
}

// Close releases the frame data.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	return h.Mat.Close()
}

// Slot owns the latest camera frame. The camera stores into it, the poll loop
// refreshes it and the dispatcher borrows copies of it.
type Slot struct {
	mu        sync.Mutex
	cur       *Handle
	seq       uint64
	refreshes uint64
}

// NewSlot creates an empty Slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Store takes ownership of mat as the current frame and closes the previous
// one. It returns the sequence number assigned to the frame.
func (s *Slot) Store(mat gocv.Mat) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		s.cur.Close()
	}

	s.seq++
	s.cur = &Handle{Mat: mat, Seq: s.seq, Timestamp: time.Now()}
	return s.seq
}

// Refresh restamps the current frame so the next delivery carries it again
// as a new frame. It returns ErrNoFrame when no frame is present.
func (s *Slot) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil {
		return ErrNoFrame
	}

	s.cur.Timestamp = time.Now()
	s.refreshes++
	return nil
}

// Acquire returns a copy of the current frame.
// The caller is responsible for closing the returned handle.
func (s *Slot) Acquire() (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur == nil {
		return nil, ErrNoFrame
	}

	return &Handle{
		Mat:       s.cur.Mat.Clone(),
		Seq:       s.cur.Seq,
		Timestamp: s.cur.Timestamp,
	}, nil
}

// Invalidate drops the current frame. Called when the camera stops.
func (s *Slot) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		s.cur.Close()
		s.cur = nil
	}
}

// HasFrame reports whether a frame is present.
func (s *Slot) HasFrame() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Refreshes returns how many forced refreshes succeeded.
func (s *Slot) Refreshes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}
