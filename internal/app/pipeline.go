package app

import (
	"errors"
	"log"
	"sync/atomic"

	"github.com/ayusman/headtrack/internal/frame"
	"github.com/ayusman/headtrack/internal/pose"
)

// frameRefresher marks the current frame fresh.
type frameRefresher interface {
	Refresh() error
}

// frameNotifier hands the current frame to the delivery queue.
type frameNotifier interface {
	Notify()
}

// poseReader reads the engine's latest pose.
type poseReader interface {
	Pose() (pose.Sample, bool)
}

// refreshStrategy is the poll work run on every firing:
//
//  1. force-refresh the current camera frame; with no frame yet the cycle is skipped
//  2. queue it for re-delivery through the converter to every consumer
//  3. read the engine's pose
//  4. publish it
//
// Frames always go through the converter and the single dispatcher; nothing
// calls the engine directly from the timer.
type refreshStrategy struct {
	frames   frameRefresher
	notifier frameNotifier
	source   poseReader
	publish  func(pose.Sample)
	verbose  bool

	skipped atomic.Uint64
	polled  atomic.Uint64
}

func (s *refreshStrategy) Poll() {
	if err := s.frames.Refresh(); err != nil {
		if errors.Is(err, frame.ErrNoFrame) {
			s.skipped.Add(1)
			return
		}
		log.Printf("Frame refresh failed: %v", err)
		return
	}

	s.notifier.Notify()

	sample, ok := s.source.Pose()
	if !ok {
		return
	}

	s.polled.Add(1)
	s.publish(sample)

	if s.verbose {
		log.Printf("Pose turn=%.2f tilt=%.2f nod=%.2f", sample.Turn, sample.Tilt, sample.Nod)
	}
}
