// Package pose defines the head-pose engine interface, its MediaPipe
// implementation and the published pose snapshot.
package pose

import (
	"sync/atomic"
	"time"
)

// Sample is one head-pose reading: turn (yaw), tilt (roll) and nod (pitch),
// in degrees as reported by the engine.
type Sample struct {
	Turn      float64   `json:"turn"`
	Tilt      float64   `json:"tilt"`
	Nod       float64   `json:"nod"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// Angles returns the three angles in fixed order [turn, tilt, nod].
func (s Sample) Angles() [3]float64 {
	return [3]float64{s.Turn, s.Tilt, s.Nod}
}

// Snapshot publishes the latest sample. Readers always see all three angles
// of a single sample.
type Snapshot struct {
	cur atomic.Pointer[Sample]
	seq atomic.Uint64
}

// Publish stores s as the latest sample, assigning it the next sequence
// number. It returns the stored sample.
func (p *Snapshot) Publish(s Sample) Sample {
	s.Seq = p.seq.Add(1)
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	p.cur.Store(&s)
	return s
}

// Latest returns the latest sample, or the zero Sample before the first
// publish.
func (p *Snapshot) Latest() Sample {
	if s := p.cur.Load(); s != nil {
		return *s
	}
	return Sample{}
}

// Published reports whether any sample has been published.
func (p *Snapshot) Published() bool {
	return p.cur.Load() != nil
}
