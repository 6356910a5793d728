package app

import (
	"sync"

	"github.com/ayusman/headtrack/internal/pose"
	"github.com/ayusman/headtrack/internal/store"
)

const defaultRecorderBatch = 30

// sampleStore is the part of the recording repository the recorder needs.
type sampleStore interface {
	StartSession(graph string, cameraFront bool) (*store.Session, error)
	EndSession(id string) error
	AddSamples(sessionID string, samples []store.PoseSample) error
}

// recorder batches published samples into the store, one session per
// resume cycle.
type recorder struct {
	repo  sampleStore
	batch int

	mu      sync.Mutex
	session string
	pending []store.PoseSample
}

func newRecorder(repo sampleStore, batch int) *recorder {
	if batch <= 0 {
		batch = defaultRecorderBatch
	}
	return &recorder{repo: repo, batch: batch}
}

func (r *recorder) start(graph string, cameraFront bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.repo.StartSession(graph, cameraFront)
	if err != nil {
		return err
	}
	r.session = sess.ID
	r.pending = r.pending[:0]
	return nil
}

func (r *recorder) add(s pose.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == "" {
		return nil
	}

	r.pending = append(r.pending, store.PoseSample{
		Seq:         s.Seq,
		Turn:        s.Turn,
		Tilt:        s.Tilt,
		Nod:         s.Nod,
		TimestampMs: s.Timestamp.UnixMilli(),
	})
	if len(r.pending) < r.batch {
		return nil
	}
	return r.flushLocked()
}

func (r *recorder) stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == "" {
		return nil
	}
	if err := r.flushLocked(); err != nil {
		return err
	}
	err := r.repo.EndSession(r.session)
	r.session = ""
	return err
}

// sessionID returns the active session, or "".
func (r *recorder) sessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *recorder) flushLocked() error {
	if len(r.pending) == 0 {
		return nil
	}
	err := r.repo.AddSamples(r.session, r.pending)
	r.pending = r.pending[:0]
	return err
}
