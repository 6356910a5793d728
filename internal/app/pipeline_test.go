package app

import (
	"errors"
	"testing"

	"github.com/ayusman/headtrack/internal/frame"
	"github.com/ayusman/headtrack/internal/pose"
)

type fakeFrames struct {
	err   error
	calls int
}

func (f *fakeFrames) Refresh() error {
	f.calls++
	return f.err
}

type fakeNotifier struct {
	calls int
}

func (f *fakeNotifier) Notify() { f.calls++ }

type fakePose struct {
	sample pose.Sample
	ok     bool
}

func (f *fakePose) Pose() (pose.Sample, bool) { return f.sample, f.ok }

func TestRefreshStrategy_NoFrameSkipsCycle(t *testing.T) {
	frames := &fakeFrames{err: frame.ErrNoFrame}
	notifier := &fakeNotifier{}
	var published int

	s := &refreshStrategy{
		frames:   frames,
		notifier: notifier,
		source:   &fakePose{ok: true},
		publish:  func(pose.Sample) { published++ },
	}

	s.Poll()
	s.Poll()

	if notifier.calls != 0 {
		t.Errorf("Notify called %d times without a frame, want 0", notifier.calls)
	}
	if published != 0 {
		t.Errorf("published %d samples without a frame, want 0", published)
	}
	if s.skipped.Load() != 2 {
		t.Errorf("skipped = %d, want 2", s.skipped.Load())
	}
}

func TestRefreshStrategy_RealSlotWithoutFrame(t *testing.T) {
	// A poll before the camera delivered anything must be a quiet no-op.
	notifier := &fakeNotifier{}
	s := &refreshStrategy{
		frames:   frame.NewSlot(),
		notifier: notifier,
		source:   &fakePose{},
		publish:  func(pose.Sample) { t.Error("unexpected publish") },
	}

	s.Poll()

	if notifier.calls != 0 {
		t.Error("Notify should not be called without a frame")
	}
}

func TestRefreshStrategy_PublishesPose(t *testing.T) {
	frames := &fakeFrames{}
	notifier := &fakeNotifier{}
	var got []pose.Sample

	s := &refreshStrategy{
		frames:   frames,
		notifier: notifier,
		source:   &fakePose{sample: pose.Sample{Turn: 10, Tilt: -5, Nod: 2}, ok: true},
		publish:  func(p pose.Sample) { got = append(got, p) },
		verbose:  true,
	}

	s.Poll()

	if frames.calls != 1 || notifier.calls != 1 {
		t.Errorf("refresh/notify calls = %d/%d, want 1/1", frames.calls, notifier.calls)
	}
	if len(got) != 1 || got[0].Turn != 10 || got[0].Tilt != -5 || got[0].Nod != 2 {
		t.Errorf("published = %+v", got)
	}
}

func TestRefreshStrategy_NoPoseYet(t *testing.T) {
	notifier := &fakeNotifier{}
	s := &refreshStrategy{
		frames:   &fakeFrames{},
		notifier: notifier,
		source:   &fakePose{ok: false},
		publish:  func(pose.Sample) { t.Error("unexpected publish before first pose") },
	}

	s.Poll()

	if notifier.calls != 1 {
		t.Error("frame should still be delivered while no pose is available")
	}
}

func TestRefreshStrategy_RefreshError(t *testing.T) {
	notifier := &fakeNotifier{}
	s := &refreshStrategy{
		frames:   &fakeFrames{err: errors.New("surface lost")},
		notifier: notifier,
		source:   &fakePose{ok: true},
		publish:  func(pose.Sample) { t.Error("unexpected publish") },
	}

	s.Poll()

	if notifier.calls != 0 {
		t.Error("Notify should not be called after a refresh failure")
	}
	if s.skipped.Load() != 0 {
		t.Error("only missing frames count as skipped")
	}
}
