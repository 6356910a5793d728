package frame

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayusman/headtrack/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// recordingSink records delivered sequence numbers and detects concurrent entry.
type recordingSink struct {
	mu      sync.Mutex
	seqs    []uint64
	inside  atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
	err     error
}

func (s *recordingSink) Deliver(h *Handle) error {
	if s.inside.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inside.Add(-1)

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.seqs = append(s.seqs, h.Seq)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seqs)
}

func TestDispatcher_NotifyWithoutFrame(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(NewSlot(), sink)
	d.Start()
	defer d.Stop()

	d.Notify()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, sink.count())
	assert.Equal(t, uint64(1), d.Stats().Notifications)
}

func TestDispatcher_DeliversLatestFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	slot := NewSlot()
	defer slot.Invalidate()
	sink := &recordingSink{}
	d := NewDispatcher(slot, sink)
	d.Start()
	defer d.Stop()

	slot.Store(gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3))
	d.Notify()

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), d.Stats().Delivered)
	assert.True(t, d.Stats().HasFrame)

	require.NoError(t, slot.Refresh())
	assert.Equal(t, uint64(1), d.Stats().Refreshes)

	slot.Invalidate()
	assert.False(t, d.Stats().HasFrame)
}

func TestDispatcher_SerializesConcurrentNotify(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	slot := NewSlot()
	defer slot.Invalidate()
	sink := &recordingSink{delay: 2 * time.Millisecond}
	d := NewDispatcher(slot, sink)
	d.Start()

	slot.Store(gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3))

	// Camera path and poll path notifying from different goroutines.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.Notify()
				time.Sleep(100 * time.Microsecond)
			}
		}()
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)
	d.Stop()

	assert.False(t, sink.overlap.Load(), "sink entered concurrently")
	stats := d.Stats()
	assert.Equal(t, uint64(200), stats.Notifications)
	assert.Greater(t, stats.Coalesced, uint64(0), "slow sink should coalesce notifications")
	assert.Less(t, stats.Delivered, uint64(200))
}

func TestDispatcher_FailedDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	slot := NewSlot()
	defer slot.Invalidate()
	sink := &recordingSink{err: errors.New("engine gone")}
	d := NewDispatcher(slot, sink)
	d.Start()
	defer d.Stop()

	slot.Store(gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3))
	d.Notify()

	require.Eventually(t, func() bool { return d.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, d.Stats().Delivered)
}

func TestDispatcher_StartStopIdempotent(t *testing.T) {
	d := NewDispatcher(NewSlot(), &recordingSink{})

	d.Stop()
	d.Start()
	d.Start()
	assert.True(t, d.Running())
	d.Stop()
	d.Stop()
	assert.False(t, d.Running())
}

func TestDispatcher_FollowsLifecycle(t *testing.T) {
	shim := lifecycle.New()
	d := NewDispatcher(NewSlot(), &recordingSink{})
	shim.Observe(d)

	assert.False(t, d.Running())
	shim.AdvanceToResumed()
	assert.True(t, d.Running())
	shim.Pause()
	assert.False(t, d.Running())
	shim.AdvanceToResumed()
	assert.True(t, d.Running())
	shim.Destroy()
	assert.False(t, d.Running())
}
