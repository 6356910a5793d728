package frame

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/ayusman/headtrack/internal/lifecycle"
)

// Sink receives frames from the dispatcher. Deliver is never called
// concurrently by a single Dispatcher.
type Sink interface {
	Deliver(h *Handle) error
}

// Stats reports dispatcher counters.
type Stats struct {
	Notifications uint64
	Delivered     uint64
	Coalesced     uint64
	Failed        uint64

	// Slot state at the time of the call.
	Refreshes uint64
	HasFrame  bool
}

// Dispatcher is the single consumer that owns frame delivery into the sink.
// Both the camera read loop and the poll loop call Notify; only the
// dispatcher goroutine calls Sink.Deliver.
//
// Notifications coalesce: if the sink is busy, later notifications collapse
// into one and the newest frame in the slot is delivered.
type Dispatcher struct {
	slot *Slot
	sink Sink

	mu       sync.Mutex
	cond     *sync.Cond
	pending  bool
	running  bool
	stopping bool
	wg       sync.WaitGroup

	notifications atomic.Uint64
	delivered     atomic.Uint64
	coalesced     atomic.Uint64
	failed        atomic.Uint64
}

// NewDispatcher creates a Dispatcher delivering frames from slot into sink.
func NewDispatcher(slot *Slot, sink Sink) *Dispatcher {
	d := &Dispatcher{
		slot: slot,
		sink: sink,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start launches the delivery goroutine. Calling Start on a running
// dispatcher does nothing.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}

	d.running = true
	d.stopping = false
	d.wg.Add(1)
	go d.loop()
}

// Stop halts the delivery goroutine and waits for an in-flight delivery to
// complete. A pending notification is kept for the next Start.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.stopping = true
	d.cond.Broadcast()
	d.mu.Unlock()

	d.wg.Wait()

	d.mu.Lock()
	d.running = false
	d.stopping = false
	d.mu.Unlock()
}

// SetSink replaces the sink. It takes effect from the next delivery.
func (d *Dispatcher) SetSink(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

// Running reports whether the delivery goroutine is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running && !d.stopping
}

// Notify signals that a frame is available. It never blocks.
func (d *Dispatcher) Notify() {
	d.notifications.Add(1)

	d.mu.Lock()
	if d.pending {
		d.coalesced.Add(1)
	}
	d.pending = true
	d.cond.Signal()
	d.mu.Unlock()
}

// OnStateChange starts the dispatcher when the owner resumes and stops it on
// pause or destroy.
func (d *Dispatcher) OnStateChange(state lifecycle.State) {
	switch state {
	case lifecycle.Resumed:
		d.Start()
	case lifecycle.Paused, lifecycle.Destroyed:
		d.Stop()
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Notifications: d.notifications.Load(),
		Delivered:     d.delivered.Load(),
		Coalesced:     d.coalesced.Load(),
		Failed:        d.failed.Load(),
		Refreshes:     d.slot.Refreshes(),
		HasFrame:      d.slot.HasFrame(),
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		for !d.pending && !d.stopping {
			d.cond.Wait()
		}
		if d.stopping {
			d.mu.Unlock()
			return
		}
		d.pending = false
		sink := d.sink
		d.mu.Unlock()

		if sink != nil {
			d.deliver(sink)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink) {
	h, err := d.slot.Acquire()
	if err != nil {
		// Camera stopped between notify and delivery.
		return
	}
	defer h.Close()

	if err := sink.Deliver(h); err != nil {
		d.failed.Add(1)
		log.Printf("Frame %d delivery failed: %v", h.Seq, err)
		return
	}
	d.delivered.Add(1)
}
