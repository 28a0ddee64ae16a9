package reporter

import (
	"sync"
	"time"
)

// Bus is a channel-based pub-sub event bus: non-blocking publish (a full
// subscriber channel drops the event rather than stalling the dispatcher),
// adapted from the teacher's events.EventBus.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a read-only channel receiving every event published to
// the bus. bufSize <= 0 defaults to 256, matching the teacher's default.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes every subscriber channel. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
}

// Reporter is the default Bus-backed implementation of the narrow
// reporter-shaped interfaces runner.Reporter, runner.Metrics-adjacent
// consumers, and grid.StatusReporter all structurally satisfy.
type Reporter struct {
	bus *Bus
	now func() time.Time
}

func NewReporter(bus *Bus) *Reporter {
	return &Reporter{bus: bus, now: time.Now}
}

func (r *Reporter) Started() {
	r.bus.publish(Event{Type: EventStarted, Timestamp: r.now()})
}

func (r *Reporter) Finished(completed, failed, skipped []int) {
	r.bus.publish(Event{
		Type:           EventFinished,
		Timestamp:      r.now(),
		CompletedTasks: completed,
		FailedTasks:    failed,
		SkippedTasks:   skipped,
	})
}

func (r *Reporter) TaskStarted(taskNo int, name string) {
	r.bus.publish(Event{Type: EventTaskStarted, TaskNo: taskNo, TaskName: name, Timestamp: r.now()})
}

func (r *Reporter) TaskCompleted(taskNo int, name string) {
	r.bus.publish(Event{Type: EventTaskCompleted, TaskNo: taskNo, TaskName: name, Timestamp: r.now()})
}

func (r *Reporter) TaskFailed(taskNo int, name string, err error) {
	r.bus.publish(Event{Type: EventTaskFailed, TaskNo: taskNo, TaskName: name, Err: err, Timestamp: r.now()})
}

func (r *Reporter) TaskSkipped(taskNo int, name string) {
	r.bus.publish(Event{Type: EventTaskSkipped, TaskNo: taskNo, TaskName: name, Timestamp: r.now()})
}

func (r *Reporter) TaskGridStatus(taskNo int, name string, state string) {
	r.bus.publish(Event{Type: EventTaskGridStatus, TaskNo: taskNo, TaskName: name, Detail: state, Timestamp: r.now()})
}

func (r *Reporter) TaskGridStatusPolling(taskNo int, name string) {
	r.bus.publish(Event{Type: EventTaskGridStatusPolling, TaskNo: taskNo, TaskName: name, Timestamp: r.now()})
}
