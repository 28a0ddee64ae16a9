package reporter

import "testing"

func TestBusSubscribeReceivesPublishedEvents(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(4)
	r := NewReporter(bus)

	r.TaskStarted(1, "t1")

	evt := <-ch
	if evt.Type != EventTaskStarted || evt.TaskNo != 1 || evt.TaskName != "t1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestBusDropsOnFullSubscriberChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)
	r := NewReporter(bus)

	r.TaskStarted(1, "t1") // fills the buffer
	r.TaskStarted(2, "t2") // should be dropped, not block

	evt := <-ch
	if evt.TaskNo != 1 {
		t.Fatalf("expected the first event to survive, got %+v", evt)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected no second event once the buffer was full, got %+v", extra)
	default:
	}
}

func TestBusFanOutToMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)
	r := NewReporter(bus)

	r.Started()

	if (<-a).Type != EventStarted {
		t.Fatal("expected subscriber a to receive the started event")
	}
	if (<-b).Type != EventStarted {
		t.Fatal("expected subscriber b to receive the started event")
	}
}

func TestBusCloseClosesSubscriberChannels(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(4)
	bus.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected the subscriber channel to be closed")
	}
}

func TestBusSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	bus := NewBus()
	bus.Close()
	ch := bus.Subscribe(4)

	if _, ok := <-ch; ok {
		t.Fatal("expected a post-close subscription to receive an already-closed channel")
	}
}

func TestBusCloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(1)
	bus.Close()
	bus.Close() // must not panic on double-close
}

func TestReporterTaskFailedCarriesError(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(4)
	r := NewReporter(bus)

	wantErr := errTest{"boom"}
	r.TaskFailed(3, "t3", wantErr)

	evt := <-ch
	if evt.Err == nil || evt.Err.Error() != "boom" {
		t.Fatalf("expected the event to carry the failure error, got %+v", evt)
	}
}

func TestReporterFinishedCarriesTallies(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(4)
	r := NewReporter(bus)

	r.Finished([]int{1, 2}, []int{3}, []int{4})

	evt := <-ch
	if len(evt.CompletedTasks) != 2 || len(evt.FailedTasks) != 1 || len(evt.SkippedTasks) != 1 {
		t.Fatalf("unexpected tallies: %+v", evt)
	}
}

type errTest struct{ msg string }

func (e errTest) Error() string { return e.msg }
