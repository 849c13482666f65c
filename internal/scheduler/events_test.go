package scheduler

import (
	"testing"
	"time"

	"server/internal/domain"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	ev := TaskEvent{JobID: "j1", TaskID: "t1", From: domain.TaskStatusQueued, To: domain.TaskStatusRunning}
	b.Publish(ev)

	for _, ch := range []<-chan TaskEvent{ch1, ch2} {
		select {
		case got := <-ch:
			if got.TaskID != "t1" || got.To != domain.TaskStatusRunning {
				t.Fatalf("event = %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()
	cancel()
	cancel() // idempotent

	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}
	// Publishing after cancel must not panic on the closed channel.
	b.Publish(TaskEvent{JobID: "j1"})
}

func TestBrokerPublishNeverBlocks(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(TaskEvent{TaskID: "t"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered = %d, want %d (overflow dropped)", len(ch), subscriberBuffer)
	}
}
