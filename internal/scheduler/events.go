package scheduler

import (
	"sync"
	"time"

	"server/internal/domain"
)

// TaskEvent describes one task status transition, published as it happens.
type TaskEvent struct {
	JobID     string            `json:"job_id"`
	TaskID    string            `json:"task_id"`
	SceneID   string            `json:"scene_id"`
	From      domain.TaskStatus `json:"from"`
	To        domain.TaskStatus `json:"to"`
	ErrorKind domain.ErrorKind  `json:"error_kind,omitempty"`
	At        time.Time         `json:"at"`
}

const subscriberBuffer = 32

// Broker fans task events out to subscribers. Publishing never blocks: a
// subscriber that stops draining its channel loses events rather than
// stalling the scheduler.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan TaskEvent
	nextID int
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan TaskEvent)}
}

// Subscribe returns an event channel and a cancel function that must be
// called to release the subscription.
func (b *Broker) Subscribe() (<-chan TaskEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan TaskEvent, subscriberBuffer)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with room in its buffer.
func (b *Broker) Publish(ev TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
