package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Broker fans task events out to per-task subscribers. Slow subscribers lose
// events rather than blocking the publisher.
type Broker struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[chan TaskEvent]struct{}
	buffer int
}

// Ensure Broker implements EventHandler
var _ EventHandler = (*Broker)(nil)

// NewBroker creates a broker whose subscriber channels hold buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{subs: make(map[uuid.UUID]map[chan TaskEvent]struct{}), buffer: buffer}
}

// Subscribe returns a channel of events for taskID and a function that ends
// the subscription and closes the channel.
func (b *Broker) Subscribe(taskID uuid.UUID) (<-chan TaskEvent, func()) {
	ch := make(chan TaskEvent, b.buffer)

	b.mu.Lock()
	if b.subs[taskID] == nil {
		b.subs[taskID] = make(map[chan TaskEvent]struct{})
	}
	b.subs[taskID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[taskID], ch)
			if len(b.subs[taskID]) == 0 {
				delete(b.subs, taskID)
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of open subscriptions for taskID.
func (b *Broker) Subscribers(taskID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[taskID])
}

// HandleEvent delivers event to the task's subscribers.
func (b *Broker) HandleEvent(ctx context.Context, event *TaskEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[event.TaskID] {
		select {
		case ch <- *event:
		default:
		}
	}
	return nil
}
