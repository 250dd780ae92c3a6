package app

import (
	"context"
	"sync"

	"quiz-arena-service/internal/domain"
)

// Notifier receives room events after they are committed. Delivery is best-effort.
type Notifier interface {
	Publish(ctx context.Context, evt domain.Event)
}

// Broadcaster fans events out to the in-process subscribers of each room.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Event]struct{}
	buffer      int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]map[chan domain.Event]struct{}),
		buffer:      16,
	}
}

// Subscribe returns a channel of events for roomID.
// The caller must invoke the returned cancel function to avoid leaks.
func (b *Broadcaster) Subscribe(roomID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, b.buffer)

	b.mu.Lock()
	subs, ok := b.subscribers[roomID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		b.subscribers[roomID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs, ok := b.subscribers[roomID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(b.subscribers, roomID)
		}
	}
	return ch, cancel
}

// Publish delivers evt to every subscriber of its room without blocking.
// A subscriber that is behind loses its oldest pending event.
func (b *Broadcaster) Publish(_ context.Context, evt domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[evt.RoomID] {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// Subscribers returns the number of live subscriptions for roomID.
func (b *Broadcaster) Subscribers(roomID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[roomID])
}
