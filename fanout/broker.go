package fanout

import (
	"sync"

	"board-api/domain"
)

const subscriberBuffer = 16

// Broker owns the set of live subscriber channels for this process. Pushes
// never block: a subscriber whose buffer is full is treated as gone and
// removed, which ends its stream and lets the client reconnect.
type Broker struct {
	mu   sync.Mutex
	subs map[chan domain.ChangeEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan domain.ChangeEvent]struct{})}
}

// Subscribe registers a new subscriber channel. The caller must Unsubscribe
// when its connection ends.
func (b *Broker) Subscribe() chan domain.ChangeEvent {
	ch := make(chan domain.ChangeEvent, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes the channel. Safe to call after Broadcast
// already dropped the subscriber.
func (b *Broker) Unsubscribe(ch chan domain.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Broadcast delivers the event to every subscriber without waiting on any of
// them.
func (b *Broker) Broadcast(ev domain.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Count reports the live subscriber count.
func (b *Broker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
