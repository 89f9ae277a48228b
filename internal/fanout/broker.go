package fanout

import (
	"context"
	"sync"

	"github.com/natanaelribeiro272-glitch/meetlines-sub000/internal/apperrors"
)

// subscriptionBuffer bounds how far a session may fall behind before its
// subscription is dropped and it must resynchronize.
const subscriptionBuffer = 256

// Broker is the change-event transport. The in-process implementation serves
// a single node and tests; the redis implementation fans out across nodes.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, topics ...Topic) (*Subscription, error)
}

// Subscription is one logical event stream for a viewing session.
type Subscription struct {
	events  chan Event
	dropped chan struct{}

	dropOnce  sync.Once
	closeOnce sync.Once
	onClose   func()
}

// Events returns the ordered event stream. Closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped is closed when the broker gave up on this subscriber (slow consumer
// or transport failure). The session must then reseed from authoritative
// state rather than assume continuity.
func (s *Subscription) Dropped() <-chan struct{} {
	return s.dropped
}

// Close tears the subscription down. Idempotent.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

func (s *Subscription) drop() {
	s.dropOnce.Do(func() {
		close(s.dropped)
	})
}

type inProcSub struct {
	sub    *Subscription
	topics map[Topic]bool
}

// InProcBroker delivers events in process. Delivery order per subscriber
// matches publish order, which satisfies the per-entity ordering guarantee.
type InProcBroker struct {
	mu   sync.Mutex
	subs map[*Subscription]*inProcSub
}

func NewInProcBroker() *InProcBroker {
	return &InProcBroker{subs: make(map[*Subscription]*inProcSub)}
}

func (b *InProcBroker) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if !s.topics[ev.Topic] {
			continue
		}
		select {
		case s.sub.events <- ev:
		default:
			// Slow consumer: drop the subscription instead of blocking the
			// publisher. The session resyncs on Dropped.
			s.sub.drop()
			delete(b.subs, s.sub)
		}
	}
	return nil
}

func (b *InProcBroker) Subscribe(_ context.Context, topics ...Topic) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, apperrors.NewBadInput("subscription needs at least one topic")
	}
	set := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}

	sub := &Subscription{
		events:  make(chan Event, subscriptionBuffer),
		dropped: make(chan struct{}),
	}
	sub.onClose = func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		close(sub.events)
	}

	b.mu.Lock()
	b.subs[sub] = &inProcSub{sub: sub, topics: set}
	b.mu.Unlock()
	return sub, nil
}
