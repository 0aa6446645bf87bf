package realtime

import (
	"context"
	"sync"

	"minix/internal/drive"
)

// Broker is an in-process feed. Events are fanned out to the subscribers of
// the event's owner.
type Broker struct {
	bufferSize int
	logger     drive.Logger

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

var _ drive.Feed = (*Broker)(nil)

// NewBroker creates a broker whose subscribers buffer up to bufferSize
// events.
func NewBroker(bufferSize int, logger drive.Logger) *Broker {
	if logger == nil {
		logger = drive.NewNopLogger()
	}
	return &Broker{
		bufferSize: bufferSize,
		logger:     logger,
		subs:       make(map[string]map[*subscription]struct{}),
	}
}

// Publish delivers ev to every current subscriber of ev.OwnerID.
func (b *Broker) Publish(ctx context.Context, ev drive.ChangeEvent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	targets := make([]*subscription, 0, len(b.subs[ev.OwnerID]))
	for s := range b.subs[ev.OwnerID] {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		if !s.q.offer(ev) {
			b.logger.Debug("subscriber behind, event dropped", "owner", ev.OwnerID, "id", ev.ID)
		}
	}
	return nil
}

// Subscribe registers a subscriber for ownerID. The subscription ends when
// it is closed, when ctx is cancelled, or when the broker is closed.
func (b *Broker) Subscribe(ctx context.Context, ownerID string) (drive.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := newSubscription(newQueue(ownerID, b.bufferSize))
	s.onClose = func() { b.remove(s) }
	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[*subscription]struct{})
	}
	b.subs[ownerID][s] = struct{}{}
	s.watch(ctx)
	return s, nil
}

func (b *Broker) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owner := s.q.ownerID
	delete(b.subs[owner], s)
	if len(b.subs[owner]) == 0 {
		delete(b.subs, owner)
	}
}

// Subscribers returns the number of live subscriptions for ownerID.
func (b *Broker) Subscribers(ownerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[ownerID])
}

// Close ends every subscription. Later publishes fail with ErrClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*subscription
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.subs = make(map[string]map[*subscription]struct{})
	b.mu.Unlock()

	for _, s := range all {
		s.q.close()
		s.stop()
	}
	return nil
}

// subscription is shared by every feed. onClose releases the feed's
// resources for it and runs once.
type subscription struct {
	q       *queue
	onClose func()

	once     sync.Once
	stopOnce sync.Once
	done     chan struct{}
}

func (s *subscription) Events() <-chan drive.ChangeEvent {
	return s.q.ch
}

func (s *subscription) Close() error {
	s.q.close()
	s.stop()
	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

func newSubscription(q *queue) *subscription {
	return &subscription{q: q, done: make(chan struct{})}
}

// watch closes s when ctx is cancelled.
func (s *subscription) watch(ctx context.Context) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
