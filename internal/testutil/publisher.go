package testutil

import (
	"context"
	"sync"

	"minix/internal/drive"
)

// RecordingPublisher keeps every published event in order.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []drive.ChangeEvent
}

var _ drive.Publisher = (*RecordingPublisher)(nil)

// NewRecordingPublisher returns an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(ctx context.Context, ev drive.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (p *RecordingPublisher) Events() []drive.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]drive.ChangeEvent(nil), p.events...)
}

// Reset drops the recorded events.
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
