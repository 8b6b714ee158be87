// Package nop provides eventstream implementations for tests and disabled mode.
package nop

import (
	"context"

	"github.com/papercomputeco/vecindex/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish validates input and otherwise does nothing.
func (p *Publisher) Publish(_ context.Context, event *eventstream.RecordEvent) error {
	return event.Validate()
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}

// Subscriber delivers nothing and blocks until its context is done.
type Subscriber struct{}

// NewSubscriber creates a new no-op subscriber.
func NewSubscriber() *Subscriber {
	return &Subscriber{}
}

// Subscribe returns when ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, _ eventstream.Handler) error {
	<-ctx.Done()
	return nil
}

// Close is a no-op.
func (s *Subscriber) Close() error {
	return nil
}

var (
	_ eventstream.Publisher  = (*Publisher)(nil)
	_ eventstream.Subscriber = (*Subscriber)(nil)
)
