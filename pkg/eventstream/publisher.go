package eventstream

import "context"

// Publisher publishes record events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *RecordEvent) error
	Close() error
}

// Handler applies one record event.
type Handler func(ctx context.Context, event *RecordEvent) error

// Subscriber delivers record events from an event stream backend to a
// Handler until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, handle Handler) error
	Close() error
}
