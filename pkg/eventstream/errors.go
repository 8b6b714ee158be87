package eventstream

import "errors"

var (
	// ErrNilRecordEvent indicates a nil record event was provided.
	ErrNilRecordEvent = errors.New("nil record event")

	// ErrInvalidRecordEvent indicates a record event missing required fields.
	ErrInvalidRecordEvent = errors.New("invalid record event")
)
