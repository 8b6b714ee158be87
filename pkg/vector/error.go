package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrDriverNotRegistered is returned when a driver id has no registered driver.
	ErrDriverNotRegistered = errors.New("vector driver not registered")

	// ErrDriverNotImplemented is returned when a stub driver is invoked.
	ErrDriverNotImplemented = errors.New("vector driver not implemented")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")
)

// NotImplementedError reports the driver and operation that has no implementation.
type NotImplementedError struct {
	DriverID string
	Op       string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s: %s.%s", ErrDriverNotImplemented, e.DriverID, e.Op)
}

// Is matches ErrDriverNotImplemented.
func (e *NotImplementedError) Is(target error) bool {
	return target == ErrDriverNotImplemented
}
