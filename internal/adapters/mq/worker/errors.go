package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrTaskPanic       = errors.New("task panicked")
	ErrShutdownTimeout = errors.New("worker shutdown timed out")
)
