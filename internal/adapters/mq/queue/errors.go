package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("task queue closed")
	ErrFull   = errors.New("task queue full")
)
