package persistence

import "errors"

// Sentinel kinds for persistence errors.
var (
	ErrCorrupt = errors.New("data file is corrupt")
	ErrVersion = errors.New("unsupported data file version")
)
