package platform

import "errors"

// Sentinel kinds for platform errors.
var (
	ErrRefused  = errors.New("refused by platform")
	ErrNotFound = errors.New("not found on platform")
)
