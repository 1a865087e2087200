package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for status store errors.
var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrNoActiveStatus  = errors.New("no active status")
	ErrMissingMember   = errors.New("missing member id")

	// ErrQuantityTooLarge is an ErrInvalidQuantity that would push a count
	// or a month total past model.MaxCount.
	ErrQuantityTooLarge = fmt.Errorf("%w: limit exceeded", ErrInvalidQuantity)
)
