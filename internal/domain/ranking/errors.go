package ranking

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrInvalidMonth  = errors.New("invalid month")
	ErrNoChannel     = errors.New("no leaderboard channel configured")
	ErrEmptyStanding = errors.New("nothing to chart")
)
