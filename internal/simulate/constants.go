package simulate

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	// ExpiryMargin is added to the longest window before checking that
	// every status has expired.
	ExpiryMargin = time.Minute
)

// Member IDs are fixed-width numbers so lexical and numeric order agree.
const memberIDBase = 100000000000000000
