package archive

import "errors"

// Sentinel kinds for archive errors.
var (
	ErrClosed       = errors.New("archive is closed")
	ErrExportFailed = errors.New("month export failed")
)
