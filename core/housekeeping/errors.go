package housekeeping

import "errors"

var (
	ErrNilDependency  = errors.New("housekeeping: hub and log are required")
	ErrAlreadyStarted = errors.New("housekeeping: already started")
	ErrNotStarted     = errors.New("housekeeping: not started")
)
