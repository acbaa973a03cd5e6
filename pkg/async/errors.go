package async

import "errors"

// ErrTrackerClosed resolves futures returned by Tracker.Go after Close.
var ErrTrackerClosed = errors.New("async: tracker closed")
