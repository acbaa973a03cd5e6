package eventlog

import "errors"

var (
	ErrEmptyTopic     = errors.New("eventlog: empty topic")
	ErrNilConnections = errors.New("eventlog: nil redis connection source")
	ErrAppendFailed   = errors.New("eventlog: append failed")
	ErrReplayFailed   = errors.New("eventlog: replay failed")
	ErrPruneFailed    = errors.New("eventlog: prune failed")
	ErrScanFailed     = errors.New("eventlog: topic scan failed")
)
