package event

import "errors"

var (
	ErrNilBody       = errors.New("event: nil body")
	ErrUnknownType   = errors.New("event: unknown event type")
	ErrEncodeFailed  = errors.New("event: encode failed")
	ErrDecodeFailed  = errors.New("event: decode failed")
	ErrPersistFailed = errors.New("event: persist failed")
	ErrEmptyTopic    = errors.New("event: empty topic")
)
