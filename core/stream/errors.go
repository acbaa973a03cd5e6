package stream

import "errors"

// Authorization outcomes. Authorizer implementations return these (possibly
// wrapped) so the handler can answer with the matching status before upgrading.
var (
	ErrUnauthorized  = errors.New("stream: unauthorized")
	ErrForbidden     = errors.New("stream: forbidden")
	ErrTopicNotFound = errors.New("stream: topic not found")
)

var (
	ErrMissingTopic   = errors.New("stream: missing topic")
	ErrInvalidSince   = errors.New("stream: invalid since watermark")
	ErrIdleTimeout    = errors.New("stream: idle timeout")
	ErrSessionClosed  = errors.New("stream: session closed")
	ErrUnknownMessage = errors.New("stream: unknown client message")
	ErrRateLimited    = errors.New("stream: too many stream requests")
	ErrReplayFailed   = errors.New("stream: replay from event log failed")
)
