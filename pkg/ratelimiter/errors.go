package ratelimiter

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid rate limiter configuration")
	ErrInvalidTokenCount = errors.New("invalid token count")
	ErrAlreadyStarted    = errors.New("rate limiter cleanup already started")
	ErrNotStarted        = errors.New("rate limiter cleanup not started")
)
