package server

import "errors"

var (
	ErrMissingAddress       = errors.New("server address is required")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrListen               = errors.New("server listen error")
	ErrShutdown             = errors.New("server shutdown error")
	ErrTLSConfig            = errors.New("failed to load tls key pair")
)
