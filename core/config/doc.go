// Package config provides type-safe environment variable loading with caching
// using Go generics. Each configuration type is loaded once and cached for
// subsequent calls.
//
// The package loads a .env file on first use and uses the caarlos0/env library
// for parsing environment variables into struct fields.
//
//	var cfg relay.Config
//	config.MustLoad(&cfg)
package config
