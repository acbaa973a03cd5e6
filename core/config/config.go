package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrNilConfig is returned when Load receives a nil pointer.
var ErrNilConfig = errors.New("config: nil config pointer")

var (
	loadEnvOnce sync.Once
	cacheMu     sync.Mutex
	cache       = make(map[reflect.Type]any)
)

// Load populates cfg from environment variables. The first call loads a .env file
// from the working directory if present. Each type is parsed once; later calls
// copy the cached value.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return ErrNilConfig
	}

	loadEnvOnce.Do(func() {
		// A missing .env file is normal outside local development.
		_ = godotenv.Load()
	})

	typ := reflect.TypeOf(cfg).Elem()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[typ]; ok {
		*cfg = cached.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", typ, err)
	}
	cache[typ] = *cfg
	return nil
}

// MustLoad is Load that panics on error. Use it during startup.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// Reset drops every cached value. Intended for tests.
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[reflect.Type]any)
}
