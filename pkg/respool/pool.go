package respool

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pool is a fixed-size pool of reusable resources.
//
// All resources are created up front. Acquire never allocates: when nothing is
// idle the caller waits in a FIFO queue until a resource is released. Released
// resources go straight to the oldest waiter, or to a background recycler that
// validates them (replacing broken ones) before they become idle again.
type Pool[R any] struct {
	factory   Factory[R]
	destroyer Destroyer[R]

	name            string
	size            int
	validateTimeout time.Duration
	retryInterval   time.Duration
	logger          *slog.Logger

	mu         sync.Mutex
	idle       []R
	waiters    list.List // of *waiter[R]
	inUse      int
	validating int
	closed     bool

	recycle chan R
	done    chan struct{}
	wg      sync.WaitGroup

	created      atomic.Int64
	replaced     atomic.Int64
	waitCount    atomic.Int64
	waitDuration atomic.Int64
}

type waiter[R any] struct {
	ch     chan R
	elem   *list.Element
	served bool
}

// Stats is a point-in-time snapshot of pool state and lifetime counters.
type Stats struct {
	Size         int           // Configured ceiling
	Idle         int           // Resources ready to hand out
	InUse        int           // Resources checked out by callers
	Validating   int           // Resources held by the recycler
	Waiting      int           // Callers blocked in Acquire
	Created      int64         // Resources built by the factory, warm-up included
	Replaced     int64         // Resources discarded after failed validation
	WaitCount    int64         // Acquire calls that had to wait
	WaitDuration time.Duration // Total time spent waiting
}

// New creates a pool and fills it to its size. Any factory error aborts
// construction and is returned wrapped in ErrWarmupFailed.
func New[R any](ctx context.Context, factory Factory[R], opts ...Option) (*Pool[R], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}

	o := &options{
		size:            DefaultSize,
		validateTimeout: DefaultValidateTimeout,
		retryInterval:   DefaultRetryInterval,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.size <= 0 {
		return nil, ErrInvalidSize
	}

	p := &Pool[R]{
		factory:         factory,
		name:            o.name,
		size:            o.size,
		validateTimeout: o.validateTimeout,
		retryInterval:   o.retryInterval,
		logger:          o.logger,
		idle:            make([]R, 0, o.size),
		recycle:         make(chan R, o.size),
		done:            make(chan struct{}),
	}
	if d, ok := factory.(Destroyer[R]); ok {
		p.destroyer = d
	}

	for i := 0; i < p.size; i++ {
		r, err := factory.Make(ctx)
		if err != nil {
			for _, built := range p.idle {
				p.destroy(built)
			}
			return nil, fmt.Errorf("%w: resource %d of %d: %w", ErrWarmupFailed, i+1, p.size, err)
		}
		p.created.Add(1)
		p.idle = append(p.idle, r)
	}

	p.wg.Add(1)
	go p.recycler()

	p.logger.InfoContext(ctx, "resource pool ready",
		slog.String("pool", p.name),
		slog.Int("size", p.size))

	return p, nil
}

// NewFromConfig creates a pool from configuration. Options override config values.
func NewFromConfig[R any](ctx context.Context, cfg Config, factory Factory[R], opts ...Option) (*Pool[R], error) {
	allOpts := append([]Option{
		WithSize(cfg.Size),
		WithValidateTimeout(cfg.ValidateTimeout),
		WithRetryInterval(cfg.RetryInterval),
	}, opts...)
	return New(ctx, factory, allOpts...)
}

// Acquire checks out a resource, waiting for one to be released if none is idle.
// It fails only when ctx ends or the pool is closed. The returned handle must be
// released, usually with defer h.Release().
func (p *Pool[R]) Acquire(ctx context.Context) (*Handle[R], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.idle) > 0 {
		r := p.idle[0]
		var zero R
		p.idle[0] = zero
		p.idle = p.idle[1:]
		p.inUse++
		p.mu.Unlock()
		return p.newHandle(r), nil
	}

	w := &waiter[R]{ch: make(chan R, 1)}
	w.elem = p.waiters.PushBack(w)
	p.mu.Unlock()

	p.waitCount.Add(1)
	start := time.Now()
	defer func() { p.waitDuration.Add(int64(time.Since(start))) }()

	select {
	case r, ok := <-w.ch:
		if !ok {
			return nil, ErrPoolClosed
		}
		return p.newHandle(r), nil
	case <-ctx.Done():
		p.mu.Lock()
		if !w.served {
			p.waiters.Remove(w.elem)
			p.mu.Unlock()
			return nil, ctx.Err()
		}
		p.mu.Unlock()
		// Handed a resource while giving up: give it back.
		if r, ok := <-w.ch; ok {
			p.release(r)
		}
		return nil, ctx.Err()
	}
}

// With acquires a resource, runs fn with it and releases it when fn returns.
func (p *Pool[R]) With(ctx context.Context, fn func(context.Context, R) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(ctx, h.Value())
}

// Name returns the label set with WithName.
func (p *Pool[R]) Name() string {
	return p.name
}

// Stats returns a snapshot of the pool state.
func (p *Pool[R]) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Size:       p.size,
		Idle:       len(p.idle),
		InUse:      p.inUse,
		Validating: p.validating,
		Waiting:    p.waiters.Len(),
	}
	p.mu.Unlock()

	s.Created = p.created.Load()
	s.Replaced = p.replaced.Load()
	s.WaitCount = p.waitCount.Load()
	s.WaitDuration = time.Duration(p.waitDuration.Load())
	return s
}

// Close tears the pool down. Waiters get ErrPoolClosed, idle resources are
// destroyed, and resources still checked out are destroyed when released.
func (p *Pool[R]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter[R])
		w.served = true
		close(w.ch)
	}
	p.waiters.Init()
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()

	for {
		select {
		case r := <-p.recycle:
			p.mu.Lock()
			p.validating--
			p.mu.Unlock()
			p.destroy(r)
			continue
		default:
		}
		break
	}

	for _, r := range idle {
		p.destroy(r)
	}

	p.logger.Info("resource pool closed", slog.String("pool", p.name))
	return nil
}

func (p *Pool[R]) newHandle(r R) *Handle[R] {
	return &Handle[R]{pool: p, value: r}
}

// release returns a checked-out resource. The oldest waiter gets it directly;
// otherwise it goes to the recycler.
func (p *Pool[R]) release(r R) {
	p.mu.Lock()
	if p.closed {
		p.inUse--
		p.mu.Unlock()
		p.destroy(r)
		return
	}
	if w := p.popWaiter(); w != nil {
		w.ch <- r
		p.mu.Unlock()
		return
	}
	p.inUse--
	p.validating++
	// Capacity equals size and validating never exceeds size, so this never blocks.
	p.recycle <- r
	p.mu.Unlock()
}

// popWaiter removes and returns the oldest waiter. Caller holds p.mu.
func (p *Pool[R]) popWaiter() *waiter[R] {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	w := front.Value.(*waiter[R])
	p.waiters.Remove(front)
	w.served = true
	return w
}

func (p *Pool[R]) recycler() {
	defer p.wg.Done()
	for {
		select {
		case r := <-p.recycle:
			p.recycleOne(r)
		case <-p.done:
			return
		}
	}
}

func (p *Pool[R]) recycleOne(r R) {
	ctx, cancel := context.WithTimeout(context.Background(), p.validateTimeout)
	valid := p.factory.Validate(ctx, r)
	cancel()

	if !valid {
		p.logger.Warn("resource failed validation, replacing", slog.String("pool", p.name))
		p.destroy(r)

		fresh, ok := p.remake()
		if !ok {
			p.mu.Lock()
			p.validating--
			p.mu.Unlock()
			return
		}
		p.replaced.Add(1)
		r = fresh
	}

	p.mu.Lock()
	p.validating--
	if p.closed {
		p.mu.Unlock()
		p.destroy(r)
		return
	}
	if w := p.popWaiter(); w != nil {
		p.inUse++
		w.ch <- r
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, r)
	p.mu.Unlock()
}

// remake builds a replacement, retrying until it succeeds or the pool closes.
func (p *Pool[R]) remake() (R, bool) {
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), p.validateTimeout)
		r, err := p.factory.Make(ctx)
		cancel()
		if err == nil {
			p.created.Add(1)
			return r, true
		}

		p.logger.Error("failed to build replacement resource",
			slog.String("pool", p.name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		t := time.NewTimer(p.retryInterval)
		select {
		case <-t.C:
		case <-p.done:
			t.Stop()
			var zero R
			return zero, false
		}
	}
}

func (p *Pool[R]) destroy(r R) {
	if p.destroyer != nil {
		p.destroyer.Destroy(r)
	}
}

// Handle is a checked-out resource. It keeps a reference to its pool so that
// Release can route the resource back, or discard it if the pool was closed.
type Handle[R any] struct {
	pool     *Pool[R]
	value    R
	released atomic.Bool
}

// Value returns the underlying resource. It must not be used after Release.
func (h *Handle[R]) Value() R {
	return h.value
}

// Release returns the resource to the pool. Calling it more than once is a no-op.
func (h *Handle[R]) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.pool.release(h.value)
	}
}
