// Package respool provides a fixed-size pool of reusable resources such as
// database connections or cache clients.
//
// A pool is filled eagerly by its Factory and never grows. When every resource
// is checked out, Acquire queues the caller (FIFO) instead of allocating or
// failing. Releasing a resource hands it directly to the oldest waiter; with
// nobody waiting it goes to a background recycler that runs Factory.Validate
// and replaces broken resources before they become idle again. Validation and
// replacement failures are logged and never reach callers.
//
//	pool, err := respool.New(ctx, pg.NewFactory(cfg), respool.WithSize(10), respool.WithName("pg"))
//	if err != nil {
//		return err // warm-up failure is fatal
//	}
//	defer pool.Close()
//
//	h, err := pool.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer h.Release()
//	conn := h.Value()
//
// Pool.With wraps the acquire/release pair around a callback.
package respool
