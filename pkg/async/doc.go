// Package async runs work in background goroutines and waits for it.
//
// Exec starts a function and returns a Future. Await and IsComplete observe
// it; WaitAll waits for several and joins their errors.
//
//	futures := []*async.Future{
//		async.Exec(ctx, redisPool, closePool),
//		async.Exec(ctx, pgPool, closePool),
//	}
//	if err := async.WaitAll(ctx, futures...); err != nil {
//		return err
//	}
//
// Tracker is for fire-and-forget work that must outlive the request that
// started it but still finish before shutdown. Each function runs on a
// context detached from the caller's, optionally bounded by a timeout:
//
//	tr := async.NewTracker(5 * time.Second)
//	tr.Go(r.Context(), func(ctx context.Context) error {
//		return store.Append(ctx, topic, body)
//	})
//
//	// on shutdown
//	_ = tr.Close(shutdownCtx)
//
// Errors:
//
//   - ErrTrackerClosed: Go called after Close
package async
