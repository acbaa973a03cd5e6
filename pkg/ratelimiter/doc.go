// Package ratelimiter provides an in-memory keyed token bucket.
//
// Each key gets a bucket holding up to Capacity tokens. RefillRate tokens are
// added every RefillInterval. A request that finds too few tokens is denied
// and consumes nothing.
//
//	limiter, err := ratelimiter.New(ratelimiter.Config{
//		Capacity:       10,
//		RefillRate:     1,
//		RefillInterval: 6 * time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	g.Go(limiter.Run(ctx)) // drops idle buckets
//
//	if res := limiter.Allow(ctx, userID); !res.Allowed {
//		w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter(time.Now()).Seconds())+1))
//		w.WriteHeader(http.StatusTooManyRequests)
//		return
//	}
//
// The stream handler uses it to bound how often one user may open streams.
package ratelimiter
