// Package eventlog is the durable, time-ordered event buffer behind stream replay.
//
// Each topic owns one ordered collection of encoded event bodies scored by the
// millisecond timestamp assigned at append time. Readers replay everything
// strictly after a watermark; a retention loop prunes entries older than a
// bound.
//
// Two stores implement Log:
//
//   - RedisStore keeps a sorted set per topic, keyed "<namespace>:<topic>:events".
//     It borrows a client from a Connections source (usually a respool.Pool)
//     for each call and refreshes the key TTL on every append.
//   - MemoryStore keeps everything in process memory. It is meant for tests and
//     single-node development.
//
// Usage:
//
//	store, err := eventlog.NewRedisStoreFromConfig(cfg, redisPool,
//		eventlog.WithLogger(log))
//	if err != nil {
//		return err
//	}
//
//	e, err := store.Append(ctx, "channel-42", body)
//
//	for entry, err := range store.Replay(ctx, "channel-42", lastSeen) {
//		if err != nil {
//			return err
//		}
//		send(entry)
//	}
//
// A client that subscribes to the live feed first and then replays from its
// last seen timestamp misses nothing, but may see an event on both paths.
// Consumers deduplicate by event ID.
package eventlog
