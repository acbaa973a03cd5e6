// Package housekeeping keeps the broadcast hub and the durable event log from
// growing without bound.
//
// Two loops run side by side under an errgroup:
//
//   - every TopicSweepInterval (5m) topics with no live subscribers are
//     removed from the hub; a topic with a subscriber is never removed
//   - every LogPruneInterval (12h) each stored topic is pruned of entries
//     older than Retention (24h)
//
// Failures are logged and the loops keep going. Prune errors from several
// topics are combined with multierr.
//
//	hk, err := housekeeping.NewFromConfig(cfg, hub, store, housekeeping.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	g.Go(hk.Run(ctx))
package housekeeping
