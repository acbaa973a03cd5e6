// Package broadcast provides in-process, per-topic fan-out with explicit lag
// signalling.
//
// Channel is a bounded multi-subscriber channel: a ring buffer of recent values
// shared by all subscribers, each reading at its own pace. Senders never block.
// A subscriber that falls more than the buffer capacity behind receives a
// *LagError (errors.Is(err, ErrLagged)) on its next Recv, and then continues
// from the oldest value still buffered. Lag is a signal to resynchronize from
// durable storage, not a reason to drop the subscriber.
//
// Hub maps topics to channels:
//
//	hub := broadcast.NewHub[event.Event](broadcast.WithCapacity(256))
//	defer hub.Close()
//
//	sub, err := hub.Subscribe("channel:42")
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
//	for {
//		ev, err := sub.Recv(ctx)
//		switch {
//		case errors.Is(err, broadcast.ErrLagged):
//			// resync, then keep receiving
//			continue
//		case err != nil:
//			return err
//		}
//		deliver(ev)
//	}
//
// Topics are not removed when their last subscriber leaves; call PruneIdle
// periodically. ErrClosed is only observed after the hub or channel is closed.
package broadcast
