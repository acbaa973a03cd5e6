// Package event defines the events broadcast to stream clients and the
// publisher that stores and fans them out.
//
// Bodies form a closed set: MessageCreated, MessageEdited, MessageDeleted,
// MembersChanged, ChannelEdited, ChannelDeleted and Preview. Each is wrapped
// in an Envelope carrying a unique ID and its Type, and encoded as JSON.
// Preview is ephemeral: it is delivered live and never stored.
//
// Publisher.Publish is fire-and-forget. The event is appended to the durable
// log first and then fanned out through the hub, so a client that subscribes
// and replays while a publish is in flight sees the event on at least one of
// the two paths:
//
//	pub := event.NewPublisher(store, hub, event.WithLogger(log))
//	pub.Publish(channelID, event.MessageCreated{
//		ChannelID: channelID,
//		MessageID: msgID,
//		Content:   "hello",
//	})
//
// On shutdown call Close to wait for publishes still in flight.
package event
