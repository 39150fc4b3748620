// Package event provides typed, synchronous publish/subscribe.
//
// Each kind of event gets its own Emitter, parameterized by the payload
// type, so listeners receive concrete values instead of untyped payloads:
//
//	var updates event.Emitter[Update]
//
//	sub := updates.Subscribe(func(u Update) {
//		fmt.Println("updated by", u.Command.Kind())
//	})
//	defer sub.Cancel()
//
//	updates.Emit(Update{Command: cmd})
//
// # Delivery
//
// Emit calls every active listener on the caller's goroutine, in priority
// order (lower values first) and then in subscription order. A listener may
// cancel its own or any other subscription while being called; a listener
// cancelled or paused during an Emit is skipped by the rest of it.
//
// # Subscription lifecycle
//
// A Subscription can be paused, resumed and cancelled. WithOnce cancels the
// subscription after its first delivery and WithFilter skips payloads the
// predicate rejects.
package event
