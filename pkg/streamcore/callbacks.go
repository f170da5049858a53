package streamcore

import "context"

// runWithCallback drives a channel-producing opener on a background
// goroutine, invoking cb for every item and marking the returned handle
// ready once the channel has actually been opened (not merely once the
// goroutine has been scheduled). The handle's Join terminal value is the
// error open() returned, nil on a clean stream end or abort, so a
// construction failure inside the goroutine is distinguishable from normal
// completion.
func runWithCallback[T any](ctx context.Context, open func(context.Context) (<-chan T, error), cb func(T)) *StreamHandle[error] {
	ctx, cancel := context.WithCancel(ctx)
	handle := newStreamHandle[error](cancel)

	go func() {
		ch, err := open(ctx)
		handle.markReady()
		if err != nil {
			handle.finish(err)
			return
		}
		for {
			select {
			case <-ctx.Done():
				handle.finish(nil)
				return
			case item, ok := <-ch:
				if !ok {
					handle.finish(nil)
					return
				}
				cb(item)
			}
		}
	}()

	return handle
}

// StreamConversationsWithCallback is the callback-driven form of
// StreamConversations, for callers that prefer a sink over a channel (FFI
// bindings, most notably).
func StreamConversationsWithCallback(ctx context.Context, transport WelcomeTransport, processor *WelcomeProcessor, bus EventBus, filter *ConversationType, cb func(Result[Conversation])) *StreamHandle[error] {
	return runWithCallback(ctx, func(ctx context.Context) (<-chan Result[Conversation], error) {
		return StreamConversations(ctx, transport, processor, bus, filter)
	}, cb)
}

// StreamAllMessagesWithCallback is the callback-driven form of
// StreamAllMessages.
func StreamAllMessagesWithCallback(ctx context.Context, initialGroups []StoredGroup, transport WelcomeTransport, processor *WelcomeProcessor, bus EventBus, fanIn MessageFanIn, filter *ConversationType, cb func(Result[Message])) *StreamHandle[error] {
	return runWithCallback(ctx, func(ctx context.Context) (<-chan Result[Message], error) {
		return StreamAllMessages(ctx, initialGroups, transport, processor, bus, fanIn, filter)
	}, cb)
}

// StreamConsentWithCallback is the callback-driven form of the bus's
// consent filter view.
func StreamConsentWithCallback(ctx context.Context, bus EventBus, cb func([]StoredConsentRecord)) (*StreamHandle[error], error) {
	receiver, err := bus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	handle := runWithCallback(ctx, func(ctx context.Context) (<-chan []StoredConsentRecord, error) {
		return StreamConsentUpdates(ctx, receiver), nil
	}, cb)
	return handle, nil
}

// StreamPreferencesWithCallback is the callback-driven form of the bus's
// non-consent preference filter view.
func StreamPreferencesWithCallback(ctx context.Context, bus EventBus, cb func([]UserPreferenceUpdate)) (*StreamHandle[error], error) {
	receiver, err := bus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	handle := runWithCallback(ctx, func(ctx context.Context) (<-chan []UserPreferenceUpdate, error) {
		return StreamPreferenceUpdates(ctx, receiver), nil
	}, cb)
	return handle, nil
}
