package streamcore

import (
	"context"
)

// WelcomeTransport is the remote collaborator announcing new conversation
// invitations as they arrive at the server.
type WelcomeTransport interface {
	// SubscribeWelcomeMessages opens a feed of welcome envelopes. A single
	// envelope that failed to decode off the wire is surfaced as a
	// per-item Err rather than dropped, per this package's decode-failures-
	// are-terminal-for-the-item contract. The channel closes when ctx is
	// done or the transport ends the feed.
	SubscribeWelcomeMessages(ctx context.Context) (<-chan Result[WelcomeEnvelope], error)
}

// matchesType reports whether ct passes filter; a nil filter matches
// everything.
func matchesType(ct ConversationType, filter *ConversationType) bool {
	return filter == nil || *filter == ct
}

// StreamConversations is the Conversation Stream: it merges the remote
// welcome feed (new conversations other parties invited this installation
// into) with the local event bus's NewGroup events (conversations this
// installation created itself, which never arrive as a welcome), and
// yields every conversation matching filter.
//
// The two sources are read concurrently with no ordering guarantee between
// them; each is independently exhausted-safe (a closed source simply stops
// contributing rather than ending the merged stream).
func StreamConversations(ctx context.Context, transport WelcomeTransport, processor *WelcomeProcessor, bus EventBus, filter *ConversationType) (<-chan Result[Conversation], error) {
	welcomeCh, err := transport.SubscribeWelcomeMessages(ctx)
	if err != nil {
		return nil, err
	}

	receiver, err := bus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Result[Conversation])
	go func() {
		defer close(out)
		defer receiver.Close()

		newGroupCh := newGroups(ctx, receiver)

		send := func(r Result[Conversation]) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for welcomeCh != nil || newGroupCh != nil {
			select {
			case <-ctx.Done():
				return

			case envelope, ok := <-welcomeCh:
				if !ok {
					welcomeCh = nil
					continue
				}
				if envelope.Err != nil {
					if !send(Err[Conversation](envelope.Err)) {
						return
					}
					continue
				}
				result := processor.ProcessStreamedWelcome(ctx, envelope.Value)
				if result.Err != nil {
					if !send(result) {
						return
					}
					continue
				}
				if !matchesType(result.Value.ConversationType, filter) {
					continue
				}
				if !send(result) {
					return
				}

			case convo, ok := <-newGroupCh:
				if !ok {
					newGroupCh = nil
					continue
				}
				if !matchesType(convo.ConversationType, filter) {
					continue
				}
				if !send(Ok(convo)) {
					return
				}
			}
		}
	}()

	return out, nil
}
