package streamcore

import "context"

// StreamAllMessages is the All-Messages Stream: it merges the remote
// message fan-in across every known conversation with the Conversation
// Stream, so that a conversation created or discovered after the stream
// started starts contributing messages without the caller having to
// restart anything.
//
// Priority is strict: a message already pulled off the fan-in and held for
// delivery (the drain buffer built during a fan-in rebuild) is always sent
// before a fresh fan-in message, which is always sent before a new
// conversation is processed. This keeps message ordering stable across a
// group-list change instead of letting a burst of new-conversation
// processing starve messages already in flight.
//
// Conversation type filtering is applied to the same filter used by the
// fan-in's caller: a conversation that does not match filter never joins
// the fan-in's snapshot, so its messages never appear on this stream.
func StreamAllMessages(ctx context.Context, initialGroups []StoredGroup, transport WelcomeTransport, processor *WelcomeProcessor, bus EventBus, fanIn MessageFanIn, filter *ConversationType) (<-chan Result[Message], error) {
	convoCh, err := StreamConversations(ctx, transport, processor, bus, filter)
	if err != nil {
		return nil, err
	}

	known := make(map[string]int64, len(initialGroups)) // groupKey -> convoCreatedAtNS
	snapshot := make(map[string]MessagesStreamInfo, len(initialGroups))
	for _, g := range initialGroups {
		key := GroupIDKey(g.GroupID)
		known[key] = g.CreatedAtNS
		snapshot[key] = MessagesStreamInfo{ConvoCreatedAtNS: g.CreatedAtNS, Cursor: 0}
	}

	openCtx, cancel := context.WithCancel(ctx)
	messagesCh, err := fanIn.Open(openCtx, snapshot)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Result[Message])
	go func() {
		defer close(out)
		defer cancel()

		var extra []Result[Message]

		send := func(r Result[Message]) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		rebuild := func(convo Conversation) bool {
			key := GroupIDKey(convo.GroupID)
			if _, exists := known[key]; exists {
				return true
			}

			newSnapshot := make(map[string]MessagesStreamInfo, len(snapshot)+1)
			for k := range snapshot {
				newSnapshot[k] = MessagesStreamInfo{ConvoCreatedAtNS: known[k], Cursor: 0}
			}
			newSnapshot[key] = MessagesStreamInfo{ConvoCreatedAtNS: convo.CreatedAtNS, Cursor: 1}

			newOpenCtx, newCancel := context.WithCancel(ctx)
			newCh, err := fanIn.Open(newOpenCtx, newSnapshot)
			if err != nil {
				// The rebuild failed: leave the old fan-in running
				// untouched (it was never cancelled) and surface the
				// failure as a per-item error.
				newCancel()
				return send(Err[Message](errFailedToStartNewMessagesStream(err)))
			}

			// Only once the new fan-in is confirmed live do we drain whatever
			// the old one already has buffered, immediately followed by
			// tearing it down and swapping in the new one. Draining any
			// earlier would leave the old fan-in's forwarder goroutine free
			// to dequeue another item and block handing it to us while
			// fanIn.Open is in flight; if cancel() fired before we came back
			// to read it, that item would be lost for good.
			for {
				select {
				case m, ok := <-messagesCh:
					if !ok {
						break
					}
					extra = append(extra, m)
					continue
				default:
				}
				break
			}

			cancel()
			known[key] = convo.CreatedAtNS
			snapshot = newSnapshot
			openCtx, cancel = newOpenCtx, newCancel
			messagesCh = newCh
			return true
		}

		for {
			if len(extra) > 0 {
				item := extra[0]
				extra = extra[1:]
				if !send(item) {
					return
				}
				continue
			}

			select {
			case m, ok := <-messagesCh:
				if !ok {
					messagesCh = nil
					continue
				}
				if !send(m) {
					return
				}
				continue
			default:
			}

			select {
			case <-ctx.Done():
				return

			case m, ok := <-messagesCh:
				if !ok {
					messagesCh = nil
					continue
				}
				if !send(m) {
					return
				}

			case result, ok := <-convoCh:
				if !ok {
					convoCh = nil
					continue
				}
				if result.Err != nil {
					if !send(Err[Message](result.Err)) {
						return
					}
					continue
				}
				if !rebuild(result.Value) {
					return
				}
			}
		}
	}()

	return out, nil
}
