package streamcore

import (
	"context"
	"encoding/json"

	"github.com/convomesh/convocore/pkg/logger"
	"github.com/convomesh/convocore/pkg/messaging"
)

// busTopic is the single subject every LocalEvent is published on; Kind
// selects how a receiver's filter views interpret the payload.
const busTopic = "convocore.local-events"

// EventBus is a process-wide, multi-producer, multi-consumer broadcast of
// LocalEvents. It is lossy on slow consumers: a subscriber that falls behind
// has items dropped for it specifically, logged as a warning, never as a
// fatal error. Subscribing returns an independent receiver with its own
// backlog.
type EventBus interface {
	Publish(ctx context.Context, event LocalEvent) error
	Subscribe(ctx context.Context) (EventReceiver, error)
	Close() error
}

// EventReceiver is one subscription's view of the bus.
type EventReceiver interface {
	// Next blocks until the next LocalEvent arrives or ctx is done. Lag is
	// handled beneath this call (logged, skipped) and never surfaces here.
	Next(ctx context.Context) (LocalEvent, bool)
	Close() error
}

// busEventBus implements EventBus over a messaging.Broker. Every Subscribe
// call opens an independent broadcast consumer (empty consumer group), so
// every LocalEvent reaches every live receiver exactly once, modulo the
// broker's own slow-consumer drop accounting.
type busEventBus struct {
	broker   messaging.Broker
	producer messaging.Producer
}

// NewEventBus wraps a messaging.Broker as the process-local event bus.
func NewEventBus(broker messaging.Broker) (EventBus, error) {
	producer, err := broker.Producer(busTopic)
	if err != nil {
		return nil, err
	}
	return &busEventBus{broker: broker, producer: producer}, nil
}

func (b *busEventBus) Publish(ctx context.Context, event LocalEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.producer.Publish(ctx, &messaging.Message{Topic: busTopic, Payload: payload})
}

func (b *busEventBus) Subscribe(ctx context.Context) (EventReceiver, error) {
	consumer, err := b.broker.Consumer(busTopic, "")
	if err != nil {
		return nil, err
	}

	r := &busReceiver{
		consumer: consumer,
		items:    make(chan LocalEvent, 256),
		done:     make(chan struct{}),
	}
	go r.pump(ctx)
	return r, nil
}

func (b *busEventBus) Close() error {
	_ = b.producer.Close()
	return b.broker.Close()
}

type busReceiver struct {
	consumer messaging.Consumer
	items    chan LocalEvent
	done     chan struct{}
}

func (r *busReceiver) pump(ctx context.Context) {
	defer close(r.items)
	_ = r.consumer.Consume(ctx, func(ctx context.Context, msg *messaging.Message) error {
		var event LocalEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			logger.L().ErrorContext(ctx, "failed to decode local event", "error", err)
			return nil
		}
		select {
		case r.items <- event:
		case <-r.done:
		case <-ctx.Done():
		}
		return nil
	})
}

func (r *busReceiver) Next(ctx context.Context) (LocalEvent, bool) {
	select {
	case event, ok := <-r.items:
		return event, ok
	case <-ctx.Done():
		return LocalEvent{}, false
	}
}

func (r *busReceiver) Close() error {
	close(r.done)
	return r.consumer.Close()
}

// newGroups filters a receiver down to NewGroup events, the view consumed
// only by the Conversation Stream.
func newGroups(ctx context.Context, r EventReceiver) <-chan Conversation {
	out := make(chan Conversation)
	go func() {
		defer close(out)
		for {
			event, ok := r.Next(ctx)
			if !ok {
				return
			}
			if event.Kind != EventNewGroup || event.NewGroup == nil {
				continue
			}
			select {
			case out <- *event.NewGroup:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// StreamSyncEvents exposes the sync filter view: SyncMessage and both
// preference-update variants, unchanged.
func StreamSyncEvents(ctx context.Context, r EventReceiver) <-chan LocalEvent {
	out := make(chan LocalEvent)
	go func() {
		defer close(out)
		for {
			event, ok := r.Next(ctx)
			if !ok {
				return
			}
			switch event.Kind {
			case EventSyncMessage, EventOutgoingPreferenceUpdates, EventIncomingPreferenceUpdate:
			default:
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// StreamConsentUpdates extracts only the ConsentUpdate payloads out of
// preference-update events. Together with StreamPreferenceUpdates this is a
// total partition of every preference update.
func StreamConsentUpdates(ctx context.Context, r EventReceiver) <-chan []StoredConsentRecord {
	out := make(chan []StoredConsentRecord)
	go func() {
		defer close(out)
		for {
			event, ok := r.Next(ctx)
			if !ok {
				return
			}
			updates := preferencePayload(event)
			if updates == nil {
				continue
			}
			var consents []StoredConsentRecord
			for _, u := range updates {
				if u.Consent != nil {
					consents = append(consents, *u.Consent)
				}
			}
			select {
			case out <- consents:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// StreamPreferenceUpdates extracts the non-consent preference variants.
func StreamPreferenceUpdates(ctx context.Context, r EventReceiver) <-chan []UserPreferenceUpdate {
	out := make(chan []UserPreferenceUpdate)
	go func() {
		defer close(out)
		for {
			event, ok := r.Next(ctx)
			if !ok {
				return
			}
			updates := preferencePayload(event)
			if updates == nil {
				continue
			}
			var rest []UserPreferenceUpdate
			for _, u := range updates {
				if !u.IsConsent() {
					rest = append(rest, u)
				}
			}
			select {
			case out <- rest:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func preferencePayload(event LocalEvent) []UserPreferenceUpdate {
	switch event.Kind {
	case EventOutgoingPreferenceUpdates, EventIncomingPreferenceUpdate:
		return event.PreferenceUpdates
	default:
		return nil
	}
}
