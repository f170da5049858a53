// Package remotewelcome implements streamcore.WelcomeTransport over any
// messaging.Broker, so the welcome feed can run on whichever broker the
// surrounding deployment already uses (Kafka for durable, replayable
// delivery; NATS for a lighter single-region deployment) instead of
// requiring a bespoke transport per backend.
package remotewelcome

import (
	"context"
	"encoding/json"

	"github.com/convomesh/convocore/pkg/logger"
	"github.com/convomesh/convocore/pkg/messaging"
	"github.com/convomesh/convocore/pkg/streamcore"
)

const welcomeTopic = "convocore.welcomes"

// Transport adapts a messaging.Broker into a streamcore.WelcomeTransport.
type Transport struct {
	broker   messaging.Broker
	consumer messaging.Consumer
}

// New opens a consumer on the welcome topic in the consumer group
// installationGroup. Every distinct group receives every welcome; consumers
// that share one group split the welcomes between them.
func New(broker messaging.Broker, installationGroup string) (*Transport, error) {
	consumer, err := broker.Consumer(welcomeTopic, installationGroup)
	if err != nil {
		return nil, err
	}
	return &Transport{broker: broker, consumer: consumer}, nil
}

func (t *Transport) SubscribeWelcomeMessages(ctx context.Context) (<-chan streamcore.Result[streamcore.WelcomeEnvelope], error) {
	out := make(chan streamcore.Result[streamcore.WelcomeEnvelope])
	go func() {
		defer close(out)
		_ = t.consumer.Consume(ctx, func(ctx context.Context, msg *messaging.Message) error {
			var envelope streamcore.WelcomeEnvelope
			if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
				logger.L().ErrorContext(ctx, "failed to decode welcome envelope", "error", err)
				select {
				case out <- streamcore.Err[streamcore.WelcomeEnvelope](streamcore.NewDecodeError(err)):
				case <-ctx.Done():
				}
				return nil
			}
			select {
			case out <- streamcore.Ok(envelope):
			case <-ctx.Done():
			}
			return nil
		})
	}()
	return out, nil
}

// Publisher is the server-side counterpart: it publishes welcomes onto the
// same topic Transport consumes from. It belongs to whatever component
// delivers welcomes in the first place, not to the client streaming core,
// but lives alongside Transport since both sides must agree on the topic
// and wire format.
type Publisher struct {
	producer messaging.Producer
}

// NewPublisher opens a producer on the welcome topic.
func NewPublisher(broker messaging.Broker) (*Publisher, error) {
	producer, err := broker.Producer(welcomeTopic)
	if err != nil {
		return nil, err
	}
	return &Publisher{producer: producer}, nil
}

func (p *Publisher) PublishWelcome(ctx context.Context, envelope streamcore.WelcomeEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, &messaging.Message{Topic: welcomeTopic, Payload: payload})
}
