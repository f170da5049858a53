// Package kafka implements messaging.Broker over Kafka using sarama
// consumer groups, for a welcome/message transport deployment that needs
// durable, replayable delivery across server restarts rather than the
// non-persistent core pub/sub of the nats adapter.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/convomesh/convocore/pkg/logger"
	"github.com/convomesh/convocore/pkg/messaging"
	"github.com/google/uuid"
)

// Config configures the Kafka broker adapter.
type Config struct {
	Brokers []string `env:"MSG_KAFKA_BROKERS" env-separator:","`
	Version string   `env:"MSG_KAFKA_VERSION" env-default:"3.6.0"`
}

// Broker implements messaging.Broker backed by a sarama client.
type Broker struct {
	cfg    Config
	client sarama.Client
}

// New dials the configured brokers.
func New(cfg Config) (*Broker, error) {
	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, messaging.ErrInvalidConfig("invalid kafka version", err)
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = version
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}

	return &Broker{cfg: cfg, client: client}, nil
}

func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	syncProducer, err := sarama.NewSyncProducerFromClient(b.client)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	return &producer{broker: b, topic: topic, producer: syncProducer}, nil
}

// Consumer joins a consumer group named group (defaulting to a
// topic-derived name for an empty group, which gives every caller without
// an explicit group its own broadcast-like subscription).
func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	if group == "" {
		group = "convocore-" + topic + "-" + uuid.New().String()
	}
	cg, err := sarama.NewConsumerGroupFromClient(group, b.client)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	return &consumer{group: cg, topic: topic, groupID: group}, nil
}

func (b *Broker) Close() error {
	return b.client.Close()
}

func (b *Broker) Healthy(ctx context.Context) bool {
	return !b.client.Closed()
}

type consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	groupID string
}

func (c *consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	h := &groupHandler{handler: handler, topic: c.topic}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return messaging.ErrConsumeFailed(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handler messaging.MessageHandler
	topic   string
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			m := &messaging.Message{
				Topic:     msg.Topic,
				Key:       msg.Key,
				Payload:   msg.Value,
				Timestamp: msg.Timestamp,
				Metadata:  messaging.MessageMetadata{Partition: msg.Partition, Offset: msg.Offset},
			}
			for _, hdr := range msg.Headers {
				if m.Headers == nil {
					m.Headers = map[string]string{}
				}
				m.Headers[string(hdr.Key)] = string(hdr.Value)
			}
			if err := h.handler(sess.Context(), m); err != nil {
				logger.L().WarnContext(sess.Context(), "kafka message handler returned error", "topic", h.topic, "error", err)
				continue
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}
