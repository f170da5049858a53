// Package nats implements messaging.Broker over NATS core pub/sub.
//
// Two modes are supported: connecting to an external NATS deployment via
// Config.URL, or (the default) booting a private, in-process NATS server
// that never touches a socket. The in-process mode is what the streaming
// core uses for its local event bus: every Subscribe call is a genuine
// broadcast (core NATS delivers a copy of every message to every
// subscriber on a subject), and a slow subscriber is handled by the
// client library itself via per-subscription pending limits, which is
// exactly the "lossy on slow consumers" contract the bus needs.
package nats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/convomesh/convocore/pkg/errors"
	"github.com/convomesh/convocore/pkg/logger"
	"github.com/convomesh/convocore/pkg/messaging"
	"github.com/google/uuid"
	natsserver "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
)

// Config configures the NATS broker adapter.
type Config struct {
	// InProcess boots a private embedded server instead of dialing URL.
	InProcess bool `env:"MSG_NATS_IN_PROCESS" env-default:"true"`

	// URL is the NATS server to dial when InProcess is false.
	URL string `env:"MSG_NATS_URL" env-default:"nats://127.0.0.1:4222"`

	// PendingMsgLimit bounds how many undelivered messages a single
	// subscription will buffer before NATS starts dropping for it.
	PendingMsgLimit int `env:"MSG_NATS_PENDING_MSGS" env-default:"2048"`

	// PendingBytesLimit bounds buffered bytes per subscription.
	PendingBytesLimit int64 `env:"MSG_NATS_PENDING_BYTES" env-default:"8388608"`

	// StartTimeout bounds how long New waits for the embedded server.
	StartTimeout time.Duration `env:"MSG_NATS_START_TIMEOUT" env-default:"5s"`
}

// Broker implements messaging.Broker backed by a NATS connection.
type Broker struct {
	cfg  Config
	srv  *natsserver.Server
	conn *nats.Conn
}

// New creates a Broker, starting an embedded server when cfg.InProcess is set.
func New(cfg Config) (*Broker, error) {
	if cfg.PendingMsgLimit <= 0 {
		cfg.PendingMsgLimit = 2048
	}
	if cfg.PendingBytesLimit <= 0 {
		cfg.PendingBytesLimit = 8 * 1024 * 1024
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 5 * time.Second
	}

	b := &Broker{cfg: cfg}

	if !cfg.InProcess {
		conn, err := nats.Connect(cfg.URL)
		if err != nil {
			return nil, messaging.ErrConnectionFailed(err)
		}
		b.conn = conn
		return b, nil
	}

	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1,
		DontListen:     true,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 4096,
	})
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(cfg.StartTimeout) {
		return nil, messaging.ErrConnectionFailed(errors.New(errors.CodeTimeout, "embedded nats server did not become ready", nil))
	}

	conn, err := nats.Connect("", nats.InProcessServer(srv))
	if err != nil {
		srv.Shutdown()
		return nil, messaging.ErrConnectionFailed(err)
	}

	b.srv = srv
	b.conn = conn
	return b, nil
}

func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	return &producer{conn: b.conn, topic: topic}, nil
}

func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	ch := make(chan *nats.Msg, b.cfg.PendingMsgLimit)

	var sub *nats.Subscription
	var err error
	if group == "" {
		sub, err = b.conn.ChanSubscribe(topic, ch)
	} else {
		sub, err = b.conn.ChanQueueSubscribe(topic, group, ch)
	}
	if err != nil {
		return nil, messaging.ErrConsumeFailed(err)
	}
	if err := sub.SetPendingLimits(b.cfg.PendingMsgLimit, b.cfg.PendingBytesLimit); err != nil {
		logger.L().Warn("failed to set nats pending limits", "topic", topic, "error", err)
	}

	return &consumer{sub: sub, ch: ch, topic: topic, group: group}, nil
}

func (b *Broker) Close() error {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.srv != nil {
		b.srv.Shutdown()
	}
	return nil
}

func (b *Broker) Healthy(ctx context.Context) bool {
	return b.conn != nil && b.conn.IsConnected()
}

type producer struct {
	conn  *nats.Conn
	topic string
}

func (p *producer) Publish(ctx context.Context, msg *messaging.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	topic := p.topic
	if msg.Topic != "" {
		topic = msg.Topic
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return messaging.ErrSerializationFailed(err)
	}
	if err := p.conn.Publish(topic, payload); err != nil {
		return messaging.ErrPublishFailed(err)
	}
	return nil
}

func (p *producer) PublishBatch(ctx context.Context, msgs []*messaging.Message) error {
	for _, msg := range msgs {
		if err := p.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *producer) Close() error {
	return nil
}

// consumer adapts a NATS channel subscription to messaging.Consumer,
// surfacing dropped-message counts (NATS's slow-consumer accounting) as
// warning logs rather than as consumer-visible errors.
type consumer struct {
	sub   *nats.Subscription
	ch    chan *nats.Msg
	topic string
	group string

	lastDropped int
}

func (c *consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-c.ch:
			if !ok {
				return nil
			}
			c.reportDrops()

			var msg messaging.Message
			if err := json.Unmarshal(raw.Data, &msg); err != nil {
				logger.L().ErrorContext(ctx, "failed to decode nats message", "topic", c.topic, "error", err)
				continue
			}
			if err := handler(ctx, &msg); err != nil {
				logger.L().WarnContext(ctx, "message handler returned error", "topic", c.topic, "error", err)
			}
		}
	}
}

func (c *consumer) reportDrops() {
	dropped, err := c.sub.Dropped()
	if err != nil || dropped <= c.lastDropped {
		return
	}
	logger.L().Warn("nats subscription dropped messages (slow consumer)",
		"topic", c.topic, "group", c.group, "dropped_total", dropped, "new_drops", dropped-c.lastDropped)
	c.lastDropped = dropped
}

func (c *consumer) Close() error {
	return c.sub.Unsubscribe()
}
