// Package bootstrap assembles the streaming core's infrastructure
// collaborators (the local event bus, the welcome transport, and durable
// storage) from a single environment-loaded Config, via pkg/config.Load.
// It owns wiring, not policy: MLSEngine and ClientShell stay caller-supplied,
// since both are specific to the surrounding messaging client rather than
// to any particular broker or storage backend.
package bootstrap

import (
	"time"

	"github.com/convomesh/convocore/pkg/config"
	natsadapter "github.com/convomesh/convocore/pkg/messaging/adapters/nats"
	"github.com/convomesh/convocore/pkg/resilience"
	"github.com/convomesh/convocore/pkg/streamcore"
	"github.com/convomesh/convocore/pkg/streamcore/adapters/remotewelcome"
	"github.com/convomesh/convocore/pkg/streamcore/adapters/sqlstorage"
)

// RetryConfig mirrors resilience.RetryConfig in an env-loadable shape;
// resilience.RetryConfig itself carries a RetryIf func field that cleanenv
// has nothing to bind an environment variable to.
type RetryConfig struct {
	MaxAttempts    int           `env:"STREAMCORE_RETRY_MAX_ATTEMPTS" env-default:"3"`
	InitialBackoff time.Duration `env:"STREAMCORE_RETRY_INITIAL_BACKOFF" env-default:"100ms"`
	MaxBackoff     time.Duration `env:"STREAMCORE_RETRY_MAX_BACKOFF" env-default:"5s"`
	Multiplier     float64       `env:"STREAMCORE_RETRY_MULTIPLIER" env-default:"2.0"`
	Jitter         float64       `env:"STREAMCORE_RETRY_JITTER" env-default:"0.1"`
}

// ToResilience converts to the shape Client and WelcomeProcessor consume.
func (r RetryConfig) ToResilience() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    r.MaxAttempts,
		InitialBackoff: r.InitialBackoff,
		MaxBackoff:     r.MaxBackoff,
		Multiplier:     r.Multiplier,
		Jitter:         r.Jitter,
	}
}

// Config is the complete, environment-loadable configuration for the
// streaming core's infrastructure: the NATS broker that carries both the
// local event bus and the welcome feed, durable group storage (SQLite), and
// welcome-processing retry policy.
type Config struct {
	Bus     natsadapter.Config
	Storage sqlstorage.Config
	Retry   RetryConfig

	// WelcomeInstallationGroup is this installation's consumer group on
	// the welcome topic. Every distinct group receives every welcome;
	// processes that share one group split the welcomes between them.
	WelcomeInstallationGroup string `env:"STREAMCORE_WELCOME_GROUP" env-default:"default"`
}

// Load reads Config from .env / the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Runtime bundles the infrastructure collaborators Load's Config wires up.
// The caller still supplies MLSEngine, MessageFanIn, and ClientShell when
// constructing a streamcore.Client.
type Runtime struct {
	Bus       streamcore.EventBus
	Transport streamcore.WelcomeTransport
	Storage   *sqlstorage.Storage
	Retry     resilience.RetryConfig

	broker *natsadapter.Broker
}

// New wires a Runtime from cfg: a NATS-backed broker (doubling as both the
// local event bus's transport and, since remotewelcome.Transport only needs
// a messaging.Broker, the welcome feed's transport too), durable SQLite
// storage, and the retry policy WelcomeProcessor should use.
func New(cfg Config) (*Runtime, error) {
	broker, err := natsadapter.New(cfg.Bus)
	if err != nil {
		return nil, err
	}

	bus, err := streamcore.NewEventBus(broker)
	if err != nil {
		broker.Close()
		return nil, err
	}

	transport, err := remotewelcome.New(broker, cfg.WelcomeInstallationGroup)
	if err != nil {
		broker.Close()
		return nil, err
	}

	storage, err := sqlstorage.NewFromConfig(cfg.Storage)
	if err != nil {
		broker.Close()
		return nil, err
	}

	return &Runtime{
		Bus:       bus,
		Transport: transport,
		Storage:   storage,
		Retry:     cfg.Retry.ToResilience(),
		broker:    broker,
	}, nil
}

// Close releases every collaborator New opened.
func (r *Runtime) Close() error {
	if err := r.Storage.Close(); err != nil {
		return err
	}
	if err := r.Bus.Close(); err != nil {
		return err
	}
	return r.broker.Close()
}
