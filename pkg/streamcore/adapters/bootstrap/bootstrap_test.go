package bootstrap_test

import (
	"testing"
	"time"

	"github.com/convomesh/convocore/pkg/streamcore/adapters/bootstrap"
	"github.com/convomesh/convocore/pkg/test"
)

type BootstrapSuite struct {
	test.Suite
}

func TestBootstrapSuite(t *testing.T) {
	test.Run(t, new(BootstrapSuite))
}

func (s *BootstrapSuite) TestLoadAppliesDefaults() {
	s.T().Setenv("STORAGE_SQLITE_PATH", "/tmp/bootstrap-test.db")

	cfg, err := bootstrap.Load()
	s.NoError(err)
	s.Equal("/tmp/bootstrap-test.db", cfg.Storage.Path)
	s.Equal(3, cfg.Retry.MaxAttempts)
	s.Equal(100*time.Millisecond, cfg.Retry.InitialBackoff)
	s.Equal("default", cfg.WelcomeInstallationGroup)
}

func (s *BootstrapSuite) TestRetryConfigToResilience() {
	rc := bootstrap.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     1.5,
		Jitter:         0.2,
	}

	out := rc.ToResilience()
	s.Equal(5, out.MaxAttempts)
	s.Equal(50*time.Millisecond, out.InitialBackoff)
	s.Equal(2*time.Second, out.MaxBackoff)
	s.Equal(1.5, out.Multiplier)
	s.Equal(0.2, out.Jitter)
	s.Nil(out.RetryIf)
}
