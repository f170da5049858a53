package streamcore_test

import (
	"testing"
	"time"

	"github.com/convomesh/convocore/pkg/resilience"
	"github.com/convomesh/convocore/pkg/streamcore"
	"github.com/convomesh/convocore/pkg/streamcore/adapters/memory"
	"github.com/convomesh/convocore/pkg/test"
)

type WelcomeSuite struct {
	test.Suite
}

func (s *WelcomeSuite) TestProcessesWelcomeOnFirstAttempt() {
	engine := memory.NewEngine()
	storage := memory.NewStorage()
	processor := streamcore.NewWelcomeProcessor(engine, storage, resilience.DefaultRetryConfig())

	convo := streamcore.Conversation{GroupID: []byte("group-1"), ConversationType: streamcore.Group}
	engine.Register(42, convo)

	result := processor.ProcessStreamedWelcome(s.Ctx, streamcore.WelcomeEnvelope{ID: 42})
	s.Require().Nil(result.Err)
	s.Equal(convo.GroupID, result.Value.GroupID)
}

func (s *WelcomeSuite) TestFallsBackToStorageAfterExhaustingRetries() {
	engine := memory.NewEngine()
	storage := memory.NewStorage()
	retry := resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	processor := streamcore.NewWelcomeProcessor(engine, storage, retry)

	// Every attempt fails, but a concurrent attempt already recorded the
	// group in storage against this welcome id.
	engine.FailNextAttempts(7, 10)
	welcomeID := int64(7)
	storage.PutGroup(streamcore.StoredGroup{
		GroupID:          []byte("group-7"),
		WelcomeID:        &welcomeID,
		ConversationType: streamcore.Dm,
	})

	result := processor.ProcessStreamedWelcome(s.Ctx, streamcore.WelcomeEnvelope{ID: 7})
	s.Require().Nil(result.Err)
	s.Equal([]byte("group-7"), result.Value.GroupID)
	s.Equal(streamcore.Dm, result.Value.ConversationType)
}

func (s *WelcomeSuite) TestReturnsGroupErrorWhenNoFallbackExists() {
	engine := memory.NewEngine()
	storage := memory.NewStorage()
	retry := resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
	processor := streamcore.NewWelcomeProcessor(engine, storage, retry)

	engine.FailNextAttempts(9, 10)

	result := processor.ProcessStreamedWelcome(s.Ctx, streamcore.WelcomeEnvelope{ID: 9})
	s.Require().NotNil(result.Err)
	s.Equal(streamcore.ErrGroup, result.Err.Kind)
}

func TestWelcomeSuite(t *testing.T) {
	test.Run(t, new(WelcomeSuite))
}
