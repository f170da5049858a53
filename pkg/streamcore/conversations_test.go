package streamcore_test

import (
	"context"
	"testing"
	"time"

	natsadapter "github.com/convomesh/convocore/pkg/messaging/adapters/nats"
	"github.com/convomesh/convocore/pkg/resilience"
	"github.com/convomesh/convocore/pkg/streamcore"
	"github.com/convomesh/convocore/pkg/streamcore/adapters/memory"
	"github.com/convomesh/convocore/pkg/test"
)

type ConversationsSuite struct {
	test.Suite
	broker    *natsadapter.Broker
	bus       streamcore.EventBus
	transport *memory.Transport
	engine    *memory.Engine
	storage   *memory.Storage
	processor *streamcore.WelcomeProcessor
}

func (s *ConversationsSuite) SetupTest() {
	s.Suite.SetupTest()

	broker, err := natsadapter.New(natsadapter.Config{InProcess: true})
	s.Require().NoError(err)
	s.broker = broker

	bus, err := streamcore.NewEventBus(broker)
	s.Require().NoError(err)
	s.bus = bus

	s.transport = memory.NewTransport()
	s.engine = memory.NewEngine()
	s.storage = memory.NewStorage()
	s.processor = streamcore.NewWelcomeProcessor(s.engine, s.storage, resilience.DefaultRetryConfig())
}

func (s *ConversationsSuite) TearDownTest() {
	_ = s.bus.Close()
}

func (s *ConversationsSuite) TestMergesWelcomesAndLocallyCreatedGroups() {
	ctx, cancel := context.WithTimeout(s.Ctx, 3*time.Second)
	defer cancel()

	convoCh, err := streamcore.StreamConversations(ctx, s.transport, s.processor, s.bus, nil)
	s.Require().NoError(err)

	s.engine.Register(1, streamcore.Conversation{GroupID: []byte("welcomed"), ConversationType: streamcore.Group})
	s.transport.Push(streamcore.WelcomeEnvelope{ID: 1})

	s.Require().NoError(s.bus.Publish(ctx, streamcore.LocalEvent{
		Kind:     streamcore.EventNewGroup,
		NewGroup: &streamcore.Conversation{GroupID: []byte("self-created"), ConversationType: streamcore.Dm},
	}))

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case result := <-convoCh:
			s.Require().Nil(result.Err)
			seen[streamcore.GroupIDKey(result.Value.GroupID)] = true
		case <-ctx.Done():
			s.FailNow("timed out waiting for both conversations", "seen: %v", seen)
		}
	}

	s.True(seen["welcomed"])
	s.True(seen["self-created"])
}

func (s *ConversationsSuite) TestFiltersByConversationType() {
	ctx, cancel := context.WithTimeout(s.Ctx, 3*time.Second)
	defer cancel()

	dmOnly := streamcore.Dm
	convoCh, err := streamcore.StreamConversations(ctx, s.transport, s.processor, s.bus, &dmOnly)
	s.Require().NoError(err)

	s.Require().NoError(s.bus.Publish(ctx, streamcore.LocalEvent{
		Kind:     streamcore.EventNewGroup,
		NewGroup: &streamcore.Conversation{GroupID: []byte("group-conversation"), ConversationType: streamcore.Group},
	}))
	s.Require().NoError(s.bus.Publish(ctx, streamcore.LocalEvent{
		Kind:     streamcore.EventNewGroup,
		NewGroup: &streamcore.Conversation{GroupID: []byte("dm-conversation"), ConversationType: streamcore.Dm},
	}))

	select {
	case result := <-convoCh:
		s.Require().Nil(result.Err)
		s.Equal(streamcore.Dm, result.Value.ConversationType)
		s.Equal("dm-conversation", streamcore.GroupIDKey(result.Value.GroupID))
	case <-ctx.Done():
		s.FailNow("timed out waiting for the dm conversation")
	}
}

func TestConversationsSuite(t *testing.T) {
	test.Run(t, new(ConversationsSuite))
}
