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

type MultiplexSuite struct {
	test.Suite
	broker    *natsadapter.Broker
	bus       streamcore.EventBus
	transport *memory.Transport
	engine    *memory.Engine
	storage   *memory.Storage
	fanIn     *memory.FanIn
	processor *streamcore.WelcomeProcessor
}

func (s *MultiplexSuite) SetupTest() {
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
	s.fanIn = memory.NewFanIn()
	s.processor = streamcore.NewWelcomeProcessor(s.engine, s.storage, resilience.DefaultRetryConfig())
}

func (s *MultiplexSuite) TearDownTest() {
	_ = s.bus.Close()
}

func (s *MultiplexSuite) TestUnchangingGroupListDeliversAllMessages() {
	ctx, cancel := context.WithTimeout(s.Ctx, 3*time.Second)
	defer cancel()

	groupA := []byte("group-a")
	s.storage.PutGroup(streamcore.StoredGroup{GroupID: groupA, ConversationType: streamcore.Group})

	msgCh, err := streamcore.StreamAllMessages(ctx, []streamcore.StoredGroup{{GroupID: groupA}}, s.transport, s.processor, s.bus, s.fanIn, nil)
	s.Require().NoError(err)

	for i := 0; i < 5; i++ {
		s.fanIn.Append(groupA, streamcore.Message{GroupID: groupA, Cursor: uint64(i)})
	}

	received := 0
	for received < 5 {
		select {
		case result := <-msgCh:
			s.Require().Nil(result.Err)
			received++
		case <-ctx.Done():
			s.FailNow("timed out", "received %d of 5", received)
		}
	}
}

func (s *MultiplexSuite) TestNewlyAddedGroupJoinsTheFanIn() {
	ctx, cancel := context.WithTimeout(s.Ctx, 3*time.Second)
	defer cancel()

	groupA := []byte("group-a")

	msgCh, err := streamcore.StreamAllMessages(ctx, []streamcore.StoredGroup{{GroupID: groupA}}, s.transport, s.processor, s.bus, s.fanIn, nil)
	s.Require().NoError(err)

	s.fanIn.Append(groupA, streamcore.Message{GroupID: groupA, Cursor: 0})
	select {
	case result := <-msgCh:
		s.Require().Nil(result.Err)
		s.Equal(streamcore.GroupIDKey(groupA), streamcore.GroupIDKey(result.Value.GroupID))
	case <-ctx.Done():
		s.FailNow("timed out waiting for the first group-a message")
	}

	groupB := []byte("group-b")
	s.Require().NoError(s.bus.Publish(ctx, streamcore.LocalEvent{
		Kind:     streamcore.EventNewGroup,
		NewGroup: &streamcore.Conversation{GroupID: groupB, ConversationType: streamcore.Group},
	}))

	// Give the rebuild a moment to swap in the new fan-in before appending
	// to both groups; the multiplexer must merge both going forward.
	time.Sleep(100 * time.Millisecond)
	s.fanIn.Append(groupA, streamcore.Message{GroupID: groupA, Cursor: 1})
	s.fanIn.Append(groupB, streamcore.Message{GroupID: groupB, Cursor: 0})

	seenGroups := map[string]bool{}
	for len(seenGroups) < 2 {
		select {
		case result := <-msgCh:
			s.Require().Nil(result.Err)
			seenGroups[streamcore.GroupIDKey(result.Value.GroupID)] = true
		case <-ctx.Done():
			s.FailNow("timed out waiting for both groups to deliver", "seen: %v", seenGroups)
		}
	}
	s.True(seenGroups[streamcore.GroupIDKey(groupA)])
	s.True(seenGroups[streamcore.GroupIDKey(groupB)])
}

func TestMultiplexSuite(t *testing.T) {
	test.Run(t, new(MultiplexSuite))
}
