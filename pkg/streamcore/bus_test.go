package streamcore_test

import (
	"context"
	"testing"
	"time"

	natsadapter "github.com/convomesh/convocore/pkg/messaging/adapters/nats"
	"github.com/convomesh/convocore/pkg/streamcore"
	"github.com/convomesh/convocore/pkg/test"
)

type BusSuite struct {
	test.Suite
	broker *natsadapter.Broker
	bus    streamcore.EventBus
}

func (s *BusSuite) SetupTest() {
	s.Suite.SetupTest()

	broker, err := natsadapter.New(natsadapter.Config{InProcess: true})
	s.Require().NoError(err)
	s.broker = broker

	bus, err := streamcore.NewEventBus(broker)
	s.Require().NoError(err)
	s.bus = bus
}

func (s *BusSuite) TearDownTest() {
	_ = s.bus.Close()
}

func (s *BusSuite) TestSyncFilterExcludesNewGroup() {
	ctx, cancel := context.WithTimeout(s.Ctx, 2*time.Second)
	defer cancel()

	receiver, err := s.bus.Subscribe(ctx)
	s.Require().NoError(err)
	defer receiver.Close()

	syncCh := streamcore.StreamSyncEvents(ctx, receiver)

	s.Require().NoError(s.bus.Publish(ctx, streamcore.LocalEvent{
		Kind:     streamcore.EventNewGroup,
		NewGroup: &streamcore.Conversation{GroupID: []byte("group-a")},
	}))
	s.Require().NoError(s.bus.Publish(ctx, streamcore.LocalEvent{
		Kind:        streamcore.EventSyncMessage,
		SyncMessage: &streamcore.SyncMessage{Kind: streamcore.SyncRequest},
	}))

	select {
	case event := <-syncCh:
		s.Equal(streamcore.EventSyncMessage, event.Kind)
	case <-ctx.Done():
		s.Fail("timed out waiting for sync event")
	}
}

func (s *BusSuite) TestConsentAndPreferencePartitionPreferenceUpdates() {
	ctx, cancel := context.WithTimeout(s.Ctx, 2*time.Second)
	defer cancel()

	receiverA, err := s.bus.Subscribe(ctx)
	s.Require().NoError(err)
	defer receiverA.Close()
	receiverB, err := s.bus.Subscribe(ctx)
	s.Require().NoError(err)
	defer receiverB.Close()

	consentCh := streamcore.StreamConsentUpdates(ctx, receiverA)
	prefCh := streamcore.StreamPreferenceUpdates(ctx, receiverB)

	updates := []streamcore.UserPreferenceUpdate{
		{Consent: &streamcore.StoredConsentRecord{EntityType: "inbox", Entity: "abc", State: "allowed"}},
		{Nickname: &streamcore.NicknameUpdate{Entity: "abc", Nickname: "Alice"}},
	}
	s.Require().NoError(s.bus.Publish(ctx, streamcore.LocalEvent{
		Kind:              streamcore.EventOutgoingPreferenceUpdates,
		PreferenceUpdates: updates,
	}))

	select {
	case consents := <-consentCh:
		s.Len(consents, 1)
		s.Equal("abc", consents[0].Entity)
	case <-ctx.Done():
		s.Fail("timed out waiting for consent update")
	}

	select {
	case prefs := <-prefCh:
		s.Len(prefs, 1)
		s.Equal("abc", prefs[0].Nickname.Entity)
	case <-ctx.Done():
		s.Fail("timed out waiting for preference update")
	}
}

func TestBusSuite(t *testing.T) {
	test.Run(t, new(BusSuite))
}
