package streamcore

import (
	"context"

	"github.com/convomesh/convocore/pkg/resilience"
)

// ClientShell is the thin slice of the wider messaging client that the
// streaming core needs: identity, and access to the process-local event
// bus. Everything else comes in through Storage, MLSEngine,
// WelcomeTransport, and MessageFanIn.
type ClientShell interface {
	LocalEvents() EventBus
	InstallationPublicKey() []byte
	InboxID() string

	// SyncWelcomes pulls the welcome feed forward once, outside of any
	// stream, so a caller can fast-forward known conversations before
	// opening a stream that only sees what arrives after it starts.
	SyncWelcomes(ctx context.Context) error
}

// Client wires every streaming-core collaborator together and exposes the
// package's public streaming surfaces as methods.
type Client struct {
	shell     ClientShell
	storage   Storage
	transport WelcomeTransport
	fanIn     MessageFanIn
	processor *WelcomeProcessor
}

// NewClient builds a Client. retry configures the welcome processor's
// retry-then-fallback-lookup behavior; a zero value uses
// resilience.DefaultRetryConfig.
func NewClient(shell ClientShell, storage Storage, engine MLSEngine, transport WelcomeTransport, fanIn MessageFanIn, retry resilience.RetryConfig) *Client {
	return &Client{
		shell:     shell,
		storage:   storage,
		transport: transport,
		fanIn:     fanIn,
		processor: NewWelcomeProcessor(engine, storage, retry),
	}
}

// StreamConversations opens the Conversation Stream, filtered by
// conversation type when filter is non-nil.
func (c *Client) StreamConversations(ctx context.Context, filter *ConversationType) (<-chan Result[Conversation], error) {
	return StreamConversations(ctx, c.transport, c.processor, c.shell.LocalEvents(), filter)
}

// StreamAllMessages opens the All-Messages Stream, seeded with every
// conversation currently in storage. Welcomes are synchronized once,
// synchronously, before the snapshot is read, so every conversation this
// installation has already been invited to is materialized locally before
// the fan-in is built over it.
func (c *Client) StreamAllMessages(ctx context.Context, filter *ConversationType) (<-chan Result[Message], error) {
	if err := c.shell.SyncWelcomes(ctx); err != nil {
		return nil, wrapClient(err)
	}
	groups, err := c.storage.FindGroups(ctx, GroupQueryArgs{}.WithConversationType(filter))
	if err != nil {
		return nil, wrapStorage(err)
	}
	return StreamAllMessages(ctx, groups, c.transport, c.processor, c.shell.LocalEvents(), c.fanIn, filter)
}

// StreamConsentUpdates opens the consent filter view of the local event bus.
func (c *Client) StreamConsentUpdates(ctx context.Context) (<-chan []StoredConsentRecord, error) {
	receiver, err := c.shell.LocalEvents().Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return StreamConsentUpdates(ctx, receiver), nil
}

// StreamPreferenceUpdates opens the non-consent preference filter view of
// the local event bus.
func (c *Client) StreamPreferenceUpdates(ctx context.Context) (<-chan []UserPreferenceUpdate, error) {
	receiver, err := c.shell.LocalEvents().Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return StreamPreferenceUpdates(ctx, receiver), nil
}

// StreamConversationsWithCallback is the Client-bound callback form.
func (c *Client) StreamConversationsWithCallback(ctx context.Context, filter *ConversationType, cb func(Result[Conversation])) *StreamHandle[error] {
	return StreamConversationsWithCallback(ctx, c.transport, c.processor, c.shell.LocalEvents(), filter, cb)
}

// StreamAllMessagesWithCallback is the Client-bound callback form.
func (c *Client) StreamAllMessagesWithCallback(ctx context.Context, filter *ConversationType, cb func(Result[Message])) (*StreamHandle[error], error) {
	if err := c.shell.SyncWelcomes(ctx); err != nil {
		return nil, wrapClient(err)
	}
	groups, err := c.storage.FindGroups(ctx, GroupQueryArgs{}.WithConversationType(filter))
	if err != nil {
		return nil, wrapStorage(err)
	}
	return StreamAllMessagesWithCallback(ctx, groups, c.transport, c.processor, c.shell.LocalEvents(), c.fanIn, filter, cb), nil
}
