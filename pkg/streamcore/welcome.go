package streamcore

import (
	"context"

	"github.com/convomesh/convocore/pkg/resilience"
)

// Storage is the persistence collaborator the streaming core reads through.
// Implementations live under adapters/.
type Storage interface {
	// FindGroupByWelcomeID looks up a conversation that was already created
	// from the given welcome id. A nil, nil return means not found.
	FindGroupByWelcomeID(ctx context.Context, welcomeID int64) (*StoredGroup, error)

	// FindGroups lists stored conversations matching args.
	FindGroups(ctx context.Context, args GroupQueryArgs) ([]StoredGroup, error)

	// TransactionAsync runs fn inside a storage transaction.
	TransactionAsync(ctx context.Context, fn func(ctx context.Context) error) error
}

// MLSEngine is the cryptographic collaborator that turns a welcome envelope
// into a joined conversation.
type MLSEngine interface {
	// CreateFromEncryptedWelcome decrypts and processes a welcome, creating
	// (or joining) the conversation it describes.
	CreateFromEncryptedWelcome(ctx context.Context, welcome WelcomeEnvelope) (*Conversation, error)
}

// WelcomeProcessor turns welcome envelopes into conversations, with the
// retry-then-fallback-lookup behavior needed because welcome processing is
// not naturally idempotent: a welcome can be delivered more than once, and
// a retried attempt can race a previous one that already succeeded.
type WelcomeProcessor struct {
	engine  MLSEngine
	storage Storage
	retry   resilience.RetryConfig
}

// NewWelcomeProcessor builds a WelcomeProcessor. A zero retry value is
// replaced with resilience.DefaultRetryConfig.
func NewWelcomeProcessor(engine MLSEngine, storage Storage, retry resilience.RetryConfig) *WelcomeProcessor {
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	return &WelcomeProcessor{engine: engine, storage: storage, retry: retry}
}

// ProcessStreamedWelcome processes one welcome envelope. Each attempt runs
// CreateFromEncryptedWelcome inside its own storage transaction (so a
// partially-applied welcome never stays visible), and the whole
// transactional attempt is retried under p.retry; if every attempt fails, it
// checks storage for a conversation already recorded against this welcome
// id before giving up, since the failure may simply mean a concurrent
// attempt already won.
func (p *WelcomeProcessor) ProcessStreamedWelcome(ctx context.Context, welcome WelcomeEnvelope) Result[Conversation] {
	var convo *Conversation
	createErr := resilience.Retry(ctx, p.retry, func(ctx context.Context) error {
		return p.storage.TransactionAsync(ctx, func(ctx context.Context) error {
			c, err := p.engine.CreateFromEncryptedWelcome(ctx, welcome)
			if err != nil {
				return err
			}
			convo = c
			return nil
		})
	})
	if createErr == nil {
		return Ok(*convo)
	}

	stored, lookupErr := p.storage.FindGroupByWelcomeID(ctx, welcome.ID)
	if lookupErr != nil {
		return Err[Conversation](wrapStorage(lookupErr))
	}
	if stored == nil {
		return Err[Conversation](wrapGroup(createErr))
	}
	return Ok(Conversation{
		GroupID:          stored.GroupID,
		CreatedAtNS:      stored.CreatedAtNS,
		ConversationType: stored.ConversationType,
	})
}
