package memory

import (
	"context"
	"sync"

	apperrors "github.com/convomesh/convocore/pkg/errors"
	"github.com/convomesh/convocore/pkg/streamcore"
)

// Engine is an in-memory streamcore.MLSEngine. Tests register the
// conversation a welcome id should resolve to, and can arrange for the
// first N processing attempts against a welcome id to fail, to exercise the
// welcome processor's retry-then-fallback-lookup path.
type Engine struct {
	mu            sync.Mutex
	byWelcomeID   map[int64]streamcore.Conversation
	failRemaining map[int64]int
}

// NewEngine returns an empty Engine.
func NewEngine() *Engine {
	return &Engine{
		byWelcomeID:   make(map[int64]streamcore.Conversation),
		failRemaining: make(map[int64]int),
	}
}

// Register makes CreateFromEncryptedWelcome resolve welcomeID to convo.
func (e *Engine) Register(welcomeID int64, convo streamcore.Conversation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byWelcomeID[welcomeID] = convo
}

// FailNextAttempts makes the next n calls for welcomeID return an error
// before any subsequent call succeeds via Register.
func (e *Engine) FailNextAttempts(welcomeID int64, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failRemaining[welcomeID] = n
}

func (e *Engine) CreateFromEncryptedWelcome(ctx context.Context, welcome streamcore.WelcomeEnvelope) (*streamcore.Conversation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if remaining := e.failRemaining[welcome.ID]; remaining > 0 {
		e.failRemaining[welcome.ID] = remaining - 1
		return nil, apperrors.New(apperrors.CodeUnavailable, "simulated welcome processing failure", nil)
	}

	convo, ok := e.byWelcomeID[welcome.ID]
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "unregistered welcome", nil)
	}
	return &convo, nil
}
