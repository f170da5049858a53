// Package memory provides in-memory test doubles for every streamcore
// collaborator interface, usable both in tests and as a local/dev-only
// backend with no external dependencies.
package memory

import (
	"context"
	"sync"

	"github.com/convomesh/convocore/pkg/streamcore"
)

// Storage is an in-memory streamcore.Storage.
type Storage struct {
	mu        sync.Mutex
	groups    []streamcore.StoredGroup
	byWelcome map[int64]streamcore.StoredGroup
}

// NewStorage returns an empty Storage.
func NewStorage() *Storage {
	return &Storage{byWelcome: make(map[int64]streamcore.StoredGroup)}
}

// PutGroup records g directly, as if it had already been persisted by some
// prior operation. Used by tests to seed a known group set.
func (s *Storage) PutGroup(g streamcore.StoredGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, g)
	if g.WelcomeID != nil {
		s.byWelcome[*g.WelcomeID] = g
	}
}

func (s *Storage) FindGroupByWelcomeID(ctx context.Context, welcomeID int64) (*streamcore.StoredGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.byWelcome[welcomeID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *Storage) FindGroups(ctx context.Context, args streamcore.GroupQueryArgs) ([]streamcore.StoredGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []streamcore.StoredGroup
	for _, g := range s.groups {
		if args.ConversationType != nil && *args.ConversationType != g.ConversationType {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Storage) TransactionAsync(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
