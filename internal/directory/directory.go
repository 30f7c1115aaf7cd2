// Package directory resolves user ids to display names for audit reports.
package directory

import (
	"context"
	"strings"
	"sync"

	id "schooladmin/pkg/domain"
)

// Resolver turns user ids into display names in one batch. Unknown ids are
// absent from the result.
type Resolver interface {
	ResolveNames(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error)
}

// DisplayName joins first and last name, dropping empty parts.
func DisplayName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// Static is an in-memory directory, used when no database is configured.
type Static struct {
	mu    sync.RWMutex
	names map[id.UserID]string
}

func NewStatic() *Static {
	return &Static{names: make(map[id.UserID]string)}
}

// Add registers a user under first and last name.
func (s *Static) Add(user id.UserID, first, last string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[user] = DisplayName(first, last)
}

func (s *Static) ResolveNames(_ context.Context, ids []id.UserID) (map[id.UserID]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.UserID]string, len(ids))
	for _, u := range ids {
		if name, ok := s.names[u]; ok && name != "" {
			out[u] = name
		}
	}
	return out, nil
}
