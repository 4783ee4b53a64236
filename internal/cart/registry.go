package cart

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"cutiecart/internal/storage"
)

// DefaultMaxSessions bounds how many session Stores a Registry keeps.
const DefaultMaxSessions = 10000

// Registry hands out one Store per shopper session so that every request for a
// session shares the Store's lock. The least recently used Store is dropped when
// the registry is full; its data stays in storage.
type Registry struct {
	base   storage.Storage
	logger *slog.Logger
	stores *lru.Cache[string, *Store]
}

// NewRegistry creates a registry over base. Each session's Store persists to
// storage.Namespace(base, sessionID). maxSessions <= 0 uses DefaultMaxSessions.
func NewRegistry(base storage.Storage, logger *slog.Logger, maxSessions int) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	// lru.New only fails for a non-positive size.
	stores, _ := lru.New[string, *Store](maxSessions)
	return &Registry{base: base, logger: logger, stores: stores}
}

// For returns the session's Store, creating it on first use. Concurrent first
// calls for the same session get the same Store.
func (r *Registry) For(sessionID string) *Store {
	if s, ok := r.stores.Get(sessionID); ok {
		return s
	}
	s := New(storage.Namespace(r.base, sessionID), r.logger)
	if prev, ok, _ := r.stores.PeekOrAdd(sessionID, s); ok {
		return prev
	}
	return s
}

// Len returns the number of sessions with a live Store.
func (r *Registry) Len() int {
	return r.stores.Len()
}
