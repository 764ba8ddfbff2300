package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type refreshRecord struct {
	expiresAt time.Time
	revoked   bool
}

// MemoryTokens keeps refresh token hashes in process. Used by tests and the in-memory server mode.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]map[string]refreshRecord
}

// NewMemoryTokens returns an empty token store.
func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[uuid.UUID]map[string]refreshRecord)}
}

func (m *MemoryTokens) StoreRefreshToken(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens[userID] == nil {
		m.tokens[userID] = make(map[string]refreshRecord)
	}
	m.tokens[userID][tokenHash] = refreshRecord{expiresAt: expiresAt}
	return nil
}

func (m *MemoryTokens) RevokeToken(_ context.Context, userID uuid.UUID, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.tokens[userID][tokenHash]; ok {
		rec.revoked = true
		m.tokens[userID][tokenHash] = rec
	}
	return nil
}

func (m *MemoryTokens) ConsumeRefreshToken(_ context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, tokens := range m.tokens {
		rec, ok := tokens[tokenHash]
		if !ok {
			continue
		}
		if rec.revoked || !now.Before(rec.expiresAt) {
			return uuid.Nil, ErrUnauthorized
		}
		rec.revoked = true
		tokens[tokenHash] = rec
		return userID, nil
	}
	return uuid.Nil, ErrUnauthorized
}

// Active reports how many unrevoked tokens the user holds.
func (m *MemoryTokens) Active(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.tokens[userID] {
		if !rec.revoked {
			n++
		}
	}
	return n
}
