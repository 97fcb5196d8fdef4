// Package invites keeps pending household invitations. An invitation is
// keyed by the invitee's email and expires after a TTL.
package invites

import (
	"context"
	"strings"
	"sync"
	"time"
)

type Invitation struct {
	Email       string    `json:"email"`
	HouseholdID string    `json:"household_id"`
	InvitedBy   string    `json:"invited_by"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store persists invitations. Get returns nil, nil when no live invitation
// exists for the email.
type Store interface {
	Put(ctx context.Context, inv Invitation, ttl time.Duration) error
	Get(ctx context.Context, email string) (*Invitation, error)
	Delete(ctx context.Context, email string) error
	Close() error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryStore is the single-process fallback used when no Redis address is
// configured.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Invitation
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Invitation{}, now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, inv Invitation, ttl time.Duration) error {
	now := m.now()
	inv.Email = normalizeEmail(inv.Email)
	inv.CreatedAt = now
	inv.ExpiresAt = now.Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[inv.Email] = inv
	return nil
}

func (m *MemoryStore) Get(_ context.Context, email string) (*Invitation, error) {
	key := normalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(inv.ExpiresAt) {
		delete(m.items, key)
		return nil, nil
	}
	return &inv, nil
}

func (m *MemoryStore) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, normalizeEmail(email))
	return nil
}

func (m *MemoryStore) Close() error { return nil }
