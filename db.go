package main

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Store is the persistence contract shared by the memory, sqlite and
// postgres adapters. Getters return nil, nil when the record is missing;
// mutations of missing records return ErrNotFound.
type Store interface {
	Init(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// User operations
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error

	// Token operations
	CreateRefreshToken(ctx context.Context, t *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllRefreshTokensForUser(ctx context.Context, userID string) error

	// Household operations
	CreateHousehold(ctx context.Context, h *Household) error
	GetHousehold(ctx context.Context, id string) (*Household, error)
	UpdateHousehold(ctx context.Context, h *Household) error
	DeleteHousehold(ctx context.Context, id string) error

	// Food item operations, always scoped to the owning user
	CreateFoodItem(ctx context.Context, it *FoodItem) error
	GetFoodItem(ctx context.Context, userID, id string) (*FoodItem, error)
	ListFoodItems(ctx context.Context, userID string, f FoodFilter) ([]*FoodItem, error)
	ListFoodItemsExpiringBefore(ctx context.Context, userID string, before time.Time) ([]*FoodItem, error)
	ListFoodItemsCreatedBetween(ctx context.Context, userID string, from, to time.Time) ([]*FoodItem, error)
	UpdateFoodItem(ctx context.Context, it *FoodItem) error
	DeleteFoodItem(ctx context.Context, userID, id string) error
	DeleteFoodItemsForUser(ctx context.Context, userID string) error
}

// MemDB is the in-process Store used for development and tests.
type MemDB struct {
	mu         sync.RWMutex
	users      map[string]*User
	tokens     map[string]*RefreshToken
	households map[string]*Household
	items      map[string]*FoodItem
}

var _ Store = (*MemDB)(nil)

func NewMemoryDB() *MemDB {
	return &MemDB{
		users:      map[string]*User{},
		tokens:     map[string]*RefreshToken{},
		households: map[string]*Household{},
		items:      map[string]*FoodItem{},
	}
}

func (m *MemDB) Init(context.Context) error { return nil }
func (m *MemDB) Ping(context.Context) error { return nil }
func (m *MemDB) Close() error               { return nil }

func copyUser(u *User) *User {
	c := *u
	if u.HouseholdID != nil {
		id := *u.HouseholdID
		c.HouseholdID = &id
	}
	return &c
}

func copyHousehold(h *Household) *Household {
	c := *h
	c.Members = append([]string(nil), h.Members...)
	return &c
}

func copyItem(it *FoodItem) *FoodItem {
	c := *it
	return &c
}

func (m *MemDB) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return ErrConflict
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	m.users[u.ID] = copyUser(u)
	return nil
}

func (m *MemDB) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (m *MemDB) UpdateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range m.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	m.users[u.ID] = copyUser(u)
	return nil
}

func (m *MemDB) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	for tok, t := range m.tokens {
		if t.UserID == id {
			delete(m.tokens, tok)
		}
	}
	return nil
}

func (m *MemDB) CreateRefreshToken(_ context.Context, t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	m.tokens[t.Token] = &c
	return nil
}

func (m *MemDB) GetRefreshToken(_ context.Context, token string) (*RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tokens[token]; ok {
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (m *MemDB) RevokeRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return ErrNotFound
	}
	t.Revoked = true
	return nil
}

func (m *MemDB) RevokeAllRefreshTokensForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (m *MemDB) CreateHousehold(_ context.Context, h *Household) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.households[h.ID]; ok {
		return ErrConflict
	}
	m.households[h.ID] = copyHousehold(h)
	return nil
}

func (m *MemDB) GetHousehold(_ context.Context, id string) (*Household, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.households[id]; ok {
		return copyHousehold(h), nil
	}
	return nil, nil
}

func (m *MemDB) UpdateHousehold(_ context.Context, h *Household) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.households[h.ID]; !ok {
		return ErrNotFound
	}
	m.households[h.ID] = copyHousehold(h)
	return nil
}

func (m *MemDB) DeleteHousehold(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.households[id]; !ok {
		return ErrNotFound
	}
	delete(m.households, id)
	return nil
}

func (m *MemDB) CreateFoodItem(_ context.Context, it *FoodItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[it.ID]; ok {
		return ErrConflict
	}
	m.items[it.ID] = copyItem(it)
	return nil
}

func (m *MemDB) GetFoodItem(_ context.Context, userID, id string) (*FoodItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if it, ok := m.items[id]; ok && it.UserID == userID {
		return copyItem(it), nil
	}
	return nil, nil
}

// selectItems returns the user's items matching keep, in the given order.
func (m *MemDB) selectItems(userID string, keep func(*FoodItem) bool, less func(a, b *FoodItem) bool) []*FoodItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*FoodItem{}
	for _, it := range m.items {
		if it.UserID == userID && keep(it) {
			out = append(out, copyItem(it))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func newestFirst(a, b *FoodItem) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func soonestFirst(a, b *FoodItem) bool {
	if a.ExpirationDate.Equal(b.ExpirationDate) {
		return a.ID < b.ID
	}
	return a.ExpirationDate.Before(b.ExpirationDate)
}

func (m *MemDB) ListFoodItems(_ context.Context, userID string, f FoodFilter) ([]*FoodItem, error) {
	search := strings.ToLower(f.Search)
	items := m.selectItems(userID, func(it *FoodItem) bool {
		if f.Category != "" && it.Category != f.Category {
			return false
		}
		if f.Location != "" && it.Location != f.Location {
			return false
		}
		return search == "" || strings.Contains(strings.ToLower(it.Name), search)
	}, newestFirst)

	if f.Offset >= len(items) {
		return []*FoodItem{}, nil
	}
	items = items[f.Offset:]
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}

func (m *MemDB) ListFoodItemsExpiringBefore(_ context.Context, userID string, before time.Time) ([]*FoodItem, error) {
	return m.selectItems(userID, func(it *FoodItem) bool {
		return !it.ExpirationDate.After(before)
	}, soonestFirst), nil
}

func (m *MemDB) ListFoodItemsCreatedBetween(_ context.Context, userID string, from, to time.Time) ([]*FoodItem, error) {
	return m.selectItems(userID, func(it *FoodItem) bool {
		return !it.CreatedAt.Before(from) && it.CreatedAt.Before(to)
	}, newestFirst), nil
}

func (m *MemDB) UpdateFoodItem(_ context.Context, it *FoodItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.items[it.ID]
	if !ok || existing.UserID != it.UserID {
		return ErrNotFound
	}
	m.items[it.ID] = copyItem(it)
	return nil
}

func (m *MemDB) DeleteFoodItem(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.items[id]
	if !ok || existing.UserID != userID {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemDB) DeleteFoodItemsForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, it := range m.items {
		if it.UserID == userID {
			delete(m.items, id)
		}
	}
	return nil
}
