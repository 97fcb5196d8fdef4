package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/foodtracker/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeEpoch = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newTestUser(id, email string) *User {
	return &User{
		ID:          id,
		Email:       email,
		Name:        "User " + id,
		Password:    "hash-" + id,
		Preferences: auth.DefaultPreferences(),
		CreatedAt:   storeEpoch,
		UpdatedAt:   storeEpoch,
	}
}

func newTestItem(id, userID, name string, created, expires time.Time) *FoodItem {
	return &FoodItem{
		ID:             id,
		UserID:         userID,
		Name:           name,
		Category:       "dairy",
		PurchaseDate:   created,
		ExpirationDate: expires,
		Quantity:       2,
		Unit:           "l",
		Location:       "fridge",
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func ids(items []*FoodItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

// testStoreConformance runs the behaviour every Store adapter must share.
func testStoreConformance(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		s := open(t)
		u := newTestUser("u1", "ann@example.com")
		require.NoError(t, s.CreateUser(ctx, u))
		assert.ErrorIs(t, s.CreateUser(ctx, newTestUser("u2", "ann@example.com")), ErrConflict)

		got, err := s.GetUserByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "u1", got.ID)
		assert.Equal(t, "hash-u1", got.Password)
		assert.Equal(t, auth.DefaultPreferences(), got.Preferences)
		assert.True(t, storeEpoch.Equal(got.CreatedAt))

		missing, err := s.GetUserByID(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, missing)

		got.Name = "Ann"
		got.HouseholdID = strPtr("h1")
		got.Preferences.Theme = "light"
		require.NoError(t, s.UpdateUser(ctx, got))
		again, err := s.GetUserByID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ann", again.Name)
		require.NotNil(t, again.HouseholdID)
		assert.Equal(t, "h1", *again.HouseholdID)
		assert.Equal(t, "light", again.Preferences.Theme)

		assert.ErrorIs(t, s.UpdateUser(ctx, newTestUser("ghost", "ghost@example.com")), ErrNotFound)
		require.NoError(t, s.DeleteUser(ctx, "u1"))
		assert.ErrorIs(t, s.DeleteUser(ctx, "u1"), ErrNotFound)
	})

	t.Run("refresh tokens", func(t *testing.T) {
		s := open(t)
		exp := storeEpoch.Add(time.Hour).Unix()
		for _, tok := range []string{"t1", "t2"} {
			require.NoError(t, s.CreateRefreshToken(ctx, &RefreshToken{Token: tok, UserID: "u1", ExpiresAt: exp, CreatedAt: storeEpoch}))
		}
		rt, err := s.GetRefreshToken(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, rt)
		assert.Equal(t, exp, rt.ExpiresAt)
		assert.False(t, rt.Revoked)

		require.NoError(t, s.RevokeRefreshToken(ctx, "t1"))
		rt, err = s.GetRefreshToken(ctx, "t1")
		require.NoError(t, err)
		assert.True(t, rt.Revoked)
		assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "nope"), ErrNotFound)

		require.NoError(t, s.RevokeAllRefreshTokensForUser(ctx, "u1"))
		rt, err = s.GetRefreshToken(ctx, "t2")
		require.NoError(t, err)
		assert.True(t, rt.Revoked)

		none, err := s.GetRefreshToken(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("households", func(t *testing.T) {
		s := open(t)
		h := &Household{ID: "h1", Name: "Home", OwnerID: "u1", Members: []string{"u1"}, CreatedAt: storeEpoch, UpdatedAt: storeEpoch}
		require.NoError(t, s.CreateHousehold(ctx, h))

		h.Members = append(h.Members, "u2")
		h.OwnerID = "u2"
		require.NoError(t, s.UpdateHousehold(ctx, h))
		got, err := s.GetHousehold(ctx, "h1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, []string{"u1", "u2"}, got.Members)
		assert.Equal(t, "u2", got.OwnerID)

		require.NoError(t, s.DeleteHousehold(ctx, "h1"))
		got, err = s.GetHousehold(ctx, "h1")
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.ErrorIs(t, s.DeleteHousehold(ctx, "h1"), ErrNotFound)
	})

	t.Run("food item search is literal", func(t *testing.T) {
		s := open(t)
		juice := newTestItem("j1", "u1", "100% Juice", storeEpoch, storeEpoch)
		water := newTestItem("j2", "u1", "1000 ml Water", storeEpoch.Add(time.Minute), storeEpoch)
		snack := newTestItem("j3", "u1", "snack_bar", storeEpoch.Add(2*time.Minute), storeEpoch)
		jerky := newTestItem("j4", "u1", "snackxbar", storeEpoch.Add(3*time.Minute), storeEpoch)
		jam := newTestItem("j5", "u1", `jam\jelly`, storeEpoch.Add(4*time.Minute), storeEpoch)
		for _, it := range []*FoodItem{juice, water, snack, jerky, jam} {
			require.NoError(t, s.CreateFoodItem(ctx, it))
		}

		for search, want := range map[string][]string{
			"100%":  {"j1"},
			"k_b":   {"j3"},
			`m\j`:   {"j5"},
			"%":     {"j1"},
			"_":     {"j3"},
			"snack": {"j4", "j3"},
			"JUICE": {"j1"},
		} {
			got, err := s.ListFoodItems(ctx, "u1", FoodFilter{Search: search})
			require.NoError(t, err)
			assert.Equal(t, want, ids(got), "search %q", search)
		}
	})

	t.Run("food items", func(t *testing.T) {
		s := open(t)
		day := 24 * time.Hour
		milk := newTestItem("i1", "u1", "Whole Milk", storeEpoch, storeEpoch.Add(2*day))
		milk.Notes = strPtr("organic")
		cheese := newTestItem("i2", "u1", "Cheddar", storeEpoch.Add(time.Hour), storeEpoch.Add(10*day))
		cheese.Category = "dairy"
		cheese.Location = "pantry"
		apples := newTestItem("i3", "u1", "Apples", storeEpoch.Add(2*time.Hour), storeEpoch.Add(-day))
		apples.Category = "produce"
		other := newTestItem("i4", "u2", "Milk", storeEpoch, storeEpoch.Add(day))
		for _, it := range []*FoodItem{milk, cheese, apples, other} {
			require.NoError(t, s.CreateFoodItem(ctx, it))
		}

		got, err := s.GetFoodItem(ctx, "u1", "i1")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.Notes)
		assert.Equal(t, "organic", *got.Notes)
		assert.Nil(t, got.Barcode)
		assert.True(t, milk.ExpirationDate.Equal(got.ExpirationDate))

		foreign, err := s.GetFoodItem(ctx, "u2", "i1")
		require.NoError(t, err)
		assert.Nil(t, foreign, "items are scoped to their owner")

		all, err := s.ListFoodItems(ctx, "u1", FoodFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"i3", "i2", "i1"}, ids(all))

		page, err := s.ListFoodItems(ctx, "u1", FoodFilter{Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"i2"}, ids(page))

		dairy, err := s.ListFoodItems(ctx, "u1", FoodFilter{Category: "dairy", Location: "fridge"})
		require.NoError(t, err)
		assert.Equal(t, []string{"i1"}, ids(dairy))

		search, err := s.ListFoodItems(ctx, "u1", FoodFilter{Search: "MILK"})
		require.NoError(t, err)
		assert.Equal(t, []string{"i1"}, ids(search))

		expiring, err := s.ListFoodItemsExpiringBefore(ctx, "u1", storeEpoch.Add(2*day))
		require.NoError(t, err)
		assert.Equal(t, []string{"i3", "i1"}, ids(expiring), "soonest first, bound inclusive")

		created, err := s.ListFoodItemsCreatedBetween(ctx, "u1", storeEpoch, storeEpoch.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"i2", "i1"}, ids(created), "upper bound exclusive")

		got.Quantity = 0.5
		require.NoError(t, s.UpdateFoodItem(ctx, got))
		got, err = s.GetFoodItem(ctx, "u1", "i1")
		require.NoError(t, err)
		assert.InDelta(t, 0.5, got.Quantity, 1e-9)

		assert.ErrorIs(t, s.DeleteFoodItem(ctx, "u2", "i1"), ErrNotFound)
		require.NoError(t, s.DeleteFoodItem(ctx, "u1", "i1"))
		require.NoError(t, s.DeleteFoodItemsForUser(ctx, "u1"))
		left, err := s.ListFoodItems(ctx, "u1", FoodFilter{})
		require.NoError(t, err)
		assert.Empty(t, left)
		theirs, err := s.ListFoodItems(ctx, "u2", FoodFilter{})
		require.NoError(t, err)
		assert.Len(t, theirs, 1)
	})
}

func TestMemDBConformance(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store { return NewMemoryDB() })
}

func TestSQLiteDBConformance(t *testing.T) {
	testStoreConformance(t, func(t *testing.T) Store {
		s, err := NewSQLiteDB(context.Background(), filepath.Join(t.TempDir(), "data", "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemDBReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryDB()
	require.NoError(t, m.CreateHousehold(ctx, &Household{ID: "h1", OwnerID: "u1", Members: []string{"u1"}}))

	h, err := m.GetHousehold(ctx, "h1")
	require.NoError(t, err)
	h.Members[0] = "mutated"

	again, err := m.GetHousehold(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, again.Members)
}

func TestHouseholdRemoveMember(t *testing.T) {
	h := &Household{Members: []string{"a", "b", "c"}}
	h.RemoveMember("b")
	assert.Equal(t, []string{"a", "c"}, h.Members)
	assert.False(t, h.HasMember("b"))
	assert.True(t, h.HasMember("c"))
}
