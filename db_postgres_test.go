package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresWithMock(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return newPostgresStore(db), mock
}

func TestRebindNumbersPlaceholders(t *testing.T) {
	pg := &sqlStore{numbered: true}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := &sqlStore{}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestPostgresCreateUserConflict(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users\(.*\)\s+VALUES\(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8\)$`).
		WithArgs("u1", "ann@example.com", "Ann", "hash", nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	u := newTestUser("u1", "ann@example.com")
	u.Name, u.Password = "Ann", "hash"
	err := p.CreateUser(context.Background(), u)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresCreateUserPassesOtherErrors(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`^INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	err := p.CreateUser(context.Background(), newTestUser("u1", "ann@example.com"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestPostgresGetUserByIDMissing(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`^SELECT\s+id,email,name,password,household_id,preferences,created_at,updated_at\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	u, err := p.GetUserByID(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestPostgresGetUserDecodesPreferences(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	rows := sqlmock.NewRows([]string{"id", "email", "name", "password", "household_id", "preferences", "created_at", "updated_at"}).
		AddRow("u1", "ann@example.com", "Ann", "", "h1", []byte(`{"notificationDays":5,"theme":"light","units":"metric"}`), storeEpoch, storeEpoch)
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("ann@example.com").
		WillReturnRows(rows)

	u, err := p.GetUserByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.NotNil(t, u.HouseholdID)
	assert.Equal(t, "h1", *u.HouseholdID)
	assert.Equal(t, 5, u.Preferences.NotificationDays)
	assert.Equal(t, "metric", u.Preferences.Units)
}

func TestPostgresRevokeMissingToken(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`^UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*\$1\s+WHERE\s+token\s*=\s*\$2$`).
		WithArgs(true, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, p.RevokeRefreshToken(context.Background(), "nope"), ErrNotFound)
}

func TestPostgresListFoodItemsFilters(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	cols := []string{"id", "user_id", "household_id", "name", "category", "purchase_date", "expiration_date",
		"quantity", "unit", "location", "notes", "barcode", "image_url", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("i1", "u1", nil, "Milk", "dairy", storeEpoch, storeEpoch.Add(48*time.Hour), 1.5, "l", "fridge", "organic", nil, nil, storeEpoch, storeEpoch)
	mock.ExpectQuery(`(?s)FROM\s+food_items\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+category\s*=\s*\$2\s+AND\s+LOWER\(name\)\s+LIKE\s+\$3\s+ESCAPE\s+'\\'\s+ORDER\s+BY\s+created_at\s+DESC,\s+id\s+ASC\s+LIMIT\s+\$4\s+OFFSET\s+\$5$`).
		WithArgs("u1", "dairy", "%milk%", 21, 20).
		WillReturnRows(rows)

	items, err := p.ListFoodItems(context.Background(), "u1", FoodFilter{Category: "dairy", Search: "Milk", Offset: 20, Limit: 21})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].HouseholdID)
	require.NotNil(t, items[0].Notes)
	assert.Equal(t, "organic", *items[0].Notes)
	assert.InDelta(t, 1.5, items[0].Quantity, 1e-9)
}

func TestPostgresDeleteUserRemovesTokensFirst(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectExec(`^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1$`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`^DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.DeleteUser(context.Background(), "u1"))
}
