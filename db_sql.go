package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/foodtracker/internal/auth"
)

// sqlStore implements Store over database/sql. Queries are written with ?
// placeholders and rebound for drivers that number their parameters.
type sqlStore struct {
	db              *sql.DB
	numbered        bool
	uniqueViolation func(error) bool
}

func (s *sqlStore) rebind(q string) string {
	if !s.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

func (s *sqlStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(q), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(q), args...)
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqlStore) Close() error                   { return s.db.Close() }

// mustAffect maps a zero-row mutation onto ErrNotFound.
func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) conflictOr(err error) error {
	if err != nil && s.uniqueViolation != nil && s.uniqueViolation(err) {
		return ErrConflict
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id,email,name,password,household_id,preferences,created_at,updated_at`

func scanUser(row rowScanner) (*User, error) {
	var u User
	var household sql.NullString
	var prefs []byte
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Password, &household, &prefs, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if household.Valid {
		u.HouseholdID = &household.String
	}
	u.Preferences = auth.DefaultPreferences()
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return &u, nil
}

func encodePreferences(p auth.Preferences) (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

func (s *sqlStore) CreateUser(ctx context.Context, u *User) error {
	prefs, err := encodePreferences(u.Preferences)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.Name, u.Password, u.HouseholdID, prefs, u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	return s.conflictOr(err)
}

func (s *sqlStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *sqlStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (s *sqlStore) UpdateUser(ctx context.Context, u *User) error {
	prefs, err := encodePreferences(u.Preferences)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE users SET email = ?, name = ?, password = ?, household_id = ?, preferences = ?, updated_at = ? WHERE id = ?`,
		u.Email, u.Name, u.Password, u.HouseholdID, prefs, u.UpdatedAt.UTC(), u.ID)
	return mustAffect(res, s.conflictOr(err))
}

func (s *sqlStore) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, id); err != nil {
		return err
	}
	return mustAffect(s.exec(ctx, `DELETE FROM users WHERE id = ?`, id))
}

func (s *sqlStore) CreateRefreshToken(ctx context.Context, t *RefreshToken) error {
	_, err := s.exec(ctx, `INSERT INTO refresh_tokens(token,user_id,expires_at,revoked,created_at) VALUES(?,?,?,?,?)`,
		t.Token, t.UserID, t.ExpiresAt, t.Revoked, t.CreatedAt.UTC())
	return s.conflictOr(err)
}

func (s *sqlStore) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	row := s.queryRow(ctx, `SELECT token,user_id,expires_at,revoked,created_at FROM refresh_tokens WHERE token = ?`, token)
	var t RefreshToken
	if err := row.Scan(&t.Token, &t.UserID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *sqlStore) RevokeRefreshToken(ctx context.Context, token string) error {
	return mustAffect(s.exec(ctx, `UPDATE refresh_tokens SET revoked = ? WHERE token = ?`, true, token))
}

func (s *sqlStore) RevokeAllRefreshTokensForUser(ctx context.Context, userID string) error {
	_, err := s.exec(ctx, `UPDATE refresh_tokens SET revoked = ? WHERE user_id = ?`, true, userID)
	return err
}

const householdColumns = `id,name,owner_id,members,created_at,updated_at`

func (s *sqlStore) CreateHousehold(ctx context.Context, h *Household) error {
	members, err := json.Marshal(h.Members)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO households(`+householdColumns+`) VALUES(?,?,?,?,?,?)`,
		h.ID, h.Name, h.OwnerID, string(members), h.CreatedAt.UTC(), h.UpdatedAt.UTC())
	return s.conflictOr(err)
}

func (s *sqlStore) GetHousehold(ctx context.Context, id string) (*Household, error) {
	row := s.queryRow(ctx, `SELECT `+householdColumns+` FROM households WHERE id = ?`, id)
	var h Household
	var members []byte
	if err := row.Scan(&h.ID, &h.Name, &h.OwnerID, &members, &h.CreatedAt, &h.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(members, &h.Members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return &h, nil
}

func (s *sqlStore) UpdateHousehold(ctx context.Context, h *Household) error {
	members, err := json.Marshal(h.Members)
	if err != nil {
		return err
	}
	return mustAffect(s.exec(ctx, `UPDATE households SET name = ?, owner_id = ?, members = ?, updated_at = ? WHERE id = ?`,
		h.Name, h.OwnerID, string(members), h.UpdatedAt.UTC(), h.ID))
}

func (s *sqlStore) DeleteHousehold(ctx context.Context, id string) error {
	return mustAffect(s.exec(ctx, `DELETE FROM households WHERE id = ?`, id))
}

const foodColumns = `id,user_id,household_id,name,category,purchase_date,expiration_date,quantity,unit,location,notes,barcode,image_url,created_at,updated_at`

func scanFoodItem(row rowScanner) (*FoodItem, error) {
	var it FoodItem
	var household, notes, barcode, image sql.NullString
	if err := row.Scan(&it.ID, &it.UserID, &household, &it.Name, &it.Category, &it.PurchaseDate, &it.ExpirationDate,
		&it.Quantity, &it.Unit, &it.Location, &notes, &barcode, &image, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.HouseholdID = nullable(household)
	it.Notes = nullable(notes)
	it.Barcode = nullable(barcode)
	it.ImageURL = nullable(image)
	return &it, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func (s *sqlStore) scanFoodItems(rows *sql.Rows, err error) ([]*FoodItem, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*FoodItem{}
	for rows.Next() {
		it, err := scanFoodItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *sqlStore) CreateFoodItem(ctx context.Context, it *FoodItem) error {
	_, err := s.exec(ctx, `INSERT INTO food_items(`+foodColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.UserID, it.HouseholdID, it.Name, it.Category, it.PurchaseDate.UTC(), it.ExpirationDate.UTC(),
		it.Quantity, it.Unit, it.Location, it.Notes, it.Barcode, it.ImageURL, it.CreatedAt.UTC(), it.UpdatedAt.UTC())
	return s.conflictOr(err)
}

func (s *sqlStore) GetFoodItem(ctx context.Context, userID, id string) (*FoodItem, error) {
	it, err := scanFoodItem(s.queryRow(ctx, `SELECT `+foodColumns+` FROM food_items WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

// likeEscaper makes a search term match literally inside LIKE.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (s *sqlStore) ListFoodItems(ctx context.Context, userID string, f FoodFilter) ([]*FoodItem, error) {
	q := `SELECT ` + foodColumns + ` FROM food_items WHERE user_id = ?`
	args := []any{userID}
	if f.Category != "" {
		q += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Location != "" {
		q += ` AND location = ?`
		args = append(args, f.Location)
	}
	if f.Search != "" {
		q += ` AND LOWER(name) LIKE ? ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(f.Search))+"%")
	}
	q += ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	return s.scanFoodItems(s.query(ctx, q, args...))
}

func (s *sqlStore) ListFoodItemsExpiringBefore(ctx context.Context, userID string, before time.Time) ([]*FoodItem, error) {
	return s.scanFoodItems(s.query(ctx, `SELECT `+foodColumns+` FROM food_items WHERE user_id = ? AND expiration_date <= ? ORDER BY expiration_date ASC, id ASC`,
		userID, before.UTC()))
}

func (s *sqlStore) ListFoodItemsCreatedBetween(ctx context.Context, userID string, from, to time.Time) ([]*FoodItem, error) {
	return s.scanFoodItems(s.query(ctx, `SELECT `+foodColumns+` FROM food_items WHERE user_id = ? AND created_at >= ? AND created_at < ? ORDER BY created_at DESC, id ASC`,
		userID, from.UTC(), to.UTC()))
}

func (s *sqlStore) UpdateFoodItem(ctx context.Context, it *FoodItem) error {
	return mustAffect(s.exec(ctx, `UPDATE food_items SET household_id = ?, name = ?, category = ?, purchase_date = ?, expiration_date = ?, quantity = ?, unit = ?, location = ?, notes = ?, barcode = ?, image_url = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		it.HouseholdID, it.Name, it.Category, it.PurchaseDate.UTC(), it.ExpirationDate.UTC(), it.Quantity, it.Unit, it.Location,
		it.Notes, it.Barcode, it.ImageURL, it.UpdatedAt.UTC(), it.ID, it.UserID))
}

func (s *sqlStore) DeleteFoodItem(ctx context.Context, userID, id string) error {
	return mustAffect(s.exec(ctx, `DELETE FROM food_items WHERE id = ? AND user_id = ?`, id, userID))
}

func (s *sqlStore) DeleteFoodItemsForUser(ctx context.Context, userID string) error {
	_, err := s.exec(ctx, `DELETE FROM food_items WHERE user_id = ?`, userID)
	return err
}
