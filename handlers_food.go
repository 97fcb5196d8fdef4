package main

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/foodtracker/internal/auth"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// foodItemInput is the create/update body. Update treats nil fields as
// unchanged.
type foodItemInput struct {
	Name           *string  `json:"name"`
	Category       *string  `json:"category"`
	PurchaseDate   *string  `json:"purchase_date"`
	ExpirationDate *string  `json:"expiration_date"`
	Quantity       *float64 `json:"quantity"`
	Unit           *string  `json:"unit"`
	Location       *string  `json:"location"`
	Notes          *string  `json:"notes"`
	Barcode        *string  `json:"barcode"`
	ImageURL       *string  `json:"image_url"`
}

// parseDate accepts RFC 3339 timestamps and bare YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// positiveFinite reports whether f can be stored as a quantity.
func positiveFinite(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}

func lengthBetween(s string, lo, hi int) bool {
	n := len([]rune(s))
	return n >= lo && n <= hi
}

// apply copies the set fields onto it and validates the result.
func (in *foodItemInput) apply(it *FoodItem) error {
	if in.Name != nil {
		it.Name = strings.TrimSpace(*in.Name)
	}
	if in.Category != nil {
		it.Category = *in.Category
	}
	if in.PurchaseDate != nil {
		t, err := parseDate(*in.PurchaseDate)
		if err != nil {
			return fmt.Errorf("purchase_date: %w", err)
		}
		it.PurchaseDate = t
	}
	if in.ExpirationDate != nil {
		t, err := parseDate(*in.ExpirationDate)
		if err != nil {
			return fmt.Errorf("expiration_date: %w", err)
		}
		it.ExpirationDate = t
	}
	if in.Quantity != nil {
		it.Quantity = *in.Quantity
	}
	if in.Unit != nil {
		it.Unit = strings.TrimSpace(*in.Unit)
	}
	if in.Location != nil {
		it.Location = *in.Location
	}
	if in.Notes != nil {
		it.Notes = in.Notes
	}
	if in.Barcode != nil {
		it.Barcode = in.Barcode
	}
	if in.ImageURL != nil {
		it.ImageURL = in.ImageURL
	}

	switch {
	case !lengthBetween(it.Name, 1, 100):
		return errors.New("name must be between 1 and 100 characters")
	case !foodCategories[it.Category]:
		return fmt.Errorf("invalid category %q", it.Category)
	case !storageLocations[it.Location]:
		return fmt.Errorf("invalid location %q", it.Location)
	case it.PurchaseDate.IsZero() || it.ExpirationDate.IsZero():
		return errors.New("purchase_date and expiration_date are required")
	case !positiveFinite(it.Quantity):
		return errors.New("quantity must be greater than 0")
	case !lengthBetween(it.Unit, 1, 20):
		return errors.New("unit must be between 1 and 20 characters")
	case it.Notes != nil && len([]rune(*it.Notes)) > 500:
		return errors.New("notes must be at most 500 characters")
	case it.Barcode != nil && len([]rune(*it.Barcode)) > 50:
		return errors.New("barcode must be at most 50 characters")
	}
	return nil
}

func subjectOf(r *http.Request) string {
	ident, _ := auth.IdentityFromContext(r.Context())
	return ident.SubjectID
}

// intQuery parses an integer query parameter within [lo, hi], returning def
// when it is absent.
func intQuery(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}

func (a *App) HandleListFoodItems(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1, 1, 1<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	limit, err := intQuery(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	q := r.URL.Query()
	f := FoodFilter{
		Category: q.Get("category"),
		Location: q.Get("location"),
		Search:   q.Get("search"),
		Offset:   (page - 1) * limit,
		Limit:    limit + 1,
	}
	items, err := a.Store.ListFoodItems(r.Context(), subjectOf(r), f)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "list food items failed", "error", err)
		writeInternal(w, "Failed to get food items")
		return
	}
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	if items == nil {
		items = []*FoodItem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"data":     items,
		"total":    len(items),
		"page":     page,
		"limit":    limit,
		"has_more": hasMore,
	})
}

func (a *App) HandleCreateFoodItem(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var in foodItemInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	now := a.now().UTC()
	it := &FoodItem{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		HouseholdID: user.HouseholdID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := in.apply(it); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if err := a.Store.CreateFoodItem(r.Context(), it); err != nil {
		a.Logger.ErrorContext(r.Context(), "create food item failed", "error", err)
		writeInternal(w, "Failed to create food item")
		return
	}
	writeMessage(w, http.StatusCreated, it, "Food item created successfully")
}

// loadItem fetches the path item owned by the caller, writing a 404 when
// it does not exist or belongs to someone else.
func (a *App) loadItem(w http.ResponseWriter, r *http.Request) (*FoodItem, bool) {
	it, err := a.Store.GetFoodItem(r.Context(), subjectOf(r), mux.Vars(r)["id"])
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "get food item failed", "error", err)
		writeInternal(w, "Failed to get food item")
		return nil, false
	}
	if it == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Food item not found")
		return nil, false
	}
	return it, true
}

func (a *App) HandleGetFoodItem(w http.ResponseWriter, r *http.Request) {
	it, ok := a.loadItem(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, it)
}

func (a *App) HandleUpdateFoodItem(w http.ResponseWriter, r *http.Request) {
	it, ok := a.loadItem(w, r)
	if !ok {
		return
	}
	var in foodItemInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	if err := in.apply(it); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	it.UpdatedAt = a.now().UTC()
	if err := a.Store.UpdateFoodItem(r.Context(), it); err != nil {
		a.Logger.ErrorContext(r.Context(), "update food item failed", "item_id", it.ID, "error", err)
		writeInternal(w, "Failed to update food item")
		return
	}
	writeMessage(w, http.StatusOK, it, "Food item updated successfully")
}

func (a *App) HandleDeleteFoodItem(w http.ResponseWriter, r *http.Request) {
	err := a.Store.DeleteFoodItem(r.Context(), subjectOf(r), mux.Vars(r)["id"])
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Food item not found")
		return
	}
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "delete food item failed", "error", err)
		writeInternal(w, "Failed to delete food item")
		return
	}
	writeMessage(w, http.StatusOK, nil, "Food item deleted successfully")
}

// HandleExpiringFoodItems lists items expiring within the next days days,
// already-expired items included, soonest first.
func (a *App) HandleExpiringFoodItems(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", 7, 1, 30)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	threshold := a.now().UTC().AddDate(0, 0, days)
	items, err := a.Store.ListFoodItemsExpiringBefore(r.Context(), subjectOf(r), threshold)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "list expiring items failed", "error", err)
		writeInternal(w, "Failed to get expiring items")
		return
	}
	if items == nil {
		items = []*FoodItem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    items,
		"days":    days,
	})
}

// HandleConsumeFoodItem reduces the quantity, deleting the item once it is
// fully consumed.
func (a *App) HandleConsumeFoodItem(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.ParseFloat(r.URL.Query().Get("quantity"), 64)
	if err != nil || !positiveFinite(qty) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "quantity must be greater than 0")
		return
	}
	it, ok := a.loadItem(w, r)
	if !ok {
		return
	}
	if qty >= it.Quantity {
		if err := a.Store.DeleteFoodItem(r.Context(), it.UserID, it.ID); err != nil {
			writeInternal(w, "Failed to consume food item")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Food item fully consumed",
		})
		return
	}
	it.Quantity -= qty
	it.UpdatedAt = a.now().UTC()
	if err := a.Store.UpdateFoodItem(r.Context(), it); err != nil {
		writeInternal(w, "Failed to consume food item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   fmt.Sprintf("Consumed %s %s", strconv.FormatFloat(qty, 'f', -1, 64), it.Unit),
		"remaining": it.Quantity,
	})
}
