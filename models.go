package main

import (
	"time"

	"github.com/example/foodtracker/internal/auth"
)

// User represents a user in the system. Password is empty for users
// provisioned from a federated identity.
type User struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	Password    string           `json:"-"`
	HouseholdID *string          `json:"household_id"`
	Preferences auth.Preferences `json:"preferences"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// RefreshToken represents a refresh token
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt int64
	Revoked   bool
	CreatedAt time.Time
}

// Household groups users sharing a pantry. Members keeps join order; the
// first remaining member inherits ownership when the owner leaves.
type Household struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *Household) HasMember(userID string) bool {
	for _, m := range h.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (h *Household) RemoveMember(userID string) {
	out := h.Members[:0]
	for _, m := range h.Members {
		if m != userID {
			out = append(out, m)
		}
	}
	h.Members = out
}

type FoodItem struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	HouseholdID    *string   `json:"household_id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	PurchaseDate   time.Time `json:"purchase_date"`
	ExpirationDate time.Time `json:"expiration_date"`
	Quantity       float64   `json:"quantity"`
	Unit           string    `json:"unit"`
	Location       string    `json:"location"`
	Notes          *string   `json:"notes"`
	Barcode        *string   `json:"barcode"`
	ImageURL       *string   `json:"image_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FoodFilter narrows a food item listing. Search matches a case-insensitive
// substring of the name.
type FoodFilter struct {
	Category string
	Location string
	Search   string
	Offset   int
	Limit    int
}

var (
	foodCategories = map[string]bool{
		"dairy": true, "meat": true, "produce": true, "pantry": true, "frozen": true,
		"beverages": true, "snacks": true, "condiments": true, "other": true,
	}
	storageLocations = map[string]bool{
		"fridge": true, "freezer": true, "pantry": true, "counter": true,
	}
)
