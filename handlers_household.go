package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/example/foodtracker/internal/invites"
	"github.com/google/uuid"
)

// householdOf loads the household the user belongs to. It writes a 400 and
// returns false when the user is not a member of any.
func (a *App) householdOf(w http.ResponseWriter, r *http.Request, user *User) (*Household, bool) {
	if user.HouseholdID == nil {
		writeError(w, http.StatusBadRequest, "NO_HOUSEHOLD", "User is not part of a household")
		return nil, false
	}
	h, err := a.Store.GetHousehold(r.Context(), *user.HouseholdID)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "household lookup failed", "household_id", *user.HouseholdID, "error", err)
		writeInternal(w, "Failed to load household")
		return nil, false
	}
	if h == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Household not found")
		return nil, false
	}
	return h, true
}

func (a *App) HandleGetHousehold(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	h, ok := a.householdOf(w, r, user)
	if !ok {
		return
	}
	writeMessage(w, http.StatusOK, h, "Household retrieved successfully")
}

func (a *App) HandleCreateHousehold(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var in struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &in, false) {
		return
	}
	if !validName(in.Name) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name must be between 1 and 100 characters")
		return
	}
	if user.HouseholdID != nil {
		writeError(w, http.StatusBadRequest, "ALREADY_IN_HOUSEHOLD", "User is already part of a household")
		return
	}

	now := a.now()
	h := &Household{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		OwnerID:   user.ID,
		Members:   []string{user.ID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.Store.CreateHousehold(r.Context(), h); err != nil {
		a.Logger.ErrorContext(r.Context(), "create household failed", "user_id", user.ID, "error", err)
		writeInternal(w, "Failed to create household")
		return
	}
	user.HouseholdID = &h.ID
	user.UpdatedAt = now
	if err := a.Store.UpdateUser(r.Context(), user); err != nil {
		a.Logger.ErrorContext(r.Context(), "attach household failed", "user_id", user.ID, "error", err)
		writeInternal(w, "Failed to create household")
		return
	}
	writeMessage(w, http.StatusCreated, h, "Household created successfully")
}

// HandleInvite records a pending invitation for an existing user. Only the
// owner may invite.
func (a *App) HandleInvite(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var in struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &in, false) {
		return
	}
	email := normalizeEmail(in.Email)
	if !validEmail(email) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid email address")
		return
	}
	h, ok := a.householdOf(w, r, user)
	if !ok {
		return
	}
	if h.OwnerID != user.ID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Only household owner can invite members")
		return
	}
	invitee, err := a.Store.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeInternal(w, "Failed to send invitation")
		return
	}
	if invitee == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if invitee.HouseholdID != nil {
		writeError(w, http.StatusBadRequest, "ALREADY_IN_HOUSEHOLD", "User is already part of a household")
		return
	}
	inv := invites.Invitation{Email: email, HouseholdID: h.ID, InvitedBy: user.ID}
	if err := a.Invites.Put(r.Context(), inv, a.InviteTTL); err != nil {
		a.Logger.ErrorContext(r.Context(), "store invitation failed", "household_id", h.ID, "error", err)
		writeInternal(w, "Failed to send invitation")
		return
	}
	a.Logger.InfoContext(r.Context(), "household invitation created", "household_id", h.ID, "invitee", invitee.ID)
	writeMessage(w, http.StatusOK, map[string]string{"household_id": h.ID, "email": email},
		fmt.Sprintf("Invitation sent to %s", email))
}

// HandleJoinHousehold accepts the caller's pending invitation.
func (a *App) HandleJoinHousehold(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var in struct {
		HouseholdID string `json:"household_id"`
	}
	if !decodeJSON(w, r, &in, false) {
		return
	}
	if in.HouseholdID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "household_id is required")
		return
	}
	if user.HouseholdID != nil {
		writeError(w, http.StatusBadRequest, "ALREADY_IN_HOUSEHOLD", "User is already part of a household")
		return
	}
	ctx := r.Context()
	h, err := a.Store.GetHousehold(ctx, in.HouseholdID)
	if err != nil {
		writeInternal(w, "Failed to join household")
		return
	}
	if h == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Household not found")
		return
	}
	inv, err := a.Invites.Get(ctx, user.Email)
	if err != nil {
		a.Logger.ErrorContext(ctx, "invitation lookup failed", "user_id", user.ID, "error", err)
		writeInternal(w, "Failed to join household")
		return
	}
	if inv == nil || inv.HouseholdID != h.ID {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "No pending invitation for this household")
		return
	}

	if !h.HasMember(user.ID) {
		h.Members = append(h.Members, user.ID)
	}
	h.UpdatedAt = a.now()
	if err := a.Store.UpdateHousehold(ctx, h); err != nil {
		writeInternal(w, "Failed to join household")
		return
	}
	user.HouseholdID = &h.ID
	user.UpdatedAt = h.UpdatedAt
	if err := a.Store.UpdateUser(ctx, user); err != nil {
		writeInternal(w, "Failed to join household")
		return
	}
	if err := a.Invites.Delete(ctx, user.Email); err != nil {
		a.Logger.WarnContext(ctx, "delete invitation failed", "user_id", user.ID, "error", err)
	}
	writeMessage(w, http.StatusOK, h, "Successfully joined household")
}

func (a *App) HandleLeaveHousehold(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	if user.HouseholdID == nil {
		writeError(w, http.StatusBadRequest, "NO_HOUSEHOLD", "User is not part of a household")
		return
	}
	if err := a.leaveHousehold(r.Context(), user); err != nil {
		a.Logger.ErrorContext(r.Context(), "leave household failed", "user_id", user.ID, "error", err)
		writeInternal(w, "Failed to leave household")
		return
	}
	writeMessage(w, http.StatusOK, nil, "Successfully left household")
}

// leaveHousehold detaches user from their household. Ownership passes to
// the first remaining member and an empty household is deleted.
func (a *App) leaveHousehold(ctx context.Context, user *User) error {
	h, err := a.Store.GetHousehold(ctx, *user.HouseholdID)
	if err != nil {
		return err
	}
	if h != nil {
		h.RemoveMember(user.ID)
		switch {
		case len(h.Members) == 0:
			if err := a.Store.DeleteHousehold(ctx, h.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("delete household: %w", err)
			}
		default:
			if h.OwnerID == user.ID {
				h.OwnerID = h.Members[0]
			}
			h.UpdatedAt = a.now()
			if err := a.Store.UpdateHousehold(ctx, h); err != nil {
				return fmt.Errorf("update household: %w", err)
			}
		}
	}
	user.HouseholdID = nil
	user.UpdatedAt = a.now()
	return a.Store.UpdateUser(ctx, user)
}

type memberView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsOwner bool   `json:"isOwner"`
}

func (a *App) HandleHouseholdMembers(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	h, ok := a.householdOf(w, r, user)
	if !ok {
		return
	}
	members := make([]memberView, 0, len(h.Members))
	for _, id := range h.Members {
		m, err := a.Store.GetUserByID(r.Context(), id)
		if err != nil {
			writeInternal(w, "Failed to load members")
			return
		}
		if m == nil {
			continue
		}
		members = append(members, memberView{ID: m.ID, Name: m.Name, Email: m.Email, IsOwner: m.ID == h.OwnerID})
	}
	writeMessage(w, http.StatusOK, members, "Household members retrieved successfully")
}
