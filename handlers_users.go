package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/example/foodtracker/internal/auth"
	"github.com/example/foodtracker/internal/blob"
)

// currentUser loads the persisted user behind the request identity. In
// federated mode a first visit provisions the user from the token claims.
func (a *App) currentUser(w http.ResponseWriter, r *http.Request) (*User, bool) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeAuthError(w, auth.ErrUnauthorized)
		return nil, false
	}
	user, err := a.Store.GetUserByID(r.Context(), ident.SubjectID)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "user lookup failed", "user_id", ident.SubjectID, "error", err)
		writeInternal(w, "Failed to load user")
		return nil, false
	}
	if user != nil {
		return user, true
	}
	if !a.federated() {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return nil, false
	}
	return a.provisionUser(w, r, ident)
}

func (a *App) provisionUser(w http.ResponseWriter, r *http.Request, ident *auth.Identity) (*User, bool) {
	email := normalizeEmail(ident.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Identity has no email address")
		return nil, false
	}
	name := strings.TrimSpace(ident.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	now := a.now()
	user := &User{
		ID:          ident.SubjectID,
		Email:       email,
		Name:        name,
		Preferences: ident.Preferences,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.Store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, ErrConflict) {
			writeError(w, http.StatusConflict, "USER_EXISTS", "User with this email already exists")
			return nil, false
		}
		a.Logger.ErrorContext(r.Context(), "user provisioning failed", "user_id", ident.SubjectID, "error", err)
		writeInternal(w, "Failed to provision user")
		return nil, false
	}
	a.Logger.InfoContext(r.Context(), "provisioned federated user", "user_id", user.ID)
	return user, true
}

func (a *App) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	writeMessage(w, http.StatusOK, user, "Profile retrieved successfully")
}

type profileUpdate struct {
	Name        *string           `json:"name"`
	Preferences *auth.Preferences `json:"preferences"`
}

func (a *App) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var in profileUpdate
	if !decodeJSON(w, r, &in, false) {
		return
	}
	if in.Name != nil {
		if !validName(*in.Name) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name must be between 1 and 100 characters")
			return
		}
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Preferences != nil {
		if msg := validatePreferences(*in.Preferences); msg != "" {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", msg)
			return
		}
		user.Preferences = *in.Preferences
	}
	user.UpdatedAt = a.now()
	if err := a.Store.UpdateUser(r.Context(), user); err != nil {
		a.Logger.ErrorContext(r.Context(), "profile update failed", "user_id", user.ID, "error", err)
		writeInternal(w, "Failed to update profile")
		return
	}
	writeMessage(w, http.StatusOK, user, "Profile updated successfully")
}

// HandleDeleteProfile removes the user together with everything they own.
func (a *App) HandleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if user.HouseholdID != nil {
		if err := a.leaveHousehold(ctx, user); err != nil {
			a.Logger.ErrorContext(ctx, "leave household on delete failed", "user_id", user.ID, "error", err)
			writeInternal(w, "Failed to delete profile")
			return
		}
	}
	if err := a.Store.DeleteFoodItemsForUser(ctx, user.ID); err != nil {
		a.Logger.ErrorContext(ctx, "delete food items failed", "user_id", user.ID, "error", err)
		writeInternal(w, "Failed to delete profile")
		return
	}
	blobs, err := a.Blobs.List(ctx, user.ID+"/")
	if err != nil {
		a.Logger.WarnContext(ctx, "list blobs on delete failed", "user_id", user.ID, "error", err)
	}
	for _, b := range blobs {
		if err := a.Blobs.Delete(ctx, b.Name); err != nil && !errors.Is(err, blob.ErrNotFound) {
			a.Logger.WarnContext(ctx, "delete blob failed", "blob", b.Name, "error", err)
		}
	}
	if err := a.Store.RevokeAllRefreshTokensForUser(ctx, user.ID); err != nil {
		a.Logger.WarnContext(ctx, "revoke tokens on delete failed", "user_id", user.ID, "error", err)
	}
	if err := a.Store.DeleteUser(ctx, user.ID); err != nil {
		a.Logger.ErrorContext(ctx, "delete user failed", "user_id", user.ID, "error", err)
		writeInternal(w, "Failed to delete profile")
		return
	}
	a.Logger.InfoContext(ctx, "user deleted", "user_id", user.ID)
	writeMessage(w, http.StatusOK, nil, "Profile deleted successfully")
}

func (a *App) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	writeMessage(w, http.StatusOK, user.Preferences, "Preferences retrieved successfully")
}

type preferencesUpdate struct {
	NotificationDays *int    `json:"notificationDays"`
	Theme            *string `json:"theme"`
	Units            *string `json:"units"`
}

// HandleUpdatePreferences merges the supplied fields into the stored
// preferences; omitted fields keep their value.
func (a *App) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var in preferencesUpdate
	if !decodeJSON(w, r, &in, false) {
		return
	}
	p := user.Preferences
	if in.NotificationDays != nil {
		p.NotificationDays = *in.NotificationDays
	}
	if in.Theme != nil {
		p.Theme = *in.Theme
	}
	if in.Units != nil {
		p.Units = *in.Units
	}
	if msg := validatePreferences(p); msg != "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", msg)
		return
	}
	user.Preferences = p
	user.UpdatedAt = a.now()
	if err := a.Store.UpdateUser(r.Context(), user); err != nil {
		a.Logger.ErrorContext(r.Context(), "preferences update failed", "user_id", user.ID, "error", err)
		writeInternal(w, "Failed to update preferences")
		return
	}
	writeMessage(w, http.StatusOK, p, "Preferences updated successfully")
}

func validatePreferences(p auth.Preferences) string {
	switch {
	case p.NotificationDays < 1 || p.NotificationDays > 30:
		return "notificationDays must be between 1 and 30"
	case p.Theme != "light" && p.Theme != "dark":
		return "theme must be light or dark"
	case p.Units != "imperial" && p.Units != "metric":
		return "units must be imperial or metric"
	}
	return ""
}

type passwordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// HandleChangePassword replaces the hash and revokes every refresh token,
// signing the user out of other sessions once their access tokens lapse.
func (a *App) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var in passwordChange
	if !decodeJSON(w, r, &in, false) {
		return
	}
	if !auth.VerifyPassword(in.CurrentPassword, user.Password) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Current password is incorrect")
		return
	}
	if len(in.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Password must be at least 8 characters")
		return
	}
	hashed, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		writeInternal(w, "Failed to process password")
		return
	}
	user.Password = hashed
	user.UpdatedAt = a.now()
	if err := a.Store.UpdateUser(r.Context(), user); err != nil {
		a.Logger.ErrorContext(r.Context(), "password update failed", "user_id", user.ID, "error", err)
		writeInternal(w, "Failed to change password")
		return
	}
	if err := a.Store.RevokeAllRefreshTokensForUser(r.Context(), user.ID); err != nil {
		a.Logger.WarnContext(r.Context(), "revoke tokens after password change failed", "user_id", user.ID, "error", err)
	}
	writeMessage(w, http.StatusOK, nil, "Password changed successfully")
}
