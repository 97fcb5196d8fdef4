package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/example/foodtracker/internal/auth"
	"github.com/google/uuid"
)

const minPasswordLength = 8

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type creds struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token        string `json:"token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user,omitempty"`
}

func genToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// registrationPreferences are stored for users who sign up locally.
// Federated users start from auth.DefaultPreferences instead.
func registrationPreferences() auth.Preferences {
	p := auth.DefaultPreferences()
	p.Theme = "light"
	return p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validName(name string) bool {
	n := len([]rune(strings.TrimSpace(name)))
	return n >= 1 && n <= 100
}

// accessClaims are the display claims embedded in every locally issued
// token. The household claim reflects membership at issue time.
func accessClaims(u *User) map[string]any {
	claims := map[string]any{"email": u.Email, "name": u.Name}
	if u.HouseholdID != nil {
		claims["household_id"] = *u.HouseholdID
	}
	return claims
}

// issueTokens mints an access token and, when withRefresh is set, a new
// refresh token for u.
func (a *App) issueTokens(r *http.Request, u *User, withRefresh bool) (*tokenResponse, error) {
	access, err := a.Local.IssueToken(u.ID, accessClaims(u), 0)
	if err != nil {
		return nil, err
	}
	resp := &tokenResponse{Token: access, TokenType: "bearer", ExpiresIn: int64(a.Local.TTL().Seconds())}
	if !withRefresh {
		return resp, nil
	}
	ref, err := genToken(32)
	if err != nil {
		return nil, err
	}
	now := a.now()
	if err := a.Store.CreateRefreshToken(r.Context(), &RefreshToken{
		Token:     ref,
		UserID:    u.ID,
		ExpiresAt: now.Add(a.RefreshTTL).Unix(),
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	resp.RefreshToken = ref
	return resp, nil
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if !decodeJSON(w, r, &in, false) {
		return
	}
	in.Email = normalizeEmail(in.Email)
	if in.Email == "" || in.Password == "" || in.Name == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email, name and password are required")
		return
	}
	if !validEmail(in.Email) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid email address")
		return
	}
	if !validName(in.Name) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name must be between 1 and 100 characters")
		return
	}
	if len(in.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Password must be at least 8 characters")
		return
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		writeInternal(w, "Failed to process password")
		return
	}
	now := a.now()
	user := &User{
		ID:          uuid.NewString(),
		Email:       in.Email,
		Name:        strings.TrimSpace(in.Name),
		Password:    hashed,
		Preferences: registrationPreferences(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.Store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, ErrConflict) {
			writeError(w, http.StatusConflict, "USER_EXISTS", "User with this email already exists")
			return
		}
		a.Logger.ErrorContext(r.Context(), "registration failed", "error", err)
		writeInternal(w, "Failed to register user")
		return
	}

	resp, err := a.issueTokens(r, user, true)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "token issue failed", "error", err)
		writeInternal(w, "Failed to issue tokens")
		return
	}
	resp.User = user
	a.Logger.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	writeMessage(w, http.StatusCreated, resp, "User registered successfully")
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c creds
	if !decodeJSON(w, r, &c, false) {
		return
	}
	user, err := a.Store.GetUserByEmail(r.Context(), normalizeEmail(c.Email))
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "login lookup failed", "error", err)
		writeInternal(w, "Failed to login")
		return
	}
	// federated accounts carry no password hash and cannot log in locally
	if user == nil || user.Password == "" || !auth.VerifyPassword(c.Password, user.Password) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}

	resp, err := a.issueTokens(r, user, true)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "token issue failed", "error", err)
		writeInternal(w, "Failed to issue tokens")
		return
	}
	resp.User = user
	writeMessage(w, http.StatusOK, resp, "Login successful")
}

// HandleRefresh rotates a refresh token supplied in the body. Without one,
// a still-valid bearer access token is exchanged for a fresh access token.
func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeJSON(w, r, &in, true) {
		return
	}
	if in.RefreshToken == "" {
		a.refreshFromBearer(w, r)
		return
	}

	row, err := a.Store.GetRefreshToken(r.Context(), in.RefreshToken)
	if err != nil {
		writeInternal(w, "Failed to refresh token")
		return
	}
	if row == nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid refresh token")
		return
	}
	if row.Revoked {
		if err := a.Store.RevokeAllRefreshTokensForUser(r.Context(), row.UserID); err != nil {
			a.Logger.ErrorContext(r.Context(), "revoke on reuse failed", "user_id", row.UserID, "error", err)
		}
		a.Logger.WarnContext(r.Context(), "refresh token reuse detected", "user_id", row.UserID)
		writeError(w, http.StatusUnauthorized, "TOKEN_REUSE_DETECTED", "Token reuse detected - all tokens revoked")
		return
	}
	if row.ExpiresAt < a.now().Unix() {
		writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Refresh token has expired")
		return
	}
	user, err := a.Store.GetUserByID(r.Context(), row.UserID)
	if err != nil {
		writeInternal(w, "Failed to refresh token")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid refresh token")
		return
	}

	// rotate
	if err := a.Store.RevokeRefreshToken(r.Context(), in.RefreshToken); err != nil {
		writeInternal(w, "Failed to refresh token")
		return
	}
	resp, err := a.issueTokens(r, user, true)
	if err != nil {
		writeInternal(w, "Failed to refresh token")
		return
	}
	writeMessage(w, http.StatusOK, resp, "Token refreshed successfully")
}

func (a *App) refreshFromBearer(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token or bearer token is required")
		return
	}
	ident, err := a.Auth.ResolveIdentity(r.Context(), token)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	user, err := a.Store.GetUserByID(r.Context(), ident.SubjectID)
	if err != nil {
		writeInternal(w, "Failed to refresh token")
		return
	}
	if user == nil {
		writeAuthError(w, auth.ErrUnauthorized)
		return
	}
	resp, err := a.issueTokens(r, user, false)
	if err != nil {
		writeInternal(w, "Failed to refresh token")
		return
	}
	writeMessage(w, http.StatusOK, resp, "Token refreshed successfully")
}

// HandleLogout revokes the supplied refresh token. Access tokens cannot be
// revoked; the client discards them.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeJSON(w, r, &in, true) {
		return
	}
	if in.RefreshToken != "" {
		if err := a.Store.RevokeRefreshToken(r.Context(), in.RefreshToken); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_TOKEN", "Token not found or already revoked")
			return
		}
	}
	writeMessage(w, http.StatusOK, map[string]bool{"revoked": in.RefreshToken != ""}, "Logout successful")
}

func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.IdentityFromContext(r.Context())
	writeMessage(w, http.StatusOK, ident, "User information retrieved successfully")
}
