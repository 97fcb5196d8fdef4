package main

import (
	"net/http"
	"strings"
)

// TokenInfo is the RFC 7662 style introspection result.
type TokenInfo struct {
	Active    bool    `json:"active"`
	TokenType string  `json:"token_type,omitempty"`
	Subject   *string `json:"sub,omitempty"`
	Email     string  `json:"email,omitempty"`
	ExpiresAt *int64  `json:"exp,omitempty"`
}

// HandleTokenIntrospect reports whether a token is currently usable. Access
// tokens go through the active authenticator; anything else is looked up
// as a refresh token.
// POST /auth/introspect
func (a *App) HandleTokenIntrospect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}

	info := TokenInfo{Active: false}
	if ident, err := a.Auth.ResolveIdentity(r.Context(), req.Token); err == nil {
		info = TokenInfo{Active: true, TokenType: "access", Subject: &ident.SubjectID, Email: ident.Email}
		if a.Local != nil {
			if claims, err := a.Local.VerifyToken(req.Token); err == nil {
				if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
					unix := exp.Unix()
					info.ExpiresAt = &unix
				}
			}
		}
	} else if !strings.Contains(req.Token, ".") {
		rt, _ := a.Store.GetRefreshToken(r.Context(), req.Token)
		if rt != nil && !rt.Revoked && rt.ExpiresAt > a.now().Unix() {
			info = TokenInfo{Active: true, TokenType: "refresh", Subject: &rt.UserID, ExpiresAt: &rt.ExpiresAt}
		}
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleTokenValidate validates an access token passed as ?token= or as
// the bearer credential.
// GET /auth/validate
func (a *App) HandleTokenValidate(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr, _ = bearerToken(r)
	}
	if tokenStr == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Token is required")
		return
	}
	ident, err := a.Auth.ResolveIdentity(r.Context(), tokenStr)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"valid":  true,
		"userId": ident.SubjectID,
		"email":  ident.Email,
	})
}
