package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newLocal(t *testing.T, secret string) (*LocalAuthenticator, *fakeClock) {
	t.Helper()
	a, err := NewLocalAuthenticator(LocalConfig{Secret: []byte(secret)})
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	a.now = clock.Now
	return a, clock
}

func TestNewLocalAuthenticator_Config(t *testing.T) {
	t.Parallel()

	_, err := NewLocalAuthenticator(LocalConfig{})
	require.Error(t, err)

	_, err = NewLocalAuthenticator(LocalConfig{Secret: []byte("k"), Algorithm: "RS256"})
	require.Error(t, err)

	a, err := NewLocalAuthenticator(LocalConfig{Secret: []byte("k")})
	require.NoError(t, err)
	assert.Equal(t, DefaultAccessTokenTTL, a.TTL())
	assert.Equal(t, "HS256", a.method.Alg())
}

func TestLocal_IssueAndVerify(t *testing.T) {
	t.Parallel()

	a, _ := newLocal(t, "super-secret")
	tok, err := a.IssueToken("u1", map[string]any{"email": "u1@example.com", "name": "User One"}, time.Hour)
	require.NoError(t, err)

	claims, err := a.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])
	assert.Equal(t, "u1@example.com", claims["email"])
	assert.Equal(t, "User One", claims["name"])
	assert.Contains(t, claims, "exp")
	assert.Contains(t, claims, "iat")
}

func TestLocal_ReservedClaimsCannotBeOverridden(t *testing.T) {
	t.Parallel()

	a, clock := newLocal(t, "super-secret")
	far := clock.Now().Add(100 * 24 * time.Hour).Unix()
	tok, err := a.IssueToken("u1", map[string]any{"sub": "admin", "exp": far}, time.Minute)
	require.NoError(t, err)

	claims, err := a.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute).Unix(), exp.Unix())
}

func TestLocal_ExpiryScenario(t *testing.T) {
	t.Parallel()

	a, clock := newLocal(t, "super-secret")
	tok, err := a.IssueToken("u1", nil, time.Second)
	require.NoError(t, err)

	claims, err := a.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])

	clock.Advance(2 * time.Second)
	_, err = a.VerifyToken(tok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestLocal_DefaultTTLApplied(t *testing.T) {
	t.Parallel()

	a, clock := newLocal(t, "super-secret")
	tok, err := a.IssueToken("u1", nil, 0)
	require.NoError(t, err)

	clock.Advance(DefaultAccessTokenTTL - time.Second)
	_, err = a.VerifyToken(tok)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, err = a.VerifyToken(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestLocal_WrongSecret(t *testing.T) {
	t.Parallel()

	issuer, _ := newLocal(t, "right-secret")
	verifier, _ := newLocal(t, "wrong-secret")

	for _, claims := range []map[string]any{nil, {"email": "a@b.c"}, {"household_id": "h1", "name": "x"}} {
		tok, err := issuer.IssueToken("u2", claims, time.Hour)
		require.NoError(t, err)
		_, err = verifier.VerifyToken(tok)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}
}

func TestLocal_AlgorithmMismatch(t *testing.T) {
	t.Parallel()

	a, clock := newLocal(t, "super-secret")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "u1",
		"exp": clock.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = a.VerifyToken(s)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestLocal_MissingExpiry(t *testing.T) {
	t.Parallel()

	a, _ := newLocal(t, "super-secret")
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = a.VerifyToken(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLocal_Malformed(t *testing.T) {
	t.Parallel()

	a, _ := newLocal(t, "k")
	for _, tok := range []string{"", "not.a.jwt", "abc", "a.b.c.d"} {
		_, err := a.VerifyToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestLocal_ResolveIdentityFromClaims(t *testing.T) {
	t.Parallel()

	a, _ := newLocal(t, "super-secret")
	tok, err := a.IssueToken("u1", map[string]any{
		"email":        "u1@example.com",
		"name":         "User One",
		"household_id": "hh-1",
	}, time.Hour)
	require.NoError(t, err)

	ident, err := a.ResolveIdentity(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", ident.SubjectID)
	assert.Equal(t, "u1@example.com", ident.Email)
	assert.Equal(t, "User One", ident.Name)
	require.NotNil(t, ident.HouseholdID)
	assert.Equal(t, "hh-1", *ident.HouseholdID)
	assert.Equal(t, DefaultPreferences(), ident.Preferences)
}

func TestLocal_ResolveIdentityFailuresAreUnauthorized(t *testing.T) {
	t.Parallel()

	a, clock := newLocal(t, "super-secret")
	expired, err := a.IssueToken("u1", nil, time.Second)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": clock.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{"expired": expired, "garbage": "xx.yy.zz", "no sub": noSub} {
		_, err := a.ResolveIdentity(context.Background(), tok)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrUnauthorized, name)
		assert.Equal(t, ErrUnauthorized, Surface(err), name)

		var ae *AuthError
		assert.True(t, errors.As(err, &ae), name)
	}
}

func TestResolveIdentityOrNone(t *testing.T) {
	t.Parallel()

	a, _ := newLocal(t, "super-secret")
	ctx := context.Background()

	assert.Nil(t, ResolveIdentityOrNone(ctx, a, ""))
	assert.Nil(t, ResolveIdentityOrNone(ctx, a, "garbage"))
	assert.Nil(t, ResolveIdentityOrNone(ctx, nil, "garbage"))
	assert.Nil(t, ResolveIdentityOrNone(ctx, panicky{}, "anything"))

	tok, err := a.IssueToken("u9", nil, time.Hour)
	require.NoError(t, err)
	ident := ResolveIdentityOrNone(ctx, a, tok)
	require.NotNil(t, ident)
	assert.Equal(t, "u9", ident.SubjectID)
}

type panicky struct{}

func (panicky) ResolveIdentity(context.Context, string) (*Identity, error) { panic("boom") }

func TestResolveSafely_RecoversPanic(t *testing.T) {
	t.Parallel()

	ident, err := resolveSafely(func() (*Identity, error) { panic("boom") })
	assert.Nil(t, ident)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestIdentityContext(t *testing.T) {
	t.Parallel()

	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), &Identity{SubjectID: "u1"})
	ident, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", ident.SubjectID)
}
