package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultAccessTokenTTL = 30 * time.Minute

// LocalConfig is loaded once at startup.
type LocalConfig struct {
	Secret    []byte
	Algorithm string // HS256, HS384 or HS512
	TTL       time.Duration
	Issuer    string
}

// LocalAuthenticator issues and verifies self-signed access tokens.
type LocalAuthenticator struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

var _ TokenAuthenticator = (*LocalAuthenticator)(nil)

func NewLocalAuthenticator(cfg LocalConfig) (*LocalAuthenticator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	var method jwt.SigningMethod
	switch alg {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &LocalAuthenticator{
		secret: cfg.Secret,
		method: method,
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// TTL is the default lifetime of issued tokens.
func (a *LocalAuthenticator) TTL() time.Duration { return a.ttl }

// IssueToken signs a token for subject carrying claims, valid for ttl
// (the configured default when ttl <= 0). Registered claims in claims are ignored.
func (a *LocalAuthenticator) IssueToken(subject string, claims map[string]any, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		ttl = a.ttl
	}
	mc := jwt.MapClaims{}
	for k, v := range claims {
		switch k {
		case "sub", "exp", "iat", "nbf", "iss":
			continue
		}
		mc[k] = v
	}
	now := a.now()
	mc["sub"] = subject
	mc["iat"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(now.Add(ttl))
	if a.issuer != "" {
		mc["iss"] = a.issuer
	}
	return jwt.NewWithClaims(a.method, mc).SignedString(a.secret)
}

// VerifyToken checks signature, algorithm and expiry and returns the claims.
// Failures are ErrExpiredToken, ErrInvalidSignature or ErrInvalidToken.
func (a *LocalAuthenticator) VerifyToken(token string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{a.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ResolveIdentity builds the Identity straight from the token claims. The
// store is not consulted, so the household reflects the token's issuance time.
func (a *LocalAuthenticator) ResolveIdentity(_ context.Context, token string) (*Identity, error) {
	return resolveSafely(func() (*Identity, error) {
		claims, err := a.VerifyToken(token)
		if err != nil {
			return nil, unauthorized(err)
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			return nil, unauthorized(fmt.Errorf("%w: missing sub", ErrInvalidToken))
		}
		ident := &Identity{
			SubjectID:   sub,
			Email:       stringClaim(claims, "email"),
			Name:        stringClaim(claims, "name"),
			Preferences: DefaultPreferences(),
		}
		if hh := stringClaim(claims, "household_id"); hh != "" {
			ident.HouseholdID = &hh
		}
		return ident, nil
	})
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpiredToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %w", ErrInvalidAudience, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %w", ErrInvalidIssuer, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
