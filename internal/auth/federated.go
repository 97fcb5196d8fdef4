package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// FederatedConfig describes the external identity provider. Issuer and
// KeysURL are derived from Tenant and Policy when left empty.
type FederatedConfig struct {
	Tenant       string
	ClientID     string
	Policy       string
	Issuer       string
	KeysURL      string
	FetchTimeout time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

func (c FederatedConfig) issuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return fmt.Sprintf("https://%s.b2clogin.com/%s.onmicrosoft.com/%s/v2.0/", c.Tenant, c.Tenant, c.Policy)
}

func (c FederatedConfig) keysURL() string {
	if c.KeysURL != "" {
		return c.KeysURL
	}
	return fmt.Sprintf("https://%s.b2clogin.com/%s.onmicrosoft.com/%s/discovery/v2.0/keys", c.Tenant, c.Tenant, c.Policy)
}

// FederatedVerifier verifies RS256 tokens minted by the identity provider.
type FederatedVerifier struct {
	clientID string
	issuer   string
	keys     *KeySetCache
	now      func() time.Time
}

var _ TokenAuthenticator = (*FederatedVerifier)(nil)

func NewFederatedVerifier(cfg FederatedConfig) (*FederatedVerifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if (cfg.Issuer == "" || cfg.KeysURL == "") && (cfg.Tenant == "" || cfg.Policy == "") {
		return nil, errors.New("tenant and policy are required unless issuer and keys url are set")
	}
	return &FederatedVerifier{
		clientID: cfg.ClientID,
		issuer:   cfg.issuer(),
		keys:     NewKeySetCache(cfg.keysURL(), cfg.HTTPClient, cfg.FetchTimeout, cfg.Logger),
		now:      time.Now,
	}, nil
}

func (v *FederatedVerifier) Issuer() string { return v.issuer }

// Close releases the key set cache.
func (v *FederatedVerifier) Close() error { return v.keys.Close() }

// VerifyToken walks the token from its unverified header through key
// resolution to signature and claim checks.
func (v *FederatedVerifier) VerifyToken(ctx context.Context, token string) (jwt.MapClaims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrInvalidToken)
	}

	key, err := v.keys.Key(ctx, kid)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *FederatedVerifier) ResolveIdentity(ctx context.Context, token string) (*Identity, error) {
	return resolveSafely(func() (*Identity, error) {
		claims, err := v.VerifyToken(ctx, token)
		if err != nil {
			if errors.Is(err, ErrServiceUnavailable) {
				return nil, err
			}
			return nil, unauthorized(err)
		}
		return identityFromProviderClaims(claims)
	})
}

// identityFromProviderClaims maps the provider's claim shapes. A missing
// email is replaced by a placeholder derived from the subject.
func identityFromProviderClaims(claims jwt.MapClaims) (*Identity, error) {
	sub := stringClaim(claims, "sub")
	if sub == "" {
		sub = stringClaim(claims, "oid")
	}
	if sub == "" {
		return nil, unauthorized(fmt.Errorf("%w: missing subject", ErrInvalidToken))
	}

	email := ""
	if emails, ok := claims["emails"].([]any); ok && len(emails) > 0 {
		email, _ = emails[0].(string)
	}
	if email == "" {
		email = stringClaim(claims, "email")
	}
	if email == "" {
		email = sub + "@b2c.local"
	}

	name := stringClaim(claims, "name")
	if name == "" {
		name = stringClaim(claims, "given_name") + " " + stringClaim(claims, "family_name")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "B2C User"
	}

	return &Identity{
		SubjectID:   sub,
		Email:       email,
		Name:        name,
		Preferences: DefaultPreferences(),
	}, nil
}
