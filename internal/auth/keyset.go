package auth

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultFetchTimeout = 10 * time.Second
	maxKeySetBytes      = 1 << 20
)

var errCacheClosed = errors.New("key set cache closed")

// KeySetCache holds the identity provider's verification keys for the
// process lifetime. The first lookup fetches the key set; concurrent cold
// lookups share a single in-flight fetch. A failed fetch is not remembered,
// so the next lookup tries again. A populated set is never refreshed.
type KeySetCache struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	keys   map[string]crypto.PublicKey
	loaded bool

	base   context.Context
	cancel context.CancelFunc
}

func NewKeySetCache(url string, client *http.Client, timeout time.Duration, logger *slog.Logger) *KeySetCache {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &KeySetCache{
		url:     url,
		client:  client,
		timeout: timeout,
		logger:  logger,
		base:    base,
		cancel:  cancel,
	}
}

// Key returns the public key for kid. It fails with an ErrServiceUnavailable
// AuthError when the key set cannot be fetched and with ErrInvalidToken when
// kid is not part of the set.
func (c *KeySetCache) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	key, found, loaded := c.lookup(kid)
	if found {
		return key, nil
	}
	if !loaded {
		if err := c.load(ctx); err != nil {
			return nil, unavailable(err)
		}
		if key, found, _ = c.lookup(kid); found {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown key id %q", ErrInvalidToken, kid)
}

// Close aborts an in-flight fetch and makes later fetches fail.
func (c *KeySetCache) Close() error {
	c.cancel()
	return nil
}

func (c *KeySetCache) lookup(kid string) (crypto.PublicKey, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[kid]
	return k, ok, c.loaded
}

func (c *KeySetCache) load(ctx context.Context) error {
	ch := c.group.DoChan("keys", func() (any, error) {
		// a caller that raced a completed fetch finds the set already loaded
		if _, _, loaded := c.lookup(""); loaded {
			return nil, nil
		}
		keys, err := c.fetch()
		if err != nil {
			c.logger.Error("failed to fetch verification keys", "url", c.url, "error", err)
			return nil, err
		}
		c.mu.Lock()
		c.keys = keys
		c.loaded = true
		c.mu.Unlock()
		c.logger.Info("verification keys loaded", "url", c.url, "count", len(keys))
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *KeySetCache) fetch() (map[string]crypto.PublicKey, error) {
	if c.base.Err() != nil {
		return nil, errCacheClosed
	}
	ctx, cancel := context.WithTimeout(c.base, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("key set request build failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("key set fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("key set fetch failed: unexpected status %s", resp.Status)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeySetBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("key set decode failed: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, jk := range set.Keys {
		if jk.Use != "" && jk.Use != "sig" {
			continue
		}
		pub := jk.Public()
		if !pub.Valid() {
			continue
		}
		keys[jk.KeyID] = pub.Key
	}
	if len(keys) == 0 {
		return nil, errors.New("key set contains no usable signing keys")
	}
	return keys, nil
}
