package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// DefaultJWKSTTL is how long a fetched key set is reused.
const DefaultJWKSTTL = time.Hour

// maxJWKSBytes caps the key set document.
const maxJWKSBytes = 1 << 20

type cachedKeySet struct {
	keys    jwk.Set
	fetched time.Time
	expires time.Time
}

// JWKSManager fetches and caches the identity provider's signing keys. When a
// refresh fails, a set fetched within the last two TTLs keeps serving so a
// short provider outage does not lock operators out of the admin API.
type JWKSManager struct {
	mu     sync.Mutex
	cache  map[string]*cachedKeySet
	ttl    time.Duration
	client *http.Client
	now    func() time.Time
}

// NewJWKSManager creates a manager. A nil client gets a 10s timeout.
func NewJWKSManager(ttl time.Duration, client *http.Client) *JWKSManager {
	if ttl <= 0 {
		ttl = DefaultJWKSTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSManager{
		cache:  make(map[string]*cachedKeySet),
		ttl:    ttl,
		client: client,
		now:    time.Now,
	}
}

// GetJWKS returns the key set at jwksURL, fetching it when the cached copy
// has expired.
func (m *JWKSManager) GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	now := m.now()

	m.mu.Lock()
	cached := m.cache[jwksURL]
	m.mu.Unlock()
	if cached != nil && now.Before(cached.expires) {
		return cached.keys, nil
	}

	keys, err := m.fetchJWKS(ctx, jwksURL)
	if err != nil {
		if cached != nil && now.Sub(cached.fetched) < 2*m.ttl {
			return cached.keys, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	m.mu.Lock()
	m.cache[jwksURL] = &cachedKeySet{keys: keys, fetched: now, expires: now.Add(m.ttl)}
	m.mu.Unlock()
	return keys, nil
}

// Invalidate forces the next lookup for jwksURL to refetch. Used after a token
// names an unknown key id, which usually means the issuer rotated keys. The
// old set stays around as the stale fallback.
func (m *JWKSManager) Invalidate(jwksURL string) {
	m.mu.Lock()
	if cached, ok := m.cache[jwksURL]; ok {
		cached.expires = time.Time{}
	}
	m.mu.Unlock()
}

func (m *JWKSManager) fetchJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	keys, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	if keys.Len() == 0 {
		return nil, fmt.Errorf("JWKS at %s has no keys", jwksURL)
	}
	return keys, nil
}
