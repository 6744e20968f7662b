package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/lazy"
	"github.com/platinummonkey/groundwork/pkg/observability"
	"github.com/platinummonkey/groundwork/pkg/projects"
	"github.com/platinummonkey/groundwork/pkg/rbac"
)

// TokenVerifier turns a raw bearer token into a verified identity
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*projects.Identity, error)
}

// Claims are the ID token claims we read
type Claims struct {
	Subject    string   `json:"sub"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	SystemRole string   `json:"system_role"`
	Roles      []string `json:"roles"`
}

// Identity maps claims to an identity. An explicit system_role claim wins
// over the roles list; unknown roles are ignored.
func (c Claims) Identity() *projects.Identity {
	id := &projects.Identity{
		ExternalID: c.Subject,
		Email:      c.Email,
		Name:       c.Name,
	}
	if role := rbac.SystemRole(strings.ToUpper(c.SystemRole)); role.Valid() {
		id.SystemRole = role
		return id
	}
	for _, r := range c.Roles {
		if role := rbac.SystemRole(strings.ToUpper(r)); role.Valid() {
			id.SystemRole = role
			break
		}
	}
	return id
}

// OIDCVerifier verifies ID tokens issued by an OpenID Connect provider
type OIDCVerifier struct {
	verifier *lazy.Value[*oidc.IDTokenVerifier]
}

// NewOIDCVerifier creates a verifier for tokens issued to clientID
func NewOIDCVerifier(issuerURL, clientID string) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: lazy.New("oidc provider", func(ctx context.Context) (*oidc.IDTokenVerifier, error) {
			// Discovery must outlive the request that triggered it.
			provider, err := oidc.NewProvider(context.WithoutCancel(ctx), issuerURL)
			if err != nil {
				return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
			}
			return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
		}),
	}
}

// NewStaticVerifier wraps an already built verifier
func NewStaticVerifier(v *oidc.IDTokenVerifier) *OIDCVerifier {
	return &OIDCVerifier{verifier: lazy.Of("oidc provider", v)}
}

// Verify checks the token signature, issuer, audience and expiry
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*projects.Identity, error) {
	verifier, err := v.verifier.Get(ctx)
	if err != nil {
		return nil, err
	}

	token, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, apperr.Unauthenticated("Invalid or expired token")
	}

	var claims Claims
	if err := token.Claims(&claims); err != nil {
		return nil, apperr.Unauthenticated("Invalid token claims")
	}
	if claims.Subject == "" {
		claims.Subject = token.Subject
	}
	return claims.Identity(), nil
}

// CachingVerifier remembers verified tokens for a short time
type CachingVerifier struct {
	next    TokenVerifier
	cache   *expirable.LRU[string, *projects.Identity]
	metrics *observability.Metrics
}

// NewCachingVerifier wraps next with an expiring LRU cache
func NewCachingVerifier(next TokenVerifier, size int, ttl time.Duration) *CachingVerifier {
	if size <= 0 {
		size = 1000
	}
	return &CachingVerifier{
		next:  next,
		cache: expirable.NewLRU[string, *projects.Identity](size, nil, ttl),
	}
}

// WithMetrics counts lookups by result
func (c *CachingVerifier) WithMetrics(m *observability.Metrics) *CachingVerifier {
	c.metrics = m
	return c
}

// Verify returns a cached identity or delegates. Failures are not cached.
func (c *CachingVerifier) Verify(ctx context.Context, rawToken string) (*projects.Identity, error) {
	key := tokenKey(rawToken)
	if id, ok := c.cache.Get(key); ok {
		c.count("cache_hit")
		return id, nil
	}
	id, err := c.next.Verify(ctx, rawToken)
	if err != nil {
		c.count("rejected")
		return nil, err
	}
	c.count("verified")
	c.cache.Add(key, id)
	return id, nil
}

func (c *CachingVerifier) count(result string) {
	if c.metrics != nil {
		c.metrics.IdentityLookupsTotal.WithLabelValues(result).Inc()
	}
}

// Len returns the number of cached identities
func (c *CachingVerifier) Len() int {
	return c.cache.Len()
}

func tokenKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
