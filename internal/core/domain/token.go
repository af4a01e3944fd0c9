package domain

import (
	"net"
	"strings"
	"time"
)

// TokenStatus tracks the lifecycle of an embed token. Tokens are never
// deleted; revocation and expiry are recorded in place to preserve audit
// history. All transitions go through the repository's check-and-set updates,
// never through direct field writes in handlers.
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenRevoked TokenStatus = "revoked"
	TokenExpired TokenStatus = "expired"
)

// EmbedToken is a bearer capability permitting a third-party page to render a
// specific content record, scoped by domain and expiry. Knowledge of the
// secret is sufficient for access, so only its SHA-256 hash is stored.
type EmbedToken struct {
	ID             string      `json:"id"`
	ContentID      string      `json:"content_id"`
	TokenHash      string      `json:"-"`
	TokenPrefix    string      `json:"token_prefix"` // First 8 chars for identification
	AllowedDomains []string    `json:"allowed_domains"` // Empty = any domain
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	Status         TokenStatus `json:"status"`
	UsageCount     int64       `json:"usage_count"`
	LastUsedAt     *time.Time  `json:"last_used_at,omitempty"`
	LastUsedDomain string      `json:"last_used_domain,omitempty"`
	AllowAnalytics bool        `json:"allow_analytics"`
	ShowAttribution bool       `json:"show_attribution"`
	CustomStyle    string      `json:"custom_style,omitempty"`
	CreatedBy      string      `json:"created_by"`
	CreatedAt      time.Time   `json:"created_at"`
	RevokedAt      *time.Time  `json:"revoked_at,omitempty"`
	RevokeReason   string      `json:"revoke_reason,omitempty"`
}

// ExpiredAt reports whether the token's expiry, if set, has passed.
func (t *EmbedToken) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// DomainAllowed reports whether a normalized request domain may use this
// token. An empty allow-list admits any domain. Matching is exact on the
// normalized hostname: a subdomain of an allowed host does not match.
func (t *EmbedToken) DomainAllowed(requestDomain string) bool {
	if len(t.AllowedDomains) == 0 {
		return true
	}
	normalized := NormalizeDomain(requestDomain)
	for _, d := range t.AllowedDomains {
		if NormalizeDomain(d) == normalized {
			return true
		}
	}
	return false
}

// NormalizeDomain reduces a domain, URL or host:port to a lowercase hostname.
func NormalizeDomain(raw string) string {
	d := strings.TrimSpace(strings.ToLower(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if host, _, err := net.SplitHostPort(d); err == nil {
		d = host
	}
	d = strings.Trim(d, "[]")
	return strings.TrimSuffix(d, ".")
}
