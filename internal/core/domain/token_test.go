package domain

import (
	"testing"
	"time"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Plain domain", "example.com", "example.com"},
		{"Uppercase", "EXAMPLE.COM", "example.com"},
		{"With scheme", "https://example.com", "example.com"},
		{"With path", "https://example.com/embed/story", "example.com"},
		{"With port", "example.com:8080", "example.com"},
		{"Scheme port and path", "http://Example.com:3000/a?b=c", "example.com"},
		{"Trailing dot", "example.com.", "example.com"},
		{"Whitespace", "  example.com  ", "example.com"},
		{"Subdomain kept", "blog.example.com", "blog.example.com"},
		{"Fragment", "example.com#section", "example.com"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDomain(tt.in); got != tt.want {
				t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDomainAllowed(t *testing.T) {
	scoped := &EmbedToken{AllowedDomains: []string{"example.com", "partner.org"}}

	tests := []struct {
		name    string
		token   *EmbedToken
		request string
		want    bool
	}{
		{"Empty allow-list admits anything", &EmbedToken{}, "anywhere.com", true},
		{"Exact match", scoped, "example.com", true},
		{"Second entry", scoped, "partner.org", true},
		{"Case insensitive", scoped, "EXAMPLE.com", true},
		{"Request with scheme", scoped, "https://example.com", true},
		{"Request with port", scoped, "example.com:443", true},
		{"Subdomain does not match", scoped, "evil.example.com", false},
		{"Parent does not match subdomain entry", &EmbedToken{AllowedDomains: []string{"blog.example.com"}}, "example.com", false},
		{"Unlisted domain", scoped, "other.com", false},
		{"Empty request against scoped list", scoped, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.DomainAllowed(tt.request); got != tt.want {
				t.Errorf("DomainAllowed(%q) = %v, want %v", tt.request, got, tt.want)
			}
		})
	}
}

func TestExpiredAt(t *testing.T) {
	now := time.Now()

	noExpiry := &EmbedToken{}
	if noExpiry.ExpiredAt(now) {
		t.Error("token without expiry should never expire")
	}

	past := now.Add(-time.Hour)
	expired := &EmbedToken{ExpiresAt: &past}
	if !expired.ExpiredAt(now) {
		t.Error("token past its expiry should be expired")
	}

	future := now.Add(time.Hour)
	live := &EmbedToken{ExpiresAt: &future}
	if live.ExpiredAt(now) {
		t.Error("token before its expiry should not be expired")
	}

	boundary := &EmbedToken{ExpiresAt: &now}
	if !boundary.ExpiredAt(now) {
		t.Error("token expiring exactly now should be expired")
	}
}
