package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var validHostRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// ValidateAllowedDomain checks that an allow-list entry normalizes to a
// plausible hostname.
func ValidateAllowedDomain(raw string) error {
	d := NormalizeDomain(raw)
	if d == "" {
		return fmt.Errorf("domain cannot be empty")
	}
	if len(d) > 253 {
		return fmt.Errorf("domain exceeds 253 characters")
	}
	if !validHostRegex.MatchString(d) {
		return fmt.Errorf("domain %q contains invalid characters or format", d)
	}
	return nil
}

// ValidateWebhookURL checks that a subscription endpoint is an absolute
// http(s) URL with a host.
func ValidateWebhookURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("webhook URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL must include a host")
	}
	return nil
}

// ValidateEventTypes checks that an event filter is non-empty and each entry
// is either "*" or a dotted event name.
func ValidateEventTypes(events []string) error {
	if len(events) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	for _, e := range events {
		if e == "*" {
			continue
		}
		if e == "" || !strings.Contains(e, ".") {
			return fmt.Errorf("invalid event type %q", e)
		}
	}
	return nil
}
