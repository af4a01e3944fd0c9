package domain

import (
	"time"
)

// RevocationScope selects which derived grants a cascade touches.
type RevocationScope string

const (
	ScopeAll           RevocationScope = "all"
	ScopeEmbeds        RevocationScope = "embeds"
	ScopeDistributions RevocationScope = "distributions"
)

// ValidScope reports whether the scope is one of the known values.
func ValidScope(scope RevocationScope) bool {
	switch scope {
	case ScopeAll, ScopeEmbeds, ScopeDistributions:
		return true
	}
	return false
}

// IncludesEmbeds reports whether the scope covers embed tokens.
func (s RevocationScope) IncludesEmbeds() bool {
	return s == ScopeAll || s == ScopeEmbeds
}

// IncludesDistributions reports whether the scope covers distribution grants.
func (s RevocationScope) IncludesDistributions() bool {
	return s == ScopeAll || s == ScopeDistributions
}

// RevocationOptions parameterize a cascade execution.
type RevocationOptions struct {
	Scope          RevocationScope `json:"scope"`
	Reason         string          `json:"reason,omitempty"`
	ArchiveStory   bool            `json:"archive_story,omitempty"`
	DisableSharing bool            `json:"disable_sharing,omitempty"`
	NotifyWebhooks bool            `json:"notify_webhooks"`
}

// RevocationPreview reports what a cascade would touch, without mutating
// anything. Safe to compute repeatedly.
type RevocationPreview struct {
	ContentID           string          `json:"content_id"`
	Scope               RevocationScope `json:"scope"`
	ActiveEmbeds        int             `json:"active_embeds"`
	ActiveDistributions int             `json:"active_distributions"`
	TotalViews          int64           `json:"total_views"`
	ConfiguredWebhooks  int             `json:"configured_webhooks"`
	Actions             []string        `json:"actions"`
}

// CascadeFailure records one sub-revocation that failed during a cascade.
// Failures are collected and returned with the result, never thrown: the
// caller needs them to decide on manual follow-up.
type CascadeFailure struct {
	ResourceType string `json:"resource_type"` // "EMBED_TOKEN" or "DISTRIBUTION"
	ResourceID   string `json:"resource_id"`
	Error        string `json:"error"`
}

// RevocationResult reports what a cascade actually did. A non-empty Failures
// list is the mechanical signal that manual follow-up is required; the call
// itself still succeeds.
type RevocationResult struct {
	ContentID           string           `json:"content_id"`
	Scope               RevocationScope  `json:"scope"`
	EmbedsRevoked       int              `json:"embeds_revoked"`
	DistributionsRevoked int             `json:"distributions_revoked"`
	WebhooksNotified    int              `json:"webhooks_notified"`
	Archived            bool             `json:"archived"`
	ArchiveSkippedReason string          `json:"archive_skipped_reason,omitempty"`
	SharingDisabled     bool             `json:"sharing_disabled"`
	Failures            []CascadeFailure `json:"failures"`
	ElapsedMS           int64            `json:"elapsed_ms"`
	ExecutedAt          time.Time        `json:"executed_at"`
}
