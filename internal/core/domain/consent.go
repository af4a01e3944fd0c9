// Package domain contains the core business logic and entities for the consent
// and revocation subsystem.
package domain

import (
	"time"
)

// PermissionTier represents a named level of openness governing who may access
// and re-share a content record.
type PermissionTier string

const (
	// TierPrivate is visible to the owner only.
	TierPrivate PermissionTier = "private"
	// TierTrustedCircle allows sharing with a hand-picked audience.
	TierTrustedCircle PermissionTier = "trusted_circle"
	// TierCommunity allows sharing within the platform community.
	TierCommunity PermissionTier = "community"
	// TierPublic allows open distribution, including embeds and social media.
	TierPublic PermissionTier = "public"
	// TierArchive is a permanent, non-revocable publication state requiring
	// explicit upfront consent.
	TierArchive PermissionTier = "archive"
)

// SharingPurpose represents a channel through which content may be distributed.
type SharingPurpose string

const (
	PurposeDirectShare SharingPurpose = "direct_share"
	PurposeEmail       SharingPurpose = "email"
	PurposeEmbed       SharingPurpose = "embed"
	PurposeSocialMedia SharingPurpose = "social_media"
	PurposePartner     SharingPurpose = "partner"
)

// ContentStatus tracks the publication lifecycle of a content record.
type ContentStatus string

const (
	StatusDraft     ContentStatus = "draft"
	StatusPublished ContentStatus = "published"
	StatusArchived  ContentStatus = "archived"
)

// ConsentRenewalAge is the age after which a consent verification is
// considered stale and must be renewed before further public distribution.
const ConsentRenewalAge = 30 * 24 * time.Hour

// tierRules is the closed capability table for every permission tier.
var tierRules = map[PermissionTier]struct {
	purposes                []SharingPurpose
	canWithdraw             bool
	requiresExplicitConsent bool
}{
	TierPrivate:       {purposes: nil, canWithdraw: true},
	TierTrustedCircle: {purposes: []SharingPurpose{PurposeDirectShare, PurposeEmail}, canWithdraw: true},
	TierCommunity:     {purposes: []SharingPurpose{PurposeDirectShare, PurposeEmail, PurposeEmbed}, canWithdraw: true},
	TierPublic:        {purposes: []SharingPurpose{PurposeDirectShare, PurposeEmail, PurposeEmbed, PurposeSocialMedia, PurposePartner}, canWithdraw: true},
	TierArchive:       {purposes: []SharingPurpose{PurposeDirectShare, PurposeEmail, PurposeEmbed, PurposeSocialMedia, PurposePartner}, canWithdraw: false, requiresExplicitConsent: true},
}

// ValidTier reports whether the given tier is part of the closed enumeration.
func ValidTier(tier PermissionTier) bool {
	_, ok := tierRules[tier]
	return ok
}

// AllowedPurposes returns the sharing purposes permitted at the given tier.
// Unknown tiers allow nothing.
func AllowedPurposes(tier PermissionTier) []SharingPurpose {
	rules, ok := tierRules[tier]
	if !ok {
		return nil
	}
	out := make([]SharingPurpose, len(rules.purposes))
	copy(out, rules.purposes)
	return out
}

// IsPurposeAllowed reports whether the given sharing purpose is permitted at
// the given tier. Every embed/distribution creation path must consult this
// before granting access.
func IsPurposeAllowed(tier PermissionTier, purpose SharingPurpose) bool {
	rules, ok := tierRules[tier]
	if !ok {
		return false
	}
	for _, p := range rules.purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

// CanWithdraw reports whether consent at the given tier can be withdrawn.
// False only for the archive tier, which is a one-way door.
func CanWithdraw(tier PermissionTier) bool {
	rules, ok := tierRules[tier]
	if !ok {
		return false
	}
	return rules.canWithdraw
}

// RequiresExplicitConsent reports whether the tier demands explicit upfront
// consent before content may enter it.
func RequiresExplicitConsent(tier PermissionTier) bool {
	rules, ok := tierRules[tier]
	if !ok {
		return false
	}
	return rules.requiresExplicitConsent
}

// NeedsConsentRenewal reports whether a consent verification is stale. A nil
// timestamp always needs renewal.
func NeedsConsentRenewal(consentVerifiedAt *time.Time, now time.Time) bool {
	if consentVerifiedAt == nil {
		return true
	}
	return now.Sub(*consentVerifiedAt) > ConsentRenewalAge
}

// ContentRecord is the projection of a content record this core reads and
// writes. The narrative content itself lives with the surrounding application.
type ContentRecord struct {
	ID                  string         `json:"id"`
	OwnerID             string         `json:"owner_id"`
	PermissionTier      PermissionTier `json:"permission_tier"`
	ConsentVerifiedAt   *time.Time     `json:"consent_verified_at,omitempty"`
	ArchiveConsentGiven bool           `json:"archive_consent_given"`
	SharingEnabled      bool           `json:"sharing_enabled"`
	Status              ContentStatus  `json:"status"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Archivable reports whether the record may be transitioned to archived via
// the revocation cascade. Archive-tier content is never un-published, so the
// cascade must refuse to touch it.
func (c *ContentRecord) Archivable() bool {
	return CanWithdraw(c.PermissionTier)
}

// ConsentAuditLog is one append-only entry in the consent audit trail: tier
// changes, consent verifications and revocation events.
type ConsentAuditLog struct {
	ID           string    `json:"id"`
	ContentID    string    `json:"content_id"`
	ActorID      string    `json:"actor_id"`
	Action       string    `json:"action"`        // e.g. "REVOKE_TOKEN", "WITHDRAW_CONSENT"
	ResourceType string    `json:"resource_type"` // e.g. "EMBED_TOKEN", "CONTENT"
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}

// Audit actions recorded by this core.
const (
	AuditActionIssueToken      = "ISSUE_TOKEN"
	AuditActionRevokeToken     = "REVOKE_TOKEN"
	AuditActionRevokeCascade   = "REVOKE_CASCADE"
	AuditActionWithdrawConsent = "WITHDRAW_CONSENT"
	AuditActionArchiveContent  = "ARCHIVE_CONTENT"
	AuditActionCircuitOpened   = "WEBHOOK_CIRCUIT_OPENED"
)
