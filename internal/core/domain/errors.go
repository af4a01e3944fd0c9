package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors making up the subsystem's failure taxonomy. Handlers map
// these to HTTP statuses; validation-time token errors are all surfaced to the
// embedding page as a generic "not accessible" but logged distinctly.
var (
	// ErrOwnership means the caller does not own the content record.
	ErrOwnership = errors.New("caller does not own this content")
	// ErrTierViolation means the requested sharing purpose is not allowed by
	// the content's current permission tier.
	ErrTierViolation = errors.New("purpose not allowed by permission tier")
	// ErrEmbedNotAllowed means embedding is disabled for the content, either
	// by tier or because the owner has withdrawn consent or disabled sharing.
	ErrEmbedNotAllowed = errors.New("embedding not allowed for this content")
	// ErrTokenNotFound means no token matches the presented secret or id.
	ErrTokenNotFound = errors.New("embed token not found")
	// ErrTokenExpired means the token's expiry has passed.
	ErrTokenExpired = errors.New("embed token expired")
	// ErrTokenRevoked means the token was explicitly revoked.
	ErrTokenRevoked = errors.New("embed token revoked")
	// ErrDomainMismatch means the requesting domain is not in the token's
	// allow-list.
	ErrDomainMismatch = errors.New("domain not allowed for this token")
	// ErrIrrevocableTier means an attempt to un-publish archive-tier content,
	// which is rejected, never silently ignored.
	ErrIrrevocableTier = errors.New("archive-tier content cannot be unpublished")
	// ErrContentNotFound means the referenced content record does not exist.
	ErrContentNotFound = errors.New("content record not found")
	// ErrSubscriptionNotFound means no webhook subscription matches the id.
	ErrSubscriptionNotFound = errors.New("webhook subscription not found")
)

// TierViolationError wraps ErrTierViolation with the offending tier/purpose
// pair for diagnostics.
func TierViolationError(tier PermissionTier, purpose SharingPurpose) error {
	return fmt.Errorf("%w: purpose %q at tier %q", ErrTierViolation, purpose, tier)
}
