package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/storyweave/consentd/internal/core/domain"
	"github.com/storyweave/consentd/internal/core/ports"
	"github.com/storyweave/consentd/internal/infrastructure/metrics"
)

type revocationService struct {
	tokenSvc      ports.TokenService
	tokens        ports.TokenRepository
	contents      ports.ContentRepository
	audit         ports.AuditRepository
	webhooks      ports.WebhookService
	distributions ports.DistributionGateway
	logger        *slog.Logger
}

func NewRevocationService(
	tokenSvc ports.TokenService,
	tokens ports.TokenRepository,
	contents ports.ContentRepository,
	audit ports.AuditRepository,
	webhooks ports.WebhookService,
	distributions ports.DistributionGateway,
	logger *slog.Logger,
) ports.RevocationService {
	if logger == nil {
		logger = slog.Default()
	}
	if distributions == nil {
		distributions = NullDistributionGateway{}
	}
	return &revocationService{
		tokenSvc:      tokenSvc,
		tokens:        tokens,
		contents:      contents,
		audit:         audit,
		webhooks:      webhooks,
		distributions: distributions,
		logger:        logger,
	}
}

// Preview is side-effect-free and may be called repeatedly.
func (s *revocationService) Preview(ctx context.Context, contentID string, scope domain.RevocationScope) (*domain.RevocationPreview, error) {
	if !domain.ValidScope(scope) {
		return nil, fmt.Errorf("invalid revocation scope %q", scope)
	}
	content, err := s.contents.GetContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}
	if content == nil {
		return nil, domain.ErrContentNotFound
	}

	preview := &domain.RevocationPreview{
		ContentID: contentID,
		Scope:     scope,
	}

	if scope.IncludesEmbeds() {
		active, err := s.tokens.ListActiveTokens(ctx, contentID)
		if err != nil {
			return nil, fmt.Errorf("listing active tokens: %w", err)
		}
		preview.ActiveEmbeds = len(active)
	}
	if scope.IncludesDistributions() {
		n, err := s.distributions.CountActive(ctx, contentID)
		if err != nil {
			return nil, fmt.Errorf("counting distributions: %w", err)
		}
		preview.ActiveDistributions = n
	}

	views, err := s.tokens.SumTokenViews(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("summing token views: %w", err)
	}
	preview.TotalViews = views

	hooks, err := s.webhooks.CountSubscribers(ctx, domain.EventConsentRevoked)
	if err != nil {
		return nil, fmt.Errorf("counting webhooks: %w", err)
	}
	preview.ConfiguredWebhooks = hooks

	if preview.ActiveEmbeds > 0 {
		preview.Actions = append(preview.Actions, fmt.Sprintf("revoke %d active embed token(s)", preview.ActiveEmbeds))
	}
	if preview.ActiveDistributions > 0 {
		preview.Actions = append(preview.Actions, fmt.Sprintf("revoke %d active distribution grant(s)", preview.ActiveDistributions))
	}
	if preview.ConfiguredWebhooks > 0 {
		preview.Actions = append(preview.Actions, fmt.Sprintf("notify %d webhook subscription(s)", preview.ConfiguredWebhooks))
	}
	if len(preview.Actions) == 0 {
		preview.Actions = []string{"nothing to revoke"}
	}
	return preview, nil
}

// Execute runs the cascade to completion and reports exactly what happened.
// Sub-revocation failures are collected in the result instead of aborting:
// leaving some shares live is worse than leaving some unrevoked shares
// flagged for manual follow-up.
func (s *revocationService) Execute(ctx context.Context, contentID, actorID string, opts domain.RevocationOptions) (*domain.RevocationResult, error) {
	if !domain.ValidScope(opts.Scope) {
		return nil, fmt.Errorf("invalid revocation scope %q", opts.Scope)
	}
	content, err := s.contents.GetContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}
	if content == nil {
		return nil, domain.ErrContentNotFound
	}

	// Archive-tier content is never un-published. Rejecting before any
	// mutation keeps the guarantee of zero state change.
	if opts.ArchiveStory && !content.Archivable() {
		return nil, domain.ErrIrrevocableTier
	}

	start := time.Now()
	result := &domain.RevocationResult{
		ContentID:  contentID,
		Scope:      opts.Scope,
		Failures:   []domain.CascadeFailure{},
		ExecutedAt: start,
	}

	if opts.Scope.IncludesEmbeds() {
		active, err := s.tokens.ListActiveTokens(ctx, contentID)
		if err != nil {
			return nil, fmt.Errorf("listing active tokens: %w", err)
		}
		for _, tok := range active {
			newly, err := s.tokenSvc.Revoke(ctx, tok.ID, actorID, opts.Reason)
			if err != nil {
				result.Failures = append(result.Failures, domain.CascadeFailure{
					ResourceType: "EMBED_TOKEN",
					ResourceID:   tok.ID,
					Error:        err.Error(),
				})
				continue
			}
			if newly {
				result.EmbedsRevoked++
			}
		}
	}

	if opts.Scope.IncludesDistributions() {
		revoked, failures, err := s.distributions.RevokeAll(ctx, contentID, opts.Reason)
		result.DistributionsRevoked = revoked
		result.Failures = append(result.Failures, failures...)
		if err != nil {
			result.Failures = append(result.Failures, domain.CascadeFailure{
				ResourceType: "DISTRIBUTION",
				ResourceID:   contentID,
				Error:        err.Error(),
			})
		}
	}

	if opts.ArchiveStory {
		changed, err := s.contents.ArchiveContent(ctx, contentID, time.Now())
		if err != nil {
			result.Failures = append(result.Failures, domain.CascadeFailure{
				ResourceType: "CONTENT",
				ResourceID:   contentID,
				Error:        err.Error(),
			})
		} else {
			result.Archived = changed
			if !changed {
				result.ArchiveSkippedReason = "content already archived"
			} else {
				s.recordAudit(ctx, contentID, actorID, domain.AuditActionArchiveContent, "CONTENT", contentID, opts.Reason)
			}
		}
	}

	if opts.DisableSharing {
		changed, err := s.contents.SetSharingEnabled(ctx, contentID, false, time.Now())
		if err != nil {
			result.Failures = append(result.Failures, domain.CascadeFailure{
				ResourceType: "CONTENT",
				ResourceID:   contentID,
				Error:        err.Error(),
			})
		} else {
			result.SharingDisabled = changed
		}
	}

	s.recordAudit(ctx, contentID, actorID, domain.AuditActionRevokeCascade, "CONTENT", contentID,
		fmt.Sprintf("scope=%s embeds=%d distributions=%d failures=%d reason=%s",
			opts.Scope, result.EmbedsRevoked, result.DistributionsRevoked, len(result.Failures), opts.Reason))

	// Webhooks observe post-state, not intent: notify only after the
	// mutations above, and only if something actually changed. A re-executed
	// cascade that touched nothing must not send subscribers a duplicate
	// revocation event. Delivery failures never propagate to this caller.
	mutated := result.EmbedsRevoked > 0 || result.DistributionsRevoked > 0 ||
		result.Archived || result.SharingDisabled
	if opts.NotifyWebhooks && mutated {
		notified, err := s.webhooks.Deliver(ctx, domain.WebhookEvent{
			EventType:  domain.EventConsentRevoked,
			ContentID:  contentID,
			OccurredAt: time.Now(),
			Detail: map[string]string{
				"scope":                 string(opts.Scope),
				"reason":                opts.Reason,
				"embeds_revoked":        fmt.Sprintf("%d", result.EmbedsRevoked),
				"distributions_revoked": fmt.Sprintf("%d", result.DistributionsRevoked),
			},
		})
		if err != nil {
			s.logger.Error("failed to enqueue webhook notifications", "content_id", contentID, "error", err)
		} else {
			result.WebhooksNotified = notified
		}
	}

	result.ElapsedMS = time.Since(start).Milliseconds()
	metrics.RevocationCascades.WithLabelValues(string(opts.Scope)).Inc()
	metrics.RevocationDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("revocation cascade completed",
		"content_id", contentID, "scope", opts.Scope, "actor", actorID,
		"embeds_revoked", result.EmbedsRevoked,
		"distributions_revoked", result.DistributionsRevoked,
		"failures", len(result.Failures),
		"elapsed_ms", result.ElapsedMS)

	return result, nil
}

// WithdrawConsent is the path taken when an owner revokes consent outright,
// as opposed to an admin selectively trimming distributions.
func (s *revocationService) WithdrawConsent(ctx context.Context, contentID, actorID string, reason string) (*domain.RevocationResult, error) {
	if reason == "" {
		reason = "consent withdrawn by owner"
	}
	result, err := s.Execute(ctx, contentID, actorID, domain.RevocationOptions{
		Scope:          domain.ScopeAll,
		Reason:         reason,
		DisableSharing: true,
		NotifyWebhooks: true,
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, contentID, actorID, domain.AuditActionWithdrawConsent, "CONTENT", contentID, reason)
	return result, nil
}

func (s *revocationService) recordAudit(ctx context.Context, contentID, actorID, action, resourceType, resourceID, details string) {
	entry := &domain.ConsentAuditLog{
		ID:           uuid.New().String(),
		ContentID:    contentID,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		CreatedAt:    time.Now(),
	}
	if err := s.audit.SaveAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to save audit log", "action", action, "content_id", contentID, "error", err)
	}
}

// NullDistributionGateway is used when the distribution subsystem is not
// wired, e.g. standalone deployments and tests.
type NullDistributionGateway struct{}

func (NullDistributionGateway) CountActive(ctx context.Context, contentID string) (int, error) {
	return 0, nil
}

func (NullDistributionGateway) RevokeAll(ctx context.Context, contentID string, reason string) (int, []domain.CascadeFailure, error) {
	return 0, nil, nil
}
