package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/storyweave/consentd/internal/core/domain"
	"github.com/storyweave/consentd/internal/core/ports"
	"github.com/storyweave/consentd/internal/infrastructure/metrics"
)

// tombstoneTTL bounds how long a dead-token marker lives in the cache. The
// database row remains the source of truth.
const tombstoneTTL = 24 * time.Hour

type tokenService struct {
	tokens         ports.TokenRepository
	contents       ports.ContentRepository
	audit          ports.AuditRepository
	cache          ports.ValidationCache // optional
	baseURL        string
	defaultTTLDays int // 0 means tokens without an explicit TTL never expire
	logger         *slog.Logger
}

func NewTokenService(tokens ports.TokenRepository, contents ports.ContentRepository, audit ports.AuditRepository, cache ports.ValidationCache, baseURL string, defaultTTLDays int, logger *slog.Logger) ports.TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &tokenService{
		tokens:         tokens,
		contents:       contents,
		audit:          audit,
		cache:          cache,
		baseURL:        baseURL,
		defaultTTLDays: defaultTTLDays,
		logger:         logger,
	}
}

func (s *tokenService) Issue(ctx context.Context, in ports.IssueTokenInput) (*ports.IssuedToken, error) {
	content, err := s.contents.GetContent(ctx, in.ContentID)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}
	if content == nil {
		return nil, domain.ErrContentNotFound
	}
	if content.OwnerID != in.OwnerID {
		return nil, domain.ErrOwnership
	}
	if !content.SharingEnabled {
		return nil, domain.ErrEmbedNotAllowed
	}
	if !domain.IsPurposeAllowed(content.PermissionTier, domain.PurposeEmbed) {
		return nil, domain.TierViolationError(content.PermissionTier, domain.PurposeEmbed)
	}

	domains := make([]string, 0, len(in.Domains))
	for _, d := range in.Domains {
		if err := domain.ValidateAllowedDomain(d); err != nil {
			return nil, fmt.Errorf("invalid allowed domain: %w", err)
		}
		domains = append(domains, domain.NormalizeDomain(d))
	}

	secret, err := generateTokenSecret()
	if err != nil {
		return nil, fmt.Errorf("generating token secret: %w", err)
	}

	now := time.Now()
	token := domain.EmbedToken{
		ID:              uuid.New().String(),
		ContentID:       in.ContentID,
		TokenHash:       hashSecret(secret),
		TokenPrefix:     secret[:8],
		AllowedDomains:  domains,
		Status:          domain.TokenActive,
		AllowAnalytics:  in.AllowAnalytics,
		ShowAttribution: in.ShowAttribution,
		CustomStyle:     in.CustomStyle,
		CreatedBy:       in.OwnerID,
		CreatedAt:       now,
	}
	ttlDays := s.defaultTTLDays
	if in.TTLDays != nil {
		ttlDays = *in.TTLDays
	}
	if ttlDays > 0 {
		exp := now.Add(time.Duration(ttlDays) * 24 * time.Hour)
		token.ExpiresAt = &exp
	}

	if err := s.tokens.CreateToken(ctx, &token); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}

	s.recordAudit(ctx, &domain.ConsentAuditLog{
		ContentID:    in.ContentID,
		ActorID:      in.OwnerID,
		Action:       domain.AuditActionIssueToken,
		ResourceType: "EMBED_TOKEN",
		ResourceID:   token.ID,
		Details:      fmt.Sprintf("domains=%v expires_at=%v", domains, token.ExpiresAt),
	})

	metrics.TokensIssued.Inc()
	s.logger.Info("embed token issued", "token_id", token.ID, "content_id", in.ContentID, "domains", len(domains))

	return &ports.IssuedToken{
		Token:                  token,
		Secret:                 secret,
		EmbedURL:               fmt.Sprintf("%s/embed?token=%s", s.baseURL, secret),
		ConsentRenewalRequired: domain.NeedsConsentRenewal(content.ConsentVerifiedAt, now),
	}, nil
}

func (s *tokenService) Validate(ctx context.Context, rawToken string, requestDomain string) (string, error) {
	if rawToken == "" {
		metrics.TokenValidations.WithLabelValues("not_found").Inc()
		return "", domain.ErrTokenNotFound
	}
	tokenHash := hashSecret(rawToken)

	// Dead-token tombstones short-circuit the database on the hot path.
	if s.cache != nil {
		if status, ok := s.cache.GetStatus(ctx, tokenHash); ok {
			switch status {
			case domain.TokenRevoked:
				metrics.TokenValidations.WithLabelValues("revoked").Inc()
				return "", domain.ErrTokenRevoked
			case domain.TokenExpired:
				metrics.TokenValidations.WithLabelValues("expired").Inc()
				return "", domain.ErrTokenExpired
			}
		}
	}

	token, err := s.tokens.GetTokenByHash(ctx, tokenHash)
	if err != nil {
		return "", fmt.Errorf("loading token: %w", err)
	}
	if token == nil {
		metrics.TokenValidations.WithLabelValues("not_found").Inc()
		return "", domain.ErrTokenNotFound
	}

	switch token.Status {
	case domain.TokenRevoked:
		s.cacheTombstone(ctx, tokenHash, domain.TokenRevoked)
		metrics.TokenValidations.WithLabelValues("revoked").Inc()
		return "", domain.ErrTokenRevoked
	case domain.TokenExpired:
		s.cacheTombstone(ctx, tokenHash, domain.TokenExpired)
		metrics.TokenValidations.WithLabelValues("expired").Inc()
		return "", domain.ErrTokenExpired
	}

	now := time.Now()
	if token.ExpiredAt(now) {
		// Lazy transition; a concurrent revoke winning the race is fine, the
		// token is dead either way.
		if _, err := s.tokens.TransitionTokenStatus(ctx, token.ID, domain.TokenActive, domain.TokenExpired, "", now); err != nil {
			s.logger.Warn("failed to mark token expired", "token_id", token.ID, "error", err)
		}
		s.cacheTombstone(ctx, tokenHash, domain.TokenExpired)
		metrics.TokenValidations.WithLabelValues("expired").Inc()
		return "", domain.ErrTokenExpired
	}

	if !token.DomainAllowed(requestDomain) {
		metrics.TokenValidations.WithLabelValues("domain_mismatch").Inc()
		return "", domain.ErrDomainMismatch
	}

	// Usage accounting must not add latency to the render path. The
	// increment itself is atomic in the repository.
	go func(tokenID, usedDomain string) {
		usageCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tokens.RecordTokenUsage(usageCtx, tokenID, usedDomain, now); err != nil {
			s.logger.Warn("failed to record token usage", "token_id", tokenID, "error", err)
		}
	}(token.ID, domain.NormalizeDomain(requestDomain))

	metrics.TokenValidations.WithLabelValues("ok").Inc()
	return token.ContentID, nil
}

func (s *tokenService) Revoke(ctx context.Context, tokenID, actorID, reason string) (bool, error) {
	token, err := s.tokens.GetTokenByID(ctx, tokenID)
	if err != nil {
		return false, fmt.Errorf("loading token: %w", err)
	}
	if token == nil {
		return false, domain.ErrTokenNotFound
	}

	now := time.Now()
	changed, err := s.tokens.TransitionTokenStatus(ctx, tokenID, domain.TokenActive, domain.TokenRevoked, reason, now)
	if err != nil {
		return false, fmt.Errorf("revoking token: %w", err)
	}
	if !changed {
		// Already revoked is a no-op success. An expired token still moves
		// to revoked so the audit trail reflects the explicit revocation.
		if token.Status == domain.TokenRevoked {
			return false, nil
		}
		changed, err = s.tokens.TransitionTokenStatus(ctx, tokenID, domain.TokenExpired, domain.TokenRevoked, reason, now)
		if err != nil {
			return false, fmt.Errorf("revoking expired token: %w", err)
		}
		if !changed {
			return false, nil
		}
	}

	s.cacheTombstone(ctx, token.TokenHash, domain.TokenRevoked)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, token.TokenHash); err != nil {
			s.logger.Warn("failed to broadcast token invalidation", "token_id", tokenID, "error", err)
		}
	}

	s.recordAudit(ctx, &domain.ConsentAuditLog{
		ContentID:    token.ContentID,
		ActorID:      actorID,
		Action:       domain.AuditActionRevokeToken,
		ResourceType: "EMBED_TOKEN",
		ResourceID:   tokenID,
		Details:      reason,
	})

	metrics.TokensRevoked.Inc()
	s.logger.Info("embed token revoked", "token_id", tokenID, "content_id", token.ContentID, "actor", actorID)
	return true, nil
}

func (s *tokenService) ListActive(ctx context.Context, contentID string, ownerID string) ([]domain.EmbedToken, error) {
	content, err := s.contents.GetContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}
	if content == nil {
		return nil, domain.ErrContentNotFound
	}
	if content.OwnerID != ownerID {
		return nil, domain.ErrOwnership
	}
	return s.tokens.ListActiveTokens(ctx, contentID)
}

func (s *tokenService) cacheTombstone(ctx context.Context, tokenHash string, status domain.TokenStatus) {
	if s.cache != nil {
		s.cache.SetStatus(ctx, tokenHash, status, tombstoneTTL)
	}
}

func (s *tokenService) recordAudit(ctx context.Context, entry *domain.ConsentAuditLog) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now()
	if err := s.audit.SaveAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to save audit log", "action", entry.Action, "resource_id", entry.ResourceID, "error", err)
	}
}

// generateTokenSecret returns a 256-bit hex secret. The token is a bearer
// capability: knowledge of it is sufficient for access, so it must be
// unguessable.
func generateTokenSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IsValidationError reports whether err is one of the render-time validation
// failures that are surfaced to the embedding page as a generic "not
// accessible" response.
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrTokenNotFound) ||
		errors.Is(err, domain.ErrTokenExpired) ||
		errors.Is(err, domain.ErrTokenRevoked) ||
		errors.Is(err, domain.ErrDomainMismatch)
}
