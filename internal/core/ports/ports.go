package ports

import (
	"context"
	"time"

	"github.com/storyweave/consentd/internal/core/domain"
)

// TokenRepository persists embed tokens. Status transitions use check-and-set
// updates so a concurrent revoke and validate cannot race into an
// inconsistent state.
type TokenRepository interface {
	CreateToken(ctx context.Context, token *domain.EmbedToken) error
	GetTokenByHash(ctx context.Context, tokenHash string) (*domain.EmbedToken, error)
	GetTokenByID(ctx context.Context, tokenID string) (*domain.EmbedToken, error)
	ListActiveTokens(ctx context.Context, contentID string) ([]domain.EmbedToken, error)
	// TransitionTokenStatus atomically moves a token from one status to
	// another. Returns false without error when the token was not in the
	// expected status, which callers use for idempotence.
	TransitionTokenStatus(ctx context.Context, tokenID string, from, to domain.TokenStatus, reason string, at time.Time) (bool, error)
	// RecordTokenUsage increments usage_count atomically and stamps the last
	// use. Called off the hot read path.
	RecordTokenUsage(ctx context.Context, tokenID string, usedDomain string, at time.Time) error
	SumTokenViews(ctx context.Context, contentID string) (int64, error)
}

// WebhookRepository persists subscriptions and the append-only delivery log.
type WebhookRepository interface {
	CreateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error
	GetSubscription(ctx context.Context, id string) (*domain.WebhookSubscription, error)
	ListSubscriptions(ctx context.Context, owningAppID string) ([]domain.WebhookSubscription, error)
	ListActiveSubscriptionsForEvent(ctx context.Context, eventType string) ([]domain.WebhookSubscription, error)
	UpdateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error
	DeleteSubscription(ctx context.Context, id string, owningAppID string) error
	SaveDeliveryLog(ctx context.Context, entry *domain.WebhookDeliveryLog) error
	ListDeliveryLogs(ctx context.Context, subscriptionID string, limit int) ([]domain.WebhookDeliveryLog, error)
	// RecordDeliverySuccess resets the consecutive-failure counter in a
	// single atomic update.
	RecordDeliverySuccess(ctx context.Context, subscriptionID string, at time.Time) error
	// RecordDeliveryFailure increments both failure counters atomically and
	// forces is_active to false once the threshold is reached. Returns true
	// when this failure opened the circuit.
	RecordDeliveryFailure(ctx context.Context, subscriptionID string, at time.Time) (circuitOpened bool, err error)
}

// ContentRepository reads and writes the consent projection of content
// records owned by the surrounding application.
type ContentRepository interface {
	GetContent(ctx context.Context, contentID string) (*domain.ContentRecord, error)
	// ArchiveContent transitions a record to archived. Returns false without
	// error when the record was already archived.
	ArchiveContent(ctx context.Context, contentID string, at time.Time) (bool, error)
	// SetSharingEnabled flips the sharing flag. Returns false without error
	// when the record already carried the requested value.
	SetSharingEnabled(ctx context.Context, contentID string, enabled bool, at time.Time) (bool, error)
}

// AuditRepository is the append-only consent audit trail.
type AuditRepository interface {
	SaveAuditLog(ctx context.Context, entry *domain.ConsentAuditLog) error
	GetAuditLogs(ctx context.Context, contentID string) ([]domain.ConsentAuditLog, error)
}

// APIKeyRepository resolves caller identity for the management API.
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context, appID string) ([]domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Repository is the full persistence surface, implemented by the Postgres
// adapter.
type Repository interface {
	TokenRepository
	WebhookRepository
	ContentRepository
	AuditRepository
	APIKeyRepository
	Ping(ctx context.Context) error
}

// ValidationCache is the hot-path cache consulted before the database on
// embed validation. It holds tombstones for dead tokens and buffers usage
// counts.
type ValidationCache interface {
	GetStatus(ctx context.Context, tokenHash string) (domain.TokenStatus, bool)
	SetStatus(ctx context.Context, tokenHash string, status domain.TokenStatus, ttl time.Duration)
	Invalidate(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// DistributionGateway is the external collaborator owning distribution
// grants. This core only issues revoke calls against it and counts results.
type DistributionGateway interface {
	CountActive(ctx context.Context, contentID string) (int, error)
	// RevokeAll revokes every active grant for the content, collecting
	// per-grant failures instead of aborting.
	RevokeAll(ctx context.Context, contentID string, reason string) (revoked int, failures []domain.CascadeFailure, err error)
}

// IssueTokenInput parameterizes token issuance.
type IssueTokenInput struct {
	ContentID       string
	OwnerID         string
	Domains         []string
	TTLDays         *int
	AllowAnalytics  bool
	ShowAttribution bool
	CustomStyle     string
}

// IssuedToken carries the one-time raw secret alongside the stored token.
type IssuedToken struct {
	Token    domain.EmbedToken
	Secret   string
	EmbedURL string
	// ConsentRenewalRequired is set when the owner's consent verification is
	// stale; issuance still succeeds but the caller must surface it before
	// further public distribution.
	ConsentRenewalRequired bool
}

// TokenService issues, validates and revokes embed tokens.
type TokenService interface {
	Issue(ctx context.Context, in IssueTokenInput) (*IssuedToken, error)
	// Validate checks a bearer secret for a render request and returns the
	// content id it grants access to.
	Validate(ctx context.Context, rawToken string, requestDomain string) (string, error)
	// Revoke is idempotent: revoking an already revoked token reports
	// newlyRevoked=false with a nil error.
	Revoke(ctx context.Context, tokenID, actorID, reason string) (newlyRevoked bool, err error)
	ListActive(ctx context.Context, contentID string, ownerID string) ([]domain.EmbedToken, error)
}

// SubscriptionUpdate carries the mutable fields of a subscription; nil means
// leave unchanged.
type SubscriptionUpdate struct {
	Events      []string
	IsActive    *bool
	Description *string
}

// WebhookService manages subscriptions and delivers consent events.
type WebhookService interface {
	Subscribe(ctx context.Context, appID, url string, events []string, description string) (*domain.WebhookSubscription, error)
	Update(ctx context.Context, id string, appID string, update SubscriptionUpdate) (*domain.WebhookSubscription, error)
	Delete(ctx context.Context, id string, appID string) error
	List(ctx context.Context, appID string) ([]domain.WebhookSubscription, error)
	// Deliver fans the event out asynchronously to every active matching
	// subscription and returns the number of deliveries enqueued. It never
	// blocks on endpoint I/O.
	Deliver(ctx context.Context, event domain.WebhookEvent) (int, error)
	ListDeliveries(ctx context.Context, subscriptionID string, appID string, limit int) ([]domain.WebhookDeliveryLog, error)
	// TestFire sends a synthetic test event to a single subscription,
	// regardless of its event filter.
	TestFire(ctx context.Context, subscriptionID string, appID string) error
	CountSubscribers(ctx context.Context, eventType string) (int, error)
	// Drain blocks until all in-flight deliveries finish, used on shutdown.
	Drain()
}

// RevocationService orchestrates the consent-withdrawal cascade.
type RevocationService interface {
	Preview(ctx context.Context, contentID string, scope domain.RevocationScope) (*domain.RevocationPreview, error)
	Execute(ctx context.Context, contentID, actorID string, opts domain.RevocationOptions) (*domain.RevocationResult, error)
	// WithdrawConsent is the owner-facing wrapper: scope=all, sharing
	// disabled, content visibility flipped off.
	WithdrawConsent(ctx context.Context, contentID, actorID string, reason string) (*domain.RevocationResult, error)
}

// AuditService records and exposes the consent audit trail.
type AuditService interface {
	Record(ctx context.Context, entry *domain.ConsentAuditLog) error
	List(ctx context.Context, contentID string) ([]domain.ConsentAuditLog, error)
}
