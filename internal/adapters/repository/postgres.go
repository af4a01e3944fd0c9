// Package repository implements ports.Repository using PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/storyweave/consentd/internal/core/domain"
)

// PostgresRepository implements ports.Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, content_id, token_hash, token_prefix, allowed_domains, expires_at, status,
	usage_count, last_used_at, last_used_domain, allow_analytics, show_attribution, custom_style,
	created_by, created_at, revoked_at, revoke_reason`

func (r *PostgresRepository) CreateToken(ctx context.Context, token *domain.EmbedToken) error {
	domains, err := json.Marshal(token.AllowedDomains)
	if err != nil {
		return fmt.Errorf("encoding allowed domains: %w", err)
	}
	query := `INSERT INTO embed_tokens (` + tokenColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err = r.db.ExecContext(ctx, query,
		token.ID, token.ContentID, token.TokenHash, token.TokenPrefix, domains, token.ExpiresAt,
		string(token.Status), token.UsageCount, token.LastUsedAt, nullIfEmpty(token.LastUsedDomain),
		token.AllowAnalytics, token.ShowAttribution, nullIfEmpty(token.CustomStyle),
		token.CreatedBy, token.CreatedAt, token.RevokedAt, nullIfEmpty(token.RevokeReason))
	return err
}

func (r *PostgresRepository) GetTokenByHash(ctx context.Context, tokenHash string) (*domain.EmbedToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM embed_tokens WHERE token_hash = $1`
	return r.scanToken(r.db.QueryRowContext(ctx, query, tokenHash))
}

func (r *PostgresRepository) GetTokenByID(ctx context.Context, tokenID string) (*domain.EmbedToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM embed_tokens WHERE id = $1`
	return r.scanToken(r.db.QueryRowContext(ctx, query, tokenID))
}

func (r *PostgresRepository) ListActiveTokens(ctx context.Context, contentID string) ([]domain.EmbedToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM embed_tokens WHERE content_id = $1 AND status = 'active' ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, contentID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer closeRows(rows)

	var tokens []domain.EmbedToken
	for rows.Next() {
		tok, errScan := r.scanTokenRow(rows)
		if errScan != nil {
			return nil, errScan
		}
		tokens = append(tokens, *tok)
	}
	return tokens, rows.Err()
}

func (r *PostgresRepository) TransitionTokenStatus(ctx context.Context, tokenID string, from, to domain.TokenStatus, reason string, at time.Time) (bool, error) {
	// Check-and-set on status: a concurrent transition loses cleanly.
	query := `UPDATE embed_tokens
	          SET status = $3,
	              revoked_at = CASE WHEN $3 = 'revoked' THEN $4 ELSE revoked_at END,
	              revoke_reason = CASE WHEN $3 = 'revoked' THEN $5 ELSE revoke_reason END
	          WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, tokenID, string(from), string(to), at, nullIfEmpty(reason))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresRepository) RecordTokenUsage(ctx context.Context, tokenID string, usedDomain string, at time.Time) error {
	query := `UPDATE embed_tokens SET usage_count = usage_count + 1, last_used_at = $2, last_used_domain = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, tokenID, at, nullIfEmpty(usedDomain))
	return err
}

func (r *PostgresRepository) SumTokenViews(ctx context.Context, contentID string) (int64, error) {
	query := `SELECT COALESCE(SUM(usage_count), 0) FROM embed_tokens WHERE content_id = $1`
	var total int64
	err := r.db.QueryRowContext(ctx, query, contentID).Scan(&total)
	return total, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanToken(row rowScanner) (*domain.EmbedToken, error) {
	tok, err := r.scanTokenRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (r *PostgresRepository) scanTokenRow(row rowScanner) (*domain.EmbedToken, error) {
	var tok domain.EmbedToken
	var domains []byte
	var status string
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	var lastUsedDomain, customStyle, revokeReason sql.NullString

	err := row.Scan(&tok.ID, &tok.ContentID, &tok.TokenHash, &tok.TokenPrefix, &domains, &expiresAt,
		&status, &tok.UsageCount, &lastUsedAt, &lastUsedDomain, &tok.AllowAnalytics,
		&tok.ShowAttribution, &customStyle, &tok.CreatedBy, &tok.CreatedAt, &revokedAt, &revokeReason)
	if err != nil {
		return nil, err
	}

	if len(domains) > 0 {
		if errJSON := json.Unmarshal(domains, &tok.AllowedDomains); errJSON != nil {
			return nil, fmt.Errorf("decoding allowed domains for token %s: %w", tok.ID, errJSON)
		}
	}
	tok.Status = domain.TokenStatus(status)
	if expiresAt.Valid {
		tok.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		tok.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		tok.RevokedAt = &revokedAt.Time
	}
	tok.LastUsedDomain = lastUsedDomain.String
	tok.CustomStyle = customStyle.String
	tok.RevokeReason = revokeReason.String
	return &tok, nil
}

const subscriptionColumns = `id, owning_app_id, webhook_url, secret, events, description, is_active,
	failure_count, consecutive_failures, max_consecutive_failures,
	last_triggered_at, last_success_at, last_failure_at, created_at, updated_at`

func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	events, err := json.Marshal(sub.Events)
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}
	query := `INSERT INTO webhook_subscriptions (` + subscriptionColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = r.db.ExecContext(ctx, query,
		sub.ID, sub.OwningAppID, sub.WebhookURL, sub.Secret, events, nullIfEmpty(sub.Description),
		sub.IsActive, sub.FailureCount, sub.ConsecutiveFailures, sub.MaxConsecutiveFailures,
		sub.LastTriggeredAt, sub.LastSuccessAt, sub.LastFailureAt, sub.CreatedAt, sub.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetSubscription(ctx context.Context, id string) (*domain.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1`
	sub, err := r.scanSubscriptionRow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *PostgresRepository) ListSubscriptions(ctx context.Context, owningAppID string) ([]domain.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE owning_app_id = $1 ORDER BY created_at DESC`
	return r.querySubscriptions(ctx, query, owningAppID)
}

func (r *PostgresRepository) ListActiveSubscriptionsForEvent(ctx context.Context, eventType string) ([]domain.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions
	          WHERE is_active AND (events ? $1 OR events ? '*')`
	return r.querySubscriptions(ctx, query, eventType)
}

func (r *PostgresRepository) querySubscriptions(ctx context.Context, query string, args ...any) ([]domain.WebhookSubscription, error) {
	rows, errQuery := r.db.QueryContext(ctx, query, args...)
	if errQuery != nil {
		return nil, errQuery
	}
	defer closeRows(rows)

	var subs []domain.WebhookSubscription
	for rows.Next() {
		sub, errScan := r.scanSubscriptionRow(rows)
		if errScan != nil {
			return nil, errScan
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (r *PostgresRepository) scanSubscriptionRow(row rowScanner) (*domain.WebhookSubscription, error) {
	var sub domain.WebhookSubscription
	var events []byte
	var description sql.NullString
	var lastTriggered, lastSuccess, lastFailure sql.NullTime

	err := row.Scan(&sub.ID, &sub.OwningAppID, &sub.WebhookURL, &sub.Secret, &events, &description,
		&sub.IsActive, &sub.FailureCount, &sub.ConsecutiveFailures, &sub.MaxConsecutiveFailures,
		&lastTriggered, &lastSuccess, &lastFailure, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(events) > 0 {
		if errJSON := json.Unmarshal(events, &sub.Events); errJSON != nil {
			return nil, fmt.Errorf("decoding events for subscription %s: %w", sub.ID, errJSON)
		}
	}
	sub.Description = description.String
	if lastTriggered.Valid {
		sub.LastTriggeredAt = &lastTriggered.Time
	}
	if lastSuccess.Valid {
		sub.LastSuccessAt = &lastSuccess.Time
	}
	if lastFailure.Valid {
		sub.LastFailureAt = &lastFailure.Time
	}
	return &sub, nil
}

func (r *PostgresRepository) UpdateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	events, err := json.Marshal(sub.Events)
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}
	query := `UPDATE webhook_subscriptions
	          SET webhook_url = $2, events = $3, description = $4, is_active = $5,
	              consecutive_failures = $6, updated_at = $7
	          WHERE id = $1`
	_, err = r.db.ExecContext(ctx, query,
		sub.ID, sub.WebhookURL, events, nullIfEmpty(sub.Description),
		sub.IsActive, sub.ConsecutiveFailures, sub.UpdatedAt)
	return err
}

func (r *PostgresRepository) DeleteSubscription(ctx context.Context, id string, owningAppID string) error {
	query := `DELETE FROM webhook_subscriptions WHERE id = $1 AND owning_app_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, owningAppID)
	return err
}

func (r *PostgresRepository) RecordDeliverySuccess(ctx context.Context, subscriptionID string, at time.Time) error {
	query := `UPDATE webhook_subscriptions
	          SET consecutive_failures = 0, last_triggered_at = $2, last_success_at = $2, updated_at = $2
	          WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, subscriptionID, at)
	return err
}

func (r *PostgresRepository) RecordDeliveryFailure(ctx context.Context, subscriptionID string, at time.Time) (bool, error) {
	// Counter increment and circuit check happen in one statement so
	// concurrent deliveries cannot lose updates.
	query := `UPDATE webhook_subscriptions
	          SET failure_count = failure_count + 1,
	              consecutive_failures = consecutive_failures + 1,
	              last_triggered_at = $2, last_failure_at = $2, updated_at = $2,
	              is_active = CASE WHEN consecutive_failures + 1 >= max_consecutive_failures THEN FALSE ELSE is_active END
	          WHERE id = $1
	          RETURNING is_active, consecutive_failures, max_consecutive_failures`
	var isActive bool
	var consecutive, maxConsecutive int
	err := r.db.QueryRowContext(ctx, query, subscriptionID, at).Scan(&isActive, &consecutive, &maxConsecutive)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !isActive && consecutive == maxConsecutive, nil
}

func (r *PostgresRepository) SaveDeliveryLog(ctx context.Context, entry *domain.WebhookDeliveryLog) error {
	query := `INSERT INTO webhook_delivery_logs
	          (subscription_id, delivery_id, event_type, attempt_number, delivered_at, response_status, response_time_ms, success, error_message)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	          RETURNING id`
	var respStatus any
	if entry.ResponseStatus != nil {
		respStatus = *entry.ResponseStatus
	}
	return r.db.QueryRowContext(ctx, query,
		entry.SubscriptionID, entry.DeliveryID, entry.EventType, entry.AttemptNumber,
		entry.DeliveredAt, respStatus, entry.ResponseTimeMS, entry.Success,
		nullIfEmpty(entry.ErrorMessage)).Scan(&entry.ID)
}

func (r *PostgresRepository) ListDeliveryLogs(ctx context.Context, subscriptionID string, limit int) ([]domain.WebhookDeliveryLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, subscription_id, delivery_id, event_type, attempt_number, delivered_at,
	                 response_status, response_time_ms, success, error_message
	          FROM webhook_delivery_logs WHERE subscription_id = $1 ORDER BY id DESC LIMIT $2`
	rows, errQuery := r.db.QueryContext(ctx, query, subscriptionID, limit)
	if errQuery != nil {
		return nil, errQuery
	}
	defer closeRows(rows)

	var logs []domain.WebhookDeliveryLog
	for rows.Next() {
		var entry domain.WebhookDeliveryLog
		var respStatus sql.NullInt32
		var errMsg sql.NullString
		if errScan := rows.Scan(&entry.ID, &entry.SubscriptionID, &entry.DeliveryID, &entry.EventType,
			&entry.AttemptNumber, &entry.DeliveredAt, &respStatus, &entry.ResponseTimeMS,
			&entry.Success, &errMsg); errScan != nil {
			return nil, errScan
		}
		if respStatus.Valid {
			st := int(respStatus.Int32)
			entry.ResponseStatus = &st
		}
		entry.ErrorMessage = errMsg.String
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (r *PostgresRepository) GetContent(ctx context.Context, contentID string) (*domain.ContentRecord, error) {
	query := `SELECT id, owner_id, permission_tier, consent_verified_at, archive_consent_given,
	                 sharing_enabled, status, updated_at
	          FROM content_records WHERE id = $1`
	var rec domain.ContentRecord
	var tier, status string
	var consentVerifiedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, contentID).Scan(&rec.ID, &rec.OwnerID, &tier,
		&consentVerifiedAt, &rec.ArchiveConsentGiven, &rec.SharingEnabled, &status, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.PermissionTier = domain.PermissionTier(tier)
	rec.Status = domain.ContentStatus(status)
	if consentVerifiedAt.Valid {
		rec.ConsentVerifiedAt = &consentVerifiedAt.Time
	}
	return &rec, nil
}

func (r *PostgresRepository) ArchiveContent(ctx context.Context, contentID string, at time.Time) (bool, error) {
	query := `UPDATE content_records SET status = 'archived', updated_at = $2 WHERE id = $1 AND status <> 'archived'`
	res, err := r.db.ExecContext(ctx, query, contentID, at)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresRepository) SetSharingEnabled(ctx context.Context, contentID string, enabled bool, at time.Time) (bool, error) {
	query := `UPDATE content_records SET sharing_enabled = $2, updated_at = $3 WHERE id = $1 AND sharing_enabled <> $2`
	res, err := r.db.ExecContext(ctx, query, contentID, enabled, at)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PostgresRepository) SaveAuditLog(ctx context.Context, entry *domain.ConsentAuditLog) error {
	query := `INSERT INTO consent_audit_logs (id, content_id, actor_id, action, resource_type, resource_id, details, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query, entry.ID, nullIfEmpty(entry.ContentID), entry.ActorID,
		entry.Action, entry.ResourceType, entry.ResourceID, entry.Details, entry.CreatedAt)
	return err
}

func (r *PostgresRepository) GetAuditLogs(ctx context.Context, contentID string) ([]domain.ConsentAuditLog, error) {
	query := `SELECT id, content_id, actor_id, action, resource_type, resource_id, details, created_at
	          FROM consent_audit_logs WHERE content_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, contentID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer closeRows(rows)

	var logs []domain.ConsentAuditLog
	for rows.Next() {
		var l domain.ConsentAuditLog
		var cID sql.NullString
		if errScan := rows.Scan(&l.ID, &cID, &l.ActorID, &l.Action, &l.ResourceType, &l.ResourceID, &l.Details, &l.CreatedAt); errScan != nil {
			return nil, errScan
		}
		l.ContentID = cID.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *PostgresRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, app_id, actor_id, name, key_hash, key_prefix, role, active, created_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query, key.ID, key.AppID, key.ActorID, key.Name, key.KeyHash,
		key.KeyPrefix, string(key.Role), key.Active, key.CreatedAt, key.ExpiresAt)
	return err
}

func (r *PostgresRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT id, app_id, actor_id, name, key_hash, key_prefix, role, active, created_at, expires_at
	          FROM api_keys WHERE key_hash = $1`
	var key domain.APIKey
	var role string
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, keyHash).Scan(&key.ID, &key.AppID, &key.ActorID, &key.Name,
		&key.KeyHash, &key.KeyPrefix, &role, &key.Active, &key.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	key.Role = domain.Role(role)
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	return &key, nil
}

func (r *PostgresRepository) ListAPIKeys(ctx context.Context, appID string) ([]domain.APIKey, error) {
	query := `SELECT id, app_id, actor_id, name, key_hash, key_prefix, role, active, created_at, expires_at
	          FROM api_keys WHERE app_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, appID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer closeRows(rows)

	var keys []domain.APIKey
	for rows.Next() {
		var key domain.APIKey
		var role string
		var expiresAt sql.NullTime
		if errScan := rows.Scan(&key.ID, &key.AppID, &key.ActorID, &key.Name, &key.KeyHash,
			&key.KeyPrefix, &role, &key.Active, &key.CreatedAt, &expiresAt); errScan != nil {
			return nil, errScan
		}
		key.Role = domain.Role(role)
		if expiresAt.Valid {
			key.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *PostgresRepository) RevokeAPIKey(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET active = FALSE WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		log.Printf("failed to close rows: %v", err)
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
