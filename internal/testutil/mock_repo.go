package testutil

import (
	"context"
	"time"

	"github.com/storyweave/consentd/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) CreateToken(ctx context.Context, token *domain.EmbedToken) error {
	args := m.Called(token)
	return args.Error(0)
}

func (m *MockRepo) GetTokenByHash(ctx context.Context, tokenHash string) (*domain.EmbedToken, error) {
	args := m.Called(tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbedToken), args.Error(1)
}

func (m *MockRepo) GetTokenByID(ctx context.Context, tokenID string) (*domain.EmbedToken, error) {
	args := m.Called(tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbedToken), args.Error(1)
}

func (m *MockRepo) ListActiveTokens(ctx context.Context, contentID string) ([]domain.EmbedToken, error) {
	args := m.Called(contentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.EmbedToken), args.Error(1)
}

func (m *MockRepo) TransitionTokenStatus(ctx context.Context, tokenID string, from, to domain.TokenStatus, reason string, at time.Time) (bool, error) {
	args := m.Called(tokenID, from, to, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) RecordTokenUsage(ctx context.Context, tokenID string, usedDomain string, at time.Time) error {
	args := m.Called(tokenID, usedDomain)
	return args.Error(0)
}

func (m *MockRepo) SumTokenViews(ctx context.Context, contentID string) (int64, error) {
	args := m.Called(contentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepo) CreateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	args := m.Called(sub)
	return args.Error(0)
}

func (m *MockRepo) GetSubscription(ctx context.Context, id string) (*domain.WebhookSubscription, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookSubscription), args.Error(1)
}

func (m *MockRepo) ListSubscriptions(ctx context.Context, owningAppID string) ([]domain.WebhookSubscription, error) {
	args := m.Called(owningAppID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WebhookSubscription), args.Error(1)
}

func (m *MockRepo) ListActiveSubscriptionsForEvent(ctx context.Context, eventType string) ([]domain.WebhookSubscription, error) {
	args := m.Called(eventType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WebhookSubscription), args.Error(1)
}

func (m *MockRepo) UpdateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	args := m.Called(sub)
	return args.Error(0)
}

func (m *MockRepo) DeleteSubscription(ctx context.Context, id string, owningAppID string) error {
	args := m.Called(id, owningAppID)
	return args.Error(0)
}

func (m *MockRepo) SaveDeliveryLog(ctx context.Context, entry *domain.WebhookDeliveryLog) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockRepo) ListDeliveryLogs(ctx context.Context, subscriptionID string, limit int) ([]domain.WebhookDeliveryLog, error) {
	args := m.Called(subscriptionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WebhookDeliveryLog), args.Error(1)
}

func (m *MockRepo) RecordDeliverySuccess(ctx context.Context, subscriptionID string, at time.Time) error {
	args := m.Called(subscriptionID)
	return args.Error(0)
}

func (m *MockRepo) RecordDeliveryFailure(ctx context.Context, subscriptionID string, at time.Time) (bool, error) {
	args := m.Called(subscriptionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) GetContent(ctx context.Context, contentID string) (*domain.ContentRecord, error) {
	args := m.Called(contentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContentRecord), args.Error(1)
}

func (m *MockRepo) ArchiveContent(ctx context.Context, contentID string, at time.Time) (bool, error) {
	args := m.Called(contentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) SetSharingEnabled(ctx context.Context, contentID string, enabled bool, at time.Time) (bool, error) {
	args := m.Called(contentID, enabled)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) SaveAuditLog(ctx context.Context, entry *domain.ConsentAuditLog) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockRepo) GetAuditLogs(ctx context.Context, contentID string) ([]domain.ConsentAuditLog, error) {
	args := m.Called(contentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConsentAuditLog), args.Error(1)
}

func (m *MockRepo) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *MockRepo) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	args := m.Called(keyHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockRepo) ListAPIKeys(ctx context.Context, appID string) ([]domain.APIKey, error) {
	args := m.Called(appID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.APIKey), args.Error(1)
}

func (m *MockRepo) RevokeAPIKey(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
