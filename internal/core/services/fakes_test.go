package services

import (
	"context"
	"sync"
	"time"

	"github.com/storyweave/consentd/internal/core/domain"
	"github.com/storyweave/consentd/internal/core/ports"
)

// fakeStore is an in-memory implementation of the repository ports used by the
// service tests.
type fakeStore struct {
	mu       sync.Mutex
	contents map[string]*domain.ContentRecord
	tokens   map[string]*domain.EmbedToken
	subs     map[string]*domain.WebhookSubscription
	logs     []domain.WebhookDeliveryLog
	audits   []domain.ConsentAuditLog

	archiveCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contents: make(map[string]*domain.ContentRecord),
		tokens:   make(map[string]*domain.EmbedToken),
		subs:     make(map[string]*domain.WebhookSubscription),
	}
}

func (f *fakeStore) CreateToken(ctx context.Context, token *domain.EmbedToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *token
	f.tokens[token.ID] = &cp
	return nil
}

func (f *fakeStore) GetTokenByHash(ctx context.Context, tokenHash string) (*domain.EmbedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetTokenByID(ctx context.Context, tokenID string) (*domain.EmbedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListActiveTokens(ctx context.Context, contentID string) ([]domain.EmbedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EmbedToken
	for _, t := range f.tokens {
		if t.ContentID == contentID && t.Status == domain.TokenActive {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) TransitionTokenStatus(ctx context.Context, tokenID string, from, to domain.TokenStatus, reason string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenID]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	if to == domain.TokenRevoked {
		t.RevokedAt = &at
		t.RevokeReason = reason
	}
	return true, nil
}

func (f *fakeStore) RecordTokenUsage(ctx context.Context, tokenID string, usedDomain string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tokens[tokenID]; ok {
		t.UsageCount++
		t.LastUsedAt = &at
		t.LastUsedDomain = usedDomain
	}
	return nil
}

func (f *fakeStore) SumTokenViews(ctx context.Context, contentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, t := range f.tokens {
		if t.ContentID == contentID {
			total += t.UsageCount
		}
	}
	return total, nil
}

func (f *fakeStore) CreateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	f.subs[sub.ID] = &cp
	return nil
}

func (f *fakeStore) GetSubscription(ctx context.Context, id string) (*domain.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListSubscriptions(ctx context.Context, owningAppID string) ([]domain.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WebhookSubscription
	for _, s := range f.subs {
		if s.OwningAppID == owningAppID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveSubscriptionsForEvent(ctx context.Context, eventType string) ([]domain.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WebhookSubscription
	for _, s := range f.subs {
		if s.IsActive && s.WantsEvent(eventType) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSubscription(ctx context.Context, sub *domain.WebhookSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	f.subs[sub.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteSubscription(ctx context.Context, id string, owningAppID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[id]; ok && s.OwningAppID == owningAppID {
		delete(f.subs, id)
	}
	return nil
}

func (f *fakeStore) SaveDeliveryLog(ctx context.Context, entry *domain.WebhookDeliveryLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = int64(len(f.logs) + 1)
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeStore) ListDeliveryLogs(ctx context.Context, subscriptionID string, limit int) ([]domain.WebhookDeliveryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WebhookDeliveryLog
	for i := len(f.logs) - 1; i >= 0; i-- {
		if f.logs[i].SubscriptionID == subscriptionID {
			out = append(out, f.logs[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) RecordDeliverySuccess(ctx context.Context, subscriptionID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[subscriptionID]; ok {
		s.RecordSuccess(at)
	}
	return nil
}

func (f *fakeStore) RecordDeliveryFailure(ctx context.Context, subscriptionID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[subscriptionID]
	if !ok {
		return false, nil
	}
	return s.RecordFailure(at), nil
}

func (f *fakeStore) GetContent(ctx context.Context, contentID string) (*domain.ContentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contents[contentID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) ArchiveContent(ctx context.Context, contentID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archiveCalls++
	c, ok := f.contents[contentID]
	if !ok || c.Status == domain.StatusArchived {
		return false, nil
	}
	c.Status = domain.StatusArchived
	c.UpdatedAt = at
	return true, nil
}

func (f *fakeStore) SetSharingEnabled(ctx context.Context, contentID string, enabled bool, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contents[contentID]
	if !ok || c.SharingEnabled == enabled {
		return false, nil
	}
	c.SharingEnabled = enabled
	c.UpdatedAt = at
	return true, nil
}

func (f *fakeStore) SaveAuditLog(ctx context.Context, entry *domain.ConsentAuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, *entry)
	return nil
}

func (f *fakeStore) GetAuditLogs(ctx context.Context, contentID string) ([]domain.ConsentAuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ConsentAuditLog
	for _, a := range f.audits {
		if a.ContentID == contentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) auditActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.audits))
	for _, a := range f.audits {
		out = append(out, a.Action)
	}
	return out
}

func (f *fakeStore) token(id string) *domain.EmbedToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// stubWebhooks implements ports.WebhookService, recording Deliver calls.
type stubWebhooks struct {
	mu        sync.Mutex
	delivered []domain.WebhookEvent
	subCount  int
}

func (s *stubWebhooks) Subscribe(ctx context.Context, appID, url string, events []string, description string) (*domain.WebhookSubscription, error) {
	return nil, nil
}

func (s *stubWebhooks) Update(ctx context.Context, id string, appID string, update ports.SubscriptionUpdate) (*domain.WebhookSubscription, error) {
	return nil, nil
}

func (s *stubWebhooks) Delete(ctx context.Context, id string, appID string) error { return nil }

func (s *stubWebhooks) List(ctx context.Context, appID string) ([]domain.WebhookSubscription, error) {
	return nil, nil
}

func (s *stubWebhooks) Deliver(ctx context.Context, event domain.WebhookEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, event)
	return s.subCount, nil
}

func (s *stubWebhooks) ListDeliveries(ctx context.Context, subscriptionID string, appID string, limit int) ([]domain.WebhookDeliveryLog, error) {
	return nil, nil
}

func (s *stubWebhooks) TestFire(ctx context.Context, subscriptionID string, appID string) error {
	return nil
}

func (s *stubWebhooks) CountSubscribers(ctx context.Context, eventType string) (int, error) {
	return s.subCount, nil
}

func (s *stubWebhooks) Drain() {}

func (s *stubWebhooks) deliveredEvents() []domain.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WebhookEvent, len(s.delivered))
	copy(out, s.delivered)
	return out
}
