package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storyweave/consentd/internal/core/domain"
	"github.com/storyweave/consentd/internal/core/ports"
	"github.com/storyweave/consentd/internal/infrastructure/metrics"
)

// DeliveryConfig tunes the outbound delivery pipeline. Zero values fall back
// to the defaults below.
type DeliveryConfig struct {
	Timeout    time.Duration   // per-attempt HTTP timeout
	Backoff    []time.Duration // waits between attempts; len+1 = max attempts
	MaxWorkers int             // concurrent deliveries across subscriptions
}

func (c DeliveryConfig) withDefaults() DeliveryConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Backoff == nil {
		c.Backoff = []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 8
	}
	return c
}

type webhookService struct {
	repo   ports.WebhookRepository
	audit  ports.AuditRepository
	client *http.Client
	cfg    DeliveryConfig
	logger *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWebhookService(repo ports.WebhookRepository, audit ports.AuditRepository, cfg DeliveryConfig, logger *slog.Logger) ports.WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &webhookService{
		repo:   repo,
		audit:  audit,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxWorkers),
	}
}

func (s *webhookService) Subscribe(ctx context.Context, appID, url string, events []string, description string) (*domain.WebhookSubscription, error) {
	if err := domain.ValidateWebhookURL(url); err != nil {
		return nil, err
	}
	if err := domain.ValidateEventTypes(events); err != nil {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating webhook secret: %w", err)
	}

	now := time.Now()
	sub := &domain.WebhookSubscription{
		ID:                     uuid.New().String(),
		OwningAppID:            appID,
		WebhookURL:             url,
		Secret:                 hex.EncodeToString(secret),
		Events:                 events,
		Description:            description,
		IsActive:               true,
		MaxConsecutiveFailures: domain.DefaultMaxConsecutiveFailures,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("storing subscription: %w", err)
	}

	s.logger.Info("webhook subscription created", "subscription_id", sub.ID, "app_id", appID, "events", events)
	return sub, nil
}

func (s *webhookService) Update(ctx context.Context, id string, appID string, update ports.SubscriptionUpdate) (*domain.WebhookSubscription, error) {
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	if sub == nil || sub.OwningAppID != appID {
		return nil, domain.ErrSubscriptionNotFound
	}

	now := time.Now()
	if update.Events != nil {
		if err := domain.ValidateEventTypes(update.Events); err != nil {
			return nil, err
		}
		sub.Events = update.Events
	}
	if update.Description != nil {
		sub.Description = *update.Description
	}
	if update.IsActive != nil {
		if *update.IsActive {
			sub.Reactivate(now)
			s.logger.Info("webhook subscription reactivated, circuit closed", "subscription_id", id)
		} else {
			sub.IsActive = false
		}
	}
	sub.UpdatedAt = now

	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("updating subscription: %w", err)
	}
	return sub, nil
}

func (s *webhookService) Delete(ctx context.Context, id string, appID string) error {
	return s.repo.DeleteSubscription(ctx, id, appID)
}

func (s *webhookService) List(ctx context.Context, appID string) ([]domain.WebhookSubscription, error) {
	return s.repo.ListSubscriptions(ctx, appID)
}

func (s *webhookService) ListDeliveries(ctx context.Context, subscriptionID string, appID string, limit int) ([]domain.WebhookDeliveryLog, error) {
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	if sub == nil || sub.OwningAppID != appID {
		return nil, domain.ErrSubscriptionNotFound
	}
	return s.repo.ListDeliveryLogs(ctx, subscriptionID, limit)
}

func (s *webhookService) CountSubscribers(ctx context.Context, eventType string) (int, error) {
	subs, err := s.repo.ListActiveSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

// Deliver fans the event out to every active matching subscription. Each
// delivery runs on its own goroutine behind a bounded semaphore so one slow
// endpoint never delays the others, and the triggering request never waits on
// endpoint I/O.
func (s *webhookService) Deliver(ctx context.Context, event domain.WebhookEvent) (int, error) {
	subs, err := s.repo.ListActiveSubscriptionsForEvent(ctx, event.EventType)
	if err != nil {
		return 0, fmt.Errorf("listing subscriptions: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("encoding event: %w", err)
	}

	for i := range subs {
		sub := subs[i]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sem <- struct{}{}
			defer func() { <-s.sem }()
			// Detached from the triggering request's context: the delivery
			// outlives the revocation call that fired it.
			s.deliverOne(context.Background(), &sub, event.EventType, body)
		}()
	}
	return len(subs), nil
}

// TestFire sends a synthetic test event to a single subscription so its
// owner can verify endpoint reachability and signature handling. The event
// flows through the normal attempt pipeline, so failures count against the
// circuit like any other delivery.
func (s *webhookService) TestFire(ctx context.Context, subscriptionID string, appID string) error {
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("loading subscription: %w", err)
	}
	if sub == nil || sub.OwningAppID != appID {
		return domain.ErrSubscriptionNotFound
	}

	body, err := json.Marshal(domain.WebhookEvent{
		EventType:  domain.EventTest,
		OccurredAt: time.Now(),
		Detail:     map[string]string{"subscription_id": subscriptionID},
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		s.deliverOne(context.Background(), sub, domain.EventTest, body)
	}()
	return nil
}

// Drain waits for all in-flight deliveries, used on shutdown.
func (s *webhookService) Drain() {
	s.wg.Wait()
}

// deliverOne runs one logical delivery: up to len(backoff)+1 HTTP attempts,
// one log row per attempt, one failure-counter update per logical delivery.
func (s *webhookService) deliverOne(ctx context.Context, sub *domain.WebhookSubscription, eventType string, body []byte) {
	deliveryID := uuid.New().String()
	maxAttempts := len(s.cfg.Backoff) + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, elapsed, err := s.post(ctx, sub, body, eventType, deliveryID)

		entry := &domain.WebhookDeliveryLog{
			SubscriptionID: sub.ID,
			DeliveryID:     deliveryID,
			EventType:      eventType,
			AttemptNumber:  attempt,
			DeliveredAt:    time.Now(),
			ResponseTimeMS: elapsed.Milliseconds(),
		}
		if status != 0 {
			st := status
			entry.ResponseStatus = &st
		}
		if err == nil && status >= 200 && status < 300 {
			entry.Success = true
		} else if err != nil {
			entry.ErrorMessage = err.Error()
		} else {
			entry.ErrorMessage = fmt.Sprintf("endpoint returned HTTP %d", status)
		}
		if logErr := s.repo.SaveDeliveryLog(ctx, entry); logErr != nil {
			s.logger.Error("failed to save delivery log", "subscription_id", sub.ID, "delivery_id", deliveryID, "error", logErr)
		}

		if entry.Success {
			metrics.WebhookDeliveries.WithLabelValues("success").Inc()
			if err := s.repo.RecordDeliverySuccess(ctx, sub.ID, time.Now()); err != nil {
				s.logger.Error("failed to record delivery success", "subscription_id", sub.ID, "error", err)
			}
			return
		}

		s.logger.Warn("webhook delivery attempt failed",
			"subscription_id", sub.ID, "delivery_id", deliveryID,
			"attempt", attempt, "status", status, "error", entry.ErrorMessage)

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.Backoff[attempt-1]):
			}
		}
	}

	// All attempts exhausted: one logical failure against the circuit.
	metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
	opened, err := s.repo.RecordDeliveryFailure(ctx, sub.ID, time.Now())
	if err != nil {
		s.logger.Error("failed to record delivery failure", "subscription_id", sub.ID, "error", err)
		return
	}
	if opened {
		metrics.WebhookCircuitsOpened.Inc()
		s.logger.Error("webhook circuit opened, deliveries disabled until manual reactivation",
			"subscription_id", sub.ID, "url", sub.WebhookURL)
		s.recordCircuitAudit(ctx, sub, deliveryID)
	}
}

func (s *webhookService) post(ctx context.Context, sub *domain.WebhookSubscription, body []byte, eventType, deliveryID string) (status int, elapsed time.Duration, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, sub.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Consent-Event", eventType)
	req.Header.Set("X-Consent-Delivery", deliveryID)
	req.Header.Set("X-Consent-Signature", "sha256="+signPayload(sub.Secret, body))

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed = time.Since(start)
	if err != nil {
		return 0, elapsed, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, elapsed, nil
}

func (s *webhookService) recordCircuitAudit(ctx context.Context, sub *domain.WebhookSubscription, deliveryID string) {
	entry := &domain.ConsentAuditLog{
		ID:           uuid.New().String(),
		ActorID:      "system",
		Action:       domain.AuditActionCircuitOpened,
		ResourceType: "WEBHOOK_SUBSCRIPTION",
		ResourceID:   sub.ID,
		Details:      fmt.Sprintf("delivery_id=%s url=%s", deliveryID, sub.WebhookURL),
		CreatedAt:    time.Now(),
	}
	if err := s.audit.SaveAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to save circuit-open audit log", "subscription_id", sub.ID, "error", err)
	}
}

// signPayload computes the HMAC-SHA256 signature receivers use to
// authenticate the sender.
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
