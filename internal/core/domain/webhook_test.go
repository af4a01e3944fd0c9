package domain

import (
	"testing"
	"time"
)

func TestWantsEvent(t *testing.T) {
	sub := &WebhookSubscription{Events: []string{EventConsentRevoked}}
	if !sub.WantsEvent(EventConsentRevoked) {
		t.Error("subscription should match its listed event")
	}
	if sub.WantsEvent(EventConsentGranted) {
		t.Error("subscription should not match unlisted events")
	}

	wildcard := &WebhookSubscription{Events: []string{"*"}}
	if !wildcard.WantsEvent(EventConsentRenewed) {
		t.Error("wildcard subscription should match any event")
	}
}

func TestRecordFailureOpensCircuit(t *testing.T) {
	now := time.Now()
	sub := &WebhookSubscription{
		IsActive:               true,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
	}

	for i := 1; i < DefaultMaxConsecutiveFailures; i++ {
		if opened := sub.RecordFailure(now); opened {
			t.Fatalf("circuit opened after %d failures, threshold is %d", i, DefaultMaxConsecutiveFailures)
		}
		if !sub.IsActive {
			t.Fatalf("subscription deactivated after %d failures", i)
		}
	}

	if opened := sub.RecordFailure(now); !opened {
		t.Fatal("circuit should open on the 5th consecutive failure")
	}
	if sub.IsActive {
		t.Error("open circuit must deactivate the subscription")
	}
	if sub.FailureCount != int64(DefaultMaxConsecutiveFailures) {
		t.Errorf("lifetime failure count = %d, want %d", sub.FailureCount, DefaultMaxConsecutiveFailures)
	}

	// Further failures on an open circuit do not re-report opening.
	if opened := sub.RecordFailure(now); opened {
		t.Error("already-open circuit reported opening again")
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	now := time.Now()
	sub := &WebhookSubscription{
		IsActive:               true,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
	}

	sub.RecordFailure(now)
	sub.RecordFailure(now)
	sub.RecordFailure(now)
	sub.RecordSuccess(now)

	if sub.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d after success, want 0", sub.ConsecutiveFailures)
	}
	if sub.FailureCount != 3 {
		t.Errorf("lifetime failure count = %d, want 3 (success must not erase it)", sub.FailureCount)
	}

	// A fresh run of failures needs the full threshold again.
	for i := 1; i < DefaultMaxConsecutiveFailures; i++ {
		if opened := sub.RecordFailure(now); opened {
			t.Fatalf("circuit opened after only %d failures following a success", i)
		}
	}
}

func TestReactivateClosesCircuit(t *testing.T) {
	now := time.Now()
	sub := &WebhookSubscription{
		IsActive:               true,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
	}
	for i := 0; i < DefaultMaxConsecutiveFailures; i++ {
		sub.RecordFailure(now)
	}
	if sub.IsActive {
		t.Fatal("circuit should be open")
	}

	sub.Reactivate(now)

	if !sub.IsActive {
		t.Error("Reactivate should re-enable the subscription")
	}
	if sub.ConsecutiveFailures != 0 {
		t.Errorf("Reactivate must reset consecutive failures, got %d", sub.ConsecutiveFailures)
	}
	if sub.FailureCount != int64(DefaultMaxConsecutiveFailures) {
		t.Errorf("Reactivate must keep the lifetime failure count, got %d", sub.FailureCount)
	}
}
