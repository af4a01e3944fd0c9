package domain

import (
	"testing"
	"time"
)

func TestIsPurposeAllowed(t *testing.T) {
	tests := []struct {
		name    string
		tier    PermissionTier
		purpose SharingPurpose
		want    bool
	}{
		{"Private allows nothing", TierPrivate, PurposeDirectShare, false},
		{"Trusted circle direct share", TierTrustedCircle, PurposeDirectShare, true},
		{"Trusted circle email", TierTrustedCircle, PurposeEmail, true},
		{"Trusted circle denies embed", TierTrustedCircle, PurposeEmbed, false},
		{"Trusted circle denies social", TierTrustedCircle, PurposeSocialMedia, false},
		{"Community allows embed", TierCommunity, PurposeEmbed, true},
		{"Community denies social", TierCommunity, PurposeSocialMedia, false},
		{"Community denies partner", TierCommunity, PurposePartner, false},
		{"Public allows social", TierPublic, PurposeSocialMedia, true},
		{"Public allows partner", TierPublic, PurposePartner, true},
		{"Archive allows embed", TierArchive, PurposeEmbed, true},
		{"Unknown tier allows nothing", PermissionTier("bogus"), PurposeEmbed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPurposeAllowed(tt.tier, tt.purpose); got != tt.want {
				t.Errorf("IsPurposeAllowed(%s, %s) = %v, want %v", tt.tier, tt.purpose, got, tt.want)
			}
		})
	}
}

func TestCanWithdraw(t *testing.T) {
	withdrawable := []PermissionTier{TierPrivate, TierTrustedCircle, TierCommunity, TierPublic}
	for _, tier := range withdrawable {
		if !CanWithdraw(tier) {
			t.Errorf("CanWithdraw(%s) = false, want true", tier)
		}
	}

	if CanWithdraw(TierArchive) {
		t.Error("CanWithdraw(archive) = true, archive consent is permanent")
	}
	if CanWithdraw(PermissionTier("bogus")) {
		t.Error("CanWithdraw should reject unknown tiers")
	}
}

func TestRequiresExplicitConsent(t *testing.T) {
	if !RequiresExplicitConsent(TierArchive) {
		t.Error("archive tier must require explicit consent")
	}
	if RequiresExplicitConsent(TierPublic) {
		t.Error("public tier should not require explicit consent")
	}
}

func TestValidTier(t *testing.T) {
	for _, tier := range []PermissionTier{TierPrivate, TierTrustedCircle, TierCommunity, TierPublic, TierArchive} {
		if !ValidTier(tier) {
			t.Errorf("ValidTier(%s) = false", tier)
		}
	}
	if ValidTier("") || ValidTier("everything") {
		t.Error("ValidTier accepted a tier outside the enumeration")
	}
}

func TestAllowedPurposesIsACopy(t *testing.T) {
	purposes := AllowedPurposes(TierCommunity)
	if len(purposes) != 3 {
		t.Fatalf("expected 3 purposes for community, got %d", len(purposes))
	}

	// Mutating the returned slice must not corrupt the capability table.
	purposes[0] = PurposeSocialMedia
	if IsPurposeAllowed(TierCommunity, PurposeSocialMedia) {
		t.Error("capability table was mutated through AllowedPurposes result")
	}
}

func TestNeedsConsentRenewal(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-24 * time.Hour)
	stale := now.Add(-31 * 24 * time.Hour)

	if NeedsConsentRenewal(&fresh, now) {
		t.Error("consent verified 1 day ago should not need renewal")
	}
	if !NeedsConsentRenewal(&stale, now) {
		t.Error("consent verified 31 days ago should need renewal")
	}
	if !NeedsConsentRenewal(nil, now) {
		t.Error("never-verified consent should need renewal")
	}
}

func TestContentRecordArchivable(t *testing.T) {
	rec := &ContentRecord{PermissionTier: TierPublic}
	if !rec.Archivable() {
		t.Error("public content should be archivable")
	}

	rec.PermissionTier = TierArchive
	if rec.Archivable() {
		t.Error("archive-tier content must never be archivable via the cascade")
	}
}
