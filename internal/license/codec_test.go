package license

import (
	"strings"
	"testing"

	"crypto-trading-saas/internal/plans"
)

// TestGenerateRoundTrip generates codes for every tier/cycle combination and
// validates each one
func TestGenerateRoundTrip(t *testing.T) {
	for _, tier := range plans.AllTiers {
		for _, cycle := range plans.AllCycles {
			code, err := Generate(tier, cycle)
			if err != nil {
				t.Fatalf("Generate(%s, %s) failed: %v", tier, cycle, err)
			}

			result := Validate(code)
			if !result.Valid {
				t.Errorf("generated code %q did not validate: %s", code, result.Error)
			}
			if result.PlanTier != tier {
				t.Errorf("code %q decoded tier %s, want %s", code, result.PlanTier, tier)
			}
		}
	}
}

func TestGenerateUnknownTier(t *testing.T) {
	if _, err := Generate(plans.PlanTier("platinum"), plans.CycleMonthly); err == nil {
		t.Error("expected error for unknown tier")
	}
	if _, err := Generate(plans.TierPro, plans.BillingCycle("weekly")); err == nil {
		t.Error("expected error for unknown billing cycle")
	}
}

// TestValidateChecksumFlip flips a single payload character and expects the
// checksum to catch it
func TestValidateChecksumFlip(t *testing.T) {
	code, err := Generate(plans.TierPro, plans.CycleYearly)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// First payload character sits right after "PRO-"
	original := code[4]
	replacement := byte('A')
	if original == replacement {
		replacement = 'B'
	}
	tampered := code[:4] + string(replacement) + code[5:]

	result := Validate(tampered)
	if result.Valid {
		t.Errorf("tampered code %q validated, original was %q", tampered, code)
	}
	if !strings.Contains(result.Error, "checksum") && !strings.Contains(result.Error, "format") {
		t.Errorf("unexpected error for tampered code: %s", result.Error)
	}
}

func TestValidateWrongChecksumDigits(t *testing.T) {
	code, err := Generate(plans.TierElite, plans.CycleLifetime)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Replace the 3-digit checksum with a different value
	claimed := code[len(code)-3:]
	wrong := "000"
	if claimed == "000" {
		wrong = "001"
	}
	tampered := code[:len(code)-3] + wrong

	result := Validate(tampered)
	if result.Valid {
		t.Errorf("code with wrong checksum %q validated", tampered)
	}
	if !strings.Contains(result.Error, "checksum mismatch") {
		t.Errorf("expected checksum mismatch error, got: %s", result.Error)
	}
}

func TestValidateFormatErrors(t *testing.T) {
	cases := []string{
		"",
		"PRO-ABCD-EFGH",
		"XXX-ABCD-EFGH-JKLM-NPQR-123",  // unknown prefix
		"PRO-AB1D-EFGH-JKLM-NPQR-123",  // 1 is not in the alphabet
		"PRO-ABOD-EFGH-JKLM-NPQR-123",  // O is not in the alphabet
		"PRO-ABCD-EFGH-JKLM-NPQR-12",   // short checksum
		"PRO-ABCD-EFGH-JKLM-NPQR-1234", // long checksum
	}

	for _, input := range cases {
		if result := Validate(input); result.Valid {
			t.Errorf("Validate(%q) = valid, want invalid", input)
		}
	}
}

// TestValidateCaseInsensitive lowercased input must validate the same
func TestValidateCaseInsensitive(t *testing.T) {
	code, err := Generate(plans.TierStarter, plans.CycleMonthly)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	result := Validate("  " + strings.ToLower(code) + " ")
	if !result.Valid {
		t.Errorf("lowercased code %q did not validate: %s", code, result.Error)
	}
	if result.PlanTier != plans.TierStarter {
		t.Errorf("decoded tier %s, want starter", result.PlanTier)
	}
}

func TestChecksumOf(t *testing.T) {
	// "AB" = 65 + 66 = 131
	if got := checksumOf("AB"); got != 131 {
		t.Errorf("checksumOf(AB) = %d, want 131", got)
	}
	// Sum wraps mod 1000
	payload := strings.Repeat("Z", 20) // 20 * 90 = 1800
	if got := checksumOf(payload); got != 800 {
		t.Errorf("checksumOf(Z*20) = %d, want 800", got)
	}
}

func TestGenerateForexKeyShape(t *testing.T) {
	key, err := GenerateForexKey("user-123", ForexPlanMonthly)
	if err != nil {
		t.Fatalf("GenerateForexKey failed: %v", err)
	}
	if !ValidateForexKeyFormat(key) {
		t.Errorf("generated key %q failed format validation", key)
	}
	if !strings.HasPrefix(key, "FX-MO-") {
		t.Errorf("monthly key %q missing FX-MO- prefix", key)
	}

	lifetime, err := GenerateForexKey("user-123", ForexPlanLifetime)
	if err != nil {
		t.Fatalf("GenerateForexKey failed: %v", err)
	}
	if !strings.HasPrefix(lifetime, "FX-LT-") {
		t.Errorf("lifetime key %q missing FX-LT- prefix", lifetime)
	}
}

func TestGenerateForexKeyUnknownPlan(t *testing.T) {
	if _, err := GenerateForexKey("user-123", ForexPlan("weekly")); err == nil {
		t.Error("expected error for unknown forex plan")
	}
}

func TestForexKeySameUserFragment(t *testing.T) {
	a, _ := GenerateForexKey("user-123", ForexPlanMonthly)
	b, _ := GenerateForexKey("user-123", ForexPlanMonthly)

	// FX-MO-XXXXXXXX: the 8-char user fragment is deterministic per user
	if a[6:14] != b[6:14] {
		t.Errorf("user fragments differ for same user: %q vs %q", a, b)
	}

	c, _ := GenerateForexKey("user-456", ForexPlanMonthly)
	if a[6:14] == c[6:14] {
		t.Errorf("user fragments collide for different users: %q vs %q", a, c)
	}
}

func TestValidateForexKeyFormat(t *testing.T) {
	valid := []string{
		"FX-MO-ABCDEF12-ABC123-XY9Z",
		"FX-LT-00000000-000000-0000",
		"fx-mo-abcdef12-abc123-xy9z", // case-insensitive
	}
	for _, key := range valid {
		if !ValidateForexKeyFormat(key) {
			t.Errorf("ValidateForexKeyFormat(%q) = false, want true", key)
		}
	}

	invalid := []string{
		"",
		"FX-XX-ABCDEF12-ABC123-XY9Z", // unknown plan tag
		"FX-MO-ABCDEF1-ABC123-XY9Z",  // short fragment
		"FX-MO-ABCDEF12-ABC123-XY9",  // short suffix
		"MO-FX-ABCDEF12-ABC123-XY9Z",
	}
	for _, key := range invalid {
		if ValidateForexKeyFormat(key) {
			t.Errorf("ValidateForexKeyFormat(%q) = true, want false", key)
		}
	}
}

// TestSchemesNotCrossValidated a well-formed forex key must never pass code
// validation and vice versa
func TestSchemesNotCrossValidated(t *testing.T) {
	key, _ := GenerateForexKey("user-123", ForexPlanLifetime)
	if result := Validate(key); result.Valid {
		t.Errorf("forex key %q passed subscription code validation", key)
	}

	code, _ := Generate(plans.TierDesktop, plans.CycleLifetime)
	if ValidateForexKeyFormat(code) {
		t.Errorf("subscription code %q passed forex key validation", code)
	}
}

func TestForexPlanFromKey(t *testing.T) {
	key, _ := GenerateForexKey("user-123", ForexPlanMonthly)
	plan, ok := ForexPlanFromKey(key)
	if !ok || plan != ForexPlanMonthly {
		t.Errorf("ForexPlanFromKey(%q) = %s, %t, want monthly, true", key, plan, ok)
	}

	if _, ok := ForexPlanFromKey("not-a-key"); ok {
		t.Error("ForexPlanFromKey accepted a malformed key")
	}
}
