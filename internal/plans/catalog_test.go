package plans

import "testing"

func TestDefaultCatalogVersion(t *testing.T) {
	catalog := DefaultCatalog()
	if catalog.Version() != CurrentCatalogVersion {
		t.Errorf("Version() = %d, want %d", catalog.Version(), CurrentCatalogVersion)
	}
}

func TestGetPlanUnknownTierFallsBackToFree(t *testing.T) {
	catalog := DefaultCatalog()

	got := catalog.GetPlan(PlanTier("platinum"))
	free := catalog.GetPlan(TierFree)

	if got.DailyTradeLimit != free.DailyTradeLimit || got.TotalTradeLimit != free.TotalTradeLimit {
		t.Errorf("unknown tier returned %+v, want free tier limits", got)
	}
}

func TestIsValidTier(t *testing.T) {
	catalog := DefaultCatalog()

	for _, tier := range AllTiers {
		if !catalog.IsValidTier(tier) {
			t.Errorf("IsValidTier(%s) = false", tier)
		}
	}
	if catalog.IsValidTier(PlanTier("platinum")) {
		t.Error("IsValidTier(platinum) = true, want false")
	}
}

// TestHasFeatureUnlimitedSentinel the -1 sentinel counts as present, zero as
// absent
func TestHasFeatureUnlimitedSentinel(t *testing.T) {
	catalog := DefaultCatalog()

	// Elite daily limit is Unlimited (-1), which is present
	if !catalog.HasFeature(TierElite, FeatureDailyTradeLimit) {
		t.Error("elite dailyTradeLimit (-1) should count as present")
	}

	// Free tier has no auto trading
	if catalog.HasFeature(TierFree, FeatureAutoTrading) {
		t.Error("free autoTrading should be absent")
	}
	if !catalog.HasFeature(TierStarter, FeatureAutoTrading) {
		t.Error("starter autoTrading should be present")
	}

	// Unknown feature name
	if catalog.HasFeature(TierElite, "teleportation") {
		t.Error("unknown feature should be absent")
	}
}

func TestFreeTierLimits(t *testing.T) {
	catalog := DefaultCatalog()
	free := catalog.GetPlan(TierFree)

	if free.DailyTradeLimit == Unlimited {
		t.Error("free tier daily limit must be finite")
	}
	if free.TotalTradeLimit == Unlimited {
		t.Error("free tier total limit must be finite")
	}
}

// TestPaidTiersHaveNoTotalLimit the lifetime total cap is a trial-tier
// concept only
func TestPaidTiersHaveNoTotalLimit(t *testing.T) {
	catalog := DefaultCatalog()

	for _, tier := range []PlanTier{TierStarter, TierPro, TierElite, TierDesktop} {
		if limit := catalog.GetPlan(tier).TotalTradeLimit; limit != Unlimited {
			t.Errorf("%s TotalTradeLimit = %d, want Unlimited", tier, limit)
		}
	}
}

func TestStrategyAndChainGates(t *testing.T) {
	catalog := DefaultCatalog()

	if !catalog.IsStrategyAllowed(TierFree, StrategyDCA) {
		t.Error("free tier should allow dca")
	}
	if catalog.IsStrategyAllowed(TierFree, StrategyScalping) {
		t.Error("free tier should not allow scalping")
	}
	if !catalog.IsStrategyAllowed(TierElite, StrategyScalping) {
		t.Error("elite tier should allow scalping")
	}

	if !catalog.IsChainAllowed(TierFree, ChainEthereum) {
		t.Error("free tier should allow ethereum")
	}
	if catalog.IsChainAllowed(TierFree, ChainBase) {
		t.Error("free tier should not allow base")
	}
}

func TestFormatPrice(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "Free"},
		{2900, "$29"},
		{9950, "$99.50"},
		{5, "$0.05"},
	}

	for _, c := range cases {
		if got := FormatPrice(c.cents); got != c.want {
			t.Errorf("FormatPrice(%d) = %q, want %q", c.cents, got, c.want)
		}
	}
}

func TestCalculateSavings(t *testing.T) {
	catalog := DefaultCatalog()

	// Starter: 2900*12 - 29000 = 5800
	if got := catalog.CalculateSavings(TierStarter); got != 5800 {
		t.Errorf("CalculateSavings(starter) = %d, want 5800", got)
	}

	// Free has no pricing, savings are zero
	if got := catalog.CalculateSavings(TierFree); got != 0 {
		t.Errorf("CalculateSavings(free) = %d, want 0", got)
	}
}

func TestIsValidCycle(t *testing.T) {
	for _, cycle := range AllCycles {
		if !IsValidCycle(cycle) {
			t.Errorf("IsValidCycle(%s) = false", cycle)
		}
	}
	if IsValidCycle(BillingCycle("weekly")) {
		t.Error("IsValidCycle(weekly) = true, want false")
	}
}
