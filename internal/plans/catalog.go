package plans

import "fmt"

// PlanTier identifies a subscription plan in the catalog.
type PlanTier string

const (
	TierFree    PlanTier = "free"
	TierStarter PlanTier = "starter"
	TierPro     PlanTier = "pro"
	TierElite   PlanTier = "elite"
	TierDesktop PlanTier = "desktop"
)

// BillingCycle represents how a subscription is billed.
type BillingCycle string

const (
	CycleMonthly  BillingCycle = "monthly"
	CycleYearly   BillingCycle = "yearly"
	CycleLifetime BillingCycle = "lifetime"
)

// Unlimited is the sentinel for limits with no cap.
const Unlimited = -1

// AllTiers lists every tier in the catalog, lowest first.
var AllTiers = []PlanTier{TierFree, TierStarter, TierPro, TierElite, TierDesktop}

// AllCycles lists every supported billing cycle.
var AllCycles = []BillingCycle{CycleMonthly, CycleYearly, CycleLifetime}

// PlanFeatures describes the limits and capabilities of a tier.
// Instances are immutable at runtime; changing a tier means shipping a new
// catalog version.
type PlanFeatures struct {
	DailyTradeLimit      int             `json:"daily_trade_limit"` // -1 = unlimited
	TotalTradeLimit      int             `json:"total_trade_limit"` // trial tiers only, -1 = unlimited
	MaxActiveStrategies  int             `json:"max_active_strategies"`
	AllowedStrategies    map[string]bool `json:"allowed_strategies"`
	AllowedChains        map[int64]bool  `json:"allowed_chains"`
	AutoTrading          bool            `json:"auto_trading"`
	Arbitrage            bool            `json:"arbitrage"`
	CustomStrategies     bool            `json:"custom_strategies"`
	PrioritySupport      bool            `json:"priority_support"`
	APIAccess            bool            `json:"api_access"`
	Webhooks             bool            `json:"webhooks"`
	MultiWallet          bool            `json:"multi_wallet"`
	PerformanceAnalytics bool            `json:"performance_analytics"`
	WhiteLabel           bool            `json:"white_label"`
	MaxWallets           int             `json:"max_wallets"` // -1 = unlimited
}

// Pricing holds the price points for a tier in USD cents.
type Pricing struct {
	MonthlyCents  int64 `json:"monthly_cents"`
	YearlyCents   int64 `json:"yearly_cents"`
	LifetimeCents int64 `json:"lifetime_cents"`
}

// Feature names accepted by Catalog.HasFeature.
const (
	FeatureDailyTradeLimit      = "dailyTradeLimit"
	FeatureTotalTradeLimit      = "totalTradeLimit"
	FeatureMaxActiveStrategies  = "maxActiveStrategies"
	FeatureAllowedStrategies    = "allowedStrategies"
	FeatureAllowedChains        = "allowedChains"
	FeatureAutoTrading          = "autoTrading"
	FeatureArbitrage            = "arbitrage"
	FeatureCustomStrategies     = "customStrategies"
	FeaturePrioritySupport      = "prioritySupport"
	FeatureAPIAccess            = "apiAccess"
	FeatureWebhooks             = "webhooks"
	FeatureMultiWallet          = "multiWallet"
	FeaturePerformanceAnalytics = "performanceAnalytics"
	FeatureWhiteLabel           = "whiteLabel"
	FeatureMaxWallets           = "maxWallets"
)

// Catalog is the immutable, versioned plan table loaded at process start.
// Subscriptions record the catalog version they were sold under so in-flight
// entitlement checks stay consistent with the terms the user agreed to.
type Catalog struct {
	version  int
	features map[PlanTier]PlanFeatures
	pricing  map[PlanTier]Pricing
}

// Version returns the catalog version.
func (c *Catalog) Version() int {
	return c.version
}

// GetPlan returns the feature set for a tier. Unknown tiers fall back to free.
func (c *Catalog) GetPlan(tier PlanTier) PlanFeatures {
	if f, ok := c.features[tier]; ok {
		return f
	}
	return c.features[TierFree]
}

// GetPricing returns the price points for a tier.
func (c *Catalog) GetPricing(tier PlanTier) Pricing {
	if p, ok := c.pricing[tier]; ok {
		return p
	}
	return Pricing{}
}

// IsValidTier reports whether the tier exists in the catalog.
func (c *Catalog) IsValidTier(tier PlanTier) bool {
	_, ok := c.features[tier]
	return ok
}

// HasFeature reports whether a tier has a named feature. Numeric features
// count as present when nonzero (the -1 unlimited sentinel is present);
// set-valued features count as present when non-empty.
func (c *Catalog) HasFeature(tier PlanTier, feature string) bool {
	f := c.GetPlan(tier)

	switch feature {
	case FeatureDailyTradeLimit:
		return f.DailyTradeLimit != 0
	case FeatureTotalTradeLimit:
		return f.TotalTradeLimit != 0
	case FeatureMaxActiveStrategies:
		return f.MaxActiveStrategies != 0
	case FeatureAllowedStrategies:
		return len(f.AllowedStrategies) > 0
	case FeatureAllowedChains:
		return len(f.AllowedChains) > 0
	case FeatureAutoTrading:
		return f.AutoTrading
	case FeatureArbitrage:
		return f.Arbitrage
	case FeatureCustomStrategies:
		return f.CustomStrategies
	case FeaturePrioritySupport:
		return f.PrioritySupport
	case FeatureAPIAccess:
		return f.APIAccess
	case FeatureWebhooks:
		return f.Webhooks
	case FeatureMultiWallet:
		return f.MultiWallet
	case FeaturePerformanceAnalytics:
		return f.PerformanceAnalytics
	case FeatureWhiteLabel:
		return f.WhiteLabel
	case FeatureMaxWallets:
		return f.MaxWallets != 0
	default:
		return false
	}
}

// IsStrategyAllowed reports whether a tier may run the given strategy tag.
func (c *Catalog) IsStrategyAllowed(tier PlanTier, strategy string) bool {
	return c.GetPlan(tier).AllowedStrategies[strategy]
}

// IsChainAllowed reports whether a tier may trade on the given chain.
func (c *Catalog) IsChainAllowed(tier PlanTier, chainID int64) bool {
	return c.GetPlan(tier).AllowedChains[chainID]
}

// FormatPrice renders a cent amount as a display string.
func FormatPrice(cents int64) string {
	if cents == 0 {
		return "Free"
	}
	if cents%100 == 0 {
		return fmt.Sprintf("$%d", cents/100)
	}
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// CalculateSavings returns how many cents a year of the yearly cycle saves
// versus twelve months of the monthly cycle.
func (c *Catalog) CalculateSavings(tier PlanTier) int64 {
	p := c.GetPricing(tier)
	if p.MonthlyCents == 0 || p.YearlyCents == 0 {
		return 0
	}
	savings := p.MonthlyCents*12 - p.YearlyCents
	if savings < 0 {
		return 0
	}
	return savings
}

// Strategy tags and chain IDs referenced by the default catalog.
const (
	StrategyDCA       = "dca"
	StrategyGrid      = "grid"
	StrategyMomentum  = "momentum"
	StrategyArbitrage = "arbitrage"
	StrategyScalping  = "scalping"
)

const (
	ChainEthereum = int64(1)
	ChainBNB      = int64(56)
	ChainPolygon  = int64(137)
	ChainArbitrum = int64(42161)
	ChainBase     = int64(8453)
)

// CurrentCatalogVersion is bumped whenever the plan table below changes.
const CurrentCatalogVersion = 3

// DefaultCatalog builds the catalog shipped with this release.
func DefaultCatalog() *Catalog {
	return &Catalog{
		version: CurrentCatalogVersion,
		features: map[PlanTier]PlanFeatures{
			TierFree: {
				DailyTradeLimit:      5,
				TotalTradeLimit:      10,
				MaxActiveStrategies:  1,
				AllowedStrategies:    strategySet(StrategyDCA),
				AllowedChains:        chainSet(ChainEthereum),
				PerformanceAnalytics: false,
				MaxWallets:           1,
			},
			TierStarter: {
				DailyTradeLimit:      25,
				TotalTradeLimit:      Unlimited,
				MaxActiveStrategies:  3,
				AllowedStrategies:    strategySet(StrategyDCA, StrategyGrid),
				AllowedChains:        chainSet(ChainEthereum, ChainBNB),
				AutoTrading:          true,
				PerformanceAnalytics: true,
				MaxWallets:           1,
			},
			TierPro: {
				DailyTradeLimit:      100,
				TotalTradeLimit:      Unlimited,
				MaxActiveStrategies:  10,
				AllowedStrategies:    strategySet(StrategyDCA, StrategyGrid, StrategyMomentum, StrategyArbitrage),
				AllowedChains:        chainSet(ChainEthereum, ChainBNB, ChainPolygon),
				AutoTrading:          true,
				Arbitrage:            true,
				CustomStrategies:     true,
				PrioritySupport:      true,
				APIAccess:            true,
				Webhooks:             true,
				MultiWallet:          true,
				PerformanceAnalytics: true,
				MaxWallets:           3,
			},
			TierElite: {
				DailyTradeLimit:      Unlimited,
				TotalTradeLimit:      Unlimited,
				MaxActiveStrategies:  Unlimited,
				AllowedStrategies:    strategySet(StrategyDCA, StrategyGrid, StrategyMomentum, StrategyArbitrage, StrategyScalping),
				AllowedChains:        chainSet(ChainEthereum, ChainBNB, ChainPolygon, ChainArbitrum, ChainBase),
				AutoTrading:          true,
				Arbitrage:            true,
				CustomStrategies:     true,
				PrioritySupport:      true,
				APIAccess:            true,
				Webhooks:             true,
				MultiWallet:          true,
				PerformanceAnalytics: true,
				WhiteLabel:           true,
				MaxWallets:           Unlimited,
			},
			TierDesktop: {
				DailyTradeLimit:      Unlimited,
				TotalTradeLimit:      Unlimited,
				MaxActiveStrategies:  5,
				AllowedStrategies:    strategySet(StrategyDCA, StrategyGrid, StrategyMomentum, StrategyScalping),
				AllowedChains:        chainSet(ChainEthereum, ChainBNB),
				AutoTrading:          true,
				CustomStrategies:     true,
				PerformanceAnalytics: true,
				MaxWallets:           1,
			},
		},
		pricing: map[PlanTier]Pricing{
			TierFree:    {},
			TierStarter: {MonthlyCents: 2900, YearlyCents: 29000, LifetimeCents: 0},
			TierPro:     {MonthlyCents: 9900, YearlyCents: 99000, LifetimeCents: 249900},
			TierElite:   {MonthlyCents: 24900, YearlyCents: 249000, LifetimeCents: 499900},
			TierDesktop: {MonthlyCents: 4900, YearlyCents: 49000, LifetimeCents: 99900},
		},
	}
}

func strategySet(tags ...string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		set[tag] = true
	}
	return set
}

func chainSet(ids ...int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// IsValidCycle reports whether the billing cycle is one this catalog sells.
func IsValidCycle(cycle BillingCycle) bool {
	switch cycle {
	case CycleMonthly, CycleYearly, CycleLifetime:
		return true
	}
	return false
}
