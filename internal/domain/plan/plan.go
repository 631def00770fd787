package plan

import (
	"github.com/shopspring/decimal"

	"github.com/fitpulse/service-billing/internal/platform/domain"
)

// Tier identifies a subscription plan.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// Info defines the properties of a subscription plan.
type Info struct {
	Tier         Tier            `json:"plan"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	Description  string          `json:"description"`
}

// Catalog returns the plans members can subscribe to.
func Catalog() []Info {
	return []Info{
		{Tier: TierBasic, Price: decimal.RequireFromString("4.99"), DurationDays: 30, Description: "Workout log and exercise library"},
		{Tier: TierPremium, Price: decimal.RequireFromString("9.99"), DurationDays: 30, Description: "Adds partner matching and nutrition estimates"},
		{Tier: TierPro, Price: decimal.RequireFromString("99.99"), DurationDays: 365, Description: "Premium billed yearly with personal records export"},
	}
}

// Lookup returns the catalog entry for tier.
func Lookup(tier string) (Info, error) {
	for _, p := range Catalog() {
		if string(p.Tier) == tier {
			return p, nil
		}
	}
	return Info{}, domain.NewValidationError("unknown plan: " + tier)
}
