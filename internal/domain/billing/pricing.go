package billing

import "errors"

// Pricing holds the business parameters of the engine. The source documents
// restate these numbers inconsistently, so nothing in the domain packages
// hard-codes them; everything flows from this struct.
type Pricing struct {
	// StandardBucketWords is the earner-word quota of one bucket.
	StandardBucketWords int
	// RoyalBucketWords is the reduced quota for Royal-tier earners.
	RoyalBucketWords int
	// BucketCostTokens is the escrow cost of one full bucket.
	BucketCostTokens int64
	// FeeNumerator/FeeDenominator define the platform's cut of each bucket.
	FeeNumerator   int64
	FeeDenominator int64
	// DefaultFreeMessages is the symmetric per-participant free allowance.
	DefaultFreeMessages int
	// MidBandFreeMessages is the bounded allowance for mid-popularity
	// earners with the earn toggle off.
	MidBandFreeMessages int
	// OnboardingMinAgeDays is the account age below which a participant is
	// never eligible for unlimited free messaging.
	OnboardingMinAgeDays int
	// FreePoolOverrideExpr optionally forces the unlimited pool for
	// ops-designated cohorts. Empty means no override.
	FreePoolOverrideExpr string
}

// DefaultPricing returns the production defaults.
func DefaultPricing() Pricing {
	return Pricing{
		StandardBucketWords:  40,
		RoyalBucketWords:     25,
		BucketCostTokens:     10,
		FeeNumerator:         35,
		FeeDenominator:       100,
		DefaultFreeMessages:  3,
		MidBandFreeMessages:  10,
		OnboardingMinAgeDays: 5,
	}
}

// Validate rejects parameter sets that would break billing arithmetic.
func (p Pricing) Validate() error {
	if p.StandardBucketWords <= 0 {
		return errors.New("standard bucket words must be positive")
	}
	if p.RoyalBucketWords <= 0 {
		return errors.New("royal bucket words must be positive")
	}
	if p.RoyalBucketWords > p.StandardBucketWords {
		return errors.New("royal bucket must not exceed the standard bucket")
	}
	if p.BucketCostTokens <= 0 {
		return errors.New("bucket cost must be positive")
	}
	if p.FeeDenominator <= 0 {
		return errors.New("fee denominator must be positive")
	}
	if p.FeeNumerator < 0 || p.FeeNumerator > p.FeeDenominator {
		return errors.New("fee numerator must be within [0, denominator]")
	}
	if p.DefaultFreeMessages < 0 || p.MidBandFreeMessages < 0 {
		return errors.New("free message allowances must not be negative")
	}
	if p.OnboardingMinAgeDays < 0 {
		return errors.New("onboarding age cutoff must not be negative")
	}
	return nil
}

// BucketWordsFor resolves the bucket quota from the earning side's tier.
func (p Pricing) BucketWordsFor(tier RoyalTier) int {
	if tier == TierRoyal {
		return p.RoyalBucketWords
	}
	return p.StandardBucketWords
}
