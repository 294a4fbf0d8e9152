package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// GenderCategory classifies a participant for pairing rules.
type GenderCategory string

const (
	GenderMale      GenderCategory = "MALE"
	GenderFemale    GenderCategory = "FEMALE"
	GenderNonBinary GenderCategory = "NON_BINARY"
)

// RoyalTier is the premium earner classification.
type RoyalTier string

const (
	TierNone  RoyalTier = "NONE"
	TierRoyal RoyalTier = "ROYAL"
)

// PopularityBand buckets a profile's popularity.
type PopularityBand string

const (
	BandLow  PopularityBand = "LOW"
	BandMid  PopularityBand = "MID"
	BandHigh PopularityBand = "HIGH"
)

// Profile is the billing-relevant slice of a user profile. It is owned by the
// identity service and read once at session creation; a session never observes
// later profile changes.
type Profile struct {
	UserID           uuid.UUID      `json:"userId"`
	GenderCategory   GenderCategory `json:"genderCategory"`
	InfluencerEarnOn bool           `json:"influencerEarnOn"`
	EarnOnChat       bool           `json:"earnOnChat"`
	RoyalTier        RoyalTier      `json:"royalTier"`
	PopularityBand   PopularityBand `json:"popularityBand"`
	AccountAgeDays   int            `json:"accountAgeDays"`
}

var ErrProfileNotFound = errors.New("billing profile not found")

// ProfileStore reads billing profiles from the identity service.
type ProfileStore interface {
	GetBillingProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

func ValidateGenderCategory(g GenderCategory) error {
	switch g {
	case GenderMale, GenderFemale, GenderNonBinary:
		return nil
	default:
		return errors.New("invalid gender category")
	}
}

func ValidateRoyalTier(t RoyalTier) error {
	switch t {
	case TierNone, TierRoyal:
		return nil
	default:
		return errors.New("invalid royal tier")
	}
}

func ValidatePopularityBand(b PopularityBand) error {
	switch b {
	case BandLow, BandMid, BandHigh:
		return nil
	default:
		return errors.New("invalid popularity band")
	}
}
