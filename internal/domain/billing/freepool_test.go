package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFreePool(t *testing.T) {
	p := DefaultPricing()

	tests := []struct {
		name        string
		earningSide *Profile
		other       *Profile
		want        FreePoolPolicy
	}{
		{
			name:        "low band earn off is unlimited",
			earningSide: profileWith(func(pr *Profile) { pr.PopularityBand = BandLow }),
			other:       profileWith(nil),
			want:        FreePoolPolicy{UnlimitedFree: true},
		},
		{
			name: "low band with earn toggle gets default allowance",
			earningSide: profileWith(func(pr *Profile) {
				pr.PopularityBand = BandLow
				pr.EarnOnChat = true
			}),
			other: profileWith(nil),
			want:  FreePoolPolicy{FreeMessagesPerParticipant: p.DefaultFreeMessages},
		},
		{
			name:        "mid band earn off gets extended allowance",
			earningSide: profileWith(func(pr *Profile) { pr.PopularityBand = BandMid }),
			other:       profileWith(nil),
			want:        FreePoolPolicy{FreeMessagesPerParticipant: p.MidBandFreeMessages},
		},
		{
			name:        "high band gets default allowance",
			earningSide: profileWith(func(pr *Profile) { pr.PopularityBand = BandHigh }),
			other:       profileWith(nil),
			want:        FreePoolPolicy{FreeMessagesPerParticipant: p.DefaultFreeMessages},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyFreePool(tt.other, tt.earningSide, tt.earningSide, p)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyFreePool_NewAccountBlocksUnlimitedOnly(t *testing.T) {
	p := DefaultPricing()

	fresh := profileWith(func(pr *Profile) {
		pr.PopularityBand = BandLow
		pr.AccountAgeDays = p.OnboardingMinAgeDays - 1
	})
	established := profileWith(nil)

	// The pairing would be unlimited, but the new account forces a bounded
	// allowance so billing is always reachable.
	got := ClassifyFreePool(fresh, established, fresh, p)
	assert.False(t, got.UnlimitedFree)
	assert.Equal(t, p.DefaultFreeMessages, got.FreeMessagesPerParticipant)

	// Either side being new has the same effect.
	got = ClassifyFreePool(established, fresh, established, p)
	assert.False(t, got.UnlimitedFree)

	// A mid-band bounded allowance is unaffected by account age.
	midFresh := profileWith(func(pr *Profile) {
		pr.PopularityBand = BandMid
		pr.AccountAgeDays = 0
	})
	got = ClassifyFreePool(midFresh, established, midFresh, p)
	assert.Equal(t, p.MidBandFreeMessages, got.FreeMessagesPerParticipant)
}

func TestEvaluateFreePoolOverride(t *testing.T) {
	a := profileWith(func(pr *Profile) { pr.PopularityBand = BandHigh })
	b := profileWith(func(pr *Profile) { pr.AccountAgeDays = 400 })

	ok, err := EvaluateFreePoolOverride(`a_popularityBand == "HIGH" && b_accountAgeDays > 365`, a, b)
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateFreePoolOverride(`a_royalTier == "ROYAL"`, a, b)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = EvaluateFreePoolOverride(`a_popularityBand ==`, a, b)
	assert.Error(t, err)
}
