package billing

// FreePoolPolicy governs how much free messaging a session gets before
// billing can begin. Computed once at session creation and stored immutably
// on the session.
type FreePoolPolicy struct {
	// UnlimitedFree means the session never transitions to paid messaging.
	UnlimitedFree bool
	// FreeMessagesPerParticipant is the bounded allowance each side may send
	// before the session requires a deposit. Zero when UnlimitedFree.
	FreeMessagesPerParticipant int
}

// ClassifyFreePool decides the session's free pool. earningSide is the
// profile whose words will be metered: the resolved earner, or the payer's
// counterparty when the platform earns.
//
// Accounts newer than the onboarding cutoff are never eligible for unlimited
// free messaging; they still receive whichever bounded allowance the
// remaining rules grant, so a new account always eventually hits billing.
func ClassifyFreePool(a, b, earningSide *Profile, p Pricing) FreePoolPolicy {
	newAccount := a.AccountAgeDays < p.OnboardingMinAgeDays ||
		b.AccountAgeDays < p.OnboardingMinAgeDays

	if !newAccount && earningSide.PopularityBand == BandLow && !earningSide.EarnOnChat {
		return FreePoolPolicy{UnlimitedFree: true}
	}
	if earningSide.PopularityBand == BandMid && !earningSide.EarnOnChat {
		return FreePoolPolicy{FreeMessagesPerParticipant: p.MidBandFreeMessages}
	}
	return FreePoolPolicy{FreeMessagesPerParticipant: p.DefaultFreeMessages}
}
