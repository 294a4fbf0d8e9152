package billing

import (
	"errors"

	"github.com/google/uuid"
)

// RuleTag identifies which resolution rule decided a session's roles.
type RuleTag string

const (
	RuleInfluencerOverride RuleTag = "INFLUENCER_OVERRIDE"
	RuleAsymmetricPairing  RuleTag = "ASYMMETRIC_PAIRING"
	RuleMutualEarnOn       RuleTag = "MUTUAL_EARN_ON"
	RuleMutualEarnOff      RuleTag = "MUTUAL_EARN_OFF"
	RuleSingleEarnToggle   RuleTag = "SINGLE_EARN_TOGGLE"
)

// ErrRoleConflict means rule evaluation produced an equal payer and earner.
// Sessions hitting this are rejected at creation, never silently reassigned.
var ErrRoleConflict = errors.New("role resolution produced equal payer and earner")

// Resolution is the outcome of role resolution for one session. A nil
// EarnerID means the platform retains the full bucket value.
type Resolution struct {
	PayerID  uuid.UUID
	EarnerID *uuid.UUID
	Rule     RuleTag
}

// roleRule inspects the sender (first-message author) and receiver profiles
// and either resolves the session's roles or passes to the next rule.
type roleRule func(sender, receiver *Profile) *Resolution

var roleRules = []roleRule{
	influencerOverride,
	asymmetricPairing,
	mutualEarnToggle,
	singleEarnToggle,
}

// ResolveRoles decides who pays and who earns for a session between the
// sender of the first message and its receiver. Pure and deterministic:
// identical profile pairs always yield the identical resolution. Called once
// per session; the result is cached on the session record.
func ResolveRoles(sender, receiver *Profile) (Resolution, error) {
	for _, rule := range roleRules {
		if res := rule(sender, receiver); res != nil {
			if res.EarnerID != nil && *res.EarnerID == res.PayerID {
				return Resolution{}, ErrRoleConflict
			}
			return *res, nil
		}
	}
	// The rule list is exhaustive over the earn-toggle combinations, so
	// falling through means a defect, not a business case.
	return Resolution{}, ErrRoleConflict
}

// influencerOverride: exactly one side is an influencer with earning enabled.
// Both sides being influencers falls through to the pairing rules.
func influencerOverride(sender, receiver *Profile) *Resolution {
	if sender.InfluencerEarnOn == receiver.InfluencerEarnOn {
		return nil
	}
	earner, payer := sender, receiver
	if receiver.InfluencerEarnOn {
		earner, payer = receiver, sender
	}
	return &Resolution{PayerID: payer.UserID, EarnerID: ref(earner.UserID), Rule: RuleInfluencerOverride}
}

// asymmetricPairing: the male/female pairing, where the male side customarily
// pays. The customary payer's own earn toggle overrides the custom: with
// earnOnChat set, that side earns instead.
func asymmetricPairing(sender, receiver *Profile) *Resolution {
	var customary, other *Profile
	switch {
	case sender.GenderCategory == GenderMale && receiver.GenderCategory == GenderFemale:
		customary, other = sender, receiver
	case sender.GenderCategory == GenderFemale && receiver.GenderCategory == GenderMale:
		customary, other = receiver, sender
	default:
		return nil
	}
	if customary.EarnOnChat {
		return &Resolution{PayerID: other.UserID, EarnerID: ref(customary.UserID), Rule: RuleAsymmetricPairing}
	}
	return &Resolution{PayerID: customary.UserID, EarnerID: ref(other.UserID), Rule: RuleAsymmetricPairing}
}

// mutualEarnToggle: both toggles on resolves via the receiver-earns tie-break;
// both off leaves no human earner and the platform keeps the bucket value.
func mutualEarnToggle(sender, receiver *Profile) *Resolution {
	if sender.EarnOnChat && receiver.EarnOnChat {
		return &Resolution{PayerID: sender.UserID, EarnerID: ref(receiver.UserID), Rule: RuleMutualEarnOn}
	}
	if !sender.EarnOnChat && !receiver.EarnOnChat {
		return &Resolution{PayerID: sender.UserID, EarnerID: nil, Rule: RuleMutualEarnOff}
	}
	return nil
}

// singleEarnToggle: exactly one side has earning enabled.
func singleEarnToggle(sender, receiver *Profile) *Resolution {
	earner, payer := sender, receiver
	if receiver.EarnOnChat {
		earner, payer = receiver, sender
	}
	return &Resolution{PayerID: payer.UserID, EarnerID: ref(earner.UserID), Rule: RuleSingleEarnToggle}
}

func ref(id uuid.UUID) *uuid.UUID {
	return &id
}
