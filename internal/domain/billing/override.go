package billing

import (
	"errors"
	"strings"

	"github.com/Knetic/govaluate"
)

// EvaluateFreePoolOverride evaluates an operator-configured boolean
// expression against the two participant profiles. A true result forces the
// unlimited free pool for the session, letting ops exempt cohorts (launch
// markets, staff test accounts) without a deploy.
//
// Profile attributes are exposed as flattened parameters, e.g.
// "a_popularityBand == 'LOW' && b_accountAgeDays > 30". An empty expression
// means no override.
func EvaluateFreePoolOverride(expression string, a, b *Profile) (bool, error) {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return false, nil
	}
	switch strings.ToLower(expr) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	params := map[string]interface{}{}
	flattenProfile("a", a, params)
	flattenProfile("b", b, params)

	parsed, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return false, err
	}
	result, err := parsed.Evaluate(params)
	if err != nil {
		return false, err
	}
	b2, ok := result.(bool)
	if !ok {
		return false, errors.New("override expression did not evaluate to boolean")
	}
	return b2, nil
}

func flattenProfile(prefix string, p *Profile, out map[string]interface{}) {
	out[prefix+"_userId"] = p.UserID.String()
	out[prefix+"_genderCategory"] = string(p.GenderCategory)
	out[prefix+"_influencerEarnOn"] = p.InfluencerEarnOn
	out[prefix+"_earnOnChat"] = p.EarnOnChat
	out[prefix+"_royalTier"] = string(p.RoyalTier)
	out[prefix+"_popularityBand"] = string(p.PopularityBand)
	out[prefix+"_accountAgeDays"] = float64(p.AccountAgeDays)
}
