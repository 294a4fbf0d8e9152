package billing

import (
	"regexp"
	"strings"
	"unicode"
)

// Word-bucket metering. Only earner-authored words count toward billing, and
// only linguistic tokens carry weight: URLs and emoji/punctuation runs are
// zero-weight so padding a message with them cannot drag a bucket boundary
// closer or push it away.

var urlPattern = regexp.MustCompile(`(?i)^(https?://|www\.)`)

// BillableWords counts the tokens of a message that carry billing weight.
func BillableWords(text string) int {
	count := 0
	for _, token := range strings.Fields(text) {
		if urlPattern.MatchString(token) {
			continue
		}
		if !hasLinguisticContent(token) {
			continue
		}
		count++
	}
	return count
}

func hasLinguisticContent(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// BillingOutcome reports what one metered message made due.
type BillingOutcome struct {
	BucketsCompleted int
	Remainder        int
}

// MeterWords advances the word accumulator by words and reports how many full
// buckets that completes. The remainder carries forward; it is never reset,
// so fractional progress survives across messages.
func MeterWords(accumulated, words, bucketWords int) BillingOutcome {
	total := accumulated + words
	return BillingOutcome{
		BucketsCompleted: total / bucketWords,
		Remainder:        total % bucketWords,
	}
}
