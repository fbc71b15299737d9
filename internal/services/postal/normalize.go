// Package postal resolves missing postal codes from the courier's
// locality and street nomenclature, tolerating the inconsistent
// spellings that arrive with imported orders.
package postal

import "strings"

// MatchThreshold is the minimum containment score a fuzzy locality
// match must reach before it is trusted.
const MatchThreshold = 0.5

var diacriticFolder = strings.NewReplacer(
	"ă", "a", "â", "a", "î", "i", "ș", "s", "ş", "s", "ț", "t", "ţ", "t",
	"Ă", "a", "Â", "a", "Î", "i", "Ș", "s", "Ş", "s", "Ț", "t", "Ţ", "t",
)

// Normalize folds Romanian diacritics, lowercases and trims, so that
// "Târgu Mureş" and "targu mures" compare equal.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(diacriticFolder.Replace(s)))
}

// ContainmentScore scores how well two normalized strings match.
// Exact match scores 1.0. When one contains the other, the score is the
// ratio of the shorter length to the longer. Anything else scores 0.
func ContainmentScore(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer)
	}
	return 0
}

// TokensOverlap reports whether any word of at least three characters
// from one string contains, or is contained by, such a word from the
// other. It is the loosest street-matching tier.
func TokensOverlap(a, b string) bool {
	for _, ta := range matchTokens(a) {
		for _, tb := range matchTokens(b) {
			if strings.Contains(ta, tb) || strings.Contains(tb, ta) {
				return true
			}
		}
	}
	return false
}

func matchTokens(s string) []string {
	var tokens []string
	for _, t := range strings.Fields(Normalize(s)) {
		if len(t) >= 3 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
