// Package match normalizes free-text merchant names and scores their
// similarity. It underpins both subscription enrichment and the curated
// cancellation-link lookup.
package match

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Trailing tokens that carry no merchant identity. Order matters only within
// a pass; stripping repeats until the name is stable so "Netflix Inc Premium"
// loses both tokens.
var (
	businessSuffixes = []string{"inc", "llc", "corp", "ltd", "limited", "corporation", "company"}
	planTiers        = []string{"subscription", "premium", "plus", "pro", "basic", "standard"}
	domainExtensions = []string{".com", ".net", ".org", ".io", ".co", ".tv"}
)

// specialCases maps mechanically-normalized names to their canonical service
// name where plain string cleanup gets it wrong (rebrands, parent companies).
var specialCases = map[string]string{
	"hbo":          "max",
	"hbo max":      "max",
	"hbomax":       "max",
	"openai":       "chatgpt",
	"chatgpt plus": "chatgpt",
	"amazon prime": "prime",
	"prime video":  "prime",
}

// Normalize lowers, trims and strips a merchant or service name down to its
// identifying core: domain extensions go, punctuation goes, whitespace
// collapses, then trailing business suffixes and plan-tier words are peeled
// off. A small special-case table is consulted last for rebrands that string
// cleanup cannot know about. Normalize is deterministic and idempotent.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))

	// Extensions first, while the dots are still there.
	for _, ext := range domainExtensions {
		s = strings.TrimSuffix(s, ext)
	}

	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		}
	}
	fields := strings.Fields(b.String())

	// Peel trailing identity-free tokens until the name is stable, so
	// "netflix inc premium" loses both. Never strip the last word standing.
	for len(fields) > 1 && isNoiseToken(fields[len(fields)-1]) {
		fields = fields[:len(fields)-1]
	}
	s = strings.Join(fields, " ")

	if canonical, ok := specialCases[s]; ok {
		return canonical
	}
	return s
}

func isNoiseToken(tok string) bool {
	for _, suffix := range businessSuffixes {
		if tok == suffix {
			return true
		}
	}
	for _, tier := range planTiers {
		if tok == tier {
			return true
		}
	}
	return false
}

// Similarity returns a symmetric similarity score in [0,100] between two raw
// strings, based on Levenshtein edit distance. Identical strings score 100,
// an empty string scores 0 against anything. Callers fuzzy-matching against
// a reference table should Normalize both sides first.
func Similarity(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * float64(maxLen-dist) / float64(maxLen)))
}

// MerchantKey computes the grouping key for a transaction's merchant label:
// lower-case plus trim, nothing more. This is intentionally lighter than
// Normalize - aggressive stripping here would merge distinct merchants that
// share a normalized root.
func MerchantKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
