// Package services holds the curated reference table of known subscription
// services: canonical names, categories, logos and billing-management links.
// The table ships embedded in the binary and is loaded once at startup;
// after that it is read-only and safe for concurrent use.
package services

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/promatty/subtrackr/internal/match"
)

//go:embed services.json
var embeddedServices []byte

// FuzzyThreshold is the minimum similarity score a fuzzy candidate must
// exceed to count as a match. Exact normalized hits always win at 100.
const FuzzyThreshold = 75

// Entry is one curated service. CancelURL points at the service's billing
// or subscription-management page, never an account-deletion page.
type Entry struct {
	CanonicalName string   `json:"canonical_name"`
	Category      string   `json:"category,omitempty"`
	LogoURL       string   `json:"logo_url,omitempty"`
	CancelURL     string   `json:"cancel_url,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Registry is the loaded, immutable service table. Entries keep their file
// order so equal fuzzy scores resolve to the first entry declared.
type Registry struct {
	entries []Entry
	byName  map[string]int // normalized canonical name or alias -> entries index
}

// Load builds a Registry from the embedded table. If path is non-empty the
// file at path replaces the embedded data, letting deployments extend the
// table without a rebuild.
func Load(path string) (*Registry, error) {
	data := embeddedServices
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("services: reading override table %q: %w", path, err)
		}
		data = b
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("services: parsing table: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("services: table is empty")
	}

	r := &Registry{
		entries: entries,
		byName:  make(map[string]int, len(entries)*2),
	}
	for i, e := range entries {
		r.index(match.Normalize(e.CanonicalName), i)
		for _, alias := range e.Aliases {
			r.index(match.Normalize(alias), i)
		}
	}
	return r, nil
}

// index records a normalized key, first entry wins on collision.
func (r *Registry) index(key string, i int) {
	if key == "" {
		return
	}
	if _, exists := r.byName[key]; !exists {
		r.byName[key] = i
	}
}

// Len reports the number of curated entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Find resolves a free-text service name against the table. An exact hit on
// the normalized query returns confidence 100. Otherwise every canonical
// name and alias is scored with match.Similarity and the best entry wins,
// provided its score exceeds FuzzyThreshold. Ties keep the first entry in
// table order.
func (r *Registry) Find(query string) (Entry, int, bool) {
	q := match.Normalize(query)
	if q == "" {
		return Entry{}, 0, false
	}

	if i, ok := r.byName[q]; ok {
		return r.entries[i], 100, true
	}

	bestScore := 0
	bestIdx := -1
	for i, e := range r.entries {
		score := match.Similarity(q, match.Normalize(e.CanonicalName))
		for _, alias := range e.Aliases {
			if s := match.Similarity(q, match.Normalize(alias)); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestScore <= FuzzyThreshold {
		return Entry{}, 0, false
	}
	return r.entries[bestIdx], bestScore, true
}

// MatchMerchant is the detector-side lookup: cheaper and stricter than Find.
// It tries an exact hit on the light merchant key, then substring containment
// between the key and each entry's names. No edit-distance scoring - a bank
// descriptor like "NETFLIX.COM *PAYMENT" should hit "netflix" by containment,
// and nothing else should.
func (r *Registry) MatchMerchant(merchantKey string) (Entry, bool) {
	key := strings.ToLower(strings.TrimSpace(merchantKey))
	if key == "" {
		return Entry{}, false
	}

	if i, ok := r.byName[match.Normalize(key)]; ok {
		return r.entries[i], true
	}

	for _, e := range r.entries {
		for _, name := range e.matchNames() {
			if strings.Contains(key, name) || strings.Contains(name, key) {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// matchNames returns the lower-cased names considered for containment.
func (e Entry) matchNames() []string {
	names := make([]string, 0, 1+len(e.Aliases))
	names = append(names, strings.ToLower(e.CanonicalName))
	for _, a := range e.Aliases {
		names = append(names, strings.ToLower(a))
	}
	return names
}
