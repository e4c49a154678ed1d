// internal/models/preferences.go
package models

import (
	"sort"
	"strings"
)

// Factor names used as keys in Preferences.WeightFactors.
const (
	FactorLanguage     = "language"
	FactorExpertise    = "expertise"
	FactorRisk         = "risk"
	FactorAvailability = "availability"
	FactorLocation     = "location"
	FactorInteraction  = "interaction"
)

// Preferences is the per-request matching configuration supplied by the caller.
type Preferences struct {
	PrioritizeLanguage      bool           `json:"prioritizeLanguage"`
	PrioritizeExpertise     bool           `json:"prioritizeExpertise"`
	PrioritizeAvailability  bool           `json:"prioritizeAvailability"`
	PrioritizeLocation      bool           `json:"prioritizeLocation"`
	MinimumMatchScore       int            `json:"minimumMatchScore"`
	ExcludedCategories      []string       `json:"excludedCategories"`
	ConsiderInteractionData bool           `json:"considerInteractionData"`
	WeightFactors           map[string]int `json:"weightFactors,omitempty"`
}

// DefaultPreferences are the documented defaults: language, expertise,
// availability and interaction data on; location off; no threshold.
func DefaultPreferences() Preferences {
	return Preferences{
		PrioritizeLanguage:      true,
		PrioritizeExpertise:     true,
		PrioritizeAvailability:  true,
		PrioritizeLocation:      false,
		MinimumMatchScore:       0,
		ExcludedCategories:      []string{},
		ConsiderInteractionData: true,
	}
}

// Normalized returns a copy with the threshold and weights clamped to 0..100
// and the excluded categories normalized, de-duplicated and sorted.
func (p Preferences) Normalized() Preferences {
	out := p
	out.MinimumMatchScore = clampPercent(p.MinimumMatchScore)
	out.ExcludedCategories = NormalizeSet(p.ExcludedCategories)

	if len(p.WeightFactors) > 0 {
		out.WeightFactors = make(map[string]int, len(p.WeightFactors))
		for k, v := range p.WeightFactors {
			key := NormalizeTerm(k)
			if key == "" {
				continue
			}
			out.WeightFactors[key] = clampPercent(v)
		}
	} else {
		out.WeightFactors = nil
	}
	return out
}

// Weight returns the override for factor and whether one was supplied.
func (p Preferences) Weight(factor string) (int, bool) {
	if p.WeightFactors == nil {
		return 0, false
	}
	w, ok := p.WeightFactors[factor]
	return w, ok
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// NormalizeTerm lower-cases and trims a category or language name.
func NormalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeSet normalizes terms, drops empties and duplicates, and sorts.
func NormalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := NormalizeTerm(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
