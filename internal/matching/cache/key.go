package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"advisor-match-engine/internal/models"
)

// Key identifies one cached score. Two requests share a key only when they
// use the same strategy, the same pair and semantically equal preferences.
type Key struct {
	Strategy    string
	ProviderID  string
	SeekerID    string
	Fingerprint string
}

// String encodes the key with each part length-prefixed, so ids containing
// the separator cannot collide with another key.
func (k Key) String() string {
	var b strings.Builder
	for _, part := range []string{k.Strategy, k.ProviderID, k.SeekerID, k.Fingerprint} {
		fmt.Fprintf(&b, "%d:%s|", len(part), part)
	}
	return b.String()
}

// References reports whether the key involves the given provider or seeker id.
func (k Key) References(id string) bool {
	return id != "" && (k.ProviderID == id || k.SeekerID == id)
}

// NewKey builds the key for a request. When interaction data is considered,
// the pair's aggregated metrics are folded into the fingerprint so new call
// history never hits an older entry.
func NewKey(strategy, providerID, seekerID string, prefs models.Preferences, metrics []models.InteractionMetrics) Key {
	return Key{
		Strategy:    strategy,
		ProviderID:  providerID,
		SeekerID:    seekerID,
		Fingerprint: Fingerprint(providerID, seekerID, prefs, metrics),
	}
}

// Fingerprint hashes the canonical preferences and, when they are considered,
// the pair's interaction metrics.
func Fingerprint(providerID, seekerID string, prefs models.Preferences, metrics []models.InteractionMetrics) string {
	h := sha256.New()
	h.Write([]byte(Canonical(prefs)))
	if prefs.ConsiderInteractionData {
		if m := models.AggregateMetrics(metrics, providerID, seekerID); m != nil {
			fmt.Fprintf(h, "|calls=%d;dur=%d;done=%d;missed=%d;declined=%d",
				m.CallCount, m.TotalDurationSeconds, m.CompletedCalls, m.MissedCalls, m.DeclinedCalls)
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Canonical serializes preferences independent of field and list order:
// object keys are sorted, category lists normalized and sorted, weight keys
// normalized. Every cache key goes through this function.
func Canonical(prefs models.Preferences) string {
	p := prefs.Normalized()

	weights := make(map[string]int, len(p.WeightFactors))
	for k, v := range p.WeightFactors {
		weights[k] = v
	}

	// encoding/json writes map keys in sorted order
	doc := map[string]interface{}{
		"considerInteractionData": p.ConsiderInteractionData,
		"excludedCategories":      p.ExcludedCategories,
		"minimumMatchScore":       p.MinimumMatchScore,
		"prioritizeAvailability":  p.PrioritizeAvailability,
		"prioritizeExpertise":     p.PrioritizeExpertise,
		"prioritizeLanguage":      p.PrioritizeLanguage,
		"prioritizeLocation":      p.PrioritizeLocation,
		"weightFactors":           weights,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		// only reachable with unsupported value types, which doc never holds
		return fmt.Sprintf("%+v", p)
	}
	return string(data)
}
