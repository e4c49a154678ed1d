// internal/models/score.go
package models

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// ScoreResult is the immutable outcome of one compatibility calculation.
// Explanations keep the order in which factors were evaluated.
type ScoreResult struct {
	Score        int      `json:"score"`
	Explanations []string `json:"explanations"`
}

// ZeroResult is the degraded result for input, lookup and threshold outcomes.
func ZeroResult(reason string) ScoreResult {
	return ScoreResult{Score: 0, Explanations: []string{reason}}
}

// Clone returns a deep copy so cached results cannot be mutated by callers.
func (r ScoreResult) Clone() ScoreResult {
	out := ScoreResult{Score: r.Score, Explanations: make([]string, len(r.Explanations))}
	copy(out.Explanations, r.Explanations)
	return out
}

// ClampScore bounds v to [MinScore, MaxScore].
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// InteractionMetrics aggregates prior calls between one provider and one seeker.
type InteractionMetrics struct {
	ProviderID           string `json:"providerId,omitempty"`
	SeekerID             string `json:"seekerId,omitempty"`
	CallCount            int    `json:"callCount"`
	TotalDurationSeconds int    `json:"totalDurationSeconds"`
	CompletedCalls       int    `json:"completedCalls"`
	MissedCalls          int    `json:"missedCalls"`
	DeclinedCalls        int    `json:"declinedCalls"`
}

// AggregateMetrics folds the records that belong to the provider/seeker pair.
// Records with empty ids are treated as belonging to the pair. Negative
// counters are ignored. Returns nil when no record applies.
func AggregateMetrics(records []InteractionMetrics, providerID, seekerID string) *InteractionMetrics {
	var agg *InteractionMetrics
	for _, m := range records {
		if m.ProviderID != "" && m.ProviderID != providerID {
			continue
		}
		if m.SeekerID != "" && m.SeekerID != seekerID {
			continue
		}
		if agg == nil {
			agg = &InteractionMetrics{ProviderID: providerID, SeekerID: seekerID}
		}
		agg.CallCount += nonNegative(m.CallCount)
		agg.TotalDurationSeconds += nonNegative(m.TotalDurationSeconds)
		agg.CompletedCalls += nonNegative(m.CompletedCalls)
		agg.MissedCalls += nonNegative(m.MissedCalls)
		agg.DeclinedCalls += nonNegative(m.DeclinedCalls)
	}
	return agg
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
