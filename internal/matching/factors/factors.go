// Package factors holds the single-purpose compatibility scorers. Every scorer
// is a pure, total function of its Input: nil profiles, empty sets and
// malformed optional data degrade to a zero contribution instead of failing.
package factors

import "advisor-match-engine/internal/models"

// Standard weights of each factor.
const (
	LanguageWeight     = 10
	ExpertiseWeight    = 15
	RiskWeight         = 10
	AvailabilityWeight = 5
	LocationWeight     = 10

	CallCountCap       = 5
	CallDurationCap    = 5
	CallCompletionCap  = 5
	InteractionWeight  = CallCountCap + CallDurationCap + CallCompletionCap
	ExclusionPenalty   = 25
	maxAvailableSlots  = AvailabilityWeight
	minutesPerDuration = 5
)

// Input is everything a scorer may look at.
type Input struct {
	Provider    *models.Provider
	Seeker      *models.Seeker
	Preferences models.Preferences
	Metrics     *models.InteractionMetrics
}

// Result is a partial score plus an optional explanation ("" means none).
type Result struct {
	Score       int
	Explanation string
}

// HasExplanation reports whether the scorer produced user-facing text.
func (r Result) HasExplanation() bool {
	return r.Explanation != ""
}

// Scorer computes one factor.
type Scorer func(in Input) Result

// Factor names a scorer and its maximum contribution.
type Factor struct {
	Name     string
	MaxScore int
	Score    Scorer
}

var (
	LanguageFactor     = Factor{Name: models.FactorLanguage, MaxScore: LanguageWeight, Score: Language}
	ExpertiseFactor    = Factor{Name: models.FactorExpertise, MaxScore: ExpertiseWeight, Score: Expertise}
	RiskFactor         = Factor{Name: models.FactorRisk, MaxScore: RiskWeight, Score: RiskAlignment}
	AvailabilityFactor = Factor{Name: models.FactorAvailability, MaxScore: AvailabilityWeight, Score: Availability}
	LocationFactor     = Factor{Name: models.FactorLocation, MaxScore: LocationWeight, Score: Location}
	InteractionFactor  = Factor{Name: models.FactorInteraction, MaxScore: InteractionWeight, Score: CallInteraction}
)

// Standard returns the positive factors in evaluation order. The exclusion
// penalty is applied separately by strategies.
func Standard() []Factor {
	return []Factor{
		LanguageFactor,
		ExpertiseFactor,
		RiskFactor,
		AvailabilityFactor,
		LocationFactor,
		InteractionFactor,
	}
}

// intersect returns the members of want that also appear in have. Both
// inputs are normalized first; the result keeps want's sorted order.
func intersect(want, have []string) (normalizedWant []string, matched []string) {
	normalizedWant = models.NormalizeSet(want)
	haveSet := make(map[string]struct{}, len(have))
	for _, h := range models.NormalizeSet(have) {
		haveSet[h] = struct{}{}
	}
	for _, w := range normalizedWant {
		if _, ok := haveSet[w]; ok {
			matched = append(matched, w)
		}
	}
	return normalizedWant, matched
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
