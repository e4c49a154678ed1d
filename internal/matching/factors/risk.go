package factors

import (
	"fmt"
	"strings"

	"advisor-match-engine/internal/models"
)

const riskPointsPerCategory = 5

var recommendedByRisk = map[string][]string{
	models.RiskLow: {
		"estate planning",
		"insurance",
		"retirement planning",
		"tax planning",
	},
	models.RiskMedium: {
		"financial planning",
		"investment management",
		"retirement planning",
		"tax planning",
	},
	models.RiskHigh: {
		"alternative investments",
		"investment management",
		"portfolio management",
		"wealth management",
	},
}

// RecommendedCategories returns the service categories suited to a risk
// tolerance, or nil when the tolerance is unknown.
func RecommendedCategories(tolerance string) []string {
	cats, ok := recommendedByRisk[models.NormalizeTerm(tolerance)]
	if !ok {
		return nil
	}
	out := make([]string, len(cats))
	copy(out, cats)
	return out
}

// RiskMatches returns the provider expertise categories recommended for the
// tolerance, normalized and sorted. Unknown tolerances match nothing.
func RiskMatches(tolerance string, expertise []string) []string {
	recommended := RecommendedCategories(tolerance)
	if len(recommended) == 0 {
		return nil
	}
	_, matched := intersect(recommended, expertise)
	return matched
}

// RiskAlignment rewards providers covering the categories recommended for
// the seeker's risk tolerance, capped at RiskWeight.
func RiskAlignment(in Input) Result {
	if in.Provider == nil || in.Seeker == nil {
		return Result{}
	}
	matched := RiskMatches(in.Seeker.RiskTolerance, in.Provider.Expertise)
	if len(matched) == 0 {
		return Result{}
	}

	return Result{
		Score: minInt(RiskWeight, riskPointsPerCategory*len(matched)),
		Explanation: fmt.Sprintf("Offers services suited to your %s risk tolerance (%s)",
			models.NormalizeTerm(in.Seeker.RiskTolerance), strings.Join(matched, ", ")),
	}
}
