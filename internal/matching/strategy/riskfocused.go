package strategy

import (
	"context"
	"fmt"

	"advisor-match-engine/internal/matching/factors"
	"advisor-match-engine/internal/models"
)

const (
	riskMultiplier = 2
	// exclusion penalty raised by half
	riskFocusedPenalty = factors.ExclusionPenalty * 3 / 2
)

// RiskFocused is Default with risk alignment counted double and a heavier
// exclusion penalty.
type RiskFocused struct {
	evaluator
}

func (s *RiskFocused) Name() string { return NameRiskFocused }

func (s *RiskFocused) Description() string {
	return "Emphasises risk-tolerance alignment and penalises excluded categories more heavily"
}

func (s *RiskFocused) CalculateScore(ctx context.Context, providerID, seekerID string, prefs models.Preferences, metrics []models.InteractionMetrics) (models.ScoreResult, error) {
	subj, err := s.load(ctx, providerID, seekerID, prefs, metrics)
	if err != nil {
		return models.ScoreResult{}, err
	}
	if subj.degraded != nil {
		return *subj.degraded, nil
	}
	return s.score(subj.input), nil
}

func (s *RiskFocused) score(in factors.Input) models.ScoreResult {
	total := Baseline
	var explanations []string

	for _, f := range enabledFactors(in) {
		res := s.evaluate(f, in)
		total += res.Score
		if res.HasExplanation() {
			explanations = append(explanations, res.Explanation)
		}
	}

	if pen := s.penalty(in); pen.Score != 0 {
		total -= riskFocusedPenalty
		explanations = append(explanations, pen.Explanation)
	}

	return finish(total, explanations, in.Preferences)
}

// evaluate runs one factor with the risk weighting applied. The mismatch
// note is only added when the risk scorer succeeded and the provider offers
// none of the categories recommended for a known tolerance.
func (s *RiskFocused) evaluate(f factors.Factor, in factors.Input) factors.Result {
	res, ok := s.runChecked(f, in)
	if f.Name != models.FactorRisk {
		return res
	}
	res.Score *= riskMultiplier
	if !ok || res.Score != 0 || in.Seeker == nil || in.Provider == nil {
		return res
	}
	tol := models.NormalizeTerm(in.Seeker.RiskTolerance)
	if factors.RecommendedCategories(tol) != nil && len(factors.RiskMatches(tol, in.Provider.Expertise)) == 0 {
		res.Explanation = fmt.Sprintf("Few services match your %s risk tolerance", tol)
	}
	return res
}
