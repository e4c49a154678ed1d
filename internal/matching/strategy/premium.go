package strategy

import (
	"context"
	"fmt"
	"math"

	"advisor-match-engine/internal/matching/factors"
	"advisor-match-engine/internal/models"
)

// Premium recombines the standard factors as a weighted average. Each factor
// is weighted by the seeker's override when present, otherwise by its
// standard weight. An override of 0 removes the factor; an override for a
// factor whose toggle is off switches it on.
type Premium struct {
	evaluator
}

func (s *Premium) Name() string { return NamePremium }

func (s *Premium) Description() string {
	return "Weighted scoring driven by your per-factor weight percentages"
}

func (s *Premium) CalculateScore(ctx context.Context, providerID, seekerID string, prefs models.Preferences, metrics []models.InteractionMetrics) (models.ScoreResult, error) {
	subj, err := s.load(ctx, providerID, seekerID, prefs, metrics)
	if err != nil {
		return models.ScoreResult{}, err
	}
	if subj.degraded != nil {
		return *subj.degraded, nil
	}
	return s.score(subj.input), nil
}

type weighted struct {
	factor     factors.Factor
	weight     int
	overridden bool
}

func premiumFactors(in factors.Input) []weighted {
	enabled := make(map[string]bool)
	for _, f := range enabledFactors(in) {
		enabled[f.Name] = true
	}

	var out []weighted
	for _, f := range factors.Standard() {
		if f.Name == models.FactorInteraction && in.Metrics == nil {
			continue
		}
		if w, ok := in.Preferences.Weight(f.Name); ok {
			if w > 0 {
				out = append(out, weighted{factor: f, weight: w, overridden: true})
			}
			continue
		}
		if enabled[f.Name] {
			out = append(out, weighted{factor: f, weight: f.MaxScore})
		}
	}
	return out
}

func (s *Premium) score(in factors.Input) models.ScoreResult {
	var explanations, narrative []string
	var weightedSum float64
	totalWeight := 0

	for _, wf := range premiumFactors(in) {
		res := s.run(wf.factor, in)
		if wf.factor.MaxScore > 0 {
			weightedSum += float64(wf.weight) * float64(res.Score) / float64(wf.factor.MaxScore)
		}
		totalWeight += wf.weight
		if res.HasExplanation() {
			explanations = append(explanations, res.Explanation)
		}
		if wf.overridden {
			narrative = append(narrative, fmt.Sprintf("Your %s weighting (%d%%) was applied", wf.factor.Name, wf.weight))
		}
	}

	total := 0
	if totalWeight > 0 {
		total = int(math.Round(float64(models.MaxScore) * weightedSum / float64(totalWeight)))
	}

	if pen := s.penalty(in); pen.Score != 0 {
		total += pen.Score
		explanations = append(explanations, pen.Explanation)
	}

	explanations = append(explanations, narrative...)
	return finish(total, explanations, in.Preferences)
}
