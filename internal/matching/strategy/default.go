package strategy

import (
	"context"

	"advisor-match-engine/internal/matching/factors"
	"advisor-match-engine/internal/models"
)

// Baseline is the score every valid pair starts from under the additive
// strategies. With all standard factors at full weight the total is 100.
const Baseline = 35

// Default sums every enabled factor at its standard weight.
type Default struct {
	evaluator
}

func (s *Default) Name() string { return NameDefault }

func (s *Default) Description() string {
	return "Balanced scoring: every enabled factor at its standard weight"
}

func (s *Default) CalculateScore(ctx context.Context, providerID, seekerID string, prefs models.Preferences, metrics []models.InteractionMetrics) (models.ScoreResult, error) {
	subj, err := s.load(ctx, providerID, seekerID, prefs, metrics)
	if err != nil {
		return models.ScoreResult{}, err
	}
	if subj.degraded != nil {
		return *subj.degraded, nil
	}
	return s.score(subj.input), nil
}

func (s *Default) score(in factors.Input) models.ScoreResult {
	total := Baseline
	var explanations []string

	for _, f := range enabledFactors(in) {
		res := s.run(f, in)
		total += res.Score
		if res.HasExplanation() {
			explanations = append(explanations, res.Explanation)
		}
	}

	if pen := s.penalty(in); pen.Score != 0 {
		total += pen.Score
		explanations = append(explanations, pen.Explanation)
	}

	return finish(total, explanations, in.Preferences)
}
