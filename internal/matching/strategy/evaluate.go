package strategy

import (
	"context"
	"errors"
	"fmt"

	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/metrics"
	"advisor-match-engine/internal/matching/factors"
	"advisor-match-engine/internal/models"
	"advisor-match-engine/internal/profiles"
)

// Explanations shared by every strategy.
const (
	ReasonMissingID         = "Missing advisor or client identifier"
	ReasonProviderNotFound  = "Advisor profile not found"
	ReasonSeekerNotFound    = "Client profile not found"
	ReasonBelowThreshold    = "Below your minimum match threshold"
	ReasonBasicMatch        = "Basic compatibility based on your profile"
	ReasonLimitedMatch      = "Limited compatibility with this advisor"
	lowCompatibilityCeiling = 40
)

type evaluator struct {
	profiles profiles.Store
	logger   logger.Logger
}

// subject is a validated pair ready for scoring.
type subject struct {
	input factors.Input
	// degraded is set when scoring must short-circuit with a zero result.
	degraded *models.ScoreResult
}

// load validates ids and fetches both profiles. Missing profiles degrade;
// store failures are returned.
func (e evaluator) load(ctx context.Context, providerID, seekerID string, prefs models.Preferences, records []models.InteractionMetrics) (subject, error) {
	if providerID == "" || seekerID == "" {
		r := models.ZeroResult(ReasonMissingID)
		return subject{degraded: &r}, nil
	}

	provider, err := e.profiles.GetProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			r := models.ZeroResult(ReasonProviderNotFound)
			return subject{degraded: &r}, nil
		}
		return subject{}, fmt.Errorf("load provider %s: %w", providerID, err)
	}

	seeker, err := e.profiles.GetSeeker(ctx, seekerID)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			r := models.ZeroResult(ReasonSeekerNotFound)
			return subject{degraded: &r}, nil
		}
		return subject{}, fmt.Errorf("load seeker %s: %w", seekerID, err)
	}

	in := factors.Input{
		Provider:    provider,
		Seeker:      seeker,
		Preferences: prefs.Normalized(),
	}
	if in.Preferences.ConsiderInteractionData {
		in.Metrics = models.AggregateMetrics(records, providerID, seekerID)
	}
	return subject{input: in}, nil
}

// run evaluates one factor. A panic or an out-of-range score counts as a
// failure and contributes zero.
func (e evaluator) run(f factors.Factor, in factors.Input) factors.Result {
	res, _ := e.runChecked(f, in)
	return res
}

// runChecked is run that also reports whether the scorer succeeded.
func (e evaluator) runChecked(f factors.Factor, in factors.Input) (res factors.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.factorFailed(f, in, fmt.Sprintf("panic: %v", r))
			res, ok = factors.Result{}, false
		}
	}()

	res = f.Score(in)
	if res.Score < 0 || (f.MaxScore > 0 && res.Score > f.MaxScore) {
		e.factorFailed(f, in, fmt.Sprintf("score %d outside 0..%d", res.Score, f.MaxScore))
		return factors.Result{}, false
	}
	return res, true
}

// penalty evaluates the exclusion scorer, which is the only negative factor.
func (e evaluator) penalty(in factors.Input) (res factors.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.factorFailed(factors.Factor{Name: "exclusion"}, in, fmt.Sprintf("panic: %v", r))
			res = factors.Result{}
		}
	}()
	return factors.Exclusion(in)
}

func (e evaluator) factorFailed(f factors.Factor, in factors.Input, reason string) {
	metrics.FactorFailures.WithLabelValues(f.Name).Inc()
	fields := map[string]interface{}{
		"factor": f.Name,
		"reason": reason,
	}
	if in.Provider != nil {
		fields["providerId"] = in.Provider.ID
	}
	if in.Seeker != nil {
		fields["seekerId"] = in.Seeker.ID
	}
	e.logger.Warn("factor scorer failed, contributing zero", fields)
}

// enabledFactors returns the standard factors switched on by the
// preferences, in evaluation order.
func enabledFactors(in factors.Input) []factors.Factor {
	p := in.Preferences
	var out []factors.Factor
	for _, f := range factors.Standard() {
		switch f.Name {
		case models.FactorLanguage:
			if !p.PrioritizeLanguage {
				continue
			}
		case models.FactorExpertise:
			if !p.PrioritizeExpertise {
				continue
			}
		case models.FactorAvailability:
			if !p.PrioritizeAvailability {
				continue
			}
		case models.FactorLocation:
			if !p.PrioritizeLocation {
				continue
			}
		case models.FactorInteraction:
			if !p.ConsiderInteractionData || in.Metrics == nil {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

// finish clamps, applies the threshold gate and the fallback explanations.
func finish(score int, explanations []string, prefs models.Preferences) models.ScoreResult {
	score = models.ClampScore(score)
	if prefs.MinimumMatchScore > 0 && score < prefs.MinimumMatchScore {
		return models.ZeroResult(ReasonBelowThreshold)
	}
	if len(explanations) == 0 && score > 0 {
		explanations = append(explanations, ReasonBasicMatch)
	}
	if len(explanations) == 0 && score < lowCompatibilityCeiling {
		explanations = append(explanations, ReasonLimitedMatch)
	}
	return models.ScoreResult{Score: score, Explanations: explanations}
}

// IsLookupFailure reports whether res is the degraded result for missing ids
// or unknown profiles. Such results depend on profile state and are not cached.
func IsLookupFailure(res models.ScoreResult) bool {
	if res.Score != 0 || len(res.Explanations) != 1 {
		return false
	}
	switch res.Explanations[0] {
	case ReasonMissingID, ReasonProviderNotFound, ReasonSeekerNotFound:
		return true
	}
	return false
}
