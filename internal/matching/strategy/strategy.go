// Package strategy combines factor scorers into a compatibility result under
// a named policy. The set of strategies is closed and selected through New.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/models"
	"advisor-match-engine/internal/profiles"
)

const (
	NameDefault     = "default"
	NamePremium     = "premium"
	NameRiskFocused = "risk-focused"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy scores one provider/seeker pair. Input, lookup and threshold
// outcomes resolve to a degraded ScoreResult; only profile store failures
// are returned as errors.
type Strategy interface {
	Name() string
	Description() string
	CalculateScore(ctx context.Context, providerID, seekerID string, prefs models.Preferences, metrics []models.InteractionMetrics) (models.ScoreResult, error)
}

// Deps are the collaborators shared by every strategy.
type Deps struct {
	Profiles profiles.Store
	Logger   logger.Logger
}

type constructor func(base evaluator) Strategy

var registry = map[string]constructor{
	NameDefault:     func(e evaluator) Strategy { return &Default{evaluator: e} },
	NamePremium:     func(e evaluator) Strategy { return &Premium{evaluator: e} },
	NameRiskFocused: func(e evaluator) Strategy { return &RiskFocused{evaluator: e} },
}

// New returns the strategy registered under name. An empty name selects the
// default strategy.
func New(name string, deps Deps) (Strategy, error) {
	if name == "" {
		name = NameDefault
	}
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	if deps.Profiles == nil {
		return nil, errors.New("strategy: profile store is required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return ctor(evaluator{
		profiles: deps.Profiles,
		logger:   log.WithFields(map[string]interface{}{"strategy": name}),
	}), nil
}

// Names lists the registered strategy identifiers in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Set resolves strategies by name, building each at most once.
type Set struct {
	cache map[string]Strategy
}

func NewSet(deps Deps) (*Set, error) {
	s := &Set{cache: make(map[string]Strategy, len(registry))}
	for _, n := range Names() {
		st, err := New(n, deps)
		if err != nil {
			return nil, err
		}
		s.cache[n] = st
	}
	return s, nil
}

// Get returns the named strategy or ErrUnknownStrategy.
func (s *Set) Get(name string) (Strategy, error) {
	if name == "" {
		name = NameDefault
	}
	st, ok := s.cache[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return st, nil
}
