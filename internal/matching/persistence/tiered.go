package persistence

import (
	"context"
	"errors"

	"advisor-match-engine/internal/common/logger"
)

// TieredStore reads redis before postgres and backfills redis on a postgres
// hit. Postgres is authoritative: its failures are returned, redis failures
// are logged.
type TieredStore struct {
	fast    Store
	durable Store
	logger  logger.Logger
}

func NewTieredStore(fast, durable Store, log logger.Logger) *TieredStore {
	return &TieredStore{
		fast:    fast,
		durable: durable,
		logger:  log.WithFields(map[string]interface{}{"component": "scores.tiered"}),
	}
}

func (t *TieredStore) GetStored(ctx context.Context, providerID, seekerID string) (*StoredScore, error) {
	sc, err := t.fast.GetStored(ctx, providerID, seekerID)
	if err != nil {
		t.logger.Warn("fast score lookup failed, using durable store", map[string]interface{}{"error": err})
	} else if sc != nil {
		return sc, nil
	}

	sc, err = t.durable.GetStored(ctx, providerID, seekerID)
	if err != nil || sc == nil {
		return sc, err
	}
	if _, err := t.fast.Store(ctx, *sc); err != nil {
		t.logger.Debug("backfill failed", map[string]interface{}{"error": err})
	}
	return sc, nil
}

func (t *TieredStore) Store(ctx context.Context, score StoredScore) (bool, error) {
	ok, err := t.durable.Store(ctx, score)
	if err != nil {
		return false, err
	}
	if _, err := t.fast.Store(ctx, score); err != nil {
		t.logger.Warn("fast score write failed", map[string]interface{}{"error": err})
	}
	return ok, nil
}

func (t *TieredStore) TopMatchesForSeeker(ctx context.Context, seekerID string, n int) ([]StoredScore, error) {
	return t.top(ctx, n,
		func(s Store) ([]StoredScore, error) { return s.TopMatchesForSeeker(ctx, seekerID, n) })
}

func (t *TieredStore) TopMatchesForProvider(ctx context.Context, providerID string, n int) ([]StoredScore, error) {
	return t.top(ctx, n,
		func(s Store) ([]StoredScore, error) { return s.TopMatchesForProvider(ctx, providerID, n) })
}

// top serves from redis only when it already holds n rankings; a shorter
// ranking may be missing evicted pairs.
func (t *TieredStore) top(ctx context.Context, n int, query func(Store) ([]StoredScore, error)) ([]StoredScore, error) {
	fast, err := query(t.fast)
	if err == nil && len(fast) >= n {
		return fast, nil
	}
	if err != nil {
		t.logger.Warn("fast ranking failed, using durable store", map[string]interface{}{"error": err})
	}
	return query(t.durable)
}

func (t *TieredStore) DeleteByEntityID(ctx context.Context, id string) error {
	return errors.Join(t.durable.DeleteByEntityID(ctx, id), t.fast.DeleteByEntityID(ctx, id))
}
