package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS compatibility_scores (
	provider_id  TEXT        NOT NULL,
	seeker_id    TEXT        NOT NULL,
	score        INTEGER     NOT NULL CHECK (score BETWEEN 0 AND 100),
	explanations JSONB       NOT NULL DEFAULT '[]'::jsonb,
	fingerprint  TEXT        NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (provider_id, seeker_id)
);
CREATE INDEX IF NOT EXISTS idx_compat_scores_seeker ON compatibility_scores (seeker_id, score DESC);
CREATE INDEX IF NOT EXISTS idx_compat_scores_provider ON compatibility_scores (provider_id, score DESC);
`

// PostgresStore persists scores in the compatibility_scores table.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "scores.postgres"}),
		now:    time.Now,
	}
}

// EnsureSchema creates the table and its ranking indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create compatibility_scores: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStored(ctx context.Context, providerID, seekerID string) (*StoredScore, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT score, explanations, fingerprint, updated_at
		FROM compatibility_scores
		WHERE provider_id = $1 AND seeker_id = $2`, providerID, seekerID)

	out := StoredScore{ProviderID: providerID, SeekerID: seekerID}
	var explanations []byte
	if err := row.Scan(&out.Score, &explanations, &out.Fingerprint, &out.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		metrics.PersistenceErrors.WithLabelValues("postgres", "get").Inc()
		return nil, apperrors.NewScoreLookupFailedError(err)
	}
	if err := json.Unmarshal(explanations, &out.Explanations); err != nil {
		s.logger.Warn("stored explanations unreadable", map[string]interface{}{
			"providerId": providerID,
			"seekerId":   seekerID,
			"error":      err,
		})
		return nil, nil
	}
	return &out, nil
}

// Store upserts the score for its pair.
func (s *PostgresStore) Store(ctx context.Context, score StoredScore) (bool, error) {
	if score.UpdatedAt.IsZero() {
		score.UpdatedAt = s.now().UTC()
	}
	if score.Explanations == nil {
		score.Explanations = []string{}
	}
	explanations, err := json.Marshal(score.Explanations)
	if err != nil {
		return false, apperrors.NewScorePersistFailedError(err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO compatibility_scores (provider_id, seeker_id, score, explanations, fingerprint, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_id, seeker_id) DO UPDATE SET
			score = EXCLUDED.score,
			explanations = EXCLUDED.explanations,
			fingerprint = EXCLUDED.fingerprint,
			updated_at = EXCLUDED.updated_at`,
		score.ProviderID, score.SeekerID, score.Score, explanations, score.Fingerprint, score.UpdatedAt)
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("postgres", "store").Inc()
		return false, apperrors.NewScorePersistFailedError(err)
	}
	return true, nil
}

func (s *PostgresStore) TopMatchesForSeeker(ctx context.Context, seekerID string, n int) ([]StoredScore, error) {
	return s.top(ctx, "seeker_id", seekerID, n)
}

func (s *PostgresStore) TopMatchesForProvider(ctx context.Context, providerID string, n int) ([]StoredScore, error) {
	return s.top(ctx, "provider_id", providerID, n)
}

// top ranks one entity's scores. column is never user input.
func (s *PostgresStore) top(ctx context.Context, column, id string, n int) ([]StoredScore, error) {
	if n <= 0 {
		return []StoredScore{}, nil
	}
	query := fmt.Sprintf(`
		SELECT provider_id, seeker_id, score, explanations, fingerprint, updated_at
		FROM compatibility_scores
		WHERE %s = $1
		ORDER BY score DESC, updated_at DESC
		LIMIT $2`, column)

	rows, err := s.db.QueryContext(ctx, query, id, n)
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("postgres", "top").Inc()
		return nil, apperrors.NewScoreLookupFailedError(err)
	}
	defer rows.Close()

	out := make([]StoredScore, 0, n)
	for rows.Next() {
		var sc StoredScore
		var explanations []byte
		if err := rows.Scan(&sc.ProviderID, &sc.SeekerID, &sc.Score, &explanations, &sc.Fingerprint, &sc.UpdatedAt); err != nil {
			return nil, apperrors.NewScoreLookupFailedError(err)
		}
		if err := json.Unmarshal(explanations, &sc.Explanations); err != nil {
			sc.Explanations = []string{}
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewScoreLookupFailedError(err)
	}
	return out, nil
}

// DeleteByEntityID removes every score referencing id as provider or seeker.
func (s *PostgresStore) DeleteByEntityID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM compatibility_scores WHERE provider_id = $1 OR seeker_id = $1`, id)
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("postgres", "delete").Inc()
		return apperrors.NewScorePersistFailedError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("deleted stored scores", map[string]interface{}{"entityId": id, "rows": n})
	}
	return nil
}
