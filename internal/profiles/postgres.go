package profiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/models"
)

const (
	providerCachePrefix = "profile:provider:"
	seekerCachePrefix   = "profile:seeker:"
)

// PostgresStore reads profiles from the providers and seekers tables. When a
// redis client is set, decoded profiles are cached for cacheTTL.
type PostgresStore struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewPostgresStore(db *sql.DB, rdb *redis.Client, cacheTTL time.Duration, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:       db,
		redis:    rdb,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "profiles.postgres"}),
	}
}

func (s *PostgresStore) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	var cached models.Provider
	if s.readCache(ctx, providerCachePrefix+id, &cached) {
		return &cached, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, languages, expertise, hourly_rate, COALESCE(location, ''), available_slots
		FROM providers WHERE id = $1`, id)

	var p models.Provider
	var languages, expertise, slots []byte
	var rate sql.NullFloat64
	if err := row.Scan(&p.ID, &p.Name, &languages, &expertise, &rate, &p.Location, &slots); err != nil {
		return nil, s.mapError("provider", id, err)
	}
	// a NULL rate reads as zero
	p.HourlyRate = rate.Float64

	if err := json.Unmarshal(languages, &p.Languages); err != nil {
		p.Languages = []string{}
	}
	if err := json.Unmarshal(expertise, &p.Expertise); err != nil {
		p.Expertise = []string{}
	}
	if err := json.Unmarshal(slots, &p.AvailableSlots); err != nil {
		s.logger.Warn("unreadable availability", map[string]interface{}{
			"providerId": id,
			"error":      err,
		})
		p.AvailableSlots = nil
	}

	s.writeCache(ctx, providerCachePrefix+id, p)
	return &p, nil
}

func (s *PostgresStore) GetSeeker(ctx context.Context, id string) (*models.Seeker, error) {
	var cached models.Seeker
	if s.readCache(ctx, seekerCachePrefix+id, &cached) {
		return &cached, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, preferred_languages, service_needs, COALESCE(risk_tolerance, ''), budget, COALESCE(location, '')
		FROM seekers WHERE id = $1`, id)

	var sk models.Seeker
	var languages, needs []byte
	var budget sql.NullFloat64
	if err := row.Scan(&sk.ID, &sk.Name, &languages, &needs, &sk.RiskTolerance, &budget, &sk.Location); err != nil {
		return nil, s.mapError("seeker", id, err)
	}
	sk.Budget = budget.Float64

	if err := json.Unmarshal(languages, &sk.PreferredLanguages); err != nil {
		sk.PreferredLanguages = []string{}
	}
	if err := json.Unmarshal(needs, &sk.ServiceNeeds); err != nil {
		sk.ServiceNeeds = []string{}
	}

	s.writeCache(ctx, seekerCachePrefix+id, sk)
	return &sk, nil
}

// Forget drops the cached copy of a profile, e.g. after the owning service
// reports an update.
func (s *PostgresStore) Forget(ctx context.Context, id string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, providerCachePrefix+id, seekerCachePrefix+id).Err()
}

func (s *PostgresStore) mapError(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return apperrors.NewProfileStoreUnavailableError(err)
}

func (s *PostgresStore) readCache(ctx context.Context, key string, dest interface{}) bool {
	if s.redis == nil {
		return false
	}
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("profile cache read failed", map[string]interface{}{"key": key, "error": err})
		}
		return false
	}
	return json.Unmarshal([]byte(val), dest) == nil
}

func (s *PostgresStore) writeCache(ctx context.Context, key string, v interface{}) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.logger.Debug("profile cache write failed", map[string]interface{}{"key": key, "error": err})
	}
}
