package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/metrics"
)

const (
	scoreKeyPrefix        = "compat:score:"
	seekerRankingPrefix   = "compat:top:seeker:"
	providerRankingPrefix = "compat:top:provider:"
	DefaultRedisTTL       = 24 * time.Hour
)

func scoreKey(providerID, seekerID string) string {
	return scoreKeyPrefix + providerID + ":" + seekerID
}

// RedisStore keeps each pair's score as JSON and ranks pairs in two sorted
// sets: providers per seeker and seekers per provider.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "scores.redis"}),
		now:    time.Now,
	}
}

func (s *RedisStore) GetStored(ctx context.Context, providerID, seekerID string) (*StoredScore, error) {
	val, err := s.client.Get(ctx, scoreKey(providerID, seekerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		metrics.PersistenceErrors.WithLabelValues("redis", "get").Inc()
		return nil, apperrors.NewScoreLookupFailedError(err)
	}

	var out StoredScore
	if err := json.Unmarshal(val, &out); err != nil {
		s.logger.Warn("dropping unreadable stored score", map[string]interface{}{
			"providerId": providerID,
			"seekerId":   seekerID,
			"error":      err,
		})
		return nil, nil
	}
	return &out, nil
}

func (s *RedisStore) Store(ctx context.Context, score StoredScore) (bool, error) {
	if score.UpdatedAt.IsZero() {
		score.UpdatedAt = s.now().UTC()
	}
	data, err := json.Marshal(score)
	if err != nil {
		return false, apperrors.NewScorePersistFailedError(err)
	}

	seekerKey := seekerRankingPrefix + score.SeekerID
	providerKey := providerRankingPrefix + score.ProviderID
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, scoreKey(score.ProviderID, score.SeekerID), data, s.ttl)
		pipe.ZAdd(ctx, seekerKey, redis.Z{Score: float64(score.Score), Member: score.ProviderID})
		pipe.ZAdd(ctx, providerKey, redis.Z{Score: float64(score.Score), Member: score.SeekerID})
		pipe.Expire(ctx, seekerKey, s.ttl)
		pipe.Expire(ctx, providerKey, s.ttl)
		return nil
	})
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("redis", "store").Inc()
		return false, apperrors.NewScorePersistFailedError(err)
	}
	return true, nil
}

func (s *RedisStore) TopMatchesForSeeker(ctx context.Context, seekerID string, n int) ([]StoredScore, error) {
	return s.top(ctx, seekerRankingPrefix+seekerID, n, func(member string) (string, string) {
		return member, seekerID
	})
}

func (s *RedisStore) TopMatchesForProvider(ctx context.Context, providerID string, n int) ([]StoredScore, error) {
	return s.top(ctx, providerRankingPrefix+providerID, n, func(member string) (string, string) {
		return providerID, member
	})
}

// top reads the ranking and joins each member with its stored details. A
// member whose details expired keeps its ranked score without explanations.
func (s *RedisStore) top(ctx context.Context, rankingKey string, n int, pair func(member string) (providerID, seekerID string)) ([]StoredScore, error) {
	if n <= 0 {
		return []StoredScore{}, nil
	}
	ranked, err := s.client.ZRevRangeWithScores(ctx, rankingKey, 0, int64(n-1)).Result()
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("redis", "top").Inc()
		return nil, apperrors.NewScoreLookupFailedError(err)
	}
	if len(ranked) == 0 {
		return []StoredScore{}, nil
	}

	keys := make([]string, len(ranked))
	for i, z := range ranked {
		p, sk := pair(fmt.Sprint(z.Member))
		keys[i] = scoreKey(p, sk)
	}
	details, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("redis", "top").Inc()
		return nil, apperrors.NewScoreLookupFailedError(err)
	}

	out := make([]StoredScore, 0, len(ranked))
	for i, z := range ranked {
		p, sk := pair(fmt.Sprint(z.Member))
		sc := StoredScore{ProviderID: p, SeekerID: sk, Score: int(z.Score), Explanations: []string{}}
		if raw, ok := details[i].(string); ok {
			var full StoredScore
			if json.Unmarshal([]byte(raw), &full) == nil {
				sc = full
			}
		}
		out = append(out, sc)
	}
	return out, nil
}

// DeleteByEntityID removes the entity's rankings, every pair score they list
// and the entity's membership in the other side's rankings.
func (s *RedisStore) DeleteByEntityID(ctx context.Context, id string) error {
	seekerKey := seekerRankingPrefix + id
	providerKey := providerRankingPrefix + id

	providers, err := s.client.ZRange(ctx, seekerKey, 0, -1).Result()
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("redis", "delete").Inc()
		return apperrors.NewScorePersistFailedError(err)
	}
	seekers, err := s.client.ZRange(ctx, providerKey, 0, -1).Result()
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("redis", "delete").Inc()
		return apperrors.NewScorePersistFailedError(err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range providers {
			pipe.Del(ctx, scoreKey(p, id))
			pipe.ZRem(ctx, providerRankingPrefix+p, id)
		}
		for _, sk := range seekers {
			pipe.Del(ctx, scoreKey(id, sk))
			pipe.ZRem(ctx, seekerRankingPrefix+sk, id)
		}
		pipe.Del(ctx, seekerKey, providerKey)
		return nil
	})
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("redis", "delete").Inc()
		return apperrors.NewScorePersistFailedError(err)
	}
	return nil
}
