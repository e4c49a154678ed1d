package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

var fixedTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func createTestScore(provider, seeker string, score int) StoredScore {
	return StoredScore{
		ProviderID:   provider,
		SeekerID:     seeker,
		Score:        score,
		Explanations: []string{"Speaks all your preferred languages"},
		Fingerprint:  "default:abc",
		UpdatedAt:    fixedTime,
	}
}

func scoreColumns() []string {
	return []string{"provider_id", "seeker_id", "score", "explanations", "fingerprint", "updated_at"}
}

// ==========================
// PostgresStore
// ==========================

func TestPostgresStore_EnsureSchema(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db, logger.NewTestLogger(t))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS compatibility_scores").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetStored(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(mock sqlmock.Sqlmock)
		expectNil bool
		expectErr bool
	}{
		{
			name: "hit",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT score, explanations, fingerprint, updated_at FROM compatibility_scores").
					WithArgs("adv-1", "cl-1").
					WillReturnRows(sqlmock.NewRows([]string{"score", "explanations", "fingerprint", "updated_at"}).
						AddRow(72, []byte(`["a","b"]`), "default:abc", fixedTime))
			},
		},
		{
			name: "miss",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM compatibility_scores").WillReturnError(sql.ErrNoRows)
			},
			expectNil: true,
		},
		{
			name: "database error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT (.+) FROM compatibility_scores").WillReturnError(errors.New("connection reset"))
			},
			expectNil: true,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			store := NewPostgresStore(db, logger.NewTestLogger(t))
			tt.setup(mock)

			got, err := store.GetStored(context.Background(), "adv-1", "cl-1")
			if tt.expectErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeScoreLookupFailed, apperrors.AsStandardError(err).Code)
			} else {
				require.NoError(t, err)
			}
			if tt.expectNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, 72, got.Score)
			assert.Equal(t, []string{"a", "b"}, got.Explanations)
			assert.Equal(t, "default:abc", got.Fingerprint)
		})
	}
}

func TestPostgresStore_StoreUpserts(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db, logger.NewTestLogger(t))
	sc := createTestScore("adv-1", "cl-1", 80)

	mock.ExpectExec("INSERT INTO compatibility_scores (.+) ON CONFLICT \\(provider_id, seeker_id\\) DO UPDATE").
		WithArgs("adv-1", "cl-1", 80, []byte(`["Speaks all your preferred languages"]`), "default:abc", fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.Store(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StoreFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db, logger.NewTestLogger(t))

	mock.ExpectExec("INSERT INTO compatibility_scores").WillReturnError(errors.New("disk full"))

	ok, err := store.Store(context.Background(), createTestScore("adv-1", "cl-1", 80))
	assert.False(t, ok)
	assert.Equal(t, apperrors.ErrCodeScorePersistFailed, apperrors.AsStandardError(err).Code)
}

func TestPostgresStore_TopMatches(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db, logger.NewTestLogger(t))

	mock.ExpectQuery("WHERE seeker_id = \\$1 ORDER BY score DESC").
		WithArgs("cl-1", 2).
		WillReturnRows(sqlmock.NewRows(scoreColumns()).
			AddRow("adv-3", "cl-1", 91, []byte(`[]`), "f", fixedTime).
			AddRow("adv-1", "cl-1", 72, []byte(`["x"]`), "f", fixedTime))

	top, err := store.TopMatchesForSeeker(context.Background(), "cl-1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "adv-3", top[0].ProviderID)
	assert.Equal(t, 91, top[0].Score)

	mock.ExpectQuery("WHERE provider_id = \\$1 ORDER BY score DESC").
		WithArgs("adv-1", 5).
		WillReturnRows(sqlmock.NewRows(scoreColumns()))
	top, err = store.TopMatchesForProvider(context.Background(), "adv-1", 5)
	require.NoError(t, err)
	assert.Empty(t, top)

	top, err = store.TopMatchesForProvider(context.Background(), "adv-1", 0)
	require.NoError(t, err)
	assert.Empty(t, top)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteByEntityID(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db, logger.NewTestLogger(t))

	mock.ExpectExec("DELETE FROM compatibility_scores WHERE provider_id = \\$1 OR seeker_id = \\$1").
		WithArgs("adv-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, store.DeleteByEntityID(context.Background(), "adv-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// RedisStore
// ==========================

func TestRedisStore_StoreAndGet(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewRedisStore(client, time.Hour, logger.NewTestLogger(t))

	sc := createTestScore("adv-1", "cl-1", 64)
	ok, err := store.Store(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetStored(context.Background(), "adv-1", "cl-1")
	require.NoError(t, err)
	assert.Equal(t, &sc, got)

	score, err := mr.ZScore(seekerRankingPrefix+"cl-1", "adv-1")
	require.NoError(t, err)
	assert.Equal(t, 64.0, score)

	missing, err := store.GetStored(context.Background(), "adv-1", "cl-9")
	require.NoError(t, err)
	assert.Nil(t, missing)

	mr.FastForward(2 * time.Hour)
	expired, err := store.GetStored(context.Background(), "adv-1", "cl-1")
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestRedisStore_TopMatches(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewRedisStore(client, time.Hour, logger.NewTestLogger(t))
	ctx := context.Background()

	for provider, score := range map[string]int{"adv-1": 40, "adv-2": 95, "adv-3": 70} {
		_, err := store.Store(ctx, createTestScore(provider, "cl-1", score))
		require.NoError(t, err)
	}
	_, err := store.Store(ctx, createTestScore("adv-2", "cl-2", 10))
	require.NoError(t, err)

	top, err := store.TopMatchesForSeeker(ctx, "cl-1", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "adv-2", top[0].ProviderID)
	assert.Equal(t, "adv-3", top[1].ProviderID)
	assert.NotEmpty(t, top[0].Explanations)

	// ranking survives a lost detail record
	mr.Del(scoreKey("adv-3", "cl-1"))
	top, err = store.TopMatchesForSeeker(ctx, "cl-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 70, top[1].Score)
	assert.Empty(t, top[1].Explanations)

	byProvider, err := store.TopMatchesForProvider(ctx, "adv-2", 10)
	require.NoError(t, err)
	require.Len(t, byProvider, 2)
	assert.Equal(t, "cl-1", byProvider[0].SeekerID)
}

func TestRedisStore_DeleteByEntityID(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewRedisStore(client, time.Hour, logger.NewTestLogger(t))
	ctx := context.Background()

	_, _ = store.Store(ctx, createTestScore("adv-1", "cl-1", 50))
	_, _ = store.Store(ctx, createTestScore("adv-2", "cl-1", 60))
	_, _ = store.Store(ctx, createTestScore("adv-2", "cl-2", 70))

	require.NoError(t, store.DeleteByEntityID(ctx, "cl-1"))

	assert.False(t, mr.Exists(scoreKey("adv-1", "cl-1")))
	assert.False(t, mr.Exists(scoreKey("adv-2", "cl-1")))
	assert.False(t, mr.Exists(seekerRankingPrefix+"cl-1"))
	assert.True(t, mr.Exists(scoreKey("adv-2", "cl-2")))

	byProvider, err := store.TopMatchesForProvider(ctx, "adv-2", 10)
	require.NoError(t, err)
	require.Len(t, byProvider, 1)
	assert.Equal(t, "cl-2", byProvider[0].SeekerID)
}

func TestRedisStore_GetStoredError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, time.Hour, logger.NewTestLogger(t))

	mock.ExpectGet(scoreKey("adv-1", "cl-1")).SetErr(errors.New("READONLY"))

	_, err := store.GetStored(context.Background(), "adv-1", "cl-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeScoreLookupFailed, apperrors.AsStandardError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// TieredStore
// ==========================

func TestTieredStore_BackfillsFastTier(t *testing.T) {
	db, mock := setupMockDB(t)
	mr, client := setupRedis(t)
	log := logger.NewTestLogger(t)
	store := NewTieredStore(NewRedisStore(client, time.Hour, log), NewPostgresStore(db, log), log)

	mock.ExpectQuery("SELECT score, explanations, fingerprint, updated_at").
		WithArgs("adv-1", "cl-1").
		WillReturnRows(sqlmock.NewRows([]string{"score", "explanations", "fingerprint", "updated_at"}).
			AddRow(55, []byte(`["x"]`), "fp", fixedTime))

	first, err := store.GetStored(context.Background(), "adv-1", "cl-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, mr.Exists(scoreKey("adv-1", "cl-1")))

	second, err := store.GetStored(context.Background(), "adv-1", "cl-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTieredStore_FastTierFailureFallsThrough(t *testing.T) {
	db, mock := setupMockDB(t)
	client, rmock := redismock.NewClientMock()
	log := logger.NewTestLogger(t)
	store := NewTieredStore(NewRedisStore(client, time.Hour, log), NewPostgresStore(db, log), log)

	rmock.ExpectGet(scoreKey("adv-1", "cl-1")).SetErr(errors.New("connection refused"))
	mock.ExpectQuery("SELECT (.+) FROM compatibility_scores").WillReturnError(sql.ErrNoRows)

	got, err := store.GetStored(context.Background(), "adv-1", "cl-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTieredStore_StoreAndTop(t *testing.T) {
	db, mock := setupMockDB(t)
	_, client := setupRedis(t)
	log := logger.NewTestLogger(t)
	store := NewTieredStore(NewRedisStore(client, time.Hour, log), NewPostgresStore(db, log), log)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO compatibility_scores").WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := store.Store(ctx, createTestScore("adv-1", "cl-1", 88))
	require.NoError(t, err)
	assert.True(t, ok)

	// one ranked pair in redis satisfies n=1
	top, err := store.TopMatchesForSeeker(ctx, "cl-1", 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 88, top[0].Score)

	// n=3 needs the durable ranking
	mock.ExpectQuery("WHERE seeker_id = \\$1").WithArgs("cl-1", 3).
		WillReturnRows(sqlmock.NewRows(scoreColumns()).
			AddRow("adv-1", "cl-1", 88, []byte(`[]`), "f", fixedTime).
			AddRow("adv-7", "cl-1", 31, []byte(`[]`), "f", fixedTime))
	top, err = store.TopMatchesForSeeker(ctx, "cl-1", 3)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	mock.ExpectExec("DELETE FROM compatibility_scores").WithArgs("cl-1").WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, store.DeleteByEntityID(ctx, "cl-1"))

	gone, err := store.fast.GetStored(ctx, "adv-1", "cl-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoredScore_JSONShape(t *testing.T) {
	data, err := json.Marshal(createTestScore("adv-1", "cl-1", 10))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"providerId":"adv-1"`)
	assert.Contains(t, string(data), `"updatedAt":"2024-05-01T10:00:00Z"`)
}
