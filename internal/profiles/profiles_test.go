package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/models"
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

func providerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "languages", "expertise", "hourly_rate", "location", "available_slots"}).
		AddRow("adv-1", "Ada", []byte(`["english","french"]`), []byte(`["tax planning"]`), 150.0, "Austin, TX",
			[]byte(`[{"day":"monday","start":"09:00","end":"10:00","available":true}]`))
}

// ==========================
// MemoryStore
// ==========================

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	store.PutProvider(models.Provider{ID: "p1", Languages: []string{"english"}})
	store.PutSeeker(models.Seeker{ID: "s1"})

	p, err := store.GetProvider(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"english"}, p.Languages)

	_, err = store.GetSeeker(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ==========================
// PostgresStore
// ==========================

func TestPostgresStore_GetProvider(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db, nil, 0, logger.NewTestLogger(t))

	mock.ExpectQuery("SELECT (.+) FROM providers WHERE id").
		WithArgs("adv-1").
		WillReturnRows(providerRows())

	p, err := store.GetProvider(context.Background(), "adv-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, []string{"english", "french"}, p.Languages)
	assert.Len(t, p.AvailableSlots, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSeeker_MalformedArrays(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewPostgresStore(db, nil, 0, logger.NewTestLogger(t))

	rows := sqlmock.NewRows([]string{"id", "name", "preferred_languages", "service_needs", "risk_tolerance", "budget", "location"}).
		AddRow("cl-1", "Bo", []byte(`not-json`), []byte(`["tax"]`), "low", 500.0, "")
	mock.ExpectQuery("SELECT (.+) FROM seekers WHERE id").WithArgs("cl-1").WillReturnRows(rows)

	sk, err := store.GetSeeker(context.Background(), "cl-1")
	require.NoError(t, err)
	assert.Empty(t, sk.PreferredLanguages)
	assert.Equal(t, []string{"tax"}, sk.ServiceNeeds)
	assert.Equal(t, models.RiskLow, sk.RiskTolerance)
}

func TestPostgresStore_NullNumericColumns(t *testing.T) {
	tests := []struct {
		name   string
		rate   interface{}
		budget interface{}
		want   float64
	}{
		{"null values read as zero", nil, nil, 0},
		{"present values are kept", 120.5, 120.5, 120.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			store := NewPostgresStore(db, nil, 0, logger.NewTestLogger(t))

			mock.ExpectQuery("SELECT (.+) FROM providers WHERE id").WithArgs("adv-1").WillReturnRows(
				sqlmock.NewRows([]string{"id", "name", "languages", "expertise", "hourly_rate", "location", "available_slots"}).
					AddRow("adv-1", "Ada", []byte(`["english"]`), []byte(`["tax planning"]`), tt.rate, "", []byte(`[]`)))
			mock.ExpectQuery("SELECT (.+) FROM seekers WHERE id").WithArgs("cl-1").WillReturnRows(
				sqlmock.NewRows([]string{"id", "name", "preferred_languages", "service_needs", "risk_tolerance", "budget", "location"}).
					AddRow("cl-1", "Bo", []byte(`["english"]`), []byte(`["tax planning"]`), "low", tt.budget, ""))

			p, err := store.GetProvider(context.Background(), "adv-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.HourlyRate)
			assert.Equal(t, []string{"tax planning"}, p.Expertise)

			sk, err := store.GetSeeker(context.Background(), "cl-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, sk.Budget)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_Errors(t *testing.T) {
	t.Run("no rows maps to not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewPostgresStore(db, nil, 0, logger.NewTestLogger(t))
		mock.ExpectQuery("SELECT (.+) FROM providers").WillReturnError(sql.ErrNoRows)

		_, err := store.GetProvider(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("connection failure is infrastructure", func(t *testing.T) {
		db, mock := setupMockDB(t)
		store := NewPostgresStore(db, nil, 0, logger.NewTestLogger(t))
		mock.ExpectQuery("SELECT (.+) FROM seekers").WillReturnError(errors.New("connection refused"))

		_, err := store.GetSeeker(context.Background(), "cl-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Equal(t, apperrors.ErrCodeProfileStoreUnavailable, apperrors.AsStandardError(err).Code)
	})
}

func TestPostgresStore_RedisReadCache(t *testing.T) {
	db, mock := setupMockDB(t)
	mr, rdb := setupRedis(t)
	store := NewPostgresStore(db, rdb, time.Minute, logger.NewTestLogger(t))

	mock.ExpectQuery("SELECT (.+) FROM providers").WithArgs("adv-1").WillReturnRows(providerRows())

	first, err := store.GetProvider(context.Background(), "adv-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(providerCachePrefix+"adv-1"))

	// second read must come from redis; sqlmock would fail an unexpected query
	second, err := store.GetProvider(context.Background(), "adv-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(providerCachePrefix+"adv-1"))

	require.NoError(t, store.Forget(context.Background(), "adv-1"))
}

// ==========================
// ElasticsearchStore
// ==========================

func newTestElasticsearch(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchStore_GetProvider(t *testing.T) {
	client := newTestElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/advisors/_doc/adv-9"), r.URL.Path)
		fmt.Fprint(w, `{"_index":"advisors","_id":"adv-9","found":true,"_source":{"name":"Cy","languages":["spanish"],"expertise":["insurance"]}}`)
	})
	store := NewElasticsearchStore(client, "", "", logger.NewTestLogger(t))

	p, err := store.GetProvider(context.Background(), "adv-9")
	require.NoError(t, err)
	assert.Equal(t, "adv-9", p.ID)
	assert.Equal(t, []string{"spanish"}, p.Languages)
}

func TestElasticsearchStore_NotFound(t *testing.T) {
	client := newTestElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"_index":"clients","_id":"nobody","found":false}`)
	})
	store := NewElasticsearchStore(client, "", "", logger.NewTestLogger(t))

	_, err := store.GetSeeker(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestElasticsearchStore_ServerError(t *testing.T) {
	client := newTestElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"unavailable"}`)
	})
	store := NewElasticsearchStore(client, "", "", logger.NewTestLogger(t))

	_, err := store.GetSeeker(context.Background(), "cl-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, apperrors.ErrCodeProfileStoreUnavailable, apperrors.AsStandardError(err).Code)
}
