package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: match-test
matching:
  profiles:
    source: elasticsearch
database:
  elasticsearch:
    url: http://es:9200
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Matching.DefaultStrategy)
	assert.Equal(t, 600000, cfg.Matching.Cache.TTL)
	assert.Equal(t, 5000, cfg.Matching.Cache.MaxEntries)
	assert.Equal(t, BackendNone, cfg.Matching.Persistence.Backend)
	assert.Equal(t, []string{"http://es:9200"}, cfg.Database.Elasticsearch.Addresses)
	assert.Equal(t, "match-test", cfg.Observability.ServiceName)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.UsesPostgres())
	assert.False(t, cfg.UsesRedis())
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	t.Setenv("MATCHING_DEFAULT_STRATEGY", "premium")
	t.Setenv("TEST_REDIS_ADDR", "redis:6379")

	path := writeConfig(t, `
matching:
  default_strategy: default
  persistence:
    backend: redis
  profiles:
    source: elasticsearch
database:
  elasticsearch:
    addresses: [http://es:9200]
  redis:
    address: ${TEST_REDIS_ADDR}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "premium", cfg.Matching.DefaultStrategy)
	assert.Equal(t, "redis:6379", cfg.Database.Redis.Address)
	assert.True(t, cfg.UsesRedis())
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "unknown backend",
			body: `
matching:
  persistence:
    backend: mongo
`,
			wantErr: "matching.persistence.backend",
		},
		{
			name: "postgres profiles need a host",
			body: `
matching:
  profiles:
    source: postgres
`,
			wantErr: "database.postgres.host is required",
		},
		{
			name: "enabled worker needs a broker",
			body: `
workers:
  calculate-compatibility:
    enabled: true
matching:
  profiles:
    source: elasticsearch
database:
  elasticsearch:
    url: http://es:9200
`,
			wantErr: "camunda.broker_address is required",
		},
		{
			name: "tiered persistence needs redis",
			body: `
matching:
  persistence:
    backend: tiered
database:
  postgres:
    host: db
    database: advisors
    user: svc
`,
			wantErr: "database.redis.address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ZEEBE_ADDRESS", "")
			t.Setenv("DB_USER", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"calculate-compatibility": {Enabled: false, MaxJobsActive: 3},
	}}

	assert.Equal(t, 3, GetWorkerConfig(cfg, "calculate-compatibility").MaxJobsActive)
	assert.False(t, IsWorkerEnabled(cfg, "calculate-compatibility"))
	assert.True(t, IsWorkerEnabled(cfg, "batch-calculate-compatibility"))
	assert.Equal(t, 5, GetWorkerConfig(cfg, "missing").MaxJobsActive)
}
