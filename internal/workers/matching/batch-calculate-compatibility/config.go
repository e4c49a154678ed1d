// internal/workers/matching/batch-calculate-compatibility/config.go
package batchcalculatecompatibility

import (
	"time"

	"advisor-match-engine/internal/common/config"
)

const defaultMaxProviders = 500

type Config struct {
	Timeout      time.Duration
	MaxProviders int
}

func LoadConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Config{Timeout: timeout, MaxProviders: defaultMaxProviders}
}
