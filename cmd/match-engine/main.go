// cmd/match-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"advisor-match-engine/internal/admin"
	"advisor-match-engine/internal/common/camunda"
	"advisor-match-engine/internal/common/config"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/observability"
	"advisor-match-engine/internal/matching/cache"
	"advisor-match-engine/internal/matching/engine"
	"advisor-match-engine/internal/matching/strategy"

	bcc "advisor-match-engine/internal/workers/matching/batch-calculate-compatibility"
	cc "advisor-match-engine/internal/workers/matching/calculate-compatibility"
)

const shutdownTimeout = 30 * time.Second

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting match engine...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
		SampleRatio:    cfg.Observability.SampleRatio,
	})
	if err != nil {
		zapLog.Fatal("observability setup failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := connectDependencies(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Fatal("dependency initialization failed", zap.Error(err))
	}
	defer deps.Close()

	profileStore, profileCache, err := buildProfileStore(cfg, deps, log)
	if err != nil {
		zapLog.Fatal("profile store setup failed", zap.Error(err))
	}

	strategies, err := strategy.NewSet(strategy.Deps{Profiles: profileStore, Logger: log})
	if err != nil {
		zapLog.Fatal("strategy setup failed", zap.Error(err))
	}
	if _, err := strategies.Get(cfg.Matching.DefaultStrategy); err != nil {
		zapLog.Fatal("default strategy is not registered", zap.String("strategy", cfg.Matching.DefaultStrategy))
	}

	scoreCache := cache.New(
		cache.WithTTL(config.GetDuration(cfg.Matching.Cache.TTL)),
		cache.WithMaxEntries(cfg.Matching.Cache.MaxEntries),
		cache.WithSweepInterval(config.GetDuration(cfg.Matching.Cache.SweepInterval)),
		cache.WithFrequentHitThreshold(cfg.Matching.Cache.FrequentHitThreshold),
		cache.WithLogger(log),
	)
	scoreCache.Start(ctx)

	var engineOpts []engine.Option
	scoreStore, err := buildScoreStore(ctx, cfg, deps, log)
	if err != nil {
		zapLog.Fatal("score store setup failed", zap.Error(err))
	}
	if scoreStore != nil {
		engineOpts = append(engineOpts, engine.WithStore(scoreStore))
	}

	eng := engine.New(engine.Config{
		DefaultStrategy: cfg.Matching.DefaultStrategy,
		DurableMaxAge:   config.GetDuration(cfg.Matching.Persistence.MaxAge),
		WriteTimeout:    config.GetDuration(cfg.Matching.Persistence.WriteTimeout),
		Workers:         cfg.Matching.Dispatcher.Workers,
		QueueSize:       cfg.Matching.Dispatcher.QueueSize,
		BatchWindow:     config.GetDuration(cfg.Matching.Dispatcher.Window),
		MaxBatchSize:    cfg.Matching.Dispatcher.MaxBatch,
	}, strategies, scoreCache, log, engineOpts...)

	zapLog.Info("Compatibility engine ready",
		zap.String("defaultStrategy", cfg.Matching.DefaultStrategy),
		zap.String("persistence", cfg.Matching.Persistence.Backend),
		zap.String("profiles", cfg.Matching.Profiles.Source),
	)

	var workers []*camunda.CamundaWorker
	if deps.zeebe != nil {
		zb := deps.zeebe.GetClient()

		if wc := cfg.Workers[cc.TaskType]; wc.Enabled {
			handler := cc.NewHandler(cc.LoadConfig(wc), eng, log, obs)
			workers = append(workers, startWorker(zb, cc.TaskType, wc, handler, log))
		}
		if wc := cfg.Workers[bcc.TaskType]; wc.Enabled {
			handler := bcc.NewHandler(bcc.LoadConfig(wc), eng, log, obs)
			workers = append(workers, startWorker(zb, bcc.TaskType, wc, handler, log))
		}
	}
	zapLog.Info(fmt.Sprintf("%d workers started", len(workers)))

	adminOpts := []admin.Option{admin.WithStrategies(strategies)}
	if profileCache != nil {
		adminOpts = append(adminOpts, admin.WithProfileCache(profileCache))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if failed := deps.Check(checkCtx); len(failed) > 0 {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", failed)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	mux.Handle("/", admin.NewHandler(eng, log, adminOpts...))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("Starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	zapLog.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown error", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop()
	}
	eng.Close()
	scoreCache.Close()
	cancel()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("observability shutdown error", zap.Error(err))
	}

	zapLog.Info("Match engine stopped gracefully")
}

func startWorker(client zbc.Client, taskType string, wc config.WorkerConfig, handler camunda.JobHandler, log logger.Logger) *camunda.CamundaWorker {
	return camunda.NewWorker(client, camunda.WorkerOptions{
		TaskType:      taskType,
		MaxJobsActive: wc.MaxJobsActive,
		Timeout:       config.GetDuration(wc.Timeout),
	}, handler, log)
}

func writeStatus(w http.ResponseWriter, status int, state string, failed []string) {
	body := map[string]interface{}{
		"status": state,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if len(failed) > 0 {
		body["failed"] = failed
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
