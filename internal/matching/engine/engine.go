// Package engine orchestrates compatibility scoring: memory cache, durable
// read-through, strategy computation, write-through and batch dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/metrics"
	"advisor-match-engine/internal/matching/cache"
	"advisor-match-engine/internal/matching/dispatcher"
	"advisor-match-engine/internal/matching/persistence"
	"advisor-match-engine/internal/matching/strategy"
	"advisor-match-engine/internal/models"
)

const tracerName = "advisor-match-engine/engine"

var ErrPersistenceDisabled = errors.New("durable score store not configured")

// Request is one scoring request.
type Request = dispatcher.Request

// StrategyResolver maps a strategy name onto an implementation.
type StrategyResolver interface {
	Get(name string) (strategy.Strategy, error)
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	DefaultStrategy string
	// DurableMaxAge bounds the age of a stored score served on a memory miss.
	DurableMaxAge time.Duration
	WriteTimeout  time.Duration
	Workers       int
	QueueSize     int
	BatchWindow   time.Duration
	MaxBatchSize  int
}

func (c Config) withDefaults() Config {
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = strategy.NameDefault
	}
	if c.DurableMaxAge <= 0 {
		c.DurableMaxAge = 24 * time.Hour
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = dispatcher.DefaultWindow
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = dispatcher.DefaultMaxBatch
	}
	return c
}

// BatchItemResult is the outcome for one provider of a batch.
type BatchItemResult struct {
	ProviderID string             `json:"providerId"`
	Result     models.ScoreResult `json:"result"`
	Error      string             `json:"error,omitempty"`
}

type Engine struct {
	cfg        Config
	strategies StrategyResolver
	cache      *cache.Cache
	store      persistence.Store
	dispatcher *dispatcher.Dispatcher
	pool       *dispatcher.PoolExecutor
	logger     logger.Logger
	tracer     trace.Tracer
	now        func() time.Time

	// epoch advances on every invalidation; results computed under an
	// older epoch are returned but neither cached nor persisted.
	epoch atomic.Uint64
	// invMu orders cache inserts against invalidation.
	invMu sync.RWMutex
	// writeMu is held shared by write-through and exclusively by durable
	// invalidation.
	writeMu sync.RWMutex
	writes  sync.WaitGroup
	gate    sync.Mutex
	closed  bool
}

type Option func(*Engine)

// WithStore enables durable read-through and write-through.
func WithStore(store persistence.Store) Option {
	return func(e *Engine) { e.store = store }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(cfg Config, strategies StrategyResolver, c *cache.Cache, log logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	e := &Engine{
		cfg:        cfg.withDefaults(),
		strategies: strategies,
		cache:      c,
		logger:     log.WithFields(map[string]interface{}{"component": "engine"}),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	dispOpts := []dispatcher.Option{
		dispatcher.WithWindow(e.cfg.BatchWindow),
		dispatcher.WithMaxBatch(e.cfg.MaxBatchSize),
		dispatcher.WithLogger(log),
	}
	if e.cfg.Workers > 0 {
		e.pool = dispatcher.NewPoolExecutor(e.CalculateScore, e.cfg.Workers, e.cfg.QueueSize, log)
		dispOpts = append(dispOpts, dispatcher.WithExecutor(e.pool))
	}
	e.dispatcher = dispatcher.New(e.CalculateScore, dispOpts...)
	return e
}

// CalculateScore returns the score for req. Identical requests inside the
// cache TTL are served from memory without recomputation. Only strategy
// resolution and profile store failures are returned as errors.
func (e *Engine) CalculateScore(ctx context.Context, req Request) (models.ScoreResult, error) {
	name := req.Strategy
	if name == "" {
		name = e.cfg.DefaultStrategy
	}
	st, err := e.strategies.Get(name)
	if err != nil {
		return models.ScoreResult{}, apperrors.NewUnknownStrategyError(name)
	}

	ctx, span := e.tracer.Start(ctx, "engine.CalculateScore", trace.WithAttributes(
		attribute.String("strategy", name),
		attribute.String("provider.id", req.ProviderID),
		attribute.String("seeker.id", req.SeekerID),
	))
	defer span.End()

	key := cache.NewKey(name, req.ProviderID, req.SeekerID, req.Preferences, req.Metrics)
	if res, ok := e.cache.Get(key); ok {
		metrics.ScoresServed.WithLabelValues("memory").Inc()
		span.SetAttributes(attribute.String("source", "memory"))
		return res, nil
	}

	epoch := e.epoch.Load()

	if res, ok := e.readDurable(ctx, key); ok {
		e.cacheIfCurrent(key, res, epoch)
		metrics.ScoresServed.WithLabelValues("durable").Inc()
		span.SetAttributes(attribute.String("source", "durable"))
		return res, nil
	}

	start := e.now()
	res, err := st.CalculateScore(ctx, req.ProviderID, req.SeekerID, req.Preferences, req.Metrics)
	metrics.ScoreDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "score computation failed")
		return models.ScoreResult{}, err
	}
	metrics.ScoresServed.WithLabelValues("computed").Inc()
	span.SetAttributes(attribute.String("source", "computed"), attribute.Int("score", res.Score))

	if strategy.IsLookupFailure(res) {
		return res, nil
	}
	if e.cacheIfCurrent(key, res, epoch) {
		e.writeThrough(key, res, epoch)
	}
	return res, nil
}

func (e *Engine) cacheIfCurrent(key cache.Key, res models.ScoreResult, epoch uint64) bool {
	e.invMu.RLock()
	defer e.invMu.RUnlock()
	if e.epoch.Load() != epoch {
		return false
	}
	e.cache.Put(key, res)
	return true
}

// ScoreAsync resolves immediately on a memory hit and otherwise queues the
// request for the next batch.
func (e *Engine) ScoreAsync(ctx context.Context, req Request) *dispatcher.Future {
	name := req.Strategy
	if name == "" {
		name = e.cfg.DefaultStrategy
	}
	key := cache.NewKey(name, req.ProviderID, req.SeekerID, req.Preferences, req.Metrics)
	if res, ok := e.cache.Get(key); ok {
		metrics.ScoresServed.WithLabelValues("memory").Inc()
		return dispatcher.Resolved(res)
	}
	req.Strategy = name
	return e.dispatcher.Submit(ctx, req)
}

// ScoreBatch scores one seeker against many providers. Results keep the
// order of providerIDs; a failed pair carries its error message.
func (e *Engine) ScoreBatch(ctx context.Context, seekerID string, providerIDs []string, prefs models.Preferences, strategyName string, interactions []models.InteractionMetrics) []BatchItemResult {
	futures := make([]*dispatcher.Future, len(providerIDs))
	for i, pid := range providerIDs {
		futures[i] = e.ScoreAsync(ctx, Request{
			ProviderID:  pid,
			SeekerID:    seekerID,
			Strategy:    strategyName,
			Preferences: prefs,
			Metrics:     interactions,
		})
	}

	out := make([]BatchItemResult, len(providerIDs))
	for i, f := range futures {
		res, err := f.Wait(ctx)
		out[i] = BatchItemResult{ProviderID: providerIDs[i], Result: res}
		if err != nil {
			out[i].Error = err.Error()
		}
	}
	return out
}

// TopMatches returns the n best stored providers for a seeker.
func (e *Engine) TopMatches(ctx context.Context, seekerID string, n int) ([]persistence.StoredScore, error) {
	if e.store == nil {
		return nil, ErrPersistenceDisabled
	}
	return e.store.TopMatchesForSeeker(ctx, seekerID, n)
}

// TopMatchesForProvider returns the n best stored seekers for a provider.
func (e *Engine) TopMatchesForProvider(ctx context.Context, providerID string, n int) ([]persistence.StoredScore, error) {
	if e.store == nil {
		return nil, ErrPersistenceDisabled
	}
	return e.store.TopMatchesForProvider(ctx, providerID, n)
}

// ClearAll empties the memory cache. Stored scores are kept.
func (e *Engine) ClearAll() {
	e.invMu.Lock()
	e.epoch.Add(1)
	e.cache.Clear()
	e.invMu.Unlock()
	e.logger.Info("compatibility cache cleared", nil)
}

// Invalidate drops every memory and durable score referencing entityID.
// Once it returns no later call is served a score computed before it.
func (e *Engine) Invalidate(ctx context.Context, entityID string) (int, error) {
	e.invMu.Lock()
	e.epoch.Add(1)
	removed := e.cache.InvalidateByEntityID(entityID)
	e.invMu.Unlock()

	if e.store == nil {
		return removed, nil
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.store.DeleteByEntityID(ctx, entityID); err != nil {
		return removed, apperrors.NewCacheOperationError("invalidate", fmt.Errorf("stored scores for %s: %w", entityID, err))
	}
	return removed, nil
}

// Optimize shrinks the memory cache to its target most-hit entries.
func (e *Engine) Optimize(target int) int {
	return e.cache.Optimize(target)
}

func (e *Engine) Stats() cache.Stats {
	return e.cache.Stats()
}

// Close rejects queued requests, stops the worker pool and waits for
// pending durable writes.
func (e *Engine) Close() {
	e.gate.Lock()
	if e.closed {
		e.gate.Unlock()
		return
	}
	e.closed = true
	e.gate.Unlock()

	e.dispatcher.Close()
	if e.pool != nil {
		e.pool.Close()
	}
	e.writes.Wait()
}

func durableFingerprint(key cache.Key) string {
	return key.Strategy + ":" + key.Fingerprint
}

func (e *Engine) readDurable(ctx context.Context, key cache.Key) (models.ScoreResult, bool) {
	if e.store == nil || key.ProviderID == "" || key.SeekerID == "" {
		return models.ScoreResult{}, false
	}
	sc, err := e.store.GetStored(ctx, key.ProviderID, key.SeekerID)
	if err != nil {
		e.logger.Warn("durable lookup failed, computing", map[string]interface{}{
			"providerId": key.ProviderID,
			"seekerId":   key.SeekerID,
			"error":      err,
		})
		return models.ScoreResult{}, false
	}
	if sc == nil || sc.Fingerprint != durableFingerprint(key) {
		return models.ScoreResult{}, false
	}
	if e.now().Sub(sc.UpdatedAt) >= e.cfg.DurableMaxAge {
		return models.ScoreResult{}, false
	}
	return models.ScoreResult{Score: models.ClampScore(sc.Score), Explanations: sc.Explanations}.Clone(), true
}

// writeThrough persists res in the background. Failures are logged only.
func (e *Engine) writeThrough(key cache.Key, res models.ScoreResult, epoch uint64) {
	if e.store == nil {
		return
	}
	e.gate.Lock()
	if e.closed {
		e.gate.Unlock()
		return
	}
	e.writes.Add(1)
	e.gate.Unlock()
	go func() {
		defer e.writes.Done()
		e.writeMu.RLock()
		defer e.writeMu.RUnlock()
		if e.epoch.Load() != epoch {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.WriteTimeout)
		defer cancel()
		_, err := e.store.Store(ctx, persistence.StoredScore{
			ProviderID:   key.ProviderID,
			SeekerID:     key.SeekerID,
			Score:        res.Score,
			Explanations: res.Explanations,
			Fingerprint:  durableFingerprint(key),
			UpdatedAt:    e.now().UTC(),
		})
		if err != nil {
			e.logger.Warn("write-through failed", map[string]interface{}{
				"providerId": key.ProviderID,
				"seekerId":   key.SeekerID,
				"error":      err,
			})
		}
	}()
}
