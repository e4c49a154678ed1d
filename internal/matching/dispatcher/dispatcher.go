// Package dispatcher coalesces scoring requests issued within a short window
// into batches and resolves each request through its own Future.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/metrics"
	"advisor-match-engine/internal/models"
)

const (
	DefaultWindow   = 25 * time.Millisecond
	DefaultMaxBatch = 64
)

var (
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrNoResponse       = errors.New("no response for request")
)

// Request is one provider/seeker pair to score with its shared context.
type Request struct {
	ProviderID  string                      `json:"providerId"`
	SeekerID    string                      `json:"seekerId"`
	Strategy    string                      `json:"strategy,omitempty"`
	Preferences models.Preferences          `json:"preferences"`
	Metrics     []models.InteractionMetrics `json:"metrics,omitempty"`
}

// ComputeFunc scores a single request.
type ComputeFunc func(ctx context.Context, req Request) (models.ScoreResult, error)

// BatchError rejects every request of a batch whose execution failed.
type BatchError struct {
	BatchID string
	Size    int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s of %d requests failed: %v", e.BatchID, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

type item struct {
	id     string
	req    Request
	future *Future
}

// Dispatcher collects requests for up to window (or until maxBatch requests
// are queued) and then executes them as one batch. Without an executor the
// batch is computed serially in submission order.
type Dispatcher struct {
	compute  ComputeFunc
	executor Executor
	window   time.Duration
	maxBatch int
	logger   logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	pending  []*item
	timer    *time.Timer
	inflight map[string]*item
	closed   bool
}

type Option func(*Dispatcher)

func WithWindow(d time.Duration) Option {
	return func(ds *Dispatcher) {
		if d > 0 {
			ds.window = d
		}
	}
}

func WithMaxBatch(n int) Option {
	return func(ds *Dispatcher) {
		if n > 0 {
			ds.maxBatch = n
		}
	}
}

// WithExecutor runs flushed batches on exec instead of serially.
func WithExecutor(exec Executor) Option {
	return func(ds *Dispatcher) {
		ds.executor = exec
	}
}

func WithLogger(log logger.Logger) Option {
	return func(ds *Dispatcher) {
		if log != nil {
			ds.logger = log
		}
	}
}

func New(compute ComputeFunc, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		compute:  compute,
		window:   DefaultWindow,
		maxBatch: DefaultMaxBatch,
		logger:   logger.NewNoOpLogger(),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]*item),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithFields(map[string]interface{}{"component": "dispatcher"})
	return d
}

// Submit queues req for the next batch.
func (d *Dispatcher) Submit(ctx context.Context, req Request) *Future {
	if err := ctx.Err(); err != nil {
		return Rejected(err)
	}

	it := &item{id: uuid.NewString(), req: req, future: newFuture()}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return Rejected(ErrDispatcherClosed)
	}
	d.pending = append(d.pending, it)

	var batch []*item
	switch {
	case len(d.pending) >= d.maxBatch:
		batch = d.takeLocked()
	case d.timer == nil:
		d.timer = time.AfterFunc(d.window, d.flush)
	}
	d.mu.Unlock()

	if batch != nil {
		go d.run(batch)
	}
	return it.future
}

func (d *Dispatcher) flush() {
	d.mu.Lock()
	batch := d.takeLocked()
	d.mu.Unlock()

	if batch != nil {
		d.run(batch)
	}
}

// takeLocked moves the pending queue into the in-flight set.
func (d *Dispatcher) takeLocked() []*item {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if len(d.pending) == 0 || d.closed {
		return nil
	}
	batch := d.pending
	d.pending = nil
	for _, it := range batch {
		d.inflight[it.id] = it
	}
	d.wg.Add(1)
	return batch
}

func (d *Dispatcher) run(batch []*item) {
	defer d.wg.Done()
	defer d.release(batch)

	batchID := uuid.NewString()
	metrics.BatchSize.Observe(float64(len(batch)))
	d.logger.Debug("flushing batch", map[string]interface{}{
		"batchId": batchID,
		"size":    len(batch),
	})

	if d.executor == nil {
		d.runSerial(batch)
		return
	}

	msgType := TypeBatchCalculate
	if len(batch) == 1 {
		msgType = TypeCalculateCompatibility
	}
	reqs := make([]WorkerRequest, len(batch))
	for i, it := range batch {
		reqs[i] = WorkerRequest{ID: it.id, Type: msgType, Payload: it.req}
	}

	responses, err := d.executor.Execute(d.ctx, batchID, reqs)
	if err != nil {
		reason := "executor_error"
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrExecutorClosed) {
			reason = "shutdown"
		}
		metrics.BatchFailures.WithLabelValues(reason).Inc()
		d.logger.Error("batch execution failed", map[string]interface{}{
			"batchId": batchID,
			"size":    len(batch),
			"error":   err,
		})
		batchErr := &BatchError{BatchID: batchID, Size: len(batch), Err: err}
		for _, it := range batch {
			it.future.resolve(models.ScoreResult{}, batchErr)
		}
		return
	}

	byID := make(map[string]WorkerResponse, len(responses))
	for _, resp := range responses {
		byID[resp.ID] = resp
	}
	for _, it := range batch {
		resp, ok := byID[it.id]
		switch {
		case !ok:
			it.future.resolve(models.ScoreResult{}, fmt.Errorf("request %s: %w", it.id, ErrNoResponse))
		case resp.Error != "":
			it.future.resolve(models.ScoreResult{}, errors.New(resp.Error))
		case resp.Result == nil:
			it.future.resolve(models.ScoreResult{}, fmt.Errorf("request %s: %w", it.id, ErrNoResponse))
		default:
			it.future.resolve(*resp.Result, nil)
		}
	}
}

func (d *Dispatcher) runSerial(batch []*item) {
	for _, it := range batch {
		if d.ctx.Err() != nil {
			it.future.resolve(models.ScoreResult{}, ErrDispatcherClosed)
			continue
		}
		result, err := d.computeOne(it)
		it.future.resolve(result, err)
	}
}

func (d *Dispatcher) computeOne(it *item) (result models.ScoreResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("request %s: computation panicked: %v", it.id, r)
		}
	}()
	return d.compute(d.ctx, it.req)
}

func (d *Dispatcher) release(batch []*item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, it := range batch {
		delete(d.inflight, it.id)
	}
}

// Pending reports the number of queued and in-flight requests.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) + len(d.inflight)
}

// Close rejects queued and in-flight requests with ErrDispatcherClosed and
// waits for running batches to return.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.wg.Wait()
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	rejected := append(d.pending, inflightItems(d.inflight)...)
	d.pending = nil
	d.mu.Unlock()

	for _, it := range rejected {
		it.future.resolve(models.ScoreResult{}, ErrDispatcherClosed)
	}
	d.cancel()
	if len(rejected) > 0 {
		d.logger.Warn("dispatcher closed with outstanding requests", map[string]interface{}{
			"rejected": len(rejected),
		})
	}
	d.wg.Wait()
}

func inflightItems(m map[string]*item) []*item {
	out := make([]*item, 0, len(m))
	for _, it := range m {
		out = append(out, it)
	}
	return out
}
