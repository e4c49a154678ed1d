package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/models"
)

// Worker protocol message types.
const (
	TypeBatchCalculate         = "batchCalculate"
	TypeCalculateCompatibility = "calculateCompatibility"
)

var ErrExecutorClosed = errors.New("executor closed")

// WorkerRequest is one unit of work sent to an executor. ID is returned
// unchanged in the matching WorkerResponse.
type WorkerRequest struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Payload Request `json:"payload"`
}

// WorkerResponse carries either a result or an error message for one request.
type WorkerResponse struct {
	ID     string              `json:"id"`
	Result *models.ScoreResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// Executor runs a flushed batch off the caller's goroutine. Responses may
// come back in any order. A returned error fails the whole batch.
type Executor interface {
	Execute(ctx context.Context, batchID string, reqs []WorkerRequest) ([]WorkerResponse, error)
}

type task struct {
	ctx context.Context
	req WorkerRequest
	out chan<- WorkerResponse
}

// PoolExecutor feeds a bounded task channel to a fixed set of goroutines.
type PoolExecutor struct {
	compute   ComputeFunc
	tasks     chan task
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    logger.Logger
}

// NewPoolExecutor starts workers goroutines reading from a channel of
// queueSize pending tasks.
func NewPoolExecutor(compute ComputeFunc, workers, queueSize int, log logger.Logger) *PoolExecutor {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	p := &PoolExecutor{
		compute: compute,
		tasks:   make(chan task, queueSize),
		closed:  make(chan struct{}),
		logger:  log.WithFields(map[string]interface{}{"component": "pool-executor"}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *PoolExecutor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.closed:
			return
		case t := <-p.tasks:
			t.out <- p.handle(t.ctx, t.req)
		}
	}
}

func (p *PoolExecutor) handle(ctx context.Context, req WorkerRequest) (resp WorkerResponse) {
	resp.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker request panicked", map[string]interface{}{
				"requestId": req.ID,
				"panic":     fmt.Sprint(r),
			})
			resp = WorkerResponse{ID: req.ID, Error: fmt.Sprintf("computation panicked: %v", r)}
		}
	}()

	switch req.Type {
	case TypeBatchCalculate, TypeCalculateCompatibility:
	default:
		return WorkerResponse{ID: req.ID, Error: fmt.Sprintf("unsupported request type %q", req.Type)}
	}

	result, err := p.compute(ctx, req.Payload)
	if err != nil {
		return WorkerResponse{ID: req.ID, Error: err.Error()}
	}
	return WorkerResponse{ID: req.ID, Result: &result}
}

// Execute queues every request and waits for all responses. Cancellation of
// ctx or closing the pool fails the batch.
func (p *PoolExecutor) Execute(ctx context.Context, batchID string, reqs []WorkerRequest) ([]WorkerResponse, error) {
	out := make(chan WorkerResponse, len(reqs))
	for _, r := range reqs {
		select {
		case p.tasks <- task{ctx: ctx, req: r, out: out}:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.closed:
			return nil, ErrExecutorClosed
		}
	}

	responses := make([]WorkerResponse, 0, len(reqs))
	for len(responses) < len(reqs) {
		select {
		case resp := <-out:
			responses = append(responses, resp)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.closed:
			return nil, ErrExecutorClosed
		}
	}
	return responses, nil
}

// Close stops the workers. Batches still waiting fail with ErrExecutorClosed.
func (p *PoolExecutor) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
}
