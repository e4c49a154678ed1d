// internal/workers/matching/batch-calculate-compatibility/handler.go
package batchcalculatecompatibility

import (
	"context"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/validation"
	"advisor-match-engine/internal/matching/dispatcher"
	"advisor-match-engine/internal/matching/engine"
	"advisor-match-engine/internal/workers/matching"
)

const TaskType = "batch-calculate-compatibility"

var schema = validation.MustCompile(inputSchema)

// Scorer queues requests on the engine's batch dispatcher.
type Scorer interface {
	ScoreAsync(ctx context.Context, req engine.Request) *dispatcher.Future
}

type Handler struct {
	config    *Config
	scorer    Scorer
	logger    logger.Logger
	completer *matching.Completer
}

func NewHandler(config *Config, scorer Scorer, log logger.Logger, recorder matching.JobRecorder) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		scorer: scorer,
		logger: log,
		completer: &matching.Completer{
			TaskType:   TaskType,
			Logger:     log,
			ErrHandler: apperrors.NewErrorHandler(log),
			Recorder:   recorder,
		},
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	started := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := ParseInput(job.Variables)
	if err != nil {
		return h.completer.Fail(ctx, client, job, err, started)
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		return h.completer.Fail(ctx, client, job, err, started)
	}
	return h.completer.Complete(ctx, client, job, output, started)
}

func ParseInput(variables string) (*Input, error) {
	var input Input
	if err := matching.DecodeVariables(schema, variables, &input); err != nil {
		return nil, err
	}
	return &input, nil
}

// Execute scores every provider against the seeker. Individual failures are
// reported per item; the job fails only when no provider could be scored.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.ProviderIDs) > h.config.MaxProviders {
		return nil, apperrors.NewInvalidJobInputError(
			fmt.Sprintf("providerIds: %d entries exceeds the limit of %d", len(input.ProviderIDs), h.config.MaxProviders))
	}
	prefs, err := matching.ResolvePreferences(input.Preferences)
	if err != nil {
		return nil, err
	}

	futures := make([]*dispatcher.Future, len(input.ProviderIDs))
	for i, pid := range input.ProviderIDs {
		futures[i] = h.scorer.ScoreAsync(ctx, engine.Request{
			ProviderID:  pid,
			SeekerID:    input.SeekerID,
			Strategy:    input.Strategy,
			Preferences: prefs,
			Metrics:     input.Metrics,
		})
	}

	out := &Output{Results: make([]ItemResult, len(futures))}
	var firstErr error
	for i, f := range futures {
		item := ItemResult{ProviderID: input.ProviderIDs[i], Explanations: []string{}}
		res, err := f.Wait(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			item.Error = string(matching.MapError(err).Code)
			out.Failed++
		} else {
			item.Score = res.Score
			if res.Explanations != nil {
				item.Explanations = res.Explanations
			}
			out.Succeeded++
		}
		out.Results[i] = item
	}

	if out.Succeeded == 0 && firstErr != nil {
		return nil, matching.MapError(firstErr)
	}

	h.logger.Info("batch compatibility scored", map[string]interface{}{
		"seekerId":  input.SeekerID,
		"providers": len(input.ProviderIDs),
		"succeeded": out.Succeeded,
		"failed":    out.Failed,
	})
	return out, nil
}
