// internal/workers/matching/calculate-compatibility/handler.go
package calculatecompatibility

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/validation"
	"advisor-match-engine/internal/matching/engine"
	"advisor-match-engine/internal/models"
	"advisor-match-engine/internal/workers/matching"
)

const TaskType = "calculate-compatibility"

var schema = validation.MustCompile(inputSchema)

// Scorer is the slice of the engine this worker calls.
type Scorer interface {
	CalculateScore(ctx context.Context, req engine.Request) (models.ScoreResult, error)
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

// ParseInput validates and decodes the job variables.
func ParseInput(variables string) (*Input, error) {
	var input Input
	if err := matching.DecodeVariables(schema, variables, &input); err != nil {
		return nil, err
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	prefs, err := matching.ResolvePreferences(input.Preferences)
	if err != nil {
		return nil, err
	}

	res, err := h.scorer.CalculateScore(ctx, engine.Request{
		ProviderID:  input.ProviderID,
		SeekerID:    input.SeekerID,
		Strategy:    input.Strategy,
		Preferences: prefs,
		Metrics:     input.Metrics,
	})
	if err != nil {
		return nil, matching.MapError(err)
	}

	h.logger.Info("compatibility score calculated", map[string]interface{}{
		"providerId": input.ProviderID,
		"seekerId":   input.SeekerID,
		"strategy":   input.Strategy,
		"score":      res.Score,
	})

	explanations := res.Explanations
	if explanations == nil {
		explanations = []string{}
	}
	return &Output{Score: res.Score, Explanations: explanations}, nil
}
