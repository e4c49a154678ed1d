// Package matching holds the plumbing shared by the compatibility job workers.
package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"advisor-match-engine/internal/common/camunda"
	apperrors "advisor-match-engine/internal/common/errors"
	"advisor-match-engine/internal/common/logger"
	"advisor-match-engine/internal/common/metrics"
	"advisor-match-engine/internal/common/validation"
	"advisor-match-engine/internal/matching/dispatcher"
	"advisor-match-engine/internal/models"
)

// JobRecorder receives per-job outcomes; *observability.Observability satisfies it.
type JobRecorder interface {
	RecordJobProcessed(ctx context.Context, taskType, status string)
	RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string)
}

// MapError turns engine and dispatcher failures into workflow error codes.
func MapError(err error) *apperrors.StandardError {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}

	var batchErr *dispatcher.BatchError
	switch {
	case errors.As(err, &batchErr):
		return apperrors.NewBatchExecutionFailedError(batchErr.BatchID, batchErr.Err)
	case errors.Is(err, dispatcher.ErrDispatcherClosed), errors.Is(err, dispatcher.ErrExecutorClosed):
		return apperrors.NewDispatcherClosedError()
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewDeadlineExceededError("score", err)
	default:
		return apperrors.AsStandardError(err)
	}
}

// DecodeVariables validates raw job variables against schema and decodes them into out.
func DecodeVariables(schema *validation.Schema, variables string, out interface{}) error {
	res, err := schema.ValidateJSON(variables)
	if err != nil {
		return apperrors.NewInvalidJobInputError(err.Error())
	}
	if !res.Valid {
		return apperrors.NewInvalidJobInputError(fmt.Sprintf("%v", res.GetErrorMessages()))
	}
	if err := json.Unmarshal([]byte(variables), out); err != nil {
		return apperrors.NewInvalidJobInputError(fmt.Sprintf("parse input: %v", err))
	}
	return nil
}

// ResolvePreferences overlays the supplied preferences on the defaults, so
// absent fields keep their default value.
func ResolvePreferences(raw json.RawMessage) (models.Preferences, error) {
	prefs := models.DefaultPreferences()
	if len(raw) == 0 || string(raw) == "null" {
		return prefs, nil
	}
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return models.Preferences{}, apperrors.NewInvalidJobInputError(fmt.Sprintf("preferences: %v", err))
	}
	return prefs, nil
}

// Completer finishes jobs and records their outcome.
type Completer struct {
	TaskType   string
	Logger     logger.Logger
	ErrHandler *apperrors.ErrorHandler
	Recorder   JobRecorder
	// Retry governs resending commands after transient gateway errors; nil
	// uses camunda.DefaultRetryConfig.
	Retry *camunda.RetryConfig
}

// Complete sends output as the job's result variables.
func (c *Completer) Complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}, started time.Time) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		c.Logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return err
	}
	if err := c.send(ctx, job, func(ctx context.Context) (interface{}, error) {
		return cmd.Send(ctx)
	}); err != nil {
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(c.TaskType).Inc()
	c.record(ctx, "success", started)
	return nil
}

// send delivers a completion, resending it while the gateway reports
// transient failures.
func (c *Completer) send(ctx context.Context, job entities.Job, sendFunc func(context.Context) (interface{}, error)) error {
	if _, err := camunda.ExecuteWithRetry(ctx, c.Retry, sendFunc, "complete-job"); err != nil {
		c.Logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return err
	}
	return nil
}

// Fail hands err to the error handler, which retries or throws a BPMN error.
func (c *Completer) Fail(ctx context.Context, client worker.JobClient, job entities.Job, err error, started time.Time) error {
	stdErr := MapError(err)
	metrics.WorkerJobsFailed.WithLabelValues(c.TaskType, string(stdErr.Code)).Inc()
	c.ErrHandler.HandleJobError(ctx, client, job, stdErr)
	c.record(ctx, "failure", started)
	return stdErr
}

func (c *Completer) record(ctx context.Context, status string, started time.Time) {
	if c.Recorder == nil {
		return
	}
	c.Recorder.RecordJobProcessed(ctx, c.TaskType, status)
	c.Recorder.RecordJobDuration(ctx, c.TaskType, time.Since(started), status)
}
