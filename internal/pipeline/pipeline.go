// Package pipeline executes the fixed sequence of analysis stages for one
// job. Stages run strictly in order on the dispatcher's worker; every stage
// result is persisted before any pipeline-level decision is taken.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/finsighthq/finsight/internal/store"
	"github.com/finsighthq/finsight/pkg/models"
	"github.com/google/uuid"
)

// Stage is one step of the analysis sequence. Run returns a non-nil error
// only for transient collaborator faults (the dispatcher retries those at
// job granularity); any logical failure is reported as a StageResult with
// status failure so the runner can apply its uniform halt policy.
type Stage interface {
	Name() string
	Run(ctx context.Context, doc *models.Document, query string, prior []models.StageResult) (models.StageResult, error)
}

// StageFailure is a permanent pipeline halt: a stage reported that it cannot
// produce a usable result, so downstream stages are meaningless.
type StageFailure struct {
	Stage   string
	Message string
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Message)
}

// DefaultStages returns the process-wide pipeline definition: the four stage
// variants in their fixed execution order.
func DefaultStages(provider models.AIProvider) []Stage {
	return []Stage{
		NewVerificationStage(provider),
		NewFinancialAnalysisStage(provider),
		NewInvestmentRecommendationStage(provider),
		NewRiskAssessmentStage(provider),
	}
}

// Runner executes the stage sequence for one job and aggregates the outputs
// into a report.
type Runner struct {
	store        store.Store
	stages       []Stage
	providerName string
	model        string
	stageTimeout time.Duration
}

// NewRunner creates a Runner over the given stages. The stage order given
// here is the pipeline definition; it is immutable after startup.
func NewRunner(st store.Store, stages []Stage, providerName, model string, stageTimeout time.Duration) *Runner {
	return &Runner{
		store:        st,
		stages:       stages,
		providerName: providerName,
		model:        model,
		stageTimeout: stageTimeout,
	}
}

// Execute runs all stages in order for jobID. On success it returns the
// aggregated report. A *StageFailure return means a stage reported a
// permanent failure; any other error is either a transient collaborator
// fault (retryable by the caller) or a store error.
//
// Every StageResult, success or failure, is appended to the job before
// Execute returns, so no stage outcome is ever silently dropped.
func (r *Runner) Execute(ctx context.Context, jobID uuid.UUID, doc *models.Document, query string) (*models.Report, error) {
	var prior []models.StageResult
	sections := make([]models.ReportSection, 0, len(r.stages))

	for _, stage := range r.stages {
		stageCtx, cancel := context.WithTimeout(ctx, r.stageTimeout)
		result, err := stage.Run(stageCtx, doc, query, prior)
		cancel()

		if err != nil {
			// Transient collaborator fault. Record it, then surface the
			// error so the dispatcher can apply the retry policy.
			failed := models.StageResult{
				Stage:  stage.Name(),
				Status: models.StageStatusFailure,
				Error:  err.Error(),
			}
			if appendErr := r.store.AppendStageResult(ctx, jobID, failed); appendErr != nil {
				return nil, fmt.Errorf("recording stage fault: %w", appendErr)
			}
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		if appendErr := r.store.AppendStageResult(ctx, jobID, result); appendErr != nil {
			return nil, fmt.Errorf("recording stage result: %w", appendErr)
		}

		if result.Failed() {
			return nil, &StageFailure{Stage: stage.Name(), Message: result.Error}
		}

		prior = append(prior, result)
		sections = append(sections, models.ReportSection{Stage: stage.Name(), Output: result.Output})
	}

	return &models.Report{
		Query:    query,
		Provider: r.providerName,
		Model:    r.model,
		Sections: sections,
	}, nil
}
