// Package worker drains the dispatch queue and drives claimed jobs through
// the analysis pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsighthq/finsight/internal/ai/aierr"
	"github.com/finsighthq/finsight/internal/cache"
	"github.com/finsighthq/finsight/internal/pipeline"
	"github.com/finsighthq/finsight/internal/queue"
	"github.com/finsighthq/finsight/internal/store"
	"github.com/finsighthq/finsight/pkg/models"
)

// internalFailureMessage is what a caller sees when a job died to a bug
// rather than a known failure mode. Details stay in the logs.
const internalFailureMessage = "internal error during analysis"

// statusTTL bounds how long a mirrored job status lives in the cache.
const statusTTL = time.Hour

// dequeueBackoff is the pause after a queue error before retrying, so a
// dead Redis does not turn the workers into a hot loop.
const dequeueBackoff = time.Second

// Pipeline is the part of the analysis runner the dispatcher needs.
type Pipeline interface {
	Execute(ctx context.Context, jobID uuid.UUID, doc *models.Document, query string) (*models.Report, error)
}

// Dispatcher runs a fixed pool of workers over the queue. Duplicate
// deliveries are dropped at the claim, so a job is executed by at most one
// worker at a time.
type Dispatcher struct {
	store    store.Store
	cache    cache.Cache
	queue    queue.Queue
	pipeline Pipeline
	logger   *slog.Logger

	workers         int
	maxRetries      int
	retainDocuments bool

	wg sync.WaitGroup
}

func NewDispatcher(st store.Store, c cache.Cache, q queue.Queue, p Pipeline, logger *slog.Logger, workers, maxRetries int, retainDocuments bool) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		store:           st,
		cache:           c,
		queue:           q,
		pipeline:        p,
		logger:          logger,
		workers:         workers,
		maxRetries:      maxRetries,
		retainDocuments: retainDocuments,
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			d.loop(ctx, worker)
		}(i)
	}
	d.logger.Info("worker pool started", "workers", d.workers)
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context, worker int) {
	log := d.logger.With("worker", worker)
	for {
		jobID, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping")
				return
			}
			log.Error("dequeue failed", "error", err)
			select {
			case <-time.After(dequeueBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		// Jobs in flight run to a terminal state even during shutdown:
		// cancelling mid-pipeline would poison the terminal store writes
		// and strand the job in processing. Stage timeouts still bound
		// how long the drain can take, and Wait() covers it.
		d.process(context.WithoutCancel(ctx), log, jobID)
	}
}

func (d *Dispatcher) process(ctx context.Context, log *slog.Logger, jobID uuid.UUID) {
	log = log.With("job_id", jobID)

	claimed, err := d.store.ClaimJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("queued job no longer exists, dropping")
			return
		}
		log.Error("claim failed", "error", err)
		return
	}
	if !claimed {
		// Duplicate delivery or the job already reached a terminal state.
		log.Debug("job not claimable, dropping")
		return
	}

	job, err := d.store.GetJob(ctx, jobID)
	if err != nil {
		log.Error("loading claimed job failed", "error", err)
		d.fail(ctx, log, jobID, internalFailureMessage)
		return
	}

	d.mirrorStatus(ctx, log, jobID, models.JobStatusProcessing)

	doc, err := d.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		log.Error("loading document failed", "error", err, "document_id", job.DocumentID)
		d.fail(ctx, log, jobID, internalFailureMessage)
		d.cleanupDocument(ctx, log, job.DocumentID)
		return
	}

	report, runErr := d.runPipeline(ctx, log, jobID, doc, job.Query)

	switch {
	case runErr == nil:
		if err := d.store.CompleteJob(ctx, jobID, report); err != nil {
			log.Error("completing job failed", "error", err)
			return
		}
		log.Info("job completed", "stages", len(report.Sections))
		d.mirrorStatus(ctx, log, jobID, models.JobStatusCompleted)
		d.cleanupDocument(ctx, log, job.DocumentID)

	case aierr.Transient(runErr):
		d.retryOrFail(ctx, log, job, runErr)

	default:
		var sf *pipeline.StageFailure
		msg := internalFailureMessage
		if errors.As(runErr, &sf) {
			msg = sf.Message
			log.Info("job failed permanently", "stage", sf.Stage, "error", sf.Message)
		} else {
			log.Error("job failed", "error", runErr)
		}
		d.fail(ctx, log, jobID, msg)
		d.cleanupDocument(ctx, log, job.DocumentID)
	}
}

// runPipeline isolates pipeline panics: a bug in a stage fails the one job
// instead of killing the worker.
func (d *Dispatcher) runPipeline(ctx context.Context, log *slog.Logger, jobID uuid.UUID, doc *models.Document, query string) (report *models.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panicked", "panic", r)
			report = nil
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return d.pipeline.Execute(ctx, jobID, doc, query)
}

// retryOrFail applies the retry policy for transient faults: re-enqueue up
// to maxRetries times, then fail the job for good.
func (d *Dispatcher) retryOrFail(ctx context.Context, log *slog.Logger, job *models.Job, cause error) {
	if job.RetryCount >= d.maxRetries {
		log.Warn("retries exhausted", "error", cause, "attempts", job.RetryCount+1)
		d.fail(ctx, log, job.ID, fmt.Sprintf("analysis failed after %d attempts: %v", job.RetryCount+1, cause))
		d.cleanupDocument(ctx, log, job.DocumentID)
		return
	}

	attempt, err := d.store.RetryJob(ctx, job.ID)
	if err != nil {
		log.Error("requeue transition failed", "error", err)
		return
	}
	if err := d.queue.Enqueue(ctx, job.ID); err != nil {
		// The job is back in queued state but not on the queue; fail it
		// rather than leaving it stranded.
		log.Error("re-enqueue failed", "error", err)
		d.fail(ctx, log, job.ID, internalFailureMessage)
		d.cleanupDocument(ctx, log, job.DocumentID)
		return
	}
	log.Info("job requeued after transient fault", "error", cause, "retry", attempt)
	d.mirrorStatus(ctx, log, job.ID, models.JobStatusQueued)
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, jobID uuid.UUID, msg string) {
	if err := d.store.FailJob(ctx, jobID, msg); err != nil {
		log.Error("failing job failed", "error", err)
		return
	}
	d.mirrorStatus(ctx, log, jobID, models.JobStatusFailed)
}

func (d *Dispatcher) mirrorStatus(ctx context.Context, log *slog.Logger, jobID uuid.UUID, status string) {
	err := d.cache.SetJobStatus(ctx, jobID, status, statusTTL)
	if err == nil {
		return
	}
	log.Warn("status cache update failed", "status", status, "error", err)

	// A processing entry written at claim time must not outlive the
	// terminal transition, or pollers would see processing for the rest
	// of the TTL. Store reads remain the source of truth either way.
	if models.TerminalStatus(status) {
		if delErr := d.cache.Delete(ctx, cache.JobStatusKey(jobID)); delErr != nil {
			log.Warn("status cache delete failed", "error", delErr)
		}
	}
}

// cleanupDocument removes the stored document once its job is terminal,
// unless retention is configured.
func (d *Dispatcher) cleanupDocument(ctx context.Context, log *slog.Logger, documentID uuid.UUID) {
	if d.retainDocuments {
		return
	}
	if err := d.store.DeleteDocument(ctx, documentID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("document cleanup failed", "error", err, "document_id", documentID)
	}
}
