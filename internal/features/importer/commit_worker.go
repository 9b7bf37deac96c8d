package importer

import (
	"context"
	"fmt"

	"go-lead-import/internal/config"
	"go-lead-import/internal/models"
	"go-lead-import/internal/notify"
	"go-lead-import/internal/queue"
	"go-lead-import/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// CommitRequest is the body of a queue-dispatched commit callback. Continue
// makes the worker re-queue itself while valid rows remain; the synchronous
// resume endpoint leaves it false and runs exactly one batch.
type CommitRequest struct {
	ImportJobID string `json:"import_job_id"`
	Continue    bool   `json:"continue"`
}

// CommitResult summarizes one batch invocation.
type CommitResult struct {
	Processed int   `json:"processed"`
	Imported  int   `json:"imported"`
	Skipped   int   `json:"skipped"`
	Remaining int64 `json:"remaining"`
	Completed bool  `json:"completed"`
}

// CommitWorker turns valid rows into leads, one bounded batch per
// invocation. Correctness under at-least-once delivery hangs on two things:
// batch selection filters on status=valid, and a row's status transition is a
// conditional update that only one invocation can win. No lock is held.
type CommitWorker struct {
	jobs     repository.ImportJobRepository
	rows     repository.ImportRowRepository
	leads    repository.LeadRepository
	dedupe   *DuplicateResolver
	assigner *Assigner
	queue    queue.Publisher
	notifier notify.Notifier
	cfg      *config.Config
	log      *zap.Logger
}

func NewCommitWorker(
	jobs repository.ImportJobRepository,
	rows repository.ImportRowRepository,
	leads repository.LeadRepository,
	dedupe *DuplicateResolver,
	assigner *Assigner,
	publisher queue.Publisher,
	notifier notify.Notifier,
	cfg *config.Config,
	log *zap.Logger,
) *CommitWorker {
	return &CommitWorker{
		jobs:     jobs,
		rows:     rows,
		leads:    leads,
		dedupe:   dedupe,
		assigner: assigner,
		queue:    publisher,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// cancelCheckEvery bounds how many rows are processed between cancellation
// re-checks inside one batch.
const cancelCheckEvery = 50

// ProcessBatch runs one commit batch. Safe to call any number of times, from
// the queue or the resume endpoint, concurrently or not: rows whose status
// already left valid are never selected again, and a lost Claim race skips
// the row without touching counters.
func (w *CommitWorker) ProcessBatch(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	job, err := w.jobs.Get(ctx, req.ImportJobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	if job.Status.Terminal() {
		return &CommitResult{Completed: job.Status == models.ImportStatusCompleted}, nil
	}
	if job.Status == models.ImportStatusParsing {
		// The parse stage is still producing rows; committing now would
		// see a misleading zero remainder. The parse worker hands off
		// when it finishes.
		remaining, err := w.rows.CountByStatus(ctx, job.ID, models.RowStatusValid)
		if err != nil {
			return nil, err
		}
		return &CommitResult{Remaining: remaining}, nil
	}

	remaining, err := w.rows.CountByStatus(ctx, job.ID, models.RowStatusValid)
	if err != nil {
		return nil, err
	}
	if remaining == 0 {
		return w.complete(ctx, req.ImportJobID)
	}

	// Force importing even if the status drifted (e.g. stuck at queued
	// after a crashed invocation); that is the resume rule.
	if _, err := w.jobs.TransitionStatus(ctx, req.ImportJobID,
		[]models.ImportStatus{models.ImportStatusQueued, models.ImportStatusImporting},
		models.ImportStatusImporting); err != nil {
		return nil, err
	}

	seen, err := SeedSeenIndex(ctx, w.rows, job)
	if err != nil {
		return nil, fmt.Errorf("failed to seed duplicate index: %w", err)
	}

	batch, err := w.rows.FindValidBatch(ctx, job.ID, int64(w.cfg.BatchSize))
	if err != nil {
		return nil, err
	}

	result := &CommitResult{}
	for i, row := range batch {
		if i > 0 && i%cancelCheckEvery == 0 {
			fresh, err := w.jobs.Get(ctx, req.ImportJobID)
			if err != nil {
				return nil, err
			}
			if fresh.Status == models.ImportStatusCancelled {
				w.log.Info("commit stopped by cancellation",
					zap.String("jobId", req.ImportJobID),
					zap.Int("processed", result.Processed))
				return result, nil
			}
		}

		if err := w.commitRow(ctx, job, &row, seen, result); err != nil {
			return nil, err
		}
	}

	remaining, err = w.rows.CountByStatus(ctx, job.ID, models.RowStatusValid)
	if err != nil {
		return nil, err
	}
	result.Remaining = remaining

	if remaining == 0 {
		done, err := w.complete(ctx, req.ImportJobID)
		if err != nil {
			return nil, err
		}
		result.Completed = done.Completed
		return result, nil
	}

	if req.Continue {
		workerID, err := w.queue.Publish(ctx, "/internal/import/commit", req.ImportJobID, CommitRequest{
			ImportJobID: req.ImportJobID,
			Continue:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to queue next batch: %w", err)
		}
		if err := w.jobs.SetFields(ctx, req.ImportJobID, bson.M{"worker_id": workerID}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// commitRow processes a single row: duplicate resolution, then skip,
// overwrite, merge or create-and-assign. The row's status transition is the
// write that claims it; when the claim is lost to a concurrent invocation
// the counters are left alone.
func (w *CommitWorker) commitRow(ctx context.Context, job *models.ImportJob, row *models.ImportRow, seen SeenIndex, result *CommitResult) error {
	match, err := w.dedupe.Resolve(ctx, &job.Duplicates, row.NormalizedData, seen)
	if err != nil {
		return fmt.Errorf("duplicate check failed on row %d: %w", row.RowNumber, err)
	}

	if match.IsDuplicate {
		return w.commitDuplicate(ctx, job, row, match, result)
	}

	userID, err := w.assigner.Resolve(ctx, job, row.NormalizedData)
	if err != nil {
		return fmt.Errorf("assignment failed on row %d: %w", row.RowNumber, err)
	}

	lead := &models.Lead{
		Fields:      row.NormalizedData,
		AssignedTo:  userID,
		ImportJobID: job.ID,
		Source:      "import",
	}
	if err := w.leads.Create(ctx, lead); err != nil {
		return fmt.Errorf("failed to create lead for row %d: %w", row.RowNumber, err)
	}

	claimed, err := w.rows.Claim(ctx, row.ID, models.RowStatusImported)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	if key, ok := DedupeKey(job.Duplicates.CheckFields, row.NormalizedData); ok {
		if _, exists := seen[key]; !exists {
			seen[key] = row.RowNumber
		}
	}

	result.Processed++
	result.Imported++
	return w.jobs.IncrementCounters(ctx, job.ID.Hex(), repository.CounterDeltas{Imported: 1})
}

func (w *CommitWorker) commitDuplicate(ctx context.Context, job *models.ImportJob, row *models.ImportRow, match Match, result *CommitResult) error {
	strategy := job.Duplicates.Strategy
	if strategy == "" {
		strategy = models.DuplicateSkip
	}

	// Overwrite and merge need a concrete lead to act on; within-file and
	// external-source matches have none, so those fall back to skip.
	if match.Existing == nil {
		strategy = models.DuplicateSkip
	}

	switch strategy {
	case models.DuplicateSkip:
		claimed, err := w.rows.Claim(ctx, row.ID, models.RowStatusSkipped)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		result.Processed++
		result.Skipped++
		return w.jobs.IncrementCounters(ctx, job.ID.Hex(), repository.CounterDeltas{Skipped: 1})

	case models.DuplicateOverwrite:
		if err := w.leads.SetFields(ctx, match.Existing.ID, row.NormalizedData); err != nil {
			return fmt.Errorf("failed to overwrite lead for row %d: %w", row.RowNumber, err)
		}

	case models.DuplicateMerge:
		changes := MergeFields(match.Existing.Fields, row.NormalizedData)
		if len(changes) > 0 {
			if err := w.leads.SetFields(ctx, match.Existing.ID, changes); err != nil {
				return fmt.Errorf("failed to merge lead for row %d: %w", row.RowNumber, err)
			}
		}
	}

	claimed, err := w.rows.Claim(ctx, row.ID, models.RowStatusImported)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	result.Processed++
	result.Imported++
	return w.jobs.IncrementCounters(ctx, job.ID.Hex(), repository.CounterDeltas{Imported: 1})
}

// complete flips the job to completed exactly once and fires the completion
// notification from the invocation that won the flip.
func (w *CommitWorker) complete(ctx context.Context, jobID string) (*CommitResult, error) {
	won, err := w.jobs.TransitionStatus(ctx, jobID,
		[]models.ImportStatus{models.ImportStatusQueued, models.ImportStatusImporting},
		models.ImportStatusCompleted)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost to a concurrent invocation that finished first, or the job
		// never reached the commit phase at all.
		job, err := w.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return &CommitResult{Completed: job.Status == models.ImportStatusCompleted}, nil
	}

	if job, err := w.jobs.Get(ctx, jobID); err == nil {
		w.notifier.JobCompleted(job)
	}
	w.log.Info("import completed", zap.String("jobId", jobID))
	return &CommitResult{Completed: true}, nil
}
