package importer

import (
	"context"
	"fmt"
	"io"

	"go-lead-import/internal/config"
	"go-lead-import/internal/models"
	"go-lead-import/internal/queue"
	"go-lead-import/internal/repository"
	"go-lead-import/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// ParseRequest is the body of a queue-dispatched parse callback.
type ParseRequest struct {
	ImportJobID string `json:"import_job_id"`
	StartChunk  int    `json:"start_chunk"`
}

// ParseWorker consumes the stored source file one chunk at a time. Chunking
// keeps a single invocation inside the execution-time budget; the worker
// re-queues itself for the next chunk and hands the job to the commit stage
// after the last one. Row writes are upserts keyed by (job, rowNumber), so a
// retried chunk inserts nothing and the counters stay truthful.
type ParseWorker struct {
	jobs  repository.ImportJobRepository
	rows  repository.ImportRowRepository
	store storage.ObjectStorage
	queue queue.Publisher
	cfg   *config.Config
	log   *zap.Logger
}

func NewParseWorker(
	jobs repository.ImportJobRepository,
	rows repository.ImportRowRepository,
	store storage.ObjectStorage,
	publisher queue.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *ParseWorker {
	return &ParseWorker{
		jobs:  jobs,
		rows:  rows,
		store: store,
		queue: publisher,
		cfg:   cfg,
		log:   log,
	}
}

// ProcessChunk parses one chunk. A nil return acknowledges the task; an
// error return lets the queue's retry policy re-attempt the same chunk.
func (w *ParseWorker) ProcessChunk(ctx context.Context, req ParseRequest) error {
	job, err := w.jobs.Get(ctx, req.ImportJobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if job.Status.Terminal() {
		w.log.Info("skipping parse for terminal job",
			zap.String("jobId", req.ImportJobID),
			zap.String("status", string(job.Status)))
		return nil
	}
	if job.Mapping == nil {
		w.jobs.Fail(ctx, req.ImportJobID, "cannot parse without a column mapping")
		return nil
	}

	// A redelivered task for a job that already left the parse phase must
	// not touch anything: losing the transition means the commit stage (or
	// a cancel) owns the job now.
	won, err := w.jobs.TransitionStatus(ctx, req.ImportJobID,
		[]models.ImportStatus{models.ImportStatusQueued, models.ImportStatusParsing},
		models.ImportStatusParsing)
	if err != nil {
		return err
	}
	if !won {
		w.log.Info("skipping parse for job past the parse phase",
			zap.String("jobId", req.ImportJobID),
			zap.Int("chunk", req.StartChunk))
		return nil
	}

	if req.StartChunk == 0 {
		totalChunks := (job.TotalRows + w.cfg.ChunkSize - 1) / w.cfg.ChunkSize
		if err := w.jobs.SetFields(ctx, req.ImportJobID, bson.M{
			"total_chunks": totalChunks,
		}); err != nil {
			return err
		}
		job.TotalChunks = totalChunks
	}

	if job.TotalRows == 0 {
		// Empty file: nothing to commit, the job is done.
		_, err := w.jobs.TransitionStatus(ctx, req.ImportJobID,
			[]models.ImportStatus{models.ImportStatusParsing},
			models.ImportStatusCompleted)
		return err
	}

	parsed, parseErr := w.parseChunk(ctx, job, req.StartChunk)
	if parseErr != nil {
		// A malformed file never gets better on retry; infrastructure
		// errors do. Unreadable rows fail the job, everything else is
		// left to the queue's retry policy.
		if parseErr.fatal {
			w.jobs.Fail(ctx, req.ImportJobID, parseErr.Error())
			w.log.Error("parse failed", zap.String("jobId", req.ImportJobID), zap.Error(parseErr))
			return nil
		}
		return parseErr
	}

	insertedValid, insertedInvalid, err := w.rows.UpsertChunk(ctx, parsed)
	if err != nil {
		return fmt.Errorf("failed to persist rows: %w", err)
	}

	if err := w.jobs.IncrementCounters(ctx, req.ImportJobID, repository.CounterDeltas{
		Processed: insertedValid + insertedInvalid,
		Valid:     insertedValid,
		Invalid:   insertedInvalid,
	}); err != nil {
		return err
	}
	// The pointer is a high-water mark, so a replayed chunk cannot move it
	// backwards or count twice.
	if err := w.jobs.AdvanceChunk(ctx, req.ImportJobID, req.StartChunk+1); err != nil {
		return err
	}

	w.log.Info("chunk parsed",
		zap.String("jobId", req.ImportJobID),
		zap.Int("chunk", req.StartChunk),
		zap.Int("valid", insertedValid),
		zap.Int("invalid", insertedInvalid))

	if (req.StartChunk+1)*w.cfg.ChunkSize >= job.TotalRows {
		return w.handOffToCommit(ctx, req.ImportJobID)
	}
	return w.queueNextChunk(ctx, req.ImportJobID, req.StartChunk+1)
}

type parseError struct {
	err   error
	fatal bool
}

func (e *parseError) Error() string { return e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

// parseChunk reads the chunk's row range from storage and validates each row.
func (w *ParseWorker) parseChunk(ctx context.Context, job *models.ImportJob, chunk int) ([]models.ImportRow, *parseError) {
	rc, err := w.store.Download(ctx, job.FilePath)
	if err != nil {
		return nil, &parseError{err: fmt.Errorf("failed to read source file: %w", err)}
	}

	source, err := openRowSource(job, rc)
	if err != nil {
		rc.Close()
		return nil, &parseError{err: err, fatal: true}
	}
	defer source.Close()

	skip := 0
	if job.Mapping.HasHeaderRow {
		skip = job.Mapping.HeaderRowIndex + 1
	}
	skip += chunk * w.cfg.ChunkSize

	for i := 0; i < skip; i++ {
		if _, err := source.Next(); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, &parseError{err: fmt.Errorf("row %d unreadable: %w", i+1, err), fatal: true}
		}
	}

	var parsed []models.ImportRow
	for i := 0; i < w.cfg.ChunkSize; i++ {
		values, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &parseError{err: fmt.Errorf("failed to read row: %w", err), fatal: true}
		}

		rowNumber := chunk*w.cfg.ChunkSize + i + 1
		verdict := ValidateRow(values, job.Mapping)

		row := models.ImportRow{
			ImportJobID: job.ID,
			RowNumber:   rowNumber,
			RawData:     rawData(values, job.Mapping),
			Status:      models.RowStatusValid,
		}
		if verdict.Valid() {
			row.NormalizedData = verdict.Normalized
			row.Warnings = verdict.Warnings
		} else {
			row.Status = models.RowStatusInvalid
			row.ValidationErrors = verdict.Errors
		}
		parsed = append(parsed, row)
	}
	return parsed, nil
}

// rawData keeps every source column, mapped or not, under its original name.
func rawData(values []string, mapping *models.ColumnMapping) map[string]string {
	data := make(map[string]string, len(mapping.Columns))
	for _, col := range mapping.Columns {
		if col.SourceIndex >= 0 && col.SourceIndex < len(values) {
			data[col.SourceColumn] = values[col.SourceIndex]
		}
	}
	return data
}

func (w *ParseWorker) queueNextChunk(ctx context.Context, jobID string, chunk int) error {
	workerID, err := w.queue.Publish(ctx, "/internal/import/parse", jobID, ParseRequest{
		ImportJobID: jobID,
		StartChunk:  chunk,
	})
	if err != nil {
		return fmt.Errorf("failed to queue next chunk: %w", err)
	}
	return w.jobs.SetFields(ctx, jobID, bson.M{"worker_id": workerID})
}

func (w *ParseWorker) handOffToCommit(ctx context.Context, jobID string) error {
	// The commit stage ignores tasks for jobs still in parsing, so the
	// status has to move before the task is published.
	if _, err := w.jobs.TransitionStatus(ctx, jobID,
		[]models.ImportStatus{models.ImportStatusParsing},
		models.ImportStatusImporting); err != nil {
		return err
	}

	workerID, err := w.queue.Publish(ctx, "/internal/import/commit", jobID, CommitRequest{
		ImportJobID: jobID,
		Continue:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to queue commit stage: %w", err)
	}
	return w.jobs.SetFields(ctx, jobID, bson.M{"worker_id": workerID})
}
