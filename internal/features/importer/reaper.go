package importer

import (
	"context"
	"time"

	"go-lead-import/internal/config"
	"go-lead-import/internal/models"
	"go-lead-import/internal/queue"
	"go-lead-import/internal/repository"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reaper requeues jobs stranded mid-processing. A worker that dies between
// acking a task and publishing the next one leaves the job in queued,
// parsing or importing with no task in flight; the periodic sweep publishes
// a fresh task for any such job whose updated_at has gone stale. Replayed
// tasks are safe because chunks and rows are idempotent.
type Reaper struct {
	jobs      repository.ImportJobRepository
	queue     queue.Publisher
	cfg       *config.Config
	log       *zap.Logger
	scheduler *cron.Cron
}

func NewReaper(
	lc fx.Lifecycle,
	jobs repository.ImportJobRepository,
	publisher queue.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *Reaper {
	r := &Reaper{
		jobs:  jobs,
		queue: publisher,
		cfg:   cfg,
		log:   log,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.Start()
		},
		OnStop: func(ctx context.Context) error {
			r.Stop()
			return nil
		},
	})

	return r
}

func (r *Reaper) Start() error {
	r.scheduler = cron.New()
	if _, err := r.scheduler.AddFunc(r.cfg.ReaperSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.Sweep(ctx); err != nil {
			r.log.Error("stale job sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	r.scheduler.Start()
	return nil
}

func (r *Reaper) Stop() {
	if r.scheduler != nil {
		<-r.scheduler.Stop().Done()
	}
}

// Sweep requeues every stale non-terminal job at its last recorded position.
func (r *Reaper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.cfg.StaleAfter)
	stale, err := r.jobs.FindStale(ctx, []models.ImportStatus{
		models.ImportStatusQueued,
		models.ImportStatusParsing,
		models.ImportStatusImporting,
	}, cutoff)
	if err != nil {
		return err
	}

	for i := range stale {
		job := &stale[i]
		if err := r.requeue(ctx, job); err != nil {
			r.log.Error("failed to requeue stale job",
				zap.String("jobId", job.ID.Hex()), zap.Error(err))
			continue
		}
		r.log.Info("requeued stale job",
			zap.String("jobId", job.ID.Hex()),
			zap.String("status", string(job.Status)),
			zap.Time("updatedAt", job.UpdatedAt))
	}
	return nil
}

func (r *Reaper) requeue(ctx context.Context, job *models.ImportJob) error {
	jobID := job.ID.Hex()

	var workerID string
	var err error
	switch job.Status {
	case models.ImportStatusImporting:
		workerID, err = r.queue.Publish(ctx, "/internal/import/commit", jobID, CommitRequest{
			ImportJobID: jobID,
			Continue:    true,
		})
	default:
		// queued or parsing: restart parsing at the last completed chunk.
		workerID, err = r.queue.Publish(ctx, "/internal/import/parse", jobID, ParseRequest{
			ImportJobID: jobID,
			StartChunk:  job.CurrentChunk,
		})
	}
	if err != nil {
		return err
	}

	return r.jobs.SetFields(ctx, jobID, bson.M{"worker_id": workerID})
}
