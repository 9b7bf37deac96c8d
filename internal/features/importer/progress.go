package importer

import (
	"context"
	"time"

	"go-lead-import/internal/models"
	"go-lead-import/internal/repository"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

// ProgressFrame is one push-stream message. Type is "progress" for updates,
// "complete" once the job reaches a terminal status, "heartbeat" to keep the
// connection alive through idle stretches.
type ProgressFrame struct {
	Type      string              `json:"type"`
	Data      *models.JobProgress `json:"data,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

const (
	progressPollInterval = time.Second
	heartbeatInterval    = 30 * time.Second
	// terminalLinger is how long the stream stays open after the complete
	// frame so slow clients still receive it.
	terminalLinger = 2 * time.Second
)

// ProgressStreamer pushes job state changes to the browser over a websocket.
// It watches the job's updatedAt, which every engine mutation bumps, and only
// emits when it moves.
type ProgressStreamer struct {
	jobs repository.ImportJobRepository
	log  *zap.Logger
}

func NewProgressStreamer(jobs repository.ImportJobRepository, log *zap.Logger) *ProgressStreamer {
	return &ProgressStreamer{
		jobs: jobs,
		log:  log,
	}
}

// Stream serves one websocket connection; the job id comes from the route.
func (s *ProgressStreamer) Stream(c *websocket.Conn) {
	jobID := c.Params("id")
	defer c.Close()

	ctx := context.Background()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		c.WriteJSON(ProgressFrame{Type: "error", Timestamp: time.Now()})
		return
	}

	// Initial snapshot so the client renders without waiting for a change.
	progress := job.Progress()
	if err := c.WriteJSON(ProgressFrame{Type: frameType(job.Status), Data: &progress, Timestamp: time.Now()}); err != nil {
		return
	}
	if job.Status.Terminal() {
		time.Sleep(terminalLinger)
		return
	}

	lastUpdated := job.UpdatedAt
	lastHeartbeat := time.Now()
	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		job, err := s.jobs.Get(ctx, jobID)
		if err != nil {
			s.log.Warn("progress poll failed", zap.String("jobId", jobID), zap.Error(err))
			return
		}

		if job.UpdatedAt.After(lastUpdated) {
			lastUpdated = job.UpdatedAt
			lastHeartbeat = time.Now()

			progress := job.Progress()
			if err := c.WriteJSON(ProgressFrame{Type: frameType(job.Status), Data: &progress, Timestamp: time.Now()}); err != nil {
				return
			}
			if job.Status.Terminal() {
				time.Sleep(terminalLinger)
				return
			}
			continue
		}

		if time.Since(lastHeartbeat) >= heartbeatInterval {
			lastHeartbeat = time.Now()
			if err := c.WriteJSON(ProgressFrame{Type: "heartbeat", Timestamp: time.Now()}); err != nil {
				return
			}
		}
	}
}

func frameType(status models.ImportStatus) string {
	if status.Terminal() {
		return "complete"
	}
	return "progress"
}
