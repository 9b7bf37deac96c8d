package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go-lead-import/internal/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Dispatcher pops tasks off the queue and delivers them to the stage
// callback endpoints. A task is retried with exponential backoff up to its
// retry budget; each attempt is bounded by the task timeout. Exhausted tasks
// are dropped with an error log, the stale-job reaper picks the job up later.
type Dispatcher struct {
	client *redis.Client
	cfg    *config.Config
	log    *zap.Logger
}

func NewDispatcher(redisClient *RedisClient, cfg *config.Config, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client: redisClient.Client(),
		cfg:    cfg,
		log:    log,
	}
}

// Run blocks consuming the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("queue dispatcher started", zap.String("queue", d.cfg.TaskQueue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := d.client.BRPop(ctx, 5*time.Second, d.cfg.TaskQueue).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.Error("queue pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// BRPop returns [queue, payload]
		if len(res) != 2 {
			continue
		}

		var task Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			d.log.Error("dropping malformed task", zap.Error(err))
			continue
		}

		if err := d.deliver(ctx, task); err != nil {
			d.log.Error("task delivery exhausted retries",
				zap.String("taskId", task.ID),
				zap.String("url", task.URL),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, task Task) error {
	client := &http.Client{Timeout: task.Timeout}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.URL, bytes.NewReader(task.Body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+task.Token)
		req.Header.Set("X-Task-Id", task.ID)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		// 4xx means the callback rejected the task outright; retrying the
		// same payload cannot succeed.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("callback rejected task: %s", resp.Status))
		}
		return fmt.Errorf("callback failed: %s", resp.Status)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(task.Retries)),
		ctx,
	)
	return backoff.Retry(attempt, policy)
}
