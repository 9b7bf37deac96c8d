package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-lead-import/internal/config"
	"go-lead-import/pkg/utils"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Task is the unit of work pushed onto the queue. The dispatcher delivers it
// to URL as an HTTP POST of Body, retrying up to Retries times with Timeout
// per attempt. Delivery is at-least-once; the stage workers are written to
// be safe under duplicate delivery.
type Task struct {
	ID      string          `json:"id"`
	URL     string          `json:"url"`
	Body    json.RawMessage `json:"body"`
	Retries int             `json:"retries"`
	Timeout time.Duration   `json:"timeout"`
	Token   string          `json:"token"`
}

// Publisher enqueues stage tasks. The returned id is recorded on the job as
// its workerId for traceability.
type Publisher interface {
	Publish(ctx context.Context, path string, importJobID string, body interface{}) (string, error)
}

type Producer struct {
	client *redis.Client
	cfg    *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

func (p *Producer) Publish(ctx context.Context, path string, importJobID string, body interface{}) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode task body: %w", err)
	}

	id := uuid.NewString()
	token, err := utils.GenerateCallbackToken(id, importJobID, 15*time.Minute)
	if err != nil {
		return "", fmt.Errorf("failed to sign callback token: %w", err)
	}

	task := Task{
		ID:      id,
		URL:     p.cfg.CallbackBaseURL + path,
		Body:    payload,
		Retries: p.cfg.QueueRetries,
		Timeout: p.cfg.QueueTimeout,
		Token:   token,
	}

	data, err := json.Marshal(task)
	if err != nil {
		return "", err
	}

	if err := p.client.LPush(ctx, p.cfg.TaskQueue, data).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return id, nil
}
