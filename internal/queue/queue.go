// Package queue implements the Redis-backed broker behind the job and build
// queues.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"yantra/internal/config"

	"github.com/go-redis/redis/v8"
)

// Build queue actions.
const (
	ActionBuild   = "build"
	ActionCleanup = "cleanup"
)

// JobPayload is one entry on the job queue.
type JobPayload struct {
	JobID    string `json:"job_id"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// BuildPayload is one entry on the build queue. ImageTag is set only for
// cleanup actions.
type BuildPayload struct {
	Action     string `json:"action"`
	CompilerID string `json:"compiler_id"`
	ImageTag   string `json:"image_tag,omitempty"`
}

// Broker provides push and non-blocking pop over two named FIFO queues.
// Entries are pushed onto the left of a Redis list and popped from the
// right, preserving FIFO order per queue.
type Broker struct {
	client     *redis.Client
	jobQueue   string
	buildQueue string
}

// NewClient creates a Redis client from configuration.
func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewBroker wraps an existing Redis client. The client is owned by the
// caller; no package-level singleton exists.
func NewBroker(client *redis.Client, jobQueue, buildQueue string) *Broker {
	return &Broker{client: client, jobQueue: jobQueue, buildQueue: buildQueue}
}

// Ping verifies broker connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// PushJob appends a job to the job queue.
func (b *Broker) PushJob(ctx context.Context, payload JobPayload) error {
	return b.push(ctx, b.jobQueue, payload)
}

// PushBuild appends a build or cleanup request to the build queue.
func (b *Broker) PushBuild(ctx context.Context, payload BuildPayload) error {
	return b.push(ctx, b.buildQueue, payload)
}

// PopJob removes and returns the oldest job, or ok=false when the queue is
// empty. It never blocks.
func (b *Broker) PopJob(ctx context.Context) (JobPayload, bool, error) {
	var payload JobPayload
	ok, err := b.pop(ctx, b.jobQueue, &payload)
	return payload, ok, err
}

// PopBuild removes and returns the oldest build request, or ok=false when
// the queue is empty. It never blocks.
func (b *Broker) PopBuild(ctx context.Context) (BuildPayload, bool, error) {
	var payload BuildPayload
	ok, err := b.pop(ctx, b.buildQueue, &payload)
	return payload, ok, err
}

// JobQueueDepth returns the number of queued jobs.
func (b *Broker) JobQueueDepth(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.jobQueue).Result()
}

// BuildQueueDepth returns the number of queued build requests.
func (b *Broker) BuildQueueDepth(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.buildQueue).Result()
}

func (b *Broker) push(ctx context.Context, queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", queue, err)
	}
	if err := b.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", queue, err)
	}
	return nil
}

func (b *Broker) pop(ctx context.Context, queue string, out interface{}) (bool, error) {
	data, err := b.client.RPop(ctx, queue).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to pop from %s: %w", queue, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("malformed %s payload: %w", queue, err)
	}
	return true, nil
}
