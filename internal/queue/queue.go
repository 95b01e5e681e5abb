// Package queue carries job ids from the submission path to the worker pool.
// Delivery is at-least-once; at-most-one execution per job is enforced by the
// store's claim, not here.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue is the dispatch queue interface.
type Queue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
	// Dequeue blocks until a job id is available or ctx is done.
	Dequeue(ctx context.Context) (uuid.UUID, error)
}

const pendingKey = "jobs:pending"

// blockTimeout bounds each BRPOP so context cancellation is noticed promptly.
const blockTimeout = 1 * time.Second

// RedisQueue implements Queue on a Redis list.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a RedisQueue from a Redis URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	return q.client.LPush(ctx, pendingKey, jobID.String()).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	for {
		if err := ctx.Err(); err != nil {
			return uuid.Nil, err
		}

		vals, err := q.client.BRPop(ctx, blockTimeout, pendingKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return uuid.Nil, err
		}

		// BRPOP returns [key, value].
		id, err := uuid.Parse(vals[1])
		if err != nil {
			// A corrupt entry should not wedge the queue; skip it.
			continue
		}
		return id, nil
	}
}

var _ Queue = (*RedisQueue)(nil)

// MemoryQueue is a channel-backed Queue for tests and single-process runs.
type MemoryQueue struct {
	ch chan uuid.UUID
}

// NewMemoryQueue creates a MemoryQueue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan uuid.UUID, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Len reports the number of queued ids. Test helper.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

var _ Queue = (*MemoryQueue)(nil)
