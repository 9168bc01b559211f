package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"codementor-backend/internal/models"
)

const EmailQueueKey = "queue:email"

// ErrQueueEmpty is returned by Dequeue when nothing arrived before the timeout.
var ErrQueueEmpty = errors.New("queue empty")

type EmailQueue struct {
	rdb *redis.Client
	key string
}

func NewEmailQueue(rdb *redis.Client) *EmailQueue {
	return &EmailQueue{rdb: rdb, key: EmailQueueKey}
}

func (q *EmailQueue) Enqueue(ctx context.Context, job models.EmailJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode email job: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, payload).Err()
}

// Dequeue blocks up to timeout for the next job.
func (q *EmailQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.EmailJob, error) {
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}

	var job models.EmailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to decode email job: %w", err)
	}
	return &job, nil
}

func (q *EmailQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
