package repositories

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stageQueueKey   = "pipeline:queue"
	stageLockPrefix = "pipeline:lock:"
)

// StageQueue hands documents to pipeline workers and serializes concurrent
// work on the same document through an advisory lock.
type StageQueue interface {
	// Enqueue schedules a document for processing. A non-zero delay keeps the
	// entry invisible to Dequeue until the delay elapses (used for retry
	// backoff after a transient stage failure).
	Enqueue(ctx context.Context, documentID string, delay time.Duration) error
	// Dequeue pops the next ready document, or returns "" when the queue is
	// empty or nothing is ready yet.
	Dequeue(ctx context.Context) (string, error)
	Remove(ctx context.Context, documentID string) error
	Length(ctx context.Context) (int, error)

	// AcquireLock takes the per-document advisory lock. Returns false when
	// another worker holds it.
	AcquireLock(ctx context.Context, documentID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, documentID string) error
}

// RedisStageQueue implements StageQueue on a Redis sorted set scored by
// ready-time, plus SET NX keys for the advisory locks.
type RedisStageQueue struct {
	client *redis.Client
}

// NewRedisStageQueue creates a new Redis-based stage queue
func NewRedisStageQueue(client *redis.Client) *RedisStageQueue {
	return &RedisStageQueue{
		client: client,
	}
}

// Enqueue adds a document to the queue, scored by the time it becomes ready
func (q *RedisStageQueue) Enqueue(ctx context.Context, documentID string, delay time.Duration) error {
	readyAt := time.Now().Add(delay)

	err := q.client.ZAdd(ctx, stageQueueKey, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: documentID,
	}).Err()
	if err != nil {
		return NewDocumentRepositoryError("enqueue", documentID, err, "failed to add to queue")
	}

	return nil
}

// Dequeue pops the earliest ready document. An entry scheduled in the future
// stays queued.
func (q *RedisStageQueue) Dequeue(ctx context.Context) (string, error) {
	now := float64(time.Now().UnixMilli())

	result, err := q.client.ZPopMin(ctx, stageQueueKey, 1).Result()
	if err != nil {
		return "", NewDocumentRepositoryError("dequeue", "", err, "")
	}
	if len(result) == 0 {
		return "", nil // queue is empty
	}

	documentID, ok := result[0].Member.(string)
	if !ok {
		return "", NewDocumentRepositoryError("dequeue", "", nil, "invalid document ID in queue")
	}

	// Not ready yet; put it back untouched
	if result[0].Score > now {
		if err := q.client.ZAdd(ctx, stageQueueKey, result[0]).Err(); err != nil {
			return "", NewDocumentRepositoryError("dequeue", documentID, err, "failed to requeue unready entry")
		}
		return "", nil
	}

	return documentID, nil
}

// Remove drops a document from the queue if present
func (q *RedisStageQueue) Remove(ctx context.Context, documentID string) error {
	if err := q.client.ZRem(ctx, stageQueueKey, documentID).Err(); err != nil {
		return NewDocumentRepositoryError("remove_from_queue", documentID, err, "")
	}
	return nil
}

// Length returns the number of queued documents, ready or not
func (q *RedisStageQueue) Length(ctx context.Context) (int, error) {
	count, err := q.client.ZCard(ctx, stageQueueKey).Result()
	if err != nil {
		return 0, NewDocumentRepositoryError("queue_length", "", err, "")
	}
	return int(count), nil
}

// AcquireLock takes the per-document lock with a TTL so a crashed worker
// cannot hold a document forever.
func (q *RedisStageQueue) AcquireLock(ctx context.Context, documentID string, ttl time.Duration) (bool, error) {
	acquired, err := q.client.SetNX(ctx, stageLockPrefix+documentID, "1", ttl).Result()
	if err != nil {
		return false, NewDocumentRepositoryError("acquire_lock", documentID, err, "")
	}
	return acquired, nil
}

// ReleaseLock releases the per-document lock
func (q *RedisStageQueue) ReleaseLock(ctx context.Context, documentID string) error {
	if err := q.client.Del(ctx, stageLockPrefix+documentID).Err(); err != nil {
		return NewDocumentRepositoryError("release_lock", documentID, err, "")
	}
	return nil
}
