package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultPollTimeout = 2 * time.Second
	defaultConsumer    = "default"
)

// DecodeError is returned by RedisQueue.Dequeue when a list entry is not a job envelope.
// The entry stays in the consumer's processing list until it is acked with Receipt.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("undecodable job entry: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Receipt returns a Job that acks the undecodable entry.
func (e *DecodeError) Receipt() Job { return Job{receipt: e.Raw} }

// RedisQueue is a Queue backed by a Redis list: LPUSH to enqueue, BRPOPLPUSH to dequeue.
// Entries are JSON-encoded Job envelopes, so any process sharing the key can submit.
//
// Dequeue moves each entry to a per-consumer processing list where it stays until Ack.
// Entries left there by a crashed worker are put back on the queue by Recover, so
// delivery is at-least-once.
type RedisQueue struct {
	client      *redis.Client
	key         string
	processing  string
	pollTimeout time.Duration
}

// NewRedisQueue returns a queue on the given list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{
		client:      client,
		key:         key,
		processing:  processingKey(key, defaultConsumer),
		pollTimeout: defaultPollTimeout,
	}
}

// WithPollTimeout sets how long one BRPOPLPUSH blocks before re-checking ctx.
func (q *RedisQueue) WithPollTimeout(d time.Duration) *RedisQueue {
	if d > 0 {
		q.pollTimeout = d
	}
	return q
}

// WithConsumer names the processing list of this worker. Use a name that survives
// restarts (a hostname or pod name) so Recover finds what the previous run left.
func (q *RedisQueue) WithConsumer(name string) *RedisQueue {
	if name != "" {
		q.processing = processingKey(q.key, name)
	}
	return q
}

func processingKey(key, consumer string) string {
	return key + ":processing:" + consumer
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.key, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		raw, err := q.client.BRPopLPush(ctx, q.key, q.processing, q.pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Job{}, ctxErr
			}
			return Job{}, fmt.Errorf("brpoplpush %s: %w", q.key, err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return Job{}, &DecodeError{Raw: raw, Err: err}
		}
		job.receipt = raw
		return job, nil
	}
}

// Ack removes a dequeued job from the processing list once its outcome is settled.
// Jobs that did not come from Dequeue are ignored.
func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	if job.receipt == "" {
		return nil
	}
	if err := q.client.LRem(ctx, q.processing, 1, job.receipt).Err(); err != nil {
		return fmt.Errorf("lrem %s: %w", q.processing, err)
	}
	return nil
}

// Recover moves every entry of this consumer's processing list back onto the queue and
// returns how many were moved. Call it before the first Dequeue.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, q.processing, q.key).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("rpoplpush %s: %w", q.processing, err)
		}
		n++
	}
}

// InFlight reports how many dequeued entries have not been acked.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.processing).Result()
}

// Len reports the list length.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Ping checks the broker connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
