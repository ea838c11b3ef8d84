package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DeadLetter records a job that will not be retried again.
type DeadLetter struct {
	Job       Job       `json:"job"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
	Raw       string    `json:"raw,omitempty"` // set when the queue entry itself was undecodable
}

// DeadLetterSink stores dead letters for later inspection.
type DeadLetterSink interface {
	Write(ctx context.Context, dl DeadLetter) error
}

// MemoryDeadLetters keeps dead letters in process.
type MemoryDeadLetters struct {
	mu    sync.Mutex
	items []DeadLetter
}

func NewMemoryDeadLetters() *MemoryDeadLetters { return &MemoryDeadLetters{} }

func (m *MemoryDeadLetters) Write(_ context.Context, dl DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, dl)
	return nil
}

// List returns a copy of the stored dead letters, oldest first.
func (m *MemoryDeadLetters) List() []DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeadLetter, len(m.items))
	copy(out, m.items)
	return out
}

// RedisDeadLetters pushes dead letters onto a Redis list, newest first.
type RedisDeadLetters struct {
	client *redis.Client
	key    string
}

func NewRedisDeadLetters(client *redis.Client, key string) *RedisDeadLetters {
	return &RedisDeadLetters{client: client, key: key}
}

func (r *RedisDeadLetters) Write(ctx context.Context, dl DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter for job %s: %w", dl.Job.ID, err)
	}
	if err := r.client.LPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", r.key, err)
	}
	return nil
}

// List returns up to limit dead letters, newest first.
func (r *RedisDeadLetters) List(ctx context.Context, limit int64) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := r.client.LRange(ctx, r.key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", r.key, err)
	}
	out := make([]DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, dl)
	}
	return out, nil
}
