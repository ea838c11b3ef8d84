package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/guttosm/marketpulse/internal/logger"
	"github.com/guttosm/marketpulse/internal/metrics"
)

// Submitter accepts jobs for background execution.
type Submitter interface {
	Submit(ctx context.Context, kind Kind, payload any) (string, error)
}

// Dispatcher validates jobs and hands them to a Queue. It never waits for execution.
type Dispatcher struct {
	queue Queue
	now   func() time.Time
	log   zerolog.Logger
}

// NewDispatcher returns a Dispatcher enqueuing onto q.
func NewDispatcher(q Queue) *Dispatcher {
	return &Dispatcher{queue: q, now: time.Now, log: logger.Component("jobs.dispatcher")}
}

// Submit validates payload against kind, stamps an id and submission time, and enqueues
// the job. payload may be a typed payload struct, a map, or raw JSON.
//
// An invalid payload returns *ValidationError and nothing is enqueued.
func (d *Dispatcher) Submit(ctx context.Context, kind Kind, payload any) (string, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return "", &ValidationError{Kind: kind, Field: "payload", Reason: err.Error()}
	}
	if err := Validate(kind, raw); err != nil {
		return "", err
	}

	job := Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     raw,
		SubmittedAt: d.now().UTC(),
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", kind, err)
	}

	metrics.RecordJobSubmitted(string(kind))
	d.log.Debug().Str("job_id", job.ID).Str("kind", string(kind)).Msg("job submitted")
	return job.ID, nil
}
