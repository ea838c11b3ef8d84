package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type failingQueue struct{ err error }

func (f failingQueue) Enqueue(context.Context, Job) error   { return f.err }
func (f failingQueue) Dequeue(context.Context) (Job, error) { return Job{}, f.err }

func TestSubmit_StampsAndEnqueues(t *testing.T) {
	q := NewMemoryQueue()
	d := NewDispatcher(q)
	fixed := time.Date(2025, 9, 12, 10, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	d.now = func() time.Time { return fixed }

	id, err := d.Submit(context.Background(), KindSummarizeMonth, SummarizeMonthPayload{UserID: 1, Month: 9, Year: 2025})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("id %q is not a uuid: %v", id, err)
	}

	job, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job.ID != id || job.Kind != KindSummarizeMonth || !job.SubmittedAt.Equal(fixed) || job.SubmittedAt.Location() != time.UTC {
		t.Fatalf("got %+v", job)
	}
	if job.Attempt != 0 {
		t.Fatalf("fresh job attempt=%d", job.Attempt)
	}
	assertJSONEqual(t, `{"user_id":1,"month":9,"year":2025}`, string(job.Payload))
}

func TestSubmit_AcceptsMapPayload(t *testing.T) {
	q := NewMemoryQueue()
	id, err := NewDispatcher(q).Submit(context.Background(), KindFetchMarketData, map[string]any{"symbols": []string{"AAPL"}})
	if err != nil || id == "" {
		t.Fatalf("id=%q err=%v", id, err)
	}
	if q.Len() != 1 {
		t.Fatalf("len=%d", q.Len())
	}
}

func TestSubmit_InvalidPayloadNeverEnqueued(t *testing.T) {
	q := NewMemoryQueue()
	d := NewDispatcher(q)

	_, err := d.Submit(context.Background(), KindNotifyTransaction, NotifyTransactionPayload{UserID: 1})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "transaction_id" {
		t.Fatalf("got %v", err)
	}

	if _, err = d.Submit(context.Background(), Kind("bogus"), nil); !errors.As(err, &ve) {
		t.Fatalf("unknown kind: got %v", err)
	}

	if q.Len() != 0 {
		t.Fatalf("invalid jobs were enqueued: %d", q.Len())
	}
}

func TestSubmit_QueueError(t *testing.T) {
	d := NewDispatcher(failingQueue{err: errors.New("redis down")})
	_, err := d.Submit(context.Background(), KindFetchMarketData, nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		t.Fatalf("queue failure must not look like a validation error: %v", err)
	}
}

func TestOnTransactionCreated(t *testing.T) {
	q := NewMemoryQueue()
	d := NewDispatcher(q)
	at := time.Date(2025, 1, 31, 23, 30, 0, 0, time.FixedZone("X", -2*3600)) // Feb 1 in UTC

	ids, err := OnTransactionCreated(context.Background(), d, 42, 1001, at)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids=%v", ids)
	}

	first, _ := q.Dequeue(context.Background())
	second, _ := q.Dequeue(context.Background())
	if first.Kind != KindNotifyTransaction || second.Kind != KindSummarizeMonth {
		t.Fatalf("kinds %q, %q", first.Kind, second.Kind)
	}
	assertJSONEqual(t, `{"user_id":42,"transaction_id":1001}`, string(first.Payload))
	assertJSONEqual(t, `{"user_id":42,"month":2,"year":2025}`, string(second.Payload))
}

func TestOnTransactionCreated_InvalidIDs(t *testing.T) {
	q := NewMemoryQueue()
	_, err := OnTransactionCreated(context.Background(), NewDispatcher(q), 0, 1, time.Time{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("len=%d", q.Len())
	}
}
