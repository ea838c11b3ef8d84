package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy(maxAttempts int) WorkerConfig {
	return WorkerConfig{
		Concurrency: 2,
		Retry:       RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func notifyJob(id string) Job {
	return Job{ID: id, Kind: KindNotifyTransaction, Payload: json.RawMessage(`{"user_id":1,"transaction_id":2}`)}
}

// waitFor polls cond until it holds or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProcess_SucceedsAfterTransientFailures(t *testing.T) {
	sink := NewMemoryDeadLetters()
	w := NewWorker(NewMemoryQueue(), sink, fastPolicy(3))

	var calls int32
	var badAttempt int32
	w.Register(KindNotifyTransaction, HandlerFunc(func(_ context.Context, job Job) error {
		n := atomic.AddInt32(&calls, 1)
		if job.Attempt != int(n) {
			atomic.StoreInt32(&badAttempt, int32(job.Attempt))
		}
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	if err := w.Process(context.Background(), notifyJob("j1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("want 3 calls, got %d", calls)
	}
	if badAttempt != 0 {
		t.Fatalf("job.Attempt out of step with calls: %d", badAttempt)
	}
	if n := len(sink.List()); n != 0 {
		t.Fatalf("want no dead letters, got %d", n)
	}
}

func TestProcess_DeadLettersExactlyOnceAfterCeiling(t *testing.T) {
	sink := NewMemoryDeadLetters()
	w := NewWorker(NewMemoryQueue(), sink, fastPolicy(3))

	var calls int32
	w.Register(KindNotifyTransaction, HandlerFunc(func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("smtp down")
	}))

	err := w.Process(context.Background(), notifyJob("j1"))

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("want *ExecutionError, got %v", err)
	}
	if execErr.Attempts != 3 || calls != 3 {
		t.Fatalf("attempts=%d calls=%d, want 3/3", execErr.Attempts, calls)
	}

	dls := sink.List()
	if len(dls) != 1 {
		t.Fatalf("want 1 dead letter, got %d", len(dls))
	}
	dl := dls[0]
	if dl.Job.ID != "j1" || dl.Attempts != 3 || dl.LastError != "smtp down" || dl.FailedAt.IsZero() {
		t.Fatalf("unexpected dead letter %+v", dl)
	}
}

func TestProcess_BackoffIsExponentialAndCapped(t *testing.T) {
	cfg := WorkerConfig{Retry: RetryPolicy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 15 * time.Millisecond}}
	w := NewWorker(NewMemoryQueue(), NewMemoryDeadLetters(), cfg)

	var stamps []time.Time
	w.Register(KindNotifyTransaction, HandlerFunc(func(context.Context, Job) error {
		stamps = append(stamps, time.Now())
		return errors.New("fail")
	}))
	_ = w.Process(context.Background(), notifyJob("j1"))

	if len(stamps) != 4 {
		t.Fatalf("want 4 attempts, got %d", len(stamps))
	}
	// delays: 10ms, 15ms (capped from 20), 15ms
	if d := stamps[1].Sub(stamps[0]); d < 10*time.Millisecond {
		t.Fatalf("first delay %v", d)
	}
	if d := stamps[2].Sub(stamps[1]); d < 15*time.Millisecond {
		t.Fatalf("second delay %v", d)
	}
	if d := stamps[3].Sub(stamps[2]); d >= 200*time.Millisecond {
		t.Fatalf("delay not capped: %v", d)
	}
}

func TestProcess_PanicCountsAsFailure(t *testing.T) {
	sink := NewMemoryDeadLetters()
	w := NewWorker(NewMemoryQueue(), sink, fastPolicy(2))

	var calls int32
	w.Register(KindNotifyTransaction, HandlerFunc(func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		panic("nil map")
	}))

	if err := w.Process(context.Background(), notifyJob("j1")); err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 2 {
		t.Fatalf("want 2 calls, got %d", calls)
	}
	dls := sink.List()
	if len(dls) != 1 || !strings.Contains(dls[0].LastError, "handler panic") {
		t.Fatalf("unexpected dead letters %+v", dls)
	}
}

func TestProcess_PermanentErrorSkipsRetries(t *testing.T) {
	sink := NewMemoryDeadLetters()
	w := NewWorker(NewMemoryQueue(), sink, fastPolicy(5))

	var calls int32
	w.Register(KindNotifyTransaction, HandlerFunc(func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("user deleted"))
	}))

	if err := w.Process(context.Background(), notifyJob("j1")); err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 1 {
		t.Fatalf("want 1 call, got %d", calls)
	}
	dls := sink.List()
	if len(dls) != 1 || dls[0].LastError != "user deleted" {
		t.Fatalf("unexpected dead letters %+v", dls)
	}
}

func TestProcess_MalformedPayloadDeadLetteredWithoutExecution(t *testing.T) {
	sink := NewMemoryDeadLetters()
	w := NewWorker(NewMemoryQueue(), sink, fastPolicy(3))

	var calls int32
	w.Register(KindNotifyTransaction, HandlerFunc(func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	cases := []Job{
		{ID: "bad-payload", Kind: KindNotifyTransaction, Payload: json.RawMessage(`{"user_id":0}`)},
		{ID: "no-handler", Kind: KindSummarizeMonth, Payload: json.RawMessage(`{"user_id":1,"month":1,"year":2025}`)},
		{ID: "unknown-kind", Kind: Kind("nope"), Payload: json.RawMessage(`{}`)},
	}
	for _, job := range cases {
		err := w.Process(context.Background(), job)
		var execErr *ExecutionError
		var ve *ValidationError
		if !errors.As(err, &execErr) || !errors.As(err, &ve) {
			t.Fatalf("%s: want ExecutionError wrapping ValidationError, got %v", job.ID, err)
		}
	}

	if calls != 0 {
		t.Fatalf("handler ran %d times", calls)
	}
	dls := sink.List()
	if len(dls) != 3 {
		t.Fatalf("want 3 dead letters, got %d", len(dls))
	}
	for _, dl := range dls {
		if dl.Attempts != 0 {
			t.Fatalf("%s: attempts=%d", dl.Job.ID, dl.Attempts)
		}
	}
}

func TestProcess_ShutdownRequeuesInterruptedJob(t *testing.T) {
	q := NewMemoryQueue()
	sink := NewMemoryDeadLetters()
	cfg := WorkerConfig{Retry: RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}}
	w := NewWorker(q, sink, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	w.Register(KindNotifyTransaction, HandlerFunc(func(context.Context, Job) error {
		cancel()
		return errors.New("fail")
	}))

	err := w.Process(ctx, notifyJob("j1"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if n := len(sink.List()); n != 0 {
		t.Fatalf("want no dead letters, got %d", n)
	}
	if q.Len() != 1 {
		t.Fatalf("want the job requeued, queue has %d", q.Len())
	}
	requeued, _ := q.Dequeue(context.Background())
	if requeued.Attempt != 1 {
		t.Fatalf("requeued job must carry the attempt it used, got %d", requeued.Attempt)
	}
}

func TestProcess_RequeuedJobKeepsAttemptBudget(t *testing.T) {
	q := NewMemoryQueue()
	sink := NewMemoryDeadLetters()
	w := NewWorker(q, sink, fastPolicy(3))

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	w.Register(KindNotifyTransaction, HandlerFunc(func(context.Context, Job) error {
		if atomic.AddInt32(&calls, 1) == 2 {
			cancel()
		}
		return errors.New("smtp down")
	}))

	if err := w.Process(ctx, notifyJob("j1")); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	requeued, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if requeued.Attempt != 2 {
		t.Fatalf("requeued attempt=%d, want 2", requeued.Attempt)
	}

	err = w.Process(context.Background(), requeued)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Attempts != 3 {
		t.Fatalf("want ExecutionError after 3 attempts, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("handler ran %d times across deliveries, ceiling is 3", calls)
	}
	dls := sink.List()
	if len(dls) != 1 || dls[0].Attempts != 3 {
		t.Fatalf("unexpected dead letters %+v", dls)
	}
}

func TestProcess_SpentBudgetDeadLettersWithoutExecution(t *testing.T) {
	sink := NewMemoryDeadLetters()
	w := NewWorker(NewMemoryQueue(), sink, fastPolicy(3))

	var calls int32
	w.Register(KindNotifyTransaction, HandlerFunc(func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	job := notifyJob("j1")
	job.Attempt = 3
	err := w.Process(context.Background(), job)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Attempts != 3 {
		t.Fatalf("want ExecutionError with 3 attempts, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("handler ran %d times", calls)
	}
	if n := len(sink.List()); n != 1 {
		t.Fatalf("want 1 dead letter, got %d", n)
	}
}

func TestProcess_AcksRedisDeliveries(t *testing.T) {
	_, client := newTestRedis(t)
	q := NewRedisQueue(client, "test:jobs").WithPollTimeout(50 * time.Millisecond)
	sink := NewMemoryDeadLetters()
	w := NewWorker(q, sink, fastPolicy(1))
	w.Register(KindNotifyTransaction, HandlerFunc(func(_ context.Context, job Job) error {
		if job.ID == "bad" {
			return errors.New("fail")
		}
		return nil
	}))
	ctx := context.Background()

	for _, id := range []string{"good", "bad"} {
		if err := q.Enqueue(ctx, notifyJob(id)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		_ = w.Process(ctx, job)
	}

	if n, _ := q.InFlight(ctx); n != 0 {
		t.Fatalf("settled jobs still in flight: %d", n)
	}
	if n := len(sink.List()); n != 1 {
		t.Fatalf("want 1 dead letter, got %d", n)
	}
}

func TestRun_DrainsQueueAndKeepsGoingAfterFailures(t *testing.T) {
	q := NewMemoryQueue()
	sink := NewMemoryDeadLetters()
	w := NewWorker(q, sink, fastPolicy(2))

	var mu sync.Mutex
	done := map[string]bool{}
	w.Register(KindNotifyTransaction, HandlerFunc(func(_ context.Context, job Job) error {
		if job.ID == "poison" {
			return errors.New("always fails")
		}
		mu.Lock()
		done[job.ID] = true
		mu.Unlock()
		return nil
	}))

	d := NewDispatcher(q)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, notifyJob("poison")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var ids []string
	for i := 0; i < 5; i++ {
		id, err := d.Submit(ctx, KindNotifyTransaction, NotifyTransactionPayload{UserID: 1, TransactionID: int64(i + 1)})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, id)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(done) == len(ids) && len(sink.List()) == 1
	}, "queue not drained")

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRun_DeadLettersUndecodableRedisEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	q := NewRedisQueue(client, "test:jobs").WithPollTimeout(50 * time.Millisecond)
	sink := NewMemoryDeadLetters()
	w := NewWorker(q, sink, fastPolicy(1))

	if _, err := mr.Lpush("test:jobs", "{garbage"); err != nil {
		t.Fatalf("lpush: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return len(sink.List()) == 1 }, "entry not dead-lettered")
	if raw := sink.List()[0].Raw; raw != "{garbage" {
		t.Fatalf("raw=%q", raw)
	}
	waitFor(t, time.Second, func() bool {
		n, _ := q.InFlight(context.Background())
		return n == 0
	}, "undecodable entry left in flight")
}

func TestRun_RecoversJobsLeftByCrashedWorker(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	crashed := NewRedisQueue(client, "test:jobs").WithConsumer("host-a").WithPollTimeout(50 * time.Millisecond)
	if err := crashed.Enqueue(ctx, notifyJob("orphan")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := crashed.Dequeue(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	// The process dies here without settling the job.

	restarted := NewRedisQueue(client, "test:jobs").WithConsumer("host-a").WithPollTimeout(50 * time.Millisecond)
	w := NewWorker(restarted, NewMemoryDeadLetters(), fastPolicy(1))
	got := make(chan string, 1)
	w.Register(KindNotifyTransaction, HandlerFunc(func(_ context.Context, job Job) error {
		got <- job.ID
		return nil
	}))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = w.Run(runCtx) }()

	select {
	case id := <-got:
		if id != "orphan" {
			t.Fatalf("handled %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("orphaned job was not redelivered")
	}
	waitFor(t, time.Second, func() bool {
		n, _ := restarted.InFlight(ctx)
		return n == 0
	}, "redelivered job not acked")
}
