package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guttosm/marketpulse/internal/logger"
	"github.com/guttosm/marketpulse/internal/metrics"
)

// Handler executes one job attempt.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// Permanent marks err as not worth retrying. The job is dead-lettered right away.
func Permanent(err error) error { return backoff.Permanent(err) }

// RetryPolicy bounds the retries of a failing job.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on any single delay
	Jitter      bool
}

// WorkerConfig configures a Worker pool.
type WorkerConfig struct {
	Concurrency int
	Retry       RetryPolicy
}

const (
	defaultConcurrency = 4
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	dequeueErrorPause  = time.Second
	settleTimeout      = 5 * time.Second // dead-letter, ack and requeue writes after shutdown
)

// acker is implemented by queues that keep dequeued jobs until their outcome is settled.
type acker interface {
	Ack(ctx context.Context, job Job) error
}

// recoverer is implemented by queues that can hand back deliveries a crashed run never settled.
type recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Worker drains a Queue with a fixed number of goroutines.
type Worker struct {
	queue    Queue
	sink     DeadLetterSink
	handlers map[Kind]Handler
	cfg      WorkerConfig
	log      zerolog.Logger
}

// NewWorker builds a pool. Zero config values fall back to defaults.
func NewWorker(q Queue, sink DeadLetterSink, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = defaultBaseDelay
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		cfg.Retry.MaxDelay = defaultMaxDelay
		if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
			cfg.Retry.MaxDelay = cfg.Retry.BaseDelay
		}
	}
	return &Worker{
		queue:    q,
		sink:     sink,
		handlers: make(map[Kind]Handler),
		cfg:      cfg,
		log:      logger.Component("jobs.worker"),
	}
}

// Register binds a handler to a job kind. Call before Run.
func (w *Worker) Register(kind Kind, h Handler) {
	w.handlers[kind] = h
}

// Run processes jobs until ctx is done. Job failures never stop the pool.
func (w *Worker) Run(ctx context.Context) error {
	if r, ok := w.queue.(recoverer); ok {
		n, err := r.Recover(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("recovering unacked jobs failed")
		} else if n > 0 {
			w.log.Warn().Int("jobs", n).Msg("requeued jobs left unacked by a previous run")
		}
	}
	w.log.Info().Int("concurrency", w.cfg.Concurrency).Int("max_attempts", w.cfg.Retry.MaxAttempts).Msg("worker pool started")

	var g errgroup.Group
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	err := g.Wait()
	w.log.Info().Msg("worker pool stopped")
	return err
}

func (w *Worker) loop(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			var de *DecodeError
			if errors.As(err, &de) {
				w.deadLetter(ctx, DeadLetter{LastError: de.Error(), FailedAt: time.Now().UTC(), Raw: de.Raw})
				w.ack(ctx, de.Receipt())
				continue
			}
			w.log.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorPause):
			}
			continue
		}
		w.Process(ctx, job)
	}
}

// Process runs one job to completion: success, retries exhausted, or permanent failure.
// It returns the final error, which is an *ExecutionError when the job was dead-lettered.
//
// job.Attempt counts attempts already spent on earlier deliveries; they come out of the
// same MaxAttempts budget.
func (w *Worker) Process(ctx context.Context, job Job) error {
	log := w.log.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()

	h, ok := w.handlers[job.Kind]
	if !ok {
		err := &ValidationError{Kind: job.Kind, Field: "kind", Reason: "has no registered handler"}
		return w.reject(ctx, job, err)
	}
	if err := Validate(job.Kind, job.Payload); err != nil {
		return w.reject(ctx, job, err)
	}

	prior := job.Attempt
	if prior < 0 {
		prior = 0
	}
	remaining := w.cfg.Retry.MaxAttempts - prior
	if remaining <= 0 {
		err := errors.New("attempt budget spent before this delivery")
		return w.exhausted(ctx, job, prior, err)
	}

	attempts := 0
	permanent := false
	op := func() error {
		attempts++
		job.Attempt = prior + attempts
		err := w.safeHandle(ctx, h, job)
		if err != nil {
			metrics.RecordJobAttempt(string(job.Kind), "failed")
			var perm *backoff.PermanentError
			permanent = errors.As(err, &perm)
			return err
		}
		metrics.RecordJobAttempt(string(job.Kind), "succeeded")
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Int("attempt", prior+attempts).Dur("retry_in", next).Msg("job attempt failed")
	}

	err := backoff.RetryNotify(op, w.backOff(ctx, remaining), notify)
	total := prior + attempts
	if err == nil {
		w.ack(ctx, job)
		log.Debug().Int("attempts", total).Msg("job done")
		return nil
	}

	if ctx.Err() != nil && total < w.cfg.Retry.MaxAttempts && !permanent {
		// Shutdown interrupted the retry loop; hand the job back with the attempts it used.
		requeueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancel()
		next := job
		next.receipt = ""
		if qerr := w.queue.Enqueue(requeueCtx, next); qerr != nil {
			// Left unacked so Recover hands it out again on the next start.
			log.Error().Err(qerr).Msg("requeue on shutdown failed")
			return ctx.Err()
		}
		w.ack(ctx, job)
		log.Info().Int("attempts", total).Msg("job requeued on shutdown")
		return ctx.Err()
	}

	return w.exhausted(ctx, job, total, err)
}

// exhausted dead-letters a job that ran out of attempts or failed permanently.
func (w *Worker) exhausted(ctx context.Context, job Job, attempts int, cause error) error {
	execErr := &ExecutionError{JobID: job.ID, Kind: job.Kind, Attempts: attempts, Err: cause}
	w.deadLetter(ctx, DeadLetter{Job: job, Attempts: attempts, LastError: cause.Error(), FailedAt: time.Now().UTC()})
	w.ack(ctx, job)
	w.log.Error().Err(execErr).Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("job dead-lettered")
	return execErr
}

// reject dead-letters a job that can never succeed without executing it.
func (w *Worker) reject(ctx context.Context, job Job, cause error) error {
	metrics.RecordJobAttempt(string(job.Kind), "malformed")
	w.deadLetter(ctx, DeadLetter{Job: job, LastError: cause.Error(), FailedAt: time.Now().UTC()})
	w.ack(ctx, job)
	w.log.Error().Err(cause).Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("malformed job dead-lettered")
	return &ExecutionError{JobID: job.ID, Kind: job.Kind, Err: cause}
}

// ack settles a delivery on queues that track in-flight entries.
func (w *Worker) ack(ctx context.Context, job Job) {
	a, ok := w.queue.(acker)
	if !ok {
		return
	}
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := a.Ack(ackCtx, job); err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("ack failed")
	}
}

func (w *Worker) deadLetter(ctx context.Context, dl DeadLetter) {
	metrics.RecordJobDeadLettered(string(dl.Job.Kind))
	// The sink write must survive shutdown of the pool context.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := w.sink.Write(writeCtx, dl); err != nil {
		w.log.Error().Err(err).Str("job_id", dl.Job.ID).Msg("dead-letter write failed")
	}
}

func (w *Worker) safeHandle(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h.Handle(ctx, job)
}

// backOff allows attempts tries in total.
func (w *Worker) backOff(ctx context.Context, attempts int) backoff.BackOff {
	p := w.cfg.Retry
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0
	if !p.Jitter {
		eb.RandomizationFactor = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}
