// Package scheduler drives ingestion runs on a timer and on demand.
//
// Runs are coalesced per target, where a target is the sorted, de-duplicated symbol
// set. While a run is in flight the first new trigger queues exactly one follow-up
// run; later triggers join that queued run and receive its report.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/guttosm/marketpulse/internal/domain/models"
	"github.com/guttosm/marketpulse/internal/ingestion"
	"github.com/guttosm/marketpulse/internal/logger"
	"github.com/guttosm/marketpulse/internal/metrics"
)

// ErrRunFailed is returned to waiters when a run aborted before producing a report.
var ErrRunFailed = errors.New("scheduler: ingestion run failed")

// Runner executes one ingestion batch. *ingestion.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, symbols []string) *models.IngestionReport
}

// Config controls the timer and the default symbol set.
type Config struct {
	Interval       time.Duration // used when Cron is empty
	Cron           string        // standard 5-field expression
	DefaultSymbols []string
	RunOnStart     bool
}

const (
	triggerManual = "manual"
	triggerTimer  = "timer"
)

type run struct {
	via     string // trigger that created the run, for metrics
	done    chan struct{}
	report  *models.IngestionReport
	err     error
	waiters int
}

type target struct {
	symbols []string
	current *run
	next    *run
}

// Scheduler owns the cron timer and the per-target run state.
type Scheduler struct {
	runner Runner
	cfg    Config
	cron   *cron.Cron
	log    zerolog.Logger

	mu      sync.Mutex
	targets map[string]*target
	wg      sync.WaitGroup
}

// New builds a Scheduler. Nothing runs until Start or Trigger is called.
func New(runner Runner, cfg Config) *Scheduler {
	return &Scheduler{
		runner:  runner,
		cfg:     cfg,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		log:     logger.Component("scheduler"),
		targets: make(map[string]*target),
	}
}

// Start registers the periodic run and starts the timer.
func (s *Scheduler) Start() error {
	switch {
	case s.cfg.Cron != "":
		if _, err := s.cron.AddFunc(s.cfg.Cron, s.tick); err != nil {
			return fmt.Errorf("register ingestion cron %q: %w", s.cfg.Cron, err)
		}
	case s.cfg.Interval > 0:
		s.cron.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(s.tick))
	default:
		return errors.New("scheduler: interval or cron expression required")
	}

	s.cron.Start()
	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Str("cron", s.cfg.Cron).
		Strs("symbols", s.cfg.DefaultSymbols).
		Bool("run_on_start", s.cfg.RunOnStart).
		Msg("scheduler started")

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
	return nil
}

// Stop halts the timer and waits for in-flight runs. The returned context is done
// once every run has finished.
func (s *Scheduler) Stop() context.Context {
	cronCtx := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	s.log.Info().Msg("scheduler stopped")
	return ctx
}

// Trigger runs ingestion for symbols (or the default set when empty) and waits for
// the report. Concurrent triggers on the same symbol set are coalesced.
//
// The run itself is detached from ctx; cancelling ctx only stops the wait.
func (s *Scheduler) Trigger(ctx context.Context, symbols []string) (*models.IngestionReport, error) {
	return s.trigger(ctx, symbols, triggerManual)
}

func (s *Scheduler) tick() {
	start := time.Now()
	report, err := s.trigger(context.Background(), nil, triggerTimer)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled run failed")
		return
	}
	s.log.Info().
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Dur("elapsed", time.Since(start)).
		Msg("scheduled run done")
}

func (s *Scheduler) trigger(ctx context.Context, symbols []string, via string) (*models.IngestionReport, error) {
	syms := ingestion.NormalizeSymbols(symbols)
	if len(syms) == 0 {
		syms = ingestion.NormalizeSymbols(s.cfg.DefaultSymbols)
	}
	key := targetKey(syms)

	s.mu.Lock()
	t, ok := s.targets[key]
	if !ok {
		t = &target{symbols: syms}
		s.targets[key] = t
	}

	var r *run
	if t.current == nil {
		r = &run{via: via, done: make(chan struct{}), waiters: 1}
		t.current = r
		s.launchLocked(key, t, r)
	} else {
		if t.next == nil {
			t.next = &run{via: via, done: make(chan struct{})}
			s.log.Debug().Str("target", key).Msg("run queued behind in-flight run")
		}
		r = t.next
		r.waiters++
	}
	s.mu.Unlock()

	select {
	case <-r.done:
		if r.err != nil {
			return nil, r.err
		}
		return reportFor(r.report, syms), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// launchLocked starts r for t. Caller holds s.mu.
func (s *Scheduler) launchLocked(key string, t *target, r *run) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		r.report, r.err = s.execute(t.symbols)
		metrics.RecordSchedulerRun(r.via, r.err == nil)
		close(r.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		t.current = nil
		if t.next != nil {
			t.current, t.next = t.next, nil
			s.launchLocked(key, t, t.current)
			return
		}
		delete(s.targets, key)
	}()
}

// execute calls the runner with a background context and turns a panic into ErrRunFailed.
func (s *Scheduler) execute(symbols []string) (report *models.IngestionReport, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error().Interface("panic", rec).Strs("symbols", symbols).Msg("ingestion run panicked")
			report, err = nil, fmt.Errorf("%w: %v", ErrRunFailed, rec)
		}
	}()

	report = s.runner.Run(context.Background(), symbols)
	if report == nil {
		return nil, ErrRunFailed
	}
	return report, nil
}

// reportFor gives one waiter its own copy of a shared report, with RequestedSymbols in
// the order that waiter asked for them.
func reportFor(shared *models.IngestionReport, symbols []string) *models.IngestionReport {
	out := *shared
	out.RequestedSymbols = append([]string(nil), symbols...)
	out.Succeeded = make(map[string]models.PriceBar, len(shared.Succeeded))
	for k, v := range shared.Succeeded {
		out.Succeeded[k] = v
	}
	out.Failed = make(map[string]models.SymbolFailure, len(shared.Failed))
	for k, v := range shared.Failed {
		out.Failed[k] = v
	}
	return &out
}

// pendingWaiters reports how many triggers are parked on the queued follow-up run.
func (s *Scheduler) pendingWaiters(symbols []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[targetKey(ingestion.NormalizeSymbols(symbols))]
	if !ok || t.next == nil {
		return 0
	}
	return t.next.waiters
}

func targetKey(symbols []string) string {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
