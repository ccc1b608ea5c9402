package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/vpnprobe/internal/model"
	"github.com/nao1215/vpnprobe/internal/ports"
	"github.com/nao1215/vpnprobe/internal/probe"
	"github.com/nao1215/vpnprobe/internal/process"
	"github.com/nao1215/vpnprobe/internal/xrayconf"
)

// DefaultTaskTimeout bounds one candidate from slot admission to result.
// It covers the startup grace period, the probe and a forced stop.
const DefaultTaskTimeout = 20 * time.Second

// GenerateFunc renders the proxy configuration for a candidate.
type GenerateFunc func(profile model.ServerProfile, pair ports.Pair) ([]byte, error)

// Orchestrator tests candidate profiles concurrently.
//
// Concurrency equals the allocator's limit. A slot from the allocator's
// SlotPool is held for the whole life of a task, so the port pair of a
// slot is only reused after the previous process has stopped and its
// config file is gone.
type Orchestrator struct {
	allocator   *ports.Allocator
	launcher    Launcher
	prober      Prober
	generate    GenerateFunc
	taskTimeout time.Duration
	logger      *slog.Logger

	handler   EventHandler
	handlerMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGenerator replaces the config generator.
func WithGenerator(fn GenerateFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.generate = fn
		}
	}
}

// WithTaskTimeout sets the per-candidate timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}

// WithEventHandler registers a progress handler.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) {
		o.handler = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(allocator *ports.Allocator, launcher Launcher, prober Prober, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		allocator:   allocator,
		launcher:    launcher,
		prober:      prober,
		generate:    xrayconf.Generate,
		taskTimeout: DefaultTaskTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Concurrency returns the maximum number of simultaneous proxy processes.
func (o *Orchestrator) Concurrency() int {
	return o.allocator.Limit()
}

// Run tests every candidate and returns the aggregated report.
//
// Run always returns a report. If ctx is canceled, tasks that had not
// finished are recorded as canceled failures and report.Canceled is set.
// Candidates are expected to be deduplicated already; see Dedup.
func (o *Orchestrator) Run(ctx context.Context, candidates []model.ServerProfile) *model.TestReport {
	runID := uuid.NewString()
	started := time.Now()
	total := len(candidates)
	concurrency := o.Concurrency()

	o.logger.Info("starting health check",
		"run_id", runID,
		"candidates", total,
		"concurrency", concurrency,
	)

	pool := o.allocator.NewSlotPool()
	results := make([]model.TestResult, total)
	var done int
	var doneMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, profile := range candidates {
		g.Go(func() error {
			result := o.safeTask(ctx, pool, i, total, profile)
			results[i] = result

			doneMu.Lock()
			done++
			finished := done
			doneMu.Unlock()

			o.emit(Event{
				Type:    EventTaskFinished,
				Index:   i,
				Total:   total,
				Done:    finished,
				Profile: profile,
				Result:  &result,
			})
			// Never return an error: one failed candidate must not cancel the others.
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks never return errors

	report := model.NewTestReport(runID, started, concurrency, results)
	report.Canceled = ctx.Err() != nil

	o.logger.Info("health check completed",
		"run_id", runID,
		"alive", len(report.Alive),
		"failed", report.FailedCount(),
		"canceled", report.Canceled,
		"elapsed", report.Elapsed(),
	)
	o.emit(Event{Type: EventBatchFinished, Total: total, Done: total, Report: report})
	return report
}

// safeTask runs one task and turns a panic into a failed result.
func (o *Orchestrator) safeTask(ctx context.Context, pool *ports.SlotPool, index, total int, profile model.ServerProfile) (result model.TestResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("health check task panicked", "server", profile.ID(), "panic", r)
			result = model.NewDeadResult(profile, index, model.FailureInternal, fmt.Sprintf("internal error: %v", r))
		}
	}()
	return o.task(ctx, pool, index, total, profile)
}

func (o *Orchestrator) task(ctx context.Context, pool *ports.SlotPool, index, total int, profile model.ServerProfile) model.TestResult {
	if ctx.Err() != nil {
		return canceled(profile, index)
	}
	slot, err := pool.Acquire(ctx)
	if err != nil {
		return canceled(profile, index)
	}
	defer pool.Release(slot)

	pair := o.allocator.Pair(slot)
	logger := o.logger.With("server", profile.ID(), "slot", slot, "socks", pair.Socks)
	o.emit(Event{Type: EventTaskStarted, Index: index, Total: total, Profile: profile})

	config, err := o.generate(profile, pair)
	if err != nil {
		logger.Debug("config generation failed", "error", err)
		return model.NewDeadResult(profile, index, model.FailureConfig, err.Error())
	}

	taskCtx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	var res *probe.Result
	err = o.launcher.Launch(taskCtx, config, pair, func(ctx context.Context) error {
		r := o.prober.Check(ctx, pair.SocksAddr())
		res = &r
		return nil
	})

	switch {
	case res != nil && res.Alive():
		logger.Debug("server alive", "latency", res.Latency)
		return model.NewAliveResult(profile, index, res.Latency, res.Message)
	case ctx.Err() != nil:
		return canceled(profile, index)
	case err != nil:
		logger.Debug("proxy did not start", "error", err)
		return model.NewDeadResult(profile, index, model.FailureStart, startMessage(err))
	case res == nil:
		return model.NewDeadResult(profile, index, model.FailureStart, "proxy process was not started")
	default:
		logger.Debug("probe failed", "status", res.Status.String(), "message", res.Message)
		return model.NewDeadResult(profile, index, model.FailureProbe, probeMessage(*res))
	}
}

// emit delivers an event to the handler, one call at a time.
func (o *Orchestrator) emit(e Event) {
	if o.handler == nil {
		return
	}
	o.handlerMu.Lock()
	defer o.handlerMu.Unlock()
	o.handler(e)
}

func canceled(profile model.ServerProfile, index int) model.TestResult {
	return model.NewDeadResult(profile, index, model.FailureCanceled, "canceled")
}

// startMessage shortens a launch error for the operator.
func startMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout while starting proxy"
	}
	var startErr *process.StartError
	if errors.As(err, &startErr) && startErr.Err != nil {
		if startErr.Stderr != "" {
			return startErr.Err.Error() + ": " + startErr.Stderr
		}
		return startErr.Err.Error()
	}
	return err.Error()
}

func probeMessage(r probe.Result) string {
	if r.Message == "" {
		return r.Status.String()
	}
	return r.Status.String() + ": " + r.Message
}
