package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"pagewatch/pkg/config"
	"pagewatch/pkg/errutil"

	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type runner interface {
	Execute(ctx context.Context, id string, trigger Trigger) (*Outcome, error)
}

// Poller is the single scheduling loop. Every decision is taken on a fresh
// read of the store; nothing is cached between ticks.
type Poller struct {
	store       Store
	runner      runner
	clock       clockwork.Clock
	interval    time.Duration
	concurrency int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type PollerParams struct {
	fx.In

	Store    Store
	Executor *Executor
	Config   *config.Config
	Clock    clockwork.Clock `optional:"true"`
}

func NewPoller(p PollerParams) *Poller {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return newPoller(p.Store, p.Executor, clock, p.Config.Scheduler.Interval, p.Config.Scheduler.Concurrency)
}

func newPoller(store Store, r runner, clock clockwork.Clock, interval time.Duration, concurrency int) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Poller{
		store:       store,
		runner:      r,
		clock:       clock,
		interval:    interval,
		concurrency: concurrency,
	}
}

// Reconcile brings every running task up to date: missing schedules are
// computed, due or missed tasks are executed and rescheduled from the current
// time. Failures of a single run are logged and do not stop the others;
// persistence failures are returned joined.
func (p *Poller) Reconcile(ctx context.Context) error {
	tasks, err := p.store.GetAll(ctx)
	if err != nil {
		return err
	}
	now := p.clock.Now()

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i := range tasks {
		task := &tasks[i]
		if !task.IsRunning {
			continue
		}

		due := task.NextScheduledRun != nil && !task.NextScheduledRun.After(now)
		missed := IsMissed(task, now)

		switch {
		case due || missed:
			id := task.ID
			zap.L().Info("[Scheduler] dispatching task",
				zap.String("task_id", id),
				zap.Bool("due", due),
				zap.Bool("missed", missed),
			)
			g.Go(func() error {
				p.runAndReschedule(ctx, id, record)
				return nil
			})

		case task.NextScheduledRun == nil:
			updated, err := p.store.MergeUpdate(ctx, task.ID, Patch{RescheduleFrom: &now, OnlyIfRunning: true})
			if err != nil {
				if !errors.Is(err, ErrTaskNotFound) {
					zap.L().Error("[Scheduler] failed to schedule task", zap.String("task_id", task.ID), zap.Error(err))
					record(err)
				}
				continue
			}
			if updated.NextScheduledRun != nil {
				zap.L().Debug("[Scheduler] task scheduled", zap.String("task_id", task.ID), zap.Time("next_run", *updated.NextScheduledRun))
			}
		}
	}

	_ = g.Wait()
	return errors.Join(errs...)
}

func (p *Poller) runAndReschedule(ctx context.Context, id string, record func(error)) {
	_, err := p.runner.Execute(ctx, id, TriggerScheduled)
	switch {
	case errors.Is(err, ErrRunInFlight):
		zap.L().Debug("[Scheduler] previous run still in flight", zap.String("task_id", id))
		return
	case errors.Is(err, ErrTaskStopped), errors.Is(err, ErrTaskNotFound):
		return
	case err != nil:
		zap.L().Warn("[Scheduler] task run failed", zap.String("task_id", id), zap.Error(err))
		if errutil.Is(err, errutil.KindPersistence) {
			record(err)
		}
	}

	// the next run is anchored on the time the run finished, not the old target
	rescheduleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	now := p.clock.Now()
	updated, err := p.store.MergeUpdate(rescheduleCtx, id, Patch{RescheduleFrom: &now, OnlyIfRunning: true})
	if err != nil {
		if !errors.Is(err, ErrTaskNotFound) {
			zap.L().Error("[Scheduler] failed to reschedule task", zap.String("task_id", id), zap.Error(err))
			record(err)
		}
		return
	}
	if updated.NextScheduledRun != nil {
		zap.L().Info("[Scheduler] task rescheduled", zap.String("task_id", id), zap.Time("next_run", *updated.NextScheduledRun))
	}
}

// Run reconciles once, then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.tick(ctx)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.Reconcile(ctx); err != nil && ctx.Err() == nil {
		zap.L().Error("[Scheduler] reconcile failed", zap.Error(err))
	}
}

func (p *Poller) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		p.Run(ctx)
	}(p.done)

	zap.L().Info("[Scheduler] started", zap.Duration("interval", p.interval), zap.Int("concurrency", p.concurrency))
	return nil
}

// Stop cancels the loop and waits for the current tick. In-flight runs still
// record their outcome.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		zap.L().Info("[Scheduler] stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
