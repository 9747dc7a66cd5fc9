package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"pagewatch/pkg/config"
	"pagewatch/pkg/errutil"
	"pagewatch/services/analysis"
	"pagewatch/services/credential"
	"pagewatch/services/notify"
	"pagewatch/services/snapshot"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Trigger int

const (
	// TriggerScheduled runs only while the task is running.
	TriggerScheduled Trigger = iota
	// TriggerManual is a user requested test run.
	TriggerManual
)

func (t Trigger) String() string {
	if t == TriggerManual {
		return "manual"
	}
	return "scheduled"
}

var (
	ErrRunInFlight = errutil.Conflict("task run already in flight", nil)
	ErrTaskStopped = errutil.Conflict("task is stopped", nil)
)

const persistTimeout = 10 * time.Second

type Executor struct {
	store       Store
	capturer    snapshot.Capturer
	archiver    snapshot.Archiver
	analyzer    analysis.Analyzer
	credentials credential.Provider
	notifier    notify.Notifier
	clock       clockwork.Clock
	runTimeout  time.Duration
	tracer      trace.Tracer

	mu       sync.Mutex
	inflight map[string]struct{}
}

type ExecutorParams struct {
	fx.In

	Store       Store
	Capturer    snapshot.Capturer
	Archiver    snapshot.Archiver   `optional:"true"`
	Analyzer    analysis.Analyzer
	Credentials credential.Provider `optional:"true"`
	Notifier    notify.Notifier
	Clock       clockwork.Clock `optional:"true"`
	Config      *config.Config  `optional:"true"`
}

func NewExecutor(p ExecutorParams) *Executor {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var timeout time.Duration
	if p.Config != nil {
		timeout = p.Config.Scheduler.RunTimeout
	}
	return &Executor{
		store:       p.Store,
		capturer:    p.Capturer,
		archiver:    p.Archiver,
		analyzer:    p.Analyzer,
		credentials: p.Credentials,
		notifier:    p.Notifier,
		clock:       clock,
		runTimeout:  timeout,
		tracer:      otel.Tracer("pagewatch/services/watch"),
		inflight:    make(map[string]struct{}),
	}
}

func (e *Executor) acquire(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Executor) release(id string) {
	e.mu.Lock()
	delete(e.inflight, id)
	e.mu.Unlock()
}

// InFlight reports whether a run for id is currently executing.
func (e *Executor) InFlight(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inflight[id]
	return busy
}

// Execute runs one snapshot and analysis cycle for the task and records the
// outcome on the stored task. The returned error is the run failure, a
// persistence failure, or both joined.
func (e *Executor) Execute(ctx context.Context, id string, trigger Trigger) (*Outcome, error) {
	if !e.acquire(id) {
		return nil, ErrRunInFlight
	}
	defer e.release(id)

	task, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trigger == TriggerScheduled && !task.IsRunning {
		return nil, ErrTaskStopped
	}

	ctx, span := e.tracer.Start(ctx, "watch.Execute", trace.WithAttributes(
		attribute.String("task.id", id),
		attribute.String("task.url", task.WebsiteURL),
		attribute.String("trigger", trigger.String()),
	))
	defer span.End()

	fields := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("task_id", id),
		zap.String("url", task.WebsiteURL),
		zap.Stringer("trigger", trigger),
	}

	runCtx := ctx
	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	started := e.clock.Now()
	outcome, runErr := e.run(runCtx, task)
	now := e.clock.Now()
	runDuration.WithLabelValues(trigger.String()).Observe(now.Sub(started).Seconds())
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(errutil.KindOf(runErr)))
		zap.L().With(fields...).Warn("[Executor] run failed", zap.Error(runErr))
		outcome = &Outcome{
			Text:      runErr.Error(),
			Failed:    true,
			ErrorKind: string(errutil.KindOf(runErr)),
		}
	}
	outcome.TestedAt = now
	runsTotal.WithLabelValues(trigger.String(), resultLabel(outcome)).Inc()

	// the run may have been cut short by shutdown; the outcome is still recorded
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	updated, err := e.store.MergeUpdate(persistCtx, id, Patch{
		LastRun:    &now,
		Outcome:    outcome,
		OutcomeFor: &task.NotificationCriteria,
	})
	if errors.Is(err, ErrTaskNotFound) {
		zap.L().With(fields...).Info("[Executor] task deleted during run, outcome dropped")
		return outcome, runErr
	}
	if err != nil {
		if !errutil.Is(err, errutil.KindPersistence) {
			err = errutil.Persistence("record outcome", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist outcome")
		zap.L().With(fields...).Error("[Executor] failed to record outcome", zap.Error(err))
		return outcome, errors.Join(runErr, err)
	}

	if runErr != nil {
		return outcome, runErr
	}

	if updated.NotificationCriteria != task.NotificationCriteria {
		zap.L().With(fields...).Info("[Executor] criteria changed during run, outcome discarded")
		return outcome, nil
	}

	span.SetAttributes(attribute.Bool("outcome.degraded", outcome.Degraded()))
	if outcome.Matched != nil && *outcome.Matched {
		span.SetAttributes(attribute.Bool("outcome.matched", true))
		e.notify(persistCtx, task, outcome, now, fields)
	}

	zap.L().With(fields...).Info("[Executor] run finished",
		zap.Bool("degraded", outcome.Degraded()),
		zap.Bool("matched", outcome.Matched != nil && *outcome.Matched),
	)
	return outcome, nil
}

func (e *Executor) run(ctx context.Context, task *Task) (*Outcome, error) {
	provider := e.analyzer.Provider()

	var apiKey string
	if provider.RequiresCredentials() {
		key, err := e.resolveKey(ctx, string(provider))
		if err != nil {
			return nil, err
		}
		apiKey = key
	}

	url, err := NormalizeURL(task.WebsiteURL)
	if err != nil {
		return nil, errutil.Capture("cannot capture task url", err)
	}

	snap, err := e.capturer.Capture(ctx, url)
	if err != nil {
		if !errutil.Is(err, errutil.KindCapture) && !errutil.Is(err, errutil.KindConfiguration) {
			err = errutil.Capture("capture failed", err)
		}
		return nil, err
	}

	var ref string
	if e.archiver != nil {
		ref, err = e.archiver.Archive(ctx, task.ID, snap)
		if err != nil {
			zap.L().Warn("[Executor] snapshot not archived", zap.String("task_id", task.ID), zap.Error(err))
			ref = ""
		}
	}

	prompt := task.AnalysisPrompt
	if prompt == "" {
		prompt = BuildAnalysisPrompt(task.NotificationCriteria)
	}

	res, err := e.analyzer.Analyze(ctx, analysis.Request{
		Prompt:      prompt,
		Criteria:    task.NotificationCriteria,
		Image:       snap.Data,
		ContentType: snap.ContentType,
		APIKey:      apiKey,
	})
	if err != nil {
		if !errutil.Is(err, errutil.KindAnalysis) && !errutil.Is(err, errutil.KindConfiguration) {
			err = errutil.Analysis("analysis failed", err)
		}
		return nil, err
	}
	if res.Degraded() {
		zap.L().Warn("[Executor] analysis output has no verdict, keeping raw text", zap.String("task_id", task.ID))
	}

	return &Outcome{Text: res.Text, Matched: res.Matched, SnapshotRef: ref}, nil
}

func (e *Executor) resolveKey(ctx context.Context, provider string) (string, error) {
	if e.credentials == nil {
		return "", credential.ErrMissingCredential
	}
	key, err := e.credentials.Get(ctx, provider)
	if err != nil {
		if errutil.Is(err, errutil.KindConfiguration) {
			return "", err
		}
		return "", errutil.Configuration("resolve credential", err)
	}
	if err := credential.ValidateKey(provider, key); err != nil {
		return "", err
	}
	return key, nil
}

func (e *Executor) notify(ctx context.Context, task *Task, outcome *Outcome, at time.Time, fields []zap.Field) {
	err := e.notifier.Notify(ctx, notify.Message{
		TaskID:     task.ID,
		WebsiteURL: task.WebsiteURL,
		Criteria:   task.NotificationCriteria,
		Text:       outcome.Text,
		RunAt:      at,
	})
	if err != nil {
		zap.L().With(fields...).Warn("[Executor] notification failed", zap.Error(err))
	}
}
