package watch

import (
	"context"
	"strings"

	"pagewatch/pkg/errutil"
	"pagewatch/services/credential"

	"github.com/jonboulle/clockwork"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type CreateTaskRequest struct {
	WebsiteURL           string    `json:"website_url" binding:"required"`
	NotificationCriteria string    `json:"notification_criteria" binding:"required"`
	Frequency            Frequency `json:"frequency" binding:"required"`
	ScheduledTime        string    `json:"scheduled_time"`
	DayOfWeek            Weekday   `json:"day_of_week"`
	// IsRunning defaults to true.
	IsRunning *bool `json:"is_running"`
}

type UpdateTaskRequest struct {
	WebsiteURL           *string    `json:"website_url"`
	NotificationCriteria *string    `json:"notification_criteria"`
	Frequency            *Frequency `json:"frequency"`
	ScheduledTime        *string    `json:"scheduled_time"`
	DayOfWeek            *Weekday   `json:"day_of_week"`
}

type Service struct {
	store       Store
	executor    *Executor
	credentials credential.Provider
	clock       clockwork.Clock
}

type ServiceParams struct {
	fx.In

	Store       Store
	Executor    *Executor
	Credentials credential.Provider `optional:"true"`
	Clock       clockwork.Clock     `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:       p.Store,
		executor:    p.Executor,
		credentials: p.Credentials,
		clock:       clock,
	}
}

func (s *Service) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	url, err := NormalizeURL(req.WebsiteURL)
	if err != nil {
		return nil, err
	}

	running := true
	if req.IsRunning != nil {
		running = *req.IsRunning
	}

	task := &Task{
		WebsiteURL:           url,
		NotificationCriteria: strings.TrimSpace(req.NotificationCriteria),
		Frequency:            Frequency(strings.ToLower(string(req.Frequency))),
		ScheduledTime:        strings.TrimSpace(req.ScheduledTime),
		DayOfWeek:            Weekday(strings.ToLower(string(req.DayOfWeek))),
		IsRunning:            running,
	}
	if task.Frequency != FrequencyWeekly {
		task.DayOfWeek = ""
	}
	if running {
		next := NextRun(task, s.clock.Now())
		task.NextScheduledRun = &next
	}

	created, err := s.store.Add(ctx, task)
	if err != nil {
		zap.L().Warn("[Watch] failed to create task", zap.String("url", url), zap.Error(err))
		return nil, err
	}

	zap.L().Info("[Watch] task created", zap.String("task_id", created.ID), zap.String("url", created.WebsiteURL))
	return created, nil
}

func (s *Service) GetTask(ctx context.Context, id string) (*Task, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListTasks(ctx context.Context) ([]Task, error) {
	return s.store.GetAll(ctx)
}

// UpdateTask edits the task definition. Schedule edits drop the planned run so
// the poll loop recomputes it; criteria edits clear the last outcome.
func (s *Service) UpdateTask(ctx context.Context, id string, req UpdateTaskRequest) (*Task, error) {
	patch := Patch{
		ScheduledTime: req.ScheduledTime,
	}
	if req.WebsiteURL != nil {
		url, err := NormalizeURL(*req.WebsiteURL)
		if err != nil {
			return nil, err
		}
		patch.WebsiteURL = &url
	}
	if req.NotificationCriteria != nil {
		criteria := strings.TrimSpace(*req.NotificationCriteria)
		patch.NotificationCriteria = &criteria
	}
	if req.Frequency != nil {
		f := Frequency(strings.ToLower(string(*req.Frequency)))
		patch.Frequency = &f
	}
	if req.DayOfWeek != nil {
		d := Weekday(strings.ToLower(string(*req.DayOfWeek)))
		patch.DayOfWeek = &d
	}

	task, err := s.store.MergeUpdate(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	zap.L().Info("[Watch] task updated", zap.String("task_id", id))
	return task, nil
}

// StartTask resumes scheduling from now.
func (s *Service) StartTask(ctx context.Context, id string) (*Task, error) {
	now := s.clock.Now()
	task, err := s.store.MergeUpdate(ctx, id, Patch{IsRunning: ptrTo(true), RescheduleFrom: &now})
	if err != nil {
		return nil, err
	}
	zap.L().Info("[Watch] task started", zap.String("task_id", id), zap.Timep("next_run", task.NextScheduledRun))
	return task, nil
}

// StopTask takes effect on the next tick. A run already in flight finishes
// and records its outcome.
func (s *Service) StopTask(ctx context.Context, id string) (*Task, error) {
	task, err := s.store.MergeUpdate(ctx, id, Patch{IsRunning: ptrTo(false), ClearSchedule: true})
	if err != nil {
		return nil, err
	}
	zap.L().Info("[Watch] task stopped", zap.String("task_id", id))
	return task, nil
}

func (s *Service) DeleteTask(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	zap.L().Info("[Watch] task deleted", zap.String("task_id", id))
	return nil
}

// RunNow performs a manual test run, also for stopped tasks. The planned
// schedule is left alone.
func (s *Service) RunNow(ctx context.Context, id string) (*Outcome, error) {
	return s.executor.Execute(ctx, id, TriggerManual)
}

func (s *Service) SetCredential(ctx context.Context, provider, key string) error {
	if s.credentials == nil {
		return errutil.Configuration("no credential backend configured", nil)
	}
	return s.credentials.Set(ctx, provider, strings.TrimSpace(key))
}

func (s *Service) ClearCredential(ctx context.Context, provider string) error {
	if s.credentials == nil {
		return errutil.Configuration("no credential backend configured", nil)
	}
	return s.credentials.Clear(ctx, provider)
}

func ptrTo[T any](v T) *T {
	return &v
}
