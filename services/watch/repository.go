package watch

import (
	"context"
	"errors"
	"strings"
	"time"

	"pagewatch/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTaskNotFound = errutil.NotFound("task not found", nil)
)

// Patch is a partial update merged onto the stored task. Nil fields are left
// untouched.
type Patch struct {
	WebsiteURL           *string
	NotificationCriteria *string
	Frequency            *Frequency
	ScheduledTime        *string
	DayOfWeek            *Weekday
	IsRunning            *bool
	LastRun              *time.Time
	NextScheduledRun     *time.Time
	// ClearSchedule drops NextScheduledRun so the poll loop recomputes it.
	ClearSchedule bool
	// RescheduleFrom recomputes NextScheduledRun from the stored schedule
	// fields and the given time.
	RescheduleFrom *time.Time
	// Outcome replaces the whole last result.
	Outcome *Outcome
	// OutcomeFor drops Outcome when the stored criteria no longer match the
	// criteria the outcome was produced for.
	OutcomeFor *string
	// OnlyIfRunning drops the schedule changes of this patch when the stored
	// task has been stopped in the meantime.
	OnlyIfRunning bool
}

func (p Patch) touchesSchedule() bool {
	return p.NextScheduledRun != nil || p.RescheduleFrom != nil || p.ClearSchedule
}

// apply merges p onto t. It never touches the id.
func (p Patch) apply(t *Task) error {
	criteriaChanged := false
	scheduleChanged := false

	if p.WebsiteURL != nil {
		t.WebsiteURL = *p.WebsiteURL
	}
	if p.NotificationCriteria != nil && *p.NotificationCriteria != t.NotificationCriteria {
		t.NotificationCriteria = *p.NotificationCriteria
		criteriaChanged = true
	}
	if p.Frequency != nil && *p.Frequency != t.Frequency {
		t.Frequency = *p.Frequency
		scheduleChanged = true
	}
	if p.ScheduledTime != nil && *p.ScheduledTime != t.ScheduledTime {
		t.ScheduledTime = *p.ScheduledTime
		scheduleChanged = true
	}
	if p.DayOfWeek != nil && *p.DayOfWeek != t.DayOfWeek {
		t.DayOfWeek = *p.DayOfWeek
		scheduleChanged = true
	}
	if p.IsRunning != nil {
		t.IsRunning = *p.IsRunning
	}
	if p.LastRun != nil {
		at := *p.LastRun
		t.LastRun = &at
	}
	if p.Outcome != nil && (p.OutcomeFor == nil || *p.OutcomeFor == t.NotificationCriteria) {
		if err := t.setOutcome(p.Outcome); err != nil {
			return err
		}
	}

	if criteriaChanged {
		// the old verdict answered a different question
		t.AnalysisPrompt = BuildAnalysisPrompt(t.NotificationCriteria)
		if p.Outcome == nil {
			if err := t.setOutcome(nil); err != nil {
				return err
			}
		}
	}
	if scheduleChanged {
		t.NextScheduledRun = nil
	}

	if p.touchesSchedule() && !(p.OnlyIfRunning && !t.IsRunning) {
		switch {
		case p.ClearSchedule:
			t.NextScheduledRun = nil
		case p.RescheduleFrom != nil:
			next := NextRun(t, *p.RescheduleFrom)
			t.NextScheduledRun = &next
		case p.NextScheduledRun != nil:
			next := *p.NextScheduledRun
			t.NextScheduledRun = &next
		}
	}
	if !t.IsRunning {
		t.NextScheduledRun = nil
	}
	return nil
}

// Store is the durable, single source of truth for tasks. Every writer goes
// through MergeUpdate; nothing writes back a cached copy wholesale.
type Store interface {
	GetAll(ctx context.Context) ([]Task, error)
	GetByID(ctx context.Context, id string) (*Task, error)
	Add(ctx context.Context, task *Task) (*Task, error)
	MergeUpdate(ctx context.Context, id string, patch Patch) (*Task, error)
	Delete(ctx context.Context, id string) error
}

type gormStore struct {
	db      *gorm.DB
	node    *snowflake.Node
	backoff func() backoff.BackOff
}

// NewStore returns a gorm backed Store. Transient write failures are retried
// with exponential backoff.
func NewStore(db *gorm.DB, node *snowflake.Node) Store {
	return &gormStore{
		db:   db,
		node: node,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return backoff.WithMaxRetries(b, 3)
		},
	}
}

func (s *gormStore) retry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errutil.Is(err, errutil.KindValidation) || errutil.Is(err, errutil.KindNotFound) ||
			errutil.Is(err, errutil.KindConflict) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(s.backoff(), ctx))
}

func (s *gormStore) GetAll(ctx context.Context) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Order("created_at ASC").Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, errutil.Persistence("list tasks", err)
	}
	return tasks, nil
}

func (s *gormStore) GetByID(ctx context.Context, id string) (*Task, error) {
	var task Task
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, errutil.Persistence("get task", err)
	}
	return &task, nil
}

func (s *gormStore) Add(ctx context.Context, task *Task) (*Task, error) {
	t := *task
	if strings.TrimSpace(t.ID) == "" {
		t.ID = s.node.Generate().String()
	}
	t.AnalysisPrompt = BuildAnalysisPrompt(t.NotificationCriteria)
	if len(t.LastOutcome) == 0 {
		t.LastOutcome = nullOutcome
	}
	if !t.IsRunning {
		t.NextScheduledRun = nil
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	err := s.retry(ctx, func() error {
		if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.Conflict("task already exists", err)
			}
			return errutil.Persistence("create task", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gormStore) MergeUpdate(ctx context.Context, id string, patch Patch) (*Task, error) {
	var updated Task
	err := s.retry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			q := tx
			if tx.Dialector.Name() != "sqlite" {
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}

			var current Task
			if err := q.Where("id = ?", id).First(&current).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrTaskNotFound
				}
				return errutil.Persistence("load task for update", err)
			}

			if err := patch.apply(&current); err != nil {
				return errutil.Persistence("merge task", err)
			}
			if err := current.Validate(); err != nil {
				return err
			}

			if err := tx.Save(&current).Error; err != nil {
				return errutil.Persistence("save task", err)
			}
			updated = current
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *gormStore) Delete(ctx context.Context, id string) error {
	return s.retry(ctx, func() error {
		res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Task{})
		if res.Error != nil {
			return errutil.Persistence("delete task", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTaskNotFound
		}
		return nil
	})
}
