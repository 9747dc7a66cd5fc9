package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"pagewatch/pkg/errutil"
	"pagewatch/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	db := testutil.NewTestDB(t, &Task{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewStore(db, node)
}

func seedTask(t *testing.T, store Store, mutate ...func(*Task)) *Task {
	t.Helper()

	task := &Task{
		WebsiteURL:           "https://example.com/pricing",
		NotificationCriteria: "the Pro plan costs less than $20",
		Frequency:            FrequencyDaily,
		ScheduledTime:        "09:00",
		IsRunning:            true,
	}
	for _, fn := range mutate {
		fn(task)
	}
	created, err := store.Add(context.Background(), task)
	require.NoError(t, err)
	return created
}

func TestStore_AddAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := seedTask(t, store)
	require.NotEmpty(t, created.ID)
	require.Contains(t, created.AnalysisPrompt, "the Pro plan costs less than $20")

	got, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.WebsiteURL, got.WebsiteURL)
	require.True(t, got.IsRunning)

	outcome, err := got.Outcome()
	require.NoError(t, err)
	require.Nil(t, outcome)
	require.Nil(t, got.LastMatchedCriteria())
}

func TestStore_AddRejectsMissingFields(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Add(context.Background(), &Task{Frequency: FrequencyWeekly})
	require.Error(t, err)
	require.True(t, errutil.Is(err, errutil.KindValidation))

	var base errutil.BaseError
	require.True(t, errors.As(err, &base))
	fields := map[string]bool{}
	for _, d := range base.Details {
		fields[d.Field] = true
	}
	require.True(t, fields["website_url"])
	require.True(t, fields["notification_criteria"])
	require.True(t, fields["day_of_week"])
}

func TestStore_AddDuplicateID(t *testing.T) {
	db := testutil.NewTestDB(t, &Task{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	store := NewStore(db, node)

	task := seedTask(t, store)

	attempts := 0
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("count_attempts", func(*gorm.DB) {
		attempts++
	}))

	dup := *task
	_, err = store.Add(context.Background(), &dup)
	require.Error(t, err)
	require.True(t, errutil.Is(err, errutil.KindConflict))
	require.Equal(t, 1, attempts)
}

func TestStore_GetAllOrdered(t *testing.T) {
	store := newTestStore(t)

	first := seedTask(t, store)
	second := seedTask(t, store, func(task *Task) { task.WebsiteURL = "https://example.org" })

	tasks, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, first.ID, tasks[0].ID)
	require.Equal(t, second.ID, tasks[1].ID)
}

func TestStore_MergeUpdateKeepsUntouchedFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, store)

	now := time.Now().UTC().Truncate(time.Second)
	updated, err := store.MergeUpdate(ctx, task.ID, Patch{
		LastRun: &now,
		Outcome: &Outcome{Text: "capture failed: timeout", Failed: true, ErrorKind: "capture", TestedAt: now},
	})
	require.NoError(t, err)
	require.Equal(t, task.WebsiteURL, updated.WebsiteURL)
	require.Equal(t, task.NotificationCriteria, updated.NotificationCriteria)

	stored, err := store.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.WebsiteURL, stored.WebsiteURL)
	require.Equal(t, task.NotificationCriteria, stored.NotificationCriteria)
	require.Equal(t, "capture failed: timeout", stored.LastResult())
	require.Nil(t, stored.LastMatchedCriteria())
	require.NotNil(t, stored.LastRun)
	require.True(t, stored.LastRun.Equal(now))
}

func TestStore_MergeUpdateRejectsBlankRequiredField(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, store)

	_, err := store.MergeUpdate(ctx, task.ID, Patch{NotificationCriteria: ptrTo("  ")})
	require.True(t, errutil.Is(err, errutil.KindValidation))

	stored, err := store.GetByID(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.NotificationCriteria, stored.NotificationCriteria)
}

func TestStore_CriteriaChangeInvalidatesOutcome(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, store)

	_, err := store.MergeUpdate(ctx, task.ID, Patch{
		Outcome: &Outcome{Text: "it is $15", Matched: ptrTo(true), TestedAt: time.Now()},
	})
	require.NoError(t, err)

	updated, err := store.MergeUpdate(ctx, task.ID, Patch{NotificationCriteria: ptrTo("a free tier is offered")})
	require.NoError(t, err)
	require.Empty(t, updated.LastResult())
	require.Nil(t, updated.LastMatchedCriteria())
	require.Contains(t, updated.AnalysisPrompt, "a free tier is offered")

	// same criteria again keeps the outcome
	_, err = store.MergeUpdate(ctx, task.ID, Patch{
		Outcome: &Outcome{Text: "no free tier", Matched: ptrTo(false), TestedAt: time.Now()},
	})
	require.NoError(t, err)
	updated, err = store.MergeUpdate(ctx, task.ID, Patch{NotificationCriteria: ptrTo("a free tier is offered")})
	require.NoError(t, err)
	require.Equal(t, "no free tier", updated.LastResult())
}

func TestStore_ScheduleChangeClearsNextRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, store)

	next := at(2, 9, 0)
	updated, err := store.MergeUpdate(ctx, task.ID, Patch{NextScheduledRun: &next})
	require.NoError(t, err)
	require.NotNil(t, updated.NextScheduledRun)

	updated, err = store.MergeUpdate(ctx, task.ID, Patch{ScheduledTime: ptrTo("10:30")})
	require.NoError(t, err)
	require.Nil(t, updated.NextScheduledRun)
}

func TestStore_RescheduleFromUsesStoredSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, store)

	updated, err := store.MergeUpdate(ctx, task.ID, Patch{RescheduleFrom: ptrTo(at(2, 9, 1))})
	require.NoError(t, err)
	require.NotNil(t, updated.NextScheduledRun)
	require.True(t, updated.NextScheduledRun.Equal(at(3, 9, 0)))
}

func TestStore_OnlyIfRunningDoesNotResurrect(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, store)

	_, err := store.MergeUpdate(ctx, task.ID, Patch{IsRunning: ptrTo(false), ClearSchedule: true})
	require.NoError(t, err)

	now := at(2, 9, 1)
	updated, err := store.MergeUpdate(ctx, task.ID, Patch{
		LastRun:        &now,
		Outcome:        &Outcome{Text: "done", Matched: ptrTo(false), TestedAt: now},
		RescheduleFrom: &now,
		OnlyIfRunning:  true,
	})
	require.NoError(t, err)
	require.False(t, updated.IsRunning)
	require.Nil(t, updated.NextScheduledRun)
	require.Equal(t, "done", updated.LastResult())
}

func TestStore_MissingTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetByID(ctx, "404")
	require.ErrorIs(t, err, ErrTaskNotFound)

	_, err = store.MergeUpdate(ctx, "404", Patch{IsRunning: ptrTo(true)})
	require.ErrorIs(t, err, ErrTaskNotFound)

	require.ErrorIs(t, store.Delete(ctx, "404"), ErrTaskNotFound)
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := seedTask(t, store)

	require.NoError(t, store.Delete(ctx, task.ID))
	_, err := store.GetByID(ctx, task.ID)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStore_RetryStopsOnPermanentError(t *testing.T) {
	s := &gormStore{backoff: func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}}

	calls := 0
	err := s.retry(context.Background(), func() error {
		calls++
		return errutil.Validation("bad", nil)
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)

	calls = 0
	err = s.retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errutil.Persistence("database is locked", nil)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}
