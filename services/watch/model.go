package watch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pagewatch/pkg/errutil"

	"gorm.io/datatypes"
)

type Frequency string

const (
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	default:
		return false
	}
}

// Interval is the nominal cycle length used by missed-run detection.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

type Weekday string

const (
	Sunday    Weekday = "sun"
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
	Saturday  Weekday = "sat"
)

var weekdays = map[Weekday]time.Weekday{
	Sunday:    time.Sunday,
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
}

// Index maps the day to time.Weekday (Sunday=0).
func (d Weekday) Index() (time.Weekday, bool) {
	wd, ok := weekdays[Weekday(strings.ToLower(string(d)))]
	return wd, ok
}

// Outcome is the result of one execution. It is persisted as a single JSON
// value and always replaced whole.
type Outcome struct {
	Text string `json:"text"`
	// Matched is nil when the run failed or the analysis output could not be parsed.
	Matched     *bool     `json:"matched,omitempty"`
	Failed      bool      `json:"failed,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	TestedAt    time.Time `json:"tested_at"`
	SnapshotRef string    `json:"snapshot_ref,omitempty"`
}

// Degraded reports an analysis that succeeded but produced no verdict.
func (o *Outcome) Degraded() bool {
	return o != nil && !o.Failed && o.Matched == nil
}

type Task struct {
	ID                   string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	WebsiteURL           string         `gorm:"column:website_url;type:text;not null" json:"website_url"`
	NotificationCriteria string         `gorm:"column:notification_criteria;type:text;not null" json:"notification_criteria"`
	AnalysisPrompt       string         `gorm:"column:analysis_prompt;type:text" json:"analysis_prompt"`
	Frequency            Frequency      `gorm:"column:frequency;type:varchar(16);not null" json:"frequency"`
	ScheduledTime        string         `gorm:"column:scheduled_time;type:varchar(5)" json:"scheduled_time"` // HH:MM, local time
	DayOfWeek            Weekday        `gorm:"column:day_of_week;type:varchar(3)" json:"day_of_week,omitempty"`
	IsRunning            bool           `gorm:"column:is_running;not null;index" json:"is_running"`
	LastRun              *time.Time     `gorm:"column:last_run" json:"last_run"`
	NextScheduledRun     *time.Time     `gorm:"column:next_scheduled_run" json:"next_scheduled_run"`
	LastOutcome          datatypes.JSON `gorm:"column:last_outcome;not null" json:"-"`
	CreatedAt            time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Task) TableName() string {
	return "watch_tasks"
}

var nullOutcome = datatypes.JSON("null")

// Outcome decodes the last persisted result; nil when the task has none.
func (t *Task) Outcome() (*Outcome, error) {
	if len(t.LastOutcome) == 0 {
		return nil, nil
	}
	var out *Outcome
	if err := json.Unmarshal(t.LastOutcome, &out); err != nil {
		return nil, fmt.Errorf("decode outcome of task %s: %w", t.ID, err)
	}
	return out, nil
}

func (t *Task) setOutcome(o *Outcome) error {
	if o == nil {
		t.LastOutcome = nullOutcome
		return nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	t.LastOutcome = datatypes.JSON(b)
	return nil
}

// LastResult is the text of the last outcome.
func (t *Task) LastResult() string {
	o, err := t.Outcome()
	if err != nil || o == nil {
		return ""
	}
	return o.Text
}

// LastMatchedCriteria is the verdict of the last outcome, nil when unknown.
func (t *Task) LastMatchedCriteria() *bool {
	o, err := t.Outcome()
	if err != nil || o == nil {
		return nil
	}
	return o.Matched
}

// parseClock parses "HH:MM". An empty value means midnight.
func parseClock(s string) (hour, minute int, err error) {
	if s == "" {
		return 0, 0, nil
	}
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("scheduled time %q must be HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("scheduled time %q has an invalid hour", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("scheduled time %q has an invalid minute", s)
	}
	return hour, minute, nil
}

// Validate checks the fields every persisted task must carry.
func (t *Task) Validate() error {
	var details []errutil.Detail
	if strings.TrimSpace(t.ID) == "" {
		details = append(details, errutil.Detail{Field: "id", Message: "is required"})
	}
	if strings.TrimSpace(t.WebsiteURL) == "" {
		details = append(details, errutil.Detail{Field: "website_url", Message: "is required"})
	}
	if strings.TrimSpace(t.NotificationCriteria) == "" {
		details = append(details, errutil.Detail{Field: "notification_criteria", Message: "is required"})
	}
	if !t.Frequency.Valid() {
		details = append(details, errutil.Detail{Field: "frequency", Message: fmt.Sprintf("%q is not one of hourly, daily, weekly", t.Frequency)})
	}
	if _, _, err := parseClock(t.ScheduledTime); err != nil {
		details = append(details, errutil.Detail{Field: "scheduled_time", Message: err.Error()})
	}
	if t.Frequency == FrequencyWeekly {
		if _, ok := t.DayOfWeek.Index(); !ok {
			details = append(details, errutil.Detail{Field: "day_of_week", Message: "is required for weekly tasks"})
		}
	}
	if len(details) > 0 {
		return errutil.Validation("invalid task", nil, errutil.WithDetails(details...))
	}
	return nil
}
