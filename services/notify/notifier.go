package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgasynq "pagewatch/pkg/asynq"
	"pagewatch/pkg/rediskey"
	"pagewatch/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Message is what the user is told when a condition holds.
type Message struct {
	TaskID     string    `json:"task_id"`
	WebsiteURL string    `json:"website_url"`
	Criteria   string    `json:"criteria"`
	Text       string    `json:"text"`
	RunAt      time.Time `json:"run_at"`
}

// Notifier delivers a message. Callers do not act on the result beyond
// logging it.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) Notify(ctx context.Context, msg Message) error {
	zap.L().Info("[Notify] condition met",
		zap.String("task_id", msg.TaskID),
		zap.String("url", msg.WebsiteURL),
		zap.String("criteria", msg.Criteria),
		zap.String("text", msg.Text),
	)
	return nil
}

// QueueNotifier hands messages to the asynq worker. Each run maps to one
// asynq task id so a retried enqueue never doubles the notification.
type QueueNotifier struct {
	enqueuer pkgasynq.Enqueuer
	queue    string
	maxRetry int
}

func NewQueueNotifier(enqueuer pkgasynq.Enqueuer, queue string) *QueueNotifier {
	return &QueueNotifier{enqueuer: enqueuer, queue: queue, maxRetry: 5}
}

func (n *QueueNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	task := asynq.NewTask(taskname.WatchNotify, payload)
	info, err := n.enqueuer.Enqueue(ctx, task,
		asynq.TaskID(rediskey.BuildNotifyKey(msg.TaskID, msg.RunAt)),
		asynq.Queue(n.queue),
		asynq.MaxRetry(n.maxRetry),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			zap.L().Debug("[Notify] notification already queued", zap.String("task_id", msg.TaskID))
			return nil
		}
		return err
	}

	zap.L().Debug("[Notify] notification queued", zap.String("task_id", msg.TaskID), zap.String("asynq_id", info.ID))
	return nil
}
