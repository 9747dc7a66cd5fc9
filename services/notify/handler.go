package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Sink is the final delivery surface behind the queue.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

type LogSink struct{}

func (LogSink) Deliver(ctx context.Context, msg Message) error {
	return LogNotifier{}.Notify(ctx, msg)
}

// WebhookSink posts the message as JSON.
type WebhookSink struct {
	client *resty.Client
	url    string
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		client: resty.New().SetTimeout(10 * time.Second),
		url:    url,
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, msg Message) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post webhook: status %d", resp.StatusCode())
	}
	return nil
}

type Handler struct {
	sink Sink
}

func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink}
}

// ProcessTask implements asynq.Handler. A payload that cannot be decoded is
// dropped without retry.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		zap.L().Error("[Notify] invalid payload", zap.Error(err))
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	if err := h.sink.Deliver(ctx, msg); err != nil {
		zap.L().Warn("[Notify] delivery failed", zap.String("task_id", msg.TaskID), zap.Error(err))
		return err
	}

	zap.L().Info("[Notify] delivered", zap.String("task_id", msg.TaskID))
	return nil
}
