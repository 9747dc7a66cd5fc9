package notify

import (
	pkgasynq "pagewatch/pkg/asynq"
	"pagewatch/pkg/config"
	"pagewatch/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Log is used when no redis is configured.
var Log = fx.Module("notify.log",
	fx.Provide(
		fx.Annotate(NewLogNotifier, fx.As(new(Notifier))),
	),
)

// Queue needs pkg/asynq's Client and Server modules.
var Queue = fx.Module("notify.queue",
	fx.Provide(
		NewSink,
		NewHandler,
		func(enqueuer pkgasynq.Enqueuer, cfg *config.Config) Notifier {
			return NewQueueNotifier(enqueuer, cfg.Notify.Queue)
		},
	),
	fx.Invoke(registerHandler),
)

func NewSink(cfg *config.Config) Sink {
	if cfg.Notify.WebhookURL != "" {
		return NewWebhookSink(cfg.Notify.WebhookURL)
	}
	return LogSink{}
}

func registerHandler(mux *asynq.ServeMux, h *Handler) {
	mux.Handle(taskname.WatchNotify, h)
}
