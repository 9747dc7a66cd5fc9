package watch

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("watch.service",
	fx.Provide(
		NewStore,
		NewExecutor,
		NewService,
	),
)

// ServerModule adds the HTTP routes and the scheduling loop.
var ServerModule = fx.Module("watch.server",
	Module,
	fx.Provide(
		NewHandler,
		NewPoller,
	),
	fx.Invoke(
		registerRoutes,
		startPoller,
	),
)

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func startPoller(lc fx.Lifecycle, p *Poller) {
	lc.Append(fx.Hook{
		OnStart: p.Start,
		OnStop:  p.Stop,
	})
}
