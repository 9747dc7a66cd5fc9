package main

import (
	"log"

	pkgasynq "pagewatch/pkg/asynq"
	"pagewatch/pkg/config"
	"pagewatch/pkg/db"
	"pagewatch/pkg/gen"
	"pagewatch/pkg/hashistack/secretmanager"
	"pagewatch/pkg/hashistack/servicediscover"
	"pagewatch/pkg/health"
	"pagewatch/pkg/logger"
	"pagewatch/pkg/minio"
	"pagewatch/pkg/otelcol"
	"pagewatch/pkg/profiling"
	"pagewatch/pkg/redis"
	"pagewatch/pkg/server"
	"pagewatch/services/analysis"
	"pagewatch/services/credential"
	"pagewatch/services/notify"
	"pagewatch/services/snapshot"
	"pagewatch/services/watch"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	opts := []fx.Option{
		fx.Supply(cfg),
		logger.Module,
		fxLogger,
		otelcol.Module,
		db.Module,
		gen.Module,
		fx.Invoke(migrate),
		analysis.Module,
		snapshot.Module,
		credential.Module,
		watch.ServerModule,
		server.ProvideHTTPServer,
		health.Module,
	}
	opts = append(opts, optional(cfg)...)

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

// optional picks the modules whose backing services are configured.
func optional(cfg *config.Config) []fx.Option {
	var opts []fx.Option

	if cfg.Notify.Mode == "queue" {
		opts = append(opts,
			redis.Module,
			pkgasynq.Client,
			pkgasynq.Server,
			notify.Queue,
		)
	} else {
		opts = append(opts, notify.Log)
	}

	if cfg.Snapshot.Archive {
		opts = append(opts, minio.Client)
	}

	if cfg.Credentials.Backend == "vault" {
		opts = append(opts, secretmanager.Module)
	}

	if cfg.Pyroscope.Addr != "" {
		opts = append(opts, profiling.Module)
	}

	if cfg.Consul.Addr != "" {
		opts = append(opts, servicediscover.Module)
	}

	return opts
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})

func migrate(conn *gorm.DB) error {
	return db.Migrate(conn, &watch.Task{}, &credential.Record{})
}
