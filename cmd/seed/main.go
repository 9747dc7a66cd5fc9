package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"pagewatch/pkg/config"
	"pagewatch/pkg/db"
	"pagewatch/pkg/gen"
	"pagewatch/pkg/logger"
	"pagewatch/services/credential"
	"pagewatch/services/watch"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// seed inserts one task directly through the store. The running server picks
// it up on its next tick and plans the first run.
func main() {
	var (
		url       = flag.String("url", "", "page to watch")
		criteria  = flag.String("criteria", "", "condition that triggers a notification")
		frequency = flag.String("frequency", "daily", "hourly, daily or weekly")
		at        = flag.String("at", "09:00", "scheduled time, HH:MM")
		day       = flag.String("day", "", "day of week for weekly tasks, e.g. mon")
		stopped   = flag.Bool("stopped", false, "create the task stopped")
	)
	flag.Parse()

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		fx.Provide(watch.NewStore),
		fx.NopLogger,
		fx.Invoke(func(conn *gorm.DB, store watch.Store) error {
			if err := db.Migrate(conn, &watch.Task{}, &credential.Record{}); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			normalized, err := watch.NormalizeURL(*url)
			if err != nil {
				return err
			}
			task, err := store.Add(ctx, &watch.Task{
				WebsiteURL:           normalized,
				NotificationCriteria: strings.TrimSpace(*criteria),
				Frequency:            watch.Frequency(strings.ToLower(*frequency)),
				ScheduledTime:        *at,
				DayOfWeek:            watch.Weekday(strings.ToLower(*day)),
				IsRunning:            !*stopped,
			})
			if err != nil {
				return err
			}
			zap.L().Info("[Seed] task created", zap.String("task_id", task.ID), zap.String("url", task.WebsiteURL))
			return nil
		}),
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	if err := app.Stop(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
