package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bloodbridge/internal/db"
	"bloodbridge/internal/expiry"
	"bloodbridge/internal/metrics"
	"bloodbridge/internal/notify"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var expirerCommand = &cli.Command{
	Name:  "expirer",
	Usage: "Consume candidate expiry tasks and sweep overdue candidates",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of expiry tasks processed concurrently",
			Value: 10,
		},
		&cli.BoolFlag{
			Name:  "sweep-only",
			Usage: "Run the overdue sweep without consuming tasks",
		},
	},
	Action: expirer,
}

func expirer(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	config, err := loadConfig()
	if err != nil {
		return err
	}

	sweepOnly := cCtx.Bool("sweep-only")
	if config.RedisAddr == "" && !sweepOnly {
		return fmt.Errorf("set REDIS_ADDR or pass --sweep-only")
	}

	pool, err := db.Connect(ctx, config)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps := engineDeps{metrics: metrics.New(prometheus.DefaultRegisterer)}

	var srv *asynq.Server
	if !sweepOnly {
		client := asynq.NewClient(redisOpt(config))
		defer client.Close()

		// expiring a candidate can resolve the match, which notifies
		deps.notifier = notify.Multi{
			notify.NewLogNotifier(logger),
			notify.NewQueueNotifier(logger, client, ""),
		}

		rdb := newRedisClient(config)
		defer rdb.Close()
		go monitorRedis(ctx, logger, rdb, 10*time.Second)

		srv = asynq.NewServer(redisOpt(config), asynq.Config{
			Concurrency: cCtx.Int("concurrency"),
			Queues: map[string]int{
				expiry.Queue: 1,
			},
			Logger:   logger.WithField("component", "asynq"),
			LogLevel: asynq.WarnLevel,
		})
	}

	e := newEngine(config, logger, pool, deps)

	sweeper, err := expiry.NewSweeper(logger.WithField("component", "sweep"), e.coordinator, config.SweepSchedule)
	if err != nil {
		return err
	}

	// catch up on anything that went overdue while no expirer was running
	sweeper.Sweep(ctx)
	sweeper.Start()
	defer sweeper.Stop()

	if srv != nil {
		if err := srv.Start(expiry.NewServeMux(logger, e.coordinator)); err != nil {
			return fmt.Errorf("failed to start expiry worker: %w", err)
		}
		defer srv.Shutdown()
	}

	logger.WithField("schedule", config.SweepSchedule).Info("expirer running")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	return nil
}
