package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bloodbridge/internal/audit"
	"bloodbridge/internal/db"
	"bloodbridge/internal/expiry"
	"bloodbridge/internal/metrics"
	"bloodbridge/internal/notify"
	"bloodbridge/internal/server"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hibiken/asynq"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP API",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	config, err := loadConfig()
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, config)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	deps := engineDeps{metrics: m}

	health := []server.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}

	if config.RedisAddr != "" {
		client := asynq.NewClient(redisOpt(config))
		defer client.Close()

		deps.notifier = notify.Multi{
			notify.NewLogNotifier(logger),
			notify.NewQueueNotifier(logger, client, ""),
		}
		deps.timers = expiry.NewScheduler(logger, client)

		rdb := newRedisClient(config)
		defer rdb.Close()

		health = append(health, server.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	} else {
		logger.Warn("REDIS_ADDR not set, notifications are only logged and expiry relies on the expirer sweep")
	}

	if config.AuditBucket != "" {
		awsConfig, err := loadAWSConfig(ctx)
		if err != nil {
			return err
		}

		deps.sink = audit.Multi{
			audit.NewLogSink(logger),
			audit.NewS3Sink(s3.NewFromConfig(awsConfig), config.AuditBucket),
		}
	}

	var jwkCache *jwk.Cache
	if config.AuthJWKSURL != "" {
		jwkCache, err = jwk.NewCache(ctx, httprc.NewClient())
		if err != nil {
			return fmt.Errorf("failed to initialize jwk cache: %w", err)
		}

		if err := jwkCache.Register(ctx, config.AuthJWKSURL); err != nil {
			return fmt.Errorf("failed to register jwks url with cache: %w", err)
		}
	}

	e := newEngine(config, logger, pool, deps)

	srv := server.New(config, logger, server.Deps{
		Donors:      e.donors,
		Schedules:   e.scheduleService,
		Eligibility: e.eligibilityService,
		Donations:   e.donationService,
		Selector:    e.selector,
		Coordinator: e.coordinator,
		Metrics:     m,
		Gatherer:    prometheus.DefaultGatherer,
		Health:      health,
	}, jwkCache)

	go func() {
		logger.WithField("port", config.ServerPort).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}
