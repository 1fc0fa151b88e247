package main

import (
	"context"
	"fmt"
	"time"

	"bloodbridge/internal/candidate"
	"bloodbridge/internal/eligibility"
	"bloodbridge/internal/expiry"
	"bloodbridge/internal/match"
	"bloodbridge/internal/server"
	"bloodbridge/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/hibiken/asynq"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func loadConfig() (*types.Config, error) {
	c := new(types.Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("set DATABASE_URL")
	}

	if c.ServerPort == 0 {
		c.ServerPort = 8080
	}

	if c.ReadTimeoutSec == 0 {
		c.ReadTimeoutSec = 10
	}

	if c.WriteTimeoutSec == 0 {
		c.WriteTimeoutSec = 15
	}

	if _, err := server.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return nil, err
	}

	if c.MinDonationIntervalDays <= 0 {
		c.MinDonationIntervalDays = eligibility.DefaultMinIntervalDays
	}

	if c.CandidateResponseTimeoutSec <= 0 {
		c.CandidateResponseTimeoutSec = int(match.DefaultResponseTimeout / time.Second)
	}

	if c.AcceptanceHoldHours <= 0 {
		c.AcceptanceHoldHours = int(match.DefaultAcceptanceHold / time.Hour)
	}

	if c.PendingCandidacyCap <= 0 {
		c.PendingCandidacyCap = candidate.DefaultPendingCap
	}

	if c.SweepSchedule == "" {
		c.SweepSchedule = expiry.DefaultSweepSchedule
	}

	return c, nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	config, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	return config, nil
}

func redisOpt(c *types.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func newRedisClient(c *types.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
}

// monitorRedis pings Redis until ctx is done so a lost connection shows up
// in the logs before tasks start failing.
func monitorRedis(ctx context.Context, logger logrus.FieldLogger, client *redis.Client, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := client.Ping(ctx).Err()
		switch {
		case err != nil && healthy:
			logger.WithError(err).Warn("redis connection lost")
			healthy = false
		case err == nil && !healthy:
			logger.Info("redis connection restored")
			healthy = true
		}
	}
}
