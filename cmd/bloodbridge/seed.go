package main

import (
	"context"
	"fmt"

	"bloodbridge/internal/db"
	"bloodbridge/internal/seed"
	"bloodbridge/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var seedCommand = &cli.Command{
	Name:  "seed",
	Usage: "Seed the database with demo donors and schedules",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := context.Background()

		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		logrus.Info("Connected to database")

		n, err := seed.SeedDonors(ctx, store.NewDonorRepository(pool), store.NewScheduleRepository(pool))
		if err != nil {
			return fmt.Errorf("failed to seed donors: %w", err)
		}

		logrus.WithField("donors", n).Info("Donors seeded successfully")

		return nil
	},
}
