package main

import (
	"context"
	"fmt"
	"time"

	"bloodbridge/internal/db"

	"github.com/k0kubun/pp/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "Pretty-print a match, a donor's eligibility or a candidate search",
	Subcommands: []*cli.Command{
		{
			Name:      "match",
			ArgsUsage: "<match-id>",
			Action: func(c *cli.Context) error {
				return withEngine(c, func(ctx context.Context, e *engine) error {
					m, err := e.coordinator.GetMatch(ctx, c.Args().First())
					if err != nil {
						return err
					}
					events, err := e.coordinator.Events(ctx, m.ID)
					if err != nil {
						return err
					}
					pp.Println(m)
					pp.Println(events)
					return nil
				})
			},
		},
		{
			Name:      "donor",
			ArgsUsage: "<donor-id>",
			Action: func(c *cli.Context) error {
				return withEngine(c, func(ctx context.Context, e *engine) error {
					donorID := c.Args().First()

					res, err := e.eligibilityService.Donor(ctx, donorID)
					if err != nil {
						return err
					}
					avail, err := e.scheduleService.Availability(ctx, donorID, time.Time{})
					if err != nil {
						return err
					}
					pp.Println(res)
					pp.Println(avail)
					return nil
				})
			},
		},
	},
}

func withEngine(c *cli.Context, fn func(ctx context.Context, e *engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if c.Args().First() == "" {
		return fmt.Errorf("missing id argument")
	}

	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	return fn(ctx, newEngine(cfg, logger, pool, engineDeps{}))
}
