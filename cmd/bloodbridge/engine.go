package main

import (
	"time"

	"bloodbridge/internal/audit"
	"bloodbridge/internal/candidate"
	"bloodbridge/internal/clock"
	"bloodbridge/internal/compat"
	"bloodbridge/internal/donation"
	"bloodbridge/internal/eligibility"
	"bloodbridge/internal/match"
	"bloodbridge/internal/metrics"
	"bloodbridge/internal/notify"
	"bloodbridge/internal/schedule"
	"bloodbridge/internal/store"
	"bloodbridge/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// engine holds the Postgres backed services shared by serve and expirer.
type engine struct {
	donors    *store.DonorRepository
	schedules *store.ScheduleRepository
	donations *store.DonationRepository
	matches   *store.MatchRepository

	scheduleService    *schedule.Service
	eligibilityService *eligibility.Service
	donationService    *donation.Service
	selector           *candidate.Selector
	coordinator        *match.Coordinator
}

type engineDeps struct {
	notifier notify.Notifier
	timers   match.Timers
	sink     audit.Sink
	metrics  *metrics.Metrics
}

func newEngine(config *types.Config, logger logrus.FieldLogger, pool *pgxpool.Pool, deps engineDeps) *engine {
	clk := clock.Real()

	e := &engine{
		donors:    store.NewDonorRepository(pool),
		schedules: store.NewScheduleRepository(pool),
		donations: store.NewDonationRepository(pool),
		matches:   store.NewMatchRepository(pool),
	}

	policy := eligibility.Policy{MinIntervalDays: config.MinDonationIntervalDays}
	acceptanceHold := time.Duration(config.AcceptanceHoldHours) * time.Hour

	if deps.notifier == nil {
		deps.notifier = notify.NewLogNotifier(logger)
	}
	if deps.sink == nil {
		deps.sink = audit.NewLogSink(logger)
	}

	e.scheduleService = schedule.NewService(
		logger.WithField("service", "schedule"),
		e.schedules,
		e.donors,
		schedule.NewEvaluator(time.Duration(config.ScheduleLookaheadDays)*24*time.Hour),
		clk,
	)

	e.eligibilityService = eligibility.NewService(policy, e.donors, e.donations, clk)

	e.donationService = donation.NewService(
		logger.WithField("service", "donation"),
		e.donations,
		deps.sink,
		clk,
	)

	e.selector = candidate.NewSelector(
		logger.WithField("service", "selector"),
		e.donors,
		e.schedules,
		e.donations,
		e.matches,
		clk,
		candidate.SelectorConfig{
			Policy: candidate.Policy{
				Eligibility: policy,
				PendingCap:  config.PendingCandidacyCap,
				Compat:      compat.Default,
			},
			SearchRadiusKm: config.SearchRadiusKm,
			MaxCandidates:  config.MaxCandidates,
			AcceptanceHold: acceptanceHold,
			FairnessWindow: time.Duration(config.FairnessWindowDays) * 24 * time.Hour,
		},
	)

	opts := []match.Option{match.WithMetrics(deps.metrics)}
	if deps.timers != nil {
		opts = append(opts, match.WithTimers(deps.timers))
	}

	e.coordinator = match.NewCoordinator(
		logger.WithField("service", "match"),
		e.matches,
		deps.notifier,
		clk,
		match.Config{
			ResponseTimeout: time.Duration(config.CandidateResponseTimeoutSec) * time.Second,
			AcceptanceHold:  acceptanceHold,
		},
		opts...,
	)

	return e
}
