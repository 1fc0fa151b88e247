package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSweepSchedule = "@every 1m"
	sweepBatch           = 500
	sweepTimeout         = 50 * time.Second
)

type OverdueExpirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// Sweeper periodically expires overdue candidates.
type Sweeper struct {
	logger  logrus.FieldLogger
	expirer OverdueExpirer
	cron    *cron.Cron
}

func NewSweeper(logger logrus.FieldLogger, expirer OverdueExpirer, spec string) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSweepSchedule
	}

	s := &Sweeper{
		logger:  logger,
		expirer: expirer,
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	return s, nil
}

// Sweep runs one pass. Exported so the expirer command can run a pass at
// startup.
func (s *Sweeper) Sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := s.expirer.ExpireOverdue(ctx, sweepBatch)
	if err != nil {
		s.logger.WithError(err).WithField("expired", n).Error("overdue sweep finished with errors")
		return n
	}

	if n > 0 {
		s.logger.WithField("expired", n).Info("overdue candidates expired")
	}
	return n
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
