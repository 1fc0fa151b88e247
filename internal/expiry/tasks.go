// Package expiry drives candidate deadlines. A task is enqueued per
// candidate to fire at its deadline; a periodic sweep catches candidates
// whose task was lost.
package expiry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bloodbridge/pkg/types"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	TypeCandidateExpire = "candidate:expire"
	Queue               = "expiry"
	maxRetry            = 10
)

type Payload struct {
	CandidateID string `json:"candidateId"`
	MatchID     string `json:"matchId"`
}

// NewExpireTask builds the task for c, due at its deadline. The candidate
// id doubles as the task id so re-enqueueing is a no-op.
func NewExpireTask(c *types.Candidate) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(Payload{CandidateID: c.ID, MatchID: c.MatchID})
	if err != nil {
		return nil, nil, err
	}

	task := asynq.NewTask(TypeCandidateExpire, b)
	opts := []asynq.Option{
		asynq.ProcessAt(c.ExpiresAt),
		asynq.TaskID(c.ID),
		asynq.Queue(Queue),
		asynq.MaxRetry(maxRetry),
	}

	return task, opts, nil
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues one expire task per pending candidate.
type Scheduler struct {
	logger logrus.FieldLogger
	client Enqueuer
}

func NewScheduler(logger logrus.FieldLogger, client Enqueuer) *Scheduler {
	return &Scheduler{logger: logger, client: client}
}

func (s *Scheduler) ScheduleExpiry(ctx context.Context, candidates []*types.Candidate) error {
	var errs []error
	for _, c := range candidates {
		if c.Response != types.ResponsePending {
			continue
		}

		task, opts, err := NewExpireTask(c)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to build expire task for %s: %w", c.ID, err))
			continue
		}

		_, err = s.client.EnqueueContext(ctx, task, opts...)
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			errs = append(errs, fmt.Errorf("failed to enqueue expire task for %s: %w", c.ID, err))
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"candidate_id": c.ID,
			"match_id":     c.MatchID,
			"expires_at":   c.ExpiresAt,
		}).Debug("candidate expiry scheduled")
	}

	return errors.Join(errs...)
}
