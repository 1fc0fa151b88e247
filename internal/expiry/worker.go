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

type Expirer interface {
	Expire(ctx context.Context, candidateID string) (*types.BloodRequestMatch, error)
}

// HandleExpireTask expires the candidate named in the task. Conflicts and
// unknown candidates are final and skip asynq's retries; any other error
// is returned so asynq retries with backoff.
func HandleExpireTask(logger logrus.FieldLogger, expirer Expirer) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p Payload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("invalid expire payload: %v: %w", err, asynq.SkipRetry)
		}

		entry := logger.WithFields(logrus.Fields{
			"candidate_id": p.CandidateID,
			"match_id":     p.MatchID,
		})

		m, err := expirer.Expire(ctx, p.CandidateID)

		var (
			conflict *types.ConflictError
			notFound *types.NotFoundError
		)
		switch {
		case err == nil:
			entry.WithField("status", m.Status).Info("candidate expired")
			return nil
		case errors.As(err, &conflict):
			entry.WithField("reason", conflict.Reason.Error()).Info("candidate already resolved")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		case errors.As(err, &notFound):
			entry.Warn("candidate no longer exists")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			entry.WithError(err).Error("failed to expire candidate")
			return err
		}
	}
}

func NewServeMux(logger logrus.FieldLogger, expirer Expirer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCandidateExpire, HandleExpireTask(logger, expirer))
	return mux
}
