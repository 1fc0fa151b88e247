// Package notify informs requesters and donors about committed match
// transitions. Notifiers are called after commit and must not block the
// caller on delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bloodbridge/pkg/types"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const TypeMatchNotify = "match:notify"

type Notifier interface {
	Notify(ctx context.Context, m *types.BloodRequestMatch, events []*types.MatchEvent)
}

// Payload is the body of a match:notify task.
type Payload struct {
	MatchID     string              `json:"matchId"`
	RequestID   string              `json:"requestId"`
	RequesterID *string             `json:"requesterId,omitempty"`
	Status      types.MatchStatus   `json:"status"`
	Events      []*types.MatchEvent `json:"events"`
}

func NewPayload(m *types.BloodRequestMatch, events []*types.MatchEvent) *Payload {
	return &Payload{
		MatchID:     m.ID,
		RequestID:   m.RequestID,
		RequesterID: m.RequesterID,
		Status:      m.Status,
		Events:      events,
	}
}

// LogNotifier writes every notification to the logger. Used when no queue
// is configured.
type LogNotifier struct {
	logger logrus.FieldLogger
}

func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, m *types.BloodRequestMatch, events []*types.MatchEvent) {
	for _, e := range events {
		entry := n.logger.WithFields(logrus.Fields{
			"match_id":   m.ID,
			"request_id": m.RequestID,
			"kind":       e.Kind,
		})
		if e.DonorID != nil {
			entry = entry.WithField("donor_id", *e.DonorID)
		}
		entry.Info("match notification")
	}
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier hands notifications to the match:notify queue for delivery
// by a downstream consumer. Enqueue failures are logged and dropped.
type QueueNotifier struct {
	logger logrus.FieldLogger
	client Enqueuer
	queue  string
}

func NewQueueNotifier(logger logrus.FieldLogger, client Enqueuer, queue string) *QueueNotifier {
	if queue == "" {
		queue = "notifications"
	}
	return &QueueNotifier{logger: logger, client: client, queue: queue}
}

func NewNotifyTask(p *Payload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification payload: %w", err)
	}
	return asynq.NewTask(TypeMatchNotify, b, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

func (n *QueueNotifier) Notify(ctx context.Context, m *types.BloodRequestMatch, events []*types.MatchEvent) {
	if len(events) == 0 {
		return
	}

	task, err := NewNotifyTask(NewPayload(m, events))
	if err != nil {
		n.logger.WithError(err).WithField("match_id", m.ID).Error("failed to build notification task")
		return
	}

	info, err := n.client.EnqueueContext(ctx, task, asynq.Queue(n.queue))
	if err != nil {
		n.logger.WithError(err).WithField("match_id", m.ID).Error("failed to enqueue notification")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"match_id": m.ID,
		"task_id":  info.ID,
		"events":   len(events),
	}).Debug("notification enqueued")
}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, match *types.BloodRequestMatch, events []*types.MatchEvent) {
	for _, n := range m {
		n.Notify(ctx, match, events)
	}
}
