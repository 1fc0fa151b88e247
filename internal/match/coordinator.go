// Package match runs the per-request state machine that turns a list of
// candidate donors into at most one accepted donation.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bloodbridge/internal/clock"
	"bloodbridge/internal/metrics"
	"bloodbridge/internal/notify"
	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	DefaultResponseTimeout = 30 * time.Minute
	DefaultAcceptanceHold  = 72 * time.Hour

	reasonFulfilledElsewhere = "request fulfilled by another donor"
	reasonCancelled          = "request cancelled"
	reasonTimedOut           = "no response before deadline"
)

// Store persists matches. UpdateMatch locks the match for the duration of
// the mutator, persists the mutated match and its events in one
// transaction and returns the committed state. When the mutator returns no
// events nothing is written and the current state is returned.
type Store interface {
	CreateMatch(ctx context.Context, m *types.BloodRequestMatch) error
	Match(ctx context.Context, matchID string) (*types.BloodRequestMatch, error)
	MatchIDByCandidate(ctx context.Context, candidateID string) (string, error)
	UpdateMatch(ctx context.Context, matchID string, mutate types.MatchMutator) (*types.BloodRequestMatch, []*types.MatchEvent, error)
	EventsByMatch(ctx context.Context, matchID string) ([]*types.MatchEvent, error)
	OverdueCandidates(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Timers schedules the deadline of each pending candidate with an external
// scheduler, which later calls Expire.
type Timers interface {
	ScheduleExpiry(ctx context.Context, candidates []*types.Candidate) error
}

// CandidateSource produces the ordered donor ids for a request.
type CandidateSource interface {
	Select(ctx context.Context, req *types.BloodRequest) ([]string, error)
}

type Config struct {
	ResponseTimeout time.Duration
	AcceptanceHold  time.Duration
}

type Coordinator struct {
	logger   logrus.FieldLogger
	store    Store
	notifier notify.Notifier
	timers   Timers
	metrics  *metrics.Metrics
	clock    clock.Clock
	cfg      Config
}

type Option func(*Coordinator)

func WithTimers(t Timers) Option {
	return func(c *Coordinator) { c.timers = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(logger logrus.FieldLogger, store Store, notifier notify.Notifier, clk clock.Clock, cfg Config, opts ...Option) *Coordinator {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.AcceptanceHold <= 0 {
		cfg.AcceptanceHold = DefaultAcceptanceHold
	}

	c := &Coordinator{
		logger:   logger,
		store:    store,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateMatch opens a match for requestID with one pending candidate per
// donor, in the given order.
func (c *Coordinator) CreateMatch(ctx context.Context, requestID string, donorIDs []string) (*types.BloodRequestMatch, error) {
	return c.createMatch(ctx, requestID, nil, donorIDs)
}

// Dispatch selects candidates for req and opens a match for them.
func (c *Coordinator) Dispatch(ctx context.Context, req *types.BloodRequest, source CandidateSource) (*types.BloodRequestMatch, error) {
	donorIDs, err := source.Select(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(donorIDs) == 0 {
		return nil, types.NotFound(types.ErrNoCandidates, req.ID)
	}

	return c.createMatch(ctx, req.ID, utils.NonEmptyStringPtr(req.RequesterID), donorIDs)
}

func (c *Coordinator) createMatch(ctx context.Context, requestID string, requesterID *string, donorIDs []string) (*types.BloodRequestMatch, error) {
	if requestID == "" {
		return nil, types.NewValidationError("requestId", "is required")
	}

	if len(donorIDs) == 0 {
		return nil, types.NewValidationError("candidateIds", "at least one candidate is required")
	}

	seen := make(map[string]struct{}, len(donorIDs))
	for _, id := range donorIDs {
		if id == "" {
			return nil, types.NewValidationError("candidateIds", "candidate ids must not be empty")
		}
		if _, ok := seen[id]; ok {
			return nil, types.NewValidationError("candidateIds", "donor %s is listed more than once", id)
		}
		seen[id] = struct{}{}
	}

	now := c.clock.Now()
	m := &types.BloodRequestMatch{
		ID:          utils.PrefixedID(utils.PrefixMatch),
		RequestID:   requestID,
		RequesterID: requesterID,
		Status:      types.MatchStatusOpen,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		Candidates:  make([]*types.Candidate, len(donorIDs)),
	}

	for i, donorID := range donorIDs {
		m.Candidates[i] = &types.Candidate{
			ID:        utils.PrefixedID(utils.PrefixCandidate),
			MatchID:   m.ID,
			DonorID:   donorID,
			Position:  i,
			Response:  types.ResponsePending,
			ExpiresAt: now.Add(c.cfg.ResponseTimeout),
			CreatedAt: now,
		}
	}

	if err := c.store.CreateMatch(ctx, m); err != nil {
		return nil, err
	}

	c.metrics.MatchCreated(len(m.Candidates))
	c.logger.WithFields(logrus.Fields{
		"match_id":   m.ID,
		"request_id": requestID,
		"candidates": len(m.Candidates),
	}).Info("match dispatched")

	if c.timers != nil {
		if err := c.timers.ScheduleExpiry(ctx, m.Candidates); err != nil {
			// the overdue sweep picks these up
			c.logger.WithError(err).WithField("match_id", m.ID).Warn("failed to schedule candidate expiry")
		}
	}

	return m, nil
}

func (c *Coordinator) GetMatch(ctx context.Context, matchID string) (*types.BloodRequestMatch, error) {
	return c.store.Match(ctx, matchID)
}

func (c *Coordinator) Events(ctx context.Context, matchID string) ([]*types.MatchEvent, error) {
	if _, err := c.store.Match(ctx, matchID); err != nil {
		return nil, err
	}
	return c.store.EventsByMatch(ctx, matchID)
}

// Respond records a donor's accept or decline. Accepting fulfils the match
// and expires every other pending candidate in the same commit. Repeating
// a response the donor already gave returns the stored state unchanged.
func (c *Coordinator) Respond(ctx context.Context, matchID, donorID string, response types.CandidateResponse, reason *string) (*types.BloodRequestMatch, error) {
	if donorID == "" {
		return nil, types.NewValidationError("donorId", "is required")
	}

	if response != types.ResponseAccepted && response != types.ResponseDeclined {
		return nil, types.NewValidationError("response", "must be %q or %q, got %q", types.ResponseAccepted, types.ResponseDeclined, response)
	}

	now := c.clock.Now()
	holdSince := now.Add(-c.cfg.AcceptanceHold)

	mutate := func(ctx context.Context, m *types.BloodRequestMatch, tx types.MatchTx) ([]*types.MatchEvent, error) {
		cand := m.CandidateByDonor(donorID)
		if cand == nil {
			return nil, types.NotFound(types.ErrCandidateMissing, donorID)
		}

		if cand.Response == response {
			return nil, nil
		}

		switch m.Status {
		case types.MatchStatusOpen:
		case types.MatchStatusCancelled:
			return nil, types.NewConflict(types.ErrRequestCancelled, m.Clone())
		case types.MatchStatusFulfilled:
			if response == types.ResponseAccepted {
				return nil, types.NewConflict(types.ErrAlreadyFulfilled, m.Clone())
			}
			return nil, types.NewConflict(types.ErrMatchResolved, m.Clone())
		default:
			return nil, types.NewConflict(types.ErrMatchResolved, m.Clone())
		}

		if cand.Response != types.ResponsePending {
			return nil, types.NewConflict(types.ErrCandidateResolved, m.Clone())
		}

		if response == types.ResponseDeclined {
			return decline(m, cand, reason, now), nil
		}

		if err := tx.LockDonor(ctx, donorID); err != nil {
			return nil, fmt.Errorf("failed to lock donor %s: %w", donorID, err)
		}

		active, err := tx.ActiveAcceptances(ctx, donorID, m.ID, holdSince)
		if err != nil {
			return nil, fmt.Errorf("failed to count active acceptances for donor %s: %w", donorID, err)
		}

		if active > 0 {
			return nil, types.NewConflict(types.ErrDonorDoubleBooked, m.Clone())
		}

		return accept(m, cand, now), nil
	}

	return c.update(ctx, matchID, "respond", mutate)
}

// Expire times out one pending candidate. It is called by the external
// scheduler and goes through the same locked commit as Respond, so an
// expiry that lost the race against an accept reports ErrCandidateResolved
// instead of touching the accepted candidate.
func (c *Coordinator) Expire(ctx context.Context, candidateID string) (*types.BloodRequestMatch, error) {
	if candidateID == "" {
		return nil, types.NewValidationError("candidateId", "is required")
	}

	matchID, err := c.store.MatchIDByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()

	mutate := func(_ context.Context, m *types.BloodRequestMatch, _ types.MatchTx) ([]*types.MatchEvent, error) {
		cand := m.CandidateByID(candidateID)
		if cand == nil {
			return nil, types.NotFound(types.ErrCandidateMissing, candidateID)
		}

		switch cand.Response {
		case types.ResponseExpired:
			return nil, nil
		case types.ResponseAccepted, types.ResponseDeclined:
			return nil, types.NewConflict(types.ErrCandidateResolved, m.Clone())
		}

		if m.Status.Terminal() {
			return nil, types.NewConflict(types.ErrMatchResolved, m.Clone())
		}

		events := []*types.MatchEvent{expireCandidate(m, cand, reasonTimedOut, now)}
		if m.PendingCount() == 0 {
			events = append(events, resolve(m, types.MatchStatusExpired, types.EventMatchExpired, nil, now))
		}
		return events, nil
	}

	return c.update(ctx, matchID, "expire", mutate)
}

// Cancel withdraws an open match and expires its pending candidates. A
// match that is already resolved is returned unchanged.
func (c *Coordinator) Cancel(ctx context.Context, matchID string, reason *string) (*types.BloodRequestMatch, error) {
	now := c.clock.Now()

	mutate := func(_ context.Context, m *types.BloodRequestMatch, _ types.MatchTx) ([]*types.MatchEvent, error) {
		if m.Status.Terminal() {
			return nil, nil
		}

		var events []*types.MatchEvent
		for _, cand := range m.Candidates {
			if cand.Response == types.ResponsePending {
				events = append(events, expireCandidate(m, cand, reasonCancelled, now))
			}
		}

		events = append(events, resolve(m, types.MatchStatusCancelled, types.EventMatchCancelled, reason, now))
		return events, nil
	}

	return c.update(ctx, matchID, "cancel", mutate)
}

// ExpireOverdue expires up to limit pending candidates whose deadline has
// passed. It backs up the per-candidate timers when tasks were lost.
func (c *Coordinator) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	ids, err := c.store.OverdueCandidates(ctx, c.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue candidates: %w", err)
	}

	var (
		expired, skipped int
		errs             []error
	)

	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		_, err := c.Expire(ctx, id)
		var conflict *types.ConflictError
		switch {
		case err == nil:
			expired++
		case errors.As(err, &conflict):
			skipped++
		default:
			errs = append(errs, fmt.Errorf("candidate %s: %w", id, err))
		}
	}

	c.metrics.SweepOutcome("expired", expired)
	c.metrics.SweepOutcome("skipped", skipped)
	c.metrics.SweepOutcome("failed", len(errs))

	return expired, errors.Join(errs...)
}

func (c *Coordinator) update(ctx context.Context, matchID, op string, mutate types.MatchMutator) (*types.BloodRequestMatch, error) {
	m, events, err := c.store.UpdateMatch(ctx, matchID, mutate)
	if err != nil {
		var conflict *types.ConflictError
		if errors.As(err, &conflict) {
			c.metrics.Conflict(conflict.Reason.Error())
			c.logger.WithFields(logrus.Fields{
				"match_id": matchID,
				"op":       op,
				"reason":   conflict.Reason.Error(),
			}).Debug("match transition rejected")
		}
		return nil, err
	}

	if len(events) == 0 {
		return m, nil
	}

	for _, e := range events {
		c.metrics.Transition(string(e.Kind))
	}

	c.logger.WithFields(logrus.Fields{
		"match_id": m.ID,
		"op":       op,
		"status":   m.Status,
		"events":   len(events),
	}).Info("match updated")

	if c.notifier != nil {
		c.notifier.Notify(ctx, m, events)
	}

	return m, nil
}

func accept(m *types.BloodRequestMatch, cand *types.Candidate, now time.Time) []*types.MatchEvent {
	cand.Response = types.ResponseAccepted
	cand.RespondedAt = &now

	events := []*types.MatchEvent{newEvent(m, cand, types.EventCandidateAccepted, nil, now)}
	for _, other := range m.Candidates {
		if other.Response == types.ResponsePending {
			events = append(events, expireCandidate(m, other, reasonFulfilledElsewhere, now))
		}
	}

	return append(events, resolve(m, types.MatchStatusFulfilled, types.EventMatchFulfilled, nil, now))
}

func decline(m *types.BloodRequestMatch, cand *types.Candidate, reason *string, now time.Time) []*types.MatchEvent {
	cand.Response = types.ResponseDeclined
	cand.Reason = reason
	cand.RespondedAt = &now

	events := []*types.MatchEvent{newEvent(m, cand, types.EventCandidateDeclined, reason, now)}
	if m.PendingCount() == 0 {
		events = append(events, resolve(m, types.MatchStatusExpired, types.EventMatchExpired, nil, now))
	}
	return events
}

func expireCandidate(m *types.BloodRequestMatch, cand *types.Candidate, reason string, now time.Time) *types.MatchEvent {
	cand.Response = types.ResponseExpired
	cand.Reason = &reason
	cand.RespondedAt = &now
	return newEvent(m, cand, types.EventCandidateExpired, &reason, now)
}

func resolve(m *types.BloodRequestMatch, status types.MatchStatus, kind types.MatchEventKind, reason *string, now time.Time) *types.MatchEvent {
	m.Status = status
	m.ResolvedAt = &now
	m.UpdatedAt = now
	return newEvent(m, nil, kind, reason, now)
}

func newEvent(m *types.BloodRequestMatch, cand *types.Candidate, kind types.MatchEventKind, reason *string, now time.Time) *types.MatchEvent {
	m.UpdatedAt = now

	e := &types.MatchEvent{
		ID:         utils.PrefixedID(utils.PrefixEvent),
		MatchID:    m.ID,
		RequestID:  m.RequestID,
		Kind:       kind,
		Reason:     reason,
		OccurredAt: now,
	}
	if cand != nil {
		candidateID, donorID := cand.ID, cand.DonorID
		e.CandidateID = &candidateID
		e.DonorID = &donorID
	}
	return e
}
