package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bloodbridge/pkg/types"
)

func (s *Store) CreateMatch(_ context.Context, m *types.BloodRequestMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range m.Candidates {
		if _, ok := s.donors[c.DonorID]; !ok {
			return types.NotFound(types.ErrDonorNotFound, c.DonorID)
		}
	}

	for _, existing := range s.matches {
		if existing.RequestID == m.RequestID && existing.Status == types.MatchStatusOpen {
			return types.NewConflict(types.ErrMatchExists, existing.Clone())
		}
	}

	stored := m.Clone()
	s.matches[stored.ID] = stored
	for _, c := range stored.Candidates {
		s.candidates[c.ID] = stored.ID
	}
	return nil
}

func (s *Store) Match(_ context.Context, matchID string) (*types.BloodRequestMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[matchID]
	if !ok {
		return nil, types.NotFound(types.ErrMatchNotFound, matchID)
	}
	return m.Clone(), nil
}

func (s *Store) MatchIDByCandidate(_ context.Context, candidateID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matchID, ok := s.candidates[candidateID]
	if !ok {
		return "", types.NotFound(types.ErrCandidateMissing, candidateID)
	}
	return matchID, nil
}

// UpdateMatch serialises mutators per match. The mutator works on a copy;
// the copy replaces the stored match only when it produced events. Donor
// locks taken by the mutator are held until the commit is visible.
func (s *Store) UpdateMatch(ctx context.Context, matchID string, mutate types.MatchMutator) (*types.BloodRequestMatch, []*types.MatchEvent, error) {
	lock := s.matchLocks.get(matchID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.Match(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}

	tx := &matchTx{store: s}
	defer tx.release()

	next := current.Clone()
	events, err := mutate(ctx, next, tx)
	if err != nil {
		return nil, nil, err
	}

	if len(events) == 0 {
		return current, nil, nil
	}

	next.Version = current.Version + 1

	s.mu.Lock()
	s.matches[matchID] = next.Clone()
	s.events[matchID] = append(s.events[matchID], events...)
	s.mu.Unlock()

	return next, events, nil
}

type matchTx struct {
	store  *Store
	locked []*sync.Mutex
}

func (tx *matchTx) LockDonor(ctx context.Context, donorID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := tx.store.donorLocks.get(donorID)
	l.Lock()
	tx.locked = append(tx.locked, l)
	return nil
}

func (tx *matchTx) ActiveAcceptances(_ context.Context, donorID, excludeMatchID string, since time.Time) (int, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	n := 0
	for id, m := range tx.store.matches {
		if id == excludeMatchID {
			continue
		}
		for _, c := range m.Candidates {
			if c.DonorID == donorID && c.Response == types.ResponseAccepted &&
				c.RespondedAt != nil && !c.RespondedAt.Before(since) {
				n++
			}
		}
	}
	return n, nil
}

func (tx *matchTx) release() {
	for i := len(tx.locked) - 1; i >= 0; i-- {
		tx.locked[i].Unlock()
	}
	tx.locked = nil
}

func (s *Store) EventsByMatch(_ context.Context, matchID string) ([]*types.MatchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[matchID]
	out := make([]*types.MatchEvent, len(events))
	for i, e := range events {
		ev := *e
		out[i] = &ev
	}
	return out, nil
}

// OverdueCandidates lists pending candidates of open matches whose deadline
// is at or before now, earliest deadline first.
func (s *Store) OverdueCandidates(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var overdue []*types.Candidate
	for _, m := range s.matches {
		if m.Status != types.MatchStatusOpen {
			continue
		}
		for _, c := range m.Candidates {
			if c.Response == types.ResponsePending && !c.ExpiresAt.After(now) {
				overdue = append(overdue, c)
			}
		}
	}

	sort.Slice(overdue, func(i, j int) bool {
		if !overdue[i].ExpiresAt.Equal(overdue[j].ExpiresAt) {
			return overdue[i].ExpiresAt.Before(overdue[j].ExpiresAt)
		}
		return overdue[i].ID < overdue[j].ID
	})

	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}

	ids := make([]string, len(overdue))
	for i, c := range overdue {
		ids[i] = c.ID
	}
	return ids, nil
}

// DonorExposure counts the donor's candidacies across all matches.
func (s *Store) DonorExposure(_ context.Context, donorID string, holdSince, recentSince time.Time) (*types.DonorExposure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &types.DonorExposure{DonorID: donorID}
	for _, m := range s.matches {
		for _, c := range m.Candidates {
			if c.DonorID != donorID {
				continue
			}

			switch {
			case c.Response == types.ResponseAccepted && c.RespondedAt != nil && !c.RespondedAt.Before(holdSince):
				out.ActiveAccepted++
			case c.Response == types.ResponsePending && m.Status == types.MatchStatusOpen:
				out.OpenPending++
			}

			if !c.CreatedAt.Before(recentSince) {
				out.RecentMatches++
			}
		}
	}
	return out, nil
}
