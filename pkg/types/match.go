package types

import (
	"context"
	"time"
)

type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyCritical:
		return true
	}
	return false
}

// BloodRequest is the part of a request the matching engine needs.
type BloodRequest struct {
	ID             string    `json:"id"`
	RequesterID    string    `json:"requesterId,omitempty"`
	BloodType      BloodType `json:"bloodType"`
	Urgency        Urgency   `json:"urgency"`
	Location       GeoPoint  `json:"location"`
	SearchRadiusKm float64   `json:"searchRadiusKm,omitempty"`
}

type MatchStatus string

const (
	MatchStatusOpen      MatchStatus = "open"
	MatchStatusFulfilled MatchStatus = "fulfilled"
	MatchStatusExpired   MatchStatus = "expired"
	MatchStatusCancelled MatchStatus = "cancelled"
)

func (s MatchStatus) Terminal() bool {
	return s != MatchStatusOpen
}

type CandidateResponse string

const (
	ResponsePending  CandidateResponse = "pending"
	ResponseAccepted CandidateResponse = "accepted"
	ResponseDeclined CandidateResponse = "declined"
	ResponseExpired  CandidateResponse = "expired"
)

type Candidate struct {
	ID          string            `db:"id" json:"id"`
	MatchID     string            `db:"match_id" json:"matchId"`
	DonorID     string            `db:"donor_id" json:"donorId"`
	Position    int               `db:"position" json:"position"`
	Response    CandidateResponse `db:"response" json:"response"`
	Reason      *string           `db:"reason" json:"reason,omitempty"`
	RespondedAt *time.Time        `db:"responded_at" json:"respondedAt,omitempty"`
	ExpiresAt   time.Time         `db:"expires_at" json:"expiresAt"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
}

type BloodRequestMatch struct {
	ID          string       `db:"id" json:"id"`
	RequestID   string       `db:"request_id" json:"requestId"`
	RequesterID *string      `db:"requester_id" json:"requesterId,omitempty"`
	Status      MatchStatus  `db:"status" json:"status"`
	Version     int          `db:"version" json:"version"`
	ResolvedAt  *time.Time   `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updatedAt"`
	Candidates  []*Candidate `db:"-" json:"candidates"`
}

func (m *BloodRequestMatch) CandidateByDonor(donorID string) *Candidate {
	for _, c := range m.Candidates {
		if c.DonorID == donorID {
			return c
		}
	}
	return nil
}

func (m *BloodRequestMatch) CandidateByID(candidateID string) *Candidate {
	for _, c := range m.Candidates {
		if c.ID == candidateID {
			return c
		}
	}
	return nil
}

// Accepted returns the accepted candidate, if any.
func (m *BloodRequestMatch) Accepted() *Candidate {
	for _, c := range m.Candidates {
		if c.Response == ResponseAccepted {
			return c
		}
	}
	return nil
}

func (m *BloodRequestMatch) PendingCount() int {
	n := 0
	for _, c := range m.Candidates {
		if c.Response == ResponsePending {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so a mutation can be compared against the
// original before it is committed.
func (m *BloodRequestMatch) Clone() *BloodRequestMatch {
	out := *m
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		out.ResolvedAt = &t
	}
	if m.RequesterID != nil {
		s := *m.RequesterID
		out.RequesterID = &s
	}
	out.Candidates = make([]*Candidate, len(m.Candidates))
	for i, c := range m.Candidates {
		cc := *c
		if c.Reason != nil {
			r := *c.Reason
			cc.Reason = &r
		}
		if c.RespondedAt != nil {
			t := *c.RespondedAt
			cc.RespondedAt = &t
		}
		out.Candidates[i] = &cc
	}
	return &out
}

type MatchEventKind string

const (
	EventCandidateAccepted MatchEventKind = "candidate_accepted"
	EventCandidateDeclined MatchEventKind = "candidate_declined"
	EventCandidateExpired  MatchEventKind = "candidate_expired"
	EventMatchFulfilled    MatchEventKind = "match_fulfilled"
	EventMatchExpired      MatchEventKind = "match_expired"
	EventMatchCancelled    MatchEventKind = "match_cancelled"
)

// MatchEvent is one committed state transition.
type MatchEvent struct {
	ID          string         `db:"id" json:"id"`
	MatchID     string         `db:"match_id" json:"matchId"`
	RequestID   string         `db:"request_id" json:"requestId"`
	CandidateID *string        `db:"candidate_id" json:"candidateId,omitempty"`
	DonorID     *string        `db:"donor_id" json:"donorId,omitempty"`
	Kind        MatchEventKind `db:"kind" json:"kind"`
	Reason      *string        `db:"reason" json:"reason,omitempty"`
	OccurredAt  time.Time      `db:"occurred_at" json:"occurredAt"`
}

// MatchTx is what a match mutation may consult while the match is locked.
type MatchTx interface {
	// LockDonor serialises concurrent acceptances of the same donor across
	// requests until the surrounding transaction ends.
	LockDonor(ctx context.Context, donorID string) error
	// ActiveAcceptances counts accepted candidacies of the donor on other
	// matches responded to at or after since.
	ActiveAcceptances(ctx context.Context, donorID, excludeMatchID string, since time.Time) (int, error)
}

// MatchMutator changes m in place and returns the events describing the
// change. The store persists the match and the events in one transaction.
// Returning an error aborts the transaction without writing anything;
// returning no events leaves the stored match untouched.
type MatchMutator func(ctx context.Context, m *BloodRequestMatch, tx MatchTx) ([]*MatchEvent, error)
