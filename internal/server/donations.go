package server

import (
	"context"
	"net/http"
	"strings"

	"bloodbridge/internal/donation"
	"bloodbridge/pkg/types"

	"github.com/alexedwards/flow"
)

type submitDonationBody struct {
	DonationDate  string `json:"donationDate"`
	UnitsProvided int    `json:"unitsProvided"`
}

// actionBody carries the acting administrator. The authenticated subject
// wins over an actor named in the body.
type actionBody struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

type amendBody struct {
	actionBody
	DonationDate  *string `json:"donationDate"`
	UnitsProvided *int    `json:"unitsProvided"`
}

func (s *Service) actor(r *http.Request, body actionBody) string {
	if subject := s.actorFromContext(r.Context()); subject != "" {
		return subject
	}
	return strings.TrimSpace(body.Actor)
}

func (s *Service) handleListDonations(w http.ResponseWriter, r *http.Request) {
	records, err := s.donations.Donations(r.Context(), flow.Param(r.Context(), "donorID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, records)
}

func (s *Service) handlePostDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body submitDonationBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	date, err := parseDate("donationDate", body.DonationDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.donations.Submit(ctx, flow.Param(ctx, "donorID"), date, body.UnitsProvided)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, record)
}

func (s *Service) handleGetDonation(w http.ResponseWriter, r *http.Request) {
	record, err := s.donations.Donation(r.Context(), flow.Param(r.Context(), "recordID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

func (s *Service) handleGetAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := s.donations.AuditTrail(r.Context(), flow.Param(r.Context(), "recordID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Service) handleVerifyDonation(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.donations.Verify(r.Context(), flow.Param(r.Context(), "recordID"), s.actor(r, body))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

func (s *Service) handleRejectDonation(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.donations.Reject(r.Context(), flow.Param(r.Context(), "recordID"), s.actor(r, body), body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

func (s *Service) handleAmendDonation(w http.ResponseWriter, r *http.Request) {
	var body amendBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	amendment := donation.Amendment{
		UnitsProvided: body.UnitsProvided,
		Reason:        body.Reason,
	}
	if body.DonationDate != nil {
		date, err := parseDate("donationDate", *body.DonationDate)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		amendment.DonationDate = &date
	}

	record, err := s.donations.Amend(r.Context(), flow.Param(r.Context(), "recordID"), s.actor(r, body.actionBody), amendment)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

func (s *Service) handleLockDonation(w http.ResponseWriter, r *http.Request) {
	s.lockAction(w, r, s.donations.Lock)
}

func (s *Service) handleUnlockDonation(w http.ResponseWriter, r *http.Request) {
	s.lockAction(w, r, s.donations.Unlock)
}

func (s *Service) lockAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, recordID, actor, reason string) (*types.DonationRecord, error)) {
	var body actionBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := action(r.Context(), flow.Param(r.Context(), "recordID"), s.actor(r, body), body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}
