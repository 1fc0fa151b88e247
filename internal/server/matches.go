package server

import (
	"net/http"

	"bloodbridge/pkg/types"

	"github.com/alexedwards/flow"
)

type candidatesQuery struct {
	RequestID string          `form:"requestId"`
	BloodType types.BloodType `form:"bloodType"`
	Urgency   types.Urgency   `form:"urgency"`
	Lat       float64         `form:"lat"`
	Lng       float64         `form:"lng"`
	RadiusKm  float64         `form:"radiusKm"`
}

// handlePreviewCandidates runs selection without opening a match and
// reports why each nearby donor was left out.
func (s *Service) handlePreviewCandidates(w http.ResponseWriter, r *http.Request) {
	var q candidatesQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		s.writeError(w, r, queryError(err))
		return
	}

	if q.RequestID == "" {
		q.RequestID = "preview"
	}

	req := &types.BloodRequest{
		ID:             q.RequestID,
		BloodType:      q.BloodType,
		Urgency:        q.Urgency,
		Location:       types.GeoPoint{Lat: q.Lat, Lng: q.Lng},
		SearchRadiusKm: q.RadiusKm,
	}

	eval, err := s.selector.Evaluate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, eval)
}

type createMatchBody struct {
	RequestID    string   `json:"requestId"`
	CandidateIDs []string `json:"candidateIds"`
}

func (s *Service) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var body createMatchBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	m, err := s.coordinator.CreateMatch(r.Context(), body.RequestID, body.CandidateIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, m)
}

func (s *Service) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req types.BloodRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.RequesterID == "" {
		req.RequesterID = s.actorFromContext(r.Context())
	}

	m, err := s.coordinator.Dispatch(r.Context(), &req, s.selector)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, m)
}

func (s *Service) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.coordinator.GetMatch(r.Context(), flow.Param(r.Context(), "matchID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, m)
}

func (s *Service) handleGetMatchEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.coordinator.Events(r.Context(), flow.Param(r.Context(), "matchID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, events)
}

type respondBody struct {
	DonorID  string                  `json:"donorId"`
	Response types.CandidateResponse `json:"response"`
	Reason   *string                 `json:"reason"`
}

func (s *Service) handleRespond(w http.ResponseWriter, r *http.Request) {
	var body respondBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	if body.DonorID == "" {
		body.DonorID = s.actorFromContext(r.Context())
	}

	m, err := s.coordinator.Respond(r.Context(), flow.Param(r.Context(), "matchID"), body.DonorID, body.Response, body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, m)
}

func (s *Service) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason *string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	m, err := s.coordinator.Cancel(r.Context(), flow.Param(r.Context(), "matchID"), body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, m)
}

func (s *Service) handleExpireCandidate(w http.ResponseWriter, r *http.Request) {
	m, err := s.coordinator.Expire(r.Context(), flow.Param(r.Context(), "candidateID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, m)
}
