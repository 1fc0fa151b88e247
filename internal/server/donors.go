package server

import (
	"net/http"
	"strings"
	"time"

	"bloodbridge/pkg/types"

	"github.com/alexedwards/flow"
)

type donorBody struct {
	DisplayName          *string         `json:"displayName"`
	BloodType            types.BloodType `json:"bloodType"`
	IsAvailable          bool            `json:"isAvailable"`
	AvailabilityRadiusKm float64         `json:"availabilityRadiusKm"`
	Timezone             string          `json:"timezone"`
	Location             types.GeoPoint  `json:"location"`
}

func (b *donorBody) validate() error {
	if !b.BloodType.Valid() {
		return types.NewValidationError("bloodType", "unknown blood type %q", b.BloodType)
	}
	if b.AvailabilityRadiusKm < 0 {
		return types.NewValidationError("availabilityRadiusKm", "must not be negative")
	}
	if b.Location.Lat < -90 || b.Location.Lat > 90 || b.Location.Lng < -180 || b.Location.Lng > 180 {
		return types.NewValidationError("location", "coordinates out of range")
	}
	if b.Timezone != "" {
		if _, err := time.LoadLocation(b.Timezone); err != nil {
			return types.NewValidationError("timezone", "unknown timezone %q", b.Timezone)
		}
	}
	return nil
}

func (s *Service) handleListDonors(w http.ResponseWriter, r *http.Request) {
	donors, err := s.donors.Donors(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, donors)
}

func (s *Service) handleGetDonor(w http.ResponseWriter, r *http.Request) {
	donor, err := s.donors.Donor(r.Context(), flow.Param(r.Context(), "donorID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, donor)
}

func (s *Service) handlePutDonor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	donorID := strings.TrimSpace(flow.Param(ctx, "donorID"))

	var body donorBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := body.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	donor := &types.DonorProfile{
		ID:                   donorID,
		DisplayName:          body.DisplayName,
		BloodType:            body.BloodType,
		IsAvailable:          body.IsAvailable,
		AvailabilityRadiusKm: body.AvailabilityRadiusKm,
		Timezone:             body.Timezone,
		GeoPoint:             body.Location,
	}

	if err := s.donors.UpsertDonor(ctx, donor); err != nil {
		s.writeError(w, r, err)
		return
	}

	stored, err := s.donors.Donor(ctx, donorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stored)
}

func (s *Service) handleGetEligibility(w http.ResponseWriter, r *http.Request) {
	res, err := s.eligibility.Donor(r.Context(), flow.Param(r.Context(), "donorID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

type availabilityQuery struct {
	At time.Time `form:"at"`
}

func (s *Service) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	var q availabilityQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		s.writeError(w, r, queryError(err))
		return
	}

	out, err := s.schedules.Availability(r.Context(), flow.Param(r.Context(), "donorID"), q.At)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.health))

	for _, hc := range s.health {
		if err := hc.Check(r.Context()); err != nil {
			s.logger.WithError(err).WithField("check", hc.Name).Warn("health check failed")
			checks[hc.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}

	s.writeJSON(w, status, map[string]any{"checks": checks})
}
