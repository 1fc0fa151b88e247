package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"bloodbridge/pkg/types"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error  string                   `json:"error"`
	Field  string                   `json:"field,omitempty"`
	Reason string                   `json:"reason,omitempty"`
	Match  *types.BloodRequestMatch `json:"match,omitempty"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

// writeError maps the domain error kinds onto status codes. Conflicts carry
// the current match so callers can re-read state without another request.
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *types.ValidationError
		policy     *types.PolicyViolation
		notFound   *types.NotFoundError
		conflict   *types.ConflictError
	)

	switch {
	case errors.As(err, &validation):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: validation.Error(), Field: validation.Field})
	case errors.As(err, &policy):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: policy.Error(), Reason: policy.Rule})
	case errors.As(err, &notFound):
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: notFound.Error()})
	case errors.As(err, &conflict):
		s.writeJSON(w, http.StatusConflict, errorBody{Error: conflict.Error(), Reason: conflict.Reason.Error(), Match: conflict.Match})
	default:
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.NewValidationError("", "invalid JSON body: %s", err)
	}
	return nil
}

func queryError(err error) error {
	return types.NewValidationError("", "invalid query: %s", err)
}
