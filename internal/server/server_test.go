package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bloodbridge/internal/audit"
	"bloodbridge/internal/candidate"
	"bloodbridge/internal/clock"
	"bloodbridge/internal/donation"
	"bloodbridge/internal/eligibility"
	"bloodbridge/internal/match"
	"bloodbridge/internal/metrics"
	"bloodbridge/internal/notify"
	"bloodbridge/internal/schedule"
	"bloodbridge/internal/store/memory"
	"bloodbridge/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type harness struct {
	store   *memory.Store
	clock   *clock.Fake
	handler http.Handler
}

func newHarness(t *testing.T, cfg *types.Config, health ...HealthCheck) *harness {
	t.Helper()

	logger, _ := test.NewNullLogger()
	store := memory.New()
	clk := clock.NewFake(testNow)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	selector := candidate.NewSelector(logger, store, store, store, store, clk, candidate.SelectorConfig{})
	coordinator := match.NewCoordinator(logger, store, notify.NewLogNotifier(logger), clk, match.Config{}, match.WithMetrics(m))

	if cfg == nil {
		cfg = &types.Config{}
	}

	srv := New(cfg, logger, Deps{
		Donors:      store,
		Schedules:   schedule.NewService(logger, store, store, schedule.NewEvaluator(0), clk),
		Eligibility: eligibility.NewService(eligibility.Policy{}, store, store, clk),
		Donations:   donation.NewService(logger, store, audit.NewLogSink(logger), clk),
		Selector:    selector,
		Coordinator: coordinator,
		Metrics:     m,
		Gatherer:    reg,
		Health:      health,
	}, nil)

	return &harness{store: store, clock: clk, handler: srv.Handler()}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) putDonor(t *testing.T, id string, bt types.BloodType) {
	t.Helper()

	rec := h.do(t, http.MethodPut, "/v1/donors/"+id, map[string]any{
		"bloodType":            bt,
		"isAvailable":          true,
		"availabilityRadiusKm": 25,
		"timezone":             "UTC",
		"location":             map[string]float64{"lat": -1.2921, "lng": 36.8219},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestEligibilityFollowsVerifiedDonations(t *testing.T) {
	h := newHarness(t, nil)
	h.putDonor(t, "dnr_1", types.BloodTypeONeg)

	rec := h.do(t, http.MethodGet, "/v1/donors/dnr_1/eligibility", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[eligibility.Result](t, rec)
	assert.True(t, first.Eligible)
	assert.True(t, first.IsFirstTime)

	rec = h.do(t, http.MethodPost, "/v1/donors/dnr_1/donations", map[string]any{
		"donationDate":  "2026-02-20",
		"unitsProvided": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	record := decode[types.DonationRecord](t, rec)

	// pending records do not count
	rec = h.do(t, http.MethodGet, "/v1/donors/dnr_1/eligibility", nil)
	assert.True(t, decode[eligibility.Result](t, rec).Eligible)

	rec = h.do(t, http.MethodPost, "/v1/donations/"+record.ID+"/verify", map[string]any{"actor": "admin_1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	verified := decode[types.DonationRecord](t, rec)
	assert.Equal(t, types.VerificationVerified, verified.VerificationStatus)
	assert.True(t, verified.Locked)

	rec = h.do(t, http.MethodGet, "/v1/donors/dnr_1/eligibility", nil)
	res := decode[eligibility.Result](t, rec)
	assert.False(t, res.Eligible)
	require.NotNil(t, res.DaysSinceLastDonation)
	require.NotNil(t, res.DaysRemaining)
	assert.Equal(t, 10, *res.DaysSinceLastDonation)
	assert.Equal(t, 80, *res.DaysRemaining)

	rec = h.do(t, http.MethodPost, "/v1/donations/"+record.ID+"/verify", map[string]any{"actor": "admin_1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/donations/"+record.ID+"/amend", map[string]any{"actor": "admin_1", "unitsProvided": 2, "reason": "typo"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/donations/"+record.ID+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trail := decode[[]types.AuditEntry](t, rec)
	require.Len(t, trail, 1)
	assert.Equal(t, types.AuditActionLock, trail[0].Action)
}

func TestSubmitDonationRejectsBadDate(t *testing.T) {
	h := newHarness(t, nil)
	h.putDonor(t, "dnr_1", types.BloodTypeONeg)

	rec := h.do(t, http.MethodPost, "/v1/donors/dnr_1/donations", map[string]any{
		"donationDate":  "20/02/2026",
		"unitsProvided": 1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "donationDate", decode[errorBody](t, rec).Field)
}

func TestWeeklySlotOverlapIsPolicyViolation(t *testing.T) {
	h := newHarness(t, nil)
	h.putDonor(t, "dnr_1", types.BloodTypeAPos)

	rec := h.do(t, http.MethodPost, "/v1/donors/dnr_1/schedule/slots", map[string]any{
		"dayOfWeek": 2, "startTime": "16:00", "endTime": "20:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	slot := decode[types.WeeklySlot](t, rec)
	assert.NotEmpty(t, slot.ID)

	rec = h.do(t, http.MethodPost, "/v1/donors/dnr_1/schedule/slots", map[string]any{
		"dayOfWeek": 2, "startTime": "09:00", "endTime": "17:00",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/v1/donors/dnr_1/schedule/slots/"+slot.ID, map[string]any{
		"dayOfWeek": 2, "startTime": "15:00", "endTime": "20:00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/v1/donors/dnr_1/schedule/slots/slt_missing", map[string]any{
		"dayOfWeek": 3, "startTime": "09:00", "endTime": "10:00",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/donors/dnr_1/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sched := decode[types.AvailabilitySchedule](t, rec)
	require.Len(t, sched.WeeklySlots, 1)
	assert.Equal(t, types.MustTimeOfDay("15:00"), sched.WeeklySlots[0].StartTime)

	rec = h.do(t, http.MethodDelete, "/v1/donors/dnr_1/schedule/slots/"+slot.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAvailabilityUsesCustomRange(t *testing.T) {
	h := newHarness(t, nil)
	h.putDonor(t, "dnr_1", types.BloodTypeAPos)

	// testNow is a Monday
	rec := h.do(t, http.MethodPost, "/v1/donors/dnr_1/schedule/slots", map[string]any{
		"dayOfWeek": 1, "startTime": "09:00", "endTime": "17:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPut, "/v1/donors/dnr_1/schedule/enabled", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/v1/donors/dnr_1/availability?at=2026-03-02T10:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[schedule.Availability](t, rec).Available)

	rec = h.do(t, http.MethodPost, "/v1/donors/dnr_1/schedule/ranges", map[string]any{
		"startDate": "2026-03-02", "endDate": "2026-03-02", "isAvailable": false, "reason": "travel",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/v1/donors/dnr_1/availability?at=2026-03-02T10:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[schedule.Availability](t, rec).Available)

	rec = h.do(t, http.MethodGet, "/v1/donors/dnr_1/availability?at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchAndRespond(t *testing.T) {
	h := newHarness(t, nil)
	h.putDonor(t, "dnr_1", types.BloodTypeONeg)
	h.putDonor(t, "dnr_2", types.BloodTypeAPos)
	h.putDonor(t, "dnr_3", types.BloodTypeBPos)

	rec := h.do(t, http.MethodGet, "/v1/candidates?bloodType=A%2B&lat=-1.2921&lng=36.8219", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	eval := decode[candidate.Evaluation](t, rec)
	assert.Len(t, eval.Selected, 2)

	rec = h.do(t, http.MethodPost, "/v1/matches/dispatch", map[string]any{
		"id":        "req_1",
		"bloodType": "A+",
		"urgency":   "critical",
		"location":  map[string]float64{"lat": -1.2921, "lng": 36.8219},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[types.BloodRequestMatch](t, rec)
	require.Len(t, m.Candidates, 2)

	rec = h.do(t, http.MethodPost, "/v1/matches/dispatch", map[string]any{
		"id":        "req_1",
		"bloodType": "A+",
		"location":  map[string]float64{"lat": -1.2921, "lng": 36.8219},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/matches/"+m.ID+"/respond", map[string]any{"donorId": "dnr_2", "response": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.MatchStatusFulfilled, decode[types.BloodRequestMatch](t, rec).Status)

	rec = h.do(t, http.MethodPost, "/v1/matches/"+m.ID+"/respond", map[string]any{"donorId": "dnr_1", "response": "accepted"})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, types.ErrAlreadyFulfilled.Error(), body.Reason)
	require.NotNil(t, body.Match)
	assert.Equal(t, types.MatchStatusFulfilled, body.Match.Status)

	rec = h.do(t, http.MethodPost, "/v1/matches/"+m.ID+"/respond", map[string]any{"donorId": "dnr_1", "response": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/matches/"+m.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.MatchStatusFulfilled, decode[types.BloodRequestMatch](t, rec).Status)

	rec = h.do(t, http.MethodGet, "/v1/matches/"+m.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]types.MatchEvent](t, rec)
	assert.Len(t, events, 3)

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bloodbridge_matches_created_total 1")
}

func TestDispatchWithoutCandidates(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/v1/matches/dispatch", map[string]any{
		"id":        "req_1",
		"bloodType": "AB-",
		"location":  map[string]float64{"lat": 10, "lng": 10},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateMatchWithUnknownDonor(t *testing.T) {
	h := newHarness(t, nil)
	h.putDonor(t, "dnr_1", types.BloodTypeONeg)

	rec := h.do(t, http.MethodPost, "/v1/matches", map[string]any{
		"requestId":    "req_1",
		"candidateIds": []string{"dnr_1", "dnr_ghost"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "dnr_ghost")

	rec = h.do(t, http.MethodPost, "/v1/matches", map[string]any{
		"requestId":    "req_1",
		"candidateIds": []string{"dnr_1"},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUnknownMatch(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/v1/matches/mat_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/candidates/cnd_missing/expire", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, &types.Config{RateLimitPerMin: 1})

	rec := h.do(t, http.MethodGet, "/v1/donors", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/donors", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// health checks are not limited
	rec = h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReportsFailingDependency(t *testing.T) {
	h := newHarness(t, nil,
		HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: connection refused") }},
	)

	rec := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decode[map[string]map[string]string](t, rec)
	assert.Equal(t, "ok", body["checks"]["postgres"])
	assert.True(t, strings.Contains(body["checks"]["redis"], "refused"))
}
