package server

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"bloodbridge/internal/candidate"
	"bloodbridge/internal/donation"
	"bloodbridge/internal/eligibility"
	"bloodbridge/internal/match"
	"bloodbridge/internal/metrics"
	"bloodbridge/internal/schedule"
	"bloodbridge/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var decoder = newDecoder()

func newDecoder() *form.Decoder {
	d := form.NewDecoder()
	d.RegisterCustomTypeFunc(func(vals []string) (any, error) {
		return time.Parse(time.RFC3339, vals[0])
	}, time.Time{})
	return d
}

// DonorStore is the donor profile persistence the HTTP surface edits
// directly.
type DonorStore interface {
	Donor(ctx context.Context, donorID string) (*types.DonorProfile, error)
	Donors(ctx context.Context) ([]*types.DonorProfile, error)
	UpsertDonor(ctx context.Context, donor *types.DonorProfile) error
}

// HealthCheck is one dependency probed by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Donors      DonorStore
	Schedules   *schedule.Service
	Eligibility *eligibility.Service
	Donations   *donation.Service
	Selector    *candidate.Selector
	Coordinator *match.Coordinator
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Health      []HealthCheck
}

type Service struct {
	logger logrus.FieldLogger
	config *types.Config

	donors      DonorStore
	schedules   *schedule.Service
	eligibility *eligibility.Service
	donations   *donation.Service
	selector    *candidate.Selector
	coordinator *match.Coordinator
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	health      []HealthCheck

	limiters       *limiterStore
	trustedProxies []netip.Prefix

	jwksCache *jwk.Cache
	jwksURL   string

	handler http.Handler
	server  *http.Server
}

// New builds the JSON API. jwkCache may be nil, in which case requests
// are not authenticated.
func New(
	config *types.Config,
	logger logrus.FieldLogger,
	deps Deps,
	jwkCache *jwk.Cache,
) *Service {
	mux := flow.New()

	perMinute := config.RateLimitPerMin
	if perMinute <= 0 {
		perMinute = 600
	}

	s := &Service{
		logger: logger,
		config: config,

		donors:      deps.Donors,
		schedules:   deps.Schedules,
		eligibility: deps.Eligibility,
		donations:   deps.Donations,
		selector:    deps.Selector,
		coordinator: deps.Coordinator,
		metrics:     deps.Metrics,
		gatherer:    deps.Gatherer,
		health:      deps.Health,

		limiters: newLimiterStore(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),

		jwksCache: jwkCache,
		jwksURL:   config.AuthJWKSURL,
		handler:   mux,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	proxies, err := ParseTrustedProxies(config.TrustedProxies)
	if err != nil {
		logger.WithError(err).Warn("ignoring invalid trusted proxies")
	}
	s.trustedProxies = proxies

	s.buildRouter(mux)

	return s
}

func (s *Service) Handler() http.Handler {
	return s.handler
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.StripTrailingSlash)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}), http.MethodGet)
	}

	r.Group(func(r *flow.Mux) {
		r.Use(s.RateLimit)
		r.Use(s.RequireAuth)

		r.HandleFunc("/v1/donors", s.handleListDonors, http.MethodGet)
		r.HandleFunc("/v1/donors/:donorID", s.handleGetDonor, http.MethodGet)
		r.HandleFunc("/v1/donors/:donorID", s.handlePutDonor, http.MethodPut)
		r.HandleFunc("/v1/donors/:donorID/eligibility", s.handleGetEligibility, http.MethodGet)
		r.HandleFunc("/v1/donors/:donorID/availability", s.handleGetAvailability, http.MethodGet)

		r.HandleFunc("/v1/donors/:donorID/schedule", s.handleGetSchedule, http.MethodGet)
		r.HandleFunc("/v1/donors/:donorID/schedule/enabled", s.handlePutScheduleEnabled, http.MethodPut)
		r.HandleFunc("/v1/donors/:donorID/schedule/slots", s.handlePostWeeklySlot, http.MethodPost)
		r.HandleFunc("/v1/donors/:donorID/schedule/slots/:slotID", s.handlePutWeeklySlot, http.MethodPut)
		r.HandleFunc("/v1/donors/:donorID/schedule/slots/:slotID", s.handleDeleteWeeklySlot, http.MethodDelete)
		r.HandleFunc("/v1/donors/:donorID/schedule/ranges", s.handlePostCustomRange, http.MethodPost)
		r.HandleFunc("/v1/donors/:donorID/schedule/ranges/:rangeID", s.handlePutCustomRange, http.MethodPut)
		r.HandleFunc("/v1/donors/:donorID/schedule/ranges/:rangeID", s.handleDeleteCustomRange, http.MethodDelete)

		r.HandleFunc("/v1/donors/:donorID/donations", s.handleListDonations, http.MethodGet)
		r.HandleFunc("/v1/donors/:donorID/donations", s.handlePostDonation, http.MethodPost)
		r.HandleFunc("/v1/donations/:recordID", s.handleGetDonation, http.MethodGet)
		r.HandleFunc("/v1/donations/:recordID/audit", s.handleGetAuditTrail, http.MethodGet)
		r.HandleFunc("/v1/donations/:recordID/verify", s.handleVerifyDonation, http.MethodPost)
		r.HandleFunc("/v1/donations/:recordID/reject", s.handleRejectDonation, http.MethodPost)
		r.HandleFunc("/v1/donations/:recordID/amend", s.handleAmendDonation, http.MethodPost)
		r.HandleFunc("/v1/donations/:recordID/lock", s.handleLockDonation, http.MethodPost)
		r.HandleFunc("/v1/donations/:recordID/unlock", s.handleUnlockDonation, http.MethodPost)

		r.HandleFunc("/v1/candidates", s.handlePreviewCandidates, http.MethodGet)

		r.HandleFunc("/v1/matches", s.handleCreateMatch, http.MethodPost)
		r.HandleFunc("/v1/matches/dispatch", s.handleDispatch, http.MethodPost)
		r.HandleFunc("/v1/matches/:matchID", s.handleGetMatch, http.MethodGet)
		r.HandleFunc("/v1/matches/:matchID/events", s.handleGetMatchEvents, http.MethodGet)
		r.HandleFunc("/v1/matches/:matchID/respond", s.handleRespond, http.MethodPost)
		r.HandleFunc("/v1/matches/:matchID/cancel", s.handleCancel, http.MethodPost)
		r.HandleFunc("/v1/candidates/:candidateID/expire", s.handleExpireCandidate, http.MethodPost)
	})
}

func (s *Service) actorFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(contextKeyUserID).(string)
	return userID
}
