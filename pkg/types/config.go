package types

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	DatabaseSchema  string `envconfig:"DATABASE_SCHEMA" default:"bloodbridge"`
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"15"`
	RateLimitPerMin int    `envconfig:"RATE_LIMIT_PER_MIN" default:"600"`

	// Peers allowed to set X-Forwarded-For, as addresses or CIDR prefixes.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	// Bearer token verification. Auth is skipped when the JWKS url is empty.
	AuthJWKSURL string `envconfig:"AUTH_JWKS_URL"`

	// Redis backs the expiry timers and the notification queue.
	// Without it notifications are only logged and expiry relies on the sweep.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// S3 bucket receiving donation override audit entries
	AuditBucket string `envconfig:"AUDIT_BUCKET"`

	// Matching policy
	MinDonationIntervalDays     int     `envconfig:"MIN_DONATION_INTERVAL_DAYS" default:"90"`
	ScheduleLookaheadDays       int     `envconfig:"SCHEDULE_LOOKAHEAD_DAYS" default:"90"`
	CandidateResponseTimeoutSec int     `envconfig:"CANDIDATE_RESPONSE_TIMEOUT_SEC" default:"1800"`
	PendingCandidacyCap         int     `envconfig:"PENDING_CANDIDACY_CAP" default:"3"`
	AcceptanceHoldHours         int     `envconfig:"ACCEPTANCE_HOLD_HOURS" default:"72"`
	FairnessWindowDays          int     `envconfig:"FAIRNESS_WINDOW_DAYS" default:"30"`
	SearchRadiusKm              float64 `envconfig:"SEARCH_RADIUS_KM" default:"50"`
	MaxCandidates               int     `envconfig:"MAX_CANDIDATES" default:"20"`

	// cron spec for the overdue candidate sweep run by the expirer
	SweepSchedule string `envconfig:"SWEEP_SCHEDULE" default:"@every 1m"`
}
