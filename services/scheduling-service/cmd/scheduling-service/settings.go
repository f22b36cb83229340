package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/frontdesk/libs/config"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/scheduling"
)

type settings struct {
	Service        string
	Port           string
	GRPCPort       string
	DatabaseURL    string
	MigrateOnStart bool

	Zone            scheduling.Zone
	BackfillHorizon time.Duration
	DemoMode        bool
	DemoDate        string
	DemoPatientIDs  []string

	KafkaBrokers      string
	KafkaGroupID      string
	KafkaPatientTopic string
	KafkaMaxAttempts  int

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int
	RateLimitFailOpen  bool

	AuthJWTSecret string
	AuthJWKSURL   string

	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	RequestTimeout     time.Duration
}

// loadSettings reads the environment and reports every invalid value at once.
func loadSettings() (settings, error) {
	var (
		s    settings
		errs []error
		err  error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	s.Service = config.String("SERVICE_NAME", "scheduling-service")
	s.Port, err = config.Port("PORT", "8085")
	collect(err)
	s.GRPCPort, err = config.Port("GRPC_PORT", "9095")
	collect(err)
	s.DatabaseURL = strings.TrimSpace(config.String("DATABASE_URL", ""))
	s.MigrateOnStart, err = config.Bool("MIGRATE_ON_START", true)
	collect(err)

	offset, err := config.Int("BUSINESS_TZ_OFFSET_MINUTES", 9*60, -12*60)
	collect(err)
	if offset > 14*60 {
		collect(fmt.Errorf("BUSINESS_TZ_OFFSET_MINUTES must be <= %d (got %d)", 14*60, offset))
	}
	s.Zone = scheduling.NewZone(config.String("BUSINESS_TZ_NAME", "JST"), time.Duration(offset)*time.Minute)

	horizonDays, err := config.Int("BACKFILL_HORIZON_DAYS", 0, 0)
	collect(err)
	s.BackfillHorizon = time.Duration(horizonDays) * 24 * time.Hour

	s.DemoMode, err = config.Bool("DEMO_MODE", false)
	collect(err)
	s.DemoDate = config.String("DEMO_DATE", "")
	s.DemoPatientIDs = config.List("DEMO_PATIENT_IDS", "")
	if s.DatabaseURL == "" && !s.DemoMode {
		collect(errors.New("DATABASE_URL is required unless DEMO_MODE is on"))
	}

	s.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	s.KafkaGroupID = config.String("KAFKA_GROUP_ID", "scheduling-service")
	s.KafkaPatientTopic = config.String("KAFKA_PATIENT_TOPIC", "frontdesk.patient.upserted.v1")
	s.KafkaMaxAttempts, err = config.Int("KAFKA_MAX_ATTEMPTS", 10, 0)
	collect(err)

	s.RedisAddr = strings.TrimSpace(config.String("REDIS_ADDR", ""))
	s.RedisPassword = config.String("REDIS_PASSWORD", "")
	s.RedisDB, err = config.Int("REDIS_DB", 0, 0)
	collect(err)
	s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120, 0)
	collect(err)
	s.RateLimitFailOpen, err = config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	collect(err)

	s.AuthJWTSecret = config.String("AUTH_JWT_SECRET", "")
	s.AuthJWKSURL = strings.TrimSpace(config.String("AUTH_JWKS_URL", ""))

	s.CORSAllowedOrigins = config.List("CORS_ALLOWED_ORIGINS", "")
	limit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1)
	collect(err)
	s.BodyLimitBytes = int64(limit)
	timeout, err := config.Int("REQUEST_TIMEOUT_SECONDS", 15, 1)
	collect(err)
	s.RequestTimeout = time.Duration(timeout) * time.Second

	return s, errors.Join(errs...)
}
