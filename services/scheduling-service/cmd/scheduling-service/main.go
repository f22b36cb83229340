package main

import (
	"context"
	"embed"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/frontdesk/libs/auth"
	"github.com/md-rashed-zaman/frontdesk/libs/db"
	"github.com/md-rashed-zaman/frontdesk/libs/httpx"
	"github.com/md-rashed-zaman/frontdesk/libs/kafkax"
	otelx "github.com/md-rashed-zaman/frontdesk/libs/otel"
	"github.com/md-rashed-zaman/frontdesk/libs/runtime"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/consumer"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/patients"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/storage"
)

//go:embed assets/scheduling.v1.yaml
var openAPISpec embed.FS

type appointmentStore interface {
	scheduling.Store
	patients.PatientWriter
}

func main() {
	cfg, err := loadSettings()
	logger := runtime.NewLogger(cfg.Service)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		otelShutdown = nil
	}

	clock, err := scheduling.NewClock(cfg.DemoMode, cfg.DemoDate, cfg.Zone)
	if err != nil {
		logger.Error("invalid clock configuration", "err", err)
		os.Exit(1)
	}
	if cfg.DemoMode {
		logger.Info("demo mode", "business_date", cfg.Zone.Today(clock).String(), "zone", cfg.Zone.String())
	}

	var (
		store   appointmentStore
		inboxes consumer.Inbox
		checks  []runtime.ReadyCheck
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := storage.NewPostgres(pool)
		if cfg.MigrateOnStart {
			if err := pg.Migrate(ctx); err != nil {
				logger.Error("migration failed", "err", err)
				os.Exit(1)
			}
			logger.Info("schema migrated")
		}
		store = pg
		inboxes = inbox.NewRepository(pool)
		checks = append(checks,
			runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
			runtime.ReadyCheck{Name: "schema", Check: pg.ReadyCheck},
		)

		outboxPublisher := outbox.NewPublisher(pool, outbox.NewRepository(pool), logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go outboxPublisher.Run(ctx)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		store = storage.NewMemory()
		inboxes = inbox.NewMemory()
	}

	if cfg.DemoMode {
		for _, id := range cfg.DemoPatientIDs {
			if err := store.UpsertPatient(ctx, model.Patient{ID: id, Name: id}); err != nil {
				logger.Error("seed patient failed", "err", err, "patient_id", id)
			}
		}
	}

	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		if cfg.KafkaPatientTopic != "" {
			patientSync := patients.NewSync(store, logger)
			patientConsumer := consumer.New(logger, inboxes, consumer.Config{
				Brokers:     cfg.KafkaBrokers,
				GroupID:     cfg.KafkaGroupID,
				Topic:       cfg.KafkaPatientTopic,
				MaxAttempts: cfg.KafkaMaxAttempts,
			}, func(ctx context.Context, msg kafka.Message) error {
				return patientSync.Handle(ctx, msg)
			})
			go patientConsumer.Run(ctx)
		}
	}

	manager := scheduling.NewManager(store, clock, logger, scheduling.Config{
		Zone:            cfg.Zone,
		BackfillHorizon: cfg.BackfillHorizon,
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewAppointmentHandler(manager, logger).Register(mux)
	mux.HandleFunc("/openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/scheduling.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(data)
	})

	var limiter httpx.Limiter
	if cfg.RateLimitPerMinute > 0 {
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer func() { _ = rdb.Close() }()
			limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "rl:"+cfg.Service)
			logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimitPerMinute, "redis_addr", cfg.RedisAddr)
		} else {
			limiter = httpx.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
			logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimitPerMinute)
		}
	}
	var rateLimit httpx.Middleware
	if limiter != nil {
		rateLimit = httpx.WithRateLimit(limiter, logger, cfg.RateLimitFailOpen)
	}

	var jwks auth.KeySource
	if cfg.AuthJWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.AuthJWKSURL, 5*time.Minute)
	}
	verifier := auth.NewVerifier(cfg.AuthJWTSecret, jwks)
	if verifier.Enabled() {
		logger.Info("bearer auth enabled", "jwks", cfg.AuthJWKSURL != "", "shared_secret", cfg.AuthJWTSecret != "")
	} else {
		logger.Warn("bearer auth disabled; set AUTH_JWT_SECRET or AUTH_JWKS_URL")
	}

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, "/healthz", "/readyz"),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		auth.RequireBearer(verifier, "/api/"),
		rateLimit,
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "zone", cfg.Zone.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if err := startGrpcServer(ctx, logger, cfg.GRPCPort, checks); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	runtime.Shutdown(logger, 10*time.Second,
		runtime.ShutdownStep{Name: "http", Fn: srv.Shutdown},
		runtime.ShutdownStep{Name: "otel", Fn: otelShutdown},
	)
	logger.Info("http server stopped")
}
