// Server runs the MeetMate auth API over HTTP and a gRPC health endpoint.
// Configuration comes from the environment and an optional .env (see internal/config).
package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit"
	auditrepo "github.com/Jaldeepsinh-Gohil/MeetMate/internal/audit/repository"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/config"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/credential"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/db"
	healthhandler "github.com/Jaldeepsinh-Gohil/MeetMate/internal/health/handler"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/observability/metrics"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/policy/engine"
	principalrepo "github.com/Jaldeepsinh-Gohil/MeetMate/internal/principal/repository"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/security"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/server"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/server/middleware"
	sessionhandler "github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/handler"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/issuer"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/repository"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry"
	telemetryotel "github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry/otel"
	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/telemetry/producer"
)

const serviceName = "meetmate-auth"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := tokenProvider(cfg, log)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}

	var conn *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(ctx, cfg.DatabaseURL, db.DefaultPool)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer conn.Close()
	}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("otel shutdown")
		}
	}()

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		kp, err := producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		defer kp.Close()
		emitters = append(emitters, kp)
		log.WithField("topic", cfg.TelemetryKafkaTopic).Info("telemetry: publishing to kafka")
	}
	events := telemetry.Multi(emitters...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, serviceName)

	store, err := sessionStore(cfg, conn, log)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}

	var principals principalrepo.Repository = principalrepo.NewMemoryRepository()
	var auditLogger audit.AuditLogger
	if conn != nil {
		principals = principalrepo.NewPostgresRepository(conn)
		auditLogger = audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.GetClientIP, log)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwords := credential.NewPasswordVerifier(principals, hasher, credential.PasswordOptions{
		MaxFailures:   cfg.LoginMaxFailures,
		Lockout:       cfg.LoginLockout,
		RatePerMinute: cfg.LoginRatePerMinute,
	})
	iss := issuer.New(store, tokens, cfg.RefreshTTL(),
		issuer.WithLogger(log),
		issuer.WithAuditLogger(auditLogger),
		issuer.WithEventEmitter(events),
		issuer.WithMetrics(m),
		issuer.WithTracer(providers.Tracer("meetmate/session")),
	)

	policy, err := engine.NewOPAEvaluator(ctx, log)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	checks := map[string]healthhandler.Check{"policy": healthhandler.PolicyCheck(policy)}
	if p, ok := store.(repository.Pinger); ok {
		checks["session_store"] = p.Ping
	}
	if conn != nil {
		checks["database"] = healthhandler.PingCheck(conn)
	}
	checker := healthhandler.NewChecker(checks)

	router := server.NewRouter(server.Deps{
		Auth: &sessionhandler.Handler{
			Registrar:  credential.NewRegistrar(principals, hasher),
			Verifier:   credential.NewMux().Handle(credential.KindPassword, passwords),
			Issuer:     iss,
			Principals: principals,
			Audit:      auditLogger,
			Events:     events,
			Metrics:    m,
			Log:        log,
		},
		Health: healthhandler.NewHTTP(checker, map[string]string{
			"service":       serviceName,
			"env":           cfg.Env,
			"session_store": cfg.SessionStore,
		}, log),
		Tokens:             tokens,
		Policy:             policy,
		SessionValidator:   server.SessionLive(store),
		Metrics:            m,
		Gatherer:           reg,
		Events:             events,
		CORSOrigins:        cfg.CORSOriginsList(),
		RateLimitPerMinute: 300,
		RequestTimeout:     cfg.VerifyTimeout + cfg.RotateTimeout,
		Log:                log,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 2)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		health := healthhandler.NewGRPC(checker, log)
		go health.Run(ctx, 10*time.Second)
		grpcSrv := server.NewGRPCServer(health)
		go func() {
			log.WithField("addr", cfg.GRPCAddr).Info("gRPC health server listening")
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- err
			}
		}()
		defer grpcSrv.GracefulStop()
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		log.WithError(err).Error("server failed")
		stop()
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown")
	}
	if err := telemetry.Drain(shutdownCtx); err != nil {
		log.WithError(err).Warn("telemetry drain")
	}
	log.Info("server stopped")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// tokenProvider loads the signing keys from config, or generates an ephemeral pair
// outside production so local runs need no key material.
func tokenProvider(cfg *config.Config, log logrus.FieldLogger) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		priv, pub, err := security.GenerateEphemeralKey()
		if err != nil {
			return nil, err
		}
		log.Warn("JWT_PRIVATE_KEY/JWT_PUBLIC_KEY not set; using an ephemeral key, tokens will not survive a restart")
		return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()).WithLeeway(cfg.ClockSkew), nil
	}
	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()).WithLeeway(cfg.ClockSkew), nil
}

// sessionStore builds the configured store. Networked stores sit behind a circuit breaker.
func sessionStore(cfg *config.Config, conn *sql.DB, log logrus.FieldLogger) (repository.Store, error) {
	settings := repository.DefaultBreakerSettings()
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("session store circuit changed state")
	}
	switch cfg.SessionStore {
	case config.StorePostgres:
		if conn == nil {
			return nil, errors.New("postgres session store requires DATABASE_URL")
		}
		return repository.NewBreaker(repository.NewPostgresStore(conn), settings), nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return repository.NewBreaker(repository.NewRedisStore(client), settings), nil
	default:
		log.Warn("using in-memory session store; sessions are lost on restart")
		return repository.NewMemoryStore(), nil
	}
}
