// Package main initializes and starts the DigitalPass HTTP server, setting up
// configuration, logging, storage, sessions, event publishing, services and
// handlers.
package main

import (
	"cmp"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/atinyakov/DigitalPass/internal/config"
	"github.com/atinyakov/DigitalPass/internal/db"
	"github.com/atinyakov/DigitalPass/internal/events"
	"github.com/atinyakov/DigitalPass/internal/logger"
	"github.com/atinyakov/DigitalPass/internal/metrics"
	"github.com/atinyakov/DigitalPass/internal/payment"
	"github.com/atinyakov/DigitalPass/internal/repository"
	"github.com/atinyakov/DigitalPass/internal/server/handler/http"
	"github.com/atinyakov/DigitalPass/internal/service"
	"github.com/atinyakov/DigitalPass/internal/session"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// stores bundles the repositories backing the services.
type stores struct {
	auth         service.AuthRepository
	applications interface {
		service.ApplicationRepository
		service.ApprovalRepository
		db.Purger
	}
}

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, options, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init storage", zap.Error(err))
	}

	sessionStore, err := openSessions(ctx, options, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init session store", zap.Error(err))
	}
	secret := options.JWTSecret
	if secret == "" {
		secret = rand.Text()
		zapLogger.Warn("no session secret configured, tokens will not survive a restart")
	}
	sessions := session.NewManager(sessionStore, secret, options.SessionTTL)

	publisher, closeEvents, err := openEvents(options, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot connect to nats", zap.Error(err))
	}
	defer closeEvents()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Remove applications that were committed but never paid for.
	db.StartAbandonedCleaner(ctx, st.applications,
		options.CleanupInterval,
		options.PendingRetention,
		zapLogger,
		m.AddPurged,
	)

	// Initialize business-logic services.
	authService := service.NewAuthService(st.auth, sessions, publisher, zapLogger)
	paymentService := service.NewPaymentService(st.applications, sessions,
		payment.NewSimulatedSettler(options.SettlementDelay), publisher, m, zapLogger)
	applicationService := service.NewApplicationService(st.applications, sessions, paymentService, publisher, m, zapLogger)

	// Build the router with middleware and routes.
	router := http.NewRouter(http.Routes{
		Auth:        &http.AuthHandler{AuthService: authService, Log: zapLogger},
		Application: &http.ApplicationHandler{ApplicationService: applicationService, Log: zapLogger},
		Payment:     &http.PaymentHandler{PaymentService: paymentService, Log: zapLogger},
		Sessions:    sessions,
		Gatherer:    reg,
		CORSOrigins: options.CORSOrigins,
		Log:         zapLogger,
	})

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

// openStores connects PostgreSQL and applies migrations, or falls back to the
// in-memory store when no DSN is configured.
func openStores(ctx context.Context, options *config.Options, log *zap.Logger) (stores, error) {
	if options.DatabaseDSN == "" {
		log.Warn("no database configured, using in-memory store")
		mem := repository.NewMemoryStore()
		return stores{auth: mem, applications: mem}, nil
	}

	postgresDB, err := db.InitPostgres(ctx, options.DatabaseDSN)
	if err != nil {
		return stores{}, err
	}
	if err := db.Migrate(ctx, postgresDB); err != nil {
		return stores{}, err
	}
	return stores{
		auth:         repository.NewPostgresAuthRepository(postgresDB),
		applications: repository.NewPostgresApplicationRepository(postgresDB),
	}, nil
}

// openSessions returns the Redis session store, or an in-memory store swept
// every minute.
func openSessions(ctx context.Context, options *config.Options, log *zap.Logger) (session.Store, error) {
	if options.RedisURL == "" {
		mem := session.NewMemoryStore()
		session.StartSweeper(ctx, mem, time.Minute, log)
		return mem, nil
	}
	client, err := session.ConnectRedis(ctx, options.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info("sessions stored in redis")
	return session.NewRedisStore(client), nil
}

// openEvents returns the NATS publisher, or a log publisher when NATS is not
// configured. The returned func releases the connection.
func openEvents(options *config.Options, log *zap.Logger) (events.Publisher, func(), error) {
	if options.NATSURL == "" {
		return events.NewLogPublisher(log), func() {}, nil
	}
	conn, err := events.ConnectNATS(options.NATSURL, log)
	if err != nil {
		return nil, nil, err
	}
	return events.NewNATSPublisher(conn, options.NATSSubjectPrefix, log), func() { _ = conn.Drain() }, nil
}
