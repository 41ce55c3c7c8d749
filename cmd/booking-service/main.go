package main

import (
	"context"
	"fmt"
	"ms-booking/internal/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/events"
	"ms-booking/internal/identity"
	"ms-booking/internal/kafka"
	"ms-booking/internal/ledger"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"ms-booking/internal/payment"
	"ms-booking/internal/receipt"
	"ms-booking/internal/sse"
	"ms-booking/internal/storage"
	"ms-booking/internal/subscription"
	"ms-booking/internal/sweeper"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if config.LoadDotEnv() {
		fmt.Println("Loaded configuration from .env")
	}
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("STARTUP", "Booking service starting...")

	// --- Database ---
	db := openDatabase(ctx, cfg, log)
	defer db.Close()

	// --- Redis ---
	rdb, err := lock.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("REDIS", err.Error())
	}
	defer rdb.Close()
	log.Info("REDIS", fmt.Sprintf("Connected to Redis at %s", cfg.Redis.Addr))

	m := metrics.New()

	// --- Events ---
	var (
		emitter    events.Emitter = events.Discard{}
		dispatcher *events.Dispatcher
		producer   *kafka.Producer
	)
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, append(cfg.Kafka.Topics.All(), cfg.Kafka.GatewayTopic), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Could not ensure topics exist: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		dispatcher = events.NewDispatcher(producer, events.Topics{
			BookingStatus: cfg.Kafka.Topics.BookingStatus,
			Quote:         cfg.Kafka.Topics.Quote,
			Payment:       cfg.Kafka.Topics.Payment,
			Receipt:       cfg.Kafka.Topics.Receipt,
		}, 1024, log, m)
		dispatcher.Start()
		emitter = dispatcher
	} else {
		log.Warn("KAFKA", "Kafka disabled, domain events are discarded")
	}

	stream := sse.NewBroker()
	emitter = events.Fanout{emitter, stream}

	// --- Domain services ---
	resolver := identity.NewResolver(db, identity.NewRedisCache(rdb, cfg.Booking.IdentityCacheTTL), log)

	plans, err := subscription.LoadPlanTable(cfg.Booking.PlansFile)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Failed to load plan table: %v", err))
	}
	log.Info("CONFIG", fmt.Sprintf("Plan table %s with %d tiers", plans.Version, len(plans.Tiers)))

	quota := subscription.NewEnforcer(db, resolver, lock.NewVendorLock(rdb, cfg.Booking.LockTTL, log), plans, m, log)
	bookings := booking.NewService(db, resolver, lock.NewBookingLock(rdb, cfg.Booking.LockTTL, log), emitter, m, log, cfg.Booking.DefaultCurrency)
	ldg := ledger.NewLedger(db, bookings, emitter, m, log)

	deps := api.Deps{
		Bookings: bookings,
		Ledger:   ldg,
		Quota:    quota,
		Vendors:  resolver,
		Stream:   stream,
		Metrics:  m,
		Logger:   log,
		Health:   db.Ping,
	}

	if qr, err := receipt.NewQRGenerator(cfg.Booking.ReceiptQRSecret); err == nil {
		deps.QR = qr
	} else {
		log.Warn("RECEIPT", "RECEIPT_QR_SECRET not set, receipt QR codes disabled")
	}

	if pdf, err := receipt.NewPDFRenderer(cfg.Booking.ReceiptFontPath); err == nil {
		deps.PDF = pdf
	} else {
		log.Warn("RECEIPT", fmt.Sprintf("Receipt PDFs disabled: %v", err))
	}

	// --- Auth ---
	if cfg.Auth.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("Failed to initialize OIDC verifier: %v", err))
		}
		deps.Verifier = v
		log.Info("AUTH", fmt.Sprintf("Verifying tokens issued by %s", cfg.Auth.OIDCIssuer))
	} else if cfg.Auth.JWTSecret != "" {
		deps.Verifier = auth.NewHMACVerifier([]byte(cfg.Auth.JWTSecret))
		log.Warn("AUTH", "OIDC_ISSUER not set, verifying HS256 tokens with JWT_SECRET")
	} else {
		log.Fatal("AUTH", "Either OIDC_ISSUER or JWT_SECRET must be set")
	}

	// --- Payment gateways ---
	if cfg.Stripe.WebhookSecret != "" {
		deps.Webhook = payment.NewWebhookHandler(ldg, cfg.Stripe.WebhookSecret, log)
	}
	if gw, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, bookings, log); err == nil {
		deps.Gateway = gw
	} else {
		log.Warn("STRIPE", fmt.Sprintf("Payment intents disabled: %v", err))
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled && cfg.Kafka.GatewayTopic != "" {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GatewayTopic, cfg.Kafka.GroupID, log)
		gateway := payment.NewGatewayConsumer(ldg, log)
		go func() {
			if err := consumer.Run(ctx, gateway.Handle); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Gateway consumer stopped: %v", err))
			}
		}()
	}

	// --- Sweeper ---
	sweep := sweeper.New(db, bookings, cfg.Booking.SweepInterval, log)
	if err := sweep.Start(ctx); err != nil {
		log.Fatal("SWEEPER", err.Error())
	}

	// --- HTTP ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info("SERVER", fmt.Sprintf("Booking service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	<-ctx.Done()
	log.Info("SHUTDOWN", "Shutdown signal received. Cleaning up...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("SHUTDOWN", fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	if err := sweep.Stop(); err != nil {
		log.Error("SHUTDOWN", fmt.Sprintf("Sweeper shutdown: %v", err))
	}
	if consumer != nil {
		consumer.Close()
	}
	if dispatcher != nil {
		dispatcher.Close()
	}
	if producer != nil {
		producer.Close()
	}
	log.Info("SHUTDOWN", "Server exited gracefully")
}

// openDatabase connects to postgres with retries and applies migrations. Without
// POSTGRES_DSN it falls back to an in-memory sqlite store.
func openDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) *storage.DB {
	if cfg.Database.DSN == "" {
		log.Warn("DATABASE", "POSTGRES_DSN not set, using in-memory sqlite; data is lost on exit")
		db, err := storage.OpenSQLite(ctx)
		if err != nil {
			log.Fatal("DATABASE", err.Error())
		}
		return db
	}

	var (
		db  *storage.DB
		err error
	)
	for attempt := 1; attempt <= 10; attempt++ {
		db, err = storage.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err == nil {
			db.Bun.SetConnMaxLifetime(cfg.Database.MaxLifetime)
			if err = db.Ping(ctx); err == nil {
				break
			}
			db.Close()
		}
		log.Warn("DATABASE", fmt.Sprintf("Postgres not ready (attempt %d/10): %v", attempt, err))
		select {
		case <-ctx.Done():
			os.Exit(1)
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	log.LogDatabase("CONNECT", "postgres", "Connected to Postgres")

	if cfg.Database.AutoMigrate {
		if err := migrate(cfg.Database.DSN, log); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}
	return db
}

// migrate runs on its own connection since closing the migrator closes the pool.
func migrate(dsn string, log *logger.Logger) error {
	mdb, err := storage.Open(dsn, 1, 1)
	if err != nil {
		return err
	}
	defer mdb.Close()
	runner := migrations.NewRunner(mdb.Bun, log)
	defer runner.Close()
	return runner.MigrateUp()
}
