// Package main provides the main entry point for the donation ledger service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/donation-ledger/app/handlers"
	"github.com/amirphl/donation-ledger/app/middleware"
	"github.com/amirphl/donation-ledger/app/router"
	"github.com/amirphl/donation-ledger/app/scheduler"
	"github.com/amirphl/donation-ledger/app/services"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/amirphl/donation-ledger/config"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	stopFuncs []func()
}

func main() {
	log.Println("Starting donation ledger...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	configureLogging(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// configureLogging routes the standard logger to stdout, a rotated file, or both
func configureLogging(cfg config.LoggingConfig) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	if cfg.EnableCaller {
		log.SetFlags(log.Flags() | log.Lshortfile)
	}
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return
	}

	file := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if cfg.Output == "both" {
		log.SetOutput(io.MultiWriter(os.Stdout, file))
		return
	}
	log.SetOutput(file)
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	var slowThreshold time.Duration
	if cfg.SlowQueryLog {
		slowThreshold = cfg.SlowQueryTime
	}

	// TranslateError maps unique violations to gorm.ErrDuplicatedKey
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         repository.NewGormLogger(log.New(log.Writer(), "[gorm] ", log.LstdFlags|log.LUTC), logLevel, slowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client backing the campaign ledger lock
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB
	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis. The returned function stops it.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

func initializeNotificationService(cfg config.EmailConfig) services.NotificationService {
	if !cfg.Enabled {
		return services.NewNotificationService(services.NewMockEmailProvider())
	}
	return services.NewNotificationService(
		services.NewSMTPEmailProvider(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.FromEmail, cfg.FromName, cfg.RetryAttempts),
	)
}

func initializePaymentGateway(cfg config.RazorpayConfig) services.PaymentGateway {
	if cfg.UseMock {
		log.Println("Using mock payment gateway")
		return services.NewMockPaymentGateway()
	}
	return services.NewRazorpayClient(cfg.BaseURL, cfg.KeyID, cfg.KeySecret, cfg.Timeout)
}

func initializeBlobStore(cfg config.BlobConfig) (services.BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := services.NewS3BlobStore(ctx, cfg.Region, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	log.Printf("Ledger exports will be archived to s3://%s/%s", cfg.Bucket, cfg.Prefix)
	return store, nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	var locker services.CampaignLocker = services.NoopCampaignLocker{}
	if rc != nil {
		locker = services.NewRedisCampaignLocker(rc, cfg.Cache.RedisPrefix, cfg.Donation.LockTTL, cfg.Donation.LockWait)
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval))
	} else {
		log.Println("Redis disabled; disbursements rely on the database guard only")
	}

	// Initialize repositories
	campaignRepo := repository.NewCampaignRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	transactor := repository.NewTransactor(db)

	// Initialize services
	notificationService := initializeNotificationService(cfg.Email)
	gateway := initializePaymentGateway(cfg.Razorpay)
	verifier := services.NewHMACSignatureVerifier(cfg.Razorpay.KeySecret, cfg.Razorpay.WebhookSecret)

	blobStore, err := initializeBlobStore(cfg.Blob)
	if err != nil {
		return nil, err
	}

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Initialize flows
	fundLedger := businessflow.NewFundLedger(campaignRepo)
	txnLedger := businessflow.NewTransactionLedger(transactionRepo)

	processor := businessflow.NewConfirmationProcessor(
		donationRepo,
		campaignRepo,
		auditRepo,
		transactor,
		fundLedger,
		txnLedger,
		verifier,
		notificationService,
	)

	donationFlow := businessflow.NewDonationFlow(
		donationRepo,
		campaignRepo,
		transactionRepo,
		auditRepo,
		gateway,
		verifier,
		processor,
		cfg.Donation,
		cfg.Razorpay,
	)

	disbursementFlow := businessflow.NewDisbursementFlow(
		campaignRepo,
		auditRepo,
		transactor,
		fundLedger,
		txnLedger,
		locker,
		notificationService,
	)

	reportFlow := businessflow.NewLedgerReportFlow(
		campaignRepo,
		donationRepo,
		transactionRepo,
		auditRepo,
		transactor,
		txnLedger,
		blobStore,
	)

	adminAuthFlow := businessflow.NewAdminAuthFlow(adminRepo, auditRepo, tokenService)

	if err := ensureBootstrapAdmin(adminAuthFlow, cfg.Admin); err != nil {
		return nil, err
	}

	// Initialize handlers
	appRouter := router.NewFiberRouter(
		cfg,
		router.Handlers{
			Donation:       handlers.NewDonationHandler(donationFlow),
			CampaignLedger: handlers.NewCampaignLedgerHandler(reportFlow, disbursementFlow),
			Admin:          handlers.NewAdminHandler(adminAuthFlow, reportFlow),
		},
		middleware.NewAuthMiddleware(tokenService),
	)

	if cfg.Scheduler.LedgerAuditEnabled {
		sched := scheduler.NewLedgerAuditScheduler(
			reportFlow,
			scheduler.NewFileLogger(cfg.Logging, "[ledger-audit] "),
			cfg.Scheduler.LedgerAuditInterval,
		)
		stopFuncs = append(stopFuncs, sched.Start(context.Background()))
	}

	return &Application{
		router:    appRouter,
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}

// ensureBootstrapAdmin seeds the first operator so a fresh deployment can log in
func ensureBootstrapAdmin(flow businessflow.AdminAuthFlow, cfg config.AdminConfig) error {
	if cfg.BootstrapUsername == "" || cfg.BootstrapPasswordHash == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, created, err := flow.EnsureAdmin(ctx, cfg.BootstrapUsername, cfg.BootstrapPasswordHash)
	if err != nil {
		return fmt.Errorf("failed to ensure bootstrap admin: %w", err)
	}
	if created {
		log.Printf("Created bootstrap admin %q (id=%d)", admin.Username, admin.ID)
	}
	return nil
}
