package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"tripwire/config"
	"tripwire/database"
	"tripwire/interfaces"
	"tripwire/repositories"
	"tripwire/routes"
	"tripwire/services"
	"tripwire/utils"
	"tripwire/workers"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	// Initialize configuration
	cfg := config.Load()

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize logger
	setupLogger(cfg)

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatal("Failed to connect to database: ", err)
	}
	defer database.Disconnect()

	// Initialize Redis
	redis := config.InitRedis(cfg)
	defer redis.Close()

	// Repositories
	recipientRepo := repositories.NewRecipientRepository(db)
	deliveryLogRepo := repositories.NewDeliveryLogRepository(db)
	bounceRepo := repositories.NewBounceRepository(db)
	badgeRepo := repositories.NewBadgeRepository(db)

	// The delivery ceilings need an atomic counter shared across instances.
	// Fall back to the in-process limiter when Redis is unreachable so a
	// single-instance deployment still dispatches.
	var limiter interfaces.RateLimiter
	if err := redis.Ping(context.Background()).Err(); err != nil {
		logrus.Warnf("Redis unavailable, using in-memory rate limiter: %v", err)
		limiter = utils.NewMemoryRateLimiter()
	} else {
		limiter = services.NewRedisRateLimiter(redis, "ratelimit")
	}

	// Services
	entitlementService := services.NewEntitlementService()
	bounceService := services.NewBounceService(bounceRepo, cfg.SoftBounceThreshold)
	badgeService := services.NewBadgeService(badgeRepo)

	senders := buildChannelSenders(cfg)

	dispatchService := services.NewDispatchService(
		recipientRepo,
		deliveryLogRepo,
		bounceService,
		badgeService,
		limiter,
		entitlementService,
		senders,
		cfg.DispatchConfig(),
	)

	// Async dispatch worker
	dispatchWorker := workers.NewDispatchWorker(dispatchService, workers.DispatchWorkerConfig{
		WorkerCount: cfg.WorkerCount,
		QueueSize:   cfg.QueueSize,
	})
	dispatchWorker.Start()

	// Retention worker
	retentionWorker := workers.NewRetentionWorker(db, redis, workers.RetentionWorkerConfig{
		DeliveryLogRetentionDays: cfg.DeliveryLogRetentionDays,
	})
	retentionWorker.Start()

	// Setup routes
	router := routes.SetupRoutes(routes.Dependencies{
		Environment:     cfg.Environment,
		Redis:           redis,
		JWTService:      utils.NewJWTService(cfg.JWTSecret),
		DispatchService: dispatchService,
		DispatchWorker:  dispatchWorker,
		BounceService:   bounceService,
		BadgeService:    badgeService,
		DeliveryLogRepo: deliveryLogRepo,
		RecipientRepo:   recipientRepo,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in goroutine
	go func() {
		logrus.Info("Tripwire notification service starting on port ", cfg.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatal("Server forced to shutdown: ", err)
	}

	// Drain queued dispatch jobs before the database connection goes away
	dispatchWorker.Stop()
	retentionWorker.Stop()

	logrus.Info("Server shutdown complete")
}

// buildChannelSenders constructs one sender per configured provider. A
// channel with missing credentials is skipped with a warning rather than
// failing startup; dispatch reports those targets as channel unavailable.
func buildChannelSenders(cfg *config.Config) []interfaces.ChannelSender {
	var senders []interfaces.ChannelSender

	pushService, err := services.NewPushService(context.Background(), cfg.FirebaseCredentialsPath, cfg.FirebaseProjectID)
	if err != nil {
		logrus.Warnf("Push channel disabled: %v", err)
	} else {
		senders = append(senders, pushService)
	}

	if cfg.EmailProvider == "mock" || cfg.SMTPHost == "" {
		logrus.Warn("SMTP not configured, using mock email sender")
		senders = append(senders, services.NewMockEmailService())
	} else {
		emailService, err := services.NewEmailService(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, cfg.BaseURL,
		)
		if err != nil {
			logrus.Warnf("Email channel disabled: %v", err)
		} else {
			senders = append(senders, emailService)
		}
	}

	smsService, err := services.NewSMSService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	if err != nil {
		logrus.Warnf("SMS channel disabled: %v", err)
	} else {
		senders = append(senders, smsService)
	}

	return senders
}

func setupLogger(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
