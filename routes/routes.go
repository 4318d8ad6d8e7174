package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"tripwire/controllers"
	"tripwire/middleware"
	"tripwire/repositories"
	"tripwire/services"
	"tripwire/utils"
	"tripwire/workers"
)

// Dependencies carries everything the router wires together. The provider
// clients behind DispatchService are constructed in main because they need
// credentials and may be partially unavailable.
type Dependencies struct {
	Environment     string
	Redis           *redis.Client
	JWTService      *utils.JWTService
	DispatchService *services.DispatchService
	DispatchWorker  *workers.DispatchWorker
	BounceService   *services.BounceService
	BadgeService    *services.BadgeService
	DeliveryLogRepo *repositories.DeliveryLogRepository
	RecipientRepo   *repositories.RecipientRepository
}

var startTime = time.Now()

// SetupRoutes initializes all application routes
func SetupRoutes(deps Dependencies) *gin.Engine {
	router := gin.New()

	validator := utils.NewValidationService()

	notificationController := controllers.NewNotificationController(
		deps.DispatchService,
		deps.DispatchWorker,
		deps.DeliveryLogRepo,
		validator,
	)
	badgeController := controllers.NewBadgeController(deps.BadgeService)
	webhookController := controllers.NewWebhookController(deps.BounceService, validator)
	preferenceController := controllers.NewPreferenceController(deps.RecipientRepo, validator)

	authMiddleware := middleware.NewAuthMiddleware(deps.JWTService)
	errorHandler := middleware.NewErrorHandler(deps.Environment, logrus.StandardLogger())

	setupGlobalMiddleware(router, deps, errorHandler)
	setupPublicRoutes(router, deps, webhookController)
	setupAuthenticatedRoutes(router, deps, authMiddleware, notificationController, badgeController, preferenceController)
	setupAdminRoutes(router, deps, authMiddleware, webhookController, notificationController)

	return router
}

func setupGlobalMiddleware(router *gin.Engine, deps Dependencies, errorHandler *middleware.ErrorHandler) {
	router.Use(gin.Recovery())
	router.Use(middleware.DefaultLoggerMiddleware())
	router.Use(errorHandler.Handle())
	router.Use(middleware.CORSMiddleware(deps.Environment))
	router.Use(middleware.DefaultRateLimit(deps.Redis))
}

func setupPublicRoutes(router *gin.Engine, deps Dependencies, webhookController *controllers.WebhookController) {
	router.GET("/health", func(c *gin.Context) {
		services := map[string]string{
			"redis": "up",
		}
		if err := deps.Redis.Ping(c.Request.Context()).Err(); err != nil {
			services["redis"] = "down"
		}
		c.JSON(200, utils.HealthCheckResponse(services, "1.0.0", time.Since(startTime).String()))
	})

	// Provider callbacks authenticate out of band (signature headers /
	// source allowlists at the edge), not with user tokens.
	webhooks := router.Group("/webhooks")
	webhooks.Use(middleware.WebhookRateLimit(deps.Redis))
	{
		webhooks.POST("/email/bounce", webhookController.EmailBounce)
		webhooks.POST("/sms/status", webhookController.SMSStatus)
	}
}

func setupAuthenticatedRoutes(
	router *gin.Engine,
	deps Dependencies,
	authMiddleware *middleware.AuthMiddleware,
	notificationController *controllers.NotificationController,
	badgeController *controllers.BadgeController,
	preferenceController *controllers.PreferenceController,
) {
	api := router.Group("/api/v1")
	api.Use(authMiddleware.RequireAuth())

	notifications := api.Group("/notifications")
	{
		notifications.POST("/dispatch", middleware.DispatchRateLimit(deps.Redis), notificationController.Dispatch)
		notifications.GET("/jobs/:jobId", notificationController.GetJob)
		notifications.GET("/events/:eventId/attempts", notificationController.GetEventAttempts)
	}

	badges := api.Group("/badges")
	{
		badges.GET("", badgeController.GetBadges)
		badges.GET("/:tripId", badgeController.GetTripBadge)
		badges.POST("/:tripId/reset", badgeController.ResetBadge)
	}

	trips := api.Group("/trips")
	{
		trips.GET("/:tripId/preferences", preferenceController.GetPreferences)
		trips.PUT("/:tripId/preferences", preferenceController.UpdatePreferences)
	}
}

func setupAdminRoutes(
	router *gin.Engine,
	deps Dependencies,
	authMiddleware *middleware.AuthMiddleware,
	webhookController *controllers.WebhookController,
	notificationController *controllers.NotificationController,
) {
	admin := router.Group("/api/v1/admin")
	admin.Use(authMiddleware.RequireAuth())
	admin.Use(authMiddleware.RequireAdmin())
	admin.Use(middleware.AdminRateLimit(deps.Redis))

	admin.GET("/suppressions", webhookController.GetSuppression)
	admin.POST("/suppressions", webhookController.RecordBounce)
	admin.DELETE("/suppressions", webhookController.RemoveSuppression)

	admin.GET("/worker/stats", notificationController.GetWorkerStats)
}
