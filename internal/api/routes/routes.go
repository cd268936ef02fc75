// Package routes defines API routes.
package routes

import (
	"net/http"

	"edu-ai-gateway/docs"
	"edu-ai-gateway/internal/api/handlers"
	"edu-ai-gateway/internal/api/middleware"
	"edu-ai-gateway/internal/config"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Services holds all service dependencies.
type Services struct {
	User     handlers.UserService
	Tutor    handlers.TutorService
	Provider handlers.ProviderAdmin
	Usage    handlers.UsageService
	// Checks back the /health endpoint.
	Checks map[string]handlers.Check
	// RateLimiter guards the AI endpoints; nil disables limiting.
	RateLimiter *middleware.RateLimiter
	// Metrics exposes Prometheus metrics; nil disables /metrics.
	Metrics MetricsExporter
}

// MetricsExporter records HTTP traffic and serves the scrape endpoint.
type MetricsExporter interface {
	middleware.HTTPRecorder
	Handler() http.Handler
}

// Setup configures all API routes.
func Setup(
	engine *gin.Engine,
	cfg *config.Config,
	services *Services,
	logger *zap.Logger,
) {
	corsMiddleware := middleware.NewCORSMiddleware(cfg.Server.CORSOrigins)
	loggingMiddleware := middleware.NewLoggingMiddleware(logger)
	recoveryMiddleware := middleware.NewRecoveryMiddleware(logger)

	engine.Use(recoveryMiddleware.Recover())
	if cfg.Sentry.DSN != "" {
		engine.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	engine.Use(corsMiddleware.Handle())
	engine.Use(loggingMiddleware.Log())

	if services.Metrics != nil && cfg.Metrics.Enabled {
		engine.Use(middleware.Metrics(services.Metrics))
		engine.GET(cfg.Metrics.Path, gin.WrapH(services.Metrics.Handler()))
	}

	healthHandler := handlers.NewHealthHandler(services.Checks, logger)
	engine.GET("/health", healthHandler.Health)

	docs.SwaggerInfo.BasePath = "/api"
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authMiddleware := middleware.NewAuthMiddleware(&cfg.JWT, logger)

	authHandler := handlers.NewAuthHandler(services.User, &cfg.JWT, logger)
	aiHandler := handlers.NewAIHandler(services.Tutor, logger)
	providerHandler := handlers.NewProviderHandler(services.Provider, logger)
	dashboardHandler := handlers.NewDashboardHandler(services.Usage, logger)

	api := engine.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		protected := api.Group("")
		protected.Use(authMiddleware.JWT())
		{
			user := protected.Group("/user")
			{
				user.GET("/profile", authHandler.GetProfile)
				user.PUT("/profile", authHandler.UpdateProfile)
				user.PUT("/password", authHandler.ChangePassword)
			}

			ai := protected.Group("/ai")
			if services.RateLimiter != nil {
				ai.Use(services.RateLimiter.Limit())
			}
			{
				ai.POST("/generate-exercise", aiHandler.GenerateExercise)
				ai.POST("/generate-analysis", aiHandler.GenerateAnalysis)
				ai.POST("/analyze-errors", aiHandler.AnalyzeErrors)
				ai.POST("/photo-correction", aiHandler.PhotoCorrection)
				ai.GET("/test-connection", aiHandler.TestConnection)
			}

			records := protected.Group("/error-records")
			{
				records.GET("", aiHandler.ListErrorRecords)
				records.POST("/:id/resolve", aiHandler.ResolveErrorRecord)
			}

			protected.GET("/usage/summary", dashboardHandler.GetMySummary)

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminOnly())
			{
				providers := admin.Group("/providers")
				{
					providers.GET("", providerHandler.List)
					providers.POST("", providerHandler.Create)
					providers.POST("/probe", providerHandler.Probe)
					providers.GET("/:id", providerHandler.Get)
					providers.PUT("/:id", providerHandler.Update)
					providers.DELETE("/:id", providerHandler.Delete)
					providers.POST("/:id/default", providerHandler.SetDefault)
					providers.POST("/:id/toggle", providerHandler.Toggle)
					providers.POST("/:id/test", providerHandler.Test)
				}

				usage := admin.Group("/usage")
				{
					usage.GET("/summary", dashboardHandler.GetSummary)
					usage.GET("/daily", dashboardHandler.GetDaily)
					usage.GET("/by-provider", dashboardHandler.GetByProvider)
					usage.GET("/by-function", dashboardHandler.GetByFunction)
					usage.GET("/recent", dashboardHandler.GetRecent)
				}
			}
		}
	}
}
