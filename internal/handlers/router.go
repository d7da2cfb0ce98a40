package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raximov/telegram-mini-app-project-sub000/internal/auth"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/models"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/services"
	"github.com/raximov/telegram-mini-app-project-sub000/internal/utils"
)

type HandlerManager struct {
	authHandler      *AuthHandler
	attemptHandler   *AttemptHandler
	testHandler      *TestHandler
	reportHandler    *ReportHandler
	countdownHandler *CountdownHandler
	authMiddleware   *AuthMiddleware
	health           func(ctx context.Context) error
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	initData *auth.InitDataValidator,
	issuer *auth.TokenIssuer,
	verifier auth.TokenVerifier,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		authHandler:      NewAuthHandler(initData, issuer, logger),
		attemptHandler:   NewAttemptHandler(serviceManager.Attempt(), logger),
		testHandler:      NewTestHandler(serviceManager.Test(), logger),
		reportHandler:    NewReportHandler(serviceManager.Report(), logger),
		countdownHandler: NewCountdownHandler(serviceManager.Timers(), logger),
		authMiddleware:   NewAuthMiddleware(verifier, logger),
		health:           serviceManager.HealthCheck,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	// Sign-in is the only unauthenticated API route.
	v1.POST("/auth/telegram", hm.authHandler.TelegramLogin)

	api := v1.Group("")
	api.Use(hm.authMiddleware.Authenticate())
	{
		api.GET("/me", hm.authHandler.Me)

		// Attempt routes
		attempts := api.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PUT("/:id/answers", hm.attemptHandler.RecordAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/result", hm.attemptHandler.GetResult)
			attempts.GET("/:id/time", hm.attemptHandler.GetTimeRemaining)
			attempts.GET("/:id/countdown", hm.countdownHandler.Countdown)
		}

		api.GET("/tests/published", hm.testHandler.ListPublishedTests)

		// Authoring and reporting - Teachers and Admins only
		tests := api.Group("/tests")
		tests.Use(hm.authMiddleware.RequireRole(models.RoleTeacher))
		{
			tests.POST("", hm.testHandler.CreateTest)
			tests.GET("", hm.testHandler.ListMyTests)
			tests.GET("/:id", hm.testHandler.GetTest)
			tests.PUT("/:id", hm.testHandler.UpdateTest)
			tests.POST("/:id/publish", hm.testHandler.PublishTest)
			tests.POST("/:id/archive", hm.testHandler.ArchiveTest)

			tests.POST("/:id/questions", hm.testHandler.AddQuestion)
			tests.PUT("/:id/questions/:question_id", hm.testHandler.UpdateQuestion)
			tests.DELETE("/:id/questions/:question_id", hm.testHandler.RemoveQuestion)

			tests.GET("/:id/summary", hm.reportHandler.GetSummary)
			tests.GET("/:id/export", hm.reportHandler.ExportResults)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := hm.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "quiz-attempt-service",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "quiz-attempt-service",
		})
	})
}
