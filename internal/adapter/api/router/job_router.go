package router

import (
	"github.com/labstack/echo/v4"

	"workbee/internal/adapter/api/handler"
	"workbee/internal/adapter/api/middleware"
	"workbee/internal/infrastructure/ratelimit"
)

func SetupJobRouter(
	e *echo.Echo,
	jobHandler *handler.JobHandler,
	paymentHandler *handler.PaymentHandler,
	authMiddleware *middleware.AuthMiddleware,
	limiter *ratelimit.RateLimiter,
) {
	jobGroup := e.Group("/v1/jobs")
	jobGroup.Use(authMiddleware.Authenticate)

	jobGroup.GET("", jobHandler.ListJobs)
	jobGroup.GET("/:id", jobHandler.GetJob)
	jobGroup.GET("/:id/logs", jobHandler.ListLogs)
	jobGroup.POST("/:id/complete", jobHandler.MarkCompleted)
	jobGroup.POST("/:id/dispute", jobHandler.RaiseDispute)
	jobGroup.POST("/:id/cancel", jobHandler.Cancel)

	jobGroup.POST("/:id/payments", paymentHandler.InitiatePayment, middleware.RateLimit(limiter, ratelimit.ActionPaymentAPI))
}
