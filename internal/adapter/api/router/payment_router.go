package router

import (
	"github.com/labstack/echo/v4"

	"workbee/internal/adapter/api/handler"
	"workbee/internal/adapter/api/middleware"
	"workbee/internal/infrastructure/ratelimit"
)

func SetupPaymentRouter(e *echo.Echo, paymentHandler *handler.PaymentHandler, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	paymentGroup := e.Group("/v1/payments")

	paymentGroup.GET("/verify/:reference", paymentHandler.VerifyPayment,
		authMiddleware.Authenticate, middleware.RateLimit(limiter, ratelimit.ActionPaymentAPI))

	// Paystack calls this one; the request is authenticated by its signature.
	paymentGroup.POST("/paystack/webhook", paymentHandler.PaystackWebhook,
		middleware.RateLimit(limiter, ratelimit.ActionWebhook))
}
