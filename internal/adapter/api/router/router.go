package router

import (
	"github.com/labstack/echo/v4"

	"workbee/internal/adapter/api/handler"
	"workbee/internal/adapter/api/middleware"
	"workbee/internal/infrastructure/ratelimit"
)

// Handlers bundles everything the routers mount.
type Handlers struct {
	Health       *handler.HealthHandler
	Conversation *handler.ConversationHandler
	Proposal     *handler.ProposalHandler
	Job          *handler.JobHandler
	Payment      *handler.PaymentHandler
	WebSocket    *handler.WebSocketHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	SetupHealthRouter(e, h.Health)
	SetupConversationRouter(e, h.Conversation, h.Proposal, h.Job, h.WebSocket, authMiddleware)
	SetupJobRouter(e, h.Job, h.Payment, authMiddleware, limiter)
	SetupPaymentRouter(e, h.Payment, authMiddleware, limiter)
	SetupWebSocketRouter(e, h.WebSocket, authMiddleware)
}
