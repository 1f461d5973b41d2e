package router

import (
	"github.com/labstack/echo/v4"

	"workbee/internal/adapter/api/handler"
	"workbee/internal/adapter/api/middleware"
)

// SetupConversationRouter mounts conversations, their messages, proposals and
// the per-conversation job views.
func SetupConversationRouter(
	e *echo.Echo,
	conversationHandler *handler.ConversationHandler,
	proposalHandler *handler.ProposalHandler,
	jobHandler *handler.JobHandler,
	wsHandler *handler.WebSocketHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	conversationGroup := e.Group("/v1/conversations")
	conversationGroup.Use(authMiddleware.Authenticate)

	conversationGroup.POST("", conversationHandler.CreateConversation)
	conversationGroup.GET("", conversationHandler.ListConversations)
	conversationGroup.GET("/:id", conversationHandler.GetConversation)
	conversationGroup.POST("/:id/read", conversationHandler.MarkRead)

	conversationGroup.GET("/:id/messages", conversationHandler.ListMessages)
	conversationGroup.POST("/:id/messages", conversationHandler.SendMessage)
	conversationGroup.GET("/:id/stream", wsHandler.StreamConversation)

	conversationGroup.POST("/:id/proposals", proposalHandler.SendProposal)
	conversationGroup.POST("/:id/messages/:messageId/respond", proposalHandler.RespondToProposal)
	conversationGroup.POST("/:id/reconcile", proposalHandler.Reconcile)

	conversationGroup.GET("/:id/jobs", jobHandler.ListConversationJobs)
}
