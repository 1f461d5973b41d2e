package handler

import (
	"github.com/labstack/echo/v4"

	"workbee/internal/usecase"
	"workbee/pkg/response"
)

type ConversationHandler struct {
	conversationUseCase *usecase.ConversationUseCase
}

func NewConversationHandler(conversationUseCase *usecase.ConversationUseCase) *ConversationHandler {
	return &ConversationHandler{
		conversationUseCase: conversationUseCase,
	}
}

type createConversationRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type conversationListResponse struct {
	Items       []*usecase.ConversationSummary `json:"items"`
	Total       int                            `json:"total"`
	TotalUnread int                            `json:"total_unread"`
}

// CreateConversation finds or opens the thread with recipient_id.
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req createConversationRequest
	if err := bind(c, &req); err != nil {
		return response.Error(c, err)
	}

	conversation, err := h.conversationUseCase.FindOrCreate(c.Request().Context(), userID, req.RecipientID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conversation)
}

func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	summaries, err := h.conversationUseCase.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	totalUnread := 0
	for _, s := range summaries {
		totalUnread += s.UnreadCount
	}

	return response.Success(c, conversationListResponse{
		Items:       summaries,
		Total:       len(summaries),
		TotalUnread: totalUnread,
	})
}

func (h *ConversationHandler) GetConversation(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	conversation, err := h.conversationUseCase.Get(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversation)
}

// MarkRead clears the caller's unread counter.
func (h *ConversationHandler) MarkRead(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	conversation, err := h.conversationUseCase.Open(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversation)
}

// ListMessages returns messages in seq order, optionally after ?after=N.
func (h *ConversationHandler) ListMessages(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	after, err := afterParam(c)
	if err != nil {
		return response.Error(c, err)
	}

	messages, err := h.conversationUseCase.ListMessages(c.Request().Context(), c.Param("id"), userID, after)
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, messages, len(messages))
}

func (h *ConversationHandler) SendMessage(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req sendMessageRequest
	if err := bind(c, &req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.conversationUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ConversationID: c.Param("id"),
		Content:        req.Content,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}
