package handler

import (
	"github.com/labstack/echo/v4"

	"workbee/internal/domain/entity"
	"workbee/internal/usecase"
	"workbee/pkg/response"
)

type ProposalHandler struct {
	proposalUseCase     *usecase.ProposalUseCase
	conversationUseCase *usecase.ConversationUseCase
	materializer        *usecase.JobMaterializer
}

func NewProposalHandler(
	proposalUseCase *usecase.ProposalUseCase,
	conversationUseCase *usecase.ConversationUseCase,
	materializer *usecase.JobMaterializer,
) *ProposalHandler {
	return &ProposalHandler{
		proposalUseCase:     proposalUseCase,
		conversationUseCase: conversationUseCase,
		materializer:        materializer,
	}
}

type sendProposalRequest struct {
	Amount      float64 `json:"amount" validate:"required,gte=0.01,lte=1000000000"`
	Description string  `json:"description" validate:"required,max=500"`
}

type respondProposalRequest struct {
	Action string `json:"action" validate:"required,oneof=accept reject counter"`
}

func (h *ProposalHandler) SendProposal(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req sendProposalRequest
	if err := bind(c, &req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.proposalUseCase.SendProposal(c.Request().Context(), usecase.SendProposalInput{
		ConversationID: c.Param("id"),
		SenderID:       userID,
		Amount:         req.Amount,
		Description:    req.Description,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// RespondToProposal accepts, rejects or counters a pending proposal. An accept
// answers with the created job alongside the message.
func (h *ProposalHandler) RespondToProposal(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req respondProposalRequest
	if err := bind(c, &req); err != nil {
		return response.Error(c, err)
	}

	result, err := h.proposalUseCase.RespondToProposal(c.Request().Context(), usecase.RespondInput{
		ConversationID: c.Param("id"),
		MessageID:      c.Param("messageId"),
		ResponderID:    userID,
		Action:         entity.ProposalAction(req.Action),
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, result)
}

// Reconcile repairs accepted proposals that never got a job linked.
func (h *ProposalHandler) Reconcile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	conversation, err := h.conversationUseCase.Get(ctx, c.Param("id"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	result, err := h.materializer.Reconcile(ctx, conversation.ID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, result)
}
