package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/internal/domain/service"
	"workbee/internal/infrastructure/ratelimit"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
)

type ProposalUseCase struct {
	conversations *ConversationUseCase
	convRepo      repository.ConversationRepository
	jobRepo       repository.JobRepository
	materializer  *JobMaterializer
	publisher     service.EventPublisher
	notifier      Notifier
	now           func() time.Time
}

func NewProposalUseCase(
	conversations *ConversationUseCase,
	convRepo repository.ConversationRepository,
	jobRepo repository.JobRepository,
	materializer *JobMaterializer,
	publisher service.EventPublisher,
	notifier Notifier,
) *ProposalUseCase {
	if publisher == nil {
		publisher = service.NopPublisher{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ProposalUseCase{
		conversations: conversations,
		convRepo:      convRepo,
		jobRepo:       jobRepo,
		materializer:  materializer,
		publisher:     publisher,
		notifier:      notifier,
		now:           time.Now,
	}
}

type SendProposalInput struct {
	ConversationID string
	SenderID       string
	Amount         float64
	Description    string
}

type RespondInput struct {
	ConversationID string
	MessageID      string
	ResponderID    string
	Action         entity.ProposalAction
}

// ProposalResponse carries the updated message, and the job when accepted.
type ProposalResponse struct {
	Message *entity.ChatMessage `json:"message"`
	Job     *entity.Job         `json:"job,omitempty"`
}

func (uc *ProposalUseCase) SendProposal(ctx context.Context, input SendProposalInput) (*entity.ChatMessage, error) {
	if err := entity.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}
	if err := entity.ValidateText(input.Description, entity.MaxDescriptionLength); err != nil {
		return nil, errors.Validation("Description " + err.Error())
	}
	if err := uc.conversations.allow(input.SenderID, ratelimit.ActionSendProposal); err != nil {
		return nil, err
	}

	conversation, err := uc.conversations.Get(ctx, input.ConversationID, input.SenderID)
	if err != nil {
		return nil, err
	}

	amount := input.Amount
	message := &entity.ChatMessage{
		ConversationID: conversation.ID,
		SenderID:       input.SenderID,
		Content:        strings.TrimSpace(input.Description),
		ContentType:    entity.ContentTypeProposal,
		ProposalAmount: &amount,
		ProposalStatus: entity.ProposalPending,
	}
	if err := uc.conversations.append(ctx, conversation, message); err != nil {
		return nil, err
	}

	logger.Info("Proposal %s of %s sent by %s in conversation %s", message.ID, entity.FormatAmount(amount), input.SenderID, conversation.ID)
	uc.publish(ctx, "proposal.sent", message.ID, message)
	return message, nil
}

// RespondToProposal applies accept, reject or counter. Only the counterparty
// may respond, and only once.
func (uc *ProposalUseCase) RespondToProposal(ctx context.Context, input RespondInput) (*ProposalResponse, error) {
	status, err := entity.StatusFor(input.Action)
	if err != nil {
		return nil, err
	}

	conversation, err := uc.conversations.Get(ctx, input.ConversationID, input.ResponderID)
	if err != nil {
		return nil, err
	}

	var response *ProposalResponse
	if input.Action == entity.ActionAccept {
		response, err = uc.accept(ctx, input)
	} else {
		var message *entity.ChatMessage
		message, err = uc.convRepo.UpdateProposalStatus(ctx, input.ConversationID, input.MessageID, status, input.ResponderID, uc.now())
		response = &ProposalResponse{Message: message}
	}
	if err != nil {
		if errors.Is(err, errors.CodeInvalidTransition) {
			logger.Guard("proposal", input.MessageID, input.ResponderID, err.Error())
		}
		return nil, err
	}

	logger.Info("Proposal %s %s by %s", input.MessageID, status, input.ResponderID)
	uc.publish(ctx, "proposal."+string(status), input.MessageID, response.Message)

	note := proposalNote(status, response.Job)
	if _, err := uc.conversations.SendSystemMessage(ctx, conversation.ID, note); err != nil {
		logger.Error("Failed to post system message for proposal %s: %v", input.MessageID, err)
	}
	return response, nil
}

func (uc *ProposalUseCase) accept(ctx context.Context, input RespondInput) (*ProposalResponse, error) {
	message, job, err := uc.jobRepo.AcceptProposal(ctx, input.ConversationID, input.MessageID, input.ResponderID, uc.now(), uc.materializer.Build)
	if err != nil {
		return nil, err
	}

	logger.Info("Job %s created: customer %s, worker %s, total %s", job.ID, job.CustomerID, job.WorkerID, entity.FormatAmount(job.TotalAmount))
	uc.publish(ctx, "job.created", job.ID, job)
	uc.notifier.Notify(job.CustomerID, NotifyJobCreated, job)
	uc.notifier.Notify(job.WorkerID, NotifyJobCreated, job)

	return &ProposalResponse{Message: message, Job: job}, nil
}

// Expire rejects a stale pending proposal on behalf of the system.
func (uc *ProposalUseCase) Expire(ctx context.Context, message *entity.ChatMessage) error {
	_, err := uc.convRepo.UpdateProposalStatus(ctx, message.ConversationID, message.ID, entity.ProposalRejected, entity.SystemSenderID, uc.now())
	if err != nil {
		return err
	}

	logger.Info("Proposal %s in conversation %s expired", message.ID, message.ConversationID)
	uc.publish(ctx, "proposal.expired", message.ID, message)
	if _, err := uc.conversations.SendSystemMessage(ctx, message.ConversationID, "Proposal expired without a response."); err != nil {
		logger.Error("Failed to post expiry message for proposal %s: %v", message.ID, err)
	}
	return nil
}

func (uc *ProposalUseCase) publish(ctx context.Context, name, aggregateID string, data interface{}) {
	event := service.DomainEvent{Name: name, AggregateID: aggregateID, OccurredAt: uc.now(), Data: data}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish %s for %s: %v", name, aggregateID, err)
	}
}

func proposalNote(status entity.ProposalStatus, job *entity.Job) string {
	switch status {
	case entity.ProposalAccepted:
		if job != nil {
			return fmt.Sprintf("Proposal accepted. Job created for %s %s (including %s service fee).",
				job.Currency, entity.FormatAmount(job.TotalAmount), entity.FormatAmount(job.ServiceFee))
		}
		return "Proposal accepted."
	case entity.ProposalRejected:
		return "Proposal rejected."
	default:
		return "Proposal countered. Waiting for a new offer."
	}
}
