package usecase

import (
	"context"
	"strings"
	"time"

	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
)

// JobMaterializer turns accepted proposals into jobs. The job id is always the
// proposal message id, so every path here is idempotent.
type JobMaterializer struct {
	convRepo repository.ConversationRepository
	jobRepo  repository.JobRepository
	currency string
	now      func() time.Time
}

func NewJobMaterializer(
	convRepo repository.ConversationRepository,
	jobRepo repository.JobRepository,
	currency string,
) *JobMaterializer {
	return &JobMaterializer{
		convRepo: convRepo,
		jobRepo:  jobRepo,
		currency: strings.ToUpper(currency),
		now:      time.Now,
	}
}

// Build derives the job for message. The accepting user becomes the customer
// and the proposer the worker, whatever their platform roles are.
func (m *JobMaterializer) Build(message *entity.ChatMessage, acceptingUserID string) (*entity.Job, error) {
	if !message.IsProposal() {
		return nil, entity.ErrNotProposal
	}
	if acceptingUserID == "" {
		return nil, errors.Validation("Accepting user is required")
	}
	if acceptingUserID == message.SenderID {
		return nil, entity.ErrSelfResponse
	}

	now := m.now()
	job := &entity.Job{
		ID:             message.ID,
		Title:          entity.TitleFrom(message.Content),
		CustomerID:     acceptingUserID,
		WorkerID:       message.SenderID,
		ConversationID: message.ConversationID,
		Description:    message.Content,
		Currency:       m.currency,
		Status:         entity.JobAwaitingPayment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	job.SetPrice(message.Amount())
	return job, nil
}

// Materialize is the two-write path: create jobs/{message.id} unless present,
// then back-link the message. Re-running it after a crash between the writes
// finishes the link without creating a second job.
func (m *JobMaterializer) Materialize(ctx context.Context, message *entity.ChatMessage, acceptingUserID string) (*entity.Job, error) {
	job, err := m.Build(message, acceptingUserID)
	if err != nil {
		return nil, err
	}

	stored, created, err := m.jobRepo.CreateIfAbsent(ctx, job)
	if err != nil {
		logger.Error("Failed to materialize job for message %s: %v", message.ID, err)
		return nil, err
	}
	if created {
		logger.Info("Job %s materialized for conversation %s", stored.ID, stored.ConversationID)
	}

	if message.JobID != stored.ID {
		if err := m.convRepo.LinkJob(ctx, message.ConversationID, message.ID, stored.ID); err != nil {
			logger.Error("Failed to link job %s to message %s: %v", stored.ID, message.ID, err)
			return nil, err
		}
		message.JobID = stored.ID
	}
	return stored, nil
}

type ReconcileResult struct {
	Linked  []string `json:"linked"`
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// Reconcile repairs accepted proposals in the conversation that have no jobId.
// An existing jobs/{messageId} is linked; otherwise the job is derived from
// respondedBy. Messages whose acceptor is unknown are skipped.
func (m *JobMaterializer) Reconcile(ctx context.Context, conversationID string) (*ReconcileResult, error) {
	messages, err := m.convRepo.ListAcceptedUnlinked(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Linked: []string{}, Created: []string{}, Skipped: []string{}}
	for _, message := range messages {
		existing, err := m.jobRepo.GetByID(ctx, message.ID)
		switch {
		case err == nil:
			if err := m.convRepo.LinkJob(ctx, conversationID, message.ID, existing.ID); err != nil {
				return result, err
			}
			result.Linked = append(result.Linked, message.ID)

		case errors.Is(err, errors.CodeNotFound):
			if message.RespondedBy == "" || message.RespondedBy == entity.SystemSenderID {
				logger.Warn("Cannot reconcile message %s: acceptor unknown", message.ID)
				result.Skipped = append(result.Skipped, message.ID)
				continue
			}
			if _, err := m.Materialize(ctx, message, message.RespondedBy); err != nil {
				return result, err
			}
			result.Created = append(result.Created, message.ID)

		default:
			return result, err
		}
	}

	if n := len(result.Linked) + len(result.Created); n > 0 {
		logger.Info("Reconciled %d accepted proposals in conversation %s", n, conversationID)
	}
	return result, nil
}
