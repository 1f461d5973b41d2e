package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/internal/domain/service"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
)

type JobUseCase struct {
	jobRepo       repository.JobRepository
	conversations *ConversationUseCase
	publisher     service.EventPublisher
	notifier      Notifier
	now           func() time.Time
}

func NewJobUseCase(
	jobRepo repository.JobRepository,
	conversations *ConversationUseCase,
	publisher service.EventPublisher,
	notifier Notifier,
) *JobUseCase {
	if publisher == nil {
		publisher = service.NopPublisher{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &JobUseCase{
		jobRepo:       jobRepo,
		conversations: conversations,
		publisher:     publisher,
		notifier:      notifier,
		now:           time.Now,
	}
}

// PaymentReceipt is the gateway's proof of a successful charge.
type PaymentReceipt struct {
	Reference   string
	PayerID     string
	AmountMinor int64
}

// JobTransitionEvent is the payload published for every applied transition.
type JobTransitionEvent struct {
	JobID          string           `json:"job_id"`
	ConversationID string           `json:"conversation_id"`
	Event          entity.JobEvent  `json:"event"`
	From           entity.JobStatus `json:"from"`
	To             entity.JobStatus `json:"to"`
	ActorID        string           `json:"actor_id"`
	Note           string           `json:"note,omitempty"`
	Job            *entity.Job      `json:"job"`
}

var eventNames = map[entity.JobEvent]string{
	entity.EventCapturePayment: "job.payment_secured",
	entity.EventComplete:       "job.completed",
	entity.EventDispute:        "job.disputed",
	entity.EventCancel:         "job.cancelled",
}

func (uc *JobUseCase) GetJob(ctx context.Context, jobID string) (*entity.Job, error) {
	return uc.jobRepo.GetByID(ctx, jobID)
}

// GetJobForUser is GetJob restricted to the job's customer and worker.
func (uc *JobUseCase) GetJobForUser(ctx context.Context, jobID, userID string) (*entity.Job, error) {
	job, err := uc.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsParty(userID) {
		return nil, errors.Forbidden("You are not a party to this job", nil)
	}
	return job, nil
}

func (uc *JobUseCase) ListForUser(ctx context.Context, userID string) ([]*entity.Job, error) {
	return uc.jobRepo.ListByUser(ctx, userID)
}

func (uc *JobUseCase) ListByConversation(ctx context.Context, conversationID, userID string) ([]*entity.Job, error) {
	if _, err := uc.conversations.Get(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return uc.jobRepo.ListByConversation(ctx, conversationID)
}

func (uc *JobUseCase) ListLogs(ctx context.Context, jobID, userID string) ([]*entity.JobLog, error) {
	if _, err := uc.GetJobForUser(ctx, jobID, userID); err != nil {
		return nil, err
	}
	return uc.jobRepo.ListLogs(ctx, jobID)
}

// ConfirmPayment consumes a gateway success signal. A repeated signal for a
// job that was already paid returns the job unchanged, whatever its status.
func (uc *JobUseCase) ConfirmPayment(ctx context.Context, jobID string, receipt PaymentReceipt) (*entity.Job, error) {
	return uc.transition(ctx, jobID, entity.EventCapturePayment, receipt.PayerID, receipt.Reference, func(job *entity.Job) error {
		if job.Status != entity.JobAwaitingPayment {
			return nil
		}
		total, err := job.TotalMinorUnits()
		if err != nil {
			return err
		}
		if receipt.AmountMinor < total {
			return errors.Validation(fmt.Sprintf("Paid amount %d is less than the job total %d", receipt.AmountMinor, total))
		}
		return nil
	})
}

func (uc *JobUseCase) MarkCompleted(ctx context.Context, jobID, byUserID string) (*entity.Job, error) {
	return uc.transition(ctx, jobID, entity.EventComplete, byUserID, "", nil)
}

func (uc *JobUseCase) RaiseDispute(ctx context.Context, jobID, byUserID, reason string) (*entity.Job, error) {
	return uc.transition(ctx, jobID, entity.EventDispute, byUserID, strings.TrimSpace(reason), nil)
}

func (uc *JobUseCase) Cancel(ctx context.Context, jobID, byUserID, reason string) (*entity.Job, error) {
	return uc.transition(ctx, jobID, entity.EventCancel, byUserID, strings.TrimSpace(reason), nil)
}

// transition runs the state machine inside a repository transaction and fans
// out the side effects once it commits. check runs before the state machine.
func (uc *JobUseCase) transition(ctx context.Context, jobID string, event entity.JobEvent, actorID, note string, check func(*entity.Job) error) (*entity.Job, error) {
	at := uc.now()

	job, log, err := uc.jobRepo.Transition(ctx, jobID, func(job *entity.Job) (*entity.JobLog, error) {
		from := job.Status
		if !job.IsParty(actorID) {
			return nil, entity.ErrJobActorNotAllowed
		}
		if check != nil {
			if err := check(job); err != nil {
				return nil, err
			}
		}

		changed, err := job.Apply(event, actorID, note, at)
		if err != nil || !changed {
			return nil, err
		}
		return &entity.JobLog{
			Event:     event,
			From:      from,
			To:        job.Status,
			ActorID:   actorID,
			Note:      note,
			CreatedAt: at,
		}, nil
	})
	if err != nil {
		if errors.Is(err, errors.CodeInvalidTransition) {
			logger.Guard("job", jobID, actorID, fmt.Sprintf("%s: %v", event, err))
		} else if !errors.Is(err, errors.CodeValidation) && !errors.Is(err, errors.CodeNotFound) {
			logger.Error("Failed to apply %s to job %s: %v", event, jobID, err)
		}
		return nil, err
	}

	if log == nil {
		logger.Info("Job %s: duplicate %s ignored", jobID, event)
		return job, nil
	}

	logger.WithFields(logger.Fields{
		"job_id": job.ID,
		"event":  event,
		"from":   log.From,
		"to":     log.To,
		"actor":  actorID,
	}).Info("Job transition applied")

	uc.afterTransition(ctx, job, log)
	return job, nil
}

// afterTransition never fails the call: the transition is already committed.
func (uc *JobUseCase) afterTransition(ctx context.Context, job *entity.Job, log *entity.JobLog) {
	if _, err := uc.conversations.SendSystemMessage(ctx, job.ConversationID, transitionNote(job, log)); err != nil {
		logger.Error("Failed to post system message for job %s: %v", job.ID, err)
	}

	payload := &JobTransitionEvent{
		JobID:          job.ID,
		ConversationID: job.ConversationID,
		Event:          log.Event,
		From:           log.From,
		To:             log.To,
		ActorID:        log.ActorID,
		Note:           log.Note,
		Job:            job,
	}
	event := service.DomainEvent{Name: eventNames[log.Event], AggregateID: job.ID, OccurredAt: log.CreatedAt, Data: payload}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish %s for job %s: %v", event.Name, job.ID, err)
	}

	uc.notifier.Notify(job.CustomerID, NotifyJobUpdated, payload)
	uc.notifier.Notify(job.WorkerID, NotifyJobUpdated, payload)
}

func transitionNote(job *entity.Job, log *entity.JobLog) string {
	switch log.Event {
	case entity.EventCapturePayment:
		return fmt.Sprintf("Payment of %s %s secured. Work may begin.", job.Currency, entity.FormatAmount(job.TotalAmount))
	case entity.EventComplete:
		return "Job marked as completed by the customer."
	case entity.EventDispute:
		if log.Note != "" {
			return "A dispute was raised on this job: " + log.Note
		}
		return "A dispute was raised on this job."
	case entity.EventCancel:
		if log.Note != "" {
			return "Job cancelled: " + log.Note
		}
		return "Job cancelled."
	}
	return "Job updated."
}
