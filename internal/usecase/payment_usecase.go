package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/internal/domain/service"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
)

const referencePrefix = "job_"

var validate = validator.New()

type PaymentUseCase struct {
	jobRepo     repository.JobRepository
	jobs        *JobUseCase
	gateway     service.PaymentGateway
	callbackURL string
	now         func() time.Time
}

func NewPaymentUseCase(
	jobRepo repository.JobRepository,
	jobs *JobUseCase,
	gateway service.PaymentGateway,
	callbackURL string,
) *PaymentUseCase {
	return &PaymentUseCase{
		jobRepo:     jobRepo,
		jobs:        jobs,
		gateway:     gateway,
		callbackURL: callbackURL,
		now:         time.Now,
	}
}

type PaymentInitiation struct {
	JobID            string `json:"job_id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	AmountMinor      int64  `json:"amount_minor"`
	Currency         string `json:"currency"`
}

type PaymentVerification struct {
	Reference string      `json:"reference"`
	Status    string      `json:"status"`
	Job       *entity.Job `json:"job,omitempty"`
}

// PaymentReference builds the gateway reference for one payment attempt.
func PaymentReference(jobID string, at time.Time) string {
	return fmt.Sprintf("%s%s_%d", referencePrefix, jobID, at.UnixNano())
}

// JobIDFromReference inverts PaymentReference.
func JobIDFromReference(reference string) (string, bool) {
	if !strings.HasPrefix(reference, referencePrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(reference, referencePrefix)
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 {
		return "", false
	}
	return rest[:idx], true
}

func (uc *PaymentUseCase) InitiatePayment(ctx context.Context, jobID, userID, email string) (*PaymentInitiation, error) {
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, errors.Validation("A valid payer email is required")
	}

	job, err := uc.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != userID {
		logger.Guard("job", jobID, userID, "payment initiated by non-customer")
		return nil, entity.ErrJobActorNotAllowed
	}
	if job.Status != entity.JobAwaitingPayment {
		logger.Guard("job", jobID, userID, "payment initiated in status "+string(job.Status))
		return nil, entity.ErrJobTransitionNotAllowed
	}

	total, err := job.TotalMinorUnits()
	if err != nil {
		logger.Guard("job", jobID, userID, "payment total out of range")
		return nil, err
	}

	reference := PaymentReference(job.ID, uc.now())
	resp, err := uc.gateway.Initialize(ctx, service.InitializeRequest{
		Reference:   reference,
		Email:       email,
		AmountMinor: total,
		Currency:    job.Currency,
		CallbackURL: uc.callbackURL,
		JobID:       job.ID,
		CustomerID:  job.CustomerID,
	})
	if err != nil {
		logger.Error("Failed to initialize payment for job %s: %v", jobID, err)
		return nil, err
	}

	if resp.Reference != "" {
		reference = resp.Reference
	}
	return &PaymentInitiation{
		JobID:            job.ID,
		Reference:        reference,
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
		AmountMinor:      total,
		Currency:         job.Currency,
	}, nil
}

// HandleWebhook verifies and applies a gateway callback. Events other than a
// successful charge are acknowledged and ignored.
func (uc *PaymentUseCase) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	event, err := uc.gateway.ParseWebhook(body, signature)
	if err != nil {
		logger.Warn("Rejected payment webhook: %v", err)
		return err
	}
	if event.Event != service.EventChargeSuccess {
		logger.Debug("Ignoring payment webhook event %s", event.Event)
		return nil
	}

	_, err = uc.confirm(ctx, &event.Transaction)
	return err
}

// VerifyPayment polls the gateway for reference. The job's customer may use it
// when the webhook is late.
func (uc *PaymentUseCase) VerifyPayment(ctx context.Context, reference, userID string) (*PaymentVerification, error) {
	jobID, ok := JobIDFromReference(reference)
	if !ok {
		return nil, errors.Validation("Unknown payment reference")
	}
	job, err := uc.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != userID {
		return nil, errors.Forbidden("Only the customer can verify this payment", nil)
	}

	tx, err := uc.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}

	result := &PaymentVerification{Reference: reference, Status: tx.Status, Job: job}
	if !tx.Succeeded() {
		return result, nil
	}
	if tx.JobID == "" {
		tx.JobID = jobID
	}
	if tx.JobID != jobID {
		return nil, errors.Validation("Payment reference does not belong to this job")
	}

	confirmed, err := uc.confirm(ctx, tx)
	if err != nil {
		return nil, err
	}
	result.Job = confirmed
	return result, nil
}

func (uc *PaymentUseCase) confirm(ctx context.Context, tx *service.TransactionStatus) (*entity.Job, error) {
	jobID := tx.JobID
	if jobID == "" {
		var ok bool
		if jobID, ok = JobIDFromReference(tx.Reference); !ok {
			return nil, errors.Validation("Payment is not linked to a job")
		}
	}

	job, err := uc.jobs.ConfirmPayment(ctx, jobID, PaymentReceipt{
		Reference:   tx.Reference,
		PayerID:     tx.CustomerID,
		AmountMinor: tx.AmountMinor,
	})
	if err != nil {
		logger.Error("Failed to confirm payment %s for job %s: %v", tx.Reference, jobID, err)
		return nil, err
	}
	return job, nil
}
