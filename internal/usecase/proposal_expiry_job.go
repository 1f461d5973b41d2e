package usecase

import (
	"context"
	"time"

	"workbee/internal/domain/repository"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
)

const expiryBatchSize = 200

// ProposalExpiryJob rejects pending proposals older than ttl. It is run by the
// scheduler; a zero ttl disables it.
type ProposalExpiryJob struct {
	convRepo  repository.ConversationRepository
	proposals *ProposalUseCase
	ttl       time.Duration
	now       func() time.Time
}

func NewProposalExpiryJob(convRepo repository.ConversationRepository, proposals *ProposalUseCase, ttl time.Duration) *ProposalExpiryJob {
	return &ProposalExpiryJob{
		convRepo:  convRepo,
		proposals: proposals,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (j *ProposalExpiryJob) Name() string {
	return "proposal-expiry"
}

func (j *ProposalExpiryJob) Enabled() bool {
	return j.ttl > 0
}

func (j *ProposalExpiryJob) Run(ctx context.Context) error {
	if !j.Enabled() {
		return nil
	}

	cutoff := j.now().Add(-j.ttl)
	stale, err := j.convRepo.ListPendingProposalsBefore(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return err
	}

	expired := 0
	for _, message := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := j.proposals.Expire(ctx, message)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, errors.CodeInvalidTransition):
			// Answered between the query and the update.
		default:
			logger.Error("Failed to expire proposal %s: %v", message.ID, err)
		}
	}

	if expired > 0 {
		logger.Info("Expired %d pending proposals older than %s", expired, j.ttl)
	}
	return nil
}
