package repository

import (
	"context"
	"time"

	"workbee/internal/domain/entity"
)

// JobBuilder derives a job from an accepted proposal.
type JobBuilder func(message *entity.ChatMessage, acceptingUserID string) (*entity.Job, error)

// JobMutation applies a state change to job and returns the audit entry for
// it, or nil when nothing changed.
type JobMutation func(job *entity.Job) (*entity.JobLog, error)

type JobRepository interface {
	// CreateIfAbsent writes jobs/{job.ID} unless it already exists. It returns
	// the stored job and whether this call created it.
	CreateIfAbsent(ctx context.Context, job *entity.Job) (*entity.Job, bool, error)
	GetByID(ctx context.Context, id string) (*entity.Job, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*entity.Job, error)
	ListByUser(ctx context.Context, userID string) ([]*entity.Job, error)

	// Transition reads the job, applies mutate and writes job and log back
	// atomically. A nil log from mutate skips the write.
	Transition(ctx context.Context, id string, mutate JobMutation) (*entity.Job, *entity.JobLog, error)
	ListLogs(ctx context.Context, jobID string) ([]*entity.JobLog, error)

	// AcceptProposal marks the pending proposal accepted, creates its job and
	// sets the message's jobId in one atomic operation.
	AcceptProposal(ctx context.Context, conversationID, messageID, responderID string, at time.Time, build JobBuilder) (*entity.ChatMessage, *entity.Job, error)
}
