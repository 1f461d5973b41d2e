package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
)

type firestoreJobRepository struct {
	client *firestore.Client
}

func NewFirestoreJobRepository(client *firestore.Client) repository.JobRepository {
	return &firestoreJobRepository{
		client: client,
	}
}

func (r *firestoreJobRepository) jobs() *firestore.CollectionRef {
	return r.client.Collection(jobsCollection)
}

func (r *firestoreJobRepository) CreateIfAbsent(ctx context.Context, job *entity.Job) (*entity.Job, bool, error) {
	if job.ID == "" {
		return nil, false, errors.Validation("Job id is required")
	}

	ref := r.jobs().Doc(job.ID)
	var stored entity.Job
	created := false

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = false
		doc, err := tx.Get(ref)
		if err == nil {
			if err := doc.DataTo(&stored); err != nil {
				return err
			}
			stored.ID = doc.Ref.ID
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		stored = *job
		created = true
		return tx.Create(ref, job)
	})
	if err != nil {
		return nil, false, mapError("Job", "Failed to create job", err)
	}

	return &stored, created, nil
}

func (r *firestoreJobRepository) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	doc, err := r.jobs().Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError("Job", "Failed to get job", err)
	}

	var job entity.Job
	if err := doc.DataTo(&job); err != nil {
		return nil, errors.Internal("Failed to parse job data", err)
	}
	job.ID = doc.Ref.ID

	return &job, nil
}

func (r *firestoreJobRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Job, error) {
	docs, err := r.jobs().
		Where("conversationId", "==", conversationID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError("Job", "Failed to list jobs", err)
	}

	jobs := decodeJobs(docs)
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

// ListByUser merges the jobs where the user is customer with those where they
// are worker. Firestore has no OR across fields for this query shape.
func (r *firestoreJobRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Job, error) {
	seen := make(map[string]bool)
	var jobs []*entity.Job

	for _, field := range []string{"customerId", "workerId"} {
		docs, err := r.jobs().Where(field, "==", userID).Documents(ctx).GetAll()
		if err != nil {
			return nil, mapError("Job", "Failed to list jobs", err)
		}
		for _, job := range decodeJobs(docs) {
			if seen[job.ID] {
				continue
			}
			seen[job.ID] = true
			jobs = append(jobs, job)
		}
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

func (r *firestoreJobRepository) Transition(ctx context.Context, id string, mutate repository.JobMutation) (*entity.Job, *entity.JobLog, error) {
	ref := r.jobs().Doc(id)

	var job entity.Job
	var log *entity.JobLog

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		log = nil
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		job = entity.Job{}
		if err := doc.DataTo(&job); err != nil {
			return err
		}
		job.ID = doc.Ref.ID

		log, err = mutate(&job)
		if err != nil {
			return err
		}
		if log == nil {
			return nil
		}

		if log.ID == "" {
			log.ID = uuid.New().String()
		}
		log.JobID = job.ID
		if err := tx.Set(ref, &job); err != nil {
			return err
		}
		return tx.Create(r.client.Collection(jobLogsCollection).Doc(log.ID), log)
	})
	if err != nil {
		return nil, nil, mapError("Job", "Failed to update job", err)
	}

	return &job, log, nil
}

func (r *firestoreJobRepository) ListLogs(ctx context.Context, jobID string) ([]*entity.JobLog, error) {
	docs, err := r.client.Collection(jobLogsCollection).
		Where("jobId", "==", jobID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError("Job log", "Failed to list job logs", err)
	}

	logs := make([]*entity.JobLog, 0, len(docs))
	for _, doc := range docs {
		var log entity.JobLog
		if err := doc.DataTo(&log); err != nil {
			logger.Warn("Skipping malformed job log %s: %v", doc.Ref.ID, err)
			continue
		}
		log.ID = doc.Ref.ID
		logs = append(logs, &log)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })
	return logs, nil
}

func (r *firestoreJobRepository) AcceptProposal(ctx context.Context, conversationID, messageID, responderID string, at time.Time, build repository.JobBuilder) (*entity.ChatMessage, *entity.Job, error) {
	msgRef := r.client.Collection(conversationsCollection).Doc(conversationID).
		Collection(messagesCollection).Doc(messageID)
	jobRef := r.jobs().Doc(messageID)

	var message entity.ChatMessage
	var job entity.Job

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// All reads must precede writes inside a Firestore transaction.
		msgDoc, err := tx.Get(msgRef)
		if err != nil {
			return err
		}
		decoded, err := decodeMessage(msgDoc)
		if err != nil {
			return err
		}
		message = *decoded
		if err := message.CheckResponder(responderID); err != nil {
			return err
		}

		jobDoc, err := tx.Get(jobRef)
		jobExists := err == nil
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		if jobExists {
			job = entity.Job{}
			if err := jobDoc.DataTo(&job); err != nil {
				return err
			}
			job.ID = jobDoc.Ref.ID
		} else {
			built, err := build(&message, responderID)
			if err != nil {
				return err
			}
			job = *built
			if err := tx.Create(jobRef, &job); err != nil {
				return err
			}
		}

		message.ProposalStatus = entity.ProposalAccepted
		message.RespondedBy = responderID
		message.RespondedAt = &at
		message.JobID = job.ID

		return tx.Update(msgRef, []firestore.Update{
			{Path: "proposalStatus", Value: entity.ProposalAccepted},
			{Path: "respondedBy", Value: responderID},
			{Path: "respondedAt", Value: at},
			{Path: "jobId", Value: job.ID},
		})
	})
	if err != nil {
		return nil, nil, mapError("Message", "Failed to accept proposal", err)
	}

	return &message, &job, nil
}

func decodeJobs(docs []*firestore.DocumentSnapshot) []*entity.Job {
	jobs := make([]*entity.Job, 0, len(docs))
	for _, doc := range docs {
		var job entity.Job
		if err := doc.DataTo(&job); err != nil {
			logger.Warn("Skipping malformed job %s: %v", doc.Ref.ID, err)
			continue
		}
		job.ID = doc.Ref.ID
		jobs = append(jobs, &job)
	}
	return jobs
}
