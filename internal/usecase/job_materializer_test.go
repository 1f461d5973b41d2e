package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbee/internal/domain/entity"
)

// acceptWithoutJob reproduces data written by the old two-write flow: the
// proposal is accepted but the job write never happened.
func acceptWithoutJob(t *testing.T, f *fixture, convID, msgID, responder string) *entity.ChatMessage {
	t.Helper()
	msg, err := f.convRepo.UpdateProposalStatus(context.Background(), convID, msgID, entity.ProposalAccepted, responder, time.Now())
	require.NoError(t, err)
	return msg
}

func TestBuildDerivesJob(t *testing.T) {
	f := newFixture(t)
	amount := 999.0
	msg := &entity.ChatMessage{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "worker",
		Content:        "Paint the fence",
		ContentType:    entity.ContentTypeProposal,
		ProposalAmount: &amount,
		ProposalStatus: entity.ProposalPending,
	}

	job, err := f.materializer.Build(msg, "customer")
	require.NoError(t, err)
	assert.Equal(t, "m1", job.ID)
	assert.Equal(t, "Paint the fence", job.Title)
	assert.Equal(t, 100.0, job.ServiceFee)
	assert.Equal(t, 1099.0, job.TotalAmount)

	_, err = f.materializer.Build(msg, "worker")
	assert.ErrorIs(t, err, entity.ErrSelfResponse)

	msg.ProposalAmount = nil
	job, err = f.materializer.Build(msg, "customer")
	require.NoError(t, err)
	assert.Equal(t, 0.0, job.TotalAmount)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "worker", "customer")
	msg := acceptWithoutJob(t, f, conv.ID, f.propose(t, conv.ID, "worker", 5000).ID, "customer")

	first, err := f.materializer.Materialize(ctx, msg, "customer")
	require.NoError(t, err)
	second, err := f.materializer.Materialize(ctx, msg, "customer")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	jobs, err := f.jobRepo.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	stored, err := f.convRepo.GetMessage(ctx, conv.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, stored.JobID)
}

func TestReconcileRepairsLegacyAccepts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "worker", "customer")

	// Job written, link lost.
	linkLost := acceptWithoutJob(t, f, conv.ID, f.propose(t, conv.ID, "worker", 100).ID, "customer")
	job, err := f.materializer.Build(linkLost, "customer")
	require.NoError(t, err)
	_, _, err = f.jobRepo.CreateIfAbsent(ctx, job)
	require.NoError(t, err)

	// Neither write happened.
	jobLost := acceptWithoutJob(t, f, conv.ID, f.propose(t, conv.ID, "customer", 200).ID, "worker")

	result, err := f.materializer.Reconcile(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{linkLost.ID}, result.Linked)
	assert.Equal(t, []string{jobLost.ID}, result.Created)

	created, err := f.jobRepo.GetByID(ctx, jobLost.ID)
	require.NoError(t, err)
	assert.Equal(t, "worker", created.CustomerID)
	assert.Equal(t, "customer", created.WorkerID)

	again, err := f.materializer.Reconcile(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Linked)
	assert.Empty(t, again.Created)
}
