package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbee/internal/domain/entity"
	"workbee/pkg/errors"
)

// These tests talk to a real Firestore and only run against the emulator.
func emulatorClient(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "workbee-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestFirestoreAppendAndAccept(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	convRepo := NewFirestoreConversationRepository(client)
	jobRepo := NewFirestoreJobRepository(client)

	conv := entity.NewConversation("worker", "customer", time.Now())
	require.NoError(t, convRepo.Create(ctx, conv))

	msg := proposal(conv.ID, "worker", 5000)
	require.NoError(t, convRepo.AppendMessage(ctx, msg))
	assert.Equal(t, int64(1), msg.Seq)

	stored, err := convRepo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnreadFor("customer"))

	_, _, err = jobRepo.AcceptProposal(ctx, conv.ID, msg.ID, "worker", time.Now(), testBuilder)
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition))

	accepted, job, err := jobRepo.AcceptProposal(ctx, conv.ID, msg.ID, "customer", time.Now(), testBuilder)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, accepted.JobID)
	assert.Equal(t, 5500.0, job.TotalAmount)

	_, _, err = jobRepo.AcceptProposal(ctx, conv.ID, msg.ID, "customer", time.Now(), testBuilder)
	assert.True(t, errors.Is(err, errors.CodeInvalidTransition))
}

func TestFirestoreGetMissingConversation(t *testing.T) {
	client := emulatorClient(t)
	_, err := NewFirestoreConversationRepository(client).GetByID(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

// Messages written by older clients were added with generated ids and carry no
// id or conversationId field.
func TestFirestoreMessageIDComesFromDocument(t *testing.T) {
	client := emulatorClient(t)
	ctx := context.Background()
	convRepo := NewFirestoreConversationRepository(client)
	jobRepo := NewFirestoreJobRepository(client)

	conv := entity.NewConversation("worker", "customer", time.Now())
	require.NoError(t, convRepo.Create(ctx, conv))

	ref, _, err := client.Collection(conversationsCollection).Doc(conv.ID).
		Collection(messagesCollection).Add(ctx, map[string]interface{}{
		"senderId":       "worker",
		"content":        "Fix the sink",
		"contentType":    string(entity.ContentTypeProposal),
		"seq":            int64(1),
		"createdAt":      time.Now(),
		"proposalAmount": 5000.0,
		"proposalStatus": string(entity.ProposalPending),
	})
	require.NoError(t, err)

	got, err := convRepo.GetMessage(ctx, conv.ID, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, ref.ID, got.ID)
	assert.Equal(t, conv.ID, got.ConversationID)

	listed, err := convRepo.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, ref.ID, listed[0].ID)

	accepted, job, err := jobRepo.AcceptProposal(ctx, conv.ID, ref.ID, "customer", time.Now(), testBuilder)
	require.NoError(t, err)
	assert.Equal(t, ref.ID, job.ID)
	assert.Equal(t, ref.ID, accepted.JobID)
	assert.Equal(t, conv.ID, job.ConversationID)

	stored, err := jobRepo.GetByID(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobAwaitingPayment, stored.Status)
}
