package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workbee/internal/domain/entity"
)

func TestExpiryRejectsStaleProposals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "worker", "customer")
	stale := f.propose(t, conv.ID, "worker", 100)
	answered := f.propose(t, conv.ID, "worker", 200)
	f.accept(t, conv.ID, answered.ID, "customer")

	job := NewProposalExpiryJob(f.convRepo, f.proposals, time.Hour)
	job.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, job.Run(ctx))

	msg, err := f.convRepo.GetMessage(ctx, conv.ID, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProposalRejected, msg.ProposalStatus)
	assert.Equal(t, entity.SystemSenderID, msg.RespondedBy)

	msg, err = f.convRepo.GetMessage(ctx, conv.ID, answered.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProposalAccepted, msg.ProposalStatus)

	assert.Equal(t, "Proposal expired without a response.", lastMessage(t, f, conv.ID, "worker").Content)
}

func TestExpiryLeavesFreshProposalsAndCanBeDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "worker", "customer")
	fresh := f.propose(t, conv.ID, "worker", 100)

	require.NoError(t, NewProposalExpiryJob(f.convRepo, f.proposals, time.Hour).Run(ctx))

	disabled := NewProposalExpiryJob(f.convRepo, f.proposals, 0)
	disabled.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	assert.False(t, disabled.Enabled())
	require.NoError(t, disabled.Run(ctx))

	msg, err := f.convRepo.GetMessage(ctx, conv.ID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ProposalPending, msg.ProposalStatus)
}
