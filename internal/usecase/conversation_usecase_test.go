package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/internal/infrastructure/ratelimit"
	"workbee/pkg/errors"
)

func TestFindOrCreateReusesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.conversations.FindOrCreate(ctx, "zoe", "adam")
	require.NoError(t, err)
	assert.Equal(t, []string{"adam", "zoe"}, first.ParticipantIDs)
	assert.Equal(t, 0, first.UnreadFor("zoe"))
	assert.Equal(t, "", first.LastMessage)

	second, err := f.conversations.FindOrCreate(ctx, "adam", "zoe")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := f.conversations.FindOrCreate(ctx, "adam", "maya")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestFindOrCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.conversations.FindOrCreate(ctx, "adam", "adam")
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = f.conversations.FindOrCreate(ctx, "", "adam")
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestFindOrCreatePicksOldestDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older := entity.NewConversation("adam", "zoe", time.Now().Add(-time.Hour))
	newer := entity.NewConversation("adam", "zoe", time.Now())
	require.NoError(t, f.convRepo.Create(ctx, newer))
	require.NoError(t, f.convRepo.Create(ctx, older))

	got, err := f.conversations.FindOrCreate(ctx, "zoe", "adam")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
}

func TestUnreadAccounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")

	_, err := f.conversations.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "  Hi Bob  "})
	require.NoError(t, err)

	stored, err := f.conversations.Get(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UnreadFor("bob"))
	assert.Equal(t, 0, stored.UnreadFor("alice"))
	assert.Equal(t, "Hi Bob", stored.LastMessage)

	total, err := f.conversations.TotalUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	opened, err := f.conversations.Open(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, opened.UnreadFor("bob"))

	summaries, err := f.conversations.ListForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "alice", summaries[0].OtherParticipantID)
	assert.Equal(t, 0, summaries[0].UnreadCount)

	f.notifier.AssertCalled(t, "Notify", "bob", NotifyMessageCreated, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", "alice", NotifyMessageCreated, mock.Anything)
}

func TestSystemMessagesDoNotCountAsUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")

	_, err := f.conversations.SendSystemMessage(ctx, conv.ID, "Welcome")
	require.NoError(t, err)

	stored, err := f.conversations.Get(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", stored.LastMessage)
	assert.Equal(t, 0, stored.UnreadFor("alice"))
	assert.Equal(t, 0, stored.UnreadFor("bob"))
}

func TestSendMessageRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")

	_, err := f.conversations.SendMessage(ctx, "mallory", SendMessageInput{ConversationID: conv.ID, Content: "hi"})
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	_, err = f.conversations.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "   "})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = f.conversations.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: strings.Repeat("a", entity.MaxTextLength+1)})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = f.conversations.SendMessage(ctx, "alice", SendMessageInput{ConversationID: "missing", Content: "hi"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestSendMessageRateLimited(t *testing.T) {
	f := newFixture(t)
	f.limiter.WithPolicy(ratelimit.ActionSendMessage, ratelimit.Policy{Burst: 1, Refill: time.Hour})
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")

	_, err := f.conversations.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "one"})
	require.NoError(t, err)

	_, err = f.conversations.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "two"})
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests))
	f.notifier.AssertCalled(t, "Notify", "alice", NotifyRateLimited, mock.Anything)
}

func TestReopeningConversationIsNotRateLimited(t *testing.T) {
	f := newFixture(t)
	f.limiter.WithPolicy(ratelimit.ActionOpenConversation, ratelimit.Policy{Burst: 1, Refill: time.Hour})
	ctx := context.Background()

	first, err := f.conversations.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := f.conversations.FindOrCreate(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	}

	_, err = f.conversations.FindOrCreate(ctx, "alice", "carol")
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests))
}

func TestMessagesAreOrderedBySeq(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.conversation(t, "alice", "bob")

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.conversations.SendMessage(ctx, "bob", SendMessageInput{ConversationID: conv.ID, Content: text})
		require.NoError(t, err)
	}

	msgs, err := f.conversations.ListMessages(ctx, conv.ID, "alice", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, int64(3), msgs[1].Seq)

	_, err = f.conversations.ListMessages(ctx, conv.ID, "mallory", 0)
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestStreamOrderedResumesAfterSeq(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conv := f.conversation(t, "alice", "bob")

	_, err := f.conversations.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "seen"})
	require.NoError(t, err)

	_, err = f.conversations.StreamOrdered(ctx, conv.ID, "mallory", 0)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	stream, err := f.conversations.StreamOrdered(ctx, conv.ID, "bob", 1)
	require.NoError(t, err)

	_, err = f.conversations.SendMessage(ctx, "alice", SendMessageInput{ConversationID: conv.ID, Content: "new"})
	require.NoError(t, err)

	select {
	case ev := <-stream:
		assert.Equal(t, repository.MessageAdded, ev.Type)
		assert.Equal(t, "new", ev.Message.Content)
		assert.Equal(t, int64(2), ev.Message.Seq)
	case <-time.After(time.Second):
		t.Fatal("expected a streamed message")
	}
}
