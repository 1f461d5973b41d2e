package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	adapterrepo "workbee/internal/adapter/repository"
	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/internal/domain/service"
	"workbee/internal/infrastructure/ratelimit"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, event service.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(userID, eventType string, data interface{}) {
	m.Called(userID, eventType, data)
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) Initialize(ctx context.Context, req service.InitializeRequest) (*service.InitializeResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*service.InitializeResponse)
	return resp, args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, reference string) (*service.TransactionStatus, error) {
	args := m.Called(ctx, reference)
	status, _ := args.Get(0).(*service.TransactionStatus)
	return status, args.Error(1)
}

func (m *mockGateway) ParseWebhook(body []byte, signature string) (*service.WebhookEvent, error) {
	args := m.Called(body, signature)
	event, _ := args.Get(0).(*service.WebhookEvent)
	return event, args.Error(1)
}

type fixture struct {
	convRepo      repository.ConversationRepository
	jobRepo       repository.JobRepository
	limiter       *ratelimit.RateLimiter
	publisher     *mockPublisher
	notifier      *mockNotifier
	conversations *ConversationUseCase
	materializer  *JobMaterializer
	proposals     *ProposalUseCase
	jobs          *JobUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := adapterrepo.NewMemoryStore()
	f := &fixture{
		convRepo:  adapterrepo.NewMemoryConversationRepository(store),
		jobRepo:   adapterrepo.NewMemoryJobRepository(store),
		limiter:   ratelimit.NewRateLimiter(),
		publisher: &mockPublisher{},
		notifier:  &mockNotifier{},
	}
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()

	f.conversations = NewConversationUseCase(f.convRepo, f.notifier, f.limiter)
	f.materializer = NewJobMaterializer(f.convRepo, f.jobRepo, "ngn")
	f.proposals = NewProposalUseCase(f.conversations, f.convRepo, f.jobRepo, f.materializer, f.publisher, f.notifier)
	f.jobs = NewJobUseCase(f.jobRepo, f.conversations, f.publisher, f.notifier)
	return f
}

func (f *fixture) conversation(t *testing.T, a, b string) *entity.Conversation {
	t.Helper()
	conv, err := f.conversations.FindOrCreate(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func (f *fixture) propose(t *testing.T, convID, sender string, amount float64) *entity.ChatMessage {
	t.Helper()
	msg, err := f.proposals.SendProposal(context.Background(), SendProposalInput{
		ConversationID: convID,
		SenderID:       sender,
		Amount:         amount,
		Description:    "Replace the kitchen tap and fix the leak under the sink",
	})
	require.NoError(t, err)
	return msg
}

func (f *fixture) accept(t *testing.T, convID, msgID, responder string) *ProposalResponse {
	t.Helper()
	resp, err := f.proposals.RespondToProposal(context.Background(), RespondInput{
		ConversationID: convID,
		MessageID:      msgID,
		ResponderID:    responder,
		Action:         entity.ActionAccept,
	})
	require.NoError(t, err)
	return resp
}

func lastMessage(t *testing.T, f *fixture, convID, userID string) *entity.ChatMessage {
	t.Helper()
	msgs, err := f.conversations.ListMessages(context.Background(), convID, userID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}
