package repository

import (
	"context"
	"time"

	"workbee/internal/domain/entity"
)

type MessageEventType string

const (
	MessageAdded    MessageEventType = "added"
	MessageModified MessageEventType = "modified"
)

// MessageEvent is one item of a live ordered message stream.
type MessageEvent struct {
	Type    MessageEventType    `json:"type"`
	Message *entity.ChatMessage `json:"message"`
}

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	// ListByParticipant returns the user's conversations, most recently updated first.
	ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error)
	ResetUnread(ctx context.Context, conversationID, userID string) error

	// AppendMessage stamps seq and createdAt on the message and applies the
	// conversation side effect (last message, updatedAt, unread counters) in the
	// same write.
	AppendMessage(ctx context.Context, message *entity.ChatMessage) error
	GetMessage(ctx context.Context, conversationID, messageID string) (*entity.ChatMessage, error)
	// ListMessages returns messages with seq > afterSeq in ascending seq order.
	ListMessages(ctx context.Context, conversationID string, afterSeq int64) ([]*entity.ChatMessage, error)
	// WatchMessages replays messages after afterSeq and then streams live
	// changes until ctx is cancelled. The channel is closed when the stream ends.
	WatchMessages(ctx context.Context, conversationID string, afterSeq int64) (<-chan MessageEvent, error)

	// UpdateProposalStatus moves a pending proposal to status. It fails with an
	// INVALID_TRANSITION error if the proposal is no longer pending.
	UpdateProposalStatus(ctx context.Context, conversationID, messageID string, status entity.ProposalStatus, respondedBy string, at time.Time) (*entity.ChatMessage, error)
	LinkJob(ctx context.Context, conversationID, messageID, jobID string) error
	ListAcceptedUnlinked(ctx context.Context, conversationID string) ([]*entity.ChatMessage, error)
	ListPendingProposalsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*entity.ChatMessage, error)
}
