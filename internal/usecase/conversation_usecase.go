package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/internal/infrastructure/ratelimit"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
)

type ConversationUseCase struct {
	convRepo    repository.ConversationRepository
	notifier    Notifier
	rateLimiter *ratelimit.RateLimiter
}

func NewConversationUseCase(
	convRepo repository.ConversationRepository,
	notifier Notifier,
	rateLimiter *ratelimit.RateLimiter,
) *ConversationUseCase {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.NewRateLimiter()
	}
	return &ConversationUseCase{
		convRepo:    convRepo,
		notifier:    notifier,
		rateLimiter: rateLimiter,
	}
}

// ConversationSummary is a conversation as seen by one participant.
type ConversationSummary struct {
	*entity.Conversation
	OtherParticipantID string `json:"other_participant_id"`
	UnreadCount        int    `json:"unread_count"`
}

type SendMessageInput struct {
	ConversationID string
	Content        string
}

func (uc *ConversationUseCase) allow(userID string, action ratelimit.Action) error {
	allowed, wait := uc.rateLimiter.Allow(userID, action)
	if allowed {
		return nil
	}
	logger.Warn("%s rate limited: user %s must wait %v", action, userID, wait)
	uc.notifier.Notify(userID, NotifyRateLimited, map[string]interface{}{
		"action":    action,
		"wait_time": wait.Seconds(),
	})
	return errors.TooManyRequests("Rate limit exceeded. Please wait before trying again")
}

// FindOrCreate returns the conversation between the two users, creating it on
// first contact. Only creation counts against the rate limit. Concurrent first
// contacts may create a duplicate thread; the oldest one is returned from then on.
func (uc *ConversationUseCase) FindOrCreate(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, errors.Validation("Both participants are required")
	}
	if userA == userB {
		return nil, errors.Validation("You cannot start a conversation with yourself")
	}
	existing, err := uc.findExisting(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := uc.allow(userA, ratelimit.ActionOpenConversation); err != nil {
		return nil, err
	}

	conversation := entity.NewConversation(userA, userB, time.Now())
	if err := uc.convRepo.Create(ctx, conversation); err != nil {
		logger.Error("Failed to create conversation between %s and %s: %v", userA, userB, err)
		return nil, err
	}

	logger.Info("Conversation %s created between %s and %s", conversation.ID, userA, userB)
	return conversation, nil
}

func (uc *ConversationUseCase) findExisting(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	conversations, err := uc.convRepo.ListByParticipant(ctx, userA)
	if err != nil {
		return nil, err
	}

	var matches []*entity.Conversation
	for _, c := range conversations {
		if c.IsBetween(userA, userB) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		logger.WithFields(logger.Fields{"user_a": userA, "user_b": userB, "count": len(matches)}).
			Warn("Duplicate conversations found, using the oldest")
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	return matches[0], nil
}

// Get returns the conversation if userID participates in it.
func (uc *ConversationUseCase) Get(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	conversation, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}
	return conversation, nil
}

func (uc *ConversationUseCase) ListForUser(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	conversations, err := uc.convRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		summaries = append(summaries, &ConversationSummary{
			Conversation:       c,
			OtherParticipantID: c.OtherParticipant(userID),
			UnreadCount:        c.UnreadFor(userID),
		})
	}
	return summaries, nil
}

func (uc *ConversationUseCase) TotalUnread(ctx context.Context, userID string) (int, error) {
	conversations, err := uc.convRepo.ListByParticipant(ctx, userID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, c := range conversations {
		total += c.UnreadFor(userID)
	}
	return total, nil
}

// Open resets the caller's unread counter.
func (uc *ConversationUseCase) Open(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	conversation, err := uc.Get(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conversation.UnreadFor(userID) == 0 {
		return conversation, nil
	}

	if err := uc.convRepo.ResetUnread(ctx, conversationID, userID); err != nil {
		logger.Error("Failed to reset unread counter of %s in %s: %v", userID, conversationID, err)
		return nil, err
	}
	conversation.UnreadCounts[userID] = 0
	return conversation, nil
}

func (uc *ConversationUseCase) SendMessage(ctx context.Context, userID string, input SendMessageInput) (*entity.ChatMessage, error) {
	if err := entity.ValidateText(input.Content, entity.MaxTextLength); err != nil {
		return nil, errors.Validation("Message " + err.Error())
	}
	if err := uc.allow(userID, ratelimit.ActionSendMessage); err != nil {
		return nil, err
	}

	conversation, err := uc.Get(ctx, input.ConversationID, userID)
	if err != nil {
		return nil, err
	}

	message := &entity.ChatMessage{
		ConversationID: conversation.ID,
		SenderID:       userID,
		Content:        strings.TrimSpace(input.Content),
		ContentType:    entity.ContentTypeText,
	}
	if err := uc.append(ctx, conversation, message); err != nil {
		return nil, err
	}
	return message, nil
}

// SendSystemMessage posts a platform message. It does not count as unread.
func (uc *ConversationUseCase) SendSystemMessage(ctx context.Context, conversationID, content string) (*entity.ChatMessage, error) {
	conversation, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	message := &entity.ChatMessage{
		ConversationID: conversationID,
		SenderID:       entity.SystemSenderID,
		Content:        content,
		ContentType:    entity.ContentTypeSystem,
	}
	if err := uc.append(ctx, conversation, message); err != nil {
		return nil, err
	}
	return message, nil
}

// append writes message and tells the other participants about it.
func (uc *ConversationUseCase) append(ctx context.Context, conversation *entity.Conversation, message *entity.ChatMessage) error {
	if err := uc.convRepo.AppendMessage(ctx, message); err != nil {
		logger.Error("Failed to append message to conversation %s: %v", conversation.ID, err)
		return err
	}

	for _, p := range conversation.ParticipantIDs {
		if p != message.SenderID {
			uc.notifier.Notify(p, NotifyMessageCreated, message)
		}
	}
	return nil
}

func (uc *ConversationUseCase) ListMessages(ctx context.Context, conversationID, userID string, afterSeq int64) ([]*entity.ChatMessage, error) {
	if _, err := uc.Get(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return uc.convRepo.ListMessages(ctx, conversationID, afterSeq)
}

// StreamOrdered replays messages after afterSeq and follows live changes
// until ctx is done. Resubscribe with the last seen seq to resume.
func (uc *ConversationUseCase) StreamOrdered(ctx context.Context, conversationID, userID string, afterSeq int64) (<-chan repository.MessageEvent, error) {
	if afterSeq < 0 {
		return nil, errors.Validation("after must not be negative")
	}
	if _, err := uc.Get(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return uc.convRepo.WatchMessages(ctx, conversationID, afterSeq)
}
