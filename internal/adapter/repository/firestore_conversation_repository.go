package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
)

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) conversations() *firestore.CollectionRef {
	return r.client.Collection(conversationsCollection)
}

func (r *firestoreConversationRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.conversations().Doc(conversationID).Collection(messagesCollection)
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}

	_, err := r.conversations().Doc(conversation.ID).Create(ctx, conversation)
	if err != nil {
		return mapError("Conversation", "Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.conversations().Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError("Conversation", "Failed to get conversation", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	conversation.ID = doc.Ref.ID

	return &conversation, nil
}

func (r *firestoreConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	query := r.conversations().
		Where("participantIds", "array-contains", userID).
		OrderBy("updatedAt", firestore.Desc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while listing conversations for user %s: %v", userID, err)
		return nil, mapError("Conversation", "Failed to list conversations", err)
	}

	conversations := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			logger.Warn("Skipping malformed conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		conversation.ID = doc.Ref.ID
		conversations = append(conversations, &conversation)
	}

	return conversations, nil
}

func (r *firestoreConversationRepository) ResetUnread(ctx context.Context, conversationID, userID string) error {
	_, err := r.conversations().Doc(conversationID).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"unreadCounts", userID}, Value: 0},
	})
	if err != nil {
		return mapError("Conversation", "Failed to reset unread counter", err)
	}
	return nil
}

func (r *firestoreConversationRepository) AppendMessage(ctx context.Context, message *entity.ChatMessage) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if err := message.ValidateShape(); err != nil {
		return errors.Validation(err.Error())
	}

	convRef := r.conversations().Doc(message.ConversationID)
	msgRef := convRef.Collection(messagesCollection).Doc(message.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(convRef)
		if err != nil {
			return err
		}

		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			return err
		}

		now := time.Now()
		message.Seq = conversation.MessageCount + 1
		message.CreatedAt = now
		conversation.MessageCount = message.Seq
		conversation.RecordMessage(message.Preview(), message.SenderID, now, message.ContentType != entity.ContentTypeSystem)

		if err := tx.Create(msgRef, message); err != nil {
			return err
		}
		return tx.Update(convRef, []firestore.Update{
			{Path: "messageCount", Value: conversation.MessageCount},
			{Path: "lastMessage", Value: conversation.LastMessage},
			{Path: "updatedAt", Value: conversation.UpdatedAt},
			{Path: "unreadCounts", Value: conversation.UnreadCounts},
		})
	})
	if err != nil {
		return mapError("Conversation", "Failed to append message", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetMessage(ctx context.Context, conversationID, messageID string) (*entity.ChatMessage, error) {
	doc, err := r.messages(conversationID).Doc(messageID).Get(ctx)
	if err != nil {
		return nil, mapError("Message", "Failed to get message", err)
	}

	message, err := decodeMessage(doc)
	if err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return message, nil
}

func (r *firestoreConversationRepository) ListMessages(ctx context.Context, conversationID string, afterSeq int64) ([]*entity.ChatMessage, error) {
	query := r.messages(conversationID).
		Where("seq", ">", afterSeq).
		OrderBy("seq", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.ChatMessage
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logger.Error("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, mapError("Message", "Failed to iterate messages", err)
		}

		message, err := decodeMessage(doc)
		if err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, message)
	}

	return messages, nil
}

func (r *firestoreConversationRepository) WatchMessages(ctx context.Context, conversationID string, afterSeq int64) (<-chan repository.MessageEvent, error) {
	if _, err := r.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}

	iter := r.messages(conversationID).
		Where("seq", ">", afterSeq).
		OrderBy("seq", firestore.Asc).
		Snapshots(ctx)

	out := make(chan repository.MessageEvent, 64)
	go func() {
		defer close(out)
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					logger.Error("Message stream for conversation %s ended: %v", conversationID, err)
				}
				return
			}

			events := make([]repository.MessageEvent, 0, len(snap.Changes))
			for _, change := range snap.Changes {
				var kind repository.MessageEventType
				switch change.Kind {
				case firestore.DocumentAdded:
					kind = repository.MessageAdded
				case firestore.DocumentModified:
					kind = repository.MessageModified
				default:
					continue
				}

				message, err := decodeMessage(change.Doc)
				if err != nil {
					logger.Warn("Skipping malformed message %s: %v", change.Doc.Ref.ID, err)
					continue
				}
				events = append(events, repository.MessageEvent{Type: kind, Message: message})
			}
			sort.SliceStable(events, func(i, j int) bool {
				return events[i].Message.Seq < events[j].Message.Seq
			})

			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *firestoreConversationRepository) UpdateProposalStatus(ctx context.Context, conversationID, messageID string, proposalStatus entity.ProposalStatus, respondedBy string, at time.Time) (*entity.ChatMessage, error) {
	msgRef := r.messages(conversationID).Doc(messageID)

	var updated entity.ChatMessage
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(msgRef)
		if err != nil {
			return err
		}
		message, err := decodeMessage(doc)
		if err != nil {
			return err
		}
		updated = *message
		if err := updated.CheckResponder(respondedBy); err != nil {
			return err
		}

		updated.ProposalStatus = proposalStatus
		updated.RespondedBy = respondedBy
		updated.RespondedAt = &at

		return tx.Update(msgRef, []firestore.Update{
			{Path: "proposalStatus", Value: proposalStatus},
			{Path: "respondedBy", Value: respondedBy},
			{Path: "respondedAt", Value: at},
		})
	})
	if err != nil {
		return nil, mapError("Message", "Failed to update proposal status", err)
	}

	return &updated, nil
}

func (r *firestoreConversationRepository) LinkJob(ctx context.Context, conversationID, messageID, jobID string) error {
	_, err := r.messages(conversationID).Doc(messageID).Update(ctx, []firestore.Update{
		{Path: "jobId", Value: jobID},
	})
	if err != nil {
		return mapError("Message", "Failed to link job to message", err)
	}
	return nil
}

func (r *firestoreConversationRepository) ListAcceptedUnlinked(ctx context.Context, conversationID string) ([]*entity.ChatMessage, error) {
	docs, err := r.messages(conversationID).
		Where("proposalStatus", "==", string(entity.ProposalAccepted)).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError("Message", "Failed to list accepted proposals", err)
	}

	var out []*entity.ChatMessage
	for _, doc := range docs {
		message, err := decodeMessage(doc)
		if err != nil {
			logger.Warn("Skipping malformed message %s: %v", doc.Ref.ID, err)
			continue
		}
		// jobId is omitted until linked, so the filter has to run here.
		if message.JobID == "" {
			out = append(out, message)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *firestoreConversationRepository) ListPendingProposalsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*entity.ChatMessage, error) {
	query := r.client.CollectionGroup(messagesCollection).
		Where("proposalStatus", "==", string(entity.ProposalPending)).
		Where("createdAt", "<", cutoff)
	if limit > 0 {
		query = query.Limit(limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError("Message", "Failed to list pending proposals", err)
	}

	out := make([]*entity.ChatMessage, 0, len(docs))
	for _, doc := range docs {
		message, err := decodeMessage(doc)
		if err != nil {
			logger.Warn("Skipping malformed message %s: %v", doc.Ref.ID, err)
			continue
		}
		out = append(out, message)
	}
	return out, nil
}

// decodeMessage reads a message document. Messages written by older clients
// carry no id or conversationId field, so both come from the document path.
func decodeMessage(doc *firestore.DocumentSnapshot) (*entity.ChatMessage, error) {
	var message entity.ChatMessage
	if err := doc.DataTo(&message); err != nil {
		return nil, err
	}
	message.ID = doc.Ref.ID
	if message.ConversationID == "" && doc.Ref.Parent != nil && doc.Ref.Parent.Parent != nil {
		message.ConversationID = doc.Ref.Parent.Parent.ID
	}
	return &message, nil
}
