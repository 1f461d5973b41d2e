package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"workbee/internal/domain/entity"
	"workbee/internal/domain/repository"
	"workbee/pkg/errors"
)

// MemoryStore keeps conversations, messages and jobs in process. It is used by
// tests and by STORAGE_DRIVER=memory, and mirrors the Firestore repositories'
// transactional behaviour under a single mutex.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	messages      map[string]map[string]*entity.ChatMessage
	jobs          map[string]*entity.Job
	jobLogs       []*entity.JobLog
	watchers      map[string]map[*memoryWatcher]struct{}
}

type memoryWatcher struct {
	events chan repository.MessageEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*entity.Conversation),
		messages:      make(map[string]map[string]*entity.ChatMessage),
		jobs:          make(map[string]*entity.Job),
		watchers:      make(map[string]map[*memoryWatcher]struct{}),
	}
}

// Stored values are copied on the way in and out so callers never share
// memory with the store.

func copyConversation(c *entity.Conversation) *entity.Conversation {
	out := *c
	out.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	out.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	return &out
}

func copyMessage(m *entity.ChatMessage) *entity.ChatMessage {
	out := *m
	if m.ProposalAmount != nil {
		amount := *m.ProposalAmount
		out.ProposalAmount = &amount
	}
	if m.RespondedAt != nil {
		at := *m.RespondedAt
		out.RespondedAt = &at
	}
	return &out
}

func copyJob(j *entity.Job) *entity.Job {
	out := *j
	return &out
}

// publish must be called with mu held.
func (s *MemoryStore) publish(conversationID string, kind repository.MessageEventType, message *entity.ChatMessage) {
	for w := range s.watchers[conversationID] {
		select {
		case w.events <- repository.MessageEvent{Type: kind, Message: copyMessage(message)}:
		default:
			// Slow consumer: drop it rather than block writers.
			delete(s.watchers[conversationID], w)
			close(w.events)
		}
	}
}

type memoryConversationRepository struct {
	store *MemoryStore
}

func NewMemoryConversationRepository(store *MemoryStore) repository.ConversationRepository {
	return &memoryConversationRepository{store: store}
}

func (r *memoryConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	if _, exists := s.conversations[conversation.ID]; exists {
		return errors.Internal("Conversation already exists", nil)
	}
	s.conversations[conversation.ID] = copyConversation(conversation)
	s.messages[conversation.ID] = make(map[string]*entity.ChatMessage)
	return nil
}

func (r *memoryConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return copyConversation(c), nil
}

func (r *memoryConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, copyConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memoryConversationRepository) ResetUnread(ctx context.Context, conversationID, userID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int)
	}
	c.UnreadCounts[userID] = 0
	return nil
}

func (r *memoryConversationRepository) AppendMessage(ctx context.Context, message *entity.ChatMessage) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if err := message.ValidateShape(); err != nil {
		return errors.Validation(err.Error())
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[message.ConversationID]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if _, exists := s.messages[c.ID][message.ID]; exists {
		return errors.Internal("Message already exists", nil)
	}

	now := time.Now()
	message.Seq = c.MessageCount + 1
	message.CreatedAt = now
	c.MessageCount = message.Seq
	c.RecordMessage(message.Preview(), message.SenderID, now, message.ContentType != entity.ContentTypeSystem)

	s.messages[c.ID][message.ID] = copyMessage(message)
	s.publish(c.ID, repository.MessageAdded, message)
	return nil
}

func (r *memoryConversationRepository) GetMessage(ctx context.Context, conversationID, messageID string) (*entity.ChatMessage, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[conversationID][messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return copyMessage(m), nil
}

// sortedAfter must be called with mu held.
func (s *MemoryStore) sortedAfter(conversationID string, afterSeq int64) []*entity.ChatMessage {
	var out []*entity.ChatMessage
	for _, m := range s.messages[conversationID] {
		if m.Seq > afterSeq {
			out = append(out, copyMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (r *memoryConversationRepository) ListMessages(ctx context.Context, conversationID string, afterSeq int64) ([]*entity.ChatMessage, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return s.sortedAfter(conversationID, afterSeq), nil
}

func (r *memoryConversationRepository) WatchMessages(ctx context.Context, conversationID string, afterSeq int64) (<-chan repository.MessageEvent, error) {
	s := r.store
	s.mu.Lock()

	if _, ok := s.conversations[conversationID]; !ok {
		s.mu.Unlock()
		return nil, errors.NotFound("Conversation", nil)
	}

	backlog := s.sortedAfter(conversationID, afterSeq)
	w := &memoryWatcher{events: make(chan repository.MessageEvent, len(backlog)+64)}
	for _, m := range backlog {
		w.events <- repository.MessageEvent{Type: repository.MessageAdded, Message: m}
	}
	if s.watchers[conversationID] == nil {
		s.watchers[conversationID] = make(map[*memoryWatcher]struct{})
	}
	s.watchers[conversationID][w] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[conversationID][w]; ok {
			delete(s.watchers[conversationID], w)
			close(w.events)
		}
	}()

	return w.events, nil
}

func (r *memoryConversationRepository) UpdateProposalStatus(ctx context.Context, conversationID, messageID string, status entity.ProposalStatus, respondedBy string, at time.Time) (*entity.ChatMessage, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[conversationID][messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	if err := m.CheckResponder(respondedBy); err != nil {
		return nil, err
	}

	respondedAt := at
	m.ProposalStatus = status
	m.RespondedBy = respondedBy
	m.RespondedAt = &respondedAt
	s.publish(conversationID, repository.MessageModified, m)
	return copyMessage(m), nil
}

func (r *memoryConversationRepository) LinkJob(ctx context.Context, conversationID, messageID, jobID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[conversationID][messageID]
	if !ok {
		return errors.NotFound("Message", nil)
	}
	m.JobID = jobID
	s.publish(conversationID, repository.MessageModified, m)
	return nil
}

func (r *memoryConversationRepository) ListAcceptedUnlinked(ctx context.Context, conversationID string) ([]*entity.ChatMessage, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.ChatMessage
	for _, m := range s.sortedAfter(conversationID, 0) {
		if m.ProposalStatus == entity.ProposalAccepted && m.JobID == "" {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryConversationRepository) ListPendingProposalsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*entity.ChatMessage, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.ChatMessage
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.IsProposal() && m.ProposalStatus == entity.ProposalPending && m.CreatedAt.Before(cutoff) {
				out = append(out, copyMessage(m))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryJobRepository struct {
	store *MemoryStore
}

func NewMemoryJobRepository(store *MemoryStore) repository.JobRepository {
	return &memoryJobRepository{store: store}
}

func (r *memoryJobRepository) CreateIfAbsent(ctx context.Context, job *entity.Job) (*entity.Job, bool, error) {
	if job.ID == "" {
		return nil, false, errors.Validation("Job id is required")
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[job.ID]; ok {
		return copyJob(existing), false, nil
	}
	s.jobs[job.ID] = copyJob(job)
	return copyJob(job), true, nil
}

func (r *memoryJobRepository) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, errors.NotFound("Job", nil)
	}
	return copyJob(j), nil
}

func (r *memoryJobRepository) list(match func(*entity.Job) bool) []*entity.Job {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.Job
	for _, j := range s.jobs {
		if match(j) {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

func (r *memoryJobRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Job, error) {
	return r.list(func(j *entity.Job) bool { return j.ConversationID == conversationID }), nil
}

func (r *memoryJobRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Job, error) {
	return r.list(func(j *entity.Job) bool { return j.IsParty(userID) }), nil
}

func (r *memoryJobRepository) Transition(ctx context.Context, id string, mutate repository.JobMutation) (*entity.Job, *entity.JobLog, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[id]
	if !ok {
		return nil, nil, errors.NotFound("Job", nil)
	}

	// Mutate a copy so a failed guard leaves the stored job untouched.
	job := copyJob(stored)
	log, err := mutate(job)
	if err != nil {
		return nil, nil, err
	}
	if log == nil {
		return job, nil, nil
	}

	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.JobID = job.ID
	s.jobs[id] = copyJob(job)
	entry := *log
	s.jobLogs = append(s.jobLogs, &entry)
	return job, log, nil
}

func (r *memoryJobRepository) ListLogs(ctx context.Context, jobID string) ([]*entity.JobLog, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.JobLog
	for _, l := range s.jobLogs {
		if l.JobID == jobID {
			entry := *l
			out = append(out, &entry)
		}
	}
	return out, nil
}

func (r *memoryJobRepository) AcceptProposal(ctx context.Context, conversationID, messageID, responderID string, at time.Time, build repository.JobBuilder) (*entity.ChatMessage, *entity.Job, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[conversationID][messageID]
	if !ok {
		return nil, nil, errors.NotFound("Message", nil)
	}
	if err := m.CheckResponder(responderID); err != nil {
		return nil, nil, err
	}

	job, exists := s.jobs[messageID]
	if !exists {
		built, err := build(copyMessage(m), responderID)
		if err != nil {
			return nil, nil, err
		}
		job = copyJob(built)
		s.jobs[job.ID] = job
	}

	respondedAt := at
	m.ProposalStatus = entity.ProposalAccepted
	m.RespondedBy = responderID
	m.RespondedAt = &respondedAt
	m.JobID = job.ID
	s.publish(conversationID, repository.MessageModified, m)

	return copyMessage(m), copyJob(job), nil
}
