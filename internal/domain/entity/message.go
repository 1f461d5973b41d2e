package entity

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "workbee/pkg/errors"
)

type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeProposal ContentType = "proposal"
	ContentTypeSystem   ContentType = "system"
)

type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalCountered ProposalStatus = "countered"
	ProposalRejected  ProposalStatus = "rejected"
)

// ProposalAction is what a counterparty may do with a pending proposal.
type ProposalAction string

const (
	ActionAccept  ProposalAction = "accept"
	ActionReject  ProposalAction = "reject"
	ActionCounter ProposalAction = "counter"
)

// SystemSenderID is the sender of messages generated by the platform, and the
// responder recorded when a proposal expires.
const SystemSenderID = "system"

const (
	MaxTextLength        = 4000
	MaxDescriptionLength = 500
)

// Guard failures. They are shared values: compare with errors.Is, never mutate.
var (
	ErrNotProposal        = apperrors.Validation("Message is not a proposal")
	ErrProposalNotPending = apperrors.InvalidTransition("Proposal is no longer pending")
	ErrSelfResponse       = apperrors.InvalidTransition("You cannot respond to your own proposal")
	ErrUnknownAction      = apperrors.Validation("Action must be one of: accept reject counter")
)

type ChatMessage struct {
	ID             string      `json:"id" firestore:"id"`
	ConversationID string      `json:"conversation_id" firestore:"conversationId"`
	SenderID       string      `json:"sender_id" firestore:"senderId"`
	Content        string      `json:"content" firestore:"content"`
	ContentType    ContentType `json:"content_type" firestore:"contentType"`
	Seq            int64       `json:"seq" firestore:"seq"`
	CreatedAt      time.Time   `json:"created_at" firestore:"createdAt"`

	// Proposal-only fields.
	ProposalAmount *float64       `json:"proposal_amount,omitempty" firestore:"proposalAmount,omitempty"`
	ProposalStatus ProposalStatus `json:"proposal_status,omitempty" firestore:"proposalStatus,omitempty"`
	RespondedBy    string         `json:"responded_by,omitempty" firestore:"respondedBy,omitempty"`
	RespondedAt    *time.Time     `json:"responded_at,omitempty" firestore:"respondedAt,omitempty"`
	JobID          string         `json:"job_id,omitempty" firestore:"jobId,omitempty"`
}

func (m *ChatMessage) IsProposal() bool {
	return m.ContentType == ContentTypeProposal
}

// Amount returns the proposed price, 0 when absent.
func (m *ChatMessage) Amount() float64 {
	if m.ProposalAmount == nil {
		return 0
	}
	return *m.ProposalAmount
}

// CheckResponder applies the proposal guard: only a non-sender may respond and
// only while the proposal is pending.
func (m *ChatMessage) CheckResponder(responderID string) error {
	if !m.IsProposal() {
		return ErrNotProposal
	}
	if responderID == m.SenderID {
		return ErrSelfResponse
	}
	if m.ProposalStatus != ProposalPending {
		return ErrProposalNotPending
	}
	return nil
}

// StatusFor maps a response action to the terminal status it produces.
func StatusFor(action ProposalAction) (ProposalStatus, error) {
	switch action {
	case ActionAccept:
		return ProposalAccepted, nil
	case ActionReject:
		return ProposalRejected, nil
	case ActionCounter:
		return ProposalCountered, nil
	}
	return "", ErrUnknownAction
}

// ValidateShape checks that proposal fields are present iff the message is a proposal.
func (m *ChatMessage) ValidateShape() error {
	switch m.ContentType {
	case ContentTypeProposal:
		if m.ProposalAmount == nil || m.ProposalStatus == "" {
			return errors.New("proposal message requires amount and status")
		}
	case ContentTypeText, ContentTypeSystem:
		if m.ProposalAmount != nil || m.ProposalStatus != "" || m.JobID != "" {
			return errors.New("proposal fields are only allowed on proposal messages")
		}
	default:
		return errors.New("unknown content type")
	}
	return nil
}

// ValidateText checks a free-text body against the length limit.
func ValidateText(content string, max int) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("content is required")
	}
	if utf8.RuneCountInString(trimmed) > max {
		return errors.New("content is too long")
	}
	return nil
}

// Preview is the text stored as the conversation's last message.
func (m *ChatMessage) Preview() string {
	if m.IsProposal() {
		return "Price proposal: " + FormatAmount(m.Amount())
	}
	return m.Content
}
