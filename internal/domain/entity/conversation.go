package entity

import (
	"sort"
	"time"
)

// Conversation is a two-party chat thread. ParticipantIDs is sorted and never
// changes after creation.
type Conversation struct {
	ID             string         `json:"id" firestore:"id"`
	ParticipantIDs []string       `json:"participant_ids" firestore:"participantIds"`
	LastMessage    string         `json:"last_message" firestore:"lastMessage"`
	UnreadCounts   map[string]int `json:"unread_counts" firestore:"unreadCounts"`
	MessageCount   int64          `json:"message_count" firestore:"messageCount"` // last assigned message seq
	CreatedAt      time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time      `json:"updated_at" firestore:"updatedAt"`
}

// NewConversation builds the canonical document for a pair of users.
func NewConversation(userA, userB string, now time.Time) *Conversation {
	return &Conversation{
		ParticipantIDs: CanonicalPair(userA, userB),
		LastMessage:    "",
		UnreadCounts:   map[string]int{userA: 0, userB: 0},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CanonicalPair returns the two ids in sorted order.
func CanonicalPair(userA, userB string) []string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.ParticipantIDs {
		if p == userID {
			return true
		}
	}
	return false
}

// IsBetween reports whether the conversation's participant set is exactly {userA, userB}.
func (c *Conversation) IsBetween(userA, userB string) bool {
	return len(c.ParticipantIDs) == 2 && c.HasParticipant(userA) && c.HasParticipant(userB)
}

// OtherParticipant returns the counterparty of userID, or "" if userID is not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, p := range c.ParticipantIDs {
		if p != userID {
			return p
		}
	}
	return ""
}

func (c *Conversation) UnreadFor(userID string) int {
	if c.UnreadCounts == nil {
		return 0
	}
	return c.UnreadCounts[userID]
}

// RecordMessage applies the denormalized side effect of a newly appended
// message. System messages (empty recipient) leave unread counters untouched.
func (c *Conversation) RecordMessage(preview, senderID string, at time.Time, countUnread bool) {
	c.LastMessage = preview
	c.UpdatedAt = at
	if !countUnread {
		return
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int)
	}
	for _, p := range c.ParticipantIDs {
		if p != senderID {
			c.UnreadCounts[p]++
		}
	}
}
