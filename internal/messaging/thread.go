// Package messaging implements two-party conversation threads with unread
// bookkeeping and best-effort realtime delivery.
package messaging

import "time"

// ThreadStatus is the lifecycle state of a thread.
type ThreadStatus string

// Thread statuses. Archiving is a soft state change; messages are retained.
const (
	ThreadStatusActive   ThreadStatus = "active"
	ThreadStatusArchived ThreadStatus = "archived"
)

// Thread is a conversation between exactly two participants, optionally
// anchored to a spot listing. LastMessageAt/LastMessagePreview and the
// unread counters are denormalized for list rendering and maintained in the
// same transaction as every message insert.
type Thread struct {
	ID                 string       `json:"id"`
	ParticipantA       string       `json:"participant_a"`
	ParticipantB       string       `json:"participant_b"`
	SpotID             *string      `json:"spot_id,omitempty"`
	LastMessageAt      *time.Time   `json:"last_message_at,omitempty"`
	LastMessagePreview string       `json:"last_message_preview"`
	UnreadA            int          `json:"unread_a"`
	UnreadB            int          `json:"unread_b"`
	Status             ThreadStatus `json:"status"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// IsParticipant reports whether userID is one of the thread's two parties.
func (t *Thread) IsParticipant(userID string) bool {
	return userID == t.ParticipantA || userID == t.ParticipantB
}

// OtherParticipant returns the counterpart of userID in the thread.
func (t *Thread) OtherParticipant(userID string) string {
	if userID == t.ParticipantA {
		return t.ParticipantB
	}
	return t.ParticipantA
}

// UnreadFor returns the unread counter belonging to userID.
func (t *Thread) UnreadFor(userID string) int {
	if userID == t.ParticipantA {
		return t.UnreadA
	}
	return t.UnreadB
}

// Message is one unit of conversation content, owned by its thread.
type Message struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}
