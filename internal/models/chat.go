package models

import "time"

// Chat represents a private chat between exactly two users.
// IsRead and Deleted are soft marks driven by the read_chat and delete_chat
// operations; neither removes the row.
type Chat struct {
	ID           int       `db:"id" json:"id"`
	User1ID      int       `db:"user1_id" json:"user1_id"`
	User2ID      int       `db:"user2_id" json:"user2_id"`
	IsRead       bool      `db:"is_read" json:"is_read"`
	Deleted      bool      `db:"deleted" json:"deleted"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CompanionID returns the other participant of the chat.
func (c Chat) CompanionID(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// HasParticipant reports whether the user belongs to the chat.
func (c Chat) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// ChatPayload is the serialized chat form sent over the wire. It is built
// relative to a viewing user: Companion is the other participant.
type ChatPayload struct {
	ID           int             `json:"id"`
	Companion    UserRef         `json:"companion"`
	IsRead       bool            `json:"is_read"`
	LastMessage  *MessagePayload `json:"last_message,omitempty"`
	LastActivity time.Time       `json:"last_activity"`
	CreatedAt    time.Time       `json:"created_at"`
}
