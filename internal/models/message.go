package models

import "time"

// Message represents a chat message. A message is immutable once created
// except for body/attachment via an edit and the Deleted flag via a delete.
type Message struct {
	ID             int       `db:"id" json:"id"`
	ChatID         int       `db:"chat_id" json:"chat_id"`
	SenderID       int       `db:"sender_id" json:"sender_id"`
	ReceiverID     int       `db:"receiver_id" json:"receiver_id"`
	Body           string    `db:"body" json:"body"`
	Attachment     []byte    `db:"attachment" json:"-"`
	AttachmentName string    `db:"attachment_name" json:"attachment_name"`
	Edited         bool      `db:"edited" json:"edited"`
	Deleted        bool      `db:"deleted" json:"deleted"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MessagePayload is the serialized message form sent over the wire.
// Attachment carries the base64 encoding of the stored bytes.
type MessagePayload struct {
	ID             int       `json:"id"`
	ChatID         int       `json:"chat_id"`
	Sender         UserRef   `json:"sender"`
	ReceiverID     int       `json:"receiver"`
	Body           string    `json:"body,omitempty"`
	Attachment     string    `json:"attachment,omitempty"`
	AttachmentName string    `json:"attachment_name,omitempty"`
	Edited         bool      `json:"edited"`
	Deleted        bool      `json:"deleted"`
	CreatedAt      time.Time `json:"created_at"`
}
