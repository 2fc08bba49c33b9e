package models

// Event types delivered through broadcast groups. The names double as the
// outbound frame discriminators where the original protocol reuses them.
const (
	EventUserOnline    = "user_online"
	EventUserOffline   = "user_offline"
	EventOnMessage     = "on_message"
	EventEditMessage   = "send_edit_message"
	EventDeleteMessage = "send_delete_message"
	EventReadChat      = "send_read_chat"
	EventDeleteChat    = "send_delete_chat"
	EventConnectToChat = "connect_to_chat"
)

// Event is broadcast through the group registry. It carries ids only;
// delivery handlers re-fetch the referenced entities so every recipient sees
// freshly-read state rather than an event-time snapshot.
type Event struct {
	Type      string
	ChatID    int
	MessageID int
	// User is the display projection for presence events.
	User UserRef
	// OriginUserID identifies the user whose session produced the event.
	// Presence handlers suppress delivery to that user's own sessions.
	OriginUserID int
}
