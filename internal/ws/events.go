package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/waflawe/eXwonder-backend/internal/models"
)

// renderEvent maps a broadcast event onto the outbound frame for one session.
// Handlers re-fetch referenced entities instead of trusting broadcast-time
// data, so every recipient sees the latest stored state. A nil return
// suppresses delivery.
func (d *Dispatcher) renderEvent(s *Session, evt models.Event) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), d.storeTimeout)
	defer cancel()

	switch evt.Type {
	case models.EventUserOnline, models.EventUserOffline:
		// Presence is never echoed to the user it describes; message events
		// are, since the sender's other sessions need them too.
		if user := s.User(); user != nil && user.ID == evt.User.ID {
			return nil
		}
		return marshalEvent(map[string]any{"type": evt.Type, "user": evt.User})

	case models.EventOnMessage:
		p, err := d.fetchMessagePayload(ctx, evt.MessageID)
		if err != nil {
			log.Printf("messenger: render %s: %v", evt.Type, err)
			return nil
		}
		return marshalEvent(map[string]any{"type": evt.Type, "payload": p})

	case models.EventEditMessage:
		p, err := d.fetchMessagePayload(ctx, evt.MessageID)
		if err != nil {
			log.Printf("messenger: render %s: %v", evt.Type, err)
			return nil
		}
		return marshalEvent(map[string]any{"type": evt.Type, "message": p})

	case models.EventDeleteMessage:
		user := s.User()
		if user == nil {
			return nil
		}
		msg, err := d.messages.GetMessage(ctx, evt.MessageID)
		if err != nil {
			log.Printf("messenger: render %s: %v", evt.Type, err)
			return nil
		}
		chat, err := d.chats.GetChat(ctx, msg.ChatID)
		if err != nil {
			log.Printf("messenger: render %s: %v", evt.Type, err)
			return nil
		}
		p, err := d.chatPayload(ctx, chat, user.ID)
		if err != nil {
			log.Printf("messenger: render %s: %v", evt.Type, err)
			return nil
		}
		return marshalEvent(map[string]any{"type": evt.Type, "message": evt.MessageID, "chat": p})

	case models.EventReadChat, models.EventDeleteChat:
		return marshalEvent(map[string]any{"type": evt.Type, "chat": evt.ChatID})

	case models.EventConnectToChat:
		user := s.User()
		if user == nil {
			return nil
		}
		// Joining is reactive: every active session of the receiver
		// subscribes to the new chat on receipt.
		s.joinChatGroup(ChatGroup(evt.ChatID))
		chat, err := d.chats.GetChat(ctx, evt.ChatID)
		if err != nil {
			log.Printf("messenger: render %s: %v", evt.Type, err)
			return nil
		}
		p, err := d.chatPayload(ctx, chat, user.ID)
		if err != nil {
			log.Printf("messenger: render %s: %v", evt.Type, err)
			return nil
		}
		return marshalEvent(map[string]any{"type": evt.Type, "payload": p})
	}
	return nil
}

func (d *Dispatcher) fetchMessagePayload(ctx context.Context, messageID int) (models.MessagePayload, error) {
	msg, err := d.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.MessagePayload{}, err
	}
	return d.messagePayload(ctx, msg)
}

func marshalEvent(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("messenger: marshal event: %v", err)
		return nil
	}
	return payload
}
