package ws

import (
	"context"

	"github.com/waflawe/eXwonder-backend/internal/models"
)

// messagePayload projects a message row into its wire form, resolving the
// sender's display reference.
func (d *Dispatcher) messagePayload(ctx context.Context, msg models.Message) (models.MessagePayload, error) {
	sender, err := d.users.GetUser(ctx, msg.SenderID)
	if err != nil {
		return models.MessagePayload{}, err
	}
	return models.MessagePayload{
		ID:             msg.ID,
		ChatID:         msg.ChatID,
		Sender:         sender.Ref(),
		ReceiverID:     msg.ReceiverID,
		Body:           msg.Body,
		Attachment:     EncodeAttachment(msg.Attachment),
		AttachmentName: msg.AttachmentName,
		Edited:         msg.Edited,
		Deleted:        msg.Deleted,
		CreatedAt:      msg.CreatedAt,
	}, nil
}

// chatPayload projects a chat row into its wire form relative to a viewer:
// the companion is the other participant, and the latest visible message is
// attached when the chat has one.
func (d *Dispatcher) chatPayload(ctx context.Context, chat models.Chat, viewerID int) (models.ChatPayload, error) {
	companion, err := d.users.GetUser(ctx, chat.CompanionID(viewerID))
	if err != nil {
		return models.ChatPayload{}, err
	}

	p := models.ChatPayload{
		ID:           chat.ID,
		Companion:    companion.Ref(),
		IsRead:       chat.IsRead,
		LastActivity: chat.LastActivity,
		CreatedAt:    chat.CreatedAt,
	}

	last, err := d.messages.LatestMessage(ctx, chat.ID)
	if err != nil {
		return models.ChatPayload{}, err
	}
	if last != nil {
		mp, err := d.messagePayload(ctx, *last)
		if err != nil {
			return models.ChatPayload{}, err
		}
		p.LastMessage = &mp
	}
	return p, nil
}
