package ws

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/waflawe/eXwonder-backend/internal/auth"
	"github.com/waflawe/eXwonder-backend/internal/models"
	"github.com/waflawe/eXwonder-backend/internal/observability"
	"github.com/waflawe/eXwonder-backend/internal/repositories"
)

// Dispatcher executes inbound operations against the store and decides which
// groups hear about the result. Failures are reported only to the originating
// session and never close the connection.
type Dispatcher struct {
	users     repositories.UserRepository
	chats     repositories.ChatRepository
	messages  repositories.MessageRepository
	validator auth.TokenValidator
	registry  *GroupRegistry
	presence  *PresenceTracker

	storeTimeout time.Duration
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(
	users repositories.UserRepository,
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	validator auth.TokenValidator,
	registry *GroupRegistry,
	presence *PresenceTracker,
	storeTimeout time.Duration,
) *Dispatcher {
	if storeTimeout <= 0 {
		storeTimeout = 10 * time.Second
	}
	return &Dispatcher{
		users:        users,
		chats:        chats,
		messages:     messages,
		validator:    validator,
		registry:     registry,
		presence:     presence,
		storeTimeout: storeTimeout,
	}
}

// Handle runs one inbound frame to completion.
func (d *Dispatcher) Handle(s *Session, frame Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), d.storeTimeout)
	defer cancel()

	observability.IncWSEvent("messenger", frame.frameType())

	switch f := frame.(type) {
	case *AuthenticateFrame:
		d.authenticate(ctx, s, f)
	case *ConnectToChatsFrame:
		d.connectToChats(ctx, s)
	case *StartChatFrame:
		d.startChat(ctx, s, f)
	case *SendMessageFrame:
		d.sendMessage(ctx, s, f)
	case *EditMessageFrame:
		d.editMessage(ctx, s, f)
	case *DeleteMessageFrame:
		d.deleteMessage(ctx, s, f)
	case *ReadChatFrame:
		d.readChat(ctx, s, f)
	case *DeleteChatFrame:
		d.deleteChat(ctx, s, f)
	case *GetChatHistoryFrame:
		d.getChatHistory(ctx, s, f)
	}
}

func (d *Dispatcher) authenticate(ctx context.Context, s *Session, f *AuthenticateFrame) {
	if s.User() != nil {
		s.pushError("already authenticated")
		return
	}
	if f.Token == "" || f.UserID == 0 {
		s.pushError("token and user_id are required")
		return
	}
	if err := d.validator.Validate(ctx, f.Token, f.UserID); err != nil {
		// The connection stays open so the client may retry.
		observability.IncWSEvent("messenger", "auth_failure")
		s.pushError("authentication failed")
		return
	}

	user, err := d.presence.Online(ctx, f.UserID)
	if err != nil {
		d.fail(s, err)
		return
	}
	s.bindUser(user)
}

func (d *Dispatcher) connectToChats(ctx context.Context, s *Session) {
	user := d.requireUser(s)
	if user == nil {
		return
	}

	chats, err := d.chats.ListChats(ctx, user.ID)
	if err != nil {
		d.fail(s, err)
		return
	}

	payload := make([]models.ChatPayload, 0, len(chats))
	for _, chat := range chats {
		if s.joinChatGroup(ChatGroup(chat.ID)) {
			d.presence.AnnounceOnline(user.Ref(), ChatGroup(chat.ID))
		}
		p, err := d.chatPayload(ctx, chat, user.ID)
		if err != nil {
			log.Printf("messenger: serialize chat %d: %v", chat.ID, err)
			continue
		}
		payload = append(payload, p)
	}

	s.setSubscribed()
	s.reply(map[string]any{"type": "connect_to_chats", "payload": payload})
}

func (d *Dispatcher) startChat(ctx context.Context, s *Session, f *StartChatFrame) {
	user := d.requireUser(s)
	if user == nil {
		return
	}
	if f.Receiver == "" {
		s.pushError("receiver is required")
		return
	}

	receiver, err := d.users.GetUserByUsername(ctx, f.Receiver)
	if errors.Is(err, repositories.ErrUserNotFound) {
		// Reported inside the normal reply envelope, not as a protocol error.
		s.reply(map[string]any{
			"type":    "chat_started",
			"payload": map[string]any{"error_get_user": f.Receiver},
		})
		return
	}
	if err != nil {
		d.fail(s, err)
		return
	}

	chat, err := d.chats.CreateOrGetChat(ctx, user.ID, receiver.ID)
	if err != nil {
		d.fail(s, err)
		return
	}

	s.joinChatGroup(ChatGroup(chat.ID))
	d.registry.Broadcast(UserGroup(receiver.ID), models.Event{
		Type:         models.EventConnectToChat,
		ChatID:       chat.ID,
		OriginUserID: user.ID,
	})

	p, err := d.chatPayload(ctx, chat, user.ID)
	if err != nil {
		d.fail(s, err)
		return
	}
	s.reply(map[string]any{"type": "chat_started", "payload": p})
}

func (d *Dispatcher) sendMessage(ctx context.Context, s *Session, f *SendMessageFrame) {
	user := d.requireUser(s)
	if user == nil {
		return
	}
	if f.ChatID == 0 || f.Receiver == 0 {
		s.pushError("chat_id and receiver are required")
		return
	}
	attachment, err := DecodeAttachment(f.Attachment)
	if err != nil {
		s.pushError("invalid attachment encoding")
		return
	}

	msg, err := d.messages.CreateMessage(ctx, f.ChatID, user.ID, f.Receiver, f.Body, attachment, f.AttachmentName)
	if err != nil {
		d.fail(s, err)
		return
	}

	s.ack()
	d.registry.Broadcast(ChatGroup(msg.ChatID), models.Event{
		Type:         models.EventOnMessage,
		ChatID:       msg.ChatID,
		MessageID:    msg.ID,
		OriginUserID: user.ID,
	})
}

func (d *Dispatcher) editMessage(ctx context.Context, s *Session, f *EditMessageFrame) {
	user := d.requireUser(s)
	if user == nil {
		return
	}
	if f.Message == 0 || f.Body == "" {
		s.pushError("message and body are required")
		return
	}

	existing, err := d.messages.GetMessage(ctx, f.Message)
	if err != nil {
		d.fail(s, err)
		return
	}
	if existing.SenderID != user.ID {
		s.pushError("not the message author")
		return
	}

	attachment, err := DecodeAttachment(f.Attachment)
	if err != nil {
		s.pushError("invalid attachment encoding")
		return
	}

	msg, err := d.messages.EditMessage(ctx, f.Message, f.Body, attachment, f.AttachmentName)
	if err != nil {
		d.fail(s, err)
		return
	}

	s.ack()
	d.registry.Broadcast(ChatGroup(msg.ChatID), models.Event{
		Type:         models.EventEditMessage,
		ChatID:       msg.ChatID,
		MessageID:    msg.ID,
		OriginUserID: user.ID,
	})
}

func (d *Dispatcher) deleteMessage(ctx context.Context, s *Session, f *DeleteMessageFrame) {
	user := d.requireUser(s)
	if user == nil {
		return
	}

	msg, err := d.messages.MarkMessageDeleted(ctx, f.ID)
	if err != nil {
		d.fail(s, err)
		return
	}

	s.ack()
	d.registry.Broadcast(ChatGroup(msg.ChatID), models.Event{
		Type:         models.EventDeleteMessage,
		ChatID:       msg.ChatID,
		MessageID:    msg.ID,
		OriginUserID: user.ID,
	})
}

func (d *Dispatcher) readChat(ctx context.Context, s *Session, f *ReadChatFrame) {
	user := d.requireUser(s)
	if user == nil {
		return
	}

	chat, err := d.chats.MarkChatRead(ctx, f.ID)
	if err != nil {
		d.fail(s, err)
		return
	}

	// No direct ack; the broadcast is the only signal.
	d.registry.Broadcast(ChatGroup(chat.ID), models.Event{
		Type:         models.EventReadChat,
		ChatID:       chat.ID,
		OriginUserID: user.ID,
	})
}

func (d *Dispatcher) deleteChat(ctx context.Context, s *Session, f *DeleteChatFrame) {
	user := d.requireUser(s)
	if user == nil {
		return
	}

	chat, err := d.chats.MarkChatDeleted(ctx, f.ID)
	if err != nil {
		d.fail(s, err)
		return
	}

	s.ack()
	d.registry.Broadcast(ChatGroup(chat.ID), models.Event{
		Type:         models.EventDeleteChat,
		ChatID:       chat.ID,
		OriginUserID: user.ID,
	})
}

func (d *Dispatcher) getChatHistory(ctx context.Context, s *Session, f *GetChatHistoryFrame) {
	user := d.requireUser(s)
	if user == nil {
		return
	}

	msgs, err := d.messages.ListMessages(ctx, f.Chat)
	if err != nil {
		d.fail(s, err)
		return
	}

	payload := make([]models.MessagePayload, 0, len(msgs))
	for _, msg := range msgs {
		p, err := d.messagePayload(ctx, msg)
		if err != nil {
			log.Printf("messenger: serialize message %d: %v", msg.ID, err)
			continue
		}
		payload = append(payload, p)
	}
	s.reply(map[string]any{"type": "get_chat_history", "chat": f.Chat, "payload": payload})
}

func (d *Dispatcher) requireUser(s *Session) *models.User {
	user := s.User()
	if user == nil {
		s.pushError("not authenticated")
	}
	return user
}

// fail reports an operation failure to the originating session only. Store
// failures are logged and surfaced as a generic error.
func (d *Dispatcher) fail(s *Session, err error) {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrUserNotFound):
		s.pushError(err.Error())
	default:
		log.Printf("messenger: store failure: %v", err)
		s.pushError("internal error")
	}
}
