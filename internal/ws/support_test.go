package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/waflawe/eXwonder-backend/internal/auth"
	"github.com/waflawe/eXwonder-backend/internal/models"
	"github.com/waflawe/eXwonder-backend/internal/repositories"
)

// fakeConn is an in-memory wsConn. Inbound frames are fed through a channel;
// outbound frames are collected for assertions.
type fakeConn struct {
	in        chan []byte
	closeOnce sync.Once

	mu        sync.Mutex
	written   [][]byte
	deadlines int
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.in
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return websocket.TextMessage, data, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines++
	return nil
}

func (c *fakeConn) deadlineCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadlines
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.in) })
	return nil
}

func (c *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal test frame: %v", err)
	}
	c.in <- data
}

func (c *fakeConn) sendRaw(raw string) {
	c.in <- []byte(raw)
}

// frames decodes every frame written so far.
func (c *fakeConn) frames(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.written))
	for _, raw := range c.written {
		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("decode written frame %q: %v", raw, err)
		}
		out = append(out, frame)
	}
	return out
}

// waitFor polls the written frames until one matches the predicate.
func (c *fakeConn) waitFor(t *testing.T, what string, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, frame := range c.frames(t) {
			if match(frame) {
				return frame
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; got frames: %v", what, c.frames(t))
	return nil
}

func (c *fakeConn) waitForType(t *testing.T, frameType string) map[string]any {
	t.Helper()
	return c.waitFor(t, "frame of type "+frameType, func(f map[string]any) bool {
		return f["type"] == frameType
	})
}

func (c *fakeConn) waitForAck(t *testing.T) {
	t.Helper()
	c.waitFor(t, "ack", func(f map[string]any) bool {
		ok, _ := f["success"].(bool)
		return ok
	})
}

func (c *fakeConn) waitForError(t *testing.T, text string) {
	t.Helper()
	c.waitFor(t, "error "+text, func(f map[string]any) bool {
		return f["type"] == "error" && f["error"] == text
	})
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting until %s", what)
}

// memStore backs the repository interfaces with maps, mirroring the SQL
// semantics closely enough for session level tests.
type memStore struct {
	mu       sync.Mutex
	users    map[int]models.User
	chats    map[int]models.Chat
	messages map[int]models.Message
	nextChat int
	nextMsg  int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int]models.User),
		chats:    make(map[int]models.Chat),
		messages: make(map[int]models.Message),
		nextChat: 1,
		nextMsg:  1,
	}
}

func (m *memStore) addUser(user models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *memStore) user(id int) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *memStore) message(id int) (models.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	return msg, ok
}

func (m *memStore) chat(id int) (models.Chat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[id]
	return chat, ok
}

func (m *memStore) GetUser(_ context.Context, userID int) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return user, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrUserNotFound
}

func (m *memStore) SetUserOnline(_ context.Context, userID int) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	user.IsOnline = true
	m.users[userID] = user
	return user, nil
}

func (m *memStore) SetUserOffline(_ context.Context, userID int) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	now := time.Now()
	user.IsOnline = false
	user.LastOnline = &now
	m.users[userID] = user
	return user, nil
}

func (m *memStore) CreateOrGetChat(_ context.Context, userID int, friendID int) (models.Chat, error) {
	if userID == friendID {
		return models.Chat{}, errors.New("cannot create chat with self")
	}
	user1, user2 := userID, friendID
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chat := range m.chats {
		if chat.User1ID == user1 && chat.User2ID == user2 {
			return chat, nil
		}
	}
	now := time.Now()
	chat := models.Chat{
		ID:           m.nextChat,
		User1ID:      user1,
		User2ID:      user2,
		LastActivity: now,
		CreatedAt:    now,
	}
	m.nextChat++
	m.chats[chat.ID] = chat
	return chat, nil
}

func (m *memStore) GetChat(_ context.Context, chatID int) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, nil
}

func (m *memStore) ListChats(_ context.Context, userID int) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Chat
	for _, chat := range m.chats {
		if !chat.Deleted && chat.HasParticipant(userID) {
			list = append(list, chat)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastActivity.After(list[j].LastActivity)
	})
	return list, nil
}

func (m *memStore) MarkChatRead(_ context.Context, chatID int) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	chat.IsRead = true
	m.chats[chatID] = chat
	return chat, nil
}

func (m *memStore) MarkChatDeleted(_ context.Context, chatID int) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	chat.Deleted = true
	m.chats[chatID] = chat
	return chat, nil
}

func (m *memStore) CreateMessage(_ context.Context, chatID, senderID, receiverID int, body string, attachment []byte, attachmentName string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return models.Message{}, repositories.ErrChatNotFound
	}

	msg := models.Message{
		ID:             m.nextMsg,
		ChatID:         chatID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		Attachment:     attachment,
		AttachmentName: attachmentName,
		CreatedAt:      time.Now(),
	}
	m.nextMsg++
	m.messages[msg.ID] = msg

	chat.LastActivity = msg.CreatedAt
	chat.IsRead = false
	chat.Deleted = false
	m.chats[chatID] = chat
	return msg, nil
}

func (m *memStore) EditMessage(_ context.Context, messageID int, body string, attachment []byte, attachmentName string) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	msg.Body = body
	msg.Attachment = attachment
	msg.AttachmentName = attachmentName
	msg.Edited = true
	m.messages[messageID] = msg
	return msg, nil
}

func (m *memStore) MarkMessageDeleted(_ context.Context, messageID int) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	msg.Deleted = true
	m.messages[messageID] = msg
	return msg, nil
}

func (m *memStore) GetMessage(_ context.Context, messageID int) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return msg, nil
}

func (m *memStore) ListMessages(_ context.Context, chatID int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []models.Message
	for _, msg := range m.messages {
		if msg.ChatID == chatID && !msg.Deleted {
			list = append(list, msg)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *memStore) LatestMessage(_ context.Context, chatID int) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Message
	for id := range m.messages {
		msg := m.messages[id]
		if msg.ChatID != chatID || msg.Deleted {
			continue
		}
		if latest == nil || msg.ID > latest.ID {
			copied := msg
			latest = &copied
		}
	}
	return latest, nil
}

// testEnv wires a dispatcher over the in-memory store with real token
// validation.
type testEnv struct {
	store    *memStore
	registry *GroupRegistry
	d        *Dispatcher
	tokens   *auth.TokenService
}

func newTestEnv() *testEnv {
	store := newMemStore()
	registry := NewGroupRegistry()
	presence := NewPresenceTracker(store, registry)
	tokens := auth.NewTokenService("unit-test-secret")
	d := NewDispatcher(store, store, store, tokens, registry, presence, time.Second)
	return &testEnv{store: store, registry: registry, d: d, tokens: tokens}
}

func (e *testEnv) connect() (*fakeConn, *Session) {
	conn := newFakeConn()
	s := NewSession(conn, e.d, ConnInfo{ConnID: newConnID(), ConnectedAt: time.Now()}, 64, 0)
	s.Start()
	return conn, s
}

// authenticate drives the session through a valid authenticate frame.
func (e *testEnv) authenticate(t *testing.T, conn *fakeConn, s *Session, userID int) {
	t.Helper()
	token, err := e.tokens.CreateForUser(userID, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	conn.send(t, map[string]any{"type": "authenticate", "token": token, "user_id": userID})
	waitUntil(t, "session authenticated", func() bool { return s.User() != nil })
}

// subscribe drives connect_to_chats and waits for the chat list reply.
func (e *testEnv) subscribe(t *testing.T, conn *fakeConn, s *Session) map[string]any {
	t.Helper()
	conn.send(t, map[string]any{"type": "connect_to_chats"})
	reply := conn.waitForType(t, "connect_to_chats")
	waitUntil(t, "session subscribed", func() bool { return s.State() == StateSubscribed })
	return reply
}
