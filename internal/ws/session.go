package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/waflawe/eXwonder-backend/internal/models"
)

// SessionState tracks the connection lifecycle.
type SessionState int32

const (
	StateConnected SessionState = iota
	StateAuthenticated
	StateSubscribed
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// wsConn is the subset of *websocket.Conn the session needs. Tests substitute
// an in-memory transport.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session owns the state of one websocket connection: the authenticated user,
// the set of joined group names and the frame pumps. Inbound frames are
// processed by a single worker goroutine, so operations from one connection
// are strictly ordered while store calls stay off the read path. Outbound
// frames flow through a buffered send channel drained by the write pump.
type Session struct {
	id   string
	conn wsConn
	d    *Dispatcher
	info ConnInfo

	mu        sync.Mutex
	state     SessionState
	user      *models.User
	chats     []string
	userGroup string

	inbound      chan Frame
	send         chan []byte
	done         chan struct{}
	wg           sync.WaitGroup
	closing      sync.Once
	writeTimeout time.Duration

	// onClose runs once after teardown completes; the transport handler uses
	// it for metrics and observability events.
	onClose func(*Session)
}

// NewSession constructs a session in the Connected state.
func NewSession(conn wsConn, d *Dispatcher, info ConnInfo, sendBuffer int, writeTimeout time.Duration) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Session{
		id:           info.ConnID,
		conn:         conn,
		d:            d,
		info:         info,
		state:        StateConnected,
		inbound:      make(chan Frame, 16),
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Start launches the read pump, the worker and the write pump.
func (s *Session) Start() {
	s.wg.Add(2)
	go s.readPump()
	go s.run()
	go s.writePump()
}

// wait blocks until the worker and write pump have exited. Test helper.
func (s *Session) wait() {
	s.wg.Wait()
}

func (s *Session) readPump() {
	defer close(s.inbound)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			s.pushError("malformed frame")
			continue
		}
		if frame == nil {
			// Unknown frame type: skipped for forward compatibility.
			continue
		}
		select {
		case s.inbound <- frame:
		case <-s.done:
			return
		}
	}
}

// run processes inbound frames in order. When the read pump closes the
// channel the remaining frames are drained first, so a disconnect never
// interrupts an in-flight store call, then teardown runs exactly once.
func (s *Session) run() {
	defer s.wg.Done()
	for frame := range s.inbound {
		s.d.Handle(s, frame)
	}
	s.teardown()
}

func (s *Session) writePump() {
	defer s.wg.Done()
	for {
		select {
		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				log.Printf("websocket write error: %v", err)
				s.conn.Close()
			}
		case <-s.done:
			for {
				select {
				case msg := <-s.send:
					_ = s.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(msg []byte) error {
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// Deliver implements Subscriber. The event is rendered against fresh store
// state and queued for writing; rendering may suppress the frame entirely
// (presence echoes back to the originating user).
func (s *Session) Deliver(evt models.Event) {
	select {
	case <-s.done:
		return
	default:
	}
	payload := s.d.renderEvent(s, evt)
	if payload == nil {
		return
	}
	s.push(payload)
}

func (s *Session) push(msg []byte) {
	select {
	case s.send <- msg:
	case <-s.done:
	default:
		// Slow consumer. Closing the transport lets the read pump fail and
		// the worker run normal teardown instead of blocking a broadcast.
		log.Printf("session %s: send buffer full, dropping connection", s.id)
		s.conn.Close()
	}
}

func (s *Session) reply(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("session %s: marshal reply: %v", s.id, err)
		return
	}
	s.push(payload)
}

func (s *Session) ack() {
	s.reply(map[string]any{"success": true})
}

func (s *Session) pushError(text string) {
	s.reply(map[string]any{"type": "error", "error": text})
}

// User returns the authenticated user, or nil before authentication.
func (s *Session) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// bindUser transitions Connected -> Authenticated: the user is attached and
// the session joins its personal messenger group.
func (s *Session) bindUser(user models.User) {
	group := UserGroup(user.ID)
	s.mu.Lock()
	s.user = &user
	s.state = StateAuthenticated
	s.userGroup = group
	s.mu.Unlock()
	s.d.registry.Join(group, s)
}

func (s *Session) setSubscribed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated {
		s.state = StateSubscribed
	}
}

// joinChatGroup registers the session into a chat group, once. Reports
// whether the group was newly joined. Reactive joins arrive on broadcasting
// goroutines and can race teardown, so a closed session refuses the join and
// a join that lands between teardown's membership snapshot and its leave loop
// is rolled back here.
func (s *Session) joinChatGroup(group string) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	for _, joined := range s.chats {
		if joined == group {
			s.mu.Unlock()
			return false
		}
	}
	s.chats = append(s.chats, group)
	s.mu.Unlock()
	s.d.registry.Join(group, s)

	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		// Teardown snapshotted the chat list before the Join above landed.
		s.d.registry.Leave(group, s)
		return false
	}
	return true
}

// chatGroups returns a copy of the joined chat group names.
func (s *Session) chatGroups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chats...)
}

// teardown runs the Closed transition exactly once: the user goes offline,
// every joined chat group hears it, and all memberships are dropped. Before
// authentication it only closes the transport.
func (s *Session) teardown() {
	s.closing.Do(func() {
		s.mu.Lock()
		user := s.user
		chats := append([]string(nil), s.chats...)
		userGroup := s.userGroup
		s.state = StateClosed
		s.mu.Unlock()

		if user != nil {
			s.d.presence.Offline(context.Background(), *user, chats)
		}
		for _, group := range chats {
			s.d.registry.Leave(group, s)
		}
		if userGroup != "" {
			s.d.registry.Leave(userGroup, s)
		}

		close(s.done)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}
