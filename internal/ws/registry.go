package ws

import (
	"fmt"
	"sync"

	"github.com/waflawe/eXwonder-backend/internal/models"
)

// ChatGroup names the broadcast group of a chat.
func ChatGroup(chatID int) string {
	return fmt.Sprintf("chat_%d", chatID)
}

// UserGroup names the personal broadcast group of a user. Every active
// connection of that user subscribes to it for cross-chat notifications.
func UserGroup(userID int) string {
	return fmt.Sprintf("user_%d_messenger", userID)
}

// Subscriber receives events broadcast into a group.
type Subscriber interface {
	Deliver(evt models.Event)
}

// GroupRegistry tracks which subscribers belong to which named group.
// Membership is process-local and ephemeral; a multi-process deployment would
// delegate Broadcast to a shared pub/sub transport.
type GroupRegistry struct {
	mu     sync.RWMutex
	groups map[string]map[Subscriber]struct{}
}

// NewGroupRegistry creates an empty registry.
func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{groups: make(map[string]map[Subscriber]struct{})}
}

// Join registers a subscriber into a group.
func (g *GroupRegistry) Join(group string, sub Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[group]; !ok {
		g.groups[group] = make(map[Subscriber]struct{})
	}
	g.groups[group][sub] = struct{}{}
}

// Leave removes a subscriber from a group. Empty groups are pruned.
func (g *GroupRegistry) Leave(group string, sub Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if subs, ok := g.groups[group]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(g.groups, group)
		}
	}
}

// Broadcast delivers the event to every subscriber currently in the group.
// Membership is snapshotted under the read lock and delivery happens outside
// it, so concurrent joins and leaves never produce a torn member set.
func (g *GroupRegistry) Broadcast(group string, evt models.Event) {
	g.mu.RLock()
	subs := make([]Subscriber, 0, len(g.groups[group]))
	for sub := range g.groups[group] {
		subs = append(subs, sub)
	}
	g.mu.RUnlock()

	for _, sub := range subs {
		sub.Deliver(evt)
	}
}

// MemberCount reports the current size of a group.
func (g *GroupRegistry) MemberCount(group string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.groups[group])
}

// Memberships reports how many groups the subscriber currently belongs to.
func (g *GroupRegistry) Memberships(sub Subscriber) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, subs := range g.groups {
		if _, ok := subs[sub]; ok {
			count++
		}
	}
	return count
}
