package ws

import (
	"context"
	"log"

	"github.com/waflawe/eXwonder-backend/internal/models"
	"github.com/waflawe/eXwonder-backend/internal/repositories"
)

// PresenceTracker flips the stored online flag on authenticate/disconnect and
// announces the transitions to chat groups. Announcements follow the
// session's own group set, one signal per connection; overlapping connections
// of the same user are not deduplicated.
type PresenceTracker struct {
	users    repositories.UserRepository
	registry *GroupRegistry
}

// NewPresenceTracker constructs a PresenceTracker.
func NewPresenceTracker(users repositories.UserRepository, registry *GroupRegistry) *PresenceTracker {
	return &PresenceTracker{users: users, registry: registry}
}

// Online marks the user online and returns the updated row.
func (p *PresenceTracker) Online(ctx context.Context, userID int) (models.User, error) {
	return p.users.SetUserOnline(ctx, userID)
}

// AnnounceOnline broadcasts a user_online notice into one chat group.
func (p *PresenceTracker) AnnounceOnline(user models.UserRef, group string) {
	p.registry.Broadcast(group, models.Event{
		Type:         models.EventUserOnline,
		User:         user,
		OriginUserID: user.ID,
	})
}

// Offline marks the user offline and broadcasts user_offline to every chat
// group the disconnecting session was joined to. The store failure is logged
// and the announcement still goes out; teardown must not be skipped.
func (p *PresenceTracker) Offline(ctx context.Context, user models.User, chatGroups []string) {
	updated, err := p.users.SetUserOffline(ctx, user.ID)
	if err != nil {
		log.Printf("messenger: set user %d offline: %v", user.ID, err)
		updated = user
		updated.IsOnline = false
	}

	ref := updated.Ref()
	for _, group := range chatGroups {
		p.registry.Broadcast(group, models.Event{
			Type:         models.EventUserOffline,
			User:         ref,
			OriginUserID: user.ID,
		})
	}
}
