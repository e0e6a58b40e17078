// ABOUTME: Cached per-room facts: direct or group, room name, member display names
// ABOUTME: Also maps direct-chat correspondents to their room for outbound replies

package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// directMaxMembers is the largest joined-member count treated as a direct chat.
const directMaxMembers = 2

// roomLookup fetches room state from the homeserver.
type roomLookup interface {
	Members(ctx context.Context, roomID id.RoomID) (map[id.UserID]string, error)
	Name(ctx context.Context, roomID id.RoomID) (string, error)
}

type roomInfo struct {
	direct bool
	// counterpart is the other member of a direct room.
	counterpart id.UserID
	name        string
	members     map[id.UserID]string
}

// displayName returns the member's display name, falling back to the user ID.
func (r *roomInfo) displayName(user id.UserID) string {
	if name := r.members[user]; name != "" {
		return name
	}
	return user.String()
}

type roomCache struct {
	lookup roomLookup

	mu     sync.Mutex
	rooms  map[id.RoomID]*roomInfo
	direct map[id.UserID]id.RoomID
}

func newRoomCache(lookup roomLookup) *roomCache {
	return &roomCache{
		lookup: lookup,
		rooms:  make(map[id.RoomID]*roomInfo),
		direct: make(map[id.UserID]id.RoomID),
	}
}

// get returns cached facts for roomID, fetching them on first use. self is
// the bot's user ID, used to find the counterpart of a direct room.
func (c *roomCache) get(ctx context.Context, roomID id.RoomID, self id.UserID) (*roomInfo, error) {
	c.mu.Lock()
	info, ok := c.rooms[roomID]
	c.mu.Unlock()
	if ok {
		return info, nil
	}

	members, err := c.lookup.Members(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("fetching members of %s: %w", roomID, err)
	}

	info = &roomInfo{members: members}
	if len(members) <= directMaxMembers {
		info.direct = true
		for user := range members {
			if user != self {
				info.counterpart = user
			}
		}
		if info.counterpart == "" {
			info.counterpart = self
		}
	} else {
		// A room without a name still works; the topic is just empty.
		info.name, _ = c.lookup.Name(ctx, roomID)
	}

	c.mu.Lock()
	c.rooms[roomID] = info
	c.mu.Unlock()
	return info, nil
}

// forget drops cached facts after a membership change.
func (c *roomCache) forget(roomID id.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

func (c *roomCache) rememberDirect(user id.UserID, roomID id.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.direct[user] = roomID
}

func (c *roomCache) directRoom(user id.UserID) (id.RoomID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	roomID, ok := c.direct[user]
	return roomID, ok
}

// clientLookup reads room state through a mautrix client.
type clientLookup struct {
	client *mautrix.Client
}

func (l clientLookup) Members(ctx context.Context, roomID id.RoomID) (map[id.UserID]string, error) {
	resp, err := l.client.JoinedMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	members := make(map[id.UserID]string, len(resp.Joined))
	for user, m := range resp.Joined {
		members[user] = m.DisplayName
	}
	return members, nil
}

func (l clientLookup) Name(ctx context.Context, roomID id.RoomID) (string, error) {
	var content event.RoomNameEventContent
	if err := l.client.StateEvent(ctx, roomID, event.StateRoomName, "", &content); err != nil {
		if errors.Is(err, mautrix.MNotFound) {
			return "", nil
		}
		return "", err
	}
	return content.Name, nil
}
