package chat

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MembershipSource enumerates the conversations a user belongs to. It is backed
// by the durable store.
type MembershipSource interface {
	ConversationsOf(ctx context.Context, userID string) ([]string, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// RoomDirectory maps conversation ids to subscribed sessions. Empty rooms are
// removed. Join is not access-controlled: callers must check participation.
type RoomDirectory struct {
	mu        sync.RWMutex
	rooms     map[string]map[string]struct{} // room -> sessions
	bySession map[string]map[string]struct{} // session -> rooms

	members MembershipSource
	log     *zap.Logger
}

func NewRoomDirectory(members MembershipSource, log *zap.Logger) *RoomDirectory {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomDirectory{
		rooms:     make(map[string]map[string]struct{}),
		bySession: make(map[string]map[string]struct{}),
		members:   members,
		log:       log,
	}
}

// Join reports whether the session was newly added.
func (d *RoomDirectory) Join(sessionID, roomID string) bool {
	if sessionID == "" || roomID == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.joinLocked(sessionID, roomID)
}

func (d *RoomDirectory) joinLocked(sessionID, roomID string) bool {
	set := d.rooms[roomID]
	if set == nil {
		set = make(map[string]struct{})
		d.rooms[roomID] = set
	}
	if _, ok := set[sessionID]; ok {
		return false
	}
	set[sessionID] = struct{}{}

	rs := d.bySession[sessionID]
	if rs == nil {
		rs = make(map[string]struct{})
		d.bySession[sessionID] = rs
	}
	rs[roomID] = struct{}{}
	return true
}

// Leave reports whether the session was subscribed.
func (d *RoomDirectory) Leave(sessionID, roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leaveLocked(sessionID, roomID)
}

func (d *RoomDirectory) leaveLocked(sessionID, roomID string) bool {
	set, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := set[sessionID]; !ok {
		return false
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(d.rooms, roomID)
	}
	if rs := d.bySession[sessionID]; rs != nil {
		delete(rs, roomID)
		if len(rs) == 0 {
			delete(d.bySession, sessionID)
		}
	}
	return true
}

// LeaveAll drops every membership of the session and returns the rooms it
// was in.
func (d *RoomDirectory) LeaveAll(sessionID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs := d.bySession[sessionID]
	left := make([]string, 0, len(rs))
	for room := range rs {
		left = append(left, room)
	}
	for _, room := range left {
		d.leaveLocked(sessionID, room)
	}
	sort.Strings(left)
	return left
}

// SessionsIn returns a sorted snapshot of the room's sessions.
func (d *RoomDirectory) SessionsIn(roomID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set := d.rooms[roomID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (d *RoomDirectory) RoomsOf(sessionID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rs := d.bySession[sessionID]
	out := make([]string, 0, len(rs))
	for room := range rs {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func (d *RoomDirectory) HasRoom(roomID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[roomID]
	return ok
}

func (d *RoomDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// AutoJoinAll subscribes the session to every conversation of the user.
// A failing membership lookup is logged and yields zero rooms.
func (d *RoomDirectory) AutoJoinAll(ctx context.Context, sessionID, userID string) int {
	if d.members == nil || userID == "" {
		return 0
	}
	convs, err := d.members.ConversationsOf(ctx, userID)
	if err != nil {
		d.log.Warn("auto-join: membership lookup failed",
			zap.String("session", sessionID), zap.String("user", userID), zap.Error(err))
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, conv := range convs {
		if conv != "" && d.joinLocked(sessionID, conv) {
			n++
		}
	}
	return n
}

// CanJoin asks the membership source whether userID participates in roomID.
func (d *RoomDirectory) CanJoin(ctx context.Context, roomID, userID string) (bool, error) {
	if d.members == nil {
		return true, nil
	}
	return d.members.IsParticipant(ctx, roomID, userID)
}
