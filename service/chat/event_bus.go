package chat

import (
	"context"

	"go.uber.org/zap"
)

// EventBus publishes events to live sessions. Delivery is best-effort: a
// failing session is logged and skipped, and nothing is reported back.
type EventBus interface {
	PublishToRoom(ctx context.Context, roomID string, ev Event, exceptSessionID string)
	PublishToRooms(ctx context.Context, roomIDs []string, ev Event, exceptSessionID string)
	PublishToUser(ctx context.Context, userID string, ev Event)
	PublishToSession(ctx context.Context, sessionID string, ev Event)
}

// LocalBus fans out to the sessions of this process.
type LocalBus struct {
	sessions *SessionRegistry
	rooms    *RoomDirectory
	log      *zap.Logger
}

func NewLocalBus(sessions *SessionRegistry, rooms *RoomDirectory, log *zap.Logger) *LocalBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalBus{sessions: sessions, rooms: rooms, log: log}
}

func (b *LocalBus) PublishToRoom(ctx context.Context, roomID string, ev Event, exceptSessionID string) {
	b.PublishToRooms(ctx, []string{roomID}, ev, exceptSessionID)
}

func (b *LocalBus) PublishToRooms(ctx context.Context, roomIDs []string, ev Event, exceptSessionID string) {
	frame, ok := b.encode(ev)
	if !ok {
		return
	}
	b.DeliverRooms(roomIDs, frame, exceptSessionID)
}

func (b *LocalBus) PublishToUser(ctx context.Context, userID string, ev Event) {
	frame, ok := b.encode(ev)
	if !ok {
		return
	}
	b.DeliverUser(userID, frame)
}

func (b *LocalBus) PublishToSession(ctx context.Context, sessionID string, ev Event) {
	frame, ok := b.encode(ev)
	if !ok {
		return
	}
	b.deliver(b.sessions.sinks([]string{sessionID}, ""), frame)
}

// DeliverRooms writes an encoded frame to the union of the rooms' sessions;
// a session in several rooms gets one copy.
func (b *LocalBus) DeliverRooms(roomIDs []string, frame []byte, exceptSessionID string) int {
	var ids []string
	if len(roomIDs) == 1 {
		ids = b.rooms.SessionsIn(roomIDs[0])
	} else {
		seen := make(map[string]struct{})
		for _, room := range roomIDs {
			for _, id := range b.rooms.SessionsIn(room) {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
	}
	return b.deliver(b.sessions.sinks(ids, exceptSessionID), frame)
}

// DeliverUser writes an encoded frame to every session of the user.
func (b *LocalBus) DeliverUser(userID string, frame []byte) int {
	return b.deliver(b.sessions.sinks(b.sessions.SessionsFor(userID), ""), frame)
}

func (b *LocalBus) deliver(sinks map[string]Sink, frame []byte) int {
	n := 0
	for id, sink := range sinks {
		if err := sink.Deliver(frame); err != nil {
			b.log.Debug("deliver failed", zap.String("session", id), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func (b *LocalBus) encode(ev Event) ([]byte, bool) {
	frame, err := EncodeEvent(ev)
	if err != nil {
		b.log.Error("encode event", zap.Stringer("event", ev.Kind()), zap.Error(err))
		return nil, false
	}
	return frame, true
}
