package chat

import (
	"context"
	"fmt"

	"PPRealtime/service/natsx"
	"PPRealtime/tools/decode"
	"PPRealtime/tools/ids"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Backplane carries envelopes between gateway nodes. natsx.NatsManager
// implements it.
type Backplane interface {
	PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error
	Subscribe(biz string, h natsx.NatsxHandler) error
}

const (
	targetRooms = "rooms"
	targetUser  = "user"
)

// envelope is what crosses the backplane. Frame is already encoded, so remote
// nodes only resolve targets against their own registry.
type envelope struct {
	Origin string   `json:"origin"`
	Target string   `json:"target"`
	Rooms  []string `json:"rooms"`
	User   string   `json:"user"`
	Except string   `json:"except"`
	Frame  string   `json:"frame"`
}

// ClusterBus delivers locally and mirrors every publish to sibling nodes.
// Envelopes from this node are ignored on receipt.
type ClusterBus struct {
	local  *LocalBus
	bp     Backplane
	biz    string
	nodeID string
	log    *zap.Logger
}

func NewClusterBus(local *LocalBus, bp Backplane, biz, nodeID string, log *zap.Logger) *ClusterBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &ClusterBus{local: local, bp: bp, biz: biz, nodeID: nodeID, log: log}
}

// Start subscribes to sibling envelopes.
func (b *ClusterBus) Start() error {
	return b.bp.Subscribe(b.biz, b.handle)
}

func (b *ClusterBus) PublishToRoom(ctx context.Context, roomID string, ev Event, exceptSessionID string) {
	b.PublishToRooms(ctx, []string{roomID}, ev, exceptSessionID)
}

func (b *ClusterBus) PublishToRooms(ctx context.Context, roomIDs []string, ev Event, exceptSessionID string) {
	frame, ok := b.local.encode(ev)
	if !ok {
		return
	}
	b.local.DeliverRooms(roomIDs, frame, exceptSessionID)
	b.forward(ctx, envelope{Target: targetRooms, Rooms: roomIDs, Except: exceptSessionID, Frame: string(frame)})
}

func (b *ClusterBus) PublishToUser(ctx context.Context, userID string, ev Event) {
	frame, ok := b.local.encode(ev)
	if !ok {
		return
	}
	b.local.DeliverUser(userID, frame)
	b.forward(ctx, envelope{Target: targetUser, User: userID, Frame: string(frame)})
}

// PublishToSession stays local: sessions live on exactly one node.
func (b *ClusterBus) PublishToSession(ctx context.Context, sessionID string, ev Event) {
	b.local.PublishToSession(ctx, sessionID, ev)
}

func (b *ClusterBus) forward(ctx context.Context, env envelope) {
	env.Origin = b.nodeID
	data, err := marshalEnvelope(env)
	if err != nil {
		b.log.Error("cluster: marshal envelope", zap.Error(err))
		return
	}
	if err := b.bp.PublishOnce(ctx, b.biz, data, nil, ids.NewEventID()); err != nil {
		b.log.Warn("cluster: forward failed", zap.String("target", env.Target), zap.Error(err))
	}
}

func (b *ClusterBus) handle(ctx context.Context, msg natsx.NatsxMessage) error {
	env, err := unmarshalEnvelope(msg.Data)
	if err != nil {
		b.log.Warn("cluster: bad envelope", zap.String("subject", msg.Subject), zap.Error(err))
		return nil
	}
	if env.Origin == b.nodeID {
		return nil
	}
	frame := []byte(env.Frame)
	switch env.Target {
	case targetRooms:
		b.local.DeliverRooms(env.Rooms, frame, env.Except)
	case targetUser:
		b.local.DeliverUser(env.User, frame)
	default:
		b.log.Warn("cluster: unknown target", zap.String("target", env.Target))
	}
	return nil
}

func marshalEnvelope(env envelope) ([]byte, error) {
	rooms := make([]any, 0, len(env.Rooms))
	for _, r := range env.Rooms {
		rooms = append(rooms, r)
	}
	st, err := structpb.NewStruct(map[string]any{
		"origin": env.Origin,
		"target": env.Target,
		"rooms":  rooms,
		"user":   env.User,
		"except": env.Except,
		"frame":  env.Frame,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	st := &structpb.Struct{}
	if err := proto.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return decode.DecodeStruct[envelope](st)
}
