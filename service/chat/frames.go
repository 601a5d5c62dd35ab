package chat

import (
	"fmt"
	"time"

	"PPRealtime/tools/decode"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Wire frames are JSON objects: {"event": "<name>", "data": {...}}.
// Field names on the wire are camelCase.

// EncodeEvent renders ev as a wire frame.
func EncodeEvent(ev Event) ([]byte, error) {
	data, err := structpb.NewStruct(eventData(ev))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	frame := &structpb.Struct{Fields: map[string]*structpb.Value{
		"event": structpb.NewStringValue(ev.Kind().String()),
		"data":  structpb.NewStructValue(data),
	}}
	return protojson.Marshal(frame)
}

func eventData(ev Event) map[string]any {
	switch e := ev.(type) {
	case UserOnline:
		return map[string]any{"userId": e.UserID}
	case UserOffline:
		return map[string]any{"userId": e.UserID, "lastSeen": stamp(e.LastSeen)}
	case MessageReceived:
		m := e.Message
		return map[string]any{
			"messageId":      m.ID,
			"conversationId": m.ConversationID,
			"senderId":       m.SenderID,
			"senderName":     m.SenderName,
			"type":           string(m.Type),
			"content":        m.Content,
			"isGroup":        m.IsGroup(),
			"createdAt":      stamp(m.CreatedAt),
		}
	case MessageStatus:
		return map[string]any{
			"messageId":      e.MessageID,
			"conversationId": e.ConversationID,
			"userId":         e.UserID,
			"status":         e.Status.String(),
			"at":             stamp(e.At),
		}
	case TypingStart:
		return map[string]any{"conversationId": e.ConversationID, "userId": e.UserID, "userName": e.UserName}
	case TypingStop:
		return map[string]any{"conversationId": e.ConversationID, "userId": e.UserID}
	case OnlineStatus:
		users := make([]any, 0, len(e.OnlineUsers))
		for _, u := range e.OnlineUsers {
			users = append(users, u)
		}
		return map[string]any{"onlineUsers": users}
	case ErrorEvent:
		return map[string]any{"code": e.Code, "message": e.Message, "ref": e.Ref}
	default:
		return map[string]any{}
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ===== inbound =====

// InboundFrame is a parsed client frame; Data is decoded per event.
type InboundFrame struct {
	Event string
	Data  *structpb.Struct
}

func ParseFrame(raw []byte) (*InboundFrame, error) {
	st := &structpb.Struct{}
	um := protojson.UnmarshalOptions{DiscardUnknown: true}
	if err := um.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	name, err := decode.ReadString(st, "event")
	if err != nil {
		return nil, err
	}
	return &InboundFrame{Event: name, Data: decode.ReadStruct(st, "data")}, nil
}

type AuthPayload struct {
	Token string `json:"token"`
}

type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserName       string `json:"userName"`
}

type AckPayload struct {
	MessageID string `json:"messageId"`
}

type OnlineStatusQuery struct {
	UserIDs []string `json:"userIds"`
}

// DecodePayload decodes f.Data into T.
func DecodePayload[T any](f *InboundFrame) (*T, error) {
	return decode.DecodeStruct[T](f.Data)
}
