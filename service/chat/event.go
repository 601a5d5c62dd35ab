package chat

import (
	"time"

	"PPRealtime/module/chat/model"
)

// EventKind is the closed set of events pushed to clients.
type EventKind uint8

const (
	EventUserOnline EventKind = iota + 1
	EventUserOffline
	EventMessageReceived
	EventMessageDelivered
	EventMessageRead
	EventTypingStart
	EventTypingStop
	EventOnlineStatus
	EventError
)

var kindNames = map[EventKind]string{
	EventUserOnline:       "user:online",
	EventUserOffline:      "user:offline",
	EventMessageReceived:  "message:received",
	EventMessageDelivered: "message:delivered",
	EventMessageRead:      "message:read",
	EventTypingStart:      "typing:start",
	EventTypingStop:       "typing:stop",
	EventOnlineStatus:     "online:status",
	EventError:            "error",
}

func (k EventKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func ParseEventKind(s string) (EventKind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Event is one of the variants below.
type Event interface {
	Kind() EventKind
}

type UserOnline struct {
	UserID string
}

type UserOffline struct {
	UserID   string
	LastSeen time.Time
}

type MessageReceived struct {
	Message model.Message
}

// MessageStatus is published after a receipt moved forward. Its kind follows
// Status (delivered or read).
type MessageStatus struct {
	MessageID      string
	ConversationID string
	UserID         string
	Status         model.Status
	At             time.Time
}

type TypingStart struct {
	ConversationID string
	UserID         string
	UserName       string
}

type TypingStop struct {
	ConversationID string
	UserID         string
}

type OnlineStatus struct {
	OnlineUsers []string
}

type ErrorEvent struct {
	Code    int
	Message string
	Ref     string // inbound event that failed
}

func (UserOnline) Kind() EventKind      { return EventUserOnline }
func (UserOffline) Kind() EventKind     { return EventUserOffline }
func (MessageReceived) Kind() EventKind { return EventMessageReceived }
func (TypingStart) Kind() EventKind     { return EventTypingStart }
func (TypingStop) Kind() EventKind      { return EventTypingStop }
func (OnlineStatus) Kind() EventKind    { return EventOnlineStatus }
func (ErrorEvent) Kind() EventKind      { return EventError }

func (e MessageStatus) Kind() EventKind {
	if e.Status == model.StatusRead {
		return EventMessageRead
	}
	return EventMessageDelivered
}
