package model

import (
	"strings"
	"time"
)

type MessageType string

const (
	MessageText     MessageType = "TEXT"
	MessageImage    MessageType = "IMAGE"
	MessageVideo    MessageType = "VIDEO"
	MessageAudio    MessageType = "AUDIO"
	MessageDocument MessageType = "DOCUMENT"
	MessageLocation MessageType = "LOCATION"
)

// ParseMessageType falls back to TEXT for unknown values.
func ParseMessageType(s string) MessageType {
	switch t := MessageType(strings.ToUpper(strings.TrimSpace(s))); t {
	case MessageImage, MessageVideo, MessageAudio, MessageDocument, MessageLocation:
		return t
	default:
		return MessageText
	}
}

type ConversationType int32

const (
	ConversationDirect ConversationType = 1
	ConversationGroup  ConversationType = 2
)

// Message is the part of the durable message the realtime core needs.
// Content is opaque here.
type Message struct {
	ID               string           `json:"id"`
	ConversationID   string           `json:"conversationId"`
	ConversationType ConversationType `json:"conversationType"`
	GroupName        string           `json:"groupName,omitempty"`
	SenderID         string           `json:"senderId"`
	SenderName       string           `json:"senderName,omitempty"`
	Type             MessageType      `json:"type"`
	Content          string           `json:"content"`
	CreatedAt        time.Time        `json:"createdAt"`
}

func (m *Message) IsGroup() bool { return m.ConversationType == ConversationGroup }
