package model

import "time"

const (
	ParticipantFieldConversationID = "conversation_id"
	ParticipantFieldUserID         = "user_id"
	ParticipantFieldUnreadCount    = "unread_count"
	ParticipantFieldMuted          = "is_muted"
	ParticipantFieldLastReadAt     = "last_read_at"
	ParticipantFieldLeftAt         = "left_at"
	ParticipantFieldUpdatedAt      = "updated_at"
)

// Participant is one user's state inside one conversation.
type Participant struct {
	ConversationID string     `bson:"conversation_id" json:"conversationId"`
	UserID         string     `bson:"user_id" json:"userId"`
	UnreadCount    int64      `bson:"unread_count" json:"unreadCount"`
	Muted          bool       `bson:"is_muted" json:"isMuted"`
	LastReadAt     *time.Time `bson:"last_read_at,omitempty" json:"lastReadAt,omitempty"`
	LeftAt         *time.Time `bson:"left_at,omitempty" json:"leftAt,omitempty"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updatedAt"`
}

func (p *Participant) GetTableName() string {
	return "conversation_participant"
}

func (p *Participant) Active() bool { return p.LeftAt == nil }
