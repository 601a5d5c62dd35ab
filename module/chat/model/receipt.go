package model

import "time"

const (
	ReceiptFieldMessageID      = "message_id"
	ReceiptFieldConversationID = "conversation_id"
	ReceiptFieldSenderID       = "sender_id"
	ReceiptFieldRecipientID    = "recipient_id"
	ReceiptFieldStatus         = "status"
	ReceiptFieldSentAt         = "sent_at"
	ReceiptFieldDeliveredAt    = "delivered_at"
	ReceiptFieldReadAt         = "read_at"
	ReceiptFieldCreatedAt      = "created_at"
)

// Receipt is the delivery record of one message for one recipient.
type Receipt struct {
	MessageID      string     `bson:"message_id" json:"messageId"`
	ConversationID string     `bson:"conversation_id" json:"conversationId"`
	SenderID       string     `bson:"sender_id" json:"senderId"`
	RecipientID    string     `bson:"recipient_id" json:"recipientId"`
	Status         Status     `bson:"status" json:"status"`
	SentAt         time.Time  `bson:"sent_at" json:"sentAt"`
	DeliveredAt    *time.Time `bson:"delivered_at,omitempty" json:"deliveredAt,omitempty"`
	ReadAt         *time.Time `bson:"read_at,omitempty" json:"readAt,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"createdAt"`
}

func (r *Receipt) GetTableName() string {
	return "message_receipt"
}

// StampFor sets the timestamp matching status s. Reaching READ also fills a
// missing delivered time.
func (r *Receipt) StampFor(s Status, at time.Time) {
	switch s {
	case StatusDelivered:
		if r.DeliveredAt == nil {
			r.DeliveredAt = &at
		}
	case StatusRead:
		if r.DeliveredAt == nil {
			r.DeliveredAt = &at
		}
		if r.ReadAt == nil {
			r.ReadAt = &at
		}
	}
}
