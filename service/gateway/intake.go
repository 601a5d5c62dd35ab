package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/module/delivery"
	"PPRealtime/service/kafka"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pipeline is the message side of the core.
type Pipeline interface {
	OnMessageCreated(ctx context.Context, msg *model.Message, recipientIDs []string, originSessionID string) (delivery.Partition, error)
	AdvanceStatus(ctx context.Context, messageID string, status model.Status, userID string) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) (int, error)
	MarkRead(ctx context.Context, messageIDs []string, userID string) (int, error)
	Summary(ctx context.Context, messageID string) (delivery.Summary, error)
}

// MessageCreated is the hook body sent by the message store once a message
// is durable, over HTTP or Kafka.
type MessageCreated struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversationId"`
	ConversationType string    `json:"conversationType"` // DIRECT | GROUP
	GroupName        string    `json:"groupName"`
	SenderID         string    `json:"senderId"`
	SenderName       string    `json:"senderName"`
	Type             string    `json:"type"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"createdAt"`
	Recipients       []string  `json:"recipients"` // empty: all participants
	OriginSessionID  string    `json:"originSessionId"`
}

func (m *MessageCreated) toMessage() *model.Message {
	msg := &model.Message{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		ConversationType: model.ConversationDirect,
		GroupName:        m.GroupName,
		SenderID:         m.SenderID,
		SenderName:       m.SenderName,
		Type:             model.ParseMessageType(m.Type),
		Content:          m.Content,
		CreatedAt:        m.CreatedAt,
	}
	if strings.EqualFold(m.ConversationType, "GROUP") {
		msg.ConversationType = model.ConversationGroup
	}
	return msg
}

// Intake feeds created messages into the pipeline.
type Intake struct {
	messages Pipeline
	log      *zap.Logger
}

func NewIntake(messages Pipeline, log *zap.Logger) *Intake {
	if log == nil {
		log = zap.NewNop()
	}
	return &Intake{messages: messages, log: log}
}

func (in *Intake) Accept(ctx context.Context, req *MessageCreated) (*model.Message, delivery.Partition, error) {
	msg := req.toMessage()
	p, err := in.messages.OnMessageCreated(ctx, msg, req.Recipients, req.OriginSessionID)
	return msg, p, err
}

// KafkaHandler decodes one record. Bad payloads are logged and dropped; the
// consumer marks every record anyway.
func (in *Intake) KafkaHandler() kafka.MessageHandler {
	return func(ctx context.Context, topic string, key, value []byte) error {
		var req MessageCreated
		if err := json.Unmarshal(value, &req); err != nil {
			return errs.ErrArgs.WrapMsg("decode message created", "topic", topic, "err", err.Error())
		}
		msg, p, err := in.Accept(ctx, &req)
		if err != nil {
			return err
		}
		in.log.Debug("message intake", zap.String("topic", topic), zap.String("message", msg.ID),
			zap.Int("online", len(p.Online)), zap.Int("offline", len(p.Offline)))
		return nil
	}
}

// POST /internal/messages
func (s *Server) messageCreated(c *gin.Context) error {
	var req MessageCreated
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	msg, p, err := s.intake.Accept(c.Request.Context(), &req)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{
		"messageId": msg.ID,
		"online":    nonNil(p.Online),
		"offline":   nonNil(p.Offline),
	})
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
