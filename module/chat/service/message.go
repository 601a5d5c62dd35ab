package service

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"PPRealtime/module/chat/model"
	"PPRealtime/module/delivery"
	"PPRealtime/module/notify"
	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"
	"PPRealtime/tools/safe"

	"go.uber.org/zap"
)

// Participants lists the active members of a conversation.
type Participants interface {
	ParticipantsOf(ctx context.Context, conversationID string) ([]string, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, msg *model.Message, offlineRecipientIDs []string) notify.Result
}

type Conf struct {
	DispatchTimeout time.Duration // bound for one offline dispatch, default 30s
	Clock           func() time.Time
}

func (c *Conf) norm() {
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// MessageService runs the pipeline for a freshly stored message: receipts,
// realtime fan-out, then push for whoever is offline.
type MessageService struct {
	delivery     *delivery.StateMachine
	bus          chat.EventBus
	notifier     Notifier
	participants Participants
	conf         Conf
	log          *zap.Logger

	inflight sync.WaitGroup
}

func NewMessageService(sm *delivery.StateMachine, bus chat.EventBus, notifier Notifier, participants Participants, conf Conf, log *zap.Logger) *MessageService {
	conf.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageService{
		delivery:     sm,
		bus:          bus,
		notifier:     notifier,
		participants: participants,
		conf:         conf,
		log:          log,
	}
}

// OnMessageCreated runs after the message is stored: receipts, fan-out, then
// push for offline recipients.
func (s *MessageService) OnMessageCreated(ctx context.Context, msg *model.Message, recipientIDs []string, originSessionID string) (delivery.Partition, error) {
	var p delivery.Partition
	if msg == nil || msg.ConversationID == "" || msg.SenderID == "" {
		return p, errs.ErrArgs.WrapMsg("conversation id and sender id required")
	}
	if field, ok := wireSafe(msg); !ok {
		return p, errs.ErrArgs.WrapMsg("invalid utf-8", "field", field)
	}
	if msg.ID == "" {
		msg.ID = ids.GenerateString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.conf.Clock()
	}
	if msg.Type == "" {
		msg.Type = model.MessageText
	}

	if len(recipientIDs) == 0 && s.participants != nil {
		members, err := s.participants.ParticipantsOf(ctx, msg.ConversationID)
		if err != nil {
			return p, errs.WrapMsg(err, "load participants", "conversation", msg.ConversationID)
		}
		recipientIDs = members
	}

	p, err := s.delivery.OnMessageCreated(ctx, msg, recipientIDs)
	if err != nil {
		return p, err
	}

	s.bus.PublishToRoom(ctx, msg.ConversationID, chat.MessageReceived{Message: *msg}, originSessionID)

	if len(p.Offline) > 0 && s.notifier != nil {
		s.dispatch(*msg, p.Offline)
	}
	s.log.Debug("message fanned out",
		zap.String("message", msg.ID), zap.String("conversation", msg.ConversationID),
		zap.Int("online", len(p.Online)), zap.Int("offline", len(p.Offline)))
	return p, nil
}

// wireSafe reports the first text field that message:received frames could
// not carry.
func wireSafe(msg *model.Message) (string, bool) {
	for _, f := range []struct{ name, v string }{
		{"id", msg.ID},
		{"conversationId", msg.ConversationID},
		{"senderId", msg.SenderID},
		{"senderName", msg.SenderName},
		{"groupName", msg.GroupName},
		{"type", string(msg.Type)},
		{"content", msg.Content},
	} {
		if !utf8.ValidString(f.v) {
			return f.name, false
		}
	}
	return "", true
}

// dispatch runs detached from the request; its outcome is only logged.
func (s *MessageService) dispatch(msg model.Message, offline []string) {
	s.inflight.Add(1)
	safe.Go("offline-dispatch", func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.conf.DispatchTimeout)
		defer cancel()
		res := s.notifier.Dispatch(ctx, &msg, offline)
		s.log.Info("offline dispatch",
			zap.String("message", msg.ID), zap.Int("recipients", len(offline)),
			zap.Int("success", res.SuccessCount), zap.Int("failure", res.FailureCount))
	})
}

// Drain waits for in-flight offline dispatches.
func (s *MessageService) Drain() {
	s.inflight.Wait()
}

func (s *MessageService) AdvanceStatus(ctx context.Context, messageID string, status model.Status, userID string) (bool, error) {
	return s.delivery.Advance(ctx, messageID, status, userID)
}

func (s *MessageService) MarkConversationRead(ctx context.Context, conversationID, userID string) (int, error) {
	return s.delivery.MarkConversationRead(ctx, conversationID, userID)
}

func (s *MessageService) MarkRead(ctx context.Context, messageIDs []string, userID string) (int, error) {
	return s.delivery.MarkRead(ctx, messageIDs, userID)
}

func (s *MessageService) Summary(ctx context.Context, messageID string) (delivery.Summary, error) {
	return s.delivery.Summary(ctx, messageID)
}
