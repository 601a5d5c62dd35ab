package delivery

import (
	"context"
	"errors"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"go.uber.org/zap"
)

// Partition splits the recipients of a new message by presence.
type Partition struct {
	Online  []string
	Offline []string
}

// Summary is the sender's view of one message.
type Summary struct {
	MessageID      string       `json:"messageId"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	Recipients     int          `json:"recipients"`
	Delivered      int          `json:"delivered"` // delivered or read
	Read           int          `json:"read"`
	Status         model.Status `json:"-"` // lowest status over all recipients
}

type Conf struct {
	Clock func() time.Time
}

func (c *Conf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// StateMachine drives receipts SENT -> DELIVERED -> READ and publishes each
// transition to the conversation room.
type StateMachine struct {
	store    Store
	presence Presence
	bus      chat.EventBus
	conf     Conf
	log      *zap.Logger
}

func NewStateMachine(store Store, presence Presence, bus chat.EventBus, conf Conf, log *zap.Logger) *StateMachine {
	conf.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &StateMachine{store: store, presence: presence, bus: bus, conf: conf, log: log}
}

// OnMessageCreated records SENT receipts for every recipient but the author
// and partitions them by presence.
func (m *StateMachine) OnMessageCreated(ctx context.Context, msg *model.Message, recipientIDs []string) (Partition, error) {
	var p Partition
	if msg == nil || msg.ID == "" || msg.ConversationID == "" {
		return p, errs.ErrArgs.WrapMsg("message id and conversation id required")
	}
	recipients := dedupe(recipientIDs, msg.SenderID)
	if len(recipients) == 0 {
		return p, nil
	}

	at := msg.CreatedAt
	if at.IsZero() {
		at = m.conf.Clock()
	}
	if err := m.store.CreateReceipts(ctx, msg, recipients, at); err != nil {
		return p, errs.WrapMsg(err, "create receipts", "message", msg.ID)
	}

	online := make(map[string]struct{}, len(recipients))
	for _, u := range m.presence.OnlineStatus(ctx, recipients) {
		online[u] = struct{}{}
	}
	for _, u := range recipients {
		if _, ok := online[u]; ok {
			p.Online = append(p.Online, u)
		} else {
			p.Offline = append(p.Offline, u)
		}
	}
	return p, nil
}

func dedupe(ids []string, author string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == author {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Advance moves actingUserID's receipt of messageID forward to target.
// Backward or repeated transitions return (false, nil).
func (m *StateMachine) Advance(ctx context.Context, messageID string, target model.Status, actingUserID string) (bool, error) {
	if !target.Valid() {
		return false, errs.ErrArgs.WrapMsg("unknown status", "status", int32(target))
	}
	if messageID == "" || actingUserID == "" {
		return false, errs.ErrArgs.WrapMsg("message id and user id required")
	}
	if target == model.StatusSent {
		return false, nil
	}

	r, err := m.store.GetReceipt(ctx, messageID, actingUserID)
	if err != nil {
		return false, err
	}
	return m.advance(ctx, r, target)
}

func (m *StateMachine) advance(ctx context.Context, r *model.Receipt, target model.Status) (bool, error) {
	if target <= r.Status {
		return false, nil
	}
	at := m.conf.Clock()
	ok, err := m.store.AdvanceReceipt(ctx, r.MessageID, r.RecipientID, target, at)
	if err != nil {
		return false, errs.WrapMsg(err, "advance receipt", "message", r.MessageID, "user", r.RecipientID)
	}
	if !ok {
		// lost a race with a concurrent transition
		return false, nil
	}
	m.publish(ctx, chat.MessageStatus{
		MessageID:      r.MessageID,
		ConversationID: r.ConversationID,
		UserID:         r.RecipientID,
		Status:         target,
		At:             at,
	})
	return true, nil
}

func (m *StateMachine) publish(ctx context.Context, ev chat.MessageStatus) {
	err := safe.Call(func() {
		m.bus.PublishToRoom(ctx, ev.ConversationID, ev, "")
	})
	if err != nil {
		m.log.Error("publish status panicked", zap.String("message", ev.MessageID), zap.Error(err))
	}
}

// MarkConversationRead moves every pending receipt of userID in the
// conversation to READ and clears the unread counter.
func (m *StateMachine) MarkConversationRead(ctx context.Context, conversationID, userID string) (int, error) {
	if conversationID == "" || userID == "" {
		return 0, errs.ErrArgs.WrapMsg("conversation id and user id required")
	}
	pending, err := m.store.PendingReceipts(ctx, conversationID, userID)
	if err != nil {
		return 0, errs.WrapMsg(err, "load pending receipts", "conversation", conversationID)
	}
	n := 0
	for i := range pending {
		ok, err := m.advance(ctx, &pending[i], model.StatusRead)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if err := m.store.ResetUnread(ctx, conversationID, userID, m.conf.Clock()); err != nil {
		return n, errs.WrapMsg(err, "reset unread", "conversation", conversationID, "user", userID)
	}
	m.log.Debug("conversation read",
		zap.String("conversation", conversationID), zap.String("user", userID), zap.Int("changed", n))
	return n, nil
}

// MarkRead advances the listed messages to READ for userID. Unknown
// messages are skipped.
func (m *StateMachine) MarkRead(ctx context.Context, messageIDs []string, userID string) (int, error) {
	n := 0
	for _, id := range dedupe(messageIDs, "") {
		ok, err := m.Advance(ctx, id, model.StatusRead, userID)
		if err != nil {
			if errors.Is(err, errs.ErrRecordNotFound) {
				continue
			}
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (m *StateMachine) Summary(ctx context.Context, messageID string) (Summary, error) {
	s := Summary{MessageID: messageID}
	rs, err := m.store.ReceiptsOf(ctx, messageID)
	if err != nil {
		return s, err
	}
	if len(rs) == 0 {
		return s, errs.ErrRecordNotFound.WrapMsg("no receipts", "message", messageID)
	}
	s.Recipients = len(rs)
	s.ConversationID = rs[0].ConversationID
	s.SenderID = rs[0].SenderID
	s.Status = model.StatusRead
	for _, r := range rs {
		if r.Status >= model.StatusDelivered {
			s.Delivered++
		}
		if r.Status == model.StatusRead {
			s.Read++
		}
		if r.Status < s.Status {
			s.Status = r.Status
		}
	}
	return s, nil
}
