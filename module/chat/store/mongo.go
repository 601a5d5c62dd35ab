package store

import (
	"context"
	"errors"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps receipts in message_receipt and counters in
// conversation_participant.
type MongoStore struct {
	ReceiptColl     *mongo.Collection
	ParticipantColl *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	r := model.Receipt{}
	p := model.Participant{}
	return &MongoStore{
		ReceiptColl:     db.Collection(r.GetTableName()),
		ParticipantColl: db.Collection(p.GetTableName()),
	}
}

// EnsureIndexes creates the unique keys the conditional updates rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.ReceiptColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: model.ReceiptFieldMessageID, Value: 1}, {Key: model.ReceiptFieldRecipientID, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_msg_recipient"),
		},
		{
			Keys: bson.D{
				{Key: model.ReceiptFieldConversationID, Value: 1},
				{Key: model.ReceiptFieldRecipientID, Value: 1},
				{Key: model.ReceiptFieldStatus, Value: 1},
			},
			Options: options.Index().SetName("idx_conv_recipient_status"),
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "create receipt indexes")
	}
	_, err = s.ParticipantColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: model.ParticipantFieldConversationID, Value: 1}, {Key: model.ParticipantFieldUserID, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_conv_user"),
		},
		{
			Keys:    bson.D{{Key: model.ParticipantFieldUserID, Value: 1}},
			Options: options.Index().SetName("idx_user"),
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "create participant indexes")
	}
	return nil
}

func participantFilter(conversationID, userID string) bson.M {
	return bson.M{
		model.ParticipantFieldConversationID: conversationID,
		model.ParticipantFieldUserID:         userID,
	}
}

func activeFilter(f bson.M) bson.M {
	f[model.ParticipantFieldLeftAt] = nil
	return f
}

// ===== participants =====

func (s *MongoStore) AddParticipant(ctx context.Context, conversationID, userID string) error {
	now := time.Now()
	_, err := s.ParticipantColl.UpdateOne(ctx, participantFilter(conversationID, userID), bson.M{
		"$set":         bson.M{model.ParticipantFieldUpdatedAt: now},
		"$unset":       bson.M{model.ParticipantFieldLeftAt: ""},
		"$setOnInsert": bson.M{model.ParticipantFieldUnreadCount: 0, model.ParticipantFieldMuted: false},
	}, options.Update().SetUpsert(true))
	return errs.Wrap(err)
}

func (s *MongoStore) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	now := time.Now()
	res, err := s.ParticipantColl.UpdateOne(ctx, participantFilter(conversationID, userID), bson.M{
		"$set": bson.M{model.ParticipantFieldLeftAt: now, model.ParticipantFieldUpdatedAt: now},
	})
	if err != nil {
		return errs.Wrap(err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("participant", "conversation", conversationID, "user", userID)
	}
	return nil
}

func (s *MongoStore) SetMuted(ctx context.Context, conversationID, userID string, muted bool) error {
	res, err := s.ParticipantColl.UpdateOne(ctx, participantFilter(conversationID, userID), bson.M{
		"$set": bson.M{model.ParticipantFieldMuted: muted, model.ParticipantFieldUpdatedAt: time.Now()},
	})
	if err != nil {
		return errs.Wrap(err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("participant", "conversation", conversationID, "user", userID)
	}
	return nil
}

func (s *MongoStore) Participant(ctx context.Context, conversationID, userID string) (*model.Participant, error) {
	var p model.Participant
	err := s.ParticipantColl.FindOne(ctx, participantFilter(conversationID, userID)).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("participant", "conversation", conversationID, "user", userID)
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &p, nil
}

func (s *MongoStore) ParticipantsOf(ctx context.Context, conversationID string) ([]string, error) {
	return s.distinct(ctx, model.ParticipantFieldUserID,
		activeFilter(bson.M{model.ParticipantFieldConversationID: conversationID}))
}

func (s *MongoStore) ConversationsOf(ctx context.Context, userID string) ([]string, error) {
	return s.distinct(ctx, model.ParticipantFieldConversationID,
		activeFilter(bson.M{model.ParticipantFieldUserID: userID}))
}

func (s *MongoStore) distinct(ctx context.Context, field string, filter bson.M) ([]string, error) {
	vals, err := s.ParticipantColl.Distinct(ctx, field, filter)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

func (s *MongoStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	n, err := s.ParticipantColl.CountDocuments(ctx, activeFilter(participantFilter(conversationID, userID)),
		options.Count().SetLimit(1))
	if err != nil {
		return false, errs.Wrap(err)
	}
	return n > 0, nil
}

func (s *MongoStore) IsMuted(ctx context.Context, conversationID, userID string) (bool, error) {
	p, err := s.Participant(ctx, conversationID, userID)
	if errors.Is(err, errs.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Muted, nil
}

// ===== receipts =====

// CreateReceipts upserts with $setOnInsert so a replay is a no-op, and only
// the recipients whose receipt was really inserted get their counter bumped.
func (s *MongoStore) CreateReceipts(ctx context.Context, msg *model.Message, recipientIDs []string, at time.Time) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(recipientIDs))
	for _, u := range recipientIDs {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{model.ReceiptFieldMessageID: msg.ID, model.ReceiptFieldRecipientID: u}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				model.ReceiptFieldConversationID: msg.ConversationID,
				model.ReceiptFieldSenderID:       msg.SenderID,
				model.ReceiptFieldStatus:         model.StatusSent,
				model.ReceiptFieldSentAt:         at,
				model.ReceiptFieldCreatedAt:      at,
			}}).
			SetUpsert(true))
	}
	res, err := s.ReceiptColl.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return errs.WrapMsg(err, "insert receipts", "message", msg.ID)
	}

	inserted := make([]string, 0, len(res.UpsertedIDs))
	for idx := range res.UpsertedIDs {
		inserted = append(inserted, recipientIDs[int(idx)])
	}
	if len(inserted) == 0 {
		return nil
	}
	_, err = s.ParticipantColl.UpdateMany(ctx, activeFilter(bson.M{
		model.ParticipantFieldConversationID: msg.ConversationID,
		model.ParticipantFieldUserID:         bson.M{"$in": inserted},
	}), bson.M{
		"$inc": bson.M{model.ParticipantFieldUnreadCount: 1},
		"$set": bson.M{model.ParticipantFieldUpdatedAt: at},
	})
	if err != nil {
		return errs.WrapMsg(err, "increment unread", "conversation", msg.ConversationID)
	}
	return nil
}

func (s *MongoStore) GetReceipt(ctx context.Context, messageID, recipientID string) (*model.Receipt, error) {
	var r model.Receipt
	err := s.ReceiptColl.FindOne(ctx, bson.M{
		model.ReceiptFieldMessageID:   messageID,
		model.ReceiptFieldRecipientID: recipientID,
	}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("receipt", "message", messageID, "user", recipientID)
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &r, nil
}

// AdvanceReceipt is guarded by status < to, so concurrent transitions never
// move a receipt backwards.
func (s *MongoStore) AdvanceReceipt(ctx context.Context, messageID, recipientID string, to model.Status, at time.Time) (bool, error) {
	update := bson.M{}
	switch to {
	case model.StatusDelivered:
		update["$set"] = bson.M{model.ReceiptFieldStatus: to, model.ReceiptFieldDeliveredAt: at}
	case model.StatusRead:
		update["$set"] = bson.M{model.ReceiptFieldStatus: to, model.ReceiptFieldReadAt: at}
		update["$min"] = bson.M{model.ReceiptFieldDeliveredAt: at}
	default:
		return false, errs.ErrArgs.WrapMsg("status not advanceable", "status", int32(to))
	}
	res, err := s.ReceiptColl.UpdateOne(ctx, bson.M{
		model.ReceiptFieldMessageID:   messageID,
		model.ReceiptFieldRecipientID: recipientID,
		model.ReceiptFieldStatus:      bson.M{"$lt": to},
	}, update)
	if err != nil {
		return false, errs.Wrap(err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoStore) PendingReceipts(ctx context.Context, conversationID, recipientID string) ([]model.Receipt, error) {
	cur, err := s.ReceiptColl.Find(ctx, bson.M{
		model.ReceiptFieldConversationID: conversationID,
		model.ReceiptFieldRecipientID:    recipientID,
		model.ReceiptFieldStatus:         bson.M{"$lt": model.StatusRead},
	}, options.Find().SetSort(bson.D{{Key: model.ReceiptFieldCreatedAt, Value: 1}}))
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer cur.Close(ctx)
	var out []model.Receipt
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Wrap(err)
	}
	return out, nil
}

func (s *MongoStore) ReceiptsOf(ctx context.Context, messageID string) ([]model.Receipt, error) {
	cur, err := s.ReceiptColl.Find(ctx, bson.M{model.ReceiptFieldMessageID: messageID},
		options.Find().SetSort(bson.D{{Key: model.ReceiptFieldRecipientID, Value: 1}}))
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer cur.Close(ctx)
	var out []model.Receipt
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.Wrap(err)
	}
	return out, nil
}

func (s *MongoStore) ResetUnread(ctx context.Context, conversationID, userID string, at time.Time) error {
	_, err := s.ParticipantColl.UpdateOne(ctx, participantFilter(conversationID, userID), bson.M{
		"$set": bson.M{
			model.ParticipantFieldUnreadCount: 0,
			model.ParticipantFieldLastReadAt:  at,
			model.ParticipantFieldUpdatedAt:   at,
		},
	})
	return errs.Wrap(err)
}
