package store

import (
	"context"
	"os"
	"testing"
	"time"

	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/module/chat/model"
)

// RT_TEST_MONGO=mongodb://127.0.0.1:27017 runs against a real server.
func newMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("RT_TEST_MONGO")
	if uri == "" {
		t.Skip("RT_TEST_MONGO not set")
	}
	ctx := context.Background()
	cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{Uri: uri, Database: "rt_test_" + time.Now().Format("150405")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = cli.GetDB().Drop(context.Background())
		_ = cli.Close(context.Background())
	})
	s := NewMongoStore(cli.GetDB())
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestMongoReceipts(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)
	_ = s.AddParticipant(ctx, "c1", "bob")

	msg := &model.Message{ID: "m1", ConversationID: "c1", SenderID: "alice"}
	for i := 0; i < 2; i++ {
		if err := s.CreateReceipts(ctx, msg, []string{"bob"}, at); err != nil {
			t.Fatal(err)
		}
	}
	p, err := s.Participant(ctx, "c1", "bob")
	if err != nil || p.UnreadCount != 1 {
		t.Fatalf("participant = %+v %v", p, err)
	}

	ok, err := s.AdvanceReceipt(ctx, "m1", "bob", model.StatusRead, at)
	if err != nil || !ok {
		t.Fatalf("advance: %v %v", ok, err)
	}
	if ok, _ := s.AdvanceReceipt(ctx, "m1", "bob", model.StatusDelivered, at); ok {
		t.Fatal("moved backwards")
	}
	r, _ := s.GetReceipt(ctx, "m1", "bob")
	if r.Status != model.StatusRead || r.DeliveredAt == nil {
		t.Fatalf("receipt = %+v", r)
	}
	if pending, _ := s.PendingReceipts(ctx, "c1", "bob"); len(pending) != 0 {
		t.Fatalf("pending = %v", pending)
	}
}
