package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
)

func TestRouter(t *testing.T) {
	r := NewRouter()
	called := ""
	r.Register("chat.message.created", func(ctx context.Context, topic string, key, value []byte) error {
		called = string(value)
		return nil
	})
	h, err := r.Handler("chat.message.created")
	if err != nil {
		t.Fatal(err)
	}
	_ = h(context.Background(), "chat.message.created", nil, []byte("v"))
	if called != "v" {
		t.Fatal("handler not invoked")
	}
	if _, err := r.Handler("other"); err == nil {
		t.Fatal("unknown topic resolved")
	}
	if topics := r.Topics(); len(topics) != 1 {
		t.Fatalf("topics = %v", topics)
	}
}

func TestBuildSaramaConfig(t *testing.T) {
	cfg := BuildSaramaConfig(Config{Version: "2.8.0", Compression: "LZ4", InitialOffset: "oldest"})
	if cfg.ClientID != "pp-realtime" || cfg.Version != sarama.V2_8_0_0 {
		t.Fatalf("client/version = %s %s", cfg.ClientID, cfg.Version)
	}
	if cfg.Producer.Compression != sarama.CompressionLZ4 || cfg.Consumer.Offsets.Initial != sarama.OffsetOldest {
		t.Fatal("compression/offset")
	}
	if !cfg.Producer.Return.Successes || cfg.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatal("sync producer needs successes and full acks")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	cfg = BuildSaramaConfig(Config{Version: "garbage"})
	if cfg.Version != sarama.V2_1_0_0 || cfg.Producer.Compression != sarama.CompressionNone {
		t.Fatal("fallbacks")
	}
}

func TestSendSync(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "payload" {
			return errors.New("unexpected value")
		}
		return nil
	})
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if _, _, err := SendSync(p, "t", []byte("k"), []byte("payload")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := SendSync(p, "t", nil, []byte("x")); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("err = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32                                               { return nil }
func (s *fakeSession) MemberID() string                                                         { return "m" }
func (s *fakeSession) GenerationID() int32                                                      { return 1 }
func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, metadata string)  {}
func (s *fakeSession) Commit()                                                                  {}
func (s *fakeSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.marked = append(s.marked, msg.Offset)
}
func (s *fakeSession) Context() context.Context { return s.ctx }

type fakeClaim struct {
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "t" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 3 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func TestConsumeClaimMarksEverything(t *testing.T) {
	r := NewRouter()
	seen := 0
	r.Register("t", func(ctx context.Context, topic string, key, value []byte) error {
		seen++
		switch string(value) {
		case "bad":
			return errors.New("rejected")
		case "panic":
			panic("boom")
		}
		return nil
	})
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 4)}
	for i, v := range []string{"ok", "bad", "panic"} {
		claim.ch <- &sarama.ConsumerMessage{Topic: "t", Offset: int64(i), Value: []byte(v)}
	}
	claim.ch <- &sarama.ConsumerMessage{Topic: "unrouted", Offset: 3}
	close(claim.ch)

	sess := &fakeSession{ctx: context.Background()}
	if err := (&groupHandler{router: r}).ConsumeClaim(sess, claim); err != nil {
		t.Fatal(err)
	}
	if seen != 3 || len(sess.marked) != 4 {
		t.Fatalf("seen %d marked %v", seen, sess.marked)
	}
}
