package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
)

func TestKafkaProviderProducesJob(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var job pushJob
		if err := json.Unmarshal(val, &job); err != nil {
			return err
		}
		if job.Token != "tok-1" || job.Payload.Title != "Alice" {
			return errors.New("unexpected job")
		}
		return nil
	})
	p.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	kp := NewKafkaProvider(p, "chat.push.jobs")

	if err := kp.SendToToken(context.Background(), "tok-1", Payload{Title: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := kp.SendToToken(context.Background(), "tok-2", Payload{}); !errors.Is(err, sarama.ErrNotLeaderForPartition) {
		t.Fatalf("err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := kp.SendToToken(ctx, "tok-3", Payload{}); err == nil {
		t.Fatal("cancelled context should not produce")
	}
	_ = p.Close()
}
