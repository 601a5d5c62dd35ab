package notify

import (
	"context"
	"encoding/json"

	"PPRealtime/service/kafka"
	"PPRealtime/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// pushJob is the record consumed by the external push worker.
type pushJob struct {
	Token   string  `json:"token"`
	Payload Payload `json:"payload"`
}

// KafkaProvider hands each notification to a push worker through Kafka. A
// broker ack counts as success.
type KafkaProvider struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaProvider(producer sarama.SyncProducer, topic string) *KafkaProvider {
	return &KafkaProvider{producer: producer, topic: topic}
}

func (p *KafkaProvider) SendToToken(ctx context.Context, token string, pl Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(pushJob{Token: token, Payload: pl})
	if err != nil {
		return errs.WrapMsg(err, "marshal push job")
	}
	if _, _, err := kafka.SendSync(p.producer, p.topic, []byte(token), b); err != nil {
		return errs.WrapMsg(err, "produce push job", "topic", p.topic)
	}
	return nil
}

// LogProvider only logs; used in development.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogProvider{log: log}
}

func (p *LogProvider) SendToToken(ctx context.Context, token string, pl Payload) error {
	p.log.Info("push (log provider)",
		zap.String("token", mask(token)), zap.String("title", pl.Title), zap.String("body", pl.Body))
	return nil
}
