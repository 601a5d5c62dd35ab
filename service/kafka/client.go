package kafka

import (
	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Client owns one sarama client and the sync producer built on it.
type Client struct {
	cfg      Config
	client   sarama.Client
	producer sarama.SyncProducer
}

func NewClient(cfg Config) (*Client, error) {
	cfg.norm()
	c, err := sarama.NewClient(cfg.Brokers, BuildSaramaConfig(cfg))
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka client", "brokers", cfg.Brokers)
	}
	p, err := sarama.NewSyncProducerFromClient(c)
	if err != nil {
		_ = c.Close()
		return nil, errs.WrapMsg(err, "kafka sync producer")
	}
	logger.Info("[kafka] connected", zap.Strings("brokers", cfg.Brokers), zap.Int("brokerCount", len(c.Brokers())))
	return &Client{cfg: cfg, client: c, producer: p}, nil
}

func (c *Client) Producer() sarama.SyncProducer { return c.producer }

func (c *Client) Config() Config { return c.cfg }

// EnsureTopics creates missing topics when AutoCreateTopics is on.
func (c *Client) EnsureTopics(topics ...string) error {
	if !c.cfg.AutoCreateTopics {
		return nil
	}
	admin, err := sarama.NewClusterAdminFromClient(c.client)
	if err != nil {
		return errs.WrapMsg(err, "kafka admin")
	}
	// closing the admin would close the shared client
	return EnsureTopics(admin, topics, c.cfg.Partitions, c.cfg.ReplicationFactor)
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if err := c.producer.Close(); err != nil {
		logger.Warn("[kafka] close producer", zap.Error(err))
	}
	return c.client.Close()
}

// SendSync writes one record and waits for the broker ack.
func SendSync(p sarama.SyncProducer, topic string, key, value []byte) (int32, int64, error) {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	return p.SendMessage(msg)
}
