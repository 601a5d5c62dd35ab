package kafka

import (
	"context"
	"errors"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

type groupHandler struct {
	router *Router
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Info("[kafka] consumer group setup")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("[kafka] consumer group cleanup")
	return nil
}

// ConsumeClaim marks every record, failed or not; the handlers are
// idempotent and a poison record must not block the partition.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.dispatch(session.Context(), msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (h *groupHandler) dispatch(ctx context.Context, msg *sarama.ConsumerMessage) {
	handler, err := h.router.Handler(msg.Topic)
	if err != nil {
		logger.Warn("[kafka] no handler", zap.String("topic", msg.Topic))
		return
	}
	var herr error
	if perr := safe.Call(func() { herr = handler(ctx, msg.Topic, msg.Key, msg.Value) }); perr != nil {
		herr = perr
	}
	if herr != nil {
		logger.Error("[kafka] handler error",
			zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset), zap.Error(herr))
	}
}

// ConsumerGroup consumes every topic registered on the router.
type ConsumerGroup struct {
	group  sarama.ConsumerGroup
	router *Router
}

func NewConsumerGroup(cfg Config, router *Router) (*ConsumerGroup, error) {
	cfg.norm()
	g, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, BuildSaramaConfig(cfg))
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka consumer group", "group", cfg.GroupID)
	}
	return &ConsumerGroup{group: g, router: router}, nil
}

// Run blocks until ctx is done; rebalances restart Consume.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	safe.Go("kafka-group-errors", func() {
		for err := range c.group.Errors() {
			logger.Warn("[kafka] consumer group error", zap.Error(err))
		}
	})
	topics := c.router.Topics()
	handler := &groupHandler{router: c.router}
	for {
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Warn("[kafka] consume error", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *ConsumerGroup) Close() error {
	return c.group.Close()
}
