package natsx

import (
	"context"

	"PPRealtime/tools/errs"
)

// NatsManager bundles one connection with its producer and consumer. The
// cluster bus uses it as its backplane.
type NatsManager struct {
	client   *NatsxClient
	producer *NatsxProducer
	consumer *NatsxConsumer
}

// NewNatsManager connects and installs middlewares on every subscription.
func NewNatsManager(cfg NatsxConfig, middlewares ...NatsxMiddleware) (*NatsManager, error) {
	c, err := NewNatsxClient(cfg)
	if err != nil {
		return nil, err
	}
	return newManager(c, middlewares...), nil
}

func newManager(c *NatsxClient, middlewares ...NatsxMiddleware) *NatsManager {
	return &NatsManager{
		client:   c,
		producer: NewNatsxProducer(c),
		consumer: NewNatsxConsumer(c, middlewares...),
	}
}

func (m *NatsManager) ready() error {
	if m == nil || m.client == nil {
		return errs.ErrUnavailable.WrapMsg("nats manager not initialized")
	}
	return nil
}

func (m *NatsManager) Close() error {
	if m.ready() != nil {
		return nil
	}
	return m.client.Close()
}

func (m *NatsManager) RegisterRoute(r NatsxRoute) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.client.RegisterRoute(r)
}

// PublishOnce stamps Nats-Msg-Id so receivers drop replays.
func (m *NatsManager) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.producer.PublishOnce(ctx, biz, data, hdr, msgID)
}

// Subscribe listens on the subject of biz. Broadcast routes leave Queue empty.
func (m *NatsManager) Subscribe(biz string, h NatsxHandler) error {
	if err := m.ready(); err != nil {
		return err
	}
	return m.consumer.Subscribe(biz, h)
}
