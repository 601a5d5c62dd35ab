package natsx

import (
	"time"

	"PPRealtime/logger"

	"go.uber.org/zap"
	"golang.org/x/net/context"
)

type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain wraps h so that mws[0] runs first.
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NatsxLogMiddleware logs handler errors and slow handlers.
func NatsxLogMiddleware(slow time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			start := time.Now()
			err := next(ctx, msg)
			if cost := time.Since(start); slow > 0 && cost > slow {
				logger.Warn("[natsx] slow handler", zap.String("subject", msg.Subject), zap.Duration("cost", cost))
			}
			if err != nil {
				logger.Error("[natsx] handler error", zap.String("subject", msg.Subject), zap.Error(err))
			}
			return err
		}
	}
}
