package messaging

import (
	"context"
	"fmt"
	"time"

	"reaction_timer_backend/pkg/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second
)

// NATSPublisher publishes JSON payloads to subjects under a common prefix.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("reaction-timer"),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

// Publish sends body to <prefix>.<subject>. msgID is set as the Nats-Msg-Id
// header so JetStream consumers can deduplicate.
func (p *NATSPublisher) Publish(ctx context.Context, subject, msgID string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := nats.NewMsg(p.prefix + "." + subject)
	msg.Header.Set(nats.MsgIdHdr, msgID)
	msg.Data = body
	return p.conn.PublishMsg(msg)
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}
