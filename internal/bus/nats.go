package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/nats-io/nats.go"
)

const (
	defaultNATSReconnects    = 10
	defaultNATSReconnectWait = 5 * time.Second
	natsReconnectBuffer      = 8 << 20
)

// NATSBus maps tenant topics onto NATS core subjects. Messages travel as
// JSON envelopes, so a subscriber sees the same domain.Message as on the
// channel bus.
type NATSBus struct {
	conn *nats.Conn
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
}

func natsOptions(cfg domain.EventBusConfig) []nats.Option {
	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(cfg.NATSReconnectWait),
		nats.ReconnectBufSize(natsReconnectBuffer),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{"error", err}
			if sub != nil {
				attrs = append(attrs, "subject", sub.Subject)
			}
			slog.Error("nats async error", attrs...)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	return opts
}

// NewNATSBus dials cfg.NATSUrl. The first connection is retried up to
// NATSMaxReconnects times; after that the client reconnects on its own.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects <= 0 {
		cfg.NATSMaxReconnects = defaultNATSReconnects
	}
	if cfg.NATSReconnectWait <= 0 {
		cfg.NATSReconnectWait = defaultNATSReconnectWait
	}

	opts := natsOptions(cfg)
	var lastErr error
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		conn, err := nats.Connect(cfg.NATSUrl, opts...)
		if err == nil {
			slog.Info("nats connected",
				"url", conn.ConnectedUrl(),
				"server_id", conn.ConnectedServerId(),
			)
			return &NATSBus{conn: conn}, nil
		}

		lastErr = err
		slog.Warn("nats connect failed", "attempt", attempt, "error", err)
		if attempt < cfg.NATSMaxReconnects {
			time.Sleep(cfg.NATSReconnectWait)
		}
	}
	return nil, fmt.Errorf("connect to nats at %s: %w", cfg.NATSUrl, lastErr)
}

func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	data, err := encode(envelope(tenantID, topic, payload))
	if err != nil {
		return err
	}
	return b.conn.Publish(subject(tenantID, topic), data)
}

// Subscribe exposes the NATS reply subject to handlers as MetaReplyTo.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	sub, err := b.conn.Subscribe(subject(tenantID, topic), func(m *nats.Msg) {
		msg, err := decode(m.Data)
		if err != nil {
			slog.Error("dropping undecodable nats message", "subject", m.Subject, "error", err)
			return
		}
		if m.Reply != "" {
			msg.Metadata[domain.MetaReplyTo] = m.Reply
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("message handler failed",
				"tenant_id", msg.TenantID,
				"subject", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return &natsSubscription{topic: topic, sub: sub}, nil
}

func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	data, err := encode(envelope(tenantID, topic, payload))
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	resp, err := b.conn.RequestWithContext(ctx, subject(tenantID, topic), data)
	if err != nil {
		return nil, fmt.Errorf("request on %s: %w", topic, err)
	}
	reply, err := decode(resp.Data)
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

func (b *NATSBus) Reply(ctx context.Context, msg *domain.Message, payload []byte) error {
	addr := msg.ReplyTo()
	if addr == "" {
		return nil
	}
	data, err := encode(envelope(msg.TenantID, msg.Topic, payload))
	if err != nil {
		return err
	}
	return b.conn.Publish(addr, data)
}

func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return errors.New("nats: not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains pending deliveries before closing the connection.
func (b *NATSBus) Close() error {
	stats := b.conn.Stats()
	slog.Info("nats closing",
		"in_msgs", stats.InMsgs,
		"out_msgs", stats.OutMsgs,
		"reconnects", stats.Reconnects,
	)
	if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}
