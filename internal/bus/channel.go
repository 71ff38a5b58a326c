package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/google/uuid"
)

const (
	defaultBufferSize = 1000
	inboxPrefix       = "_INBOX."
)

// ChannelBus delivers messages between goroutines of one process. Each
// subscriber owns a buffered queue drained by its own goroutine; a full
// queue drops the message rather than block the publisher.
type ChannelBus struct {
	bufferSize int

	mu      sync.RWMutex
	closed  bool
	topics  map[string][]*inbox
	pending map[string]chan []byte

	running sync.WaitGroup
}

type inbox struct {
	bus     *ChannelBus
	subject string
	topic   string
	queue   chan *domain.Message
	handler domain.MessageHandler
	ctx     context.Context
	stop    context.CancelFunc
	once    sync.Once
}

// NewChannelBus creates a bus whose subscribers queue up to bufferSize
// messages each.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		topics:     map[string][]*inbox{},
		pending:    map[string]chan []byte{},
	}
}

func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	return b.fanOut(envelope(tenantID, topic, payload))
}

func (b *ChannelBus) fanOut(msg *domain.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, in := range b.topics[subject(msg.TenantID, msg.Topic)] {
		select {
		case in.queue <- msg:
		default:
			slog.Warn("subscriber queue full, message dropped",
				"tenant_id", msg.TenantID,
				"topic", msg.Topic,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, stop := context.WithCancel(ctx)
	in := &inbox{
		bus:     b,
		subject: subject(tenantID, topic),
		topic:   topic,
		queue:   make(chan *domain.Message, b.bufferSize),
		handler: handler,
		ctx:     subCtx,
		stop:    stop,
	}
	b.topics[in.subject] = append(b.topics[in.subject], in)

	b.running.Add(1)
	go in.drain()
	return in, nil
}

// drain runs handlers one at a time until the inbox is stopped.
func (in *inbox) drain() {
	defer in.bus.running.Done()
	for {
		select {
		case <-in.ctx.Done():
			return
		case msg := <-in.queue:
			if err := in.handler(in.ctx, msg); err != nil {
				slog.Error("message handler failed",
					"tenant_id", msg.TenantID,
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Request registers a one-shot inbox, publishes with its address and
// waits for the first Reply to it.
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	addr := inboxPrefix + uuid.NewString()
	replies := make(chan []byte, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.pending[addr] = replies
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, addr)
		b.mu.Unlock()
	}()

	msg := envelope(tenantID, topic, payload)
	msg.Metadata[domain.MetaReplyTo] = addr
	if err := b.fanOut(msg); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request on %s: %w", topic, ctx.Err())
	}
}

// Reply hands payload to the waiting Request. A requester that already
// gave up is not an error.
func (b *ChannelBus) Reply(ctx context.Context, msg *domain.Message, payload []byte) error {
	addr := msg.ReplyTo()
	if addr == "" {
		return nil
	}

	b.mu.RLock()
	replies, ok := b.pending[addr]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	select {
	case replies <- payload:
	default:
	}
	return nil
}

func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscriber and waits for running handlers to return.
// Queued messages are discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, inboxes := range b.topics {
		for _, in := range inboxes {
			in.stop()
		}
	}
	b.topics = map[string][]*inbox{}
	b.mu.Unlock()

	b.running.Wait()
	return nil
}

// subscribers reports how many inboxes listen on a tenant's topic.
func (b *ChannelBus) subscribers(tenantID, topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[subject(tenantID, topic)])
}

func (in *inbox) Unsubscribe() error {
	in.once.Do(func() {
		in.stop()

		b := in.bus
		b.mu.Lock()
		defer b.mu.Unlock()

		kept := b.topics[in.subject][:0]
		for _, other := range b.topics[in.subject] {
			if other != in {
				kept = append(kept, other)
			}
		}
		if len(kept) == 0 {
			delete(b.topics, in.subject)
		} else {
			b.topics[in.subject] = kept
		}
	})
	return nil
}

func (in *inbox) Topic() string {
	return in.topic
}
