package domain

import (
	"context"
	"time"

	"github.com/edumetrics/kestrel/internal/fuzzy"
)

// EventBus carries assessment events between the API and workers. Topics
// are namespaced per tenant: a subscriber only sees its own tenant's
// messages.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe runs handler for every message on the tenant's topic until
	// the subscription is cancelled or ctx is done.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request publishes payload and blocks until a subscriber calls Reply
	// or ctx expires.
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	// Reply answers a message delivered by Request. Messages without a
	// reply address are ignored.
	Reply(ctx context.Context, msg *Message, payload []byte) error

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every bus delivers.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// ReplyTo returns the message's reply address, or "".
func (m *Message) ReplyTo() string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	return m.Metadata[MetaReplyTo]
}

// MetaReplyTo is the Metadata key holding a request's reply address.
const MetaReplyTo = "reply_to"

// Subscription is a live handler registration.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the event bus.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string

	// ChannelBufferSize is the per-subscriber queue of the channel bus.
	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait time.Duration
}

// Assessment pipeline topics.
const (
	TopicAssessmentRequested    = "kestrel.assessment.requested"
	TopicAssessmentCompleted    = "kestrel.assessment.completed"
	TopicAssessmentUnclassified = "kestrel.assessment.unclassified"
)

// AssessmentRequest is the payload of TopicAssessmentRequested. It names
// a stored student or carries the inputs inline.
type AssessmentRequest struct {
	RequestID string        `json:"requestId"`
	StudentID string        `json:"studentId,omitempty"`
	Inputs    *fuzzy.Inputs `json:"inputs,omitempty"`
	Method    string        `json:"method,omitempty"`
}
