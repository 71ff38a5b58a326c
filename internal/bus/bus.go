// Package bus implements domain.EventBus on in-process channels and NATS.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrTenantRequired is returned for calls without a tenant.
	ErrTenantRequired = errors.New("bus: tenant id is required")

	// ErrClosed is returned once the bus has been closed.
	ErrClosed = errors.New("bus: closed")
)

const (
	subjectRoot = "kestrel"

	// requestTimeout bounds Request when ctx has no deadline.
	requestTimeout = 30 * time.Second
)

// New builds the bus selected by cfg.Type.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// subject places a topic under its tenant,
// e.g. kestrel.school-a.kestrel.assessment.completed.
func subject(tenantID, topic string) string {
	return strings.Join([]string{subjectRoot, tenantID, topic}, ".")
}

func envelope(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UnixNano(),
	}
}

func encode(msg *domain.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*domain.Message, error) {
	msg := new(domain.Message)
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	return msg, nil
}
