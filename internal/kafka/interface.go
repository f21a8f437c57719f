package kafka

import (
	"context"

	"github.com/weiawesome/chat-relay/internal/domain"
)

// MessageProducer publishes persisted chat messages to an outbound stream.
type MessageProducer interface {
	ProduceMessage(ctx context.Context, msg *domain.Message) error
	Close() error
}

// NopProducer is used when the stream is disabled.
type NopProducer struct{}

func (NopProducer) ProduceMessage(context.Context, *domain.Message) error { return nil }

func (NopProducer) Close() error { return nil }
