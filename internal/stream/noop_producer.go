package stream

import (
	"context"

	"github.com/nebulo-im/nebulo/internal/domain"
)

// NoopProducer satisfies Producer when the event stream is disabled.
type NoopProducer struct{}

func NewNoopProducer() *NoopProducer {
	return &NoopProducer{}
}

func (NoopProducer) PublishMessage(context.Context, *domain.Message) error {
	return nil
}

func (NoopProducer) PublishTransaction(context.Context, *domain.Transaction) error {
	return nil
}

func (NoopProducer) Close() error {
	return nil
}
