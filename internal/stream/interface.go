package stream

import (
	"context"

	"github.com/nebulo-im/nebulo/internal/domain"
)

// Producer publishes domain events to the event stream. Publishing is
// best-effort: a failed publish never fails the originating operation.
type Producer interface {
	PublishMessage(ctx context.Context, msg *domain.Message) error
	PublishTransaction(ctx context.Context, tx *domain.Transaction) error
	Close() error
}
