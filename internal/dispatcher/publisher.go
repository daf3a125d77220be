// Package dispatcher drains the notification outbox: it polls pending
// messages, publishes them to the notification topic through a worker pool,
// and routes poison or repeatedly failing messages to the DLQ. Delivery is
// at-least-once; consumers deduplicate on the event id.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/domain/outbox"
	"github.com/communitymarket/ucm-ledger/internal/platform/messaging/producers"
)

// EventPublisher delivers one staged outbox message
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// KafkaEventPublisher implements EventPublisher against the notification topic
type KafkaEventPublisher struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

// NewEventPublisher creates a publisher
func NewEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &KafkaEventPublisher{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishEvent decodes the staged event, publishes it keyed by request id so
// one request's notifications stay ordered, and marks the message processed.
func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, message *outbox.Message) error {
	event, err := message.Event()
	if err != nil {
		// Poison payload: no number of retries will fix it
		p.logger.Error("Failed to unmarshal notification event from outbox payload",
			"outbox_id", message.ID, "event_id", message.EventID.String(), "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error",
				"outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	logger := p.logger.With("event_id", event.ID.String(), "kind", string(event.Kind))
	logger.Debug("Publishing notification event", "outbox_id", message.ID, "request_id", event.RequestID.String())

	if err := p.producer.Publish(ctx, event.RequestID.String(), event); err != nil {
		return fmt.Errorf("failed to publish notification event %s: %w", event.ID, err)
	}

	// A crash between the publish and this write re-delivers the event on
	// the next poll; that is the at-least-once contract.
	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, outbox.StatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			"outbox_id", message.ID, "error", err,
		)
		return fmt.Errorf("publish for event %s OK, but failed to mark outbox %d as PROCESSED: %w",
			event.ID, message.ID, err)
	}

	logger.Info("Notification event published", "outbox_id", message.ID)
	return nil
}
