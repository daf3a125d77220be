package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/communitymarket/ucm-ledger/internal/config"
	"github.com/communitymarket/ucm-ledger/internal/domain/outbox"
	"github.com/communitymarket/ucm-ledger/internal/platform/messaging/producers"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ucm_notification_events_dispatched_total",
	Help: "Outbox messages handled by the dispatcher, by outcome",
}, []string{"outcome"})

// Poller drains pending outbox messages through a worker pool
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        EventPublisher
	dlqProducer      producers.DeadLetterPublisher // nil when DLQ is disabled
	pool             *ants.Pool
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	outboxCfg *config.OutboxConfig,
	poolCfg *config.WorkerPoolConfig,
	outboxRepo outbox.Repository,
	publisher EventPublisher,
	dlqProducer producers.DeadLetterPublisher,
	logger *slog.Logger,
) (*Poller, error) {
	pool, err := ants.NewPool(poolCfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher worker pool: %w", err)
	}

	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		dlqProducer:      dlqProducer,
		pool:             pool,
		logger:           logger,
		pollInterval:     outboxCfg.PollingInterval,
		batchSize:        outboxCfg.BatchSize,
		maxRetryAttempts: outboxCfg.MaxRetryAttempts,
	}, nil
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting notification outbox poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
		"workers", p.pool.Cap(),
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Notification outbox poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

// Shutdown releases the worker pool
func (p *Poller) Shutdown() {
	p.logger.Info("Shutting down dispatcher worker pool", "running_workers", p.pool.Running())
	p.pool.Release()
}

// processPendingMessages fans one batch out over the pool and waits for it,
// so batches never overlap and a slow broker backpressures the poll loop.
func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return nil
	}

	p.logger.Info("Fetched pending outbox messages", "count", len(messages))

	var wg sync.WaitGroup
	for _, msg := range messages {
		msg := msg
		wg.Add(1)
		if err := p.pool.Submit(func() {
			defer wg.Done()
			p.handleMessage(ctx, msg)
		}); err != nil {
			wg.Done()
			p.logger.Error("Failed to submit outbox message to worker pool",
				"outbox_id", msg.ID, "error", err)
		}
	}
	wg.Wait()
	return nil
}

func (p *Poller) handleMessage(ctx context.Context, msg *outbox.Message) {
	err := p.publisher.PublishEvent(ctx, msg)
	if err == nil {
		eventsDispatched.WithLabelValues("published").Inc()
		return
	}

	p.logger.Error("Failed to publish outbox message",
		"outbox_id", msg.ID, "event_id", msg.EventID.String(),
		"current_attempts", msg.Attempts, "error", err,
	)
	eventsDispatched.WithLabelValues("failed").Inc()

	if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
		p.logger.Error("Failed to increment attempts for outbox message", "outbox_id", msg.ID, "error", errInc)
		return
	}

	if msg.Attempts+1 >= p.maxRetryAttempts {
		p.logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH",
			"outbox_id", msg.ID, "event_id", msg.EventID.String(), "attempts_made", msg.Attempts+1,
		)
		if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, outbox.StatusFailedToPublish); errUpdate != nil {
			p.logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH after max retries",
				"outbox_id", msg.ID, "error", errUpdate)
			return
		}
		eventsDispatched.WithLabelValues("dead_lettered").Inc()

		if p.dlqProducer != nil {
			if errDLQ := p.dlqProducer.PublishToDLQ(ctx, msg.EventID.String(), msg.Payload, "max_retry_attempts_reached"); errDLQ != nil {
				p.logger.Error("Failed to publish outbox message to DLQ", "outbox_id", msg.ID, "error", errDLQ)
			}
		}
	}
}
