package worker

import (
	"context"
	"errors"
	"time"

	"sgp-service/internal/broker"
	"sgp-service/internal/models"
	"sgp-service/internal/service"
	"sgp-service/internal/util"

	"go.uber.org/zap"
)

const processedEventTTL = 24 * time.Hour

// TickRunner runs one engine tick on demand. Implemented by Scheduler.
type TickRunner interface {
	RunOnce(ctx context.Context) (TickResult, error)
}

// ProposalEventWorker reacts to proposal changes published by any instance
// by running an engine tick, so new or edited proposals get their alerts
// without waiting for the next poll.
type ProposalEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	runner       TickRunner
	guard        service.IdempotencyGuard
	logger       *zap.Logger
}

// NewProposalEventWorker creates a new proposal event worker. guard may be
// nil; redelivered events then trigger another (harmless) tick.
func NewProposalEventWorker(consumer *broker.Consumer, runner TickRunner, guard service.IdempotencyGuard) *ProposalEventWorker {
	w := &ProposalEventWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		runner:       runner,
		guard:        guard,
		logger:       util.GetLogger().Named("proposal-worker"),
	}
	w.eventHandler.OnProposalChanged(w.handleProposalChanged)
	return w
}

// Start starts the worker
func (w *ProposalEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting proposal event worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ProposalEventWorker) Stop() error {
	w.logger.Info("Stopping proposal event worker...")
	return w.consumer.Close()
}

func (w *ProposalEventWorker) handleProposalChanged(ctx context.Context, event *models.ProposalChangedEvent) error {
	key := "event:" + event.EventID
	if w.guard != nil && event.EventID != "" {
		claimed, err := w.guard.ClaimIdempotencyKey(ctx, key, processedEventTTL)
		if err != nil {
			w.logger.Warn("Failed to check processed event", zap.String("event_id", event.EventID), zap.Error(err))
		} else if !claimed {
			w.logger.Debug("Event already processed, skipping", zap.String("event_id", event.EventID))
			return nil
		}
	}

	w.logger.Info("Proposal changed, running tick",
		zap.String("proposal_id", event.ProposalID),
		zap.String("action", event.Action))

	result, err := w.runner.RunOnce(ctx)
	if errors.Is(err, ErrTickInProgress) {
		// the running tick, or the next poll, will see the change
		return nil
	}
	if err != nil {
		if w.guard != nil && event.EventID != "" {
			if rerr := w.guard.ReleaseIdempotencyKey(ctx, key); rerr != nil {
				w.logger.Warn("Failed to release event key", zap.String("event_id", event.EventID), zap.Error(rerr))
			}
		}
		return err
	}

	w.logger.Debug("Event tick finished",
		zap.String("event_id", event.EventID),
		zap.Int("expired", result.Expired),
		zap.Int("alerts_created", result.AlertsCreated))
	return nil
}
