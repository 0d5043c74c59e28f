package service

import (
	"context"
	"time"

	"sgp-service/internal/models"
)

// IdempotencyGuard claims short-lived keys so that concurrent ticks do not
// persist the same alert twice. Implemented by redisclient.Client.
type IdempotencyGuard interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// EventPublisher publishes domain events. Implemented by broker.EventPublisher
// and broker.NoopPublisher.
type EventPublisher interface {
	PublishProposalChanged(ctx context.Context, event *models.ProposalChangedEvent) error
	PublishProposalExpired(ctx context.Context, event *models.ProposalExpiredEvent) error
	PublishAlertCreated(ctx context.Context, event *models.AlertCreatedEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishProposalChanged(context.Context, *models.ProposalChangedEvent) error {
	return nil
}

func (nopPublisher) PublishProposalExpired(context.Context, *models.ProposalExpiredEvent) error {
	return nil
}

func (nopPublisher) PublishAlertCreated(context.Context, *models.AlertCreatedEvent) error {
	return nil
}
