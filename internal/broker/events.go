package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"sgp-service/internal/models"
	"sgp-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishProposalChanged publishes ProposalChanged event
func (ep *EventPublisher) PublishProposalChanged(ctx context.Context, event *models.ProposalChangedEvent) error {
	return ep.producer.PublishEvent(ctx, proposalKey(event.ProposalID), event)
}

// PublishProposalExpired publishes ProposalExpired event
func (ep *EventPublisher) PublishProposalExpired(ctx context.Context, event *models.ProposalExpiredEvent) error {
	return ep.producer.PublishEvent(ctx, proposalKey(event.ProposalID), event)
}

// PublishAlertCreated publishes AlertCreated event
func (ep *EventPublisher) PublishAlertCreated(ctx context.Context, event *models.AlertCreatedEvent) error {
	key := "alert-" + event.AlertID
	if event.PropostaID != nil {
		key = proposalKey(*event.PropostaID)
	}
	return ep.producer.PublishEvent(ctx, key, event)
}

func proposalKey(id string) string {
	return fmt.Sprintf("proposal-%s", id)
}

// NoopPublisher drops every event; used when Kafka is disabled
type NoopPublisher struct{}

func (NoopPublisher) PublishProposalChanged(context.Context, *models.ProposalChangedEvent) error {
	return nil
}

func (NoopPublisher) PublishProposalExpired(context.Context, *models.ProposalExpiredEvent) error {
	return nil
}

func (NoopPublisher) PublishAlertCreated(context.Context, *models.AlertCreatedEvent) error {
	return nil
}

// EventHandler handles incoming events
type EventHandler struct {
	onProposalChanged func(context.Context, *models.ProposalChangedEvent) error
	logger            *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger().Named("event-handler")}
}

// OnProposalChanged registers a handler for ProposalChanged events
func (eh *EventHandler) OnProposalChanged(handler func(context.Context, *models.ProposalChangedEvent) error) {
	eh.onProposalChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeProposalChanged:
		if eh.onProposalChanged != nil {
			var event models.ProposalChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProposalChanged event: %w", err)
			}
			return eh.onProposalChanged(ctx, &event)
		}

	default:
		eh.logger.Debug("Ignoring event",
			zap.String("type", baseEvent.EventType),
			zap.String("event_id", baseEvent.EventID))
	}

	return nil
}
