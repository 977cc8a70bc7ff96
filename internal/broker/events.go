package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"bom-order-service/internal/models"
	"bom-order-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing purchasing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishBOMUploaded publishes BOMUploaded event
func (ep *EventPublisher) PublishBOMUploaded(ctx context.Context, event *models.BOMUploadedEvent) error {
	return ep.producer.PublishEvent(ctx, bomKey(event.BOMID), event)
}

// PublishBOMResolved publishes BOMResolved event
func (ep *EventPublisher) PublishBOMResolved(ctx context.Context, event *models.BOMResolvedEvent) error {
	return ep.producer.PublishEvent(ctx, bomKey(event.BOMID), event)
}

// PublishVendorPartRefreshed publishes VendorPartRefreshed event.
// Keyed by listing so every snapshot of one vendor part lands on one partition.
func (ep *EventPublisher) PublishVendorPartRefreshed(ctx context.Context, event *models.VendorPartRefreshedEvent) error {
	key := fmt.Sprintf("vendorpart-%s-%s", event.Vendor, event.VendorPartNumber)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderArchived publishes OrderArchived event
func (ep *EventPublisher) PublishOrderArchived(ctx context.Context, event *models.OrderArchivedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

func bomKey(id int64) string   { return fmt.Sprintf("bom-%d", id) }
func orderKey(id int64) string { return fmt.Sprintf("order-%d", id) }

// EventHandler handles incoming events
type EventHandler struct {
	onBOMUploaded func(context.Context, *models.BOMUploadedEvent) error
	logger        *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("event-handler")}
}

// OnBOMUploaded registers a handler for BOMUploaded events
func (eh *EventHandler) OnBOMUploaded(handler func(context.Context, *models.BOMUploadedEvent) error) {
	eh.onBOMUploaded = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeBOMUploaded:
		if eh.onBOMUploaded != nil {
			var event models.BOMUploadedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BOMUploaded event: %w", err)
			}
			return eh.onBOMUploaded(ctx, &event)
		}

	case models.EventTypeBOMResolved, models.EventTypeVendorPartRefreshed,
		models.EventTypeOrderCreated, models.EventTypeOrderArchived:
		// audit-only events share the topic

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
