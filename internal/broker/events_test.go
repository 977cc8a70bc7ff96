package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"bom-order-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestHandleMessageRoutesBOMUploaded(t *testing.T) {
	eh := NewEventHandler()

	var got *models.BOMUploadedEvent
	eh.OnBOMUploaded(func(_ context.Context, e *models.BOMUploadedEvent) error {
		got = e
		return nil
	})

	err := eh.HandleMessage(context.Background(), message(t, &models.BOMUploadedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeBOMUploaded, Timestamp: time.Now()},
		BOMID:     42,
		UserID:    7,
		PartCount: 3,
	}))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.BOMID)
	assert.Equal(t, 3, got.PartCount)
}

func TestHandleMessageIgnoresAuditEvents(t *testing.T) {
	eh := NewEventHandler()
	called := false
	eh.OnBOMUploaded(func(context.Context, *models.BOMUploadedEvent) error {
		called = true
		return nil
	})

	err := eh.HandleMessage(context.Background(), message(t, &models.OrderArchivedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderArchived},
		OrderID:   1,
	}))
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	eh := NewEventHandler()
	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}

func TestHandlerErrorPropagates(t *testing.T) {
	eh := NewEventHandler()
	eh.OnBOMUploaded(func(context.Context, *models.BOMUploadedEvent) error {
		return assert.AnError
	})
	err := eh.HandleMessage(context.Background(), message(t, &models.BOMUploadedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeBOMUploaded},
	}))
	assert.ErrorIs(t, err, assert.AnError)
}
