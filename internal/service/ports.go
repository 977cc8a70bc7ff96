package service

import (
	"context"
	"time"

	"bom-order-service/internal/models"
)

// EventPublisher is the subset of broker.EventPublisher the services use
type EventPublisher interface {
	PublishBOMUploaded(ctx context.Context, event *models.BOMUploadedEvent) error
	PublishBOMResolved(ctx context.Context, event *models.BOMResolvedEvent) error
	PublishVendorPartRefreshed(ctx context.Context, event *models.VendorPartRefreshedEvent) error
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderArchived(ctx context.Context, event *models.OrderArchivedEvent) error
}

// Locker guards a BOM against concurrent resolution runs
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// IdempotencyStore remembers which order an Idempotency-Key produced
type IdempotencyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) (int64, bool, error)
	SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error
}
