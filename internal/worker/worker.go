package worker

import (
	"context"

	"bom-order-service/internal/broker"
	"bom-order-service/internal/service"
	"bom-order-service/internal/util"

	"go.uber.org/zap"
)

// ResolutionWorker resolves freshly uploaded BOMs in the background
type ResolutionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewResolutionWorker creates a new resolution worker
func NewResolutionWorker(consumer *broker.Consumer, bomService *service.BOMService) *ResolutionWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnBOMUploaded(bomService.HandleBOMUploaded)

	return &ResolutionWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.ComponentLogger("resolution-worker"),
	}
}

// Start consumes events until ctx is cancelled
func (w *ResolutionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting resolution worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ResolutionWorker) Stop() error {
	w.logger.Info("Stopping resolution worker")
	return w.consumer.Close()
}
