package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bom-order-service/internal/export"
	"bom-order-service/internal/models"
	"bom-order-service/internal/pricing"
	"bom-order-service/internal/repository"
	"bom-order-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrOrderArchived is returned when a frozen order would be modified
var ErrOrderArchived = errors.New("order is archived")

// OrderService handles order business logic
type OrderService struct {
	store          repository.Store
	idempotency    IdempotencyStore
	eventPublisher EventPublisher
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service. idempotency and
// eventPublisher may be nil.
func NewOrderService(
	store repository.Store,
	idempotency IdempotencyStore,
	eventPublisher EventPublisher,
	idempotencyTTL time.Duration,
) *OrderService {
	return &OrderService{
		store:          store,
		idempotency:    idempotency,
		eventPublisher: eventPublisher,
		idempotencyTTL: idempotencyTTL,
		logger:         util.ComponentLogger("order-service"),
	}
}

// CreateOrderRequest represents a request to create an order from BOMs
type CreateOrderRequest struct {
	OrderName      string         `json:"order_name" binding:"required"`
	Description    string         `json:"description"`
	DeliveryDate   time.Time      `json:"delivery_date" binding:"required"`
	CostObject     string         `json:"cost_object"`
	RequestorName  string         `json:"requestor_name" binding:"required"`
	RequestorPhone string         `json:"requestor_phone"`
	SupervisorName string         `json:"supervisor_name"`
	UserID         int64          `json:"user_id"`
	BOMs           []BOMSelection `json:"boms" binding:"dive"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// BOMSelection is one BOM and how many boards are built from it
type BOMSelection struct {
	BOMID int64 `json:"bom_id" binding:"required"`
	Count int   `json:"count" binding:"required,min=1"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID   int64 `json:"order_id"`
	LineCount int   `json:"line_count"`
	Duplicate bool  `json:"duplicate,omitempty"`
}

// CreateOrder aggregates the selected BOMs into a new order
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey != "" && s.idempotency != nil {
		orderID, found, err := s.idempotency.GetIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if found {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", orderID))
			lines, err := s.store.GetOrderLineDetails(ctx, orderID)
			if err != nil {
				return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
			}
			return &CreateOrderResponse{OrderID: orderID, LineCount: len(lines), Duplicate: true}, nil
		}
	}

	selections, order := mergeSelections(req.BOMs), orderFromRequest(req)
	if len(selections) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty").Inc()
		return nil, ErrEmptyOrder
	}

	inputs, err := s.aggregationInputs(ctx, selections)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_boms").Inc()
		util.RecordError(span, err)
		return nil, err
	}

	lines, err := AggregateLineItems(inputs, s.logger)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("empty").Inc()
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(tx repository.Writer) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		for _, sel := range selections {
			ob := &models.OrderBOM{OrderID: order.ID, BOMID: sel.BOMID, BOMCount: sel.Count}
			if err := tx.CreateOrderBOM(ctx, ob); err != nil {
				return fmt.Errorf("failed to record bom %d: %w", sel.BOMID, err)
			}
		}
		for _, line := range lines {
			item := &models.OrderLineItem{
				OrderID:       order.ID,
				VendorPartID:  line.VendorPart.ID,
				NumberUsed:    line.NumberUsed,
				NumberOrdered: line.NumberOrdered,
			}
			if err := tx.CreateOrderLineItem(ctx, item); err != nil {
				return fmt.Errorf("failed to create order line item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		util.RecordError(span, err)
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int("boms", len(selections)),
		zap.Int("lines", len(lines)))

	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.SetIdempotencyKey(ctx, req.IdempotencyKey, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Warn("Failed to store idempotency key", zap.Error(err))
		}
	}

	if s.eventPublisher != nil {
		bomIDs := make([]int64, len(selections))
		for i, sel := range selections {
			bomIDs[i] = sel.BOMID
		}
		event := &models.OrderCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCreated,
				Timestamp: time.Now(),
			},
			OrderID:   order.ID,
			UserID:    order.UserID,
			BOMIDs:    bomIDs,
			LineCount: len(lines),
		}
		if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return &CreateOrderResponse{OrderID: order.ID, LineCount: len(lines)}, nil
}

func orderFromRequest(req *CreateOrderRequest) *models.Order {
	return &models.Order{
		OrderName:      req.OrderName,
		Description:    req.Description,
		DeliveryDate:   req.DeliveryDate,
		CostObject:     req.CostObject,
		RequestorName:  req.RequestorName,
		RequestorPhone: req.RequestorPhone,
		SupervisorName: req.SupervisorName,
		UserID:         req.UserID,
	}
}

// mergeSelections sums repeated BOM ids, keeping first-seen order
func mergeSelections(in []BOMSelection) []BOMSelection {
	out := make([]BOMSelection, 0, len(in))
	index := make(map[int64]int, len(in))
	for _, sel := range in {
		if i, ok := index[sel.BOMID]; ok {
			out[i].Count += sel.Count
			continue
		}
		index[sel.BOMID] = len(out)
		out = append(out, sel)
	}
	return out
}

// aggregationInputs loads the BOMs and the snapshots of every resolved part
func (s *OrderService) aggregationInputs(ctx context.Context, selections []BOMSelection) ([]AggregationInput, error) {
	ids := make([]int64, len(selections))
	for i, sel := range selections {
		ids[i] = sel.BOMID
	}

	boms, err := s.store.GetBOMsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load boms: %w", err)
	}
	byID := make(map[int64]*models.BillOfMaterials, len(boms))
	var partIDs []int64
	for i := range boms {
		byID[boms[i].ID] = &boms[i]
		for _, bp := range boms[i].Parts {
			if bp.Resolved() {
				partIDs = append(partIDs, *bp.PartID)
			}
		}
	}

	snapshots := make(map[int64][]models.VendorPart)
	if len(partIDs) > 0 {
		vps, err := s.store.ListVendorPartsByPartIDs(ctx, partIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load vendor parts: %w", err)
		}
		for _, vp := range vps {
			snapshots[vp.PartID] = append(snapshots[vp.PartID], vp)
		}
	}

	inputs := make([]AggregationInput, 0, len(selections))
	for _, sel := range selections {
		bom, ok := byID[sel.BOMID]
		if !ok {
			return nil, fmt.Errorf("bom %d: %w", sel.BOMID, repository.ErrNotFound)
		}
		in := AggregationInput{BOMID: bom.ID, Multiplier: sel.Count}
		for _, bp := range bom.Parts {
			ap := AggregationPart{BOMPart: bp}
			if bp.Resolved() {
				ap.VendorParts = snapshots[*bp.PartID]
			}
			in.Parts = append(in.Parts, ap)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// PriceUnavailable is shown for a line whose quantity has no price break
const PriceUnavailable = "unavailable"

// PricedLine is a line item with its price at number_ordered
type PricedLine struct {
	models.LineItemDetail
	UnitPrice     *decimal.Decimal `json:"unit_price"`
	ExtendedPrice *decimal.Decimal `json:"extended_price"`
	PriceStatus   string           `json:"price_status"`
	Breaks        string           `json:"breaks"`
}

// OrderDetail is an order with its BOM selections and priced lines
type OrderDetail struct {
	Order models.Order      `json:"order"`
	BOMs  []models.OrderBOM `json:"boms"`
	Lines []PricedLine      `json:"lines"`
	Total decimal.Decimal   `json:"total"`
}

// GetOrder retrieves an order with every line priced
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.GetOrderLineDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}
	boms, err := s.store.GetOrderBOMs(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order boms: %w", err)
	}

	detail := &OrderDetail{Order: *order, BOMs: boms, Lines: make([]PricedLine, len(lines)), Total: decimal.Zero}
	for i := range lines {
		pl := PricedLine{LineItemDetail: lines[i], Breaks: pricing.FormatBreaks(lines[i].VendorPart.PriceBreaks)}
		unit, err := pricing.PriceFor(&lines[i].VendorPart, lines[i].NumberOrdered)
		if err != nil {
			util.PriceNotFoundTotal.Inc()
			pl.PriceStatus = PriceUnavailable
		} else {
			ext := unit.Mul(decimal.NewFromInt(int64(lines[i].NumberOrdered)))
			pl.UnitPrice, pl.ExtendedPrice = &unit, &ext
			pl.PriceStatus = "ok"
			detail.Total = detail.Total.Add(ext)
		}
		detail.Lines[i] = pl
	}
	return detail, nil
}

// ExportSource loads an order and its lines for the exporters
func (s *OrderService) ExportSource(ctx context.Context, orderID int64) (*export.OrderSheet, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := s.store.GetOrderLineDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}
	return export.NewOrderSheet(*order, lines), nil
}

// ListOrders retrieves every order, newest first
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.ListOrders(ctx)
}

// UpdateOrderedCounts sets number_ordered for the given line ids of an open order
func (s *OrderService) UpdateOrderedCounts(ctx context.Context, orderID int64, counts map[int64]int) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderedCounts")
	defer span.End()

	for lineID, n := range counts {
		if n < 0 {
			return fmt.Errorf("line %d: %w", lineID, models.ErrInvalidQuantity)
		}
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Archived {
		return ErrOrderArchived
	}

	err = s.store.RunInTx(ctx, func(tx repository.Writer) error {
		for lineID, n := range counts {
			if err := tx.UpdateNumberOrdered(ctx, orderID, lineID, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	s.logger.Info("Order counts updated", zap.Int64("order_id", orderID), zap.Int("lines", len(counts)))
	return nil
}

// ArchiveOrder freezes an order so snapshot refreshes no longer move its lines
func (s *OrderService) ArchiveOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.ArchiveOrder")
	defer span.End()

	if err := s.store.ArchiveOrder(ctx, orderID); err != nil {
		util.RecordError(span, err)
		return err
	}

	util.OrdersArchivedTotal.Inc()
	s.logger.Info("Order archived", zap.Int64("order_id", orderID))

	if s.eventPublisher != nil {
		event := &models.OrderArchivedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderArchived,
				Timestamp: time.Now(),
			},
			OrderID: orderID,
		}
		if err := s.eventPublisher.PublishOrderArchived(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderArchived event", zap.Error(err))
		}
	}
	return nil
}
