package store

import (
	"context"
	"fmt"

	"bom-order-service/internal/models"
	"bom-order-service/internal/repository"

	"github.com/jmoiron/sqlx"
)

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// ListOrders retrieves all orders, newest first
func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// GetOrderLineDetails retrieves line items joined with their snapshot and part
func (s *Store) GetOrderLineDetails(ctx context.Context, orderID int64) ([]models.LineItemDetail, error) {
	lines := []models.LineItemDetail{}
	err := s.db.SelectContext(ctx, &lines, `
		SELECT
			li.id, li.order_id, li.vendor_part_id, li.number_used, li.number_ordered,
			vp.id AS "vendor_part.id",
			vp.part_id AS "vendor_part.part_id",
			vp.vendor AS "vendor_part.vendor",
			vp.vendor_part_number AS "vendor_part.vendor_part_number",
			vp.fetch_timestamp AS "vendor_part.fetch_timestamp",
			vp.price_breaks AS "vendor_part.price_breaks",
			vp.url AS "vendor_part.url",
			vp.raw AS "vendor_part.raw",
			p.id AS "part.id",
			p.manufacturer AS "part.manufacturer",
			p.manufacturer_part_number AS "part.manufacturer_part_number",
			p.short_description AS "part.short_description",
			p.image_url AS "part.image_url"
		FROM order_line_items li
		JOIN vendor_parts vp ON vp.id = li.vendor_part_id
		JOIN parts p ON p.id = vp.part_id
		WHERE li.order_id = $1
		ORDER BY li.id`, orderID)
	return lines, err
}

// GetOrderBOMs retrieves the BOM selections an order was built from
func (s *Store) GetOrderBOMs(ctx context.Context, orderID int64) ([]models.OrderBOM, error) {
	obs := []models.OrderBOM{}
	err := s.db.SelectContext(ctx, &obs,
		"SELECT * FROM order_boms WHERE order_id = $1 ORDER BY id", orderID)
	return obs, err
}

// CreateOrder creates a new order
func (w *writer) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_name, description, delivery_date, cost_object,
			requestor_name, requestor_phone, supervisor_name, archived, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, w.q, order, query,
		order.OrderName, order.Description, order.DeliveryDate, order.CostObject,
		order.RequestorName, order.RequestorPhone, order.SupervisorName, order.Archived, order.UserID)
}

// CreateOrderBOM records one BOM selection of an order
func (w *writer) CreateOrderBOM(ctx context.Context, ob *models.OrderBOM) error {
	return sqlx.GetContext(ctx, w.q, &ob.ID, `
		INSERT INTO order_boms (order_id, bom_id, bom_count)
		VALUES ($1, $2, $3)
		RETURNING id`,
		ob.OrderID, ob.BOMID, ob.BOMCount)
}

// CreateOrderLineItem creates a new order line item
func (w *writer) CreateOrderLineItem(ctx context.Context, item *models.OrderLineItem) error {
	return sqlx.GetContext(ctx, w.q, &item.ID, `
		INSERT INTO order_line_items (order_id, vendor_part_id, number_used, number_ordered)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		item.OrderID, item.VendorPartID, item.NumberUsed, item.NumberOrdered)
}

// UpdateNumberOrdered changes the ordered quantity of one line
func (w *writer) UpdateNumberOrdered(ctx context.Context, orderID, lineID int64, numberOrdered int) error {
	result, err := w.q.ExecContext(ctx,
		"UPDATE order_line_items SET number_ordered = $1 WHERE id = $2 AND order_id = $3",
		numberOrdered, lineID, orderID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("line item %d of order %d: %w", lineID, orderID, repository.ErrNotFound)
	}
	return nil
}

// ArchiveOrder freezes an order against snapshot propagation
func (w *writer) ArchiveOrder(ctx context.Context, orderID int64) error {
	result, err := w.q.ExecContext(ctx,
		"UPDATE orders SET archived = TRUE WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
