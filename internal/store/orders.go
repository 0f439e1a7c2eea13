package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrOrderNotFound = errors.New("order not found")

type orderRow struct {
	OrderID      string          `db:"order_id"`
	OrderDate    time.Time       `db:"order_date"`
	CustomerName string          `db:"customer_name"`
	Email        string          `db:"email"`
	Street       string          `db:"street"`
	City         string          `db:"city"`
	State        string          `db:"state"`
	Zip          string          `db:"zip"`
	Subtotal     decimal.Decimal `db:"subtotal"`
	Tax          decimal.Decimal `db:"tax"`
	Shipping     decimal.Decimal `db:"shipping"`
	Total        decimal.Decimal `db:"total"`
	Units        int             `db:"units"`
}

type itemRow struct {
	ProductID string          `db:"product_id"`
	Name      string          `db:"name"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Quantity  int             `db:"quantity"`
}

// ArchiveOrder stores an order and its lines in one transaction. eventID
// makes redelivered events a no-op. A new event carrying an order id that is
// already archived is skipped, logged and counted as a collision.
func (s *Store) ArchiveOrder(ctx context.Context, eventID string, order *models.Order) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, models.EventTypeOrderSubmitted)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	addr := order.ShippingAddress
	res, err = tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, order_date, customer_name, email, street, city, state, zip,
			subtotal, tax, shipping, total, units)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (order_id) DO NOTHING`,
		order.ID, order.Date, order.CustomerName, order.Email,
		addr.Street, addr.City, addr.State, addr.Zip,
		order.Totals.Subtotal, order.Totals.Tax, order.Totals.Shipping, order.Totals.GrandTotal,
		order.Totals.Units)
	if err != nil {
		return false, fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.reportOrderIDCollision(eventID, order)
		return false, tx.Commit()
	}

	for i, item := range order.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, i, item.ID, item.Name, item.Price, item.Quantity)
		if err != nil {
			return false, fmt.Errorf("failed to insert item %s of order %s: %w", item.ID, order.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) reportOrderIDCollision(eventID string, order *models.Order) {
	util.OrderIDCollisionsTotal.Inc()
	s.logger.Warn("Order id already archived, dropping order",
		zap.String("order_id", order.ID),
		zap.String("event_id", eventID),
		zap.String("email", order.Email),
		zap.String("total", order.Totals.GrandTotal.StringFixed(2)))
}

// GetOrderByID retrieves an archived order with its lines.
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `
		SELECT order_id, order_date, customer_name, email, street, city, state, zip,
			subtotal, tax, shipping, total, units
		FROM orders WHERE order_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var items []itemRow
	err = s.db.SelectContext(ctx, &items,
		"SELECT product_id, name, unit_price, quantity FROM order_items WHERE order_id = $1 ORDER BY position", id)
	if err != nil {
		return nil, err
	}

	return row.toModel(items), nil
}

func (r orderRow) toModel(items []itemRow) *models.Order {
	order := &models.Order{
		ID:           r.OrderID,
		Date:         r.OrderDate,
		CustomerName: r.CustomerName,
		Email:        r.Email,
		ShippingAddress: models.ShippingAddress{
			Street: r.Street, City: r.City, State: r.State, Zip: r.Zip,
		},
		Items: make([]models.CartLineItem, 0, len(items)),
		Totals: models.PricingSnapshot{
			Subtotal:   r.Subtotal,
			Tax:        r.Tax,
			Shipping:   r.Shipping,
			GrandTotal: r.Total,
			Units:      r.Units,
		},
	}
	for _, it := range items {
		order.Items = append(order.Items, models.CartLineItem{
			ID:       it.ProductID,
			Name:     it.Name,
			Price:    it.UnitPrice,
			Quantity: it.Quantity,
		})
	}
	return order
}
