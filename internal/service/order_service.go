package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDelay is how long the simulated backend takes to answer.
const DefaultDelay = time.Second

// OrderSubmitter is the order-submission service. It either assigns an order
// id or returns a *models.OrderValidationError; any other error is transport.
type OrderSubmitter interface {
	Submit(ctx context.Context, req *models.OrderRequest) (*models.OrderResponse, error)
}

// EventPublisher receives submitted orders.
type EventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, event *models.OrderSubmittedEvent) error
}

// OrderService is the simulated order backend. It checks the payload, waits a
// fixed delay and always accepts a valid order.
type OrderService struct {
	policy    pricing.Policy
	delay     time.Duration
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	lastID int64
}

// NewOrderService creates the simulated backend. publisher may be nil.
func NewOrderService(policy pricing.Policy, delay time.Duration, publisher EventPublisher) *OrderService {
	return &OrderService{
		policy:    policy,
		delay:     delay,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Submit processes an order request
func (s *OrderService) Submit(ctx context.Context, req *models.OrderRequest) (*models.OrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Submit")
	defer span.End()

	if verr := s.validate(req); verr != nil {
		s.logger.Warn("Order rejected", zap.String("reason", verr.Error()))
		return nil, verr
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("order submission aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	orderID := s.nextOrderID()
	s.logger.Info("Order processed",
		zap.String("order_id", orderID),
		zap.String("total", req.Totals.GrandTotal.StringFixed(2)),
		zap.Int("units", req.Totals.Units))

	if s.publisher != nil {
		event := &models.OrderSubmittedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderSubmitted,
				Timestamp: s.now(),
			},
			Order: models.Order{
				ID:              orderID,
				Date:            req.OrderDate,
				CustomerName:    req.Customer.FullName(),
				Email:           req.Customer.Email,
				ShippingAddress: req.ShippingAddress,
				Items:           req.Items,
				Totals:          req.Totals,
			},
			Total: req.Totals.GrandTotal,
		}
		if err := s.publisher.PublishOrderSubmitted(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderSubmitted event", zap.Error(err))
		}
	}

	return &models.OrderResponse{
		OrderID: orderID,
		Status:  models.OrderStatusSuccess,
		Message: "Order processed successfully",
	}, nil
}

// validate checks the payload the way a real backend would before accepting
// it, including that the totals match the items.
func (s *OrderService) validate(req *models.OrderRequest) *models.OrderValidationError {
	fields := map[string]string{}

	if req == nil {
		return &models.OrderValidationError{Message: "Server validation failed", Fields: map[string]string{"order": "missing"}}
	}
	if len(req.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	for i, item := range req.Items {
		key := "items[" + strconv.Itoa(i) + "]"
		switch {
		case item.ID == "":
			fields[key] = "product id is required"
		case item.Quantity < 1:
			fields[key] = "quantity must be at least 1"
		case item.Price.IsNegative():
			fields[key] = "price must not be negative"
		}
	}
	if req.Customer.Email == "" {
		fields["email"] = "required"
	}
	if req.Customer.FullName() == "" {
		fields["name"] = "required"
	}
	addr := req.ShippingAddress
	if addr.Street == "" || addr.City == "" || addr.State == "" || addr.Zip == "" {
		fields["shippingAddress"] = "street, city, state and zip are required"
	}

	if len(fields) == 0 {
		want := s.policy.Quote(req.Items)
		got := req.Totals
		if !want.GrandTotal.Equal(got.GrandTotal) || !want.Tax.Equal(got.Tax) ||
			!want.Shipping.Equal(got.Shipping) || !want.Subtotal.Equal(got.Subtotal) {
			fields["totals"] = fmt.Sprintf("expected total %s, got %s",
				want.GrandTotal.StringFixed(2), got.GrandTotal.StringFixed(2))
		}
	}

	if len(fields) > 0 {
		return &models.OrderValidationError{Message: "Server validation failed", Fields: fields}
	}
	return nil
}

// nextOrderID returns ORD-<unix millis>, bumped when two orders land in the
// same millisecond.
func (s *OrderService) nextOrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return "ORD-" + strconv.FormatInt(id, 10)
}
