package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []*models.OrderSubmittedEvent
	err    error
}

func (r *recordingPublisher) PublishOrderSubmitted(_ context.Context, e *models.OrderSubmittedEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func validRequest() *models.OrderRequest {
	items := []models.CartLineItem{
		{ID: "A", Name: "A", Price: decimal.RequireFromString("19.99"), Quantity: 2},
		{ID: "B", Name: "B", Price: decimal.RequireFromString("5.00"), Quantity: 1},
	}
	return &models.OrderRequest{
		OrderDate:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Customer:        models.Customer{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		ShippingAddress: models.ShippingAddress{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"},
		Items:           items,
		Totals:          pricing.DefaultPolicy.Quote(items),
	}
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestSubmitAssignsOrderID(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewOrderService(pricing.DefaultPolicy, 0, pub)
	svc.now = fixedClock(1700000000000)

	resp, err := svc.Submit(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "ORD-1700000000000", resp.OrderID)
	assert.Equal(t, models.OrderStatusSuccess, resp.Status)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "ORD-1700000000000", pub.events[0].Order.ID)
	assert.Equal(t, "Ada Lovelace", pub.events[0].Order.CustomerName)
	assert.True(t, decimal.RequireFromString("61.68").Equal(pub.events[0].Total))
}

func TestSubmitOrderIDsAreUnique(t *testing.T) {
	svc := NewOrderService(pricing.DefaultPolicy, 0, nil)
	svc.now = fixedClock(42)

	first, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, "ORD-42", first.OrderID)
	assert.Equal(t, "ORD-43", second.OrderID)
}

func TestSubmitRejectsEmptyItems(t *testing.T) {
	svc := NewOrderService(pricing.DefaultPolicy, 0, nil)
	req := validRequest()
	req.Items = nil
	req.Totals = pricing.DefaultPolicy.Quote(nil)

	_, err := svc.Submit(context.Background(), req)

	var verr *models.OrderValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "items")
}

func TestSubmitRejectsTotalsMismatch(t *testing.T) {
	svc := NewOrderService(pricing.DefaultPolicy, 0, nil)
	req := validRequest()
	req.Totals.GrandTotal = decimal.RequireFromString("50.00")

	_, err := svc.Submit(context.Background(), req)

	var verr *models.OrderValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields["totals"], "61.68")
}

func TestSubmitRejectsMissingAddress(t *testing.T) {
	svc := NewOrderService(pricing.DefaultPolicy, 0, nil)
	req := validRequest()
	req.ShippingAddress.Zip = ""

	_, err := svc.Submit(context.Background(), req)

	var verr *models.OrderValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "shippingAddress")
}

func TestSubmitHonorsContext(t *testing.T) {
	svc := NewOrderService(pricing.DefaultPolicy, time.Hour, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := svc.Submit(ctx, validRequest())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitPublishFailureDoesNotFailOrder(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewOrderService(pricing.DefaultPolicy, 0, pub)

	resp, err := svc.Submit(context.Background(), validRequest())

	require.NoError(t, err)
	assert.NotEmpty(t, resp.OrderID)
}
