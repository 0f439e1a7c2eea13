// Package receipt reads the last-order receipt for the confirmation page and
// the downloadable PDF. It never writes.
package receipt

import (
	"context"
	"errors"
	"time"

	"storefront/internal/kvstore"
	"storefront/internal/models"
	"storefront/internal/pricing"
)

// ErrNoReceipt means no order has been completed in this session.
var ErrNoReceipt = errors.New("no order details available")

const (
	dateLayout  = "1/2/2006"
	placeholder = "N/A"
)

// Reader loads the persisted receipt.
type Reader struct {
	store kvstore.Store
}

// NewReader creates a reader over a session-scoped store
func NewReader(store kvstore.Store) *Reader {
	return &Reader{store: store}
}

// Last returns the most recent receipt, if any.
func (r *Reader) Last(ctx context.Context) (models.LastOrderReceipt, bool) {
	var receipt models.LastOrderReceipt
	if !kvstore.GetJSON(ctx, r.store, kvstore.KeyLastOrder, &receipt) {
		return models.LastOrderReceipt{}, false
	}
	return receipt, true
}

// Line is one formatted order line.
type Line struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	Total     string `json:"total"`
}

// Confirmation is the formatted view of a receipt.
type Confirmation struct {
	OrderID         string                 `json:"orderId"`
	Date            string                 `json:"date"`
	CustomerName    string                 `json:"customerName"`
	Email           string                 `json:"email"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	Items           []Line                 `json:"items"`
	Subtotal        string                 `json:"subtotal"`
	Tax             string                 `json:"tax"`
	Shipping        string                 `json:"shipping"`
	Total           string                 `json:"total"`
}

// NewConfirmation formats a receipt, filling blanks with placeholders. now
// stands in for a missing order date.
func NewConfirmation(r models.LastOrderReceipt, now time.Time) Confirmation {
	c := Confirmation{
		OrderID:         orDefault(r.OrderID, placeholder),
		Date:            now.Format(dateLayout),
		CustomerName:    orDefault(r.CustomerName, "Customer"),
		Email:           orDefault(r.Email, placeholder),
		ShippingAddress: r.ShippingAddress,
		Items:           make([]Line, 0, len(r.Items)),
		Subtotal:        r.Subtotal.StringFixed(2),
		Tax:             r.Tax.StringFixed(2),
		Shipping:        r.Shipping.StringFixed(2),
		Total:           r.Total.StringFixed(2),
	}
	if !r.Date.IsZero() {
		c.Date = r.Date.Format(dateLayout)
	}

	for _, item := range r.Items {
		c.Items = append(c.Items, Line{
			Name:      orDefault(item.Name, "Product"),
			Quantity:  item.Quantity,
			UnitPrice: item.Price.StringFixed(2),
			Total:     pricing.LineTotal(item).StringFixed(2),
		})
	}
	return c
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
