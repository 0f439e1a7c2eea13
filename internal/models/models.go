package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is an entry of the fixed catalog category list.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Product is immutable catalog reference data.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	InStock     bool            `json:"inStock"`
	Features    []string        `json:"features,omitempty"`
	Rating      *float64        `json:"rating,omitempty"`
	OnSale      bool            `json:"onSale,omitempty"`
	IsNew       bool            `json:"isNew,omitempty"`
	Image       string          `json:"image"`
}

// CartLineItem copies the product's display fields at add time. It never
// follows later catalog price changes.
type CartLineItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image,omitempty"`
	Quantity int             `json:"quantity"`
}

// LineTotal is price × quantity, unrounded.
func (i CartLineItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the ordered list of line items, in add order. At most one item per
// product id, every quantity >= 1.
type Cart struct {
	Items []CartLineItem `json:"items"`
}

// IsEmpty reports whether the cart has no line items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Units is the sum of quantities across all line items.
func (c Cart) Units() int {
	units := 0
	for _, item := range c.Items {
		units += item.Quantity
	}
	return units
}

// Clone returns a deep copy so callers can freeze a cart.
func (c Cart) Clone() Cart {
	items := make([]CartLineItem, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}

// PricingSnapshot holds totals derived from a cart. It is never stored on its
// own; it is recomputed after every mutation and right before submission.
type PricingSnapshot struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	GrandTotal decimal.Decimal `json:"total"`
	Units      int             `json:"units"`
}

// ShippingAddress is where an order ships.
type ShippingAddress struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// Customer is the customer block of an order.
type Customer struct {
	FirstName string `json:"fname"`
	LastName  string `json:"lname"`
	Email     string `json:"email"`
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// PaymentDetails are forwarded to the simulated backend; nothing charges them.
type PaymentDetails struct {
	CardNumber   string `json:"cardNumber"`
	Expiration   string `json:"expiration"`
	SecurityCode string `json:"code"`
}

// OrderRequest is the payload handed to the order-submission service.
type OrderRequest struct {
	OrderDate       time.Time       `json:"orderDate"`
	Customer        Customer        `json:"customer"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Payment         PaymentDetails  `json:"payment"`
	Items           []CartLineItem  `json:"items"`
	Totals          PricingSnapshot `json:"totals"`
}

// Order submission statuses
const (
	OrderStatusSuccess = "success"
)

// OrderResponse is the success outcome of the order-submission service.
type OrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Order is the frozen, write-once record of a submission. The order id comes
// from the order-submission service.
type Order struct {
	ID              string          `json:"orderId" db:"order_id"`
	Date            time.Time       `json:"date" db:"order_date"`
	CustomerName    string          `json:"customerName" db:"customer_name"`
	Email           string          `json:"email" db:"email"`
	ShippingAddress ShippingAddress `json:"shippingAddress" db:"-"`
	Items           []CartLineItem  `json:"items" db:"-"`
	Totals          PricingSnapshot `json:"totals" db:"-"`
}

// LastOrderReceipt is the projection of the latest order read by the
// confirmation view. Each new order overwrites it.
type LastOrderReceipt struct {
	OrderID         string          `json:"orderId"`
	Total           decimal.Decimal `json:"total"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Shipping        decimal.Decimal `json:"shipping"`
	Date            time.Time       `json:"date"`
	CustomerName    string          `json:"customerName"`
	Email           string          `json:"email"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Items           []CartLineItem  `json:"items"`
}

// ReceiptFromOrder projects an order onto its receipt.
func ReceiptFromOrder(o Order) LastOrderReceipt {
	return LastOrderReceipt{
		OrderID:         o.ID,
		Total:           o.Totals.GrandTotal,
		Subtotal:        o.Totals.Subtotal,
		Tax:             o.Totals.Tax,
		Shipping:        o.Totals.Shipping,
		Date:            o.Date,
		CustomerName:    o.CustomerName,
		Email:           o.Email,
		ShippingAddress: o.ShippingAddress,
		Items:           o.Items,
	}
}

// Note is a shopping sticky note.
type Note struct {
	ID   int64     `json:"id"`
	Text string    `json:"text"`
	Date time.Time `json:"date"`
}
