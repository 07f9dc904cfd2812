package orders

import (
	"errors"
	"time"
)

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Order is the order event carried on the queues.
type Order struct {
	OrderID     string         `json:"orderId"`
	CustomerID  string         `json:"customerId"`
	TotalAmount float64        `json:"totalAmount"`
	Currency    string         `json:"currency"`
	Items       []LineItem     `json:"items"`
	Notes       string         `json:"notes,omitempty"`
	CreatedAt   string         `json:"createdAtIso,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// LineItem is one product line of an order.
type LineItem struct {
	SKU       string         `json:"sku"                dynamodbav:"sku"`
	Title     string         `json:"title,omitempty"    dynamodbav:"title,omitempty"`
	Quantity  int            `json:"quantity"           dynamodbav:"quantity"`
	UnitPrice float64        `json:"unitPrice"          dynamodbav:"unitPrice"`
	Metadata  map[string]any `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
}

// Normalize fills in the defaults: no items becomes an empty list and a
// missing creation time becomes now.
func Normalize(o Order, now time.Time) Order {
	if o.Items == nil {
		o.Items = []LineItem{}
	}

	if o.CreatedAt == "" {
		o.CreatedAt = now.UTC().Format(timestampLayout)
	}

	return o
}

// Validate checks the fields every consumer relies on.
func (o Order) Validate() error {
	if o.OrderID == "" {
		return errors.New("order id is required")
	}

	if o.CustomerID == "" {
		return errors.New("customer id is required")
	}

	return nil
}
