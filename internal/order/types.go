package order

import (
	"context"
	"fmt"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Request is a single order intent built by one decision cycle.
type Request struct {
	ID             string    `json:"id"` // client order id
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	ReferencePrice float64   `json:"reference_price"`
	Qty            float64   `json:"qty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Result is the venue confirmation of a submitted order.
type Result struct {
	ConfirmationID string  `json:"confirmation_id"`
	Status         string  `json:"status"`
	FillPrice      float64 `json:"fill_price,omitempty"`
}

// Executor submits an order and blocks until the venue confirms or fails it.
type Executor interface {
	Submit(ctx context.Context, req Request) (Result, error)
}

// ExecutionError is returned when submission or confirmation fails.
type ExecutionError struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
	Err     error  `json:"-"`
}

func (e *ExecutionError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("order %s: %s", e.OrderID, e.Reason)
	}
	return "order: " + e.Reason
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func executionFailed(orderID string, err error) *ExecutionError {
	return &ExecutionError{OrderID: orderID, Reason: err.Error(), Err: err}
}
