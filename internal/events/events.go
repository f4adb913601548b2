// Package events defines the records carried on the orders and
// inventory-events streams.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation rejects an order at the submission boundary.
	ErrValidation = errors.New("validation error")
	// ErrMalformedRecord marks a consumed record that cannot be decoded
	// into its contract. Redelivery cannot fix it.
	ErrMalformedRecord = errors.New("malformed record")
)

// Status is the outcome of a reservation decision.
type Status string

const (
	StatusReserved Status = "RESERVED"
	StatusFailed   Status = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusReserved || s == StatusFailed
}

// Order is the record published to the orders stream.
type Order struct {
	OrderID     string    `json:"orderId"`
	Items       []string  `json:"items"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// NewOrder builds an order, enforcing the non-empty items invariant.
func NewOrder(orderID string, items []string, submittedAt time.Time) (Order, error) {
	if len(items) == 0 {
		return Order{}, fmt.Errorf("%w: items must not be empty", ErrValidation)
	}
	for i, item := range items {
		if strings.TrimSpace(item) == "" {
			return Order{}, fmt.Errorf("%w: item %d is blank", ErrValidation, i)
		}
	}
	return Order{
		OrderID:     orderID,
		Items:       append([]string(nil), items...),
		SubmittedAt: submittedAt.UTC(),
	}, nil
}

// ReservationResult is the record published to the inventory-events stream.
type ReservationResult struct {
	OrderID   string    `json:"orderId"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	ItemCount int       `json:"itemCount"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Notification is what a notification sink receives for one order.
type Notification struct {
	OrderID   string    `json:"orderId"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	ItemCount int       `json:"itemCount"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Notification projects the result onto the sink contract.
func (r ReservationResult) Notification() Notification {
	return Notification(r)
}

// DecodeOrder parses an orders record.
func DecodeOrder(data []byte) (Order, error) {
	var wire struct {
		OrderID     string     `json:"orderId"`
		Items       []string   `json:"items"`
		SubmittedAt *time.Time `json:"submittedAt"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if wire.OrderID == "" {
		return Order{}, fmt.Errorf("%w: missing orderId", ErrMalformedRecord)
	}
	if len(wire.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order %s has no items", ErrMalformedRecord, wire.OrderID)
	}
	for i, item := range wire.Items {
		if strings.TrimSpace(item) == "" {
			return Order{}, fmt.Errorf("%w: order %s item %d is blank", ErrMalformedRecord, wire.OrderID, i)
		}
	}

	order := Order{OrderID: wire.OrderID, Items: wire.Items}
	if wire.SubmittedAt != nil {
		order.SubmittedAt = *wire.SubmittedAt
	}
	return order, nil
}

// DecodeReservationResult parses an inventory-events record.
func DecodeReservationResult(data []byte) (ReservationResult, error) {
	var wire struct {
		OrderID   string     `json:"orderId"`
		Status    Status     `json:"status"`
		Message   *string    `json:"message"`
		ItemCount *int       `json:"itemCount"`
		DecidedAt *time.Time `json:"decidedAt"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return ReservationResult{}, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if wire.OrderID == "" {
		return ReservationResult{}, fmt.Errorf("%w: missing orderId", ErrMalformedRecord)
	}
	if !wire.Status.Valid() {
		return ReservationResult{}, fmt.Errorf("%w: order %s has unknown status %q", ErrMalformedRecord, wire.OrderID, wire.Status)
	}
	if wire.ItemCount == nil || *wire.ItemCount < 0 {
		return ReservationResult{}, fmt.Errorf("%w: order %s has missing or negative itemCount", ErrMalformedRecord, wire.OrderID)
	}
	if wire.Message == nil {
		return ReservationResult{}, fmt.Errorf("%w: order %s has no message", ErrMalformedRecord, wire.OrderID)
	}
	if wire.DecidedAt == nil {
		return ReservationResult{}, fmt.Errorf("%w: order %s has no decidedAt", ErrMalformedRecord, wire.OrderID)
	}

	return ReservationResult{
		OrderID:   wire.OrderID,
		Status:    wire.Status,
		Message:   *wire.Message,
		ItemCount: *wire.ItemCount,
		DecidedAt: *wire.DecidedAt,
	}, nil
}
