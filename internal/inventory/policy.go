package inventory

import (
	"fmt"

	"mensageria/internal/events"
)

const (
	MessageReserved     = "Stock reserved successfully"
	MessageInsufficient = "Insufficient stock"
)

// DefaultMaxItems is the largest order the default policy reserves.
const DefaultMaxItems = 5

// Policy decides whether stock can be reserved for an order.
type Policy interface {
	Evaluate(order events.Order) (events.Status, string)
}

// MaxItemsPolicy reserves any order with at most Max items.
type MaxItemsPolicy struct {
	Max int
}

func (p MaxItemsPolicy) Evaluate(order events.Order) (events.Status, string) {
	if len(order.Items) <= p.Max {
		return events.StatusReserved, MessageReserved
	}
	return events.StatusFailed, MessageInsufficient
}

func (p MaxItemsPolicy) String() string {
	return fmt.Sprintf("max-items(%d)", p.Max)
}
