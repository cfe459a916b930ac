package orders

import "github.com/sparecart/order-engine/internal/domain"

// The order lifecycle moves strictly forward one step at a time:
//
//	PENDING -> CONFIRMED -> PROCESSING -> SHIPPED -> DELIVERED
//
// CANCELLED is reachable from PENDING and CONFIRMED only. DELIVERED and
// CANCELLED are terminal. Skipping a step is rejected.
var transitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  nil,
	domain.OrderStatusCancelled:  nil,
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks the transition table and the extra invariants a
// target status carries. The order is inspected, never mutated.
func ValidateTransition(order *domain.Order, to domain.OrderStatus) error {
	if !to.IsValid() {
		return &domain.InvalidTransitionError{From: order.Status, To: to, Reason: "unknown status"}
	}
	if !CanTransition(order.Status, to) {
		return &domain.InvalidTransitionError{From: order.Status, To: to}
	}
	if to == domain.OrderStatusShipped && order.TrackingNumber == "" {
		return &domain.InvalidTransitionError{
			From:   order.Status,
			To:     to,
			Reason: "tracking number required",
		}
	}
	return nil
}

// Cancellable reports whether an order in this status may still be cancelled
// with a compensating restock.
func Cancellable(status domain.OrderStatus) bool {
	return CanTransition(status, domain.OrderStatusCancelled)
}
