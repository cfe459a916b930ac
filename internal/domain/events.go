package domain

import "time"

type OrderPlacedEvent struct {
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	UserEmail string      `json:"user_email,omitempty"`
	Items     []OrderItem `json:"items"`
	Total     string      `json:"total"`
	Timestamp time.Time   `json:"timestamp"`
}

type OrderCancelledEvent struct {
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	UserEmail string      `json:"user_email,omitempty"`
	Items     []OrderItem `json:"items"`
	Timestamp time.Time   `json:"timestamp"`
}
