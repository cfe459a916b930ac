package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sparecart/order-engine/internal/domain"
)

// NotificationHandler reacts to order lifecycle events. Stock is already
// settled by the time an event reaches the worker, so the handler only
// confirms fresh orders, sends customer emails and raises restock alerts
// for products that dropped below their reorder threshold.
type NotificationHandler struct {
	emailServiceURL   string
	ordersServiceURL  string
	catalogServiceURL string
	alertRecipient    string
	httpClient        *http.Client
	logger            *slog.Logger
}

func NewNotificationHandler(emailServiceURL, ordersServiceURL, catalogServiceURL, alertRecipient string,
	client *http.Client, logger *slog.Logger) *NotificationHandler {

	return &NotificationHandler{
		emailServiceURL:   emailServiceURL,
		ordersServiceURL:  ordersServiceURL,
		catalogServiceURL: catalogServiceURL,
		alertRecipient:    alertRecipient,
		httpClient:        client,
		logger:            logger,
	}
}

// HandleOrderPlaced confirms the order, emails the customer and checks for
// products left below their reorder threshold.
func (h *NotificationHandler) HandleOrderPlaced(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	h.logger.Info("processing order placed event", "order_id", event.OrderID, "user_id", event.UserID)

	if err := h.updateOrderStatus(ctx, event.OrderID, domain.OrderStatusConfirmed); err != nil {
		h.logger.Error("failed to confirm order", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("confirm order: %w", err)
	}

	if err := h.sendConfirmationEmail(ctx, event); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	// A missed alert is recoverable on the next placement, so alert
	// failures never fail the event.
	h.alertLowStock(ctx)

	h.logger.Info("order placed event processed", "order_id", event.OrderID)
	return nil
}

// HandleOrderCancelled notifies the customer. The cancelling service has
// already restocked and flagged refunds.
func (h *NotificationHandler) HandleOrderCancelled(ctx context.Context, payload []byte) error {
	var event domain.OrderCancelledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order cancelled event: %w", err)
	}

	h.logger.Info("processing order cancelled event", "order_id", event.OrderID, "user_id", event.UserID)

	if err := h.sendCancellationEmail(ctx, event); err != nil {
		h.logger.Error("failed to send cancellation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send cancellation email: %w", err)
	}

	h.logger.Info("order cancelled event processed", "order_id", event.OrderID)
	return nil
}

func (h *NotificationHandler) alertLowStock(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.catalogServiceURL+"/catalog/low-stock", nil)
	if err != nil {
		h.logger.Error("failed to create low stock request", "error", err)
		return
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error("failed to query low stock products", "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		h.logger.Error("catalog service returned unexpected status", "status", resp.StatusCode)
		return
	}

	var products []domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		h.logger.Error("failed to decode low stock products", "error", err)
		return
	}
	if len(products) == 0 {
		return
	}

	body := "The following products are at or below their reorder threshold:\n"
	for _, p := range products {
		body += fmt.Sprintf("- %s (%s): %d left, reorder at %d\n", p.Name, p.ID, p.Stock, p.ReorderThreshold)
	}

	if err := h.sendEmail(ctx, map[string]string{
		"to":      h.alertRecipient,
		"subject": fmt.Sprintf("Restock alert: %d products low", len(products)),
		"body":    body,
	}); err != nil {
		h.logger.Error("failed to send restock alert", "error", err)
		return
	}

	h.logger.Info("restock alert sent", "products", len(products))
}

func (h *NotificationHandler) sendConfirmationEmail(ctx context.Context, event domain.OrderPlacedEvent) error {
	if event.UserEmail == "" {
		h.logger.Warn("no email on order, skipping confirmation", "order_id", event.OrderID)
		return nil
	}

	body := map[string]string{
		"to":      event.UserEmail,
		"subject": "Order Confirmation: " + event.OrderID,
		"body": fmt.Sprintf("Your order %s has been confirmed with %d items for a total of %s.",
			event.OrderID, len(event.Items), event.Total),
	}

	return h.sendEmail(ctx, body)
}

func (h *NotificationHandler) sendCancellationEmail(ctx context.Context, event domain.OrderCancelledEvent) error {
	if event.UserEmail == "" {
		h.logger.Warn("no email on order, skipping cancellation notice", "order_id", event.OrderID)
		return nil
	}

	body := map[string]string{
		"to":      event.UserEmail,
		"subject": "Order Cancelled: " + event.OrderID,
		"body":    fmt.Sprintf("Your order %s has been cancelled. Any payment will be refunded.", event.OrderID),
	}

	return h.sendEmail(ctx, body)
}

func (h *NotificationHandler) sendEmail(ctx context.Context, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}

func (h *NotificationHandler) updateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	data, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/orders/%s/status", h.ordersServiceURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// 409 means the order moved on (or was cancelled) before the event
	// arrived; confirming it again would be wrong, not retryable.
	if resp.StatusCode == http.StatusConflict {
		h.logger.Warn("order already past confirmation", "order_id", orderID)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}

	return nil
}
