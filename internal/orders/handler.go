package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sparecart/order-engine/internal/domain"
)

// Handler is the thin HTTP edge over the order service. Authentication is an
// upstream concern: the user identity in requests is taken as already
// verified, and the admin endpoints rely on upstream enforcement.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register attaches all order routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.HandlePlace)
	mux.HandleFunc("GET /orders", h.HandleList)
	mux.HandleFunc("GET /orders/recent", h.HandleListRecent)
	mux.HandleFunc("GET /orders/stats", h.HandleStats)
	mux.HandleFunc("GET /orders/{id}", h.HandleGet)
	mux.HandleFunc("POST /orders/{id}/cancel", h.HandleCancel)
	mux.HandleFunc("PATCH /orders/{id}/status", h.HandleUpdateStatus)
	mux.HandleFunc("PATCH /orders/{id}/payment", h.HandleUpdatePaymentStatus)
	mux.HandleFunc("PATCH /orders/{id}/tracking", h.HandleUpdateTracking)
}

type placeOrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	UserID          string                  `json:"user_id"`
	UserEmail       string                  `json:"user_email"`
	Items           []placeOrderItem        `json:"items"`
	ShippingAddress *domain.ShippingAddress `json:"shipping_address,omitempty"`
}

func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	items := make([]ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.service.PlaceOrder(r.Context(), PlaceOrderRequest{
		UserID:          req.UserID,
		UserEmail:       req.UserEmail,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.writeDomainError(w, err, "place order")
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "get order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type cancelRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	order, err := h.service.CancelOrder(r.Context(), id, req.UserID)
	if err != nil {
		h.writeDomainError(w, err, "cancel order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeDomainError(w, err, "update status")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updatePaymentRequest struct {
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
}

func (h *Handler) HandleUpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.PaymentStatus.IsValid() {
		h.writeError(w, http.StatusBadRequest, "unknown payment status")
		return
	}

	order, err := h.service.UpdatePaymentStatus(r.Context(), id, req.PaymentStatus)
	if err != nil {
		h.writeDomainError(w, err, "update payment status")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateTrackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) HandleUpdateTracking(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TrackingNumber == "" {
		h.writeError(w, http.StatusBadRequest, "missing tracking number")
		return
	}

	order, err := h.service.UpdateTracking(r.Context(), id, req.TrackingNumber)
	if err != nil {
		h.writeDomainError(w, err, "update tracking")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleList serves list-by-user and list-by-status queries.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	status := r.URL.Query().Get("status")

	switch {
	case userID != "":
		result, err := h.service.ListByUser(r.Context(), userID)
		if err != nil {
			h.writeDomainError(w, err, "list orders by user")
			return
		}
		h.writeJSON(w, http.StatusOK, result)

	case status != "":
		result, err := h.service.ListByStatus(r.Context(), domain.OrderStatus(status))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "unknown order status")
			return
		}
		h.writeJSON(w, http.StatusOK, result)

	default:
		h.writeError(w, http.StatusBadRequest, "user_id or status query parameter required")
	}
}

func (h *Handler) HandleListRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	result, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err, "list recent orders")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "get order stats")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, op string) {
	var notFound *domain.NotFoundError
	var insufficient *domain.InsufficientStockError
	var invalidQty *domain.InvalidQuantityError
	var invalidTransition *domain.InvalidTransitionError

	switch {
	case errors.Is(err, domain.ErrEmptyOrder):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidQty):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &insufficient):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalidTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed", "error", err, "op", op)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
