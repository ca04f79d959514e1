package payments_http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"merchantpay/internal/app/payments"
	"merchantpay/internal/domain"
	"merchantpay/internal/merchant"
)

const (
	maxNotificationBytes = 64 << 10

	checkoutFailedMessage     = "Failed to initiate payment. Please contact us if you need assistance."
	notificationAck           = "[OK]"
	notificationRejectMessage = "IPN validation failed"
)

type PaymentHandler struct {
	service payments.CheckoutService
	logger  *zap.Logger
}

func NewPaymentHandler(s payments.CheckoutService, l *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, logger: l}
}

type CheckoutResponse struct {
	Result   string `json:"result"`
	Redirect string `json:"redirect,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (h *PaymentHandler) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	orderIDStr := chi.URLParam(r, "orderID")
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil || orderID <= 0 {
		h.logger.Warn("Invalid order id in checkout request", zap.String("order_id_str", orderIDStr))
		h.writeJSON(w, http.StatusBadRequest, CheckoutResponse{Result: "failure", Message: "Invalid order id"})
		return
	}

	res, err := h.service.StartCheckout(r.Context(), orderID, r.URL.Query().Get("key"))
	if err != nil {
		status := checkoutStatusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Checkout failed", zap.Int64("order_id", orderID), zap.Error(err))
		} else {
			h.logger.Warn("Checkout refused", zap.Int64("order_id", orderID), zap.Int("status", status), zap.Error(err))
		}
		h.writeJSON(w, status, CheckoutResponse{Result: "failure", Message: checkoutFailedMessage})
		return
	}

	h.writeJSON(w, http.StatusOK, CheckoutResponse{Result: "success", Redirect: res.RedirectURL})
}

// NotificationHandler is the IPN callback. The body is read untouched because
// the signature covers its exact bytes.
func (h *PaymentHandler) NotificationHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Payment notification body too large", zap.Int64("limit", tooLarge.Limit))
			http.Error(w, notificationRejectMessage, http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Error("Failed to read payment notification body", zap.Error(err))
		http.Error(w, notificationRejectMessage, http.StatusBadRequest)
		return
	}

	err = h.service.HandleNotification(r.Context(), body, r.Header.Get(merchant.HeaderRestSign))
	if err != nil {
		if status := notificationStatusFor(err); status != http.StatusInternalServerError {
			http.Error(w, notificationRejectMessage, status)
			return
		}
		h.logger.Error("Failed to apply payment notification", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, notificationAck); err != nil {
		h.logger.Error("Failed to write notification ack", zap.Error(err))
	}
}

func checkoutStatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrCorrelationMismatch):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOrderNotPending):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnsupportedCurrency):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrRemoteRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func notificationStatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthenticationFailed),
		errors.Is(err, domain.ErrMalformedPayload),
		errors.Is(err, domain.ErrCorrelationMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *PaymentHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}
