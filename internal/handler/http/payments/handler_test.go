package payments_http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"merchantpay/internal/domain"
)

const orderKey = "wc_order_k"

type fakeService struct {
	checkoutErr     error
	notificationErr error

	checkoutCalls int
	gotBody       []byte
	gotSignature  string
}

func (s *fakeService) StartCheckout(_ context.Context, orderID int64, key string) (*domain.CheckoutResult, error) {
	s.checkoutCalls++
	if key != orderKey {
		return nil, fmt.Errorf("%w: order key mismatch for order %d", domain.ErrCorrelationMismatch, orderID)
	}
	if s.checkoutErr != nil {
		return nil, s.checkoutErr
	}
	return &domain.CheckoutResult{
		OrderID:       orderID,
		TransactionID: "tx-1",
		RedirectURL:   fmt.Sprintf("https://pay.example/%d", orderID),
	}, nil
}

func (s *fakeService) HandleNotification(_ context.Context, body []byte, signature string) error {
	s.gotBody = body
	s.gotSignature = signature
	return s.notificationErr
}

func newRouter(svc *fakeService) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, svc, RouteOptions{AllowedOrigins: []string{"https://shop.example"}}, zap.NewNop())
	return r
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&fakeService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{name: "success", path: "/checkout/42?key=wc_order_k", wantStatus: http.StatusOK},
		{name: "bad id", path: "/checkout/abc?key=wc_order_k", wantStatus: http.StatusBadRequest},
		{name: "unknown order", path: "/checkout/42?key=wc_order_k", err: domain.ErrOrderNotFound, wantStatus: http.StatusNotFound},
		{name: "not pending", path: "/checkout/42?key=wc_order_k", err: domain.ErrOrderNotPending, wantStatus: http.StatusConflict},
		{name: "unsupported currency", path: "/checkout/42?key=wc_order_k", err: domain.ErrUnsupportedCurrency, wantStatus: http.StatusUnprocessableEntity},
		{name: "transport", path: "/checkout/42?key=wc_order_k", err: fmt.Errorf("create: %w", domain.ErrTransport), wantStatus: http.StatusBadGateway},
		{name: "rejected", path: "/checkout/42?key=wc_order_k", err: fmt.Errorf("create: %w: Invalid currency", domain.ErrRemoteRejected), wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(&fakeService{checkoutErr: tt.err}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, nil))

			require.Equal(t, tt.wantStatus, rec.Code)

			var resp CheckoutResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			switch {
			case tt.wantStatus == http.StatusOK:
				assert.Equal(t, "success", resp.Result)
				assert.Equal(t, "https://pay.example/42", resp.Redirect)
			case tt.err != nil:
				assert.Equal(t, "failure", resp.Result)
				assert.Equal(t, checkoutFailedMessage, resp.Message)
				assert.NotContains(t, rec.Body.String(), "Invalid currency")
			}
		})
	}
}

func TestCheckoutHandler_OrderKeyRequired(t *testing.T) {
	paths := map[string]string{
		"missing key": "/checkout/42",
		"empty key":   "/checkout/42?key=",
		"wrong key":   "/checkout/42?key=wc_order_guess",
	}

	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{}
			rec := httptest.NewRecorder()
			newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))

			require.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, 1, svc.checkoutCalls)

			var resp CheckoutResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "failure", resp.Result)
			assert.Equal(t, checkoutFailedMessage, resp.Message)
			assert.Empty(t, resp.Redirect)
			assert.NotContains(t, rec.Body.String(), "mismatch")
		})
	}
}

func TestCheckoutPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/checkout/42", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	newRouter(&fakeService{}).ServeHTTP(rec, req)

	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotificationHandler(t *testing.T) {
	body := "status=paid&payment_id=pay-1&data=%5B7%2C%22k%22%5D"

	t.Run("ack", func(t *testing.T) {
		svc := &fakeService{}
		req := httptest.NewRequest(http.MethodPost, "/ipn", strings.NewReader(body))
		req.Header.Set("Rest-Sign", "c2lnbmF0dXJl")
		rec := httptest.NewRecorder()

		newRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[OK]", rec.Body.String())
		assert.Equal(t, body, string(svc.gotBody))
		assert.Equal(t, "c2lnbmF0dXJl", svc.gotSignature)
	})

	rejections := []error{
		domain.ErrAuthenticationFailed,
		fmt.Errorf("data: %w", domain.ErrMalformedPayload),
		fmt.Errorf("%w: order key mismatch", domain.ErrCorrelationMismatch),
	}
	for _, rejection := range rejections {
		t.Run(rejection.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(&fakeService{notificationErr: rejection}).
				ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ipn", strings.NewReader(body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "IPN validation failed")
			assert.NotContains(t, rec.Body.String(), "[OK]")
		})
	}

	t.Run("storage failure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(&fakeService{notificationErr: fmt.Errorf("commit: connection reset")}).
			ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ipn", strings.NewReader(body)))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		svc := &fakeService{}
		rec := httptest.NewRecorder()
		large := strings.Repeat("a", maxNotificationBytes+1)
		newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ipn", strings.NewReader(large)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Nil(t, svc.gotBody)
	})
}
