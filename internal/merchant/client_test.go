package merchant

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"merchantpay/internal/domain"
)

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	s, err := NewSigner(testSecret)
	require.NoError(t, err)
	return NewClient(ClientConfig{BaseURL: baseURL, APIKey: "public-key", Timeout: timeout}, s, zap.NewNop())
}

func testRequest() CreateOrderRequest {
	return CreateOrderRequest{
		Currency:      "BTC",
		Amount:        0.25,
		CallbackURL:   "https://shop.example/ipn",
		Description:   "Thank you for shopping with us.",
		Data:          `[42,"wc_order_abc"]`,
		Email:         true,
		InstantOnly:   true,
		ReturnSuccess: "https://shop.example/thanks?order_id=42",
		ReturnFailure: "https://shop.example/cancel?order_id=42",
	}
}

func TestClient_CreateOrder_SignsTransmittedBody(t *testing.T) {
	var (
		gotBody   []byte
		gotHeader http.Header
		gotPath   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"success","return":{"transaction":"tx-1","payment_url":"https://pay.example/tx-1"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", time.Second)
	res, err := c.CreateOrder(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "tx-1", res.TransactionID)
	assert.Equal(t, "https://pay.example/tx-1", res.PaymentURL)
	assert.Equal(t, createOrderPath, gotPath)
	assert.Equal(t, "public-key", gotHeader.Get(HeaderRestKey))
	assert.Equal(t, "application/x-www-form-urlencoded", gotHeader.Get("Content-Type"))

	verifier, err := NewSigner(testSecret)
	require.NoError(t, err)
	assert.NoError(t, verifier.Verify(gotBody, gotHeader.Get(HeaderRestSign)))

	form, err := url.ParseQuery(string(gotBody))
	require.NoError(t, err)
	assert.Equal(t, "BTC", form.Get("currency"))
	assert.Equal(t, "0.25", form.Get("amount"))
	assert.Equal(t, `[42,"wc_order_abc"]`, form.Get("data"))
	assert.Equal(t, "1", form.Get("email"))
	assert.Equal(t, "0", form.Get("autosell"))
	assert.Equal(t, "0", form.Get("multipay"))
	assert.Equal(t, "1", form.Get("instant_only"))
	assert.Equal(t, "https://shop.example/ipn", form.Get("ipn"))
	assert.NotEmpty(t, form.Get("nonce"))
}

func TestClient_CreateOrder_NonceIncreasesAcrossCalls(t *testing.T) {
	var nonces []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		nonces = append(nonces, r.PostForm.Get("nonce"))
		w.Write([]byte(`{"result":"success","return":{"transaction":"tx","payment_url":"https://pay.example/tx"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	for i := 0; i < 3; i++ {
		_, err := c.CreateOrder(context.Background(), testRequest())
		require.NoError(t, err)
	}

	require.Len(t, nonces, 3)
	assert.Less(t, parseNonce(t, nonces[0]), parseNonce(t, nonces[1]))
	assert.Less(t, parseNonce(t, nonces[1]), parseNonce(t, nonces[2]))
}

func TestClient_CreateOrder_RemoteRejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "error result", status: http.StatusOK, body: `{"result":"error","error":"Invalid currency"}`},
		{name: "not json", status: http.StatusBadGateway, body: `<html>down</html>`},
		{name: "success without payment url", status: http.StatusOK, body: `{"result":"success","return":{"transaction":"tx"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, time.Second).CreateOrder(context.Background(), testRequest())
			assert.ErrorIs(t, err, domain.ErrRemoteRejected)
		})
	}
}

func TestClient_CreateOrder_DoesNotFollowRedirects(t *testing.T) {
	var followed atomic.Bool
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		followed.Store(true)
		w.Write([]byte(`{"result":"success","return":{"transaction":"tx","payment_url":"https://pay.example/tx"}}`))
	}))
	defer target.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, time.Second).CreateOrder(context.Background(), testRequest())
	assert.ErrorIs(t, err, domain.ErrRemoteRejected)
	assert.False(t, followed.Load())
}

func TestClient_CreateOrder_Transport(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		_, err := newTestClient(t, srv.URL, 50*time.Millisecond).CreateOrder(context.Background(), testRequest())
		assert.ErrorIs(t, err, domain.ErrTransport)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		_, err := newTestClient(t, addr, time.Second).CreateOrder(context.Background(), testRequest())
		assert.ErrorIs(t, err, domain.ErrTransport)
	})
}
