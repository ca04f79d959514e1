package merchant

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"merchantpay/internal/domain"
)

const (
	createOrderPath = "/api/1/generic/merchant/order/create"

	HeaderRestKey  = "Rest-Key"
	HeaderRestSign = "Rest-Sign"

	DefaultTimeout = 45 * time.Second

	maxResponseBytes = 1 << 20
)

// CreateOrderRequest carries everything the processor needs to open a
// payment for one shop order.
type CreateOrderRequest struct {
	Currency      string
	Amount        float64
	CallbackURL   string
	Description   string
	Data          string
	Email         bool
	AutoSell      bool
	InstantOnly   bool
	ReturnSuccess string
	ReturnFailure string
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (r CreateOrderRequest) values(nonce string) url.Values {
	v := url.Values{}
	v.Set("nonce", nonce)
	v.Set("currency", r.Currency)
	v.Set("amount", strconv.FormatFloat(r.Amount, 'f', -1, 64))
	v.Set("ipn", r.CallbackURL)
	v.Set("description", r.Description)
	v.Set("data", r.Data)
	v.Set("email", flag(r.Email))
	v.Set("autosell", flag(r.AutoSell))
	v.Set("multipay", "0")
	v.Set("instant_only", flag(r.InstantOnly))
	v.Set("return_success", r.ReturnSuccess)
	v.Set("return_failure", r.ReturnFailure)
	return v
}

type CreateOrderResult struct {
	TransactionID string
	PaymentURL    string
}

type createOrderResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
	Return struct {
		Transaction string `json:"transaction"`
		PaymentURL  string `json:"payment_url"`
	} `json:"return"`
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the merchant order API. Every request is signed over the
// exact body bytes that are transmitted.
type Client struct {
	baseURL    string
	apiKey     string
	signer     *Signer
	nonces     *NonceSource
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg ClientConfig, signer *Signer, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		signer:  signer,
		nonces:  NewNonceSource(),
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	params := req.values(c.nonces.Next())
	body := []byte(params.Encode())
	signature := c.signer.Sign(body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createOrderPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build merchant api request: %w", err)
	}
	httpReq.Header.Set(HeaderRestKey, c.apiKey)
	httpReq.Header.Set(HeaderRestSign, signature)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("Merchant API request",
		zap.String("url", httpReq.URL.String()),
		zap.String("rest_key", c.apiKey),
		zap.String("rest_sign", signature),
		zap.Any("params", params),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("Error connecting to merchant API", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Debug("Error reading merchant API response", zap.Error(err))
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrTransport, err)
	}

	c.logger.Debug("Merchant API response",
		zap.Int("http_status", resp.StatusCode),
		zap.ByteString("body", raw),
	)

	var parsed createOrderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: http %d, undecodable body: %v", domain.ErrRemoteRejected, resp.StatusCode, err)
	}
	if parsed.Result != "success" {
		return nil, fmt.Errorf("%w: result %q: %s", domain.ErrRemoteRejected, parsed.Result, parsed.Error)
	}
	if parsed.Return.Transaction == "" || parsed.Return.PaymentURL == "" {
		return nil, fmt.Errorf("%w: success without transaction or payment url", domain.ErrRemoteRejected)
	}

	return &CreateOrderResult{
		TransactionID: parsed.Return.Transaction,
		PaymentURL:    parsed.Return.PaymentURL,
	}, nil
}
