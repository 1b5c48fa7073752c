package bkash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/config"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
)

const (
	pathTokenGrant = "/tokenized/checkout/token/grant"
	pathCreate     = "/tokenized/checkout/create"
	pathExecute    = "/tokenized/checkout/execute"
	pathQuery      = "/tokenized/checkout/payment/status"
	pathRefund     = "/tokenized/checkout/payment/refund"

	// Tokens are refreshed this long before their reported expiry.
	tokenRefreshSlack = 60 * time.Second
)

// Client is a tokenized-checkout REST client. It holds no business state;
// the reconciliation engine owns intent correlation and dedup.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	appKey      string
	appSecret   string
	username    string
	password    string
	callbackURL string
	logger      *logger.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient builds the gateway client. Missing credentials are not an error:
// the client reports unconfigured via IsConfigured and every call fails with
// ErrNotConfigured, letting order creation degrade gracefully.
func NewClient(cfg config.BkashConfig, logg *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		appKey:      strings.TrimSpace(cfg.AppKey),
		appSecret:   strings.TrimSpace(cfg.AppSecret),
		username:    strings.TrimSpace(cfg.Username),
		password:    strings.TrimSpace(cfg.Password),
		callbackURL: strings.TrimSpace(cfg.CallbackURL),
		logger:      logg,
	}
}

// IsConfigured reports whether the credential set is complete.
func (c *Client) IsConfigured() bool {
	if c == nil {
		return false
	}
	return c.appKey != "" && c.appSecret != "" && c.username != "" && c.password != ""
}

// CreatePayment opens a payment intent for the given invoice and returns the
// redirect URL the customer completes authorization at.
func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	payerReference := req.PayerReference
	if payerReference == "" {
		payerReference = "01"
	}
	body := createPaymentRequest{
		Mode:                  "0011",
		PayerReference:        payerReference,
		CallbackURL:           c.callbackURL,
		Amount:                FormatTaka(req.AmountPaisa),
		Currency:              "BDT",
		Intent:                "sale",
		MerchantInvoiceNumber: req.InvoiceNumber,
	}

	raw, err := c.doAuthorized(ctx, "create", pathCreate, body)
	if err != nil {
		return nil, err
	}

	var result CreateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &UnavailableError{Op: "create", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if result.PaymentID == "" || result.BkashURL == "" {
		return nil, &UnavailableError{Op: "create", Err: fmt.Errorf("response missing paymentID/bkashURL")}
	}
	result.Raw = raw
	return &result, nil
}

// ExecutePayment finalizes an authorized intent. Only call after the customer
// returned from the gateway with a success status.
func (c *Client) ExecutePayment(ctx context.Context, paymentID string) (*ExecuteResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if paymentID == "" {
		return nil, &RejectedError{Op: "execute", StatusCode: "9999", StatusMessage: "payment id required"}
	}

	raw, err := c.doAuthorized(ctx, "execute", pathExecute, map[string]string{"paymentID": paymentID})
	if err != nil {
		return nil, err
	}

	var result ExecuteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &UnavailableError{Op: "execute", Err: fmt.Errorf("decoding response: %w", err)}
	}
	result.Raw = raw
	return &result, nil
}

// QueryPayment fetches the gateway-side view of an intent. The response is an
// untrusted mirror; the order document remains the source of truth.
func (c *Client) QueryPayment(ctx context.Context, paymentID string) (*QueryResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if paymentID == "" {
		return nil, &RejectedError{Op: "query", StatusCode: "9999", StatusMessage: "payment id required"}
	}

	raw, err := c.doAuthorized(ctx, "query", pathQuery, map[string]string{"paymentID": paymentID})
	if err != nil {
		return nil, err
	}

	var result QueryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &UnavailableError{Op: "query", Err: fmt.Errorf("decoding response: %w", err)}
	}
	result.Raw = raw
	return &result, nil
}

// RefundPayment refunds a completed transaction.
func (c *Client) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if req.PaymentID == "" || req.TrxID == "" {
		return nil, &RejectedError{Op: "refund", StatusCode: "9999", StatusMessage: "payment id and trx id required"}
	}
	sku := req.SKU
	if sku == "" {
		sku = "order"
	}
	body := map[string]string{
		"paymentID": req.PaymentID,
		"trxID":     req.TrxID,
		"amount":    FormatTaka(req.AmountPaisa),
		"reason":    req.Reason,
		"sku":       sku,
	}

	raw, err := c.doAuthorized(ctx, "refund", pathRefund, body)
	if err != nil {
		return nil, err
	}

	var result RefundResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &UnavailableError{Op: "refund", Err: fmt.Errorf("decoding response: %w", err)}
	}
	result.Raw = raw
	return &result, nil
}

// doAuthorized performs an authenticated POST and enforces the gateway's
// statusCode convention on the decoded body.
func (c *Client) doAuthorized(ctx context.Context, op, path string, body any) (json.RawMessage, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	raw, status, err := c.post(ctx, path, body, map[string]string{
		"Authorization": token,
		"X-APP-Key":     c.appKey,
	})
	if err != nil {
		return nil, &UnavailableError{Op: op, Err: err}
	}
	if status >= http.StatusInternalServerError {
		return nil, &UnavailableError{Op: op, Err: fmt.Errorf("gateway returned %d", status)}
	}

	var envelope gatewayEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &UnavailableError{Op: op, Err: fmt.Errorf("decoding envelope: %w", err)}
	}
	if envelope.StatusCode != "" && envelope.StatusCode != statusCodeSuccess {
		return nil, &RejectedError{
			Op:            op,
			StatusCode:    envelope.StatusCode,
			StatusMessage: envelope.StatusMessage,
			Raw:           raw,
		}
	}
	if status >= http.StatusBadRequest {
		return nil, &RejectedError{Op: op, StatusCode: fmt.Sprintf("http_%d", status), Raw: raw}
	}
	return raw, nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	raw, status, err := c.post(ctx, pathTokenGrant, tokenGrantRequest{
		AppKey:    c.appKey,
		AppSecret: c.appSecret,
	}, map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return "", &UnavailableError{Op: "token_grant", Err: err}
	}
	if status >= http.StatusInternalServerError {
		return "", &UnavailableError{Op: "token_grant", Err: fmt.Errorf("gateway returned %d", status)}
	}

	var grant tokenGrantResponse
	if err := json.Unmarshal(raw, &grant); err != nil {
		return "", &UnavailableError{Op: "token_grant", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if grant.IDToken == "" {
		return "", &RejectedError{
			Op:            "token_grant",
			StatusCode:    grant.StatusCode,
			StatusMessage: grant.StatusMessage,
			Raw:           raw,
		}
	}

	ttl := time.Duration(grant.ExpiresIn) * time.Second
	if ttl <= tokenRefreshSlack {
		ttl = time.Hour
	}
	c.token = grant.IDToken
	c.tokenExpiry = time.Now().Add(ttl - tokenRefreshSlack)

	if c.logger != nil {
		c.logger.Info(ctx, "bkash token refreshed")
	}
	return c.token, nil
}

func (c *Client) post(ctx context.Context, path string, body any, headers map[string]string) (json.RawMessage, int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return raw, resp.StatusCode, nil
}
