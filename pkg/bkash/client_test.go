package bkash

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rakibulhasan-dev/bazarly-backend/pkg/config"
)

func testConfig(baseURL string) config.BkashConfig {
	return config.BkashConfig{
		BaseURL:     baseURL,
		AppKey:      "app-key",
		AppSecret:   "app-secret",
		Username:    "merchant",
		Password:    "secret",
		CallbackURL: "https://shop.example.com/api/v1/payments/bkash/callback",
		Timeout:     5 * time.Second,
	}
}

func grantHandler(grants *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(grants, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"id_token":   "token-1",
			"token_type": "Bearer",
			"expires_in": 3600,
			"statusCode": "0000",
		})
	}
}

func TestCreatePaymentSendsTakaAmount(t *testing.T) {
	t.Parallel()

	var grants int32
	var createBody createPaymentRequest

	mux := http.NewServeMux()
	mux.HandleFunc(pathTokenGrant, grantHandler(&grants))
	mux.HandleFunc(pathCreate, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token-1" {
			t.Errorf("Authorization = %q, want token-1", got)
		}
		if got := r.Header.Get("X-APP-Key"); got != "app-key" {
			t.Errorf("X-APP-Key = %q, want app-key", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&createBody); err != nil {
			t.Errorf("decoding create body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"paymentID":  "TR0011",
			"bkashURL":   "https://sandbox.bka.sh/checkout/TR0011",
			"amount":     "570.00",
			"statusCode": "0000",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	result, err := client.CreatePayment(context.Background(), CreateRequest{
		AmountPaisa:   57000,
		InvoiceNumber: "order-1",
	})
	if err != nil {
		t.Fatalf("CreatePayment returned error: %v", err)
	}
	if result.PaymentID != "TR0011" {
		t.Fatalf("PaymentID = %q, want TR0011", result.PaymentID)
	}
	if result.BkashURL == "" {
		t.Fatal("expected a redirect url")
	}
	if createBody.Amount != "570.00" {
		t.Fatalf("amount sent = %q, want 570.00", createBody.Amount)
	}
	if createBody.Currency != "BDT" || createBody.Intent != "sale" {
		t.Fatalf("unexpected create body: %+v", createBody)
	}
	if len(result.Raw) == 0 {
		t.Fatal("raw gateway body must be retained")
	}
}

func TestTokenReusedAcrossCalls(t *testing.T) {
	t.Parallel()

	var grants int32
	mux := http.NewServeMux()
	mux.HandleFunc(pathTokenGrant, grantHandler(&grants))
	mux.HandleFunc(pathQuery, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"paymentID":         "TR0011",
			"transactionStatus": "Initiated",
			"statusCode":        "0000",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	for i := 0; i < 3; i++ {
		if _, err := client.QueryPayment(context.Background(), "TR0011"); err != nil {
			t.Fatalf("QueryPayment %d returned error: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&grants); got != 1 {
		t.Fatalf("token granted %d times, want 1", got)
	}
}

func TestExecutePaymentParsesCompletion(t *testing.T) {
	t.Parallel()

	var grants int32
	mux := http.NewServeMux()
	mux.HandleFunc(pathTokenGrant, grantHandler(&grants))
	mux.HandleFunc(pathExecute, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"paymentID":         "TR0011",
			"trxID":             "8HJ3K9L2M",
			"transactionStatus": "Completed",
			"amount":            "570.00",
			"statusCode":        "0000",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	result, err := client.ExecutePayment(context.Background(), "TR0011")
	if err != nil {
		t.Fatalf("ExecutePayment returned error: %v", err)
	}
	if result.TrxID != "8HJ3K9L2M" || result.TransactionStatus != TrxStatusCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGatewayDeclineIsRejectedError(t *testing.T) {
	t.Parallel()

	var grants int32
	mux := http.NewServeMux()
	mux.HandleFunc(pathTokenGrant, grantHandler(&grants))
	mux.HandleFunc(pathExecute, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"statusCode":    "2023",
			"statusMessage": "Insufficient Balance",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	_, err := client.ExecutePayment(context.Background(), "TR0011")
	if !IsRejected(err) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.StatusCode != "2023" {
		t.Fatalf("unexpected rejection detail: %v", err)
	}
	if IsUnavailable(err) {
		t.Fatal("a decline must not be classified as unavailable")
	}
}

func TestServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	var grants int32
	mux := http.NewServeMux()
	mux.HandleFunc(pathTokenGrant, grantHandler(&grants))
	mux.HandleFunc(pathCreate, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	_, err := client.CreatePayment(context.Background(), CreateRequest{AmountPaisa: 7000, InvoiceNumber: "order-1"})
	if !IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestUnconfiguredClientRefusesCalls(t *testing.T) {
	t.Parallel()

	client := NewClient(config.BkashConfig{BaseURL: "https://unused.example.com"}, nil)
	if client.IsConfigured() {
		t.Fatal("client without credentials must report unconfigured")
	}
	if _, err := client.CreatePayment(context.Background(), CreateRequest{AmountPaisa: 7000}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := client.RefundPayment(context.Background(), RefundRequest{PaymentID: "a", TrxID: "b"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRefundPayment(t *testing.T) {
	t.Parallel()

	var grants int32
	var refundBody map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc(pathTokenGrant, grantHandler(&grants))
	mux.HandleFunc(pathRefund, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&refundBody); err != nil {
			t.Errorf("decoding refund body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"refundTrxID":       "RF001",
			"originalTrxID":     "8HJ3K9L2M",
			"transactionStatus": "Completed",
			"amount":            "570.00",
			"statusCode":        "0000",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	result, err := client.RefundPayment(context.Background(), RefundRequest{
		PaymentID:   "TR0011",
		TrxID:       "8HJ3K9L2M",
		AmountPaisa: 57000,
		Reason:      "customer request",
	})
	if err != nil {
		t.Fatalf("RefundPayment returned error: %v", err)
	}
	if result.RefundTrxID != "RF001" {
		t.Fatalf("RefundTrxID = %q, want RF001", result.RefundTrxID)
	}
	if refundBody["amount"] != "570.00" || refundBody["trxID"] != "8HJ3K9L2M" {
		t.Fatalf("unexpected refund body: %v", refundBody)
	}
}

func TestFormatTakaRoundTrip(t *testing.T) {
	t.Parallel()

	if got := FormatTaka(7000); got != "70.00" {
		t.Fatalf("FormatTaka(7000) = %q, want 70.00", got)
	}
	if got := FormatTaka(13000); got != "130.00" {
		t.Fatalf("FormatTaka(13000) = %q, want 130.00", got)
	}
	if got := FormatTaka(57005); got != "570.05" {
		t.Fatalf("FormatTaka(57005) = %q, want 570.05", got)
	}

	paisa, err := ParseTaka("570.05")
	if err != nil {
		t.Fatalf("ParseTaka returned error: %v", err)
	}
	if paisa != 57005 {
		t.Fatalf("ParseTaka = %d, want 57005", paisa)
	}
	if _, err := ParseTaka("0.001"); err == nil {
		t.Fatal("sub-paisa precision must be rejected")
	}
	if _, err := ParseTaka("abc"); err == nil {
		t.Fatal("non-numeric amount must be rejected")
	}
}
