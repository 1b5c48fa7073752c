package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rakibulhasan-dev/bazarly-backend/internal/payments"
	bkashwebhook "github.com/rakibulhasan-dev/bazarly-backend/internal/webhooks/bkash"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db/models"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/webhookverify"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]bool{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("not found")
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "bz:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type fakeEngine struct {
	calls int
	err   error
}

func (f *fakeEngine) InitiatePayment(ctx context.Context, orderID, userID uuid.UUID) (*payments.InitiateResult, error) {
	panic("not implemented")
}

func (f *fakeEngine) CompletePayment(ctx context.Context, paymentID string) (*models.Order, error) {
	panic("not implemented")
}

func (f *fakeEngine) FailPayment(ctx context.Context, paymentID, reason string) error {
	panic("not implemented")
}

func (f *fakeEngine) CancelPayment(ctx context.Context, paymentID string) error {
	panic("not implemented")
}

func (f *fakeEngine) Refund(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	panic("not implemented")
}

func (f *fakeEngine) HandleWebhook(ctx context.Context, event payments.WebhookEvent) error {
	f.calls++
	return f.err
}

func (f *fakeEngine) QueryAndReconcile(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	panic("not implemented")
}

func newHandler(t *testing.T, engine *fakeEngine) http.HandlerFunc {
	t.Helper()

	guard, err := bkashwebhook.NewGuard(newMemoryStore(), time.Minute)
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	svc, err := bkashwebhook.NewService(bkashwebhook.ServiceParams{
		Verifier: webhookverify.HMACVerifier{Header: "X-Signature", Secret: "whsec"},
		Guard:    guard,
		Engine:   engine,
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("service setup: %v", err)
	}
	return BkashWebhook(svc, nil)
}

func signedRequest(payload []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/bkash", bytes.NewReader(payload))
	req.Header.Set("X-Signature", webhookverify.Sign("whsec", payload))
	return req
}

func TestBkashWebhookAcceptsAndDeduplicates(t *testing.T) {
	engine := &fakeEngine{}
	handler := newHandler(t, engine)
	payload := []byte(`{"id":"evt-1","paymentID":"TR0011","transactionStatus":"Completed"}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if engine.calls != 1 {
		t.Fatalf("engine calls = %d, want 1", engine.calls)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, signedRequest(payload))
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec2.Code)
	}
	if engine.calls != 1 {
		t.Fatalf("replay must not reach the engine, calls = %d", engine.calls)
	}

	var envelope struct {
		Data struct {
			Received  bool `json:"received"`
			Duplicate bool `json:"duplicate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !envelope.Data.Received || !envelope.Data.Duplicate {
		t.Fatalf("unexpected replay acknowledgement: %+v", envelope.Data)
	}
}

func TestBkashWebhookRejectsInvalidSignature(t *testing.T) {
	engine := &fakeEngine{}
	handler := newHandler(t, engine)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/bkash", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if engine.calls != 0 {
		t.Fatal("engine must not see unverified deliveries")
	}
}

func TestBkashWebhookInternalFailureSignalsRetry(t *testing.T) {
	engine := &fakeEngine{err: pkgerrors.New(pkgerrors.CodeDependency, "database down")}
	handler := newHandler(t, engine)
	payload := []byte(`{"id":"evt-1","paymentID":"TR0011","transactionStatus":"Failed"}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(payload))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 so the provider retries, got %d", rec.Code)
	}

	// The dedup mark was released; the retry goes through.
	engine.err = nil
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, signedRequest(payload))
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", rec2.Code)
	}
	if engine.calls != 2 {
		t.Fatalf("engine calls = %d, want 2", engine.calls)
	}
}
