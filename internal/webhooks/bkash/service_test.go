package bkashwebhook

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rakibulhasan-dev/bazarly-backend/internal/payments"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/db/models"
	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.keys[key]
	if !ok {
		return "", errors.New("key not found")
	}
	return value, nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keys[key]; exists {
		return false, nil
	}
	m.keys[key] = "1"
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

type stubVerifier struct {
	err error
}

func (s stubVerifier) Verify(header http.Header, body []byte) error {
	return s.err
}

type stubEngine struct {
	events []payments.WebhookEvent
	err    error
}

func (s *stubEngine) InitiatePayment(ctx context.Context, orderID, userID uuid.UUID) (*payments.InitiateResult, error) {
	panic("not implemented")
}

func (s *stubEngine) CompletePayment(ctx context.Context, paymentID string) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubEngine) FailPayment(ctx context.Context, paymentID, reason string) error {
	panic("not implemented")
}

func (s *stubEngine) CancelPayment(ctx context.Context, paymentID string) error {
	panic("not implemented")
}

func (s *stubEngine) Refund(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubEngine) HandleWebhook(ctx context.Context, event payments.WebhookEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func (s *stubEngine) QueryAndReconcile(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	panic("not implemented")
}

func newTestService(t *testing.T, verifier stubVerifier, engine *stubEngine) (*Service, *memoryStore) {
	t.Helper()

	store := newMemoryStore()
	guard, err := NewGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("NewGuard returned error: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Verifier: verifier,
		Guard:    guard,
		Engine:   engine,
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc, store
}

func TestHandleDeliveryRejectsBadSignature(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{}
	svc, _ := newTestService(t, stubVerifier{err: errors.New("signature mismatch")}, engine)

	_, err := svc.HandleDelivery(context.Background(), http.Header{}, []byte(`{}`))
	if !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(engine.events) != 0 {
		t.Fatal("engine must not see unverified deliveries")
	}
}

func TestHandleDeliveryRoutesEvent(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{}
	svc, _ := newTestService(t, stubVerifier{}, engine)

	body := []byte(`{"id":"evt-1","paymentID":"TR0011","trxID":"8HJ3K9L2M","transactionStatus":"Completed"}`)
	result, err := svc.HandleDelivery(context.Background(), http.Header{}, body)
	if err != nil {
		t.Fatalf("HandleDelivery returned error: %v", err)
	}
	if result.Duplicate {
		t.Fatal("first delivery must not be a duplicate")
	}
	if len(engine.events) != 1 {
		t.Fatalf("expected one routed event, got %d", len(engine.events))
	}
	event := engine.events[0]
	if event.EventID != "evt-1" || event.PaymentID != "TR0011" || event.Status != "Completed" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestHandleDeliveryDeduplicatesReplay(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{}
	svc, _ := newTestService(t, stubVerifier{}, engine)

	body := []byte(`{"id":"evt-1","paymentID":"TR0011","transactionStatus":"Completed"}`)
	if _, err := svc.HandleDelivery(context.Background(), http.Header{}, body); err != nil {
		t.Fatalf("first delivery returned error: %v", err)
	}
	result, err := svc.HandleDelivery(context.Background(), http.Header{}, body)
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("replay must be reported as duplicate")
	}
	if len(engine.events) != 1 {
		t.Fatalf("engine saw %d events, want 1", len(engine.events))
	}
}

func TestHandleDeliveryFallbackEventID(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{}
	svc, _ := newTestService(t, stubVerifier{}, engine)

	body := []byte(`{"paymentID":"TR0011","transactionStatus":"Failed"}`)
	result, err := svc.HandleDelivery(context.Background(), http.Header{}, body)
	if err != nil {
		t.Fatalf("HandleDelivery returned error: %v", err)
	}
	if result.EventID != "TR0011:Failed" {
		t.Fatalf("fallback event id = %q, want TR0011:Failed", result.EventID)
	}
}

func TestHandleDeliveryReleasesMarkOnFailure(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{err: pkgerrors.New(pkgerrors.CodeDependency, "database down")}
	svc, _ := newTestService(t, stubVerifier{}, engine)

	body := []byte(`{"id":"evt-1","paymentID":"TR0011","transactionStatus":"Completed"}`)
	if _, err := svc.HandleDelivery(context.Background(), http.Header{}, body); err == nil {
		t.Fatal("expected processing failure to propagate")
	}

	// The retry must be processed, not swallowed as a duplicate.
	engine.err = nil
	result, err := svc.HandleDelivery(context.Background(), http.Header{}, body)
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if result.Duplicate {
		t.Fatal("retry after failure must not be a duplicate")
	}
	if len(engine.events) != 2 {
		t.Fatalf("engine saw %d events, want 2", len(engine.events))
	}
}

func TestHandleDeliveryUnknownPaymentAcknowledged(t *testing.T) {
	t.Parallel()

	engine := &stubEngine{err: pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment id")}
	svc, _ := newTestService(t, stubVerifier{}, engine)

	body := []byte(`{"id":"evt-1","paymentID":"TR-unknown","transactionStatus":"Completed"}`)
	result, err := svc.HandleDelivery(context.Background(), http.Header{}, body)
	if err != nil {
		t.Fatalf("unknown payment should be acknowledged, got %v", err)
	}
	if result.Duplicate {
		t.Fatal("unexpected duplicate flag")
	}

	// The mark is kept, so a redelivery is a duplicate.
	replay, err := svc.HandleDelivery(context.Background(), http.Header{}, body)
	if err != nil {
		t.Fatalf("replay returned error: %v", err)
	}
	if !replay.Duplicate {
		t.Fatal("redelivery of an acknowledged unknown payment must deduplicate")
	}
}
