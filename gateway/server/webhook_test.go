package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"spicepay/gateway/paymob"
	"spicepay/storage/deliveries"
	"spicepay/storage/orders"
)

const testSecret = "D4C3B2A1F0E9D8C7B6A5948382716050"

type testEnv struct {
	server   *Server
	store    *orders.GormStore
	db       *gorm.DB
	log      *deliveries.Store
	verifier *paymob.Verifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, orders.AutoMigrate(db))

	deliveryLog, err := deliveries.Open(filepath.Join(t.TempDir(), "deliveries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deliveryLog.Close() })

	verifier, err := paymob.NewVerifier(testSecret)
	require.NoError(t, err)

	store := orders.NewGormStore(db)
	srv := New(Config{
		Orders:     store,
		Deliveries: deliveryLog,
		Verifier:   verifier,
	})
	return &testEnv{server: srv, store: store, db: db, log: deliveryLog, verifier: verifier}
}

func (e *testEnv) seedOrder(t *testing.T, number string) orders.Order {
	t.Helper()
	order := orders.Order{
		ID:            uuid.New(),
		OrderNumber:   number,
		Status:        orders.StatusPending,
		PaymentStatus: orders.PaymentStatusUnpaid,
		AmountCents:   15750,
		Currency:      "EGP",
	}
	require.NoError(t, e.db.Create(&order).Error)
	return order
}

func webhookTransaction(merchantOrderID string, success, pending bool) paymob.Transaction {
	return paymob.Transaction{
		"id":           9123001,
		"amount_cents": 15750,
		"currency":     "EGP",
		"success":      success,
		"pending":      pending,
		"created_at":   "2026-03-01T12:00:00.000000",
		"order": map[string]any{
			"id":                551,
			"merchant_order_id": merchantOrderID,
		},
		"source_data": map[string]any{
			"pan":      "2346",
			"sub_type": "MasterCard",
			"type":     "card",
		},
	}
}

func (e *testEnv) postWebhook(t *testing.T, tx paymob.Transaction, signature string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"type": "TRANSACTION",
		"obj":  tx,
		"hmac": signature,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/payments/paymob/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) sign(t *testing.T, tx paymob.Transaction, scope paymob.MessageScope) string {
	t.Helper()
	// Signatures are computed over the wire form, where JSON numbers have
	// lost their Go types.
	encoded, err := json.Marshal(tx)
	require.NoError(t, err)
	parsed, err := paymob.ParseTransaction(encoded)
	require.NoError(t, err)
	digest, err := e.verifier.Sign(parsed, scope)
	require.NoError(t, err)
	return digest
}

func (e *testEnv) lastDeliveries(t *testing.T) []deliveries.Record {
	t.Helper()
	records, err := e.log.Recent(context.Background(), 20)
	require.NoError(t, err)
	return records
}

func TestWebhookSuccessTransition(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", true, false)

	rec := env.postWebhook(t, tx, env.sign(t, tx, paymob.ScopeWebhook))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"received": true}`, rec.Body.String())

	updated, err := env.store.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Equal(t, orders.PaymentStatusPaid, updated.PaymentStatus)
	require.Equal(t, orders.StatusConfirmed, updated.Status)
}

func TestWebhookPendingTransition(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", false, true)

	rec := env.postWebhook(t, tx, env.sign(t, tx, paymob.ScopeWebhook))

	require.Equal(t, http.StatusOK, rec.Code)
	updated, err := env.store.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Equal(t, orders.PaymentStatusPending, updated.PaymentStatus)
	require.Equal(t, orders.StatusProcessing, updated.Status)
}

func TestWebhookDeclineCollapsesToFailed(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", false, false)

	rec := env.postWebhook(t, tx, env.sign(t, tx, paymob.ScopeWebhook))

	require.Equal(t, http.StatusOK, rec.Code)
	updated, err := env.store.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Equal(t, orders.PaymentStatusFailed, updated.PaymentStatus)
	require.Equal(t, orders.StatusPaymentFailed, updated.Status)
}

func TestWebhookReplayIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", true, false)
	digest := env.sign(t, tx, paymob.ScopeWebhook)

	require.Equal(t, http.StatusOK, env.postWebhook(t, tx, digest).Code)
	first, err := env.store.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, env.postWebhook(t, tx, digest).Code)
	second, err := env.store.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Equal(t, first.UpdatedAt, second.UpdatedAt)

	records := env.lastDeliveries(t)
	require.Len(t, records, 2)
	outcomes := []string{records[0].Outcome, records[1].Outcome}
	require.Contains(t, outcomes, "applied")
	require.Contains(t, outcomes, "replayed")
}

func TestWebhookTamperedSignatureRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", true, false)
	digest := env.sign(t, tx, paymob.ScopeWebhook)
	tampered := "0" + digest[1:]
	if tampered == digest {
		tampered = "1" + digest[1:]
	}

	rec := env.postWebhook(t, tx, tampered)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error": "invalid signature"}`, rec.Body.String())

	untouched, err := env.store.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Equal(t, orders.PaymentStatusUnpaid, untouched.PaymentStatus)
	require.Equal(t, orders.StatusPending, untouched.Status)
}

func TestWebhookNonHexSignatureRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", true, false)

	rec := env.postWebhook(t, tx, "not-hex!!")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookMissingFields(t *testing.T) {
	env := newTestEnv(t)
	tx := webhookTransaction("ORD-1", true, false)

	t.Run("missing obj", func(t *testing.T) {
		payload := []byte(`{"type":"TRANSACTION","hmac":"abcd"}`)
		req := httptest.NewRequest(http.MethodPost, "/payments/paymob/webhook", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing hmac", func(t *testing.T) {
		rec := env.postWebhook(t, tx, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.JSONEq(t, `{"error": "missing hmac"}`, rec.Body.String())
	})

	t.Run("missing merchant order id", func(t *testing.T) {
		anonymous := webhookTransaction("", true, false)
		delete(anonymous["order"].(map[string]any), "merchant_order_id")
		rec := env.postWebhook(t, anonymous, env.sign(t, anonymous, paymob.ScopeWebhook))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unparsable body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/payments/paymob/webhook", strings.NewReader("{nope"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebhookUnknownOrder(t *testing.T) {
	env := newTestEnv(t)
	tx := webhookTransaction("ORD-404", true, false)

	rec := env.postWebhook(t, tx, env.sign(t, tx, paymob.ScopeWebhook))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error": "order not found"}`, rec.Body.String())

	var count int64
	require.NoError(t, env.db.Model(&orders.Order{}).Count(&count).Error)
	require.Zero(t, count)

	records := env.lastDeliveries(t)
	require.Len(t, records, 1)
	require.Equal(t, "unknown_order", records[0].Outcome)
}

func TestWebhookFormEncodedBody(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", true, false)
	digest := env.sign(t, tx, paymob.ScopeWebhook)

	obj, err := json.Marshal(tx)
	require.NoError(t, err)
	form := url.Values{}
	form.Set("obj", string(obj))
	form.Set("hmac", digest)

	req := httptest.NewRequest(http.MethodPost, "/payments/paymob/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	updated, err := env.store.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Equal(t, orders.PaymentStatusPaid, updated.PaymentStatus)
}

func TestWebhookSignatureFromQueryString(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", true, false)
	digest := env.sign(t, tx, paymob.ScopeWebhook)

	payload, err := json.Marshal(map[string]any{"type": "TRANSACTION", "obj": tx})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/payments/paymob/webhook?hmac="+digest, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookNoContentTypeFallsBackToJSON(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", false, true)
	digest := env.sign(t, tx, paymob.ScopeWebhook)

	payload, err := json.Marshal(map[string]any{"obj": tx, "hmac": digest})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/payments/paymob/webhook", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

type failingStore struct{}

func (failingStore) FindByNumber(context.Context, string) (*orders.Order, error) {
	return &orders.Order{OrderNumber: "ORD-1"}, nil
}

func (failingStore) UpdateStatus(context.Context, string, orders.StatusUpdate) (bool, error) {
	return false, fmt.Errorf("connection reset")
}

func TestWebhookStoreFailureIsRetryable(t *testing.T) {
	verifier, err := paymob.NewVerifier(testSecret)
	require.NoError(t, err)
	srv := New(Config{Orders: failingStore{}, Verifier: verifier})

	tx := webhookTransaction("ORD-1", true, false)
	encoded, err := json.Marshal(tx)
	require.NoError(t, err)
	parsed, err := paymob.ParseTransaction(encoded)
	require.NoError(t, err)
	digest, err := verifier.Sign(parsed, paymob.ScopeWebhook)
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{"obj": tx, "hmac": digest})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/payments/paymob/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error": "order update failed"}`, rec.Body.String())
}

func TestWebhookResponseTellsGatewayNothingAboutTheFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "ORD-1")

	// Same generic body whether the digest is wrong or computed over a
	// tampered payload.
	tx := webhookTransaction("ORD-1", true, false)
	digest := env.sign(t, tx, paymob.ScopeWebhook)
	tx["amount_cents"] = 1

	rec := env.postWebhook(t, tx, digest)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"error": "invalid signature"}`, rec.Body.String())
	require.NotContains(t, rec.Body.String(), digest[:8])
}

func TestWebhookTimestampStampedOnChange(t *testing.T) {
	env := newTestEnv(t)
	seeded := env.seedOrder(t, "ORD-1")
	tx := webhookTransaction("ORD-1", true, false)

	time.Sleep(2 * time.Millisecond)
	rec := env.postWebhook(t, tx, env.sign(t, tx, paymob.ScopeWebhook))
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := env.store.FindByNumber(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.True(t, updated.UpdatedAt.After(seeded.UpdatedAt))
}
