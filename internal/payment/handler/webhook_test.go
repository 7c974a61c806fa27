package handler_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"eventgo/internal/models"
	"eventgo/internal/payment"
	"eventgo/internal/payment/handler"
	"eventgo/internal/purchase"
)

const testWebhookSecret = "whsec_test_secret"

type stubPurchases struct {
	confirmed  []string
	failed     []string
	lastResult *payment.Result
	lastReason string
	confirmErr error
	failErr    error
}

func (s *stubPurchases) ConfirmPayment(ctx context.Context, purchaseID string, capture *payment.Result, attendees []purchase.AttendeeInput) (*models.Purchase, error) {
	s.confirmed = append(s.confirmed, purchaseID)
	s.lastResult = capture
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return &models.Purchase{ID: purchaseID, Status: models.PurchasePaid}, nil
}

func (s *stubPurchases) FailPayment(ctx context.Context, purchaseID, reason string) (*models.Purchase, error) {
	s.failed = append(s.failed, purchaseID)
	s.lastReason = reason
	if s.failErr != nil {
		return nil, s.failErr
	}
	return &models.Purchase{ID: purchaseID, Status: models.PurchaseCancelled}, nil
}

func newWebhookEngine(t *testing.T, purchases *stubPurchases) *gin.Engine {
	t.Helper()
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handler.NewWebhookHandler(purchases, nil).RegisterRoutes(engine)
	return engine
}

func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testWebhookSecret)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return req
}

func intentEvent(eventType, intentJSON string) string {
	return fmt.Sprintf(`{"id":"evt_1","type":%q,"data":{"object":%s}}`, eventType, intentJSON)
}

func TestWebhookConfirmsPurchaseOnSucceededIntent(t *testing.T) {
	purchases := &stubPurchases{}
	engine := newWebhookEngine(t, purchases)

	payload := intentEvent("payment_intent.succeeded",
		`{"id":"pi_123","metadata":{"purchase_id":"purchase-1"}}`)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, signedRequest(t, payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"purchase-1"}, purchases.confirmed)
	require.NotNil(t, purchases.lastResult)
	assert.True(t, purchases.lastResult.Success)
	assert.Equal(t, "pi_123", purchases.lastResult.Reference)
	assert.Empty(t, purchases.failed)
}

func TestWebhookCancelsPurchaseOnFailedIntent(t *testing.T) {
	purchases := &stubPurchases{}
	engine := newWebhookEngine(t, purchases)

	payload := intentEvent("payment_intent.payment_failed",
		`{"id":"pi_124","metadata":{"purchase_id":"purchase-2"},"last_payment_error":{"message":"card declined"}}`)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, signedRequest(t, payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"purchase-2"}, purchases.failed)
	assert.Equal(t, "card declined", purchases.lastReason)
	assert.Empty(t, purchases.confirmed)
}

func TestWebhookRejectsMissingPurchaseMetadata(t *testing.T) {
	purchases := &stubPurchases{}
	engine := newWebhookEngine(t, purchases)

	payload := intentEvent("payment_intent.succeeded", `{"id":"pi_125","metadata":{}}`)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, signedRequest(t, payload))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, purchases.confirmed)
	assert.Empty(t, purchases.failed)
}

func TestWebhookTreatsLateEchoAsSettled(t *testing.T) {
	// The synchronous capture path already confirmed this purchase; the
	// webhook retry must not bubble a 500 or Stripe keeps redelivering.
	purchases := &stubPurchases{confirmErr: fmt.Errorf("purchase purchase-3: %w", models.ErrInvalidTransition)}
	engine := newWebhookEngine(t, purchases)

	payload := intentEvent("payment_intent.succeeded",
		`{"id":"pi_126","metadata":{"purchase_id":"purchase-3"}}`)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, signedRequest(t, payload))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "already settled")
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	purchases := &stubPurchases{}
	engine := newWebhookEngine(t, purchases)

	payload := intentEvent("payment_intent.succeeded",
		`{"id":"pi_127","metadata":{"purchase_id":"purchase-4"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, purchases.confirmed)
}

func TestWebhookIgnoresUnknownEventTypes(t *testing.T) {
	purchases := &stubPurchases{}
	engine := newWebhookEngine(t, purchases)

	payload := intentEvent("charge.refunded", `{"id":"ch_1"}`)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, signedRequest(t, payload))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Empty(t, purchases.confirmed)
	assert.Empty(t, purchases.failed)
}
