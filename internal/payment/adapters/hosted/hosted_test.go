package hosted

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gymstack/gymstack/internal/config"
	paymentdomain "github.com/gymstack/gymstack/internal/payment/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.Config{Provider: config.PaymentProviderConfig{
		Name:    "hosted",
		BaseURL: srv.URL + "/",
		APIKey:  "sk_test",
		Timeout: time.Second,
	}})
}

func TestVerifyPaymentID(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transactions/pay_1", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)

		_, _ = io.WriteString(w, `{"success":true,"status_code":200,"data":{
			"id":"pay_1","invoice_id":"inv_1","status":"PAID","amount":"80.00","currency":"usd",
			"payment_method":"card","paid_at":"2026-05-10T12:00:00Z",
			"metadata":{"org_id":"100","plan_id":"301"},
			"customer":{"email":"ada@example.com"}}}`)
	})

	v, err := c.Verify(context.Background(), "pay_1", paymentdomain.IdentifierPaymentID)
	require.NoError(t, err)
	assert.True(t, v.IsPaid())
	assert.Equal(t, "pay_1", v.PaymentID)
	assert.Equal(t, "inv_1", v.InvoiceID)
	assert.True(t, v.Amount.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "USD", v.Currency)
	assert.Equal(t, "100", v.OrgID)
	assert.Equal(t, "301", v.PlanID)
	assert.Equal(t, "ada@example.com", v.CustomerEmail)
	require.NotNil(t, v.PaidAt)
	assert.Equal(t, time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC), *v.PaidAt)
	assert.True(t, json.Valid(v.Raw))
}

func TestVerifyInvoiceIDNotPaid(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoices/inv_1", r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"inv_1","status":"pending","amount":80}}`)
	})

	v, err := c.Verify(context.Background(), "inv_1", paymentdomain.IdentifierInvoiceID)
	require.NoError(t, err)
	assert.False(t, v.IsPaid())
	assert.Equal(t, "inv_1", v.InvoiceID)
	assert.Empty(t, v.PaymentID)
}

func TestVerifyClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusBadGateway, `{}`, paymentdomain.ErrProviderUnavailable},
		{"not found", http.StatusNotFound, `{"success":false}`, paymentdomain.ErrProviderRejected},
		{"unsuccessful envelope", http.StatusOK, `{"success":false,"message":"unknown transaction"}`, paymentdomain.ErrProviderRejected},
		{"garbage", http.StatusOK, `<html>`, paymentdomain.ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Verify(context.Background(), "pay_1", paymentdomain.IdentifierPaymentID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(config.Config{Provider: config.PaymentProviderConfig{BaseURL: srv.URL, Timeout: time.Second}})

	_, err := c.Verify(context.Background(), "pay_1", paymentdomain.IdentifierPaymentID)
	assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)

	_, err = c.Verify(context.Background(), " ", paymentdomain.IdentifierPaymentID)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidIdentifier)
}

func TestCreateInvoice(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoices", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "80.00", body["amount"])
		assert.Equal(t, "ext_1", body["external_id"])
		assert.Equal(t, map[string]any{"plan_id": "301"}, body["metadata"])

		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"inv_1","invoice_url":"https://pay.example/inv_1","expiry_date":"2026-05-10T14:00:00Z"}}`)
	})

	inv, err := c.CreateInvoice(context.Background(), paymentdomain.InvoiceRequest{
		ExternalID: "ext_1",
		Amount:     decimal.RequireFromString("80"),
		Currency:   "USD",
		Metadata:   map[string]string{"plan_id": "301"},
	})
	require.NoError(t, err)
	assert.Equal(t, "inv_1", inv.ID)
	assert.Equal(t, "https://pay.example/inv_1", inv.URL)
	require.NotNil(t, inv.ExpiresAt)
	assert.Equal(t, time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC), *inv.ExpiresAt)
}
