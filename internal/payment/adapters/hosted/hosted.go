// Package hosted talks to a hosted-checkout payment provider over its REST
// API: invoices are opened with POST /invoices and confirmed with
// GET /transactions/{id} or GET /invoices/{id}.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gymstack/gymstack/internal/config"
	paymentdomain "github.com/gymstack/gymstack/internal/payment/domain"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

type Client struct {
	provider string
	baseURL  string
	apiKey   string
	http     *http.Client
}

func New(cfg config.Config) *Client {
	timeout := cfg.Provider.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	name := strings.TrimSpace(cfg.Provider.Name)
	if name == "" {
		name = "hosted"
	}
	return &Client{
		provider: name,
		baseURL:  strings.TrimRight(cfg.Provider.BaseURL, "/"),
		apiKey:   cfg.Provider.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Provider() string { return c.provider }

// envelope is the provider's response wrapper.
type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type transaction struct {
	ID            string          `json:"id"`
	PaymentID     string          `json:"payment_id"`
	InvoiceID     string          `json:"invoice_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	PaidAt        string          `json:"paid_at"`
	Metadata      struct {
		OrgID    string `json:"org_id"`
		PlanID   string `json:"plan_id"`
		MemberID string `json:"member_id"`
	} `json:"metadata"`
	Customer struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
}

func (c *Client) Verify(ctx context.Context, identifier string, kind paymentdomain.IdentifierType) (*paymentdomain.Verification, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, paymentdomain.ErrInvalidIdentifier
	}

	var path string
	switch kind {
	case paymentdomain.IdentifierPaymentID:
		path = "/transactions/" + url.PathEscape(identifier)
	case paymentdomain.IdentifierInvoiceID:
		path = "/invoices/" + url.PathEscape(identifier)
	default:
		return nil, paymentdomain.ErrInvalidIdentifier
	}

	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var tx transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidResponse, err)
	}

	v := &paymentdomain.Verification{
		Provider:      c.provider,
		Status:        strings.ToLower(strings.TrimSpace(tx.Status)),
		PaymentID:     tx.PaymentID,
		InvoiceID:     tx.InvoiceID,
		Amount:        tx.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(tx.Currency)),
		Method:        tx.PaymentMethod,
		OrgID:         tx.Metadata.OrgID,
		PlanID:        tx.Metadata.PlanID,
		MemberID:      tx.Metadata.MemberID,
		CustomerEmail: tx.Customer.Email,
		CustomerPhone: tx.Customer.Phone,
		Raw:           json.RawMessage(data),
	}
	// The resource id is the identifier of whatever was looked up.
	switch kind {
	case paymentdomain.IdentifierPaymentID:
		if v.PaymentID == "" {
			v.PaymentID = firstNonEmpty(tx.ID, identifier)
		}
	case paymentdomain.IdentifierInvoiceID:
		if v.InvoiceID == "" {
			v.InvoiceID = firstNonEmpty(tx.ID, identifier)
		}
	}
	if paidAt, err := time.Parse(time.RFC3339, tx.PaidAt); err == nil {
		paidAt = paidAt.UTC()
		v.PaidAt = &paidAt
	}
	return v, nil
}

func (c *Client) CreateInvoice(ctx context.Context, req paymentdomain.InvoiceRequest) (*paymentdomain.ProviderInvoice, error) {
	body := map[string]any{
		"external_id":          req.ExternalID,
		"amount":               req.Amount.StringFixed(2),
		"currency":             req.Currency,
		"description":          req.Description,
		"success_redirect_url": req.SuccessURL,
		"failure_redirect_url": req.FailureURL,
	}
	if req.PayerEmail != "" {
		body["payer_email"] = req.PayerEmail
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, http.MethodPost, "/invoices", payload)
	if err != nil {
		return nil, err
	}

	var invoice struct {
		ID         string `json:"id"`
		InvoiceURL string `json:"invoice_url"`
		ExpiryDate string `json:"expiry_date"`
	}
	if err := json.Unmarshal(data, &invoice); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidResponse, err)
	}
	if invoice.ID == "" {
		return nil, paymentdomain.ErrInvalidResponse
	}

	out := &paymentdomain.ProviderInvoice{ID: invoice.ID, URL: invoice.InvoiceURL}
	if expiresAt, err := time.Parse(time.RFC3339, invoice.ExpiryDate); err == nil {
		expiresAt = expiresAt.UTC()
		out.ExpiresAt = &expiresAt
	}
	return out, nil
}

// do sends a request and returns the envelope's data on success.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	// Basic Auth with the API key as username.
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrProviderRejected, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrInvalidResponse, err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", env.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrProviderRejected, msg)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil, paymentdomain.ErrInvalidResponse
	}
	return env.Data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ interface {
	paymentdomain.Verifier
	paymentdomain.InvoiceIssuer
} = (*Client)(nil)
