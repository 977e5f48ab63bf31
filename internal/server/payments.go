package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/gymstack/gymstack/internal/payment/domain"
	"github.com/shopspring/decimal"
)

type startCheckoutRequest struct {
	MemberID       string           `json:"member_id" binding:"required"`
	PlanID         string           `json:"plan_id" binding:"required"`
	DiscountMode   string           `json:"discount_mode"`
	DiscountID     string           `json:"discount_id"`
	ManualDiscount *decimal.Decimal `json:"manual_discount"`
	StartDate      string           `json:"start_date"`
	SoldBy         string           `json:"sold_by"`
}

// POST /api/checkout
func (s *Server) StartCheckout(c *gin.Context) {
	var req startCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.checkoutSvc.Start(c.Request.Context(), paymentdomain.CheckoutRequest{
		MemberID:       req.MemberID,
		PlanID:         req.PlanID,
		DiscountMode:   req.DiscountMode,
		DiscountID:     req.DiscountID,
		ManualDiscount: req.ManualDiscount,
		StartDate:      req.StartDate,
		SoldBy:         req.SoldBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, session)
}

// GET /payments/callback
//
// The provider sends the payer here after checkout. Whatever the outcome,
// the payer is redirected with a message and the reference to quote to
// support.
func (s *Server) PaymentCallback(c *gin.Context) {
	req := paymentdomain.CallbackRequest{
		PaymentID: firstQuery(c, "payment_id", "PaymentId", "paymentId"),
		InvoiceID: firstQuery(c, "invoice_id", "InvoiceId", "invoiceId"),
	}

	out := s.callbacks.HandleCallback(c.Request.Context(), req)

	target := s.cfg.Callback.FailureURL
	if out.Success() {
		target = s.cfg.Callback.SuccessURL
	}
	c.Redirect(http.StatusFound, withQuery(target, out))
}

func firstQuery(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			return v
		}
	}
	return ""
}

func withQuery(target string, out paymentdomain.Outcome) string {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("status", string(out.Kind))
	q.Set("message", out.Message)
	if out.Reference != "" {
		q.Set("reference", out.Reference)
	}
	if out.MembershipID != 0 {
		q.Set("membership_id", out.MembershipID.String())
	}
	u.RawQuery = q.Encode()
	return u.String()
}
