package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	"github.com/shopspring/decimal"
)

type createMembershipRequest struct {
	MemberID       string           `json:"member_id" binding:"required"`
	PlanID         string           `json:"plan_id" binding:"required"`
	DiscountMode   string           `json:"discount_mode"`
	DiscountID     string           `json:"discount_id"`
	ManualDiscount *decimal.Decimal `json:"manual_discount"`
	StartDate      string           `json:"start_date"`
	EndDate        string           `json:"end_date"`
	ForceActive    bool             `json:"force_active"`

	InvoiceStatus    string           `json:"invoice_status"`
	InvoiceTotalPaid *decimal.Decimal `json:"invoice_total_paid"`
	InvoiceDueAt     *time.Time       `json:"invoice_due_at"`
	InvoiceMethod    string           `json:"invoice_method"`
	InvoiceReceipt   string           `json:"invoice_receipt"`

	SoldBy string `json:"sold_by"`
	Note   string `json:"note"`
}

// POST /api/memberships
func (s *Server) CreateMembership(c *gin.Context) {
	var req createMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.membershipSvc.Create(c.Request.Context(), membershipdomain.CreateRequest{
		MemberID:         req.MemberID,
		PlanID:           req.PlanID,
		DiscountMode:     req.DiscountMode,
		DiscountID:       req.DiscountID,
		ManualDiscount:   req.ManualDiscount,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		ForceActive:      req.ForceActive,
		InvoiceStatus:    req.InvoiceStatus,
		InvoiceTotalPaid: req.InvoiceTotalPaid,
		InvoiceDueAt:     req.InvoiceDueAt,
		InvoiceMethod:    req.InvoiceMethod,
		InvoiceReceipt:   req.InvoiceReceipt,
		SoldBy:           req.SoldBy,
		Note:             req.Note,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if res.Existing {
		c.JSON(http.StatusOK, gin.H{"data": res.Membership, "existing": true})
		return
	}
	respondCreated(c, res.Membership)
}

// GET /api/memberships/:id
func (s *Server) GetMembership(c *gin.Context) {
	item, err := s.membershipSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, item)
}

// GET /api/members/:id/memberships
func (s *Server) ListMemberMemberships(c *gin.Context) {
	items, err := s.membershipSvc.ListByMember(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, items)
}

// GET /api/memberships/:id/notes
func (s *Server) ListMembershipNotes(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, membershipdomain.ErrInvalidMembership)
		return
	}
	notes, err := s.auditSvc.ListNotes(c.Request.Context(), auditdomain.SubjectMembership, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, notes)
}

type modifyDatesRequest struct {
	StartDate            string `json:"start_date" binding:"required"`
	EndDate              string `json:"end_date"`
	AutoDetermineEndDate bool   `json:"auto_determine_end_date"`
	Note                 string `json:"note"`
}

// PUT /api/memberships/:id/dates
func (s *Server) ModifyMembershipDates(c *gin.Context) {
	var req modifyDatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.membershipSvc.ModifyDates(c.Request.Context(), membershipdomain.ModifyDatesRequest{
		MembershipID:         c.Param("id"),
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		AutoDetermineEndDate: req.AutoDetermineEndDate,
		Note:                 req.Note,
	})
	respondMutation(c, item, err)
}

type modifyLimitsRequest struct {
	NumberOfClasses      *int   `json:"number_of_classes"`
	AllowSharing         *bool  `json:"allow_sharing"`
	AllowHolds           *bool  `json:"allow_holds"`
	NumberOfHoldsAllowed *int   `json:"number_of_holds_allowed"`
	HoldDays             *int   `json:"hold_days"`
	Note                 string `json:"note"`
}

// PUT /api/memberships/:id/limits
func (s *Server) ModifyMembershipLimits(c *gin.Context) {
	var req modifyLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.membershipSvc.ModifyLimits(c.Request.Context(), membershipdomain.ModifyLimitsRequest{
		MembershipID:         c.Param("id"),
		NumberOfClasses:      req.NumberOfClasses,
		AllowSharing:         req.AllowSharing,
		AllowHolds:           req.AllowHolds,
		NumberOfHoldsAllowed: req.NumberOfHoldsAllowed,
		HoldDays:             req.HoldDays,
		Note:                 req.Note,
	})
	respondMutation(c, item, err)
}

type holdRequest struct {
	HoldStartDate string `json:"hold_start_date" binding:"required"`
	HoldEndDate   string `json:"hold_end_date" binding:"required"`
	AutoResume    bool   `json:"auto_resume"`
	Reason        string `json:"reason"`
	Note          string `json:"note"`
}

// POST /api/memberships/:id/hold
func (s *Server) HoldMembership(c *gin.Context) {
	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.membershipSvc.Hold(c.Request.Context(), membershipdomain.HoldRequest{
		MembershipID:  c.Param("id"),
		HoldStartDate: req.HoldStartDate,
		HoldEndDate:   req.HoldEndDate,
		AutoResume:    req.AutoResume,
		Reason:        req.Reason,
		Note:          req.Note,
	})
	respondMutation(c, item, err)
}

type noteOnlyRequest struct {
	Note string `json:"note"`
}

// bindOptional accepts an empty body for endpoints whose fields are all
// optional.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		AbortWithError(c, invalidRequestError())
		return false
	}
	return true
}

// POST /api/memberships/:id/resume
func (s *Server) ResumeMembership(c *gin.Context) {
	var req noteOnlyRequest
	if !bindOptional(c, &req) {
		return
	}
	item, err := s.membershipSvc.Resume(c.Request.Context(), membershipdomain.ResumeRequest{
		MembershipID: c.Param("id"),
		Note:         req.Note,
	})
	respondMutation(c, item, err)
}

type cancelRequest struct {
	CanceledAt *time.Time `json:"canceled_at"`
	Reason     string     `json:"reason"`
	Note       string     `json:"note"`
}

// POST /api/memberships/:id/cancel
func (s *Server) CancelMembership(c *gin.Context) {
	var req cancelRequest
	if !bindOptional(c, &req) {
		return
	}
	item, err := s.membershipSvc.Cancel(c.Request.Context(), membershipdomain.CancelRequest{
		MembershipID: c.Param("id"),
		CanceledAt:   req.CanceledAt,
		Reason:       req.Reason,
		Note:         req.Note,
	})
	respondMutation(c, item, err)
}

type upgradeRequest struct {
	PlanID           string           `json:"plan_id" binding:"required"`
	PaidUpgrade      bool             `json:"paid_upgrade"`
	UpgradeFee       *decimal.Decimal `json:"upgrade_fee"`
	PaymentMethod    string           `json:"payment_method"`
	ReceiptReference string           `json:"receipt_reference"`
	Note             string           `json:"note"`
}

// POST /api/memberships/:id/upgrade
func (s *Server) UpgradeMembership(c *gin.Context) {
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.membershipSvc.Upgrade(c.Request.Context(), membershipdomain.UpgradeRequest{
		MembershipID:     c.Param("id"),
		PlanID:           req.PlanID,
		PaidUpgrade:      req.PaidUpgrade,
		UpgradeFee:       req.UpgradeFee,
		PaymentMethod:    req.PaymentMethod,
		ReceiptReference: req.ReceiptReference,
		Note:             req.Note,
	})
	respondMutation(c, item, err)
}

type transferRequest struct {
	ToMemberID              string           `json:"to_member_id" binding:"required"`
	PaidTransfer            bool             `json:"paid_transfer"`
	TransferFee             *decimal.Decimal `json:"transfer_fee"`
	PaymentMethod           string           `json:"payment_method"`
	ReceiptReference        string           `json:"receipt_reference"`
	CreateNewPlanAndProRate bool             `json:"create_new_plan_and_pro_rate"`
	Note                    string           `json:"note"`
}

// POST /api/memberships/:id/transfer
func (s *Server) TransferMembership(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.membershipSvc.Transfer(c.Request.Context(), membershipdomain.TransferRequest{
		MembershipID:            c.Param("id"),
		ToMemberID:              req.ToMemberID,
		PaidTransfer:            req.PaidTransfer,
		TransferFee:             req.TransferFee,
		PaymentMethod:           req.PaymentMethod,
		ReceiptReference:        req.ReceiptReference,
		CreateNewPlanAndProRate: req.CreateNewPlanAndProRate,
		Note:                    req.Note,
	})
	respondMutation(c, item, err)
}

// POST /api/memberships/:id/reinstate
func (s *Server) ReinstateMembership(c *gin.Context) {
	var req noteOnlyRequest
	if !bindOptional(c, &req) {
		return
	}
	item, err := s.membershipSvc.Reinstate(c.Request.Context(), membershipdomain.ReinstateRequest{
		MembershipID: c.Param("id"),
		Note:         req.Note,
	})
	respondMutation(c, item, err)
}
