package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/gymstack/gymstack/internal/audit/domain"
	"github.com/gymstack/gymstack/internal/authorization"
	"github.com/gymstack/gymstack/internal/calendar"
	memberdomain "github.com/gymstack/gymstack/internal/member/domain"
	membershipdomain "github.com/gymstack/gymstack/internal/membership/domain"
	organizationdomain "github.com/gymstack/gymstack/internal/organization/domain"
	paymentdomain "github.com/gymstack/gymstack/internal/payment/domain"
	plandomain "github.com/gymstack/gymstack/internal/plan/domain"
	"github.com/gymstack/gymstack/internal/pricing"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrNotModifiable   = errors.New("membership_not_modifiable")
	ErrInvalidActorID  = errors.New("invalid_actor_id")
	ErrInvalidOrgScope = errors.New("invalid_org_id")
)

type apiError struct {
	status  int
	message string
}

// errorTable maps domain sentinels to a status and a message fit for
// staff-facing clients. Lookup is by errors.Is in declaration order.
var errorTable = []struct {
	err error
	apiError
}{
	{ErrUnauthorized, apiError{http.StatusUnauthorized, "Organization context is missing."}},
	{ErrInvalidOrgScope, apiError{http.StatusUnauthorized, "The X-Org-ID header is not a valid organization id."}},
	{ErrInvalidActorID, apiError{http.StatusBadRequest, "The X-Actor-ID header is not a valid staff id."}},
	{authorization.ErrMissingRole, apiError{http.StatusForbidden, "A staff role is required for this action."}},
	{authorization.ErrForbidden, apiError{http.StatusForbidden, "Your role is not allowed to perform this action."}},
	{ErrInvalidRequest, apiError{http.StatusBadRequest, "The request is invalid."}},
	{ErrNotModifiable, apiError{http.StatusConflict, "The membership is not in a state this action applies to."}},

	{membershipdomain.ErrInvalidOrganization, apiError{http.StatusUnauthorized, "Organization context is missing."}},
	{membershipdomain.ErrInvalidRequest, apiError{http.StatusBadRequest, "The request is invalid."}},
	{membershipdomain.ErrInvalidMembership, apiError{http.StatusBadRequest, "The membership id is invalid."}},
	{membershipdomain.ErrInvalidMember, apiError{http.StatusBadRequest, "The member id is invalid."}},
	{membershipdomain.ErrInvalidPlan, apiError{http.StatusBadRequest, "The plan id is invalid."}},
	{membershipdomain.ErrMembershipNotFound, apiError{http.StatusNotFound, "Membership not found."}},
	{membershipdomain.ErrInvalidDateRange, apiError{http.StatusUnprocessableEntity, "The end date must not be before the start date."}},
	{membershipdomain.ErrInvalidHoldRange, apiError{http.StatusUnprocessableEntity, "The hold must end after it starts."}},
	{membershipdomain.ErrInvalidQuota, apiError{http.StatusUnprocessableEntity, "The number of classes must not be negative."}},
	{membershipdomain.ErrInvalidInvoiceState, apiError{http.StatusUnprocessableEntity, "The invoice status is not recognised."}},
	{membershipdomain.ErrInvalidUpgradeFee, apiError{http.StatusUnprocessableEntity, "A paid upgrade needs a non-negative fee."}},
	{membershipdomain.ErrMembershipAlreadyCanceled, apiError{http.StatusConflict, "The membership is already canceled."}},
	{membershipdomain.ErrMembershipDeleted, apiError{http.StatusConflict, "The membership has been deleted."}},
	{membershipdomain.ErrMembershipNotCancelable, apiError{http.StatusConflict, "The membership cannot be canceled."}},
	{membershipdomain.ErrTransferTargetNotFound, apiError{http.StatusNotFound, "The member to transfer to was not found."}},
	{membershipdomain.ErrTransferSameMember, apiError{http.StatusUnprocessableEntity, "A membership cannot be transferred to its current holder."}},
	{membershipdomain.ErrTransferTargetArchived, apiError{http.StatusUnprocessableEntity, "The member to transfer to is archived."}},
	{membershipdomain.ErrTransferTargetHasMembership, apiError{http.StatusConflict, "The member to transfer to already holds this plan."}},
	{membershipdomain.ErrTransferMissingDates, apiError{http.StatusUnprocessableEntity, "A pro-rated transfer needs start and end dates."}},
	{membershipdomain.ErrTransferNoRemainingDays, apiError{http.StatusUnprocessableEntity, "The membership has no remaining days to transfer."}},
	{membershipdomain.ErrTransferInvalidPrice, apiError{http.StatusUnprocessableEntity, "A pro-rated transfer needs a positive price."}},
	{membershipdomain.ErrInvalidTransferFee, apiError{http.StatusUnprocessableEntity, "A paid transfer needs a non-negative fee."}},
	{membershipdomain.ErrInvalidPaymentMethod, apiError{http.StatusUnprocessableEntity, "The payment method is not recognised."}},

	{memberdomain.ErrMemberNotFound, apiError{http.StatusNotFound, "Member not found."}},
	{plandomain.ErrPlanNotFound, apiError{http.StatusNotFound, "Plan not found."}},
	{organizationdomain.ErrOrganizationNotFound, apiError{http.StatusNotFound, "Organization not found."}},
	{pricing.ErrInvalidDiscountMode, apiError{http.StatusBadRequest, "The discount mode must be none, auto or manual."}},
	{pricing.ErrNegativeManualDiscount, apiError{http.StatusBadRequest, "A manual discount cannot be negative."}},
	{calendar.ErrInvalidDate, apiError{http.StatusBadRequest, "Dates must be formatted YYYY-MM-DD."}},
	{calendar.ErrInvalidCycleUnit, apiError{http.StatusUnprocessableEntity, "The plan has an unknown cycle unit."}},
	{calendar.ErrInvalidTimezone, apiError{http.StatusUnprocessableEntity, "The organization timezone is not recognised."}},

	{auditdomain.ErrInvalidOrganization, apiError{http.StatusUnauthorized, "Organization context is missing."}},
	{auditdomain.ErrInvalidSubject, apiError{http.StatusBadRequest, "The note subject is invalid."}},

	{paymentdomain.ErrInvalidOrganization, apiError{http.StatusUnauthorized, "Organization context is missing."}},
	{paymentdomain.ErrInvalidCheckout, apiError{http.StatusBadRequest, "The checkout request is invalid."}},
	{paymentdomain.ErrNothingToPay, apiError{http.StatusUnprocessableEntity, "This plan is free; create the membership directly."}},
	{paymentdomain.ErrProviderUnavailable, apiError{http.StatusServiceUnavailable, "The payment provider is unavailable. Please try again shortly."}},
	{paymentdomain.ErrProviderRejected, apiError{http.StatusBadGateway, "The payment provider rejected the request."}},
	{paymentdomain.ErrInvalidResponse, apiError{http.StatusBadGateway, "The payment provider returned an unexpected response."}},
}

func lookupError(err error) (apiError, string) {
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			return entry.apiError, entry.err.Error()
		}
	}
	return apiError{http.StatusInternalServerError, "Something went wrong. Please try again."}, "internal_error"
}

// AbortWithError writes the mapped error response and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	mapped, code := lookupError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(mapped.status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": mapped.message,
		},
	})
}

func invalidRequestError() error {
	return ErrInvalidRequest
}
