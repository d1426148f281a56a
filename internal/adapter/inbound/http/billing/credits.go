package billinghttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thumbforge/server/internal/port/inbound"
)

// CreditsHandler handles credits HTTP requests.
type CreditsHandler struct {
	billingDomain inbound.BillingDomain
	logger        *zap.Logger
}

// NewCreditsHandler creates a new credits handler.
func NewCreditsHandler(billingDomain inbound.BillingDomain, logger *zap.Logger) *CreditsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditsHandler{billingDomain: billingDomain, logger: logger.Named("billing_http")}
}

// RegisterRoutes registers credits routes.
func (h *CreditsHandler) RegisterRoutes(r *gin.RouterGroup) {
	credits := r.Group("/credits")
	{
		credits.GET("/balance", h.GetBalance)
	}
}

// GetBalance handles GET /credits/balance.
//
//	@Summary		Get credit balance
//	@Description	Returns the caller's spendable generation credits
//	@Tags			Billing
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	inbound.CreditBalanceOutput
//	@Failure		401	{object}	apperrors.ErrorResponse	"Unauthorized"
//	@Failure		503	{object}	apperrors.ErrorResponse	"Billing unavailable"
//	@Router			/credits/balance [get]
func (h *CreditsHandler) GetBalance(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	balance, err := h.billingDomain.GetBalance(c.Request.Context(), userID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// Compile-time interface check
var _ inbound.BillingHttpPort = (*CreditsHandler)(nil)
