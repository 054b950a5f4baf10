// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
	"github.com/your-org/seasonal-storefront/internal/domain/checkout"
	"github.com/your-org/seasonal-storefront/internal/interfaces/http/middleware"
)

// CheckoutHandler handles checkout endpoints
type CheckoutHandler struct {
	orchestrator   *checkout.Orchestrator
	cartService    *cart.Service
	signInURL      string
	publishableKey string
	logger         *logrus.Logger
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(orchestrator *checkout.Orchestrator, cartService *cart.Service, cfg *config.Config, logger *logrus.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		orchestrator:   orchestrator,
		cartService:    cartService,
		signInURL:      cfg.Checkout.SignInURL,
		publishableKey: cfg.Payment.PublishableKey,
		logger:         logger,
	}
}

// GetCheckoutSummary handles GET /checkout/summary
func (h *CheckoutHandler) GetCheckoutSummary(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	lines, err := h.cartService.GetCart(c.Request.Context(), middleware.SessionIDFromContext(c), identity)
	if err != nil {
		h.fail(c, err)
		return
	}

	summary, err := h.orchestrator.Summary(identity, lines)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Checkout summary retrieved successfully",
		"data":            summary,
		"publishable_key": h.publishableKey,
	})
}

// Submit handles POST /checkout
func (h *CheckoutHandler) Submit(c *gin.Context) {
	var form checkout.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	identity := middleware.IdentityFromContext(c)
	engine, err := h.cartService.Session(c.Request.Context(), middleware.SessionIDFromContext(c), identity)
	if err != nil {
		h.fail(c, err)
		return
	}

	attempt, err := h.orchestrator.Submit(c.Request.Context(), identity, engine, form)
	if err != nil {
		h.failAttempt(c, attempt, err)
		return
	}

	h.respondAttempt(c, attempt)
}

// GetAttempt handles GET /checkout/attempts/:id
func (h *CheckoutHandler) GetAttempt(c *gin.Context) {
	attempt, err := h.orchestrator.GetAttempt(middleware.IdentityFromContext(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout attempt retrieved successfully",
		"data":    attempt,
	})
}

// Resume handles POST /checkout/attempts/:id/resume
func (h *CheckoutHandler) Resume(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)
	engine, err := h.cartService.Session(c.Request.Context(), middleware.SessionIDFromContext(c), identity)
	if err != nil {
		h.fail(c, err)
		return
	}

	attempt, err := h.orchestrator.Resume(c.Request.Context(), identity, c.Param("id"), engine)
	if err != nil {
		h.failAttempt(c, attempt, err)
		return
	}

	h.respondAttempt(c, attempt)
}

func (h *CheckoutHandler) respondAttempt(c *gin.Context, attempt *checkout.Attempt) {
	switch attempt.State {
	case checkout.StateSucceeded:
		c.JSON(http.StatusOK, gin.H{
			"message": "Order placed successfully",
			"data":    attempt,
		})
	case checkout.StateRequiresAction:
		c.JSON(http.StatusAccepted, gin.H{
			"message": "Additional verification required to complete payment",
			"data":    attempt,
		})
	default:
		c.JSON(http.StatusAccepted, gin.H{
			"message": "Checkout in progress",
			"data":    attempt,
		})
	}
}

// failAttempt reports a checkout error, including the running attempt when
// another request is still working on it
func (h *CheckoutHandler) failAttempt(c *gin.Context, attempt *checkout.Attempt, err error) {
	if attempt != nil && errors.Is(err, checkout.ErrCheckoutInProgress) {
		c.JSON(http.StatusConflict, gin.H{
			"error":      err.Error(),
			"attempt_id": attempt.ID,
			"data":       attempt,
		})
		return
	}
	h.fail(c, err)
}

func (h *CheckoutHandler) fail(c *gin.Context, err error) {
	var verr *checkout.ValidationError
	var perr *checkout.PaymentError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "Please correct the highlighted fields",
			"fields": verr.Fields,
		})
	case errors.As(err, &perr):
		status := http.StatusPaymentRequired
		if perr.Code == "rate_limit" {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error": perr.Message,
			"code":  perr.Code,
		})
	case errors.Is(err, checkout.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":    err.Error(),
			"redirect": h.signInURL,
		})
	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrPriceIntegrity), errors.Is(err, checkout.ErrCheckoutInProgress), errors.Is(err, checkout.ErrNothingToResume):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrRetryable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": checkout.ErrRetryable.Error()})
	default:
		h.logger.WithError(err).WithField("user_id", middleware.IdentityFromContext(c).UserID).Error("Checkout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": checkout.ErrRetryable.Error()})
	}
}
