// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body
const SignatureHeader = "X-Processor-Signature"

// Processor webhook event types
const (
	EventAuthorizationSucceeded = "authorization.succeeded"
	EventAuthorizationCanceled  = "authorization.canceled"
)

// PaymentWebhookEvent is a processor notification about an authorization
type PaymentWebhookEvent struct {
	ID   string                `json:"id"`
	Type string                `json:"type"`
	Data payment.Authorization `json:"data"`
}

// PaymentHandler receives processor webhooks. They repair orders whose
// status write-back never arrived, ahead of the reconciler.
type PaymentHandler struct {
	orders        OrderService
	webhookSecret string
	allowUnsigned bool
	logger        *logrus.Logger
}

// NewPaymentHandler creates a new payment handler. Unsigned webhooks are only
// accepted when no secret is set and allowUnsigned is true.
func NewPaymentHandler(orders OrderService, webhookSecret string, allowUnsigned bool, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		orders:        orders,
		webhookSecret: webhookSecret,
		allowUnsigned: allowUnsigned,
		logger:        logger,
	}
}

// WebhookHandler handles POST /webhooks/payment
func (h *PaymentHandler) WebhookHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	if !h.verifyWebhookSignature(body, c.GetHeader(SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid signature",
		})
		return
	}

	var event PaymentWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON payload",
		})
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"event_id":         event.ID,
		"event_type":       event.Type,
		"authorization_id": event.Data.ID,
		"order_id":         event.Data.OrderID,
	})

	var req order.StatusUpdateRequest
	switch event.Type {
	case EventAuthorizationSucceeded:
		req = order.StatusUpdateRequest{Status: order.OrderStatusPaid, AuthorizationID: event.Data.ID, By: "processor"}
	case EventAuthorizationCanceled:
		req = order.StatusUpdateRequest{Status: order.OrderStatusFailed, AuthorizationID: event.Data.ID, Reason: "authorization canceled by processor", By: "processor"}
	default:
		log.Info("Ignoring unhandled payment webhook")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if event.Data.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing order id",
		})
		return
	}

	_, err = h.orders.UpdateStatus(c.Request.Context(), event.Data.OrderID, req)
	switch {
	case err == nil:
		log.Info("Order updated from payment webhook")
		c.JSON(http.StatusOK, gin.H{"status": "received"})
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrAuthorizationMismatch):
		// redelivery cannot fix these
		log.WithError(err).Warn("Payment webhook not applied")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		log.WithError(err).Error("Payment webhook failed, processor will redeliver")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process webhook",
		})
	}
}

func (h *PaymentHandler) verifyWebhookSignature(body []byte, signature string) bool {
	if h.webhookSecret == "" {
		return h.allowUnsigned
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSignature := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}
