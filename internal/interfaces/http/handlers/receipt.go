// internal/interfaces/http/handlers/receipt.go
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/interfaces/http/middleware"
	"github.com/your-org/seasonal-storefront/internal/pkg/pdf"
)

// ReceiptRenderer produces receipts for paid orders
type ReceiptRenderer interface {
	RenderReceiptHTML(o *order.Order) (string, error)
	GenerateReceipt(o *order.Order) (*bytes.Buffer, error)
}

// ReceiptHandler serves receipts for the caller's paid orders
type ReceiptHandler struct {
	orders   OrderService
	receipts ReceiptRenderer
	logger   *logrus.Logger
}

// NewReceiptHandler creates a new receipt handler
func NewReceiptHandler(orders OrderService, receipts ReceiptRenderer, logger *logrus.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		orders:   orders,
		receipts: receipts,
		logger:   logger,
	}
}

// GetReceipt handles GET /orders/:id/receipt
func (h *ReceiptHandler) GetReceipt(c *gin.Context) {
	o, ok := h.paidOrder(c)
	if !ok {
		return
	}

	buf, err := h.receipts.GenerateReceipt(o)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", o.ID).Error("Failed to generate receipt")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate receipt",
		})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%s.pdf", o.OrderNumber))
	c.Header("Content-Length", strconv.Itoa(buf.Len()))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// GetReceiptPreview handles GET /orders/:id/receipt/preview
func (h *ReceiptHandler) GetReceiptPreview(c *gin.Context) {
	o, ok := h.paidOrder(c)
	if !ok {
		return
	}

	html, err := h.receipts.RenderReceiptHTML(o)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", o.ID).Error("Failed to render receipt")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to render receipt",
		})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (h *ReceiptHandler) paidOrder(c *gin.Context) (*order.Order, bool) {
	userID, _ := middleware.GetUserIDFromContext(c)

	o, err := h.orders.GetUserOrder(c.Request.Context(), c.Param("id"), userID)
	if errors.Is(err, order.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Order not found",
		})
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).WithField("order_id", c.Param("id")).Error("Failed to load order for receipt")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve order",
		})
		return nil, false
	}
	if o.Status != order.OrderStatusPaid {
		c.JSON(http.StatusConflict, gin.H{
			"error": pdf.ErrNotPaid.Error(),
		})
		return nil, false
	}
	return o, true
}
