// internal/interfaces/http/handlers/order.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
	"github.com/your-org/seasonal-storefront/internal/interfaces/http/middleware"
)

// OrderService is the order surface the HTTP layer exposes
type OrderService interface {
	CreateOrder(ctx context.Context, req *order.CreateOrderRequest) (*order.CreateOrderResult, error)
	UpdateStatus(ctx context.Context, orderID string, req order.StatusUpdateRequest) (*order.Order, error)
	GetUserOrder(ctx context.Context, id, userID string) (*order.Order, error)
	ListOrders(ctx context.Context, userID string, page, limit int) (*order.OrderResponse, error)
	CancelOrder(ctx context.Context, id, userID, reason string) (*order.Order, error)
}

// OrderHandler handles order endpoints
type OrderHandler struct {
	orderService OrderService
	logger       *logrus.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService OrderService, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// CancelOrderRequest is the body of POST /orders/:id/cancel
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// CreateOrder handles POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req order.CreateOrderRequest
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
			"code":    order.ErrorCode(order.ErrInvalidRequest),
		})
		return
	}
	req.UserID = userID

	result, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err, "Failed to create order")
		return
	}

	status := http.StatusCreated
	message := "Order created successfully"
	if result.Existing {
		status = http.StatusOK
		message = "Order already exists"
	}
	c.JSON(status, gin.H{
		"message": message,
		"data":    result,
	})
}

// UpdateOrderStatus handles POST /orders/:id/status
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req order.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
			"code":    order.ErrorCode(order.ErrInvalidStatus),
		})
		return
	}
	req.By = userID

	if _, err := h.orderService.GetUserOrder(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.fail(c, err, "Failed to update order status")
		return
	}

	updated, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, err, "Failed to update order status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
		"data":    updated,
	})
}

// GetOrders handles GET /orders (user's own orders)
func (h *OrderHandler) GetOrders(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	page := 1
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	response, err := h.orderService.ListOrders(c.Request.Context(), userID, page, limit)
	if err != nil {
		h.fail(c, err, "Failed to retrieve orders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    response,
	})
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	o, err := h.orderService.GetUserOrder(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.fail(c, err, "Failed to retrieve order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    o,
	})
}

// CancelOrder handles POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request data",
				"details": err.Error(),
			})
			return
		}
	}

	o, err := h.orderService.CancelOrder(c.Request.Context(), c.Param("id"), userID, req.Reason)
	if err != nil {
		h.fail(c, err, "Failed to cancel order")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order cancelled successfully",
		"data":    o,
	})
}

// fail maps order errors to a status and a machine-readable code
func (h *OrderHandler) fail(c *gin.Context, err error, fallback string) {
	code := order.ErrorCode(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, order.ErrInvalidRequest), errors.Is(err, order.ErrInvalidStatus):
		status = http.StatusBadRequest
	case errors.Is(err, order.ErrUnknownProduct):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrPriceMismatch),
		errors.Is(err, order.ErrDuplicateOrder),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrPaymentNotSettled),
		errors.Is(err, order.ErrAuthorizationMismatch),
		errors.Is(err, order.ErrPaymentCaptured):
		status = http.StatusConflict
	case errors.Is(err, payment.ErrProcessorUnavailable), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("order_id", c.Param("id")).Error(fallback)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  code,
	})
}
