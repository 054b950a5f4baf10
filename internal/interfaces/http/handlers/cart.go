// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
	"github.com/your-org/seasonal-storefront/internal/domain/catalog"
	"github.com/your-org/seasonal-storefront/internal/interfaces/http/middleware"
)

// CartHandler handles cart endpoints
type CartHandler struct {
	cartService *cart.Service
	logger      *logrus.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *cart.Service, logger *logrus.Logger) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		logger:      logger,
	}
}

// CartResponse is the cart as the storefront renders it
type CartResponse struct {
	Items     cart.Lines `json:"items"`
	ItemCount int        `json:"item_count"`
	Subtotal  string     `json:"subtotal"`
}

func newCartResponse(lines cart.Lines) CartResponse {
	if lines == nil {
		lines = cart.Lines{}
	}
	return CartResponse{
		Items:     lines,
		ItemCount: lines.ItemCount(),
		Subtotal:  lines.Subtotal().StringFixed(2),
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	lines, err := h.cartService.GetCart(c.Request.Context(), middleware.SessionIDFromContext(c), middleware.IdentityFromContext(c))
	if err != nil {
		h.fail(c, err, "Failed to retrieve cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    newCartResponse(lines),
	})
}

// GetCartItemCount handles GET /cart/count
func (h *CartHandler) GetCartItemCount(c *gin.Context) {
	count, err := h.cartService.GetCartItemCount(c.Request.Context(), middleware.SessionIDFromContext(c), middleware.IdentityFromContext(c))
	if err != nil {
		h.fail(c, err, "Failed to retrieve cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart count retrieved successfully",
		"data":    gin.H{"count": count},
	})
}

// AddToCart handles POST /cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	var req cart.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	lines, err := h.cartService.AddToCart(c.Request.Context(), middleware.SessionIDFromContext(c), middleware.IdentityFromContext(c), &req)
	if err != nil {
		h.fail(c, err, "Failed to add item to cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item added to cart successfully",
		"data":    newCartResponse(lines),
	})
}

// UpdateCartItem handles PUT /cart/items/:id?display_name=
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	var req cart.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	lines, err := h.cartService.UpdateCartItem(c.Request.Context(), middleware.SessionIDFromContext(c), middleware.IdentityFromContext(c), productID, c.Query("display_name"), &req)
	if err != nil {
		h.fail(c, err, "Failed to update cart item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item updated successfully",
		"data":    newCartResponse(lines),
	})
}

// RemoveFromCart handles DELETE /cart/items/:id?display_name=
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	lines, err := h.cartService.RemoveFromCart(c.Request.Context(), middleware.SessionIDFromContext(c), middleware.IdentityFromContext(c), productID, c.Query("display_name"))
	if err != nil {
		h.fail(c, err, "Failed to remove item from cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item removed from cart successfully",
		"data":    newCartResponse(lines),
	})
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	if err := h.cartService.ClearCart(c.Request.Context(), middleware.SessionIDFromContext(c), middleware.IdentityFromContext(c)); err != nil {
		h.fail(c, err, "Failed to clear cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart cleared successfully",
		"data":    newCartResponse(nil),
	})
}

// RestoreCart handles POST /cart/restore
func (h *CartHandler) RestoreCart(c *gin.Context) {
	lines, restored, err := h.cartService.RestoreCart(c.Request.Context(), middleware.SessionIDFromContext(c), middleware.IdentityFromContext(c))
	if err != nil {
		h.fail(c, err, "Failed to restore cart")
		return
	}

	message := "Cart restored successfully"
	if !restored {
		message = "Nothing to restore"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  message,
		"restored": restored,
		"data":     newCartResponse(lines),
	})
}

func parseProductID(c *gin.Context) (int64, bool) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product ID",
		})
		return 0, false
	}
	return productID, true
}

func (h *CartHandler) fail(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, catalog.ErrVariantNotFound), errors.Is(err, cart.ErrLineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidLine), errors.Is(err, cart.ErrAmbiguousLine):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).WithField("session_id", middleware.SessionIDFromContext(c)).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
