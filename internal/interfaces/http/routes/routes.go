// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/interfaces/http/handlers"
	"github.com/your-org/seasonal-storefront/internal/interfaces/http/middleware"
	"github.com/your-org/seasonal-storefront/internal/pkg/auth"
)

// Handlers groups the HTTP handlers the API mounts
type Handlers struct {
	Product  *handlers.ProductHandler
	Cart     *handlers.CartHandler
	Checkout *handlers.CheckoutHandler
	Order    *handlers.OrderHandler
	Receipt  *handlers.ReceiptHandler
	Payment  *handlers.PaymentHandler
}

// SetupProductRoutes sets up catalog routes
func SetupProductRoutes(rg *gin.RouterGroup, h *handlers.ProductHandler) {
	products := rg.Group("/products")
	{
		products.GET("", h.GetProducts)
		products.GET("/:id", h.GetProduct)
	}
}

// SetupCartRoutes sets up cart routes. Guests have carts too.
func SetupCartRoutes(rg *gin.RouterGroup, h *handlers.CartHandler, jwtManager *auth.JWTManager, cfg *config.Config) {
	cart := rg.Group("/cart")
	cart.Use(middleware.OptionalAuthMiddleware(jwtManager), middleware.Session(cfg))
	{
		cart.GET("", h.GetCart)
		cart.GET("/count", h.GetCartItemCount)
		cart.POST("/items", h.AddToCart)
		cart.PUT("/items/:id", h.UpdateCartItem)
		cart.DELETE("/items/:id", h.RemoveFromCart)
		cart.DELETE("", h.ClearCart)
		cart.POST("/restore", h.RestoreCart)
	}
}

// SetupCheckoutRoutes sets up checkout routes. Authentication is checked by
// the checkout itself so guests get a sign-in redirect.
func SetupCheckoutRoutes(rg *gin.RouterGroup, h *handlers.CheckoutHandler, jwtManager *auth.JWTManager, cfg *config.Config) {
	checkout := rg.Group("/checkout")
	checkout.Use(middleware.OptionalAuthMiddleware(jwtManager), middleware.Session(cfg))
	{
		checkout.GET("/summary", h.GetCheckoutSummary)
		checkout.POST("", h.Submit)
		checkout.GET("/attempts/:id", h.GetAttempt)
		checkout.POST("/attempts/:id/resume", h.Resume)
	}
}

// SetupOrderRoutes sets up order routes
func SetupOrderRoutes(rg *gin.RouterGroup, h *handlers.OrderHandler, receipts *handlers.ReceiptHandler, jwtManager *auth.JWTManager) {
	orders := rg.Group("/orders")
	orders.Use(middleware.AuthMiddleware(jwtManager))
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.GetOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/status", h.UpdateOrderStatus)
		orders.POST("/:id/cancel", h.CancelOrder)
		orders.GET("/:id/receipt", receipts.GetReceipt)
		orders.GET("/:id/receipt/preview", receipts.GetReceiptPreview)
	}
}

// SetupWebhookRoutes sets up webhook routes (no auth, signature verified)
func SetupWebhookRoutes(rg *gin.RouterGroup, h *handlers.PaymentHandler) {
	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/payment", h.WebhookHandler)
	}
}

// SetupRoutes mounts every route group on the API group
func SetupRoutes(rg *gin.RouterGroup, h Handlers, jwtManager *auth.JWTManager, cfg *config.Config) {
	SetupProductRoutes(rg, h.Product)
	SetupCartRoutes(rg, h.Cart, jwtManager, cfg)
	SetupCheckoutRoutes(rg, h.Checkout, jwtManager, cfg)
	SetupOrderRoutes(rg, h.Order, h.Receipt, jwtManager)
	SetupWebhookRoutes(rg, h.Payment)
}
