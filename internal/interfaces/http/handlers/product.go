// internal/interfaces/http/handlers/product.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/seasonal-storefront/internal/domain/catalog"
)

// ProductHandler serves the read-only seasonal catalog
type ProductHandler struct {
	catalog *catalog.Catalog
}

// NewProductHandler creates a new product handler
func NewProductHandler(cat *catalog.Catalog) *ProductHandler {
	return &ProductHandler{catalog: cat}
}

// GetProducts handles GET /products?category=
func (h *ProductHandler) GetProducts(c *gin.Context) {
	category := c.Query("category")

	products := make([]catalog.Product, 0)
	for _, p := range h.catalog.Products() {
		if category == "" || p.Category == category {
			products = append(products, p)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Products retrieved successfully",
		"data":    products,
	})
}

// GetProduct handles GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product ID",
		})
		return
	}

	p, err := h.catalog.Product(id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Product not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product retrieved successfully",
		"data":    p,
	})
}
