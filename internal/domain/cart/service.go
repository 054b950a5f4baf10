// internal/domain/cart/service.go
package cart

import (
	"context"
	"fmt"

	"github.com/your-org/seasonal-storefront/internal/domain/catalog"
	"github.com/your-org/seasonal-storefront/internal/pkg/auth"
)

// Service handles cart business logic on top of the session registry
type Service struct {
	registry *Registry
	catalog  *catalog.Catalog
}

// NewService creates a new cart service
func NewService(registry *Registry, cat *catalog.Catalog) *Service {
	return &Service{
		registry: registry,
		catalog:  cat,
	}
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductID   int64  `json:"product_id" binding:"required"`
	DisplayName string `json:"display_name"`
	Quantity    int    `json:"quantity" binding:"omitempty,min=1,max=999"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,max=999"`
}

// Session returns the engine behind a session cookie
func (s *Service) Session(ctx context.Context, sessionID string, id auth.Identity) (*Engine, error) {
	engine, err := s.registry.Engine(ctx, sessionID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to open cart session: %w", err)
	}
	return engine, nil
}

// GetCart returns the current lines of a session
func (s *Service) GetCart(ctx context.Context, sessionID string, id auth.Identity) (Lines, error) {
	engine, err := s.Session(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	return engine.Lines(), nil
}

// AddToCart adds an item. Price and image always come from the catalog.
func (s *Service) AddToCart(ctx context.Context, sessionID string, id auth.Identity, req *AddToCartRequest) (Lines, error) {
	quote, err := s.catalog.Lookup(req.ProductID, req.DisplayName)
	if err != nil {
		return nil, err
	}

	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}

	engine, err := s.Session(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}

	line := Line{
		ProductID:   quote.ProductID,
		DisplayName: quote.DisplayName,
		UnitPrice:   quote.UnitPrice,
		ImageRef:    quote.ImageRef,
	}
	if err := engine.AddItem(ctx, line, qty); err != nil {
		return nil, err
	}
	return engine.Lines(), nil
}

// UpdateCartItem sets the quantity of a line; zero removes it
func (s *Service) UpdateCartItem(ctx context.Context, sessionID string, id auth.Identity, productID int64, displayName string, req *UpdateCartItemRequest) (Lines, error) {
	engine, err := s.Session(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	if err := engine.SetQuantity(ctx, productID, displayName, *req.Quantity); err != nil {
		return nil, err
	}
	return engine.Lines(), nil
}

// RemoveFromCart removes a line, or every variant when displayName is empty
func (s *Service) RemoveFromCart(ctx context.Context, sessionID string, id auth.Identity, productID int64, displayName string) (Lines, error) {
	engine, err := s.Session(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	if err := engine.RemoveItem(ctx, productID, displayName); err != nil {
		return nil, err
	}
	return engine.Lines(), nil
}

// ClearCart empties the cart
func (s *Service) ClearCart(ctx context.Context, sessionID string, id auth.Identity) error {
	engine, err := s.Session(ctx, sessionID, id)
	if err != nil {
		return err
	}
	return engine.Clear(ctx)
}

// RestoreCart brings back a cleared cart on explicit user request
func (s *Service) RestoreCart(ctx context.Context, sessionID string, id auth.Identity) (Lines, bool, error) {
	engine, err := s.Session(ctx, sessionID, id)
	if err != nil {
		return nil, false, err
	}
	restored, err := engine.Restore(ctx)
	if err != nil {
		return nil, false, err
	}
	return engine.Lines(), restored, nil
}

// GetCartItemCount returns the sum of quantities in the cart
func (s *Service) GetCartItemCount(ctx context.Context, sessionID string, id auth.Identity) (int, error) {
	engine, err := s.Session(ctx, sessionID, id)
	if err != nil {
		return 0, err
	}
	return engine.ItemCount(), nil
}
