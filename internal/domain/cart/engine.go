package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/pkg/auth"
)

// MaxLineQuantity caps the quantity of a single cart line
const MaxLineQuantity = 999

var (
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 999")
	ErrInvalidLine     = errors.New("line must have a product id, display name and non-negative price")
	ErrLineNotFound    = errors.New("cart line not found")
	ErrAmbiguousLine   = errors.New("product has several variants in the cart, display name required")
)

// Engine owns the in-memory cart of one browsing context and keeps it in sync
// with the Store. Every mutation is persisted before it becomes visible.
type Engine struct {
	mu       sync.Mutex
	store    Store
	logger   *logrus.Entry
	lines    Lines
	identity auth.Identity

	// cleared is set by Clear and dropped by the next local mutation or Restore.
	// While set, neither auth transitions nor other contexts may refill the cart.
	cleared bool

	lastUsed time.Time
	now      func() time.Time
}

// NewEngine hydrates an engine from the store. Only a present, non-empty
// stored cart is adopted; a corrupt value is logged and treated as absent.
func NewEngine(ctx context.Context, store Store, identity auth.Identity, logger *logrus.Entry) (*Engine, error) {
	e := &Engine{
		store:    store,
		logger:   logger,
		identity: identity,
		now:      time.Now,
	}
	e.lastUsed = e.now()

	snap, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrCorruptCart):
		logger.WithError(err).Warn("Ignoring corrupt stored cart")
	case err != nil:
		return nil, err
	case snap.State == StatePresent:
		e.lines = snap.Lines
	}
	return e, nil
}

// commit persists next and, on success, makes it the current cart
func (e *Engine) commit(ctx context.Context, next Lines) error {
	if err := e.store.Save(ctx, next); err != nil {
		return err
	}
	e.lines = next
	e.cleared = false
	e.lastUsed = e.now()
	return nil
}

// AddItem adds qty of line, merging into an existing line with the same key.
// The unit price and image of the incoming line win.
func (e *Engine) AddItem(ctx context.Context, line Line, qty int) error {
	if qty < 1 || qty > MaxLineQuantity {
		return ErrInvalidQuantity
	}
	if line.ProductID <= 0 || line.DisplayName == "" || line.UnitPrice.IsNegative() {
		return ErrInvalidLine
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.lines.Clone()
	merged := false
	for i := range next {
		if next[i].Key() == line.Key() {
			if next[i].Quantity > MaxLineQuantity-qty {
				return ErrInvalidQuantity
			}
			next[i].Quantity += qty
			next[i].UnitPrice = line.UnitPrice
			next[i].ImageRef = line.ImageRef
			merged = true
			break
		}
	}
	if !merged {
		line.Quantity = qty
		next = append(next, line)
	}
	return e.commit(ctx, next)
}

// RemoveItem removes the matching line. An empty display name removes every
// variant of the product. Removing something absent still persists.
func (e *Engine) RemoveItem(ctx context.Context, productID int64, displayName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commit(ctx, e.without(productID, displayName))
}

func (e *Engine) without(productID int64, displayName string) Lines {
	next := make(Lines, 0, len(e.lines))
	for _, l := range e.lines {
		if !l.matches(productID, displayName) {
			next = append(next, l)
		}
	}
	return next
}

// SetQuantity sets the quantity of a line. A quantity of zero or less removes it.
func (e *Engine) SetQuantity(ctx context.Context, productID int64, displayName string, qty int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if qty <= 0 {
		return e.commit(ctx, e.without(productID, displayName))
	}
	if qty > MaxLineQuantity {
		return ErrInvalidQuantity
	}

	idx := -1
	for i, l := range e.lines {
		if !l.matches(productID, displayName) {
			continue
		}
		if idx >= 0 {
			return ErrAmbiguousLine
		}
		idx = i
	}
	if idx < 0 {
		return fmt.Errorf("%w: product %d %q", ErrLineNotFound, productID, displayName)
	}

	next := e.lines.Clone()
	next[idx].Quantity = qty
	return e.commit(ctx, next)
}

// Clear empties the cart and tombstones the store. Calling it again is harmless.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	e.lines = nil
	e.cleared = true
	e.lastUsed = e.now()
	return nil
}

// Restore is the explicit recovery path after Clear. It adopts the stored cart
// or, when the store holds a tombstone, the cart that Clear replaced. It does
// nothing when the local cart is not empty.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.lines) > 0 {
		return false, nil
	}

	snap, err := e.store.Load(ctx)
	if err != nil && !errors.Is(err, ErrCorruptCart) {
		return false, err
	}

	candidate := snap.Lines
	if snap.State != StatePresent {
		candidate, err = e.store.LoadUndo(ctx)
		if err != nil && !errors.Is(err, ErrCorruptCart) {
			return false, err
		}
	}
	if len(candidate) == 0 {
		e.cleared = false
		return false, nil
	}

	if err := e.commit(ctx, candidate); err != nil {
		return false, err
	}
	if err := e.store.DropUndo(ctx); err != nil {
		e.logger.WithError(err).Warn("Failed to drop undo cart after restore")
	}
	return true, nil
}

// ObserveIdentity records the identity seen on a request and runs
// OnAuthChanged when it differs from the previous one.
func (e *Engine) ObserveIdentity(ctx context.Context, id auth.Identity) (bool, error) {
	e.mu.Lock()
	same := e.identity.SameAs(id)
	e.mu.Unlock()
	if same {
		return false, nil
	}
	return e.OnAuthChanged(ctx, id)
}

// OnAuthChanged may restore the stored cart after a sign-in or sign-out. It
// adopts only when the local cart is empty, the store holds a non-empty cart,
// and the user has not explicitly cleared since their last change.
func (e *Engine) OnAuthChanged(ctx context.Context, id auth.Identity) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.identity = id
	if len(e.lines) > 0 || e.cleared {
		return false, nil
	}

	snap, err := e.store.Load(ctx)
	if errors.Is(err, ErrCorruptCart) {
		e.logger.WithError(err).Warn("Ignoring corrupt stored cart on auth change")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if snap.State != StatePresent {
		return false, nil
	}

	e.lines = snap.Lines
	e.logger.WithField("lines", len(snap.Lines)).Debug("Restored stored cart after auth change")
	return true, nil
}

// OnStorageChanged applies a write made by another context. A tombstone is
// never adopted, and nothing is adopted over a non-empty or cleared cart.
func (e *Engine) OnStorageChanged(event ChangeEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if event.Tombstone || len(event.Lines) == 0 {
		return false
	}
	if len(e.lines) > 0 || e.cleared {
		return false
	}
	e.lines = event.Lines.Clone()
	return true
}

// Quantity returns the quantity of a line, or the sum over all variants of the
// product when displayName is empty. Absent lines have quantity 0.
func (e *Engine) Quantity(productID int64, displayName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := 0
	for _, l := range e.lines {
		if l.matches(productID, displayName) {
			total += l.Quantity
		}
	}
	return total
}

// Lines returns a snapshot of the cart
func (e *Engine) Lines() Lines {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines.Clone()
}

// ItemCount is the sum of quantities
func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines.ItemCount()
}

// Subtotal is the sum of line totals
func (e *Engine) Subtotal() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines.Subtotal()
}

// Empty reports whether the cart has no lines
func (e *Engine) Empty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lines) == 0
}

// Cleared reports whether the cart was explicitly cleared since the last mutation
func (e *Engine) Cleared() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleared
}

// Identity returns the last identity observed
func (e *Engine) Identity() auth.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

func (e *Engine) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

func (e *Engine) touch() {
	e.mu.Lock()
	e.lastUsed = e.now()
	e.mu.Unlock()
}
