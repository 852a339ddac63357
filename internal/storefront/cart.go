package storefront

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartBackend persists cart lines for an explicit user.
type CartBackend interface {
	Items(ctx context.Context, user models.User) ([]models.CartItem, error)
	Add(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error)
	Update(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error)
	Remove(ctx context.Context, user models.User, productID string) error
}

// CartStore is the local copy of the signed-in user's cart. Mutations are
// applied locally first, then persisted; a failed write rolls the line back
// and a successful one is replaced by the line the backend returned.
//
// Each line carries a revision. A rollback or reconciliation only touches a
// line whose revision is unchanged, so an older write finishing late cannot
// undo a newer one.
type CartStore struct {
	backend  CartBackend
	identity Identity
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	owner string
	lines map[string]models.CartItem
	revs  map[string]uint64
	rev   uint64
}

// NewCartStore creates an empty store
func NewCartStore(backend CartBackend, identity Identity) *CartStore {
	return &CartStore{
		backend:  backend,
		identity: identity,
		logger:   util.GetLogger(),
		now:      time.Now,
		lines:    make(map[string]models.CartItem),
		revs:     make(map[string]uint64),
	}
}

// Load replaces the local lines with the backend's.
func (s *CartStore) Load(ctx context.Context) ([]models.CartItem, error) {
	user, err := signedIn(s.identity, "view cart")
	if err != nil {
		return nil, err
	}
	items, err := s.backend.Items(ctx, user)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = user.ID
	s.lines = make(map[string]models.CartItem, len(items))
	s.revs = make(map[string]uint64, len(items))
	for _, it := range items {
		s.lines[it.ProductID] = it
	}
	return s.itemsLocked(), nil
}

// Items returns the lines in the order they were added.
func (s *CartStore) Items() []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

func (s *CartStore) itemsLocked() []models.CartItem {
	out := make([]models.CartItem, 0, len(s.lines))
	for _, it := range s.lines {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// Count is the number of units across all lines.
func (s *CartStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.lines {
		n += it.Quantity
	}
	return n
}

// Total prices the cart at the products' current prices.
func (s *CartStore) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, it := range s.lines {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Quantity of a product in the cart, 0 when absent.
func (s *CartStore) Quantity(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[productID].Quantity
}

// Reset drops the local lines, e.g. after a checkout consumed them.
func (s *CartStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = make(map[string]models.CartItem)
	s.revs = make(map[string]uint64)
}

// user resolves the caller and clears lines cached for someone else.
func (s *CartStore) user(action string) (models.User, error) {
	user, err := signedIn(s.identity, action)
	if err != nil {
		return user, err
	}
	s.mu.Lock()
	if s.owner != user.ID {
		s.owner = user.ID
		s.lines = make(map[string]models.CartItem)
		s.revs = make(map[string]uint64)
	}
	s.mu.Unlock()
	return user, nil
}

type lineState struct {
	item    models.CartItem
	present bool
	rev     uint64
}

// setLocked applies a local change and returns what it replaced.
func (s *CartStore) setLocked(productID string, item *models.CartItem) (prev lineState, rev uint64) {
	prev.item, prev.present = s.lines[productID]
	prev.rev = s.revs[productID]
	s.rev++
	rev = s.rev
	s.revs[productID] = rev
	if item == nil {
		delete(s.lines, productID)
	} else {
		s.lines[productID] = *item
	}
	return prev, rev
}

// settle reconciles or rolls back a line if nothing newer touched it.
func (s *CartStore) settle(productID string, rev uint64, prev lineState, server *models.CartItem, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revs[productID] != rev {
		return
	}
	switch {
	case failed && prev.present:
		s.lines[productID] = prev.item
	case failed:
		delete(s.lines, productID)
	case server == nil:
		delete(s.lines, productID)
		return
	default:
		line := *server
		if line.Product.ID == "" {
			line.Product = s.lines[productID].Product
		}
		s.lines[productID] = line
	}
}

// Add puts quantity more of p in the cart, creating the line if needed.
func (s *CartStore) Add(ctx context.Context, p models.Product, quantity int) (*models.CartItem, error) {
	user, err := s.user("add to cart")
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, apperr.Invalid("product id is required")
	}
	if quantity < 1 {
		return nil, apperr.Invalid("quantity must be at least 1")
	}

	s.mu.Lock()
	line, ok := s.lines[p.ID]
	if !ok {
		line = models.CartItem{UserID: user.ID, ProductID: p.ID, CreatedAt: s.now()}
	}
	line.Product = p
	line.Quantity += quantity
	line.UpdatedAt = s.now()
	prev, rev := s.setLocked(p.ID, &line)
	s.mu.Unlock()

	saved, err := s.backend.Add(ctx, user, p.ID, quantity)
	s.settle(p.ID, rev, prev, saved, err != nil)
	if err != nil {
		s.logger.Warn("Cart add rolled back", zap.String("product_id", p.ID), zap.Error(err))
		return nil, err
	}
	return saved, nil
}

// Update sets a line's quantity. Zero removes the line.
func (s *CartStore) Update(ctx context.Context, productID string, quantity int) (*models.CartItem, error) {
	if quantity < 0 {
		return nil, apperr.Invalid("quantity cannot be negative")
	}
	if quantity == 0 {
		return nil, s.Remove(ctx, productID)
	}
	user, err := s.user("update cart")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	line, ok := s.lines[productID]
	if !ok {
		s.mu.Unlock()
		return nil, apperr.NotFound("cart item", productID)
	}
	line.Quantity = quantity
	line.UpdatedAt = s.now()
	prev, rev := s.setLocked(productID, &line)
	s.mu.Unlock()

	saved, err := s.backend.Update(ctx, user, productID, quantity)
	s.settle(productID, rev, prev, saved, err != nil)
	if err != nil {
		s.logger.Warn("Cart update rolled back", zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}
	return saved, nil
}

// Remove deletes a line.
func (s *CartStore) Remove(ctx context.Context, productID string) error {
	user, err := s.user("remove from cart")
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev, rev := s.setLocked(productID, nil)
	s.mu.Unlock()

	if err := s.backend.Remove(ctx, user, productID); err != nil {
		s.settle(productID, rev, prev, nil, true)
		s.logger.Warn("Cart remove rolled back", zap.String("product_id", productID), zap.Error(err))
		return err
	}
	return nil
}
