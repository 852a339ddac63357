package storefront

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// WishlistBackend persists wishlist entries for an explicit user.
type WishlistBackend interface {
	Items(ctx context.Context, user models.User) ([]models.WishlistItem, error)
	Add(ctx context.Context, user models.User, productID string) (*models.WishlistItem, error)
	Remove(ctx context.Context, user models.User, productID string) error
}

// WishlistStore is the local copy of the signed-in user's wishlist. It
// follows the same optimistic write and revision rules as CartStore.
type WishlistStore struct {
	backend  WishlistBackend
	identity Identity
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	owner   string
	entries map[string]models.WishlistItem
	revs    map[string]uint64
	rev     uint64
}

func NewWishlistStore(backend WishlistBackend, identity Identity) *WishlistStore {
	return &WishlistStore{
		backend:  backend,
		identity: identity,
		logger:   util.GetLogger(),
		now:      time.Now,
		entries:  make(map[string]models.WishlistItem),
		revs:     make(map[string]uint64),
	}
}

func (s *WishlistStore) Load(ctx context.Context) ([]models.WishlistItem, error) {
	user, err := signedIn(s.identity, "view wishlist")
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
	s.entries = make(map[string]models.WishlistItem, len(items))
	s.revs = make(map[string]uint64, len(items))
	for _, it := range items {
		s.entries[it.ProductID] = it
	}
	return s.itemsLocked(), nil
}

func (s *WishlistStore) Items() []models.WishlistItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

func (s *WishlistStore) itemsLocked() []models.WishlistItem {
	out := make([]models.WishlistItem, 0, len(s.entries))
	for _, it := range s.entries {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

func (s *WishlistStore) Contains(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[productID]
	return ok
}

func (s *WishlistStore) user(action string) (models.User, error) {
	user, err := signedIn(s.identity, action)
	if err != nil {
		return user, err
	}
	s.mu.Lock()
	if s.owner != user.ID {
		s.owner = user.ID
		s.entries = make(map[string]models.WishlistItem)
		s.revs = make(map[string]uint64)
	}
	s.mu.Unlock()
	return user, nil
}

// mark applies a local change under mu and returns the previous entry.
func (s *WishlistStore) mark(productID string, item *models.WishlistItem) (prev models.WishlistItem, had bool, rev uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had = s.entries[productID]
	s.rev++
	rev = s.rev
	s.revs[productID] = rev
	if item == nil {
		delete(s.entries, productID)
	} else {
		s.entries[productID] = *item
	}
	return prev, had, rev
}

func (s *WishlistStore) restore(productID string, rev uint64, prev models.WishlistItem, had bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revs[productID] != rev {
		return
	}
	if had {
		s.entries[productID] = prev
	} else {
		delete(s.entries, productID)
	}
}

// Add saves p. Adding a product already present is a no-op.
func (s *WishlistStore) Add(ctx context.Context, p models.Product) (*models.WishlistItem, error) {
	user, err := s.user("add to wishlist")
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, apperr.Invalid("product id is required")
	}

	s.mu.Lock()
	if it, ok := s.entries[p.ID]; ok {
		s.mu.Unlock()
		return &it, nil
	}
	s.mu.Unlock()

	local := models.WishlistItem{UserID: user.ID, ProductID: p.ID, CreatedAt: s.now(), Product: p}
	prev, had, rev := s.mark(p.ID, &local)

	saved, err := s.backend.Add(ctx, user, p.ID)
	if err != nil {
		s.restore(p.ID, rev, prev, had)
		s.logger.Warn("Wishlist add rolled back", zap.String("product_id", p.ID), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	if s.revs[p.ID] == rev {
		line := *saved
		if line.Product.ID == "" {
			line.Product = p
		}
		s.entries[p.ID] = line
	}
	s.mu.Unlock()
	return saved, nil
}

func (s *WishlistStore) Remove(ctx context.Context, productID string) error {
	user, err := s.user("remove from wishlist")
	if err != nil {
		return err
	}

	prev, had, rev := s.mark(productID, nil)
	if err := s.backend.Remove(ctx, user, productID); err != nil {
		s.restore(productID, rev, prev, had)
		s.logger.Warn("Wishlist remove rolled back", zap.String("product_id", productID), zap.Error(err))
		return err
	}
	return nil
}

// Toggle adds p when absent and removes it when present. It reports whether
// p is saved afterwards.
func (s *WishlistStore) Toggle(ctx context.Context, p models.Product) (bool, error) {
	if s.Contains(p.ID) {
		return false, s.Remove(ctx, p.ID)
	}
	_, err := s.Add(ctx, p)
	return err == nil, err
}
