package service

import (
	"context"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CartService applies the cart quantity rules on top of the store
type CartService struct {
	store  CartStore
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore) *CartService {
	return &CartService{store: store, logger: util.GetLogger()}
}

func requireUser(user models.User, action string) error {
	if user.ID == "" {
		return apperr.AuthRequired(action)
	}
	return nil
}

func requireProductID(productID string) error {
	if strings.TrimSpace(productID) == "" {
		return apperr.Invalid("product id is required")
	}
	return nil
}

// Items lists the user's cart
func (s *CartService) Items(ctx context.Context, user models.User) ([]models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Items")
	defer span.End()

	if err := requireUser(user, "view cart"); err != nil {
		return nil, err
	}
	return s.store.GetCart(ctx, user.ID)
}

// Add puts quantity more of a product in the cart
func (s *CartService) Add(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add")
	defer span.End()

	if err := requireUser(user, "add to cart"); err != nil {
		return nil, err
	}
	if err := requireProductID(productID); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperr.Invalid("quantity must be at least 1")
	}
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	item, err := s.store.AddToCart(ctx, user.ID, productID, quantity)
	if err != nil {
		return nil, err
	}
	util.CartUpdatesTotal.WithLabelValues("cart", "add").Inc()
	s.logger.Debug("Cart line added",
		zap.String("user_id", user.ID),
		zap.String("product_id", productID),
		zap.Int("quantity", item.Quantity))
	return item, nil
}

// Update sets the quantity of a line. Zero removes the line and returns nil.
func (s *CartService) Update(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Update")
	defer span.End()

	if err := requireUser(user, "update cart"); err != nil {
		return nil, err
	}
	if err := requireProductID(productID); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, apperr.Invalid("quantity cannot be negative")
	}
	if quantity == 0 {
		return nil, s.Remove(ctx, user, productID)
	}

	item, err := s.store.UpdateCartQuantity(ctx, user.ID, productID, quantity)
	if err != nil {
		return nil, err
	}
	util.CartUpdatesTotal.WithLabelValues("cart", "update").Inc()
	return item, nil
}

// Remove deletes a line
func (s *CartService) Remove(ctx context.Context, user models.User, productID string) error {
	ctx, span := util.StartSpan(ctx, "CartService.Remove")
	defer span.End()

	if err := requireUser(user, "remove from cart"); err != nil {
		return err
	}
	if err := requireProductID(productID); err != nil {
		return err
	}
	if err := s.store.RemoveFromCart(ctx, user.ID, productID); err != nil {
		return err
	}
	util.CartUpdatesTotal.WithLabelValues("cart", "remove").Inc()
	return nil
}

// WishlistService manages saved products
type WishlistService struct {
	store  CartStore
	logger *zap.Logger
}

// NewWishlistService creates a new wishlist service
func NewWishlistService(store CartStore) *WishlistService {
	return &WishlistService{store: store, logger: util.GetLogger()}
}

// Items lists the user's wishlist
func (s *WishlistService) Items(ctx context.Context, user models.User) ([]models.WishlistItem, error) {
	ctx, span := util.StartSpan(ctx, "WishlistService.Items")
	defer span.End()

	if err := requireUser(user, "view wishlist"); err != nil {
		return nil, err
	}
	return s.store.GetWishlist(ctx, user.ID)
}

// Add saves a product; saving it again is a no-op
func (s *WishlistService) Add(ctx context.Context, user models.User, productID string) (*models.WishlistItem, error) {
	ctx, span := util.StartSpan(ctx, "WishlistService.Add")
	defer span.End()

	if err := requireUser(user, "add to wishlist"); err != nil {
		return nil, err
	}
	if err := requireProductID(productID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	item, err := s.store.AddToWishlist(ctx, user.ID, productID)
	if err != nil {
		return nil, err
	}
	util.CartUpdatesTotal.WithLabelValues("wishlist", "add").Inc()
	return item, nil
}

// Remove unsaves a product
func (s *WishlistService) Remove(ctx context.Context, user models.User, productID string) error {
	ctx, span := util.StartSpan(ctx, "WishlistService.Remove")
	defer span.End()

	if err := requireUser(user, "remove from wishlist"); err != nil {
		return err
	}
	if err := requireProductID(productID); err != nil {
		return err
	}
	if err := s.store.RemoveFromWishlist(ctx, user.ID, productID); err != nil {
		return err
	}
	util.CartUpdatesTotal.WithLabelValues("wishlist", "remove").Inc()
	return nil
}
