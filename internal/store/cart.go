package store

import (
	"context"

	"storefront/internal/models"
)

var (
	cartSelect = `c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at, ` +
		joinedProductColumns("p")
	wishlistSelect = `w.id, w.user_id, w.product_id, w.created_at, ` + joinedProductColumns("p")
)

// GetCart lists the user's cart lines with their products, oldest first
func (s *Store) GetCart(ctx context.Context, userID string) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+cartSelect+`
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id`, userID)
	if err != nil {
		return nil, mapErr("get cart", err)
	}
	return items, nil
}

// AddToCart creates the line or increments its quantity in one statement, so
// concurrent adds never lose an update.
func (s *Store) AddToCart(ctx context.Context, userID, productID string, quantity int) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, `
		WITH c AS (
			INSERT INTO cart_items (user_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
			RETURNING *
		)
		SELECT `+cartSelect+` FROM c JOIN products p ON p.id = c.product_id`,
		userID, productID, quantity)
	if err != nil {
		return nil, notFound("product", productID, "add to cart", err)
	}
	return &item, nil
}

// UpdateCartQuantity sets the quantity of an existing line
func (s *Store) UpdateCartQuantity(ctx context.Context, userID, productID string, quantity int) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, `
		WITH c AS (
			UPDATE cart_items SET quantity = $3, updated_at = NOW()
			WHERE user_id = $1 AND product_id = $2
			RETURNING *
		)
		SELECT `+cartSelect+` FROM c JOIN products p ON p.id = c.product_id`,
		userID, productID, quantity)
	if err != nil {
		return nil, notFound("cart item", productID, "update cart", err)
	}
	return &item, nil
}

// RemoveFromCart deletes the line. Removing an absent line is not an error.
func (s *Store) RemoveFromCart(ctx context.Context, userID, productID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return notFound("cart item", productID, "remove from cart", err)
	}
	return nil
}

// GetWishlist lists the user's saved products, newest first
func (s *Store) GetWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error) {
	items := []models.WishlistItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+wishlistSelect+`
		FROM wishlist_items w JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC, w.id`, userID)
	if err != nil {
		return nil, mapErr("get wishlist", err)
	}
	return items, nil
}

// AddToWishlist saves a product. Saving it twice returns the existing line.
func (s *Store) AddToWishlist(ctx context.Context, userID, productID string) (*models.WishlistItem, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wishlist_items (user_id, product_id) VALUES ($1, $2)
		ON CONFLICT (user_id, product_id) DO NOTHING`, userID, productID)
	if err != nil {
		return nil, notFound("product", productID, "add to wishlist", err)
	}

	var item models.WishlistItem
	err = s.db.GetContext(ctx, &item, `
		SELECT `+wishlistSelect+`
		FROM wishlist_items w JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1 AND w.product_id = $2`, userID, productID)
	if err != nil {
		return nil, notFound("wishlist item", productID, "add to wishlist", err)
	}
	return &item, nil
}

// RemoveFromWishlist deletes the saved product. Absent lines are ignored.
func (s *Store) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return notFound("wishlist item", productID, "remove from wishlist", err)
	}
	return nil
}
