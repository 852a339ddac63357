package service

import (
	"context"
	"io"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/models"
)

// The services depend on these narrow views of the store, cache, broker and
// file storage so they can be exercised without infrastructure.

type CatalogStore interface {
	ListProducts(ctx context.Context, p catalog.ListParams) ([]models.Product, int, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProductVersions(ctx context.Context, productID string) ([]models.ProductVersion, error)
	GetProductReviews(ctx context.Context, productID string, approvedOnly bool) ([]models.Review, error)
	CreateReview(ctx context.Context, r *models.Review) error
	GetNavItems(ctx context.Context) ([]models.NavItem, error)
}

type CartStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetCart(ctx context.Context, userID string) ([]models.CartItem, error)
	AddToCart(ctx context.Context, userID, productID string, quantity int) (*models.CartItem, error)
	UpdateCartQuantity(ctx context.Context, userID, productID string, quantity int) (*models.CartItem, error)
	RemoveFromCart(ctx context.Context, userID, productID string) error
	GetWishlist(ctx context.Context, userID string) ([]models.WishlistItem, error)
	AddToWishlist(ctx context.Context, userID, productID string) (*models.WishlistItem, error)
	RemoveFromWishlist(ctx context.Context, userID, productID string) error
}

type OrderStore interface {
	GetCart(ctx context.Context, userID string) ([]models.CartItem, error)
	CreateOrderTx(ctx context.Context, order *models.Order, cartItemIDs []string) error
	GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error)
	SettleOrder(ctx context.Context, orderID, status string) (bool, error)
}

type DownloadStore interface {
	GetVersionByID(ctx context.Context, id string) (*models.ProductVersion, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}

type AdminStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	AddVersion(ctx context.Context, v *models.ProductVersion) error
	GetVersionByID(ctx context.Context, id string) (*models.ProductVersion, error)
	SetVersionFile(ctx context.Context, versionID, path string, size int64) error
	ListOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	EnsureProfile(ctx context.Context, u models.User) (*models.Profile, error)
	ListProfiles(ctx context.Context, limit, offset int) ([]models.Profile, error)
	UpdateUserRole(ctx context.Context, userID, role string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, p models.Profile) (*models.Profile, error)
	ListReviews(ctx context.Context, status string, limit, offset int) ([]models.Review, error)
	UpdateReviewStatus(ctx context.Context, reviewID, status string) (string, error)
	GetDashboardStats(ctx context.Context) (*models.DashboardStats, error)
	GetSettings(ctx context.Context) ([]models.ConfigItem, error)
	PutSetting(ctx context.Context, name, value string) (*models.ConfigItem, error)
	ReplaceNavItems(ctx context.Context, items []models.NavItem) ([]models.NavItem, error)
}

// Cache is the catalog page cache
type Cache interface {
	CatalogGeneration(ctx context.Context) (int64, error)
	InvalidateCatalog(ctx context.Context) (int64, error)
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Locker serialises checkouts per user
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Events publishes domain events
type Events interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error
	PublishProductChanged(ctx context.Context, event *models.ProductChangedEvent) error
	PublishProductDownloaded(ctx context.Context, event *models.ProductDownloadedEvent) error
}

// Files stores version builds
type Files interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
