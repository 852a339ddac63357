package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// CatalogService is the public catalog read path
type CatalogService interface {
	Codec() catalog.Codec
	Browse(ctx context.Context, q catalog.Query, pageSize int) (catalog.Result, error)
	Product(ctx context.Context, id string) (*service.ProductDetail, error)
	Versions(ctx context.Context, productID string) ([]models.ProductVersion, error)
	Reviews(ctx context.Context, productID string) ([]models.Review, error)
	SubmitReview(ctx context.Context, user models.User, productID string, rating int, content string) (*models.Review, error)
	Navigation(ctx context.Context) ([]models.NavItem, error)
}

type CartService interface {
	Items(ctx context.Context, user models.User) ([]models.CartItem, error)
	Add(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error)
	Update(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error)
	Remove(ctx context.Context, user models.User, productID string) error
}

type WishlistService interface {
	Items(ctx context.Context, user models.User) ([]models.WishlistItem, error)
	Add(ctx context.Context, user models.User, productID string) (*models.WishlistItem, error)
	Remove(ctx context.Context, user models.User, productID string) error
}

type CheckoutService interface {
	Checkout(ctx context.Context, user models.User, idempotencyKey string) (*service.CheckoutResult, error)
}

type OrderService interface {
	Orders(ctx context.Context, user models.User) ([]models.Order, error)
	Order(ctx context.Context, user models.User, orderID string) (*models.Order, error)
	ConfirmPayment(ctx context.Context, paymentRef string, succeeded bool) (*models.Order, error)
}

type DownloadService interface {
	Link(ctx context.Context, user models.User, versionID string) (*service.DownloadLink, error)
}

type AdminService interface {
	CreateProduct(ctx context.Context, in service.ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, in service.ProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AddVersion(ctx context.Context, productID string, in service.VersionInput) (*models.ProductVersion, error)
	UploadVersionFile(ctx context.Context, versionID, filename, contentType string, r io.Reader) (*models.ProductVersion, error)
	Orders(ctx context.Context, status string, page, size int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	Profile(ctx context.Context, user models.User) (*models.Profile, error)
	UpdateProfile(ctx context.Context, user models.User, in service.ProfileInput) (*models.Profile, error)
	Users(ctx context.Context, page, size int) ([]models.Profile, error)
	UpdateUserRole(ctx context.Context, userID, role string) (*models.Profile, error)
	Reviews(ctx context.Context, status string, page, size int) ([]models.Review, error)
	ModerateReview(ctx context.Context, reviewID, status string) error
	Stats(ctx context.Context) (*models.DashboardStats, error)
	Settings(ctx context.Context) ([]models.ConfigItem, error)
	PutSetting(ctx context.Context, name, value string) (*models.ConfigItem, error)
	ReplaceNavigation(ctx context.Context, items []models.NavItem) ([]models.NavItem, error)
}

// Services groups the handler's dependencies
type Services struct {
	Catalog   CatalogService
	Cart      CartService
	Wishlist  WishlistService
	Checkout  CheckoutService
	Orders    OrderService
	Downloads DownloadService
	Admin     AdminService
}

// Options tunes the HTTP layer
type Options struct {
	Tokens         *auth.Tokens
	WebhookSecret  string
	RatePerSecond  float64
	RateBurst      int
	RequestTimeout time.Duration
	// Ready reports whether backing stores are reachable
	Ready func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc  Services
	opts Options
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, opts Options) *Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	return &Handler{svc: svc, opts: opts}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(compressMiddleware())
	if h.opts.RatePerSecond > 0 {
		router.Use(newRateLimiter(rate.Limit(h.opts.RatePerSecond), h.opts.RateBurst).middleware())
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(timeoutMiddleware(h.opts.RequestTimeout))
	if h.opts.Tokens != nil {
		v1.Use(h.opts.Tokens.Authenticate())
	}
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/:id/versions", h.getVersions)
		v1.GET("/products/:id/reviews", h.getReviews)
		v1.GET("/navigation", h.getNavigation)
		v1.POST("/payments/confirm", h.confirmPayment)
	}

	user := v1.Group("", auth.RequireUser())
	{
		user.GET("/me", h.getMe)
		user.PUT("/me", h.updateMe)
		user.POST("/products/:id/reviews", h.submitReview)

		user.GET("/cart", h.getCart)
		user.POST("/cart", h.addToCart)
		user.PUT("/cart/:productId", h.updateCart)
		user.DELETE("/cart/:productId", h.removeFromCart)

		user.GET("/wishlist", h.getWishlist)
		user.POST("/wishlist", h.addToWishlist)
		user.DELETE("/wishlist/:productId", h.removeFromWishlist)

		user.POST("/checkout", h.checkout)
		user.GET("/orders", h.listOrders)
		user.GET("/orders/:id", h.getOrder)

		user.GET("/versions/:id/download", h.download)
	}

	admin := v1.Group("/admin", auth.RequireRole(models.RoleAdmin))
	{
		admin.POST("/products", h.createProduct)
		admin.PUT("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)
		admin.POST("/products/:id/versions", h.addVersion)
		admin.POST("/versions/:id/file", h.uploadVersionFile)

		admin.GET("/orders", h.adminOrders)
		admin.PUT("/orders/:id/status", h.updateOrderStatus)

		admin.GET("/users", h.adminUsers)
		admin.PUT("/users/:id/role", h.updateUserRole)

		admin.GET("/reviews", h.adminReviews)
		admin.PUT("/reviews/:id/status", h.moderateReview)

		admin.GET("/stats", h.stats)
		admin.GET("/settings", h.settings)
		admin.PUT("/settings/:name", h.putSetting)
		admin.PUT("/navigation", h.replaceNavigation)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.opts.Ready != nil {
		if err := h.opts.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// getMe records the caller's profile on first sight and returns it
func (h *Handler) getMe(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	profile, err := h.svc.Admin.Profile(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// updateMe edits the caller's name and avatar
func (h *Handler) updateMe(c *gin.Context) {
	var in service.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	user, _ := auth.CurrentUser(c)
	profile, err := h.svc.Admin.UpdateProfile(c.Request.Context(), user, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// queryInt reads an optional integer query parameter
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
