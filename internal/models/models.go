package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product represents a listing in the catalog
type Product struct {
	ID            string          `db:"id" json:"id"`
	Title         string          `db:"title" json:"title"`
	Summary       string          `db:"summary" json:"summary,omitempty"`
	Description   string          `db:"description" json:"description,omitempty"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Image         string          `db:"image" json:"image,omitempty"`
	Platform      string          `db:"platform" json:"platform"`
	Category      string          `db:"category" json:"category"`
	Tags          pq.StringArray  `db:"tags" json:"tags"`
	Author        string          `db:"author" json:"author"`
	Version       string          `db:"version" json:"version,omitempty"`
	DownloadCount int64           `db:"download_count" json:"download_count"`
	Rating        float64         `db:"rating" json:"rating"`
	ReviewCount   int             `db:"review_count" json:"review_count"`
	ReleaseDate   *time.Time      `db:"release_date" json:"release_date,omitempty"`
	LastUpdate    *time.Time      `db:"last_update" json:"last_update,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// IsFree reports whether the product costs nothing
func (p Product) IsFree() bool {
	return !p.Price.IsPositive()
}

// ProductVersion is one released build of a product
type ProductVersion struct {
	ID        string         `db:"id" json:"id"`
	ProductID string         `db:"product_id" json:"product_id"`
	Version   string         `db:"version" json:"version"`
	Date      time.Time      `db:"date" json:"date"`
	Changes   pq.StringArray `db:"changes" json:"changes"`
	FilePath  string         `db:"file_path" json:"file_path,omitempty"`
	FileSize  int64          `db:"file_size" json:"file_size,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// LatestVersion picks the version with the greatest release date. Equal dates
// fall back to the most recently inserted version, then to the larger id.
func LatestVersion(versions []ProductVersion) (ProductVersion, bool) {
	if len(versions) == 0 {
		return ProductVersion{}, false
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if newerVersion(v, latest) {
			latest = v
		}
	}
	return latest, true
}

func newerVersion(a, b ProductVersion) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// Review is a user rating of a product
type Review struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Author    string    `db:"author" json:"author"`
	Avatar    string    `db:"avatar" json:"avatar,omitempty"`
	Rating    int       `db:"rating" json:"rating"`
	Content   string    `db:"content" json:"content,omitempty"`
	Date      time.Time `db:"date" json:"date"`
	Status    string    `db:"status" json:"status"`
}

// CartItem is one cart line; at most one exists per (user, product)
type CartItem struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	Product   Product   `db:"product" json:"product"`
}

// Subtotal is the line's current price times quantity
func (c CartItem) Subtotal() decimal.Decimal {
	return c.Product.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// WishlistItem marks a product saved by a user
type WishlistItem struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Product   Product   `db:"product" json:"product"`
}

// Order represents a completed or pending purchase
type Order struct {
	ID             string          `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	Status         string          `db:"status" json:"status"`
	PaymentMethod  string          `db:"payment_method" json:"payment_method"`
	PaymentID      string          `db:"payment_id" json:"payment_id"`
	Total          decimal.Decimal `db:"total" json:"total"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	Items          []OrderItem     `db:"-" json:"items,omitempty"`
}

// OrderItem freezes the unit price paid for a product
type OrderItem struct {
	ID        string          `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Title     string          `db:"title" json:"title,omitempty"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusFulfilled = "fulfilled"
	OrderStatusCancelled = "cancelled"
)

// ValidOrderStatus reports whether s is a known order status
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFulfilled, OrderStatusCancelled:
		return true
	}
	return false
}

// Review moderation statuses
const (
	ReviewStatusPending  = "pending"
	ReviewStatusApproved = "approved"
	ReviewStatusRejected = "rejected"
)

// ValidReviewStatus reports whether s is a known moderation status
func ValidReviewStatus(s string) bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return true
	}
	return false
}

// User roles
const (
	RoleAdmin    = "admin"
	RoleVendor   = "vendor"
	RoleCustomer = "customer"
)

// ValidRole reports whether r is a known role
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleVendor, RoleCustomer:
		return true
	}
	return false
}

// User is the identity supplied by the auth provider
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// IsAdmin reports whether the user may use the admin dashboard
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Profile is the stored user record
type Profile struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	FirstName string    `db:"first_name" json:"first_name,omitempty"`
	LastName  string    `db:"last_name" json:"last_name,omitempty"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NavItem is one entry of the site navigation
type NavItem struct {
	ID       string `db:"id" json:"id"`
	Label    string `db:"label" json:"label"`
	Href     string `db:"href" json:"href"`
	Position int    `db:"position" json:"position"`
	Type     string `db:"type" json:"type"`
}

// ConfigItem is a named store setting
type ConfigItem struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Value string `db:"value" json:"value"`
}

// DashboardStats summarises the store for the admin dashboard
type DashboardStats struct {
	ProductsCount int             `db:"products_count" json:"products_count"`
	OrdersCount   int             `db:"orders_count" json:"orders_count"`
	Revenue       decimal.Decimal `db:"revenue" json:"revenue"`
	UsersCount    int             `db:"users_count" json:"users_count"`
}

// CartSnapshot is the cart frozen at checkout time
type CartSnapshot struct {
	UserID     string          `json:"user_id"`
	Email      string          `json:"email,omitempty"`
	Lines      []SnapshotLine  `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	CapturedAt time.Time       `json:"captured_at"`
}

// SnapshotLine is one frozen cart line
type SnapshotLine struct {
	CartItemID string          `json:"cart_item_id"`
	ProductID  string          `json:"product_id"`
	Title      string          `json:"title"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// NewCartSnapshot copies prices out of the cart lines and totals them
func NewCartSnapshot(userID string, items []CartItem, now time.Time) CartSnapshot {
	snap := CartSnapshot{
		UserID:     userID,
		Lines:      make([]SnapshotLine, 0, len(items)),
		Total:      decimal.Zero,
		CapturedAt: now,
	}
	for _, item := range items {
		sub := item.Subtotal()
		snap.Lines = append(snap.Lines, SnapshotLine{
			CartItemID: item.ID,
			ProductID:  item.ProductID,
			Title:      item.Product.Title,
			UnitPrice:  item.Product.Price,
			Quantity:   item.Quantity,
			Subtotal:   sub,
		})
		snap.Total = snap.Total.Add(sub)
	}
	return snap
}

// CartItemIDs lists the cart lines included in the snapshot
func (s CartSnapshot) CartItemIDs() []string {
	ids := make([]string, len(s.Lines))
	for i, l := range s.Lines {
		ids[i] = l.CartItemID
	}
	return ids
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
