package service

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"storefront/internal/apperr"
	"storefront/internal/broker"
	"storefront/internal/filestore"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdminService backs the admin dashboard
type AdminService struct {
	store  AdminStore
	cache  Cache
	files  Files
	events Events
	logger *zap.Logger
	now    func() time.Time
}

// NewAdminService creates a new admin service. cache, files and events may be nil.
func NewAdminService(store AdminStore, cache Cache, files Files, events Events) *AdminService {
	return &AdminService{
		store:  store,
		cache:  cache,
		files:  files,
		events: events,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// ProductInput is the editable part of a product
type ProductInput struct {
	Title       string          `json:"title"`
	Summary     string          `json:"summary"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Platform    string          `json:"platform"`
	Category    string          `json:"category"`
	Tags        []string        `json:"tags"`
	Author      string          `json:"author"`
	ReleaseDate *time.Time      `json:"release_date,omitempty"`
}

func (in ProductInput) validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"title", in.Title},
		{"platform", in.Platform},
		{"category", in.Category},
		{"author", in.Author},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Invalid("missing required fields: %s", strings.Join(missing, ", "))
	}
	if in.Price.IsNegative() {
		return apperr.Invalid("price cannot be negative")
	}
	return nil
}

func (in ProductInput) apply(p *models.Product) {
	p.Title = strings.TrimSpace(in.Title)
	p.Summary = in.Summary
	p.Description = in.Description
	p.Price = in.Price
	p.Image = in.Image
	p.Platform = strings.TrimSpace(in.Platform)
	p.Category = strings.TrimSpace(in.Category)
	p.Author = strings.TrimSpace(in.Author)
	p.ReleaseDate = in.ReleaseDate

	tags := make(pq.StringArray, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	p.Tags = tags
}

// CreateProduct adds a product to the catalog
func (s *AdminService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.CreateProduct")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &models.Product{}
	in.apply(p)
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Product created", zap.String("product_id", p.ID), zap.String("title", p.Title))
	s.productChanged(ctx, p.ID, models.ProductActionCreated)
	return p, nil
}

// UpdateProduct replaces a product's editable fields
func (s *AdminService) UpdateProduct(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.UpdateProduct")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &models.Product{ID: id}
	in.apply(p)
	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.productChanged(ctx, id, models.ProductActionUpdated)
	return p, nil
}

// DeleteProduct removes a product nobody has ordered
func (s *AdminService) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "AdminService.DeleteProduct")
	defer span.End()

	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Product deleted", zap.String("product_id", id))
	s.productChanged(ctx, id, models.ProductActionDeleted)
	return nil
}

// VersionInput describes a new release
type VersionInput struct {
	Version string     `json:"version"`
	Date    *time.Time `json:"date,omitempty"`
	Changes []string   `json:"changes"`
}

// AddVersion records a release of a product. The date defaults to now.
func (s *AdminService) AddVersion(ctx context.Context, productID string, in VersionInput) (*models.ProductVersion, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.AddVersion")
	defer span.End()

	label := strings.TrimSpace(in.Version)
	if label == "" {
		return nil, apperr.Invalid("version label is required")
	}
	date := s.now().UTC()
	if in.Date != nil {
		date = in.Date.UTC()
	}

	v := &models.ProductVersion{
		ProductID: productID,
		Version:   label,
		Date:      date,
		Changes:   pq.StringArray(in.Changes),
	}
	if err := s.store.AddVersion(ctx, v); err != nil {
		return nil, err
	}
	s.productChanged(ctx, productID, models.ProductActionVersionAdded)
	return v, nil
}

// UploadVersionFile stores a build and attaches it to its version
func (s *AdminService) UploadVersionFile(ctx context.Context, versionID, filename, contentType string, r io.Reader) (*models.ProductVersion, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.UploadVersionFile")
	defer span.End()

	if s.files == nil {
		return nil, apperr.Unavailable("upload version file", nil)
	}
	v, err := s.store.GetVersionByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	key := filestore.VersionKey(v.ProductID, v.ID, filename)
	size, err := s.files.Put(ctx, key, r, contentType)
	if err != nil {
		util.EndSpan(span, err)
		return nil, err
	}
	if size == 0 {
		s.removeFile(ctx, key)
		return nil, apperr.Invalid("uploaded file is empty")
	}
	if err := s.store.SetVersionFile(ctx, v.ID, key, size); err != nil {
		return nil, err
	}
	if v.FilePath != "" && v.FilePath != key {
		s.removeFile(ctx, v.FilePath)
	}
	v.FilePath = key
	v.FileSize = size

	s.logger.Info("Version file uploaded",
		zap.String("version_id", v.ID),
		zap.String("key", key),
		zap.Int64("size", size))
	return v, nil
}

// removeFile deletes a stored object. Failures leave an orphan and are only logged.
func (s *AdminService) removeFile(ctx context.Context, key string) {
	if err := s.files.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to delete stored file", zap.String("key", key), zap.Error(err))
	}
}

// Orders lists orders, optionally by status
func (s *AdminService) Orders(ctx context.Context, status string, page, size int) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Orders")
	defer span.End()

	if status != "" && !models.ValidOrderStatus(status) {
		return nil, apperr.Invalid("unknown order status %q", status)
	}
	limit, offset, err := pageWindow(page, size)
	if err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, status, limit, offset)
}

// UpdateOrderStatus moves an order to status
func (s *AdminService) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	ctx, span := util.StartSpan(ctx, "AdminService.UpdateOrderStatus")
	defer span.End()

	if !models.ValidOrderStatus(status) {
		return apperr.Invalid("unknown order status %q", status)
	}
	if err := s.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return err
	}
	s.logger.Info("Order status updated", zap.String("order_id", orderID), zap.String("status", status))
	return nil
}

// Profile records the signed-in user and returns the stored profile
func (s *AdminService) Profile(ctx context.Context, user models.User) (*models.Profile, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Profile")
	defer span.End()

	if err := requireUser(user, "load profile"); err != nil {
		return nil, err
	}
	return s.store.EnsureProfile(ctx, user)
}

// ProfileInput is the part of a profile its owner may edit
type ProfileInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AvatarURL string `json:"avatar_url"`
}

const maxNameLength = 100

func (in ProfileInput) normalize() (ProfileInput, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.AvatarURL = strings.TrimSpace(in.AvatarURL)

	if utf8.RuneCountInString(in.FirstName) > maxNameLength || utf8.RuneCountInString(in.LastName) > maxNameLength {
		return in, apperr.Invalid("names are limited to %d characters", maxNameLength)
	}
	if in.AvatarURL != "" {
		u, err := url.Parse(in.AvatarURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return in, apperr.Invalid("avatar_url must be an http or https URL")
		}
	}
	return in, nil
}

// UpdateProfile changes the signed-in user's name and avatar. The role is
// never taken from the input.
func (s *AdminService) UpdateProfile(ctx context.Context, user models.User, in ProfileInput) (*models.Profile, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.UpdateProfile")
	defer span.End()

	if err := requireUser(user, "update profile"); err != nil {
		return nil, err
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	if _, err := s.store.EnsureProfile(ctx, user); err != nil {
		return nil, err
	}
	p, err := s.store.UpdateProfile(ctx, models.Profile{
		ID:        user.ID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		AvatarURL: in.AvatarURL,
	})
	if err != nil {
		util.EndSpan(span, err)
		return nil, err
	}
	s.logger.Info("Profile updated", zap.String("user_id", user.ID))
	return p, nil
}

// Users lists user profiles
func (s *AdminService) Users(ctx context.Context, page, size int) ([]models.Profile, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Users")
	defer span.End()

	limit, offset, err := pageWindow(page, size)
	if err != nil {
		return nil, err
	}
	return s.store.ListProfiles(ctx, limit, offset)
}

// UpdateUserRole changes a user's role
func (s *AdminService) UpdateUserRole(ctx context.Context, userID, role string) (*models.Profile, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.UpdateUserRole")
	defer span.End()

	if !models.ValidRole(role) {
		return nil, apperr.Invalid("unknown role %q", role)
	}
	p, err := s.store.UpdateUserRole(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User role updated", zap.String("user_id", userID), zap.String("role", role))
	return p, nil
}

// Reviews lists reviews for moderation
func (s *AdminService) Reviews(ctx context.Context, status string, page, size int) ([]models.Review, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Reviews")
	defer span.End()

	if status != "" && !models.ValidReviewStatus(status) {
		return nil, apperr.Invalid("unknown review status %q", status)
	}
	limit, offset, err := pageWindow(page, size)
	if err != nil {
		return nil, err
	}
	return s.store.ListReviews(ctx, status, limit, offset)
}

// ModerateReview sets a review's status and refreshes the product rating
func (s *AdminService) ModerateReview(ctx context.Context, reviewID, status string) error {
	ctx, span := util.StartSpan(ctx, "AdminService.ModerateReview")
	defer span.End()

	if !models.ValidReviewStatus(status) {
		return apperr.Invalid("unknown review status %q", status)
	}
	productID, err := s.store.UpdateReviewStatus(ctx, reviewID, status)
	if err != nil {
		return err
	}
	s.productChanged(ctx, productID, models.ProductActionReviewModerated)
	return nil
}

// Stats returns the dashboard counters
func (s *AdminService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Stats")
	defer span.End()
	return s.store.GetDashboardStats(ctx)
}

// Settings lists the store settings
func (s *AdminService) Settings(ctx context.Context) ([]models.ConfigItem, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Settings")
	defer span.End()
	return s.store.GetSettings(ctx)
}

// PutSetting creates or overwrites a setting
func (s *AdminService) PutSetting(ctx context.Context, name, value string) (*models.ConfigItem, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.PutSetting")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("setting name is required")
	}
	return s.store.PutSetting(ctx, name, value)
}

// ReplaceNavigation swaps the site navigation
func (s *AdminService) ReplaceNavigation(ctx context.Context, items []models.NavItem) ([]models.NavItem, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.ReplaceNavigation")
	defer span.End()

	out, err := s.store.ReplaceNavItems(ctx, items)
	if err != nil {
		return nil, err
	}
	// Navigation shares the catalog cache generation.
	s.invalidate(ctx)
	return out, nil
}

// productChanged announces a catalog mutation. Without a broker the cache
// is invalidated directly.
func (s *AdminService) productChanged(ctx context.Context, productID, action string) {
	if s.events != nil {
		event := &models.ProductChangedEvent{
			BaseEvent: broker.NewBaseEvent(models.EventTypeProductChanged),
			ProductID: productID,
			Action:    action,
		}
		err := s.events.PublishProductChanged(ctx, event)
		if err == nil {
			return
		}
		s.logger.Error("Failed to publish ProductChanged event", zap.Error(err))
	}
	s.invalidate(ctx)
}

func (s *AdminService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.logger.Warn("Catalog cache invalidation failed", zap.Error(err))
		return
	}
	util.CatalogInvalidationsTotal.Inc()
}

// pageWindow turns a 1-based page and size into LIMIT and OFFSET
func pageWindow(page, size int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = 20
	}
	if page < 1 {
		return 0, 0, apperr.Invalid("page must be at least 1")
	}
	if size < 1 || size > 100 {
		return 0, 0, apperr.Invalid("page size must be between 1 and 100")
	}
	return size, (page - 1) * size, nil
}
