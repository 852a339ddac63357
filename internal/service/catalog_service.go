package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CatalogService answers catalog reads, fronted by the page cache
type CatalogService struct {
	store    CatalogStore
	cache    Cache
	codec    catalog.Codec
	pageSize int
	cacheTTL time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// CatalogOptions tunes CatalogService
type CatalogOptions struct {
	DefaultPageSize int
	CacheTTL        time.Duration
	Timeout         time.Duration
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(store CatalogStore, cache Cache, codec catalog.Codec, opts CatalogOptions) *CatalogService {
	if opts.DefaultPageSize < 1 || opts.DefaultPageSize > catalog.MaxPageSize {
		opts.DefaultPageSize = catalog.DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &CatalogService{
		store:    store,
		cache:    cache,
		codec:    codec,
		pageSize: opts.DefaultPageSize,
		cacheTTL: opts.CacheTTL,
		timeout:  opts.Timeout,
		logger:   util.GetLogger(),
	}
}

// Codec returns the URL codec the service decodes queries with
func (s *CatalogService) Codec() catalog.Codec {
	return s.codec
}

// Browse returns one page of the catalog. pageSize 0 means the default.
func (s *CatalogService) Browse(ctx context.Context, q catalog.Query, pageSize int) (catalog.Result, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Browse")
	defer span.End()

	q = q.Normalize(s.codec.PriceCeiling)
	if pageSize == 0 {
		pageSize = s.pageSize
	}
	params := q.Params(pageSize)
	if err := params.Validate(); err != nil {
		return catalog.Result{}, err
	}

	span.SetAttributes(
		attribute.String("catalog.query", s.codec.Encode(q)),
		attribute.Int("catalog.page_size", pageSize),
	)

	key := ""
	if s.cache != nil && s.cacheTTL > 0 {
		key = s.cacheKey(ctx, "list", s.codec.Encode(q)+"&size="+strconv.Itoa(pageSize))
		var cached catalog.Result
		if key != "" {
			if hit, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
				s.logger.Warn("Catalog cache read failed", zap.Error(err))
			} else if hit {
				util.CatalogQueriesTotal.WithLabelValues("hit").Inc()
				return cached, nil
			}
		}
	}
	util.CatalogQueriesTotal.WithLabelValues("miss").Inc()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	items, total, err := s.store.ListProducts(ctx, params)
	util.CatalogQueryLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.EndSpan(span, err)
		return catalog.Result{}, err
	}

	res := catalog.Result{Items: items, Total: total, Page: params.Page, PageSize: params.PageSize}
	if key != "" {
		if err := s.cache.SetJSON(ctx, key, res, s.cacheTTL); err != nil {
			s.logger.Warn("Catalog cache write failed", zap.Error(err))
		}
	}
	return res, nil
}

// cacheKey returns "" when the generation cannot be read, which disables
// caching for this call rather than risking a stale page.
func (s *CatalogService) cacheKey(ctx context.Context, kind, id string) string {
	gen, err := s.cache.CatalogGeneration(ctx)
	if err != nil {
		s.logger.Warn("Catalog cache generation unavailable", zap.Error(err))
		return ""
	}
	return redisclient.CatalogKey(gen, kind, id)
}

// ProductDetail is everything the product page shows
type ProductDetail struct {
	Product  models.Product          `json:"product"`
	Versions []models.ProductVersion `json:"versions"`
	Latest   *models.ProductVersion  `json:"latest_version,omitempty"`
	Reviews  []models.Review         `json:"reviews"`
}

// Product loads a product with its versions and approved reviews in parallel
func (s *CatalogService) Product(ctx context.Context, id string) (*ProductDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Product", attribute.String("product.id", id))
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return nil, apperr.Invalid("product id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		detail   ProductDetail
		product  *models.Product
		versions []models.ProductVersion
		reviews  []models.Review
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		product, err = s.store.GetProductByID(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		versions, err = s.store.GetProductVersions(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		reviews, err = s.store.GetProductReviews(gctx, id, true)
		return err
	})
	if err := g.Wait(); err != nil {
		util.EndSpan(span, err)
		return nil, err
	}

	detail.Product = *product
	detail.Versions = versions
	detail.Reviews = reviews
	if latest, ok := models.LatestVersion(versions); ok {
		detail.Latest = &latest
	}
	return &detail, nil
}

// Versions lists a product's versions, newest first
func (s *CatalogService) Versions(ctx context.Context, productID string) ([]models.ProductVersion, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Versions")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.GetProductVersions(ctx, productID)
}

// Reviews lists a product's approved reviews
func (s *CatalogService) Reviews(ctx context.Context, productID string) ([]models.Review, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Reviews")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.GetProductReviews(ctx, productID, true)
}

// SubmitReview records a review awaiting moderation
func (s *CatalogService) SubmitReview(ctx context.Context, user models.User, productID string, rating int, content string) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SubmitReview")
	defer span.End()

	if user.ID == "" {
		return nil, apperr.AuthRequired("submit review")
	}
	if rating < 1 || rating > 5 {
		return nil, apperr.Invalid("rating must be between 1 and 5")
	}

	r := &models.Review{
		ProductID: productID,
		UserID:    user.ID,
		Rating:    rating,
		Content:   strings.TrimSpace(content),
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("Review submitted",
		zap.String("product_id", productID),
		zap.String("user_id", user.ID))
	return r, nil
}

// Navigation returns the site navigation
func (s *CatalogService) Navigation(ctx context.Context) ([]models.NavItem, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Navigation")
	defer span.End()

	if s.cache != nil && s.cacheTTL > 0 {
		if key := s.cacheKey(ctx, "nav", "all"); key != "" {
			var items []models.NavItem
			if hit, err := s.cache.GetJSON(ctx, key, &items); err == nil && hit {
				return items, nil
			}
			items, err := s.store.GetNavItems(ctx)
			if err != nil {
				return nil, err
			}
			if err := s.cache.SetJSON(ctx, key, items, s.cacheTTL); err != nil {
				s.logger.Warn("Navigation cache write failed", zap.Error(err))
			}
			return items, nil
		}
	}
	return s.store.GetNavItems(ctx)
}
