package store

import (
	"context"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const versionSelect = "id, product_id, version, date, changes, file_path, file_size, created_at"

// GetProductVersions lists versions newest first. Ties on date go to the
// version inserted last, then to the larger id.
func (s *Store) GetProductVersions(ctx context.Context, productID string) ([]models.ProductVersion, error) {
	versions := []models.ProductVersion{}
	err := s.db.SelectContext(ctx, &versions, `
		SELECT `+versionSelect+` FROM product_versions
		WHERE product_id = $1
		ORDER BY date DESC, created_at DESC, id DESC`, productID)
	if err != nil {
		return nil, notFound("product", productID, "get versions", err)
	}
	return versions, nil
}

// GetVersionByID retrieves a single version
func (s *Store) GetVersionByID(ctx context.Context, id string) (*models.ProductVersion, error) {
	var v models.ProductVersion
	err := s.db.GetContext(ctx, &v, "SELECT "+versionSelect+" FROM product_versions WHERE id = $1", id)
	if err != nil {
		return nil, notFound("version", id, "get version", err)
	}
	return &v, nil
}

// AddVersion inserts a version and, when it is the newest, moves the
// product's current version label and last update date forward.
func (s *Store) AddVersion(ctx context.Context, v *models.ProductVersion) error {
	return s.inTx(ctx, "add version", func(tx *sqlx.Tx) error {
		changes := v.Changes
		if changes == nil {
			changes = pq.StringArray{}
		}
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO product_versions (product_id, version, date, changes)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			v.ProductID, v.Version, v.Date, changes,
		).Scan(&v.ID, &v.CreatedAt)
		if err != nil {
			return notFound("product", v.ProductID, "insert version", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products SET version = $2, last_update = $3, updated_at = NOW()
			WHERE id = $1 AND (last_update IS NULL OR last_update <= $3)`,
			v.ProductID, v.Version, v.Date)
		return mapErr("bump product version", err)
	})
}

// SetVersionFile records the storage key and size of an uploaded build
func (s *Store) SetVersionFile(ctx context.Context, versionID, path string, size int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE product_versions SET file_path = $2, file_size = $3 WHERE id = $1",
		versionID, path, size)
	if err != nil {
		return notFound("version", versionID, "set version file", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("version", versionID)
	}
	return nil
}

const reviewSelect = `r.id, r.product_id, r.user_id, r.rating, r.content, r.date, r.status,
	COALESCE(NULLIF(TRIM(pr.first_name || ' ' || pr.last_name), ''), 'Anonymous') AS author,
	COALESCE(pr.avatar_url, '') AS avatar`

// GetProductReviews lists reviews newest first. The public read path passes
// approvedOnly; moderation sees every status.
func (s *Store) GetProductReviews(ctx context.Context, productID string, approvedOnly bool) ([]models.Review, error) {
	reviews := []models.Review{}
	err := s.db.SelectContext(ctx, &reviews, `
		SELECT `+reviewSelect+`
		FROM reviews r LEFT JOIN profiles pr ON pr.id = r.user_id
		WHERE r.product_id = $1 AND (NOT $2 OR r.status = $3)
		ORDER BY r.date DESC, r.id`, productID, approvedOnly, models.ReviewStatusApproved)
	if err != nil {
		return nil, notFound("product", productID, "get reviews", err)
	}
	return reviews, nil
}

// ListReviews lists reviews across products for moderation
func (s *Store) ListReviews(ctx context.Context, status string, limit, offset int) ([]models.Review, error) {
	reviews := []models.Review{}
	err := s.db.SelectContext(ctx, &reviews, `
		SELECT `+reviewSelect+`
		FROM reviews r LEFT JOIN profiles pr ON pr.id = r.user_id
		WHERE ($1::text = '' OR r.status = $1)
		ORDER BY r.date DESC, r.id
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, mapErr("list reviews", err)
	}
	return reviews, nil
}

// CreateReview stores a review awaiting moderation
func (s *Store) CreateReview(ctx context.Context, r *models.Review) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO reviews (product_id, user_id, rating, content, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, date`,
		r.ProductID, r.UserID, r.Rating, r.Content, models.ReviewStatusPending,
	).Scan(&r.ID, &r.Date)
	if err != nil {
		return notFound("product", r.ProductID, "create review", err)
	}
	r.Status = models.ReviewStatusPending
	return nil
}

// UpdateReviewStatus moderates a review and refreshes the product's rating
// from its approved reviews. It returns the affected product id.
func (s *Store) UpdateReviewStatus(ctx context.Context, reviewID, status string) (string, error) {
	var productID string
	err := s.inTx(ctx, "moderate review", func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &productID,
			"UPDATE reviews SET status = $2 WHERE id = $1 RETURNING product_id", reviewID, status)
		if err != nil {
			return notFound("review", reviewID, "moderate review", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products SET
				rating = COALESCE((SELECT AVG(rating) FROM reviews WHERE product_id = $1 AND status = $2), 0),
				review_count = (SELECT COUNT(*) FROM reviews WHERE product_id = $1 AND status = $2),
				updated_at = NOW()
			WHERE id = $1`, productID, models.ReviewStatusApproved)
		return mapErr("refresh rating", err)
	})
	return productID, err
}
