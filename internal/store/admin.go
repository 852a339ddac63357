package store

import (
	"context"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const profileSelect = "id, email, role, first_name, last_name, avatar_url, created_at"

// EnsureProfile records a user the first time they are seen and returns the
// stored profile. The stored role wins over the token's.
func (s *Store) EnsureProfile(ctx context.Context, u models.User) (*models.Profile, error) {
	role := u.Role
	if !models.ValidRole(role) {
		role = models.RoleCustomer
	}
	var p models.Profile
	err := s.db.GetContext(ctx, &p, `
		INSERT INTO profiles (id, email, role) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
		RETURNING `+profileSelect, u.ID, u.Email, role)
	if err != nil {
		return nil, mapErr("ensure profile", err)
	}
	return &p, nil
}

// ListProfiles lists users for the dashboard
func (s *Store) ListProfiles(ctx context.Context, limit, offset int) ([]models.Profile, error) {
	profiles := []models.Profile{}
	err := s.db.SelectContext(ctx, &profiles,
		"SELECT "+profileSelect+" FROM profiles ORDER BY created_at DESC, id LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, mapErr("list profiles", err)
	}
	return profiles, nil
}

// UpdateUserRole changes a user's role
func (s *Store) UpdateUserRole(ctx context.Context, userID, role string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.GetContext(ctx, &p,
		"UPDATE profiles SET role = $2 WHERE id = $1 RETURNING "+profileSelect, userID, role)
	if err != nil {
		return nil, notFound("user", userID, "update role", err)
	}
	return &p, nil
}

// UpdateProfile stores the user's name and avatar. Role and email are left
// as they are.
func (s *Store) UpdateProfile(ctx context.Context, p models.Profile) (*models.Profile, error) {
	var out models.Profile
	err := s.db.GetContext(ctx, &out, `
		UPDATE profiles SET first_name = $2, last_name = $3, avatar_url = $4
		WHERE id = $1
		RETURNING `+profileSelect, p.ID, p.FirstName, p.LastName, p.AvatarURL)
	if err != nil {
		return nil, notFound("user", p.ID, "update profile", err)
	}
	return &out, nil
}

// GetDashboardStats counts products, orders and users and sums paid revenue
func (s *Store) GetDashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	var stats models.DashboardStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM products) AS products_count,
			(SELECT COUNT(*) FROM orders) AS orders_count,
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE status IN ($1, $2)) AS revenue,
			(SELECT COUNT(*) FROM profiles) AS users_count`,
		models.OrderStatusPaid, models.OrderStatusFulfilled)
	if err != nil {
		return nil, mapErr("dashboard stats", err)
	}
	return &stats, nil
}

// GetSettings lists all config items by name
func (s *Store) GetSettings(ctx context.Context) ([]models.ConfigItem, error) {
	items := []models.ConfigItem{}
	if err := s.db.SelectContext(ctx, &items, "SELECT id, name, value FROM config_items ORDER BY name"); err != nil {
		return nil, mapErr("get settings", err)
	}
	return items, nil
}

// PutSetting creates or overwrites a named setting
func (s *Store) PutSetting(ctx context.Context, name, value string) (*models.ConfigItem, error) {
	var item models.ConfigItem
	err := s.db.GetContext(ctx, &item, `
		INSERT INTO config_items (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
		RETURNING id, name, value`, name, value)
	if err != nil {
		return nil, mapErr("put setting", err)
	}
	return &item, nil
}

// GetNavItems lists the navigation in display order
func (s *Store) GetNavItems(ctx context.Context) ([]models.NavItem, error) {
	items := []models.NavItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT id, label, href, position, type FROM nav_items ORDER BY position, id")
	if err != nil {
		return nil, mapErr("get navigation", err)
	}
	return items, nil
}

// ReplaceNavItems swaps the whole navigation atomically
func (s *Store) ReplaceNavItems(ctx context.Context, items []models.NavItem) ([]models.NavItem, error) {
	out := make([]models.NavItem, 0, len(items))
	err := s.inTx(ctx, "replace navigation", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM nav_items"); err != nil {
			return mapErr("clear navigation", err)
		}
		for i, item := range items {
			if item.Label == "" || item.Href == "" {
				return apperr.Invalid("navigation item %d needs a label and href", i)
			}
			if item.Type == "" {
				item.Type = "link"
			}
			err := tx.QueryRowxContext(ctx,
				"INSERT INTO nav_items (label, href, position, type) VALUES ($1, $2, $3, $4) RETURNING id",
				item.Label, item.Href, item.Position, item.Type,
			).Scan(&item.ID)
			if err != nil {
				return mapErr("insert navigation item", err)
			}
			out = append(out, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
