package store

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var productColumns = []string{
	"id", "title", "summary", "description", "price", "image", "platform", "category",
	"tags", "author", "version", "download_count", "rating", "review_count",
	"release_date", "last_update", "created_at", "updated_at",
}

var productSelect = strings.Join(productColumns, ", ")

// joinedProductColumns selects the product columns of alias under the
// "product." prefix sqlx uses for the nested Product field.
func joinedProductColumns(alias string) string {
	cols := make([]string, len(productColumns))
	for i, c := range productColumns {
		cols[i] = fmt.Sprintf(`%s.%s AS "product.%s"`, alias, c, c)
	}
	return strings.Join(cols, ", ")
}

var sortClauses = map[catalog.Sort]string{
	catalog.SortPopularity: "download_count DESC",
	catalog.SortNewest:     "created_at DESC",
	catalog.SortPriceAsc:   "price ASC",
	catalog.SortPriceDesc:  "price DESC",
}

// orderBy whitelists the sort and appends the id tiebreak. Unknown sorts fall
// back to newest.
func orderBy(s catalog.Sort) string {
	clause, ok := sortClauses[s]
	if !ok {
		clause = sortClauses[catalog.SortNewest]
	}
	return clause + ", id ASC"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// listQuery is the SQL for one catalog page and its total count
type listQuery struct {
	Select    string
	Count     string
	Args      []any
	CountArgs []any
}

func buildListQuery(p catalog.ListParams) listQuery {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	f := p.Filter
	if len(f.Platforms) > 0 {
		where = append(where, "platform = ANY("+arg(pq.Array(f.Platforms))+")")
	}
	if len(f.Categories) > 0 {
		where = append(where, "category = ANY("+arg(pq.Array(f.Categories))+")")
	}
	if len(f.Tags) > 0 {
		where = append(where, "tags && "+arg(pq.Array(f.Tags))+"::text[]")
	}
	if f.Price != nil {
		where = append(where, "price BETWEEN "+arg(f.Price.Min)+" AND "+arg(f.Price.Max))
	}
	if search := strings.TrimSpace(p.Search); search != "" {
		where = append(where, "title ILIKE "+arg("%"+escapeLike(search)+"%")+` ESCAPE '\'`)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := listQuery{
		Count:     "SELECT COUNT(*) FROM products" + clause,
		CountArgs: append([]any(nil), args...),
	}
	limit := arg(p.PageSize)
	offset := arg(p.Offset())
	q.Select = "SELECT " + productSelect + " FROM products" + clause +
		" ORDER BY " + orderBy(p.Sort) + " LIMIT " + limit + " OFFSET " + offset
	q.Args = args
	return q
}

// ListProducts returns one page of the catalog and the number of products
// matching the filter across all pages.
func (s *Store) ListProducts(ctx context.Context, p catalog.ListParams) ([]models.Product, int, error) {
	if err := p.Validate(); err != nil {
		return nil, 0, err
	}
	q := buildListQuery(p)

	var total int
	if err := s.db.GetContext(ctx, &total, q.Count, q.CountArgs...); err != nil {
		return nil, 0, mapErr("count products", err)
	}

	products := []models.Product{}
	if p.Offset() >= total {
		return products, total, nil
	}
	if err := s.db.SelectContext(ctx, &products, q.Select, q.Args...); err != nil {
		return nil, 0, mapErr("list products", err)
	}
	return products, total, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productSelect+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound("product", id, "get product", err)
	}
	return &product, nil
}

// CreateProduct inserts p and fills in its generated fields
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (title, summary, description, price, image, platform, category,
			tags, author, version, release_date, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, download_count, rating, review_count, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		p.Title, p.Summary, p.Description, p.Price, p.Image, p.Platform, p.Category,
		pq.Array(tagsOrEmpty(p.Tags)), p.Author, p.Version, p.ReleaseDate, p.LastUpdate)
	err := row.Scan(&p.ID, &p.DownloadCount, &p.Rating, &p.ReviewCount, &p.CreatedAt, &p.UpdatedAt)
	return mapErr("create product", err)
}

// UpdateProduct overwrites the editable fields of p
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products SET title = $2, summary = $3, description = $4, price = $5, image = $6,
			platform = $7, category = $8, tags = $9, author = $10, release_date = $11,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + productSelect

	err := s.db.GetContext(ctx, p, query,
		p.ID, p.Title, p.Summary, p.Description, p.Price, p.Image, p.Platform, p.Category,
		pq.Array(tagsOrEmpty(p.Tags)), p.Author, p.ReleaseDate)
	if err != nil {
		return notFound("product", p.ID, "update product", err)
	}
	return nil
}

// DeleteProduct removes a product that no order refers to. Versions,
// reviews and cart or wishlist lines go with it.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.inTx(ctx, "delete product", func(tx *sqlx.Tx) error {
		var ordered bool
		err := tx.GetContext(ctx, &ordered,
			"SELECT EXISTS(SELECT 1 FROM order_items WHERE product_id = $1)", id)
		if err != nil {
			return notFound("product", id, "delete product", err)
		}
		if ordered {
			return apperr.Invalid("product %s has orders and cannot be deleted", id)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
		if err != nil {
			return mapErr("delete product", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("product", id)
		}
		return nil
	})
}

// IncrementDownloadCount bumps the counter once per event id. It reports
// whether the event was new.
func (s *Store) IncrementDownloadCount(ctx context.Context, eventID, productID string) (bool, error) {
	applied := false
	err := s.inTx(ctx, "increment download count", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
			eventID, models.EventTypeProductDownloaded)
		if err != nil {
			return mapErr("mark event", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE products SET download_count = download_count + 1 WHERE id = $1", productID); err != nil {
			return mapErr("increment download count", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
