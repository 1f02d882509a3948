package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/myasobot/myasobot/internal/nlsql"
	"github.com/myasobot/myasobot/internal/observability"
	"github.com/myasobot/myasobot/internal/products"
)

// searchProjection is the fixed column allowlist for every product
// query. COALESCE keeps scanning NULL-safe; missing text renders as the
// empty string and missing prices as zero, which formatting treats as
// "on request".
const searchProjection = `
	id,
	title,
	COALESCE(supplier_name, '') AS supplier_name,
	COALESCE(from_region, '') AS from_region,
	COALESCE(photo, '') AS photo,
	COALESCE(order_price_kg, 0) AS order_price_kg,
	COALESCE(min_order_weight_kg, 0) AS min_order_weight_kg,
	COALESCE(cooled_or_frozen, '') AS cooled_or_frozen,
	COALESCE(ready_made, false) AS ready_made,
	COALESCE(package_type, '') AS package_type,
	COALESCE(discount, '') AS discount`

const productsTable = "myaso.products"

var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\b`)

type Options struct {
	QueryTimeout time.Duration
	DefaultLimit int
	MaxLimit     int
}

// Repository executes catalog queries. A nil database handle is a legal
// state meaning no DSN was configured; every call then reports
// products.ErrPoolUnavailable.
type Repository struct {
	db           *sqlx.DB
	queryTimeout time.Duration
	defaultLimit int
	maxLimit     int
}

func NewRepository(db *sql.DB, opts Options) *Repository {
	r := &Repository{
		queryTimeout: opts.QueryTimeout,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
	}
	if r.queryTimeout <= 0 {
		r.queryTimeout = 30 * time.Second
	}
	if r.defaultLimit <= 0 {
		r.defaultLimit = 15
	}
	if r.maxLimit < r.defaultLimit {
		r.maxLimit = 100
	}
	if db != nil {
		r.db = sqlx.NewDb(db, "pgx")
	}
	return r
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if r.db == nil {
		return products.ErrPoolUnavailable
	}
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Search runs guarded SQL. Fragment text is interpolated into the
// canned products statement and fetched at limit+1 so truncation can be
// reported; a full SELECT runs as-is with a limit appended when absent.
func (r *Repository) Search(ctx context.Context, query nlsql.GeneratedQuery, limit int) (products.ExecutionResult, error) {
	if r.db == nil {
		return products.ExecutionResult{}, products.ErrPoolUnavailable
	}
	if strings.TrimSpace(query.Text) == "" {
		return products.ExecutionResult{}, fmt.Errorf("empty sql conditions")
	}
	limit = r.clampLimit(limit)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	started := time.Now()
	var (
		result products.ExecutionResult
		err    error
	)
	if query.Shape == nlsql.ShapeFullSelect {
		result, err = r.searchFullSelect(ctx, query.Text, limit)
	} else {
		result, err = r.searchFragment(ctx, query.Text, limit)
	}
	if err != nil {
		observability.ObserveCatalogSearchFailure()
		return products.ExecutionResult{}, err
	}
	observability.ObserveCatalogSearch(time.Since(started), result.HasMore)
	return result, nil
}

// searchFragment interpolates the WHERE text directly. The fragment has
// passed the keyword and pattern screens; the guard, not
// parameterization, is the defense for its content. The limit stays a
// bind parameter.
func (r *Repository) searchFragment(ctx context.Context, fragment string, limit int) (products.ExecutionResult, error) {
	stmt := fmt.Sprintf("SELECT%s\nFROM %s\nWHERE %s\nLIMIT $1", searchProjection, productsTable, fragment)

	var items []products.Product
	if err := r.db.SelectContext(ctx, &items, stmt, limit+1); err != nil {
		return products.ExecutionResult{}, &products.QueryError{Query: stmt, Err: err}
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return products.ExecutionResult{Products: items, HasMore: hasMore}, nil
}

// searchFullSelect trusts the statement's own projection, so rows are
// scanned loosely and mapped onto the allowlisted product fields;
// anything else in the row is dropped.
func (r *Repository) searchFullSelect(ctx context.Context, stmt string, limit int) (products.ExecutionResult, error) {
	stmt = ensureLimit(stmt, limit)

	rows, err := r.db.QueryxContext(ctx, stmt)
	if err != nil {
		return products.ExecutionResult{}, &products.QueryError{Query: stmt, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var items []products.Product
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return products.ExecutionResult{}, &products.QueryError{Query: stmt, Err: err}
		}
		items = append(items, productFromRow(row))
	}
	if err := rows.Err(); err != nil {
		return products.ExecutionResult{}, &products.QueryError{Query: stmt, Err: err}
	}
	return products.ExecutionResult{Products: items}, nil
}

func (r *Repository) Random(ctx context.Context, limit int) ([]products.Product, error) {
	if r.db == nil {
		return nil, products.ErrPoolUnavailable
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 20 {
		limit = 20
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	stmt := fmt.Sprintf("SELECT%s\nFROM %s\nORDER BY RANDOM()\nLIMIT $1", searchProjection, productsTable)
	var items []products.Product
	if err := r.db.SelectContext(ctx, &items, stmt, limit); err != nil {
		return nil, fmt.Errorf("select random products: %w", err)
	}
	return items, nil
}

func (r *Repository) ByTitle(ctx context.Context, title string) (products.Product, error) {
	if r.db == nil {
		return products.Product{}, products.ErrPoolUnavailable
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	stmt := fmt.Sprintf("SELECT%s\nFROM %s\nWHERE title = $1\nLIMIT 1", searchProjection, productsTable)
	var item products.Product
	if err := r.db.GetContext(ctx, &item, stmt, title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return products.Product{}, products.ErrNotFound
		}
		return products.Product{}, fmt.Errorf("select product by title: %w", err)
	}
	return item, nil
}

func (r *Repository) PhotosByIDs(ctx context.Context, ids []int64) ([]products.ProductPhoto, error) {
	if r.db == nil {
		return nil, products.ErrPoolUnavailable
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	stmt, args, err := sqlx.In(
		"SELECT id, title, COALESCE(photo, '') AS photo\nFROM "+productsTable+"\nWHERE id IN (?) AND photo IS NOT NULL AND photo != ''", ids)
	if err != nil {
		return nil, fmt.Errorf("build photo query: %w", err)
	}
	stmt = r.db.Rebind(stmt)

	var photos []products.ProductPhoto
	if err := r.db.SelectContext(ctx, &photos, stmt, args...); err != nil {
		return nil, fmt.Errorf("select product photos: %w", err)
	}
	return photos, nil
}

func (r *Repository) clampLimit(limit int) int {
	if limit <= 0 {
		return r.defaultLimit
	}
	if limit > r.maxLimit {
		return r.maxLimit
	}
	return limit
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

// ensureLimit appends a LIMIT clause when the statement has none.
// Detection is a plain token search; a literal "limit" inside a string
// constant is a known false positive, accepted instead of pulling in a
// SQL tokenizer.
func ensureLimit(stmt string, limit int) string {
	if limitPattern.MatchString(stmt) {
		return stmt
	}
	trimmed := strings.TrimRight(strings.TrimSpace(stmt), ";")
	return fmt.Sprintf("%s LIMIT %d", trimmed, limit)
}
