// Package products defines the catalog domain: the fixed product
// projection conversation flows may see, search over generated SQL, and
// photo lookups for WhatsApp delivery.
package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/myasobot/myasobot/internal/nlsql"
)

var (
	ErrNotFound = errors.New("products: not found")

	// ErrPoolUnavailable means no database DSN was configured. A
	// configuration problem, not a query failure; callers surface a
	// fixed user-facing message instead of crashing the request.
	ErrPoolUnavailable = errors.New("products: database pool is not configured")
)

// Product is the fixed projection the catalog exposes. The column set
// is an allowlist; the embedding column in particular must never be
// added here.
type Product struct {
	ID               int64   `db:"id" json:"id"`
	Title            string  `db:"title" json:"title"`
	SupplierName     string  `db:"supplier_name" json:"supplier_name"`
	FromRegion       string  `db:"from_region" json:"from_region"`
	Photo            string  `db:"photo" json:"photo"`
	OrderPriceKg     float64 `db:"order_price_kg" json:"order_price_kg"`
	MinOrderWeightKg int64   `db:"min_order_weight_kg" json:"min_order_weight_kg"`
	CooledOrFrozen   string  `db:"cooled_or_frozen" json:"cooled_or_frozen"`
	ReadyMade        bool    `db:"ready_made" json:"ready_made"`
	PackageType      string  `db:"package_type" json:"package_type"`
	Discount         string  `db:"discount" json:"discount"`
}

// ProductPhoto is the slice of a product needed to send its picture.
type ProductPhoto struct {
	ID    int64  `db:"id" json:"id"`
	Title string `db:"title" json:"title"`
	Photo string `db:"photo" json:"photo"`
}

// ExecutionResult is what a search returns. HasMore is set only in
// fragment mode, when the table held more matching rows than the limit.
type ExecutionResult struct {
	Products []Product
	HasMore  bool
}

// Repository is the catalog access surface.
type Repository interface {
	Search(ctx context.Context, query nlsql.GeneratedQuery, limit int) (ExecutionResult, error)
	Random(ctx context.Context, limit int) ([]Product, error)
	ByTitle(ctx context.Context, title string) (Product, error)
	PhotosByIDs(ctx context.Context, ids []int64) ([]ProductPhoto, error)
}

// QueryError wraps a database-level failure of generated SQL. The text
// passed the guard but the database still refused it; surfaced as a
// "nothing found" style message, never a crash.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("products: query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Failure kinds used to steer regeneration feedback.
const (
	FailureUnknownColumn = "unknown_column"
	FailureSyntax        = "syntax"
	FailureOther         = "other"
)

// FailureKind maps a query failure onto the feedback hint the SQL
// generator understands, using the SQLSTATE class when the driver
// reports one.
func FailureKind(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return FailureOther
	}
	switch {
	case pgErr.Code == pgerrcode.UndefinedColumn:
		return FailureUnknownColumn
	case pgerrcode.IsSyntaxErrororAccessRuleViolation(pgErr.Code):
		return FailureSyntax
	default:
		return FailureOther
	}
}
