// Package postgres reads column metadata from the information_schema
// catalog views.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/myasobot/myasobot/internal/products"
	"github.com/myasobot/myasobot/internal/schema"
)

const columnsQuery = `
SELECT column_name, data_type, is_nullable, numeric_precision, numeric_scale
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// Introspector implements schema.Source over a live database handle.
type Introspector struct {
	db      *sql.DB
	timeout time.Duration
}

func NewIntrospector(db *sql.DB, queryTimeout time.Duration) *Introspector {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &Introspector{db: db, timeout: queryTimeout}
}

func (i *Introspector) Columns(ctx context.Context, schemaName, tableName string) ([]schema.ColumnSpec, error) {
	if i.db == nil {
		return nil, products.ErrPoolUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	rows, err := i.db.QueryContext(ctx, columnsQuery, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("query catalog columns: %w", err)
	}
	defer rows.Close()

	var specs []schema.ColumnSpec
	for rows.Next() {
		var (
			spec      schema.ColumnSpec
			nullable  string
			precision sql.NullInt64
			scale     sql.NullInt64
		)
		if err := rows.Scan(&spec.Name, &spec.SQLType, &nullable, &precision, &scale); err != nil {
			return nil, fmt.Errorf("scan catalog column: %w", err)
		}
		spec.Nullable = nullable == "YES"
		if precision.Valid {
			spec.Precision = precision.Int64
		}
		if scale.Valid {
			spec.Scale = scale.Int64
		}
		specs = append(specs, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog columns: %w", err)
	}
	return specs, nil
}
