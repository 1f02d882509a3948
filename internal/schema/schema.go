// Package schema provides the column metadata for the tables the SQL
// generation pipeline may reference, rendered as the schema block of
// generation prompts.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrSchemaUnavailable means column metadata could not be fetched for a
// permitted table. Generation cannot proceed without it; there is no
// fallback schema.
var ErrSchemaUnavailable = errors.New("table schema unavailable")

// Namespace is the fixed schema every permitted table lives in.
const Namespace = "myaso"

const (
	TableProducts     = "products"
	TablePriceHistory = "price_history"
)

// AllowedTables lists the tables, in presentation order, that generated
// SQL may touch.
var AllowedTables = []string{TableProducts, TablePriceHistory}

type ColumnSpec struct {
	Name      string
	SQLType   string
	Nullable  bool
	Precision int64
	Scale     int64
}

// Source fetches column metadata from the database catalog.
type Source interface {
	Columns(ctx context.Context, schemaName, tableName string) ([]ColumnSpec, error)
}

// Service caches catalog metadata per table for the process lifetime.
// Entries are populated at most once and never evicted; a schema change
// requires a restart. Concurrent first access may fetch twice, which is
// harmless.
type Service struct {
	source Source

	mu    sync.RWMutex
	cache map[string][]ColumnSpec
}

func NewService(source Source) *Service {
	return &Service{
		source: source,
		cache:  map[string][]ColumnSpec{},
	}
}

// Describe renders the column list of one permitted table.
func (s *Service) Describe(ctx context.Context, tableName string) (string, error) {
	specs, err := s.columns(ctx, tableName)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Таблица %s.%s:\n", Namespace, tableName)
	for _, spec := range specs {
		b.WriteString(formatColumn(spec))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ContextBlock renders the full schema block covering every permitted
// table, used as prompt context for SQL generation.
func (s *Service) ContextBlock(ctx context.Context) (string, error) {
	sections := make([]string, 0, len(AllowedTables)+1)
	sections = append(sections, fmt.Sprintf("СХЕМА БАЗЫ ДАННЫХ: %s", Namespace))
	for _, table := range AllowedTables {
		section, err := s.Describe(ctx, table)
		if err != nil {
			return "", err
		}
		sections = append(sections, section)
	}
	return strings.Join(sections, "\n\n"), nil
}

func (s *Service) columns(ctx context.Context, tableName string) ([]ColumnSpec, error) {
	if !allowed(tableName) {
		return nil, fmt.Errorf("%w: table %q is not permitted", ErrSchemaUnavailable, tableName)
	}

	s.mu.RLock()
	specs, ok := s.cache[tableName]
	s.mu.RUnlock()
	if ok {
		return specs, nil
	}

	specs, err := s.source.Columns(ctx, Namespace, tableName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %w", ErrSchemaUnavailable, Namespace, tableName, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %s.%s has no columns", ErrSchemaUnavailable, Namespace, tableName)
	}

	s.mu.Lock()
	s.cache[tableName] = specs
	s.mu.Unlock()
	return specs, nil
}

func formatColumn(spec ColumnSpec) string {
	sqlType := spec.SQLType
	if spec.Precision > 0 && (sqlType == "numeric" || sqlType == "decimal") {
		sqlType = fmt.Sprintf("%s(%d,%d)", sqlType, spec.Precision, spec.Scale)
	}
	nullability := "NOT NULL"
	if spec.Nullable {
		nullability = "NULL"
	}
	return fmt.Sprintf("- %s (%s, %s)", spec.Name, sqlType, nullability)
}

func allowed(tableName string) bool {
	for _, table := range AllowedTables {
		if table == tableName {
			return true
		}
	}
	return false
}
