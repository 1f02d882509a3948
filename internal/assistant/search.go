package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/myasobot/myasobot/internal/nlsql"
	"github.com/myasobot/myasobot/internal/observability"
	"github.com/myasobot/myasobot/internal/products"
	"github.com/myasobot/myasobot/internal/reply"
	"github.com/myasobot/myasobot/internal/schema"
	"github.com/myasobot/myasobot/internal/sqlguard"
)

// errNoResults drives init-flow retries; its text feeds the repair turn
// the model sees, so it stays in the model's language.
var errNoResults = errors.New("товары по указанным условиям не найдены")

// SearchResult is the rendered outcome of one pipeline run.
type SearchResult struct {
	Reply      string  `json:"text"`
	ProductIDs []int64 `json:"product_ids,omitempty"`
	HasMore    bool    `json:"has_more"`
	Query      string  `json:"query,omitempty"`
	Attempts   int     `json:"attempts"`
}

// Search runs the full pipeline: generate SQL from the conditions,
// screen it, execute it, and render the product listing. Failed
// attempts regenerate with error-specific feedback, up to
// Config.MaxAttempts with exponential backoff. An unconfigured database
// yields the fixed reply, not an error.
func (s *Service) Search(ctx context.Context, conditions, topic string, limit int) (SearchResult, error) {
	return s.runSearch(ctx, conditions, topic, limit, false)
}

func (s *Service) runSearch(ctx context.Context, conditions, topic string, limit int, retryEmpty bool) (SearchResult, error) {
	s.ensureDefaults()
	if strings.TrimSpace(conditions) == "" {
		return SearchResult{}, fmt.Errorf("search conditions are required")
	}
	if limit <= 0 {
		limit = s.Config.SearchLimit
	}

	systemVars := s.systemVariables(ctx)

	var (
		previousSQL string
		lastErr     error
	)
	for attempt := 1; attempt <= s.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := s.Config.RetryBackoff << (attempt - 2)
			if err := s.Sleep(ctx, backoff); err != nil {
				return SearchResult{Attempts: attempt - 1}, err
			}
		}

		observability.ObserveGenerationAttempt()

		turn := conditions
		if attempt > 1 && previousSQL != "" && lastErr != nil {
			turn = s.repairTurn(ctx, conditions, previousSQL, lastErr, attempt)
		}

		query, err := s.Generator.Generate(ctx, turn, topic)
		if err != nil {
			if errors.Is(err, products.ErrPoolUnavailable) {
				return SearchResult{Reply: reply.DatabaseNotConfigured, Attempts: attempt}, nil
			}
			observability.ObserveGenerationFailure(failureReason(err))
			s.Logger.Warn("sql generation failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}

		if err := s.Guard.Check(query.Text, query.Shape == nlsql.ShapeFragment); err != nil {
			var rejection *sqlguard.RejectionError
			if errors.As(err, &rejection) {
				observability.ObserveGuardRejection(rejection.Kind)
			}
			observability.ObserveGenerationFailure(failureReason(err))
			s.Logger.Warn("generated sql rejected", "attempt", attempt, "error", err, "sql", query.Text)
			lastErr = err
			previousSQL = query.Text
			continue
		}

		result, err := s.Catalog.Search(ctx, query, limit)
		if errors.Is(err, products.ErrPoolUnavailable) {
			return SearchResult{Reply: reply.DatabaseNotConfigured, Attempts: attempt}, nil
		}
		if err != nil {
			observability.ObserveGenerationFailure(failureReason(err))
			s.Logger.Warn("catalog search failed", "attempt", attempt, "error", err)
			lastErr = err
			previousSQL = query.Text
			continue
		}

		if len(result.Products) == 0 && retryEmpty {
			s.Logger.Warn("catalog search matched nothing", "attempt", attempt, "sql", query.Text)
			lastErr = errNoResults
			previousSQL = query.Text
			continue
		}

		text, ids := reply.RenderProducts(result.Products, result.HasMore, limit, systemVars)
		return SearchResult{
			Reply:      text,
			ProductIDs: ids,
			HasMore:    result.HasMore,
			Query:      query.Text,
			Attempts:   attempt,
		}, nil
	}

	return SearchResult{Attempts: s.Config.MaxAttempts},
		fmt.Errorf("generate sql conditions after %d attempts: %w", s.Config.MaxAttempts, lastErr)
}

// repairTurn rebuilds the user turn for a retry: the original request,
// the failed SQL, and an error-specific correction block.
func (s *Service) repairTurn(ctx context.Context, conditions, previousSQL string, lastErr error, attempt int) string {
	return fmt.Sprintf(`ИСПРАВЬ SQL ЗАПРОС!

Исходный запрос: %s
%s
Попытка %d/%d. Верни ТОЛЬКО исправленные SQL условия (без WHERE, без SELECT, только условия для WHERE):
`, conditions, s.errorHint(ctx, previousSQL, lastErr, attempt), attempt, s.Config.MaxAttempts)
}

func (s *Service) errorHint(ctx context.Context, previousSQL string, lastErr error, attempt int) string {
	switch products.FailureKind(lastErr) {
	case products.FailureUnknownColumn:
		return fmt.Sprintf(`
ОШИБКА: Использована несуществующая колонка!
Предыдущий SQL (попытка %d): %s
Ошибка: %s

ИСПРАВЛЕНИЕ:
1. Проверь каждую колонку в SQL - используй ТОЛЬКО колонки из схемы: id, title, supplier_name, from_region, photo, pricelist_date, package_weight, order_price_kg, min_order_weight_kg, discount, ready_made, package_type, cooled_or_frozen, product_in_package
2. НЕ используй: topic, category, name, description - этих колонок НЕТ!
3. Если нужно найти товары по теме - используй title ILIKE '%%тема%%'
4. Удали все условия с несуществующими колонками
%s`, attempt-1, previousSQL, lastErr, s.schemaHint(ctx))
	case products.FailureSyntax:
		return fmt.Sprintf(`
ОШИБКА СИНТАКСИСА SQL!
Предыдущий SQL (попытка %d): %s
Ошибка: %s

ИСПРАВЛЕНИЕ:
1. Проверь синтаксис SQL - используй правильные операторы (=, <, >, <=, >=, LIKE, ILIKE, IS NULL, IS NOT NULL)
2. Для текста используй кавычки: supplier_name = 'Мироторг'
3. Для чисел НЕ используй кавычки: order_price_kg < 100
4. НЕ используй ключевое слово WHERE - только условия!
5. Используй AND/OR для объединения условий
`, attempt-1, previousSQL, lastErr)
	default:
		return fmt.Sprintf(`
ОШИБКА ВЫПОЛНЕНИЯ SQL!
Предыдущий SQL (попытка %d): %s
Ошибка: %s

ИСПРАВЛЕНИЕ:
1. Проверь все условия на корректность
2. Убедись что используешь только существующие колонки
3. Проверь типы данных (текст в кавычках, числа без кавычек)
4. Используй правильные операторы сравнения
%s`, attempt-1, previousSQL, lastErr, s.schemaHint(ctx))
	}
}

// schemaHint appends the live products schema to a correction block, or
// nothing when the schema cannot be fetched.
func (s *Service) schemaHint(ctx context.Context) string {
	if s.Schema == nil {
		return ""
	}
	described, err := s.Schema.Describe(ctx, schema.TableProducts)
	if err != nil {
		return ""
	}
	return "\nТочная схема таблицы:\n" + described + "\n"
}

// failureReason folds an attempt error onto the metric label set.
func failureReason(err error) string {
	var (
		invocation *nlsql.ModelInvocationError
		dangerous  *nlsql.DangerousKeywordError
		rejection  *sqlguard.RejectionError
		queryErr   *products.QueryError
	)
	switch {
	case errors.Is(err, schema.ErrSchemaUnavailable):
		return "schema_unavailable"
	case errors.As(err, &invocation):
		return "model_invocation"
	case errors.Is(err, nlsql.ErrEmptyGeneration):
		return "empty_generation"
	case errors.As(err, &dangerous):
		return "dangerous_keyword"
	case errors.As(err, &rejection):
		return "guard_rejected"
	case errors.As(err, &queryErr):
		return "query_execution"
	default:
		return "other"
	}
}
