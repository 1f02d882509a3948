package nlsql

import (
	"context"
	"log/slog"
	"strings"

	"github.com/myasobot/myasobot/internal/llm"
	"github.com/myasobot/myasobot/internal/sqlguard"
)

// ChatClient is the chat-completion surface the generator calls.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// SchemaDescriber renders the database schema block injected into
// generation prompts.
type SchemaDescriber interface {
	ContextBlock(ctx context.Context) (string, error)
}

// PromptSource resolves operator-managed instruction templates by
// topic. A lookup miss is not an error; found reports it.
type PromptSource interface {
	Lookup(ctx context.Context, topic string) (text string, found bool, err error)
}

const (
	// DefaultTemperature keeps generation near-deterministic since the
	// output is parsed, not read.
	DefaultTemperature = 0.1

	// DefaultTopic names the stored instruction template used when the
	// caller supplies no topic or the supplied topic has none.
	DefaultTopic = "Получить товары при инициализации диалога"
)

// userTurnVariable is the one substitution variable the prompting layer
// recognizes; every other {identifier} in instruction text gets its
// braces escaped.
const userTurnVariable = "text_conditions"

const defaultInstruction = `Ты — эксперт по PostgreSQL в отделе продаж мясной продукции.
Преобразуй запрос покупателя в SQL-условия для поиска товаров.
Верни ТОЛЬКО условия для WHERE (без слова WHERE, без SELECT) — либо полный SELECT, если нужна история цен.`

const generationRules = `СЦЕНАРИЙ 1: Запрос содержит ТОЛЬКО слова-действия БЕЗ конкретных критериев товаров
Примеры: "продать", "показать товары", "что у вас есть", "дай", "покажи"

→ Верни ТОЛЬКО условие для фото: photo IS NOT NULL AND photo != ''
→ НЕ добавляй никаких условий по title!

СЦЕНАРИЙ 2: Запрос содержит слова-действия + конкретные критерии товаров
Примеры: "продать говядину", "показать стейки", "найти мясо из Бурятии"

→ ПОЛНОСТЬЮ ИГНОРИРУЙ слова-действия (продать, показать, есть, найти)
→ Используй ТОЛЬКО конкретные критерии товаров:
  * "продать говядину" → title ILIKE '%говядина%' AND photo IS NOT NULL AND photo != ''
  * "найти мясо из Бурятии" → from_region = 'Бурятия' AND photo IS NOT NULL AND photo != ''

ПРАВИЛА ДЛЯ WHERE УСЛОВИЙ:
1. Используй ТОЛЬКО колонки из схемы выше! Никаких других колонок не существует!
2. Используй имена колонок БЕЗ префиксов (title, а не products.title или myaso.products.title).
3. Для текстовых полей используй ILIKE для поиска без учета регистра: title ILIKE '%говядина%'
4. Для проверки NULL используй: photo IS NOT NULL или photo IS NULL
5. Для булевых полей: ready_made = true или ready_made = false
6. Для числовых сравнений: order_price_kg < 100, discount >= 15
7. Для точного совпадения текста: supplier_name = 'Мироторг'
8. Для дат: pricelist_date > '2024-01-01' или pricelist_date >= CURRENT_DATE

Если вопрос касается динамики или истории цен, верни полный SELECT с JOIN по таблице price_history.

ВАЖНО - ТОВАРЫ С ФОТО:
ВСЕГДА добавляй условие для выбора только товаров с фотографиями: photo IS NOT NULL AND photo != ''
Это условие должно быть в КАЖДОМ запросе, если покупатель явно не просит товары без фото.`

// Generator asks the model for SQL and normalizes the answer into a
// GeneratedQuery. It holds no per-request state.
type Generator struct {
	chat        ChatClient
	schema      SchemaDescriber
	prompts     PromptSource
	guard       *sqlguard.Guard
	logger      *slog.Logger
	temperature float64
}

// NewGenerator wires the generation pipeline. prompts may be nil, in
// which case the built-in instruction template is always used.
func NewGenerator(chat ChatClient, schema SchemaDescriber, prompts PromptSource, guard *sqlguard.Guard, logger *slog.Logger) *Generator {
	if guard == nil {
		guard = sqlguard.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		chat:        chat,
		schema:      schema,
		prompts:     prompts,
		guard:       guard,
		logger:      logger,
		temperature: DefaultTemperature,
	}
}

// SetTemperature overrides the sampling temperature for SQL generation.
// Values outside (0, 1] keep the default.
func (g *Generator) SetTemperature(t float64) {
	if t > 0 && t <= 1 {
		g.temperature = t
	}
}

// Generate turns natural-language conditions into normalized SQL. The
// topic selects a stored instruction template; empty topic falls back
// to the default template. Schema fetch failures are fatal to the call.
func (g *Generator) Generate(ctx context.Context, conditions, topic string) (GeneratedQuery, error) {
	instruction, err := g.instruction(ctx, topic)
	if err != nil {
		return GeneratedQuery{}, err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: instruction},
		{Role: llm.RoleUser, Content: conditions},
	}
	raw, err := g.chat.Chat(ctx, messages, g.temperature)
	if err != nil {
		return GeneratedQuery{}, &ModelInvocationError{Err: err}
	}

	return g.normalize(raw)
}

// instruction assembles the system prompt: resolved template, schema
// block, and the fixed generation rules, with stray template variables
// escaped.
func (g *Generator) instruction(ctx context.Context, topic string) (string, error) {
	template := g.template(ctx, topic)

	schemaBlock, err := g.schema.ContextBlock(ctx)
	if err != nil {
		return "", err
	}

	combined := strings.Join([]string{template, schemaBlock, generationRules}, "\n\n")
	return escapePlaceholders(combined, map[string]struct{}{userTurnVariable: {}}), nil
}

func (g *Generator) template(ctx context.Context, topic string) string {
	if g.prompts == nil {
		return defaultInstruction
	}
	if topic != "" {
		if text, found := g.lookup(ctx, topic); found {
			return text
		}
	}
	if text, found := g.lookup(ctx, DefaultTopic); found {
		return text
	}
	return defaultInstruction
}

// lookup degrades store failures to a miss; generation proceeds on the
// built-in template rather than failing the request.
func (g *Generator) lookup(ctx context.Context, topic string) (string, bool) {
	text, found, err := g.prompts.Lookup(ctx, topic)
	if err != nil {
		g.logger.Warn("prompt template lookup failed", "topic", topic, "error", err)
		return "", false
	}
	if !found || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func (g *Generator) normalize(raw string) (GeneratedQuery, error) {
	text := stripCodeFences(raw)
	shape := Classify(text)
	switch shape {
	case ShapeFullSelect:
		text = canonicalizeSelect(text)
	default:
		text = normalizeFragment(text)
	}

	if strings.TrimSpace(text) == "" {
		return GeneratedQuery{}, ErrEmptyGeneration
	}
	if keyword, found := g.guard.ScanKeywords(text); found {
		return GeneratedQuery{}, &DangerousKeywordError{Keyword: keyword}
	}
	return GeneratedQuery{Text: text, Shape: shape}, nil
}
