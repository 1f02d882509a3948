package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/myasobot/myasobot/internal/clients"
	"github.com/myasobot/myasobot/internal/llm"
	"github.com/myasobot/myasobot/internal/memory"
	"github.com/myasobot/myasobot/internal/nlsql"
	"github.com/myasobot/myasobot/internal/products"
	"github.com/myasobot/myasobot/internal/reply"
	"github.com/myasobot/myasobot/internal/sqlguard"
)

func TestSearchRendersProducts(t *testing.T) {
	svc, st := newStubbedService()
	st.generator.steps = []generateStep{{query: nlsql.GeneratedQuery{Text: "title ILIKE '%говядина%'", Shape: nlsql.ShapeFragment}}}
	st.catalog.searchSteps = []searchStep{{result: products.ExecutionResult{
		Products: []products.Product{
			{ID: 1, Title: "Говядина охлаждённая", SupplierName: "Мираторг", OrderPriceKg: 450},
			{ID: 2, Title: "Говядина замороженная", SupplierName: "Агрокомплекс", OrderPriceKg: 390},
		},
	}}}

	result, err := svc.Search(context.Background(), "хочу говядину", "Мясо для шашлыка", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", result.Attempts)
	}
	if !reflect.DeepEqual(result.ProductIDs, []int64{1, 2}) {
		t.Errorf("product ids = %v", result.ProductIDs)
	}
	if !strings.Contains(result.Reply, "Найдено товаров: 2") {
		t.Errorf("reply missing count header: %q", result.Reply)
	}
	if !strings.Contains(result.Reply, `[PRODUCT_IDS]{"product_ids":[1,2]}[/PRODUCT_IDS]`) {
		t.Errorf("reply missing id manifest: %q", result.Reply)
	}
	if result.Query != "title ILIKE '%говядина%'" {
		t.Errorf("query = %q", result.Query)
	}
	if !reflect.DeepEqual(st.catalog.searchLimits, []int{15}) {
		t.Errorf("search limits = %v, want default", st.catalog.searchLimits)
	}
	if !reflect.DeepEqual(st.generator.topics, []string{"Мясо для шашлыка"}) {
		t.Errorf("generator topics = %v", st.generator.topics)
	}
	if len(st.sleeps) != 0 {
		t.Errorf("unexpected retry waits: %v", st.sleeps)
	}
}

func TestSearchRetriesWithColumnFeedback(t *testing.T) {
	svc, st := newStubbedService()
	st.generator.steps = []generateStep{
		{query: nlsql.GeneratedQuery{Text: "category = 'говядина'", Shape: nlsql.ShapeFragment}},
		{query: nlsql.GeneratedQuery{Text: "title ILIKE '%говядина%'", Shape: nlsql.ShapeFragment}},
	}
	pgErr := &pgconn.PgError{Code: pgerrcode.UndefinedColumn, Message: `column "category" does not exist`}
	st.catalog.searchSteps = []searchStep{
		{err: &products.QueryError{Query: "category = 'говядина'", Err: pgErr}},
		{result: products.ExecutionResult{Products: []products.Product{{ID: 7, Title: "Говядина"}}}},
	}

	result, err := svc.Search(context.Background(), "хочу говядину", "", 15)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", result.Attempts)
	}
	if !reflect.DeepEqual(st.sleeps, []time.Duration{time.Second}) {
		t.Errorf("retry waits = %v", st.sleeps)
	}
	if len(st.generator.turns) != 2 {
		t.Fatalf("generator calls = %d", len(st.generator.turns))
	}
	repair := st.generator.turns[1]
	for _, fragment := range []string{
		"ИСПРАВЬ SQL ЗАПРОС!",
		"Исходный запрос: хочу говядину",
		"Использована несуществующая колонка",
		"category = 'говядина'",
		"title ILIKE '%тема%'",
		"Точная схема таблицы:",
		"Попытка 2/3",
	} {
		if !strings.Contains(repair, fragment) {
			t.Errorf("repair turn missing %q:\n%s", fragment, repair)
		}
	}
}

func TestSearchReportsUnconfiguredDatabase(t *testing.T) {
	svc, st := newStubbedService()
	st.catalog.searchSteps = []searchStep{{err: products.ErrPoolUnavailable}}

	result, err := svc.Search(context.Background(), "свинина", "", 15)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Reply != reply.DatabaseNotConfigured {
		t.Errorf("reply = %q", result.Reply)
	}
	if len(st.sleeps) != 0 {
		t.Errorf("unexpected retries: %v", st.sleeps)
	}

	svc, st = newStubbedService()
	st.generator.steps = []generateStep{{err: fmt.Errorf("describe products: %w", products.ErrPoolUnavailable)}}

	result, err = svc.Search(context.Background(), "свинина", "", 15)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Reply != reply.DatabaseNotConfigured {
		t.Errorf("reply = %q", result.Reply)
	}
	if len(st.catalog.searchCalls) != 0 {
		t.Errorf("catalog reached without a pool: %v", st.catalog.searchCalls)
	}
}

func TestSearchExhaustsOnGuardRejection(t *testing.T) {
	svc, st := newStubbedService()
	st.generator.steps = []generateStep{{query: nlsql.GeneratedQuery{Text: "1=1; DROP TABLE products", Shape: nlsql.ShapeFragment}}}

	result, err := svc.Search(context.Background(), "все товары", "", 15)
	if err == nil {
		t.Fatal("expected error after exhausted attempts")
	}
	var rejection *sqlguard.RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("error = %v, want guard rejection cause", err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error = %v", err)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if !reflect.DeepEqual(st.sleeps, []time.Duration{time.Second, 2 * time.Second}) {
		t.Errorf("retry waits = %v", st.sleeps)
	}
	if len(st.catalog.searchCalls) != 0 {
		t.Errorf("rejected sql reached the catalog: %v", st.catalog.searchCalls)
	}
}

func TestSearchRetriesEmptyResultWhenRequested(t *testing.T) {
	svc, st := newStubbedService()
	st.generator.steps = []generateStep{{query: nlsql.GeneratedQuery{Text: "title ILIKE '%кролик%'", Shape: nlsql.ShapeFragment}}}
	st.catalog.searchSteps = []searchStep{
		{result: products.ExecutionResult{}},
		{result: products.ExecutionResult{Products: []products.Product{{ID: 3, Title: "Кролик"}}}},
	}

	result, err := svc.runSearch(context.Background(), "кролик", "", 15, true)
	if err != nil {
		t.Fatalf("runSearch() error = %v", err)
	}
	if result.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", result.Attempts)
	}
	if !strings.Contains(st.generator.turns[1], "товары по указанным условиям не найдены") {
		t.Errorf("repair turn missing empty-result feedback:\n%s", st.generator.turns[1])
	}
}

func TestSearchKeepsEmptyResultByDefault(t *testing.T) {
	svc, st := newStubbedService()
	st.catalog.searchSteps = []searchStep{{result: products.ExecutionResult{}}}

	result, err := svc.Search(context.Background(), "страус", "", 15)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Reply != reply.NothingFound {
		t.Errorf("reply = %q", result.Reply)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", result.Attempts)
	}
	if len(st.sleeps) != 0 {
		t.Errorf("unexpected retries: %v", st.sleeps)
	}
}

func TestSearchReportsTruncation(t *testing.T) {
	svc, st := newStubbedService()
	st.catalog.searchSteps = []searchStep{{result: products.ExecutionResult{
		Products: []products.Product{{ID: 1, Title: "Свинина"}},
		HasMore:  true,
	}}}

	result, err := svc.Search(context.Background(), "свинина", "", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !result.HasMore {
		t.Error("HasMore = false, want true")
	}
	if !strings.Contains(result.Reply, "показываем первые 1") {
		t.Errorf("reply missing truncation warning: %q", result.Reply)
	}
}

func TestSearchRequiresConditions(t *testing.T) {
	svc, _ := newStubbedService()
	if _, err := svc.Search(context.Background(), "   ", "", 15); err == nil {
		t.Fatal("expected error for blank conditions")
	}
}

type stubs struct {
	generator *stubGenerator
	catalog   *stubCatalog
	chat      *stubChat
	prompts   *stubPrompts
	history   *stubHistory
	directory *stubDirectory
	messenger *stubMessenger
	sleeps    []time.Duration
}

func newStubbedService() (*Service, *stubs) {
	st := &stubs{
		generator: &stubGenerator{},
		catalog:   &stubCatalog{},
		chat:      &stubChat{},
		prompts:   &stubPrompts{},
		history:   &stubHistory{},
		directory: &stubDirectory{},
		messenger: &stubMessenger{},
	}
	svc := &Service{
		Generator: st.generator,
		Catalog:   st.catalog,
		Schema:    &stubSchema{description: "- id (bigint, NOT NULL)\n- title (text, NULL)"},
		Prompts:   st.prompts,
		History:   st.history,
		Clients:   st.directory,
		Chat:      st.chat,
		Messenger: st.messenger,
		Logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Sleep: func(_ context.Context, d time.Duration) error {
			st.sleeps = append(st.sleeps, d)
			return nil
		},
	}
	return svc, st
}

type generateStep struct {
	query nlsql.GeneratedQuery
	err   error
}

type stubGenerator struct {
	steps  []generateStep
	turns  []string
	topics []string
}

func (s *stubGenerator) Generate(_ context.Context, conditions, topic string) (nlsql.GeneratedQuery, error) {
	idx := len(s.turns)
	s.turns = append(s.turns, conditions)
	s.topics = append(s.topics, topic)
	if len(s.steps) == 0 {
		return nlsql.GeneratedQuery{Text: "title IS NOT NULL", Shape: nlsql.ShapeFragment}, nil
	}
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	return s.steps[idx].query, s.steps[idx].err
}

type searchStep struct {
	result products.ExecutionResult
	err    error
}

type stubCatalog struct {
	searchSteps  []searchStep
	searchCalls  []nlsql.GeneratedQuery
	searchLimits []int

	randomItems []products.Product
	randomErr   error
	randomCalls int

	photos     []products.ProductPhoto
	photosErr  error
	photoAsked [][]int64
}

func (s *stubCatalog) Search(_ context.Context, query nlsql.GeneratedQuery, limit int) (products.ExecutionResult, error) {
	idx := len(s.searchCalls)
	s.searchCalls = append(s.searchCalls, query)
	s.searchLimits = append(s.searchLimits, limit)
	if len(s.searchSteps) == 0 {
		return products.ExecutionResult{}, nil
	}
	if idx >= len(s.searchSteps) {
		idx = len(s.searchSteps) - 1
	}
	return s.searchSteps[idx].result, s.searchSteps[idx].err
}

func (s *stubCatalog) Random(_ context.Context, _ int) ([]products.Product, error) {
	s.randomCalls++
	if s.randomErr != nil {
		return nil, s.randomErr
	}
	return s.randomItems, nil
}

func (s *stubCatalog) ByTitle(_ context.Context, _ string) (products.Product, error) {
	return products.Product{}, products.ErrNotFound
}

func (s *stubCatalog) PhotosByIDs(_ context.Context, ids []int64) ([]products.ProductPhoto, error) {
	s.photoAsked = append(s.photoAsked, append([]int64(nil), ids...))
	if s.photosErr != nil {
		return nil, s.photosErr
	}
	return s.photos, nil
}

type chatStep struct {
	text string
	err  error
}

type stubChat struct {
	steps    []chatStep
	requests [][]llm.Message
	temps    []float64
}

func (s *stubChat) Chat(_ context.Context, messages []llm.Message, temperature float64) (string, error) {
	idx := len(s.requests)
	s.requests = append(s.requests, append([]llm.Message(nil), messages...))
	s.temps = append(s.temps, temperature)
	if len(s.steps) == 0 {
		return "Чем могу помочь?", nil
	}
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	return s.steps[idx].text, s.steps[idx].err
}

type stubSchema struct {
	description string
	err         error
}

func (s *stubSchema) Describe(_ context.Context, _ string) (string, error) {
	return s.description, s.err
}

type stubPrompts struct {
	templates map[string]string
	vars      map[string]string
	lookupErr error
	varsErr   error
}

func (s *stubPrompts) Lookup(_ context.Context, topic string) (string, bool, error) {
	if s.lookupErr != nil {
		return "", false, s.lookupErr
	}
	text, found := s.templates[topic]
	return text, found, nil
}

func (s *stubPrompts) SystemValues(_ context.Context) (map[string]string, error) {
	if s.varsErr != nil {
		return nil, s.varsErr
	}
	return s.vars, nil
}

type stubHistory struct {
	stored    []memory.Message
	appends   [][]memory.Message
	cleared   int
	appendErr error
	recentErr error
}

func (s *stubHistory) Append(_ context.Context, _ string, messages ...memory.Message) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appends = append(s.appends, append([]memory.Message(nil), messages...))
	s.stored = append(s.stored, messages...)
	return nil
}

func (s *stubHistory) Recent(_ context.Context, _ string, _ int) ([]memory.Message, error) {
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	return append([]memory.Message(nil), s.stored...), nil
}

func (s *stubHistory) Count(_ context.Context, _ string) (int, error) {
	return len(s.stored), nil
}

func (s *stubHistory) Clear(_ context.Context, _ string) error {
	s.cleared++
	s.stored = nil
	return nil
}

type stubDirectory struct {
	profiles map[string]clients.Profile
	orders   map[string]clients.Order
}

func (s *stubDirectory) ByPhone(_ context.Context, phone string) (clients.Profile, error) {
	profile, found := s.profiles[phone]
	if !found {
		return clients.Profile{}, clients.ErrNotFound
	}
	return profile, nil
}

func (s *stubDirectory) LastOrder(_ context.Context, phone string) (clients.Order, error) {
	order, found := s.orders[phone]
	if !found {
		return clients.Order{}, clients.ErrNotFound
	}
	return order, nil
}

type sentImage struct {
	recipient string
	fileURL   string
	caption   string
}

type stubMessenger struct {
	disabled bool
	sendErr  error
	imageErr error
	texts    []string
	images   []sentImage
}

func (s *stubMessenger) Enabled() bool { return !s.disabled }

func (s *stubMessenger) SendMessage(_ context.Context, _, message string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.texts = append(s.texts, message)
	return nil
}

func (s *stubMessenger) SendImage(_ context.Context, recipient, fileURL, caption string) error {
	if s.imageErr != nil {
		return s.imageErr
	}
	s.images = append(s.images, sentImage{recipient: recipient, fileURL: fileURL, caption: caption})
	return nil
}
