package reply

import (
	"reflect"
	"strings"
	"testing"

	"github.com/myasobot/myasobot/internal/pricing"
	"github.com/myasobot/myasobot/internal/products"
)

func sampleProduct() products.Product {
	return products.Product{
		ID:           7,
		Title:        "Грудинка Премиум",
		SupplierName: "Мироторг",
		FromRegion:   "Бурятия",
		OrderPriceKg: 95.5,
	}
}

func TestRenderProductsEmpty(t *testing.T) {
	text, ids := RenderProducts(nil, false, 15, nil)
	if text != NothingFound {
		t.Fatalf("text = %q", text)
	}
	if ids != nil {
		t.Fatalf("ids = %v", ids)
	}
}

func TestRenderProductsBlockLayout(t *testing.T) {
	text, ids := RenderProducts([]products.Product{sampleProduct()}, false, 15, nil)

	want := "Найдено товаров: 1\n\n" +
		"📦 Грудинка Премиум\n" +
		"   Поставщик: Мироторг\n" +
		"   Цена: 95.50₽/кг\n" +
		"   Регион: Бурятия\n\n" +
		`[PRODUCT_IDS]{"product_ids":[7]}[/PRODUCT_IDS]`
	if text != want {
		t.Fatalf("rendered text:\n got: %q\nwant: %q", text, want)
	}
	if !reflect.DeepEqual(ids, []int64{7}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestRenderProductsAppliesMarkup(t *testing.T) {
	systemVars := map[string]string{
		"Наценка на кг/руб (<100 руб)": "20%",
	}
	text, _ := RenderProducts([]products.Product{sampleProduct()}, false, 15, systemVars)
	if !strings.Contains(text, "Цена: 114.60₽/кг") {
		t.Fatalf("markup not applied: %q", text)
	}
}

func TestRenderProductsPriceOnRequest(t *testing.T) {
	item := sampleProduct()
	item.OrderPriceKg = 0
	text, _ := RenderProducts([]products.Product{item}, false, 15, nil)
	if !strings.Contains(text, "\n   "+pricing.OnRequest+"\n") {
		t.Fatalf("sentinel price line missing: %q", text)
	}
	if strings.Contains(text, "Цена: ") {
		t.Fatalf("numeric price must not render for zero base: %q", text)
	}
}

func TestRenderProductsSkipsMissingFields(t *testing.T) {
	item := sampleProduct()
	item.SupplierName = ""
	item.FromRegion = "Не указано"
	text, _ := RenderProducts([]products.Product{item}, false, 15, nil)
	if strings.Contains(text, "Поставщик:") || strings.Contains(text, "Регион:") {
		t.Fatalf("missing fields must be skipped: %q", text)
	}
}

func TestRenderProductsTruncationWarning(t *testing.T) {
	text, _ := RenderProducts([]products.Product{sampleProduct()}, true, 10, nil)
	if !strings.Contains(text, "⚠️ В базе данных есть ещё товары, показываем первые 10.") {
		t.Fatalf("truncation warning missing or wrong limit: %q", text)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	items := []products.Product{sampleProduct(), {ID: 12, Title: "Рёбрышки", OrderPriceKg: 150}}
	text, ids := RenderProducts(items, false, 15, nil)

	extracted := ExtractProductIDs(text)
	if !reflect.DeepEqual(extracted, ids) {
		t.Fatalf("extracted %v, rendered %v", extracted, ids)
	}

	stripped := StripManifest(text)
	if strings.Contains(stripped, "[PRODUCT_IDS]") || strings.Contains(stripped, "[/PRODUCT_IDS]") {
		t.Fatalf("manifest survived strip: %q", stripped)
	}
	if !strings.Contains(stripped, "📦 Грудинка Премиум") {
		t.Fatalf("display text damaged by strip: %q", stripped)
	}
}

func TestExtractProductIDsTolerance(t *testing.T) {
	if got := ExtractProductIDs("обычный текст без секции"); got != nil {
		t.Fatalf("expected nil for plain text, got %v", got)
	}
	if got := ExtractProductIDs("[PRODUCT_IDS]не json[/PRODUCT_IDS]"); got != nil {
		t.Fatalf("expected nil for malformed payload, got %v", got)
	}
	if got := ExtractProductIDs("[PRODUCT_IDS]{\"product_ids\":[1]}"); got != nil {
		t.Fatalf("expected nil for unterminated section, got %v", got)
	}
}

func TestRenderProductDetails(t *testing.T) {
	items := []products.Product{
		{Title: "Грудинка Премиум", SupplierName: "Мироторг", FromRegion: "Бурятия", OrderPriceKg: 95.5, MinOrderWeightKg: 10},
		{Title: "Рёбрышки", OrderPriceKg: 150},
	}
	text := RenderProductDetails(items)

	if !strings.HasPrefix(text, "Найдено товаров: 2\n\n") {
		t.Fatalf("missing header: %q", text)
	}
	if !strings.Contains(text, "Название: Грудинка Премиум\nПоставщик: Мироторг\nРегион: Бурятия\nЦена за кг: 95.5\nМинимальный заказ (кг): 10") {
		t.Fatalf("first block wrong: %q", text)
	}
	if !strings.Contains(text, "\n\n---\n\n") {
		t.Fatalf("separator missing: %q", text)
	}

	titles := ExtractProductTitles(text)
	if !reflect.DeepEqual(titles, []string{"Грудинка Премиум", "Рёбрышки"}) {
		t.Fatalf("titles = %v", titles)
	}
}

func TestRenderProductDetailsEmpty(t *testing.T) {
	if got := RenderProductDetails(nil); got != "Товары не найдены." {
		t.Fatalf("empty details = %q", got)
	}
}
