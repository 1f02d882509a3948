// Package reply renders catalog results and assistant answers into the
// WhatsApp-ready text the customer sees. Rendering is pure: the same
// rows and system variables always produce the same text.
package reply

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/myasobot/myasobot/internal/pricing"
	"github.com/myasobot/myasobot/internal/products"
)

// Fixed user-facing fallbacks.
const (
	NothingFound          = "Товары по указанным условиям не найдены."
	DatabaseNotConfigured = "Не настроено подключение к базе данных."
	EmptyModelReply       = "Упс, что-то пошло не так 😅. Попробуйте переформулировать запрос, и я обязательно помогу!"
	ProcessingTrouble     = "Ой, что-то пошло не так 😔. Попробуйте написать еще раз, пожалуйста!"
	DeliveryTrouble       = "Что-то вотсап барахлит 😔. Напишите позже, пожалуйста!"
	AssortmentPending     = "Ассортимент будет обновлён позже."
)

// The id manifest is a machine-readable side channel embedded in the
// rendered text; the photo-sending step reads it and it is stripped
// before the text reaches the customer.
const (
	manifestOpen  = "[PRODUCT_IDS]"
	manifestClose = "[/PRODUCT_IDS]"
)

type idManifest struct {
	ProductIDs []int64 `json:"product_ids"`
}

// RenderProducts builds the compact product listing: one block per
// product with supplier, computed final price and region, a truncation
// warning when more rows matched than were returned, and the id
// manifest. The returned ids mirror the manifest.
func RenderProducts(items []products.Product, hasMore bool, limit int, systemVars map[string]string) (string, []int64) {
	if len(items) == 0 {
		return NothingFound, nil
	}

	blocks := make([]string, 0, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if item.ID != 0 {
			ids = append(ids, item.ID)
		}

		lines := []string{"📦 " + item.Title}
		if supplier := NormalizeField(item.SupplierName); supplier != FieldOnRequest {
			lines = append(lines, "   Поставщик: "+supplier)
		}
		price := pricing.FinalPrice(item.OrderPriceKg, item.SupplierName, systemVars)
		if price == pricing.OnRequest {
			lines = append(lines, "   "+pricing.OnRequest)
		} else {
			lines = append(lines, "   Цена: "+price+"₽/кг")
		}
		if region := NormalizeField(item.FromRegion); region != FieldOnRequest {
			lines = append(lines, "   Регион: "+region)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Найдено товаров: %d", len(items))
	if hasMore {
		fmt.Fprintf(&b, "\n\n⚠️ В базе данных есть ещё товары, показываем первые %d. Используйте более конкретные критерии поиска для уточнения.", limit)
	}
	b.WriteString("\n\n")
	b.WriteString(strings.Join(blocks, "\n\n"))

	if len(ids) > 0 {
		payload, err := json.Marshal(idManifest{ProductIDs: ids})
		if err == nil {
			b.WriteString("\n\n")
			b.WriteString(manifestOpen)
			b.Write(payload)
			b.WriteString(manifestClose)
		}
	}
	return b.String(), ids
}

// RenderProductDetails builds the verbose listing used when presenting
// assortment samples, one field per line so titles can be parsed back
// out of the text.
func RenderProductDetails(items []products.Product) string {
	if len(items) == 0 {
		return "Товары не найдены."
	}

	blocks := make([]string, 0, len(items))
	for _, item := range items {
		var lines []string
		if title := NormalizeField(item.Title); title != FieldOnRequest {
			lines = append(lines, "Название: "+title)
		}
		if supplier := NormalizeField(item.SupplierName); supplier != FieldOnRequest {
			lines = append(lines, "Поставщик: "+supplier)
		}
		if region := NormalizeField(item.FromRegion); region != FieldOnRequest {
			lines = append(lines, "Регион: "+region)
		}
		if item.OrderPriceKg > 0 {
			lines = append(lines, "Цена за кг: "+NormalizeNumber(item.OrderPriceKg))
		}
		if item.MinOrderWeightKg > 0 {
			lines = append(lines, fmt.Sprintf("Минимальный заказ (кг): %d", item.MinOrderWeightKg))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return fmt.Sprintf("Найдено товаров: %d\n\n%s", len(items), strings.Join(blocks, "\n\n---\n\n"))
}

// ExtractProductIDs reads the id manifest out of rendered text. Absent
// or malformed manifests yield nil.
func ExtractProductIDs(text string) []int64 {
	start := strings.Index(text, manifestOpen)
	if start < 0 {
		return nil
	}
	rest := text[start+len(manifestOpen):]
	end := strings.Index(rest, manifestClose)
	if end < 0 {
		return nil
	}
	var manifest idManifest
	if err := json.Unmarshal([]byte(rest[:end]), &manifest); err != nil {
		return nil
	}
	return manifest.ProductIDs
}

// StripManifest removes the id manifest before text is sent to the
// customer.
func StripManifest(text string) string {
	start := strings.Index(text, manifestOpen)
	if start < 0 {
		return text
	}
	rest := text[start:]
	end := strings.Index(rest, manifestClose)
	if end < 0 {
		return strings.TrimSpace(text[:start])
	}
	return strings.TrimSpace(text[:start] + rest[end+len(manifestClose):])
}
