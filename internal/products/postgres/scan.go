package postgres

import (
	"strconv"
	"time"

	"github.com/myasobot/myasobot/internal/products"
)

// productFromRow maps a loosely scanned row onto the fixed product
// projection. Columns a model-written SELECT did not include stay at
// their zero values, which formatting already treats as missing.
func productFromRow(row map[string]any) products.Product {
	return products.Product{
		ID:               asInt(row["id"]),
		Title:            asString(row["title"]),
		SupplierName:     asString(row["supplier_name"]),
		FromRegion:       asString(row["from_region"]),
		Photo:            asString(row["photo"]),
		OrderPriceKg:     asFloat(row["order_price_kg"]),
		MinOrderWeightKg: asInt(row["min_order_weight_kg"]),
		CooledOrFrozen:   asString(row["cooled_or_frozen"]),
		ReadyMade:        asBool(row["ready_made"]),
		PackageType:      asString(row["package_type"]),
		Discount:         asString(row["discount"]),
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format("2006-01-02")
	default:
		return ""
	}
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		parsed, _ := strconv.ParseInt(string(n), 10, 64)
		return parsed
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	case []byte:
		parsed, _ := strconv.ParseFloat(string(n), 64)
		return parsed
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "t" || b == "true"
	case []byte:
		return string(b) == "t" || string(b) == "true"
	default:
		return false
	}
}
