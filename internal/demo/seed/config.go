package seed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	DSN          string
	ProductCount int
	PricePoints  int
	ClientCount  int
	OrderCount   int
	Truncate     bool
	QueryTimeout time.Duration
	Seed         int64
}

func DefaultConfig() Config {
	return Config{
		ProductCount: 60,
		PricePoints:  3,
		ClientCount:  8,
		OrderCount:   20,
		Truncate:     false,
		QueryTimeout: 30 * time.Second,
		Seed:         time.Now().UTC().UnixNano(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	// The shared database variables are honored so the seeder points at
	// the same instance as the API; MYASOBOT_DEMO_DSN wins when set.
	if err := applyString(lookup, "POSTGRES_DSN", &cfg.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MYASOBOT_DB_DSN", &cfg.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "MYASOBOT_DEMO_DSN", &cfg.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "MYASOBOT_DEMO_PRODUCTS", &cfg.ProductCount); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "MYASOBOT_DEMO_PRICE_POINTS", &cfg.PricePoints); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "MYASOBOT_DEMO_CLIENTS", &cfg.ClientCount); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "MYASOBOT_DEMO_ORDERS", &cfg.OrderCount); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "MYASOBOT_DEMO_TRUNCATE", &cfg.Truncate); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "MYASOBOT_DEMO_QUERY_TIMEOUT", &cfg.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "MYASOBOT_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.DSN) == "" {
		return Config{}, fmt.Errorf("MYASOBOT_DEMO_DSN is required")
	}
	if cfg.ProductCount <= 0 {
		return Config{}, fmt.Errorf("MYASOBOT_DEMO_PRODUCTS must be > 0")
	}
	if cfg.PricePoints < 0 {
		return Config{}, fmt.Errorf("MYASOBOT_DEMO_PRICE_POINTS must be >= 0")
	}
	if cfg.ClientCount <= 0 {
		return Config{}, fmt.Errorf("MYASOBOT_DEMO_CLIENTS must be > 0")
	}
	if cfg.OrderCount < 0 {
		return Config{}, fmt.Errorf("MYASOBOT_DEMO_ORDERS must be >= 0")
	}
	if cfg.QueryTimeout <= 0 {
		return Config{}, fmt.Errorf("MYASOBOT_DEMO_QUERY_TIMEOUT must be > 0")
	}

	cfg.DSN = strings.TrimSpace(cfg.DSN)
	return cfg, nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
