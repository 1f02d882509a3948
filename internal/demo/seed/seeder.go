// Package seed fills a development database with a plausible meat
// catalog: products with price history, operator prompts, markup
// variables, and a handful of clients with past orders.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

const insertProductStmt = `
INSERT INTO myaso.products
	(title, supplier_name, from_region, photo, pricelist_date, package_weight, order_price_kg, min_order_weight_kg, discount, ready_made, package_type, cooled_or_frozen, product_in_package)
VALUES
	(:title, :supplier_name, :from_region, :photo, :pricelist_date, :package_weight, :order_price_kg, :min_order_weight_kg, :discount, :ready_made, :package_type, :cooled_or_frozen, :product_in_package)`

const insertPricePointStmt = `
INSERT INTO myaso.price_history (product, order_price_kg, pricelist_date)
VALUES (:product, :order_price_kg, :pricelist_date)`

const insertClientStmt = `
INSERT INTO myaso.clients (phone, name, city, business_area, org_name, is_it_friend, mode, "UTC")
VALUES (:phone, :name, :city, :business_area, :org_name, :is_it_friend, :mode, :utc_offset)
ON CONFLICT (phone) DO NOTHING`

const insertOrderStmt = `
INSERT INTO myaso.orders (client_phone, title, destination, price_out, weight_kg, created_at)
VALUES (:client_phone, :title, :destination, :price_out, :weight_kg, :created_at)`

// defaultPrompts are topical instruction templates keyed the way the
// init flow looks them up.
var defaultPrompts = map[string]string{
	"говядина": "Сконцентрируйся на говядине: предлагай отрубы, стейки и фарш, уточняй нужный вес заказа.",
	"свинина":  "Сконцентрируйся на свинине: корейка, окорок, шея. Предлагай актуальные позиции из каталога.",
	"курица":   "Сконцентрируйся на курице и птице: филе, бедро, крыло. Подскажи, что есть в охлажденке.",
}

var defaultSystemValues = map[string]string{
	"Наценка на кг/руб (<100 руб)": "20",
	"Наценка на кг/руб (>100 руб)": "10%",
	"Минимальный заказ":            "5 кг",
}

type Service struct {
	cfg       Config
	log       *slog.Logger
	db        *sqlx.DB
	generator *Generator
}

func NewService(cfg Config, logger *slog.Logger, db *sql.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		cfg:       cfg,
		log:       logger,
		db:        sqlx.NewDb(db, "pgx"),
		generator: NewGenerator(cfg.Seed),
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Truncate {
		if _, err := s.db.ExecContext(ctx,
			`TRUNCATE myaso.products, myaso.price_history, myaso.clients, myaso.orders RESTART IDENTITY`); err != nil {
			return fmt.Errorf("truncate catalog tables: %w", err)
		}
		s.log.Info("truncated catalog tables")
	}

	products, err := s.seedProducts(ctx)
	if err != nil {
		return err
	}
	pricePoints, err := s.seedPriceHistory(ctx, products)
	if err != nil {
		return err
	}
	if err := s.seedPrompts(ctx); err != nil {
		return err
	}
	clientList, err := s.seedClients(ctx)
	if err != nil {
		return err
	}
	orders, err := s.seedOrders(ctx, clientList)
	if err != nil {
		return err
	}

	s.log.Info("seeded demo catalog",
		slog.Int("products", len(products)),
		slog.Int("price_points", pricePoints),
		slog.Int("prompts", len(defaultPrompts)),
		slog.Int("system_values", len(defaultSystemValues)),
		slog.Int("clients", len(clientList)),
		slog.Int("orders", orders),
	)
	return nil
}

func (s *Service) seedProducts(ctx context.Context) ([]Product, error) {
	products := make([]Product, 0, s.cfg.ProductCount)
	for i := 0; i < s.cfg.ProductCount; i++ {
		product := s.generator.NextProduct()
		if _, err := s.db.NamedExecContext(ctx, insertProductStmt, product); err != nil {
			return nil, fmt.Errorf("insert product %q: %w", product.Title, err)
		}
		products = append(products, product)
	}
	return products, nil
}

func (s *Service) seedPriceHistory(ctx context.Context, products []Product) (int, error) {
	total := 0
	for _, product := range products {
		for _, point := range s.generator.PricePoints(product, s.cfg.PricePoints) {
			if _, err := s.db.NamedExecContext(ctx, insertPricePointStmt, point); err != nil {
				return total, fmt.Errorf("insert price point for %q: %w", point.Product, err)
			}
			total++
		}
	}
	return total, nil
}

func (s *Service) seedPrompts(ctx context.Context) error {
	for topic, prompt := range defaultPrompts {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO myaso.prompts (topic, prompt, value) VALUES ($1, $2, '') ON CONFLICT (topic) DO NOTHING`,
			topic, prompt); err != nil {
			return fmt.Errorf("insert prompt %q: %w", topic, err)
		}
	}
	for topic, value := range defaultSystemValues {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO myaso.system (topic, value) VALUES ($1, $2) ON CONFLICT (topic) DO NOTHING`,
			topic, value); err != nil {
			return fmt.Errorf("insert system value %q: %w", topic, err)
		}
	}
	return nil
}

func (s *Service) seedClients(ctx context.Context) ([]Client, error) {
	clientList := make([]Client, 0, s.cfg.ClientCount)
	for i := 0; i < s.cfg.ClientCount; i++ {
		client := s.generator.NextClient(i)
		if _, err := s.db.NamedExecContext(ctx, insertClientStmt, client); err != nil {
			return nil, fmt.Errorf("insert client %s: %w", client.Phone, err)
		}
		clientList = append(clientList, client)
	}
	return clientList, nil
}

func (s *Service) seedOrders(ctx context.Context, clientList []Client) (int, error) {
	if len(clientList) == 0 {
		return 0, nil
	}
	for i := 0; i < s.cfg.OrderCount; i++ {
		order := s.generator.NextOrder(clientList[i%len(clientList)])
		if _, err := s.db.NamedExecContext(ctx, insertOrderStmt, order); err != nil {
			return i, fmt.Errorf("insert order for %s: %w", order.ClientPhone, err)
		}
	}
	return s.cfg.OrderCount, nil
}
