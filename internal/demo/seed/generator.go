package seed

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Product mirrors one myaso.products row. db tags drive the named
// insert in the seeder.
type Product struct {
	Title            string    `db:"title"`
	SupplierName     string    `db:"supplier_name"`
	FromRegion       string    `db:"from_region"`
	Photo            string    `db:"photo"`
	PricelistDate    time.Time `db:"pricelist_date"`
	PackageWeight    float64   `db:"package_weight"`
	OrderPriceKg     float64   `db:"order_price_kg"`
	MinOrderWeightKg float64   `db:"min_order_weight_kg"`
	Discount         string    `db:"discount"`
	ReadyMade        bool      `db:"ready_made"`
	PackageType      string    `db:"package_type"`
	CooledOrFrozen   string    `db:"cooled_or_frozen"`
	ProductInPackage string    `db:"product_in_package"`
}

type Client struct {
	Phone        string `db:"phone"`
	Name         string `db:"name"`
	City         string `db:"city"`
	BusinessArea string `db:"business_area"`
	OrgName      string `db:"org_name"`
	IsFriend     bool   `db:"is_it_friend"`
	Mode         string `db:"mode"`
	UTCOffset    int    `db:"utc_offset"`
}

type Order struct {
	ClientPhone string    `db:"client_phone"`
	Title       string    `db:"title"`
	Destination string    `db:"destination"`
	PriceOut    float64   `db:"price_out"`
	WeightKg    float64   `db:"weight_kg"`
	CreatedAt   time.Time `db:"created_at"`
}

// catalogEntry pairs a composed product title with its price band in
// rubles per kg.
type catalogEntry struct {
	title    string
	minPrice float64
	maxPrice float64
}

var catalogEntries = []catalogEntry{
	{"Вырезка говяжья", 900, 1500},
	{"Стейк Рибай говяжий", 1200, 2400},
	{"Лопатка говяжья б/к", 450, 700},
	{"Грудинка говяжья н/к", 350, 550},
	{"Фарш говяжий", 380, 560},
	{"Печень говяжья", 220, 380},
	{"Язык говяжий", 650, 950},
	{"Корейка свиная н/к", 320, 480},
	{"Окорок свиной б/к", 260, 420},
	{"Шея свиная б/к", 340, 520},
	{"Грудинка свиная", 240, 380},
	{"Фарш свиной", 250, 400},
	{"Рёбра свиные", 210, 360},
	{"Сало хребтовое", 130, 240},
	{"Филе куриное", 230, 360},
	{"Голень куриная", 150, 250},
	{"Бедро куриное б/к", 190, 310},
	{"Крыло куриное", 140, 230},
	{"Тушка цыплёнка-бройлера", 130, 210},
	{"Филе грудки индейки", 380, 560},
	{"Голень индейки", 220, 340},
	{"Фарш из индейки", 300, 450},
	{"Корейка баранья", 850, 1400},
	{"Окорок бараний", 600, 950},
	{"Котлеты домашние", 280, 430},
	{"Пельмени мясные", 260, 420},
	{"Купаты свиные", 290, 440},
	{"Субпродукты куриные", 90, 160},
}

var suppliers = []string{
	"Мираторг",
	"Черкизово",
	"Агрокомплекс",
	"Останкино",
	`ООО "КИТ"`,
	"Дамате",
	"Ресурс",
}

var regions = []string{
	"Брянская область",
	"Белгородская область",
	"Московская область",
	"Краснодарский край",
	"Ставропольский край",
	"Пензенская область",
}

var cities = []string{
	"Москва",
	"Санкт-Петербург",
	"Казань",
	"Екатеринбург",
	"Новосибирск",
	"Краснодар",
}

var clientNames = []string{
	"Иван",
	"Мария",
	"Алексей",
	"Ольга",
	"Дмитрий",
	"Наталья",
	"Сергей",
	"Елена",
}

var businessAreas = []string{
	"ресторан",
	"розничный магазин",
	"кафе",
	"мясная переработка",
	"кейтеринг",
}

type Generator struct {
	rnd      *rand.Rand
	sequence int64
	now      func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (g *Generator) NextProduct() Product {
	g.sequence++
	entry := catalogEntries[g.rnd.Intn(len(catalogEntries))]
	ready := entry.title == "Котлеты домашние" || entry.title == "Пельмени мясные" || entry.title == "Купаты свиные"

	product := Product{
		Title:            entry.title,
		SupplierName:     pickOne(g.rnd, suppliers),
		FromRegion:       pickOne(g.rnd, regions),
		PricelistDate:    g.now().Truncate(24 * time.Hour),
		OrderPriceKg:     round2(entry.minPrice + g.rnd.Float64()*(entry.maxPrice-entry.minPrice)),
		MinOrderWeightKg: pickOne(g.rnd, []float64{0, 5, 10, 20}),
		ReadyMade:        ready,
		CooledOrFrozen:   pickOne(g.rnd, []string{"охлажденка", "заморозка"}),
	}
	if g.rnd.Intn(100) < 70 {
		product.Photo = fmt.Sprintf("https://storage.myaso.example/photos/p-%04d.png", g.sequence)
	}
	if g.rnd.Intn(100) < 15 {
		product.Discount = pickOne(g.rnd, []string{"5%", "10%"})
	}
	if g.rnd.Intn(100) < 50 {
		product.PackageType = pickOne(g.rnd, []string{"вакуум", "пакет", "гофрокороб"})
		product.PackageWeight = pickOne(g.rnd, []float64{5, 10, 15})
	}
	if ready && g.rnd.Intn(100) < 60 {
		product.ProductInPackage = pickOne(g.rnd, []string{"4-6 шт", "8-10 шт"})
	}
	return product
}

// PricePoints renders a short price history for a product: one point
// per week back from the pricelist date, drifting a few percent around
// the current price.
func (g *Generator) PricePoints(product Product, count int) []PricePoint {
	points := make([]PricePoint, 0, count)
	price := product.OrderPriceKg
	for i := 1; i <= count; i++ {
		drift := 1 + (g.rnd.Float64()-0.5)*0.08
		price = round2(price * drift)
		points = append(points, PricePoint{
			Product:       product.Title,
			OrderPriceKg:  price,
			PricelistDate: product.PricelistDate.AddDate(0, 0, -7*i),
		})
	}
	return points
}

type PricePoint struct {
	Product       string    `db:"product"`
	OrderPriceKg  float64   `db:"order_price_kg"`
	PricelistDate time.Time `db:"pricelist_date"`
}

func (g *Generator) NextClient(index int) Client {
	return Client{
		Phone:        fmt.Sprintf("+7999000%04d", index+1),
		Name:         clientNames[index%len(clientNames)],
		City:         pickOne(g.rnd, cities),
		BusinessArea: pickOne(g.rnd, businessAreas),
		OrgName:      fmt.Sprintf(`ООО "Покупатель %d"`, index+1),
		IsFriend:     g.rnd.Intn(100) < 25,
		UTCOffset:    3 + g.rnd.Intn(7),
	}
}

func (g *Generator) NextOrder(client Client) Order {
	entry := catalogEntries[g.rnd.Intn(len(catalogEntries))]
	weight := pickOne(g.rnd, []float64{5, 10, 20, 50})
	return Order{
		ClientPhone: client.Phone,
		Title:       entry.title,
		Destination: client.City,
		PriceOut:    round2((entry.minPrice + g.rnd.Float64()*(entry.maxPrice-entry.minPrice)) * weight),
		WeightKg:    weight,
		CreatedAt:   g.now().AddDate(0, 0, -g.rnd.Intn(90)),
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne[T any](r *rand.Rand, values []T) T {
	return values[r.Intn(len(values))]
}
