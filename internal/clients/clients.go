// Package clients reads customer profiles and order history and renders
// the profile texts the assistant and operators see.
package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound means no record exists for the phone number.
var ErrNotFound = errors.New("clients: not found")

// ProfileMissingText is the canned reply when the phone has no profile
// row or the profile store is unreachable.
const ProfileMissingText = "Профиль клиента не найден в базе данных."

const profileEmptyText = "Профиль найден, но данные отсутствуют."

const profileQuery = `SELECT
	COALESCE(name, '') AS name,
	COALESCE(phone, '') AS phone,
	COALESCE(city, '') AS city,
	COALESCE(business_area, '') AS business_area,
	COALESCE(org_name, '') AS org_name,
	COALESCE(is_it_friend, FALSE) AS is_it_friend,
	COALESCE(mode, '') AS mode,
	"UTC"
FROM myaso.clients
WHERE phone = $1
LIMIT 1`

const ordersQuery = `SELECT
	COALESCE(title, '') AS title,
	created_at,
	COALESCE(destination, '') AS destination,
	COALESCE(price_out, 0) AS price_out,
	COALESCE(weight_kg, 0) AS weight_kg
FROM myaso.orders
WHERE client_phone = $1
ORDER BY created_at DESC`

// Profile is one customer record keyed by phone number.
type Profile struct {
	Name         string        `db:"name" json:"name"`
	Phone        string        `db:"phone" json:"phone"`
	City         string        `db:"city" json:"city"`
	BusinessArea string        `db:"business_area" json:"business_area"`
	OrgName      string        `db:"org_name" json:"org_name"`
	IsFriend     bool          `db:"is_it_friend" json:"is_it_friend"`
	Mode         string        `db:"mode" json:"mode"`
	UTCOffset    sql.NullInt64 `db:"UTC" json:"-"`
}

// Order is one past purchase of the client, newest first in listings.
type Order struct {
	Title       string    `db:"title" json:"title"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	Destination string    `db:"destination" json:"destination"`
	PriceOut    float64   `db:"price_out" json:"price_out"`
	WeightKg    float64   `db:"weight_kg" json:"weight_kg"`
}

// Store reads the clients and orders tables. A nil database handle
// degrades lookups to not-found so conversations still run, just
// without personalization.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewStore(db *sql.DB, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	store := &Store{timeout: queryTimeout}
	if db != nil {
		store.db = sqlx.NewDb(db, "pgx")
	}
	return store
}

// ByPhone loads the profile for the phone number.
func (s *Store) ByPhone(ctx context.Context, phone string) (Profile, error) {
	if s.db == nil {
		return Profile{}, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var profile Profile
	err := s.db.GetContext(ctx, &profile, profileQuery, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load client profile: %w", err)
	}
	return profile, nil
}

// IsFriend reports whether the client is flagged as a company friend.
// A missing profile means not a friend.
func (s *Store) IsFriend(ctx context.Context, phone string) (bool, error) {
	profile, err := s.ByPhone(ctx, phone)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return profile.IsFriend, nil
}

// Orders lists the client's orders, newest first.
func (s *Store) Orders(ctx context.Context, phone string) ([]Order, error) {
	if s.db == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var orders []Order
	if err := s.db.SelectContext(ctx, &orders, ordersQuery, phone); err != nil {
		return nil, fmt.Errorf("load client orders: %w", err)
	}
	return orders, nil
}

// LastOrder returns the most recent order for the phone number.
func (s *Store) LastOrder(ctx context.Context, phone string) (Order, error) {
	orders, err := s.Orders(ctx, phone)
	if err != nil {
		return Order{}, err
	}
	if len(orders) == 0 {
		return Order{}, ErrNotFound
	}
	return orders[0], nil
}

// Text renders the profile for prompts and the profile endpoint,
// skipping unset fields.
func (p Profile) Text() string {
	var parts []string
	if p.Name != "" {
		parts = append(parts, "Имя: "+p.Name)
	}
	if p.Phone != "" {
		parts = append(parts, "Телефон: "+p.Phone)
	}
	if p.City != "" {
		parts = append(parts, "Город: "+p.City)
	}
	if p.BusinessArea != "" {
		parts = append(parts, "Бизнес-область: "+p.BusinessArea)
	}
	if p.OrgName != "" {
		parts = append(parts, "Организация: "+p.OrgName)
	}
	if p.IsFriend {
		parts = append(parts, "Статус: Друг компании")
	}
	if p.Mode != "" {
		parts = append(parts, "Режим: "+p.Mode)
	}
	if p.UTCOffset.Valid {
		parts = append(parts, fmt.Sprintf("Часовой пояс: UTC%d", p.UTCOffset.Int64))
	}
	if len(parts) == 0 {
		return profileEmptyText
	}
	return strings.Join(parts, "\n")
}

// InfoBlock renders the per-client context block injected into the
// system prompt, switching the assistant between the informal and
// formal forms of address.
func InfoBlock(phone string, isFriend bool) string {
	parts := []string{
		"Номер телефона: " + phone,
		fmt.Sprintf("Статус дружбы (it_is_friend): %t", isFriend),
	}
	if isFriend {
		parts = append(parts, "ОБРАЩЕНИЕ: Используй 'ты' (неформальное общение)")
	} else {
		parts = append(parts, "ОБРАЩЕНИЕ: Используй 'вы' (формальное общение)")
	}
	return strings.Join(parts, "\n")
}
