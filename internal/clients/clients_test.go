package clients

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var profileColumns = []string{"name", "phone", "city", "business_area", "org_name", "is_it_friend", "mode", "UTC"}

var orderColumns = []string{"title", "created_at", "destination", "price_out", "weight_kg"}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, time.Second), mock
}

func TestByPhoneScansProfile(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(profileQuery)).
		WithArgs("+79991234567").
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow("Иван", "+79991234567", "Казань", "HoReCa", "ООО Вкусно", true, "опт", 3))

	profile, err := store.ByPhone(context.Background(), "+79991234567")
	if err != nil {
		t.Fatalf("ByPhone: %v", err)
	}
	if profile.Name != "Иван" || profile.City != "Казань" || !profile.IsFriend {
		t.Fatalf("profile = %+v", profile)
	}
	if !profile.UTCOffset.Valid || profile.UTCOffset.Int64 != 3 {
		t.Fatalf("UTCOffset = %+v", profile.UTCOffset)
	}
}

func TestByPhoneMapsMissingRow(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(profileQuery)).
		WithArgs("+79990000000").
		WillReturnRows(sqlmock.NewRows(profileColumns))

	if _, err := store.ByPhone(context.Background(), "+79990000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestIsFriendDefaultsToFalse(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(profileQuery)).
		WithArgs("+79990000000").
		WillReturnRows(sqlmock.NewRows(profileColumns))

	friend, err := store.IsFriend(context.Background(), "+79990000000")
	if err != nil {
		t.Fatalf("IsFriend: %v", err)
	}
	if friend {
		t.Fatal("missing profile reported as friend")
	}
}

func TestProfileTextRendersAllFields(t *testing.T) {
	profile := Profile{
		Name:         "Иван",
		Phone:        "+79991234567",
		City:         "Казань",
		BusinessArea: "HoReCa",
		OrgName:      "ООО Вкусно",
		IsFriend:     true,
		Mode:         "опт",
		UTCOffset:    sql.NullInt64{Int64: 3, Valid: true},
	}

	want := strings.Join([]string{
		"Имя: Иван",
		"Телефон: +79991234567",
		"Город: Казань",
		"Бизнес-область: HoReCa",
		"Организация: ООО Вкусно",
		"Статус: Друг компании",
		"Режим: опт",
		"Часовой пояс: UTC3",
	}, "\n")
	if got := profile.Text(); got != want {
		t.Fatalf("Text:\n%s", got)
	}
}

func TestProfileTextSkipsUnsetFields(t *testing.T) {
	profile := Profile{Name: "Иван", Phone: "+79991234567"}

	want := "Имя: Иван\nТелефон: +79991234567"
	if got := profile.Text(); got != want {
		t.Fatalf("Text = %q", got)
	}
}

func TestProfileTextKeepsZeroUTCOffset(t *testing.T) {
	profile := Profile{
		Name:      "Иван",
		UTCOffset: sql.NullInt64{Int64: 0, Valid: true},
	}

	if got := profile.Text(); !strings.Contains(got, "Часовой пояс: UTC0") {
		t.Fatalf("Text = %q", got)
	}
}

func TestProfileTextEmptyProfile(t *testing.T) {
	if got := (Profile{}).Text(); got != profileEmptyText {
		t.Fatalf("Text = %q", got)
	}
}

func TestOrdersNewestFirst(t *testing.T) {
	store, mock := newTestStore(t)

	newer := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	older := time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(ordersQuery)).
		WithArgs("+79991234567").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("Грудинка Премиум", newer, "Казань", 95000.0, 1000.0).
			AddRow("Лопатка", older, "Казань", 42000.0, 500.0))

	orders, err := store.Orders(context.Background(), "+79991234567")
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(orders) != 2 || orders[0].Title != "Грудинка Премиум" || !orders[0].CreatedAt.Equal(newer) {
		t.Fatalf("orders = %+v", orders)
	}
}

func TestLastOrderPicksNewest(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(ordersQuery)).
		WithArgs("+79991234567").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("Грудинка Премиум", time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC), "Казань", 95000.0, 1000.0))

	order, err := store.LastOrder(context.Background(), "+79991234567")
	if err != nil {
		t.Fatalf("LastOrder: %v", err)
	}
	if order.Title != "Грудинка Премиум" || order.WeightKg != 1000 {
		t.Fatalf("order = %+v", order)
	}
}

func TestLastOrderMapsEmptyHistory(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(ordersQuery)).
		WithArgs("+79991234567").
		WillReturnRows(sqlmock.NewRows(orderColumns))

	if _, err := store.LastOrder(context.Background(), "+79991234567"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestStoreWithoutDatabase(t *testing.T) {
	store := NewStore(nil, time.Second)
	ctx := context.Background()

	if _, err := store.ByPhone(ctx, "+79991234567"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ByPhone err = %v", err)
	}
	friend, err := store.IsFriend(ctx, "+79991234567")
	if err != nil || friend {
		t.Fatalf("IsFriend: friend=%v err=%v", friend, err)
	}
	orders, err := store.Orders(ctx, "+79991234567")
	if err != nil || orders != nil {
		t.Fatalf("Orders: orders=%v err=%v", orders, err)
	}
}

func TestInfoBlockSwitchesAddressForm(t *testing.T) {
	formal := InfoBlock("+79991234567", false)
	wantFormal := "Номер телефона: +79991234567\n" +
		"Статус дружбы (it_is_friend): false\n" +
		"ОБРАЩЕНИЕ: Используй 'вы' (формальное общение)"
	if formal != wantFormal {
		t.Fatalf("formal block:\n%s", formal)
	}

	informal := InfoBlock("+79991234567", true)
	if !strings.Contains(informal, "Статус дружбы (it_is_friend): true") {
		t.Fatalf("informal block:\n%s", informal)
	}
	if !strings.Contains(informal, "Используй 'ты' (неформальное общение)") {
		t.Fatalf("informal block:\n%s", informal)
	}
}
