package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"bims/m/domain"
	"bims/m/internal/migrations"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	for _, stmt := range migrations.Schema {
		db.MustExec(stmt)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sqlx.DB) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(
		`INSERT INTO users (username, email, role) VALUES ('tester', 'tester@example.com', 'admin') RETURNING user_id`,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedProduct(t *testing.T, db *sqlx.DB, userID int64, sku string, price, taxRate float64, stock int64) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowx(
		`INSERT INTO products (sku, name, purchase_price, selling_price, tax_rate, stock_quantity)
         VALUES (?, ?, ?, ?, ?, ?) RETURNING product_id`,
		sku, "product "+sku, price/2, price, taxRate, stock).Scan(&id)
	require.NoError(t, err)
	// Baseline ledger entry so stock always equals the entry sum.
	_, err = db.Exec(
		`INSERT INTO inventory_log (product_id, user_id, quantity_change, type, notes)
         VALUES (?, ?, ?, 'adjustment', 'initial stock')`, id, userID, stock)
	require.NoError(t, err)
	return id
}

func stockOf(t *testing.T, db *sqlx.DB, productID int64) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, db.Get(&stock, `SELECT stock_quantity FROM products WHERE product_id = ?`, productID))
	return stock
}

func ledgerSum(t *testing.T, db *sqlx.DB, productID int64) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, db.Get(&sum,
		`SELECT COALESCE(SUM(quantity_change), 0) FROM inventory_log WHERE product_id = ?`, productID))
	return sum
}

func countRows(t *testing.T, db *sqlx.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func TestCreateDrainsStockExactly(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-A", 20, 0, 10)
	svc := NewService(db)

	detail, err := svc.Create(context.Background(), userID, Request{
		Items: []ItemRequest{{ProductID: productID, Quantity: 10, UnitPrice: 20}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), stockOf(t, db, productID))
	assert.InDelta(t, 200.0, detail.TotalAmount, 1e-9)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, int64(10), detail.Items[0].Quantity)

	var entries []domain.InventoryLogEntry
	require.NoError(t, db.Select(&entries,
		`SELECT log_id, product_id, user_id, quantity_change, type, reference_id, COALESCE(notes,'') AS notes, created_at
         FROM inventory_log WHERE product_id = ? AND type = 'sale'`, productID))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(-10), entries[0].QuantityChange)
	require.NotNil(t, entries[0].ReferenceID)
	assert.Equal(t, detail.Order.ID, *entries[0].ReferenceID)
}

func TestCreateRejectsInsufficientStock(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-B", 15, 0, 5)
	svc := NewService(db)

	_, err := svc.Create(context.Background(), userID, Request{
		Items: []ItemRequest{{ProductID: productID, Quantity: 6, UnitPrice: 15}},
	})
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(6), insufficient.Requested)
	assert.Equal(t, int64(5), insufficient.Available)

	assert.Equal(t, int64(5), stockOf(t, db, productID))
	assert.Zero(t, countRows(t, db, "orders"))
	assert.Zero(t, countRows(t, db, "order_items"))
	assert.Zero(t, countRows(t, db, "payments"))
}

func TestCreateIsAtomicAcrossLines(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	goodID := seedProduct(t, db, userID, "SKU-C", 10, 0, 8)
	svc := NewService(db)

	_, err := svc.Create(context.Background(), userID, Request{
		Items: []ItemRequest{
			{ProductID: goodID, Quantity: 2, UnitPrice: 10},
			{ProductID: 9999, Quantity: 1, UnitPrice: 10},
		},
	})
	var notFound *domain.ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(9999), notFound.ProductID)

	assert.Equal(t, int64(8), stockOf(t, db, goodID))
	assert.Zero(t, countRows(t, db, "orders"))
	assert.Zero(t, countRows(t, db, "order_items"))
	assert.Equal(t, ledgerSum(t, db, goodID), stockOf(t, db, goodID))
}

func TestCreateRecordsCompletedPayment(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-D", 25, 0, 20)
	svc := NewService(db)

	detail, err := svc.Create(context.Background(), userID, Request{
		Items:         []ItemRequest{{ProductID: productID, Quantity: 4, UnitPrice: 25}},
		PaymentMethod: "card",
		PaymentStatus: domain.PaymentCompleted,
	})
	require.NoError(t, err)

	require.Len(t, detail.Payments, 1)
	payment := detail.Payments[0]
	assert.InDelta(t, detail.TotalAmount, payment.Amount, 1e-9)
	assert.Equal(t, "card", payment.PaymentMethod)
	require.NotNil(t, payment.ReferenceNumber)
	assert.NotEmpty(t, *payment.ReferenceNumber)
	assert.Equal(t, int64(1), countRows(t, db, "payments"))
}

func TestCreatePendingPaymentWritesNoPaymentRow(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-E", 25, 0, 20)
	svc := NewService(db)

	detail, err := svc.Create(context.Background(), userID, Request{
		Items: []ItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 25}},
	})
	require.NoError(t, err)
	assert.Empty(t, detail.Payments)
	assert.Zero(t, countRows(t, db, "payments"))
	assert.Equal(t, domain.PaymentPending, detail.PaymentStatus)
	assert.Equal(t, domain.OrderPending, detail.OrderStatus)
}

func TestCreateEmptyOrder(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	svc := NewService(db)

	_, err := svc.Create(context.Background(), userID, Request{})
	require.ErrorIs(t, err, domain.ErrEmptyOrder)
}

func TestCreateComputesTaxAndDiscount(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	taxedID := seedProduct(t, db, userID, "SKU-F", 50, 10, 30)
	plainID := seedProduct(t, db, userID, "SKU-G", 8, 0, 30)
	svc := NewService(db)

	discount := 3.0
	taxOverride := 1.5
	detail, err := svc.Create(context.Background(), userID, Request{
		Items: []ItemRequest{
			// tax computed from the 10% product rate: 2*50 = 100 -> 10
			{ProductID: taxedID, Quantity: 2, UnitPrice: 50},
			// explicit overrides win over computed values
			{ProductID: plainID, Quantity: 5, UnitPrice: 8, DiscountAmount: &discount, TaxAmount: &taxOverride},
		},
	})
	require.NoError(t, err)

	assert.InDelta(t, 140.0, detail.TotalAmount, 1e-9)
	assert.InDelta(t, 11.5, detail.TaxAmount, 1e-9)
	assert.InDelta(t, 3.0, detail.DiscountAmount, 1e-9)

	require.Len(t, detail.Items, 2)
	assert.InDelta(t, 100.0, detail.Items[0].Subtotal, 1e-9)
	assert.InDelta(t, 10.0, detail.Items[0].TaxAmount, 1e-9)
	assert.InDelta(t, 40.0, detail.Items[1].Subtotal, 1e-9)
	assert.InDelta(t, 1.5, detail.Items[1].TaxAmount, 1e-9)
	assert.InDelta(t, 3.0, detail.Items[1].DiscountAmount, 1e-9)

	// Unit price is a snapshot: raising the catalog price afterwards
	// must not change the stored line.
	db.MustExec(`UPDATE products SET selling_price = 99 WHERE product_id = ?`, taxedID)
	reloaded, err := svc.Get(context.Background(), detail.Order.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, reloaded.Items[0].UnitPrice, 1e-9)
}

func TestCreateDuplicateLinesCannotOversell(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-H", 12, 0, 10)
	svc := NewService(db)

	// Each line passes the per-line check against live stock (10), but
	// the guarded decrements are cumulative, so the second line fails
	// and the whole order rolls back.
	_, err := svc.Create(context.Background(), userID, Request{
		Items: []ItemRequest{
			{ProductID: productID, Quantity: 6, UnitPrice: 12},
			{ProductID: productID, Quantity: 6, UnitPrice: 12},
		},
	})
	require.Error(t, err)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	}
	assert.Equal(t, int64(10), stockOf(t, db, productID))
	assert.Zero(t, countRows(t, db, "orders"))
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-I", 10, 0, 10)
	svc := NewService(db)

	cases := []struct {
		name string
		req  Request
	}{
		{"zero quantity", Request{Items: []ItemRequest{{ProductID: productID, Quantity: 0, UnitPrice: 10}}}},
		{"negative price", Request{Items: []ItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: -1}}}},
		{"bad payment status", Request{Items: []ItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 10}}, PaymentStatus: "paid"}},
		{"bad order status", Request{Items: []ItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 10}}, OrderStatus: "done"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), userID, tc.req)
			var validation *domain.ValidationError
			require.ErrorAs(t, err, &validation)
		})
	}
	assert.Zero(t, countRows(t, db, "orders"))
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-J", 30, 0, 10)
	svc := NewService(db)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Create(context.Background(), userID, Request{
				Items: []ItemRequest{{ProductID: productID, Quantity: 6, UnitPrice: 30}},
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var insufficient *domain.InsufficientStockError
		if !errors.As(err, &insufficient) {
			require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		}
	}
	require.Equal(t, 1, successes, "exactly one of two racing orders must commit")
	assert.Equal(t, int64(4), stockOf(t, db, productID))
	assert.GreaterOrEqual(t, stockOf(t, db, productID), int64(0))
	assert.Equal(t, ledgerSum(t, db, productID), stockOf(t, db, productID))
}

func TestLedgerStaysConsistentAcrossOrders(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-K", 5, 0, 50)
	svc := NewService(db)

	for i := 0; i < 5; i++ {
		_, err := svc.Create(context.Background(), userID, Request{
			Items: []ItemRequest{{ProductID: productID, Quantity: int64(i + 1), UnitPrice: 5}},
		})
		require.NoError(t, err)
	}
	// 50 - (1+2+3+4+5)
	assert.Equal(t, int64(35), stockOf(t, db, productID))
	assert.Equal(t, ledgerSum(t, db, productID), stockOf(t, db, productID))
}

func TestGetReturnsWhatCreateWrote(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-L", 18, 0, 12)
	svc := NewService(db)

	notes := "walk-in customer"
	created, err := svc.Create(context.Background(), userID, Request{
		Items:         []ItemRequest{{ProductID: productID, Quantity: 3, UnitPrice: 18}},
		PaymentStatus: domain.PaymentCompleted,
		Notes:         &notes,
	})
	require.NoError(t, err)

	fetched, err := svc.Get(context.Background(), created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Order.ID, fetched.Order.ID)
	assert.InDelta(t, created.TotalAmount, fetched.TotalAmount, 1e-9)
	require.Len(t, fetched.Items, 1)
	assert.Equal(t, "SKU-L", fetched.Items[0].SKU)
	require.Len(t, fetched.Payments, 1)
	require.NotNil(t, fetched.Notes)
	assert.Equal(t, notes, *fetched.Notes)

	_, err = svc.Get(context.Background(), created.Order.ID+100)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCreateIgnoresInactiveProducts(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-M", 10, 0, 10)
	db.MustExec(`UPDATE products SET is_active = 0 WHERE product_id = ?`, productID)
	svc := NewService(db)

	_, err := svc.Create(context.Background(), userID, Request{
		Items: []ItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 10}},
	})
	var notFound *domain.ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestListFiltersAndPages(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-N", 10, 0, 100)
	svc := NewService(db)

	for i := 0; i < 7; i++ {
		status := domain.PaymentPending
		if i%2 == 0 {
			status = domain.PaymentCompleted
		}
		_, err := svc.Create(context.Background(), userID, Request{
			Items:         []ItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 10}},
			PaymentStatus: status,
		})
		require.NoError(t, err)
	}

	all, meta, err := svc.List(context.Background(), ListFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(7), meta.Total)
	assert.Equal(t, int64(3), meta.Pages)

	completed, _, err := svc.List(context.Background(), ListFilter{PaymentStatus: domain.PaymentCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 4)

	_, _, err = svc.List(context.Background(), ListFilter{Status: "bogus"})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-O", 10, 0, 50)
	svc := NewService(db)
	ctx := context.Background()

	newOrder := func() int64 {
		detail, err := svc.Create(ctx, userID, Request{
			Items: []ItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 10}},
		})
		require.NoError(t, err)
		return detail.Order.ID
	}

	id := newOrder()
	require.NoError(t, svc.UpdateStatus(ctx, id, domain.OrderProcessing))
	require.NoError(t, svc.UpdateStatus(ctx, id, domain.OrderCompleted))

	var validation *domain.ValidationError
	err := svc.UpdateStatus(ctx, id, domain.OrderCancelled)
	require.ErrorAs(t, err, &validation, "completed orders cannot be cancelled")

	cancelled := newOrder()
	require.NoError(t, svc.UpdateStatus(ctx, cancelled, domain.OrderCancelled))
	err = svc.UpdateStatus(ctx, cancelled, domain.OrderProcessing)
	require.ErrorAs(t, err, &validation)

	// Cancellation does not touch the ledger.
	assert.Equal(t, ledgerSum(t, db, productID), stockOf(t, db, productID))

	err = svc.UpdateStatus(ctx, 424242, domain.OrderProcessing)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestValidateIsReadOnly(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-P", 30, 5, 10)
	svc := NewService(db)

	priced, totals, err := svc.Validate(context.Background(), []ItemRequest{
		{ProductID: productID, Quantity: 2, UnitPrice: 30},
	})
	require.NoError(t, err)
	require.Len(t, priced, 1)
	assert.InDelta(t, 60.0, totals.TotalAmount, 1e-9)
	assert.InDelta(t, 3.0, totals.TaxAmount, 1e-9)

	assert.Equal(t, int64(10), stockOf(t, db, productID))
	assert.Zero(t, countRows(t, db, "orders"))
	assert.Zero(t, countRows(t, db, "order_items"))
}

func TestManyConcurrentOrdersDrainToZero(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	productID := seedProduct(t, db, userID, "SKU-Q", 9, 0, 8)
	svc := NewService(db)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), userID, Request{
				Items: []ItemRequest{{ProductID: productID, Quantity: 1, UnitPrice: 9}},
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range errs {
		if err == nil {
			successes++
		} else {
			var insufficient *domain.InsufficientStockError
			ok := errors.As(err, &insufficient) || errors.Is(err, domain.ErrConcurrencyConflict)
			require.True(t, ok, fmt.Sprintf("worker %d: unexpected error %v", i, err))
		}
	}
	assert.Equal(t, 8, successes)
	assert.Equal(t, int64(0), stockOf(t, db, productID))
	assert.Equal(t, ledgerSum(t, db, productID), stockOf(t, db, productID))
}
