package order

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"bims/m/domain"
)

// ItemDetail is an order line joined with its product's identity.
type ItemDetail struct {
	domain.OrderItem
	SKU         string `db:"sku" json:"sku"`
	ProductName string `db:"product_name" json:"product_name"`
}

// Detail is the full order aggregate returned to callers.
type Detail struct {
	domain.Order
	CustomerFirstName *string          `db:"customer_first_name" json:"customer_first_name,omitempty"`
	CustomerLastName  *string          `db:"customer_last_name" json:"customer_last_name,omitempty"`
	CreatedBy         *string          `db:"created_by" json:"created_by,omitempty"`
	Items             []ItemDetail     `json:"items"`
	Payments          []domain.Payment `json:"payments"`
}

func loadDetail(ctx context.Context, q sqlx.QueryerContext, orderID int64) (*Detail, error) {
	var detail Detail
	err := sqlx.GetContext(ctx, q, &detail,
		`SELECT o.order_id, o.customer_id, o.user_id, o.total_amount, o.tax_amount, o.discount_amount,
                o.payment_method, o.payment_status, o.order_status, o.notes, o.order_date, o.created_at,
                c.first_name AS customer_first_name, c.last_name AS customer_last_name,
                u.username AS created_by
         FROM orders o
         LEFT JOIN customers c ON c.customer_id = o.customer_id
         LEFT JOIN users u ON u.user_id = o.user_id
         WHERE o.order_id = ?`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "load order", Err: err}
	}

	detail.Items = []ItemDetail{}
	err = sqlx.SelectContext(ctx, q, &detail.Items,
		`SELECT oi.order_item_id, oi.order_id, oi.product_id, oi.quantity, oi.unit_price,
                oi.discount_amount, oi.tax_amount, oi.subtotal,
                p.sku, p.name AS product_name
         FROM order_items oi
         JOIN products p ON p.product_id = oi.product_id
         WHERE oi.order_id = ?
         ORDER BY oi.order_item_id`, orderID)
	if err != nil {
		return nil, &domain.StorageError{Op: "load order items", Err: err}
	}

	detail.Payments = []domain.Payment{}
	err = sqlx.SelectContext(ctx, q, &detail.Payments,
		`SELECT payment_id, order_id, amount, payment_method, reference_number, created_by, created_at
         FROM payments WHERE order_id = ? ORDER BY payment_id`, orderID)
	if err != nil {
		return nil, &domain.StorageError{Op: "load payments", Err: err}
	}
	return &detail, nil
}

// Get returns one order aggregate.
func (s *Service) Get(ctx context.Context, orderID int64) (*Detail, error) {
	return loadDetail(ctx, s.db, orderID)
}

// ListFilter narrows and pages the order listing.
type ListFilter struct {
	Status        string
	PaymentStatus string
	StartDate     string // YYYY-MM-DD
	EndDate       string // YYYY-MM-DD
	CustomerID    int64
	Page          int
	Limit         int
	Sort          string
	Desc          bool
}

// Page describes one page of a listing.
type Page struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int64 `json:"pages"`
}

var orderSortFields = map[string]bool{
	"order_id":       true,
	"order_date":     true,
	"total_amount":   true,
	"payment_status": true,
	"order_status":   true,
}

// List returns order headers matching the filter with pagination
// metadata.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Detail, Page, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Status != "" {
		if !orderStatuses[f.Status] {
			return nil, Page{}, &domain.ValidationError{Reason: "invalid status filter"}
		}
		clauses = append(clauses, "o.order_status = ?")
		args = append(args, f.Status)
	}
	if f.PaymentStatus != "" {
		if !paymentStatuses[f.PaymentStatus] {
			return nil, Page{}, &domain.ValidationError{Reason: "invalid payment_status filter"}
		}
		clauses = append(clauses, "o.payment_status = ?")
		args = append(args, f.PaymentStatus)
	}
	if f.StartDate != "" {
		if _, err := time.Parse("2006-01-02", f.StartDate); err != nil {
			return nil, Page{}, &domain.ValidationError{Reason: "start_date must be in YYYY-MM-DD format"}
		}
		clauses = append(clauses, "DATE(o.order_date) >= ?")
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		if _, err := time.Parse("2006-01-02", f.EndDate); err != nil {
			return nil, Page{}, &domain.ValidationError{Reason: "end_date must be in YYYY-MM-DD format"}
		}
		clauses = append(clauses, "DATE(o.order_date) <= ?")
		args = append(args, f.EndDate)
	}
	if f.CustomerID > 0 {
		clauses = append(clauses, "o.customer_id = ?")
		args = append(args, f.CustomerID)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM orders o`+where, args...); err != nil {
		return nil, Page{}, &domain.StorageError{Op: "count orders", Err: err}
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	sort := f.Sort
	if !orderSortFields[sort] {
		sort = "order_date"
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}

	query := `SELECT o.order_id, o.customer_id, o.user_id, o.total_amount, o.tax_amount, o.discount_amount,
                     o.payment_method, o.payment_status, o.order_status, o.notes, o.order_date, o.created_at,
                     c.first_name AS customer_first_name, c.last_name AS customer_last_name,
                     u.username AS created_by
              FROM orders o
              LEFT JOIN customers c ON c.customer_id = o.customer_id
              LEFT JOIN users u ON u.user_id = o.user_id` +
		where + " ORDER BY o." + sort + " " + dir + " LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	orders := []Detail{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, Page{}, &domain.StorageError{Op: "list orders", Err: err}
	}

	pages := (total + int64(limit) - 1) / int64(limit)
	return orders, Page{Total: total, Page: page, Limit: limit, Pages: pages}, nil
}

// Transitions allowed after creation. Nothing here touches stock or the
// inventory log; cancellation does not reverse ledger entries.
var statusTransitions = map[string][]string{
	domain.OrderPending:    {domain.OrderProcessing, domain.OrderCancelled},
	domain.OrderProcessing: {domain.OrderCompleted},
}

// UpdateStatus moves an order along the status state machine.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, newStatus string) error {
	if !orderStatuses[newStatus] {
		return &domain.ValidationError{Reason: "invalid order_status"}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin status update", Err: err}
	}
	defer tx.Rollback()

	var current string
	err = tx.GetContext(ctx, &current, `SELECT order_status FROM orders WHERE order_id = ?`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return &domain.StorageError{Op: "load order status", Err: err}
	}

	allowed := false
	for _, next := range statusTransitions[current] {
		if next == newStatus {
			allowed = true
			break
		}
	}
	if !allowed {
		return &domain.ValidationError{Reason: "cannot transition order from " + current + " to " + newStatus}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET order_status = ? WHERE order_id = ?`, newStatus, orderID); err != nil {
		return &domain.StorageError{Op: "update order status", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit status update", Err: err}
	}
	return nil
}
