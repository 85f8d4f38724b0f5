package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"bims/m/domain"
	"bims/m/internal/inventory"
)

// Request is a full order-creation request. The acting user comes from
// the caller, not the request body.
type Request struct {
	CustomerID      *int64        `json:"customer_id,omitempty"`
	Items           []ItemRequest `json:"items"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	PaymentStatus   string        `json:"payment_status,omitempty"`
	OrderStatus     string        `json:"order_status,omitempty"`
	ReferenceNumber string        `json:"reference_number,omitempty"`
	Notes           *string       `json:"notes,omitempty"`
}

// Service executes order placement and reads. The database handle is
// injected; there is no package-level connection state.
type Service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

var paymentStatuses = map[string]bool{
	domain.PaymentPending:   true,
	domain.PaymentCompleted: true,
	domain.PaymentFailed:    true,
	domain.PaymentRefunded:  true,
}

var orderStatuses = map[string]bool{
	domain.OrderPending:    true,
	domain.OrderProcessing: true,
	domain.OrderCompleted:  true,
	domain.OrderCancelled:  true,
}

// Validate prices the request against current catalog state without
// writing anything.
func (s *Service) Validate(ctx context.Context, items []ItemRequest) ([]PricedItem, Totals, error) {
	return ValidateItems(ctx, s.db, items)
}

// Create places an order: validates every line inside one transaction,
// inserts the order header and items, decrements stock under a guard,
// appends a sale entry to the inventory log per line, records a payment
// when the order arrives already paid, and returns the read-back
// aggregate. Any failure rolls the whole set of writes back.
func (s *Service) Create(ctx context.Context, userID int64, req Request) (*Detail, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "cash"
	}
	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = domain.PaymentPending
	}
	if !paymentStatuses[paymentStatus] {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("invalid payment_status %q", paymentStatus)}
	}
	orderStatus := req.OrderStatus
	if orderStatus == "" {
		orderStatus = domain.OrderPending
	}
	if !orderStatuses[orderStatus] {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("invalid order_status %q", orderStatus)}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, &domain.StorageError{Op: "begin order", Err: err}
	}
	defer tx.Rollback()

	// Authoritative pass: the same checks as the pre-flight validator,
	// but inside the transaction boundary.
	priced, totals, err := ValidateItems(ctx, tx, req.Items)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (customer_id, user_id, total_amount, tax_amount, discount_amount,
                             payment_method, payment_status, order_status, notes)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.CustomerID, userID, totals.TotalAmount, totals.TaxAmount, totals.DiscountAmount,
		paymentMethod, paymentStatus, orderStatus, req.Notes)
	if err != nil {
		return nil, &domain.StorageError{Op: "insert order", Err: err}
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return nil, &domain.StorageError{Op: "read order id", Err: err}
	}

	for _, line := range priced {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price, discount_amount, tax_amount, subtotal)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			orderID, line.ProductID, line.Quantity, line.UnitPrice,
			line.DiscountAmount, line.TaxAmount, line.Subtotal); err != nil {
			return nil, &domain.StorageError{Op: "insert order item", Err: err}
		}

		// Guarded decrement: the WHERE clause is what makes the
		// non-negative stock invariant hold under concurrent orders.
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock_quantity = stock_quantity - ?, updated_at = CURRENT_TIMESTAMP
             WHERE product_id = ? AND stock_quantity >= ?`,
			line.Quantity, line.ProductID, line.Quantity)
		if err != nil {
			return nil, &domain.StorageError{Op: "decrement stock", Err: err}
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, &domain.StorageError{Op: "decrement stock", Err: err}
		}
		if affected == 0 {
			var available int64
			if err := tx.GetContext(ctx, &available,
				`SELECT stock_quantity FROM products WHERE product_id = ?`, line.ProductID); err != nil {
				return nil, domain.ErrConcurrencyConflict
			}
			if available < line.Quantity {
				return nil, &domain.InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: available,
				}
			}
			return nil, domain.ErrConcurrencyConflict
		}

		refID := orderID
		entry := domain.InventoryLogEntry{
			ProductID:      line.ProductID,
			UserID:         userID,
			QuantityChange: -line.Quantity,
			Type:           domain.LogSale,
			ReferenceID:    &refID,
			Notes:          fmt.Sprintf("Order #%d", orderID),
		}
		if err := inventory.AppendTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if paymentStatus == domain.PaymentCompleted {
		reference := req.ReferenceNumber
		if reference == "" {
			reference = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO payments (order_id, amount, payment_method, reference_number, created_by)
             VALUES (?, ?, ?, ?, ?)`,
			orderID, totals.TotalAmount, paymentMethod, reference, userID); err != nil {
			return nil, &domain.StorageError{Op: "insert payment", Err: err}
		}
	}

	detail, err := loadDetail(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, &domain.StorageError{Op: "commit order", Err: err}
	}
	return detail, nil
}
