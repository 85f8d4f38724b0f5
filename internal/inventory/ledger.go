package inventory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"bims/m/domain"
)

// Ledger owns the append-only inventory_log and the read models built
// on it. Every stock_quantity write in the system goes through either
// this package or the order executor, both of which append a matching
// log entry in the same transaction.
type Ledger struct {
	db *sqlx.DB
}

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

// AppendTx writes one log entry inside the caller's transaction.
func AppendTx(ctx context.Context, tx *sqlx.Tx, e domain.InventoryLogEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO inventory_log (product_id, user_id, quantity_change, type, reference_id, notes)
         VALUES (?, ?, ?, ?, ?, ?)`,
		e.ProductID, e.UserID, e.QuantityChange, e.Type, e.ReferenceID, e.Notes)
	if err != nil {
		return &domain.StorageError{Op: "append inventory log", Err: err}
	}
	return nil
}

// History returns a product's log entries, newest first.
func (l *Ledger) History(ctx context.Context, productID int64) ([]domain.InventoryLogEntry, error) {
	var exists bool
	if err := l.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM products WHERE product_id = ?)`, productID); err != nil {
		return nil, &domain.StorageError{Op: "load product", Err: err}
	}
	if !exists {
		return nil, &domain.ProductNotFoundError{ProductID: productID}
	}
	entries := []domain.InventoryLogEntry{}
	err := l.db.SelectContext(ctx, &entries,
		`SELECT log_id, product_id, user_id, quantity_change, type, reference_id, COALESCE(notes, '') AS notes, created_at
         FROM inventory_log WHERE product_id = ? ORDER BY log_id DESC`, productID)
	if err != nil {
		return nil, &domain.StorageError{Op: "load inventory history", Err: err}
	}
	return entries, nil
}

// LowStock lists active products at or below their reorder level,
// lowest stock first.
func (l *Ledger) LowStock(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	products := []domain.Product{}
	err := l.db.SelectContext(ctx, &products,
		`SELECT product_id, sku, name, description, brand, category_id, supplier_id,
                purchase_price, selling_price, discount_price, tax_rate,
                stock_quantity, reorder_level, is_active, created_at, updated_at
         FROM products
         WHERE is_active = 1 AND stock_quantity <= reorder_level
         ORDER BY stock_quantity ASC LIMIT ?`, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "load low stock products", Err: err}
	}
	return products, nil
}

// StockAudit compares a product's cached stock_quantity with the sum
// of its log entries.
type StockAudit struct {
	ProductID     int64 `db:"product_id" json:"product_id"`
	StockQuantity int64 `db:"stock_quantity" json:"stock_quantity"`
	LedgerTotal   int64 `db:"ledger_total" json:"ledger_total"`
}

// Consistent reports whether the cached projection matches the ledger.
func (a StockAudit) Consistent() bool {
	return a.StockQuantity == a.LedgerTotal
}

// Audit verifies the ledger invariant for one product.
func (l *Ledger) Audit(ctx context.Context, productID int64) (StockAudit, error) {
	var audit StockAudit
	err := l.db.GetContext(ctx, &audit,
		`SELECT p.product_id, p.stock_quantity,
                COALESCE((SELECT SUM(quantity_change) FROM inventory_log WHERE product_id = p.product_id), 0) AS ledger_total
         FROM products p WHERE p.product_id = ?`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return StockAudit{}, &domain.ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return StockAudit{}, &domain.StorageError{Op: "audit stock", Err: err}
	}
	return audit, nil
}

// Restock adds units to a product and appends a restock entry, in one
// transaction. Returns the new stock level.
func (l *Ledger) Restock(ctx context.Context, userID, productID, quantity int64, notes string) (int64, error) {
	if quantity <= 0 {
		return 0, &domain.ValidationError{Reason: "restock quantity must be greater than zero"}
	}
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &domain.StorageError{Op: "begin restock", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE products SET stock_quantity = stock_quantity + ?, updated_at = CURRENT_TIMESTAMP
         WHERE product_id = ? AND is_active = 1`, quantity, productID)
	if err != nil {
		return 0, &domain.StorageError{Op: "restock product", Err: err}
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, &domain.ProductNotFoundError{ProductID: productID}
	}

	entry := domain.InventoryLogEntry{
		ProductID:      productID,
		UserID:         userID,
		QuantityChange: quantity,
		Type:           domain.LogRestock,
		Notes:          notes,
	}
	if err := AppendTx(ctx, tx, entry); err != nil {
		return 0, err
	}

	var stock int64
	if err := tx.GetContext(ctx, &stock,
		`SELECT stock_quantity FROM products WHERE product_id = ?`, productID); err != nil {
		return 0, &domain.StorageError{Op: "read stock", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &domain.StorageError{Op: "commit restock", Err: err}
	}
	return stock, nil
}

// Adjust sets a product's stock to an absolute quantity and appends an
// adjustment entry for the delta. A no-op adjustment writes nothing.
func (l *Ledger) Adjust(ctx context.Context, userID, productID, newQuantity int64, notes string) (int64, error) {
	if newQuantity < 0 {
		return 0, &domain.ValidationError{Reason: "stock quantity cannot be negative"}
	}
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &domain.StorageError{Op: "begin adjustment", Err: err}
	}
	defer tx.Rollback()

	var current int64
	err = tx.GetContext(ctx, &current,
		`SELECT stock_quantity FROM products WHERE product_id = ? AND is_active = 1`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &domain.ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return 0, &domain.StorageError{Op: "load stock", Err: err}
	}

	delta := newQuantity - current
	if delta == 0 {
		return 0, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE products SET stock_quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE product_id = ?`,
		newQuantity, productID); err != nil {
		return 0, &domain.StorageError{Op: "adjust stock", Err: err}
	}

	entry := domain.InventoryLogEntry{
		ProductID:      productID,
		UserID:         userID,
		QuantityChange: delta,
		Type:           domain.LogAdjustment,
		Notes:          notes,
	}
	if err := AppendTx(ctx, tx, entry); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, &domain.StorageError{Op: "commit adjustment", Err: err}
	}
	return delta, nil
}
