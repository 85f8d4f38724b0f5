package domain

// Inventory log entry types.
const (
	LogSale       = "sale"
	LogAdjustment = "adjustment"
	LogRestock    = "restock"
)

// InventoryLogEntry is an append-only record of a stock change. The
// log is the source of truth for stock history; products.stock_quantity
// must always equal the sum of a product's quantity changes.
type InventoryLogEntry struct {
	ID             int64  `db:"log_id" json:"log_id"`
	ProductID      int64  `db:"product_id" json:"product_id"`
	UserID         int64  `db:"user_id" json:"user_id"`
	QuantityChange int64  `db:"quantity_change" json:"quantity_change"`
	Type           string `db:"type" json:"type"`
	ReferenceID    *int64 `db:"reference_id" json:"reference_id,omitempty"`
	Notes          string `db:"notes" json:"notes"`
	CreatedAt      string `db:"created_at" json:"created_at"`
}
