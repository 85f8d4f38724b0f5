package domain

// Payment status values.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// Order status values.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
)

type Order struct {
	ID             int64   `db:"order_id" json:"order_id"`
	CustomerID     *int64  `db:"customer_id" json:"customer_id,omitempty"`
	UserID         int64   `db:"user_id" json:"user_id"`
	TotalAmount    float64 `db:"total_amount" json:"total_amount"`
	TaxAmount      float64 `db:"tax_amount" json:"tax_amount"`
	DiscountAmount float64 `db:"discount_amount" json:"discount_amount"`
	PaymentMethod  string  `db:"payment_method" json:"payment_method"`
	PaymentStatus  string  `db:"payment_status" json:"payment_status"`
	OrderStatus    string  `db:"order_status" json:"order_status"`
	Notes          *string `db:"notes" json:"notes,omitempty"`
	OrderDate      string  `db:"order_date" json:"order_date"`
	CreatedAt      string  `db:"created_at" json:"created_at"`
}

// OrderItem snapshots the unit price at the time of sale; later catalog
// price changes do not affect it.
type OrderItem struct {
	ID             int64   `db:"order_item_id" json:"order_item_id"`
	OrderID        int64   `db:"order_id" json:"order_id"`
	ProductID      int64   `db:"product_id" json:"product_id"`
	Quantity       int64   `db:"quantity" json:"quantity"`
	UnitPrice      float64 `db:"unit_price" json:"unit_price"`
	DiscountAmount float64 `db:"discount_amount" json:"discount_amount"`
	TaxAmount      float64 `db:"tax_amount" json:"tax_amount"`
	Subtotal       float64 `db:"subtotal" json:"subtotal"`
}

type Payment struct {
	ID              int64   `db:"payment_id" json:"payment_id"`
	OrderID         int64   `db:"order_id" json:"order_id"`
	Amount          float64 `db:"amount" json:"amount"`
	PaymentMethod   string  `db:"payment_method" json:"payment_method"`
	ReferenceNumber *string `db:"reference_number" json:"reference_number,omitempty"`
	CreatedBy       int64   `db:"created_by" json:"created_by"`
	CreatedAt       string  `db:"created_at" json:"created_at"`
}
