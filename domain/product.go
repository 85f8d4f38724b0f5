package domain

// Product is a catalog item. StockQuantity is a cached projection of
// the inventory log and must never go negative.
type Product struct {
	ID            int64    `db:"product_id" json:"product_id"`
	SKU           string   `db:"sku" json:"sku"`
	Name          string   `db:"name" json:"name"`
	Description   string   `db:"description" json:"description"`
	Brand         string   `db:"brand" json:"brand"`
	CategoryID    *int64   `db:"category_id" json:"category_id,omitempty"`
	SupplierID    *int64   `db:"supplier_id" json:"supplier_id,omitempty"`
	PurchasePrice float64  `db:"purchase_price" json:"purchase_price"`
	SellingPrice  float64  `db:"selling_price" json:"selling_price"`
	DiscountPrice *float64 `db:"discount_price" json:"discount_price,omitempty"`
	TaxRate       float64  `db:"tax_rate" json:"tax_rate"`
	StockQuantity int64    `db:"stock_quantity" json:"stock_quantity"`
	ReorderLevel  int64    `db:"reorder_level" json:"reorder_level"`
	IsActive      bool     `db:"is_active" json:"is_active"`
	CreatedAt     string   `db:"created_at" json:"created_at"`
	UpdatedAt     string   `db:"updated_at" json:"updated_at"`
}

type Category struct {
	ID          int64  `db:"category_id" json:"category_id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	CreatedAt   string `db:"created_at" json:"created_at"`
}

type Supplier struct {
	ID            int64  `db:"supplier_id" json:"supplier_id"`
	CompanyName   string `db:"company_name" json:"company_name"`
	ContactPerson string `db:"contact_person" json:"contact_person"`
	Email         string `db:"email" json:"email"`
	Phone         string `db:"phone" json:"phone"`
	Address       string `db:"address" json:"address"`
	Country       string `db:"country" json:"country"`
	Status        string `db:"status" json:"status"`
	CreatedAt     string `db:"created_at" json:"created_at"`
}
