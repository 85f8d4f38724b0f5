package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"bims/m/domain"
)

// ItemRequest is one requested order line. UnitPrice is supplied by the
// caller and snapshotted onto the order item; DiscountAmount and
// TaxAmount override the computed values when present.
type ItemRequest struct {
	ProductID      int64    `json:"product_id"`
	Quantity       int64    `json:"quantity"`
	UnitPrice      float64  `json:"unit_price"`
	DiscountAmount *float64 `json:"discount_amount,omitempty"`
	TaxAmount      *float64 `json:"tax_amount,omitempty"`
}

// PricedItem is a validated line with its computed amounts.
type PricedItem struct {
	ProductID      int64
	Quantity       int64
	UnitPrice      float64
	DiscountAmount float64
	TaxAmount      float64
	Subtotal       float64
}

// Totals aggregates the priced lines of one order.
type Totals struct {
	TotalAmount    float64
	TaxAmount      float64
	DiscountAmount float64
}

// ValidateItems checks each requested line against the live catalog and
// prices it. Read-only; duplicate product ids are independent lines
// checked against the same live stock value. The executor repeats this
// inside its transaction, where the guarded decrement is authoritative.
func ValidateItems(ctx context.Context, q sqlx.QueryerContext, items []ItemRequest) ([]PricedItem, Totals, error) {
	if len(items) == 0 {
		return nil, Totals{}, domain.ErrEmptyOrder
	}

	priced := make([]PricedItem, 0, len(items))
	var totals Totals
	for i, item := range items {
		if item.ProductID <= 0 {
			return nil, Totals{}, &domain.ValidationError{Reason: fmt.Sprintf("item %d: product_id is required", i)}
		}
		if item.Quantity <= 0 {
			return nil, Totals{}, &domain.ValidationError{Reason: fmt.Sprintf("item %d: quantity must be greater than zero", i)}
		}
		if item.UnitPrice < 0 {
			return nil, Totals{}, &domain.ValidationError{Reason: fmt.Sprintf("item %d: unit_price cannot be negative", i)}
		}
		if item.DiscountAmount != nil && *item.DiscountAmount < 0 {
			return nil, Totals{}, &domain.ValidationError{Reason: fmt.Sprintf("item %d: discount_amount cannot be negative", i)}
		}

		var product struct {
			TaxRate       float64 `db:"tax_rate"`
			StockQuantity int64   `db:"stock_quantity"`
		}
		err := sqlx.GetContext(ctx, q, &product,
			`SELECT tax_rate, stock_quantity FROM products WHERE product_id = ? AND is_active = 1`,
			item.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, Totals{}, &domain.ProductNotFoundError{ProductID: item.ProductID}
		}
		if err != nil {
			return nil, Totals{}, &domain.StorageError{Op: "load product", Err: err}
		}
		if product.StockQuantity < item.Quantity {
			return nil, Totals{}, &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: product.StockQuantity,
			}
		}

		subtotal := float64(item.Quantity) * item.UnitPrice
		tax := subtotal * product.TaxRate / 100
		if item.TaxAmount != nil {
			tax = *item.TaxAmount
		}
		var discount float64
		if item.DiscountAmount != nil {
			discount = *item.DiscountAmount
		}

		priced = append(priced, PricedItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			DiscountAmount: discount,
			TaxAmount:      tax,
			Subtotal:       subtotal,
		})
		totals.TotalAmount += subtotal
		totals.TaxAmount += tax
		totals.DiscountAmount += discount
	}
	return priced, totals, nil
}
