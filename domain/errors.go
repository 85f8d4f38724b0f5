package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyOrder is returned when an order request carries no items.
	ErrEmptyOrder = errors.New("order must contain at least one item")

	// ErrOrderNotFound is returned when an order id does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrConcurrencyConflict is returned when a stock row changed
	// between validation and the guarded decrement.
	ErrConcurrencyConflict = errors.New("stock changed while processing order")
)

// ProductNotFoundError reports a missing or inactive product.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError reports a line item that asks for more units
// than the product has on hand.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// StorageError wraps a database failure; the enclosing transaction has
// been rolled back by the time it surfaces.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
