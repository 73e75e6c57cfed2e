package repositories

import "fmt"

// StockErrorCode enumerates failure reasons for stock ledger writes.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates a decrement would take the counter below zero.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorNotInitialised indicates a finite counter has no stored value to decrement.
	StockErrorNotInitialised StockErrorCode = "stock_not_initialised"
)

// StockError wraps stock-specific failures with machine readable codes.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Available int
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, productID string, available int, message string) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:      code,
		ProductID: productID,
		Available: available,
		Message:   message,
	}
}
