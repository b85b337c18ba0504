package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Error kinds returned by the warehouse engine. Callers match them with
// errors.Is; every returned error wraps exactly one kind plus context.
var (
	ErrInvalidQuantity            = errors.New("invalid quantity")
	ErrInvalidInput               = errors.New("invalid input")
	ErrNotFound                   = errors.New("not found")
	ErrInvalidState               = errors.New("invalid state")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrInsufficientAvailableStock = errors.New("insufficient available stock")
	ErrInconsistentState          = errors.New("inconsistent state")
	ErrLockTimeout                = errors.New("lock timeout")
	ErrForbidden                  = errors.New("forbidden")
	ErrLocationWarehouseMismatch  = errors.New("location does not belong to warehouse")
	ErrDuplicate                  = errors.New("already exists")
)

// PostgreSQL SQLSTATE codes that signal lock contention.
const (
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
	pgUniqueViolation  = "23505"
)

// quantityScale is the number of decimal places stored for quantities.
const quantityScale = 3

// classifyPgError maps lock contention failures onto ErrLockTimeout and
// leaves every other error untouched.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgLockNotAvailable || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	return err
}

// isUniqueViolation reports whether err is a unique constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// validateQuantity rejects non-positive quantities and quantities with more
// precision than the balance columns can hold.
func validateQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("%w: must be positive, got %s", ErrInvalidQuantity, qty)
	}
	if !qty.Equal(qty.Round(quantityScale)) {
		return fmt.Errorf("%w: at most %d decimal places allowed, got %s", ErrInvalidQuantity, quantityScale, qty)
	}
	return nil
}
