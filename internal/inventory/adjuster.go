package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/rakibulhasan-dev/bazarly-backend/pkg/errors"
)

// Line is a single product quantity to reserve or release.
type Line struct {
	ProductID uuid.UUID
	Qty       int
}

// Adjuster mutates product stock through conditional updates only. Callers
// must run both operations inside the transaction that owns the order state
// change, so a failed payment transition and its stock compensation commit
// or roll back together.
type Adjuster interface {
	Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error
	Release(ctx context.Context, tx *gorm.DB, lines []Line) error
}

type adjusterImpl struct{}

// NewAdjuster exposes the default stock adjuster.
func NewAdjuster() Adjuster {
	return adjusterImpl{}
}

// Reserve decrements stock for every line, all-or-nothing. The conditional
// WHERE guard means two concurrent reservations can never both succeed on
// the last unit. Returns a stock conflict naming the first product that
// could not be reserved; the caller's rollback undoes any earlier lines.
func (adjusterImpl) Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "reservation qty must be positive")
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE products
			SET stock = stock - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND stock >= ?
		`, line.Qty, line.ProductID, line.Qty)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStockConflict, "insufficient stock").
				WithDetails(map[string]any{
					"product_id": line.ProductID.String(),
					"qty":        line.Qty,
				})
		}
	}
	return nil
}

// Release returns previously reserved stock. Unlike Reserve it never fails
// on quantity; compensation for a dead order must not be blocked by catalog
// drift.
func (adjusterImpl) Release(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock release")
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			continue
		}
		res := tx.WithContext(ctx).Exec(`
			UPDATE products
			SET stock = stock + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, line.Qty, line.ProductID)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found for stock release", line.ProductID))
		}
	}
	return nil
}
