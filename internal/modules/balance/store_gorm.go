package balance

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

// WithTx returns a store whose mutations join tx instead of opening their
// own transaction. Mutate still wraps itself in tx.Transaction, which gorm
// turns into a savepoint inside an already-open transaction, so the caller's
// rollback takes every balance move with it.
func (s *GormStore) WithTx(tx *gorm.DB) Store { return &GormStore{db: tx} }

type gormMutator struct {
	ctx    context.Context
	tx     *gorm.DB
	row    *CustomerBalance
	staged []Transaction
}

func (m *gormMutator) Balance() *CustomerBalance { return m.row }

func (m *gormMutator) OpenReservation(orderID string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := m.tx.WithContext(m.ctx).
		Model(&Transaction{}).
		Select("SUM(amount)").
		Where("customer_id = ? AND order_id = ? AND type IN ?",
			m.row.CustomerID, orderID, []string{TxReservation, TxPurchase}).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func (m *gormMutator) Append(t Transaction) { m.staged = append(m.staged, t) }

// Mutate: SELECT ... FOR UPDATE on the balance row is the per-customer
// serialization point. The row is created on first use so the lock exists
// for all later operations.
func (s *GormStore) Mutate(ctx context.Context, customerID string, fn func(m Mutator) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row CustomerBalance
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "customer_id = ?", customerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = CustomerBalance{
				CustomerID: customerID,
				Balance:    decimal.Zero,
				Reserved:   decimal.Zero,
				UpdatedAt:  time.Now(),
			}
			if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
				return err
			}
			// re-lock the freshly created row
			if err := tx.WithContext(ctx).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&row, "customer_id = ?", customerID).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		m := &gormMutator{ctx: ctx, tx: tx, row: &row}
		if err := fn(m); err != nil {
			return err
		}

		row.UpdatedAt = time.Now()
		if err := tx.WithContext(ctx).Model(&CustomerBalance{}).
			Where("customer_id = ?", customerID).
			Updates(map[string]any{
				"currency":   row.Currency,
				"balance":    row.Balance,
				"reserved":   row.Reserved,
				"updated_at": row.UpdatedAt,
			}).Error; err != nil {
			return err
		}

		for i := range m.staged {
			if err := tx.WithContext(ctx).Create(&m.staged[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) Get(ctx context.Context, customerID string) (CustomerBalance, error) {
	var row CustomerBalance
	err := s.db.WithContext(ctx).First(&row, "customer_id = ?", customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CustomerBalance{CustomerID: customerID, Balance: decimal.Zero, Reserved: decimal.Zero}, nil
	}
	return row, err
}

func (s *GormStore) Transactions(ctx context.Context, customerID string, limit int) ([]Transaction, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	var out []Transaction
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *GormStore) ReplaySum(ctx context.Context, customerID string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := s.db.WithContext(ctx).
		Model(&Transaction{}).
		Select("SUM(amount)").
		Where("customer_id = ? AND type != ?", customerID, TxReservation).
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
