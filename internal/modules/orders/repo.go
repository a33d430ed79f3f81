package orders

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// DB returns the underlying database connection for direct queries.
func (r *Repo) DB() *gorm.DB { return r.db }

func (r *Repo) ByID(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *Repo) ByPublicID(ctx context.Context, publicID string) (Order, error) {
	var o Order
	err := r.db.WithContext(ctx).First(&o, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// LockForUpdate loads the order with a row lock. Must run inside a tx.
func LockForUpdate(ctx context.Context, tx *gorm.DB, id string) (Order, error) {
	var o Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// LockByPublicID is LockForUpdate keyed on the external identifier.
func LockByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (Order, error) {
	var o Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&o, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// MarkAwaitingPayment moves the order into awaiting_payment. Runs inside the
// caller's tx; conditional on the current status so a concurrent writer
// cannot regress a terminal order.
func MarkAwaitingPayment(ctx context.Context, tx *gorm.DB, o Order) error {
	to, err := nextStatus(o.Status, "await_payment")
	if err != nil {
		return err
	}
	if to == o.Status {
		return nil
	}
	now := time.Now()
	return tx.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Updates(map[string]any{"status": to, "updated_at": now}).Error
}

// MarkProcessing fires the order into fulfillment exactly once: the
// conditional WHERE means a duplicate confirmation is a no-op at the DB
// level regardless of caller races.
func MarkProcessing(ctx context.Context, tx *gorm.DB, orderID string, paidAt time.Time) error {
	return tx.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status IN ?", orderID,
			[]string{StatusPending, StatusAwaitingPayment, StatusPendingRetry}).
		Updates(map[string]any{
			"status":     StatusProcessing,
			"paid_at":    &paidAt,
			"updated_at": paidAt,
		}).Error
}

// RecordFailure applies the fail-order path: retries left => pending_retry,
// exhausted => failed. Runs inside the caller's tx with the order row locked.
func RecordFailure(ctx context.Context, tx *gorm.DB, o Order, code, reason string) (string, error) {
	if !o.Payable() && o.Status != StatusProcessing {
		// already terminal: duplicate failure signal, nothing to do
		return o.Status, nil
	}

	retries := o.RetryCount + 1
	to := StatusPendingRetry
	if retries >= MaxRetries {
		to = StatusFailed
	}

	now := time.Now()
	updates := map[string]any{
		"status":      to,
		"retry_count": retries,
		"updated_at":  now,
	}
	if reason != "" {
		updates["failure_reason"] = truncateReason(reason)
	}
	if code != "" {
		updates["failure_code"] = code
	}

	err := tx.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Updates(updates).Error
	return to, err
}

// FlagForReview parks the order for manual inspection (e.g. webhook amount
// mismatch). Not part of the automatic retry loop.
func FlagForReview(ctx context.Context, tx *gorm.DB, o Order, reason string) error {
	to, err := nextStatus(o.Status, "review")
	if err != nil {
		return err
	}
	now := time.Now()
	return tx.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Updates(map[string]any{
			"status":         to,
			"failure_reason": truncateReason(reason),
			"updated_at":     now,
		}).Error
}

func truncateReason(s string) string {
	if len(s) > 250 {
		return s[:250]
	}
	return s
}
