package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/etnikbeqiri/esim-sub001/internal/events"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/balance"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/orders"
)

// Applier owns the terminal transition of a Payment. Checkout, webhook and
// callback services all funnel through here so the exactly-once discipline
// lives in one place: row lock + conditional UPDATE WHERE status=pending,
// and only the winning writer fires downstream effects.
type Applier struct {
	store  applyStore
	events events.Publisher
	logger *slog.Logger
}

func NewApplier(db *gorm.DB, ledger *balance.Ledger, pub events.Publisher, logger *slog.Logger) *Applier {
	return newApplier(&gormApplyStore{db: db, ledger: ledger}, pub, logger)
}

func newApplier(store applyStore, pub events.Publisher, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Applier{store: store, events: pub, logger: logger}
}

// applyStore is the transactional persistence seam for Apply. One InTx call
// is one atomic unit: payment transition, order move and balance moves all
// commit or roll back together.
type applyStore interface {
	InTx(ctx context.Context, fn func(m applyMutator) error) error
}

type applyMutator interface {
	LockPayment(ctx context.Context, id string) (Payment, error)
	// TransitionPayment applies tr only while the payment still has status
	// from; reports whether this writer won the transition.
	TransitionPayment(ctx context.Context, id, from string, tr transition) (bool, error)
	OrderByID(ctx context.Context, id string) (orders.Order, error)
	MarkOrderProcessing(ctx context.Context, id string, paidAt time.Time) error
	LockOrder(ctx context.Context, id string) (orders.Order, error)
	RecordOrderFailure(ctx context.Context, o orders.Order, code, reason string) (string, error)
	FlagOrderForReview(ctx context.Context, id, reason string) error
	// Ledger is bound to the enclosing transaction.
	Ledger() *balance.Ledger
}

type transition struct {
	status       string
	paidAt       *time.Time
	errorMessage string
	clearError   bool
	providerRef  string
	metadata     datatypes.JSON
}

// Signal is a normalized terminal hint from a gateway (webhook, validation
// poll, or the balance gateway's immediate result).
type Signal struct {
	Outcome       gateways.Outcome
	GatewayStatus string
	TransactionID string
	ProviderRef   string
	Metadata      map[string]string
}

type applied struct {
	completed bool
	failed    bool
	payment   Payment
	orderPub  string
	orderTo   string
}

// Apply moves the payment into completed/failed if it is still pending.
// Duplicate signals for a terminal payment are an info-level no-op; a
// pending outcome applies nothing.
func (a *Applier) Apply(ctx context.Context, paymentID string, sig Signal) error {
	var res applied

	err := a.store.InTx(ctx, func(m applyMutator) error {
		p, err := m.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}

		if p.Terminal() {
			a.logger.InfoContext(ctx, "duplicate payment signal ignored",
				"payment", p.PublicID, "status", p.Status, "gateway_status", sig.GatewayStatus)
			return nil
		}

		switch sig.Outcome {
		case gateways.OutcomeConfirmed:
			return a.confirmLocked(ctx, m, p, sig, &res)
		case gateways.OutcomeFailed:
			return a.failLocked(ctx, m, p, sig, &res)
		default:
			// still pending at the gateway, nothing to move
			return nil
		}
	})
	if err != nil {
		return err
	}

	a.publishApplied(ctx, res, sig)
	return nil
}

func (a *Applier) confirmLocked(ctx context.Context, m applyMutator, p Payment, sig Signal, res *applied) error {
	now := time.Now()

	meta := sig.Metadata
	if sig.TransactionID != "" {
		if meta == nil {
			meta = map[string]string{}
		}
		meta["gateway_transaction_id"] = sig.TransactionID
	}

	tr := transition{status: StatusCompleted, paidAt: &now, clearError: true}
	if sig.ProviderRef != "" && p.providerRef() == "" {
		tr.providerRef = sig.ProviderRef
	}
	if len(meta) > 0 {
		tr.metadata = mergeMetadata(p.Metadata, meta)
	}

	won, err := m.TransitionPayment(ctx, p.ID, StatusPending, tr)
	if err != nil {
		return err
	}
	if !won {
		// concurrent writer got here first
		return nil
	}

	res.completed = true
	res.payment = p

	if p.Type == TypePurchase && p.OrderID != nil {
		ord, err := m.OrderByID(ctx, *p.OrderID)
		if err != nil {
			return err
		}
		res.orderPub = ord.PublicID
		if err := m.MarkOrderProcessing(ctx, ord.ID, now); err != nil {
			return err
		}
		// The gateway captured a different amount than the invoice asked
		// for (crypto overpay/underpay). The payment confirms, fulfillment
		// pauses for a human.
		if meta["invoice_amount"] != "" && meta["paid_amount"] != "" &&
			meta["invoice_amount"] != meta["paid_amount"] {
			reason := "amount mismatch: invoiced " + meta["invoice_amount"] + ", paid " + meta["paid_amount"]
			if err := m.FlagOrderForReview(ctx, ord.ID, reason); err != nil {
				return err
			}
			a.logger.WarnContext(ctx, "order flagged for review",
				"order", ord.PublicID, "payment", p.PublicID, "reason", reason)
		}
	}

	// Ledger moves join the same transaction: a rollback anywhere in the
	// transition takes the balance moves with it, so a provider retry
	// replays cleanly with no double credit.
	if p.Type == TypePurchase && p.Provider == string(gateways.ProviderBalance) {
		if err := m.Ledger().DeductFromReservation(ctx, p.customerID(), p.Money(), res.orderPub); err != nil {
			return err
		}
	}
	if p.Type == TypeTopUp {
		if err := m.Ledger().TopUp(ctx, p.customerID(), p.Money(), p.PublicID); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) failLocked(ctx context.Context, m applyMutator, p Payment, sig Signal, res *applied) error {
	msg := sig.GatewayStatus
	if msg == "" {
		msg = "gateway reported failure"
	}

	won, err := m.TransitionPayment(ctx, p.ID, StatusPending, transition{
		status:       StatusFailed,
		errorMessage: msg,
	})
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	res.failed = true
	res.payment = p

	if p.Type == TypePurchase && p.OrderID != nil {
		ord, err := m.LockOrder(ctx, *p.OrderID)
		if err != nil {
			return err
		}
		res.orderPub = ord.PublicID

		to, err := m.RecordOrderFailure(ctx, ord, sig.GatewayStatus, "payment failed via "+p.Provider)
		if err != nil {
			return err
		}
		res.orderTo = to
	}

	// failed balance purchase frees the earmarked funds
	if p.Type == TypePurchase && p.Provider == string(gateways.ProviderBalance) {
		err := m.Ledger().ReleaseReservation(ctx, p.customerID(), p.Money(), res.orderPub)
		if err != nil && !errors.Is(err, balance.ErrNoReservation) {
			return err
		}
	}
	return nil
}

// publishApplied emits the domain events for the winning transition.
// Publishing is at-least-once and best-effort; the DB state already
// committed and is authoritative.
func (a *Applier) publishApplied(ctx context.Context, res applied, sig Signal) {
	p := res.payment

	if res.completed {
		if err := a.events.Publish(ctx, events.PaymentCompleted, events.PaymentEvent{
			PaymentID: p.PublicID,
			OrderID:   res.orderPub,
			Provider:  p.Provider,
			Type:      p.Type,
			Amount:    p.Amount.StringFixed(2),
			Currency:  p.Currency,
		}); err != nil {
			a.logger.WarnContext(ctx, "payment.completed publish failed", "payment", p.PublicID, "err", err)
		}
		return
	}

	if res.failed {
		if err := a.events.Publish(ctx, events.PaymentFailed, events.PaymentEvent{
			PaymentID: p.PublicID,
			OrderID:   res.orderPub,
			Provider:  p.Provider,
			Type:      p.Type,
			Amount:    p.Amount.StringFixed(2),
			Currency:  p.Currency,
			Reason:    sig.GatewayStatus,
		}); err != nil {
			a.logger.WarnContext(ctx, "payment.failed publish failed", "payment", p.PublicID, "err", err)
		}
		if res.orderTo == orders.StatusFailed {
			if err := a.events.Publish(ctx, events.OrderFailed, events.OrderEvent{
				OrderID:     res.orderPub,
				Status:      res.orderTo,
				FailureCode: sig.GatewayStatus,
				Reason:      "payment failed via " + p.Provider,
			}); err != nil {
				a.logger.WarnContext(ctx, "order.failed publish failed", "order", res.orderPub, "err", err)
			}
		}
	}
}

type gormApplyStore struct {
	db     *gorm.DB
	ledger *balance.Ledger
}

func (s *gormApplyStore) InTx(ctx context.Context, fn func(m applyMutator) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormApplyMutator{tx: tx, ledger: s.ledger.WithTx(tx)})
	})
}

type gormApplyMutator struct {
	tx     *gorm.DB
	ledger *balance.Ledger
}

func (m *gormApplyMutator) LockPayment(ctx context.Context, id string) (Payment, error) {
	var p Payment
	err := m.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

func (m *gormApplyMutator) TransitionPayment(ctx context.Context, id, from string, tr transition) (bool, error) {
	updates := map[string]any{"status": tr.status, "updated_at": time.Now()}
	if tr.paidAt != nil {
		updates["paid_at"] = tr.paidAt
	}
	if tr.errorMessage != "" {
		updates["error_message"] = truncate(tr.errorMessage, 250)
	}
	if tr.clearError {
		updates["error_message"] = nil
		updates["error_code"] = nil
	}
	if tr.providerRef != "" {
		updates["provider_ref"] = tr.providerRef
	}
	if tr.metadata != nil {
		updates["metadata"] = tr.metadata
	}

	q := m.tx.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return q.RowsAffected > 0, q.Error
}

func (m *gormApplyMutator) OrderByID(ctx context.Context, id string) (orders.Order, error) {
	var o orders.Order
	err := m.tx.WithContext(ctx).First(&o, "id = ?", id).Error
	return o, err
}

func (m *gormApplyMutator) MarkOrderProcessing(ctx context.Context, id string, paidAt time.Time) error {
	return orders.MarkProcessing(ctx, m.tx, id, paidAt)
}

func (m *gormApplyMutator) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return orders.LockForUpdate(ctx, m.tx, id)
}

func (m *gormApplyMutator) RecordOrderFailure(ctx context.Context, o orders.Order, code, reason string) (string, error) {
	return orders.RecordFailure(ctx, m.tx, o, code, reason)
}

func (m *gormApplyMutator) FlagOrderForReview(ctx context.Context, id, reason string) error {
	o, err := orders.LockForUpdate(ctx, m.tx, id)
	if err != nil {
		return err
	}
	return orders.FlagForReview(ctx, m.tx, o, reason)
}

func (m *gormApplyMutator) Ledger() *balance.Ledger { return m.ledger }

func mergeMetadata(existing datatypes.JSON, extra map[string]string) datatypes.JSON {
	out := map[string]any{}
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &out)
	}
	for k, v := range extra {
		out[k] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return existing
	}
	return datatypes.JSON(b)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
