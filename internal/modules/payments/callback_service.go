package payments

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"gorm.io/gorm"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
)

// CallbackService handles the browser return leg. The redirect query is
// unauthenticated, so whatever it claims, the gateway is polled before any
// state moves.
type CallbackService struct {
	db      *gorm.DB
	router  *gateways.CallbackRouter
	applier *Applier
	logger  *slog.Logger

	successURL string
	failURL    string
}

func NewCallbackService(db *gorm.DB, router *gateways.CallbackRouter, applier *Applier, successURL, failURL string, logger *slog.Logger) *CallbackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackService{
		db:         db,
		router:     router,
		applier:    applier,
		successURL: successURL,
		failURL:    failURL,
		logger:     logger,
	}
}

type CallbackDecision struct {
	RedirectURL     string
	PaymentPublicID string
	Status          string
}

// Handle resolves the originating gateway, revalidates, applies the
// idempotent transition and decides where to send the browser. It never
// errors for routing misses: the customer gets the failure page and the
// details go to the log.
func (s *CallbackService) Handle(ctx context.Context, q url.Values) CallbackDecision {
	client, cb, ok := s.router.Route(q)
	if !ok {
		return CallbackDecision{RedirectURL: s.failURL}
	}

	var p Payment
	err := s.db.WithContext(ctx).First(&p, "public_id = ?", cb.PaymentPublicID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.ErrorContext(ctx, "callback payment lookup failed", "payment", cb.PaymentPublicID, "err", err)
		} else {
			s.logger.WarnContext(ctx, "callback for unknown payment", "payment", cb.PaymentPublicID)
		}
		return CallbackDecision{RedirectURL: s.failURL}
	}

	v := client.ValidatePayment(ctx, refFor(ctx, s.db, p))

	if err := s.applier.Apply(ctx, p.ID, Signal{
		Outcome:       v.Outcome,
		GatewayStatus: v.GatewayStatus,
		TransactionID: v.TransactionID,
		Metadata:      v.Metadata,
	}); err != nil {
		s.logger.ErrorContext(ctx, "callback apply failed", "payment", p.PublicID, "err", err)
		return CallbackDecision{RedirectURL: s.failURL, PaymentPublicID: p.PublicID}
	}

	// Re-read for the final status; a completed payment from an earlier
	// webhook still deserves the success page.
	if err := s.db.WithContext(ctx).First(&p, "id = ?", p.ID).Error; err != nil {
		return CallbackDecision{RedirectURL: s.failURL, PaymentPublicID: p.PublicID}
	}

	dec := CallbackDecision{PaymentPublicID: p.PublicID, Status: p.Status}
	switch p.Status {
	case StatusCompleted:
		dec.RedirectURL = withPayment(s.successURL, p.PublicID)
	case StatusPending:
		// gateway still processing: send the customer to the success page
		// in "processing" shape only if they claim success, else fail page
		if cb.ClaimedStatus == "success" || v.Outcome == gateways.OutcomePending {
			dec.RedirectURL = withPayment(s.successURL, p.PublicID)
		} else {
			dec.RedirectURL = withPayment(s.failURL, p.PublicID)
		}
	default:
		dec.RedirectURL = withPayment(s.failURL, p.PublicID)
	}
	return dec
}

func withPayment(base, paymentPublicID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("payment_id", paymentPublicID)
	u.RawQuery = q.Encode()
	return u.String()
}
