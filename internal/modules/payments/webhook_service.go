package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/storage"
)

// ProviderEvent is the webhook dedupe table: unique(provider, event_id)
// makes redelivery a no-op at the DB level.
type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Provider    string         `gorm:"type:varchar(32);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`
	ArchiveKey  *string        `gorm:"type:varchar(255)"`

	ReceivedAt   time.Time  `gorm:"type:datetime(3);not null"`
	ProcessedAt  *time.Time `gorm:"type:datetime(3)"`
	ProcessError *string    `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

type WebhookService struct {
	db      *gorm.DB
	factory *gateways.Factory
	applier *Applier
	archive storage.Storage
	logger  *slog.Logger
}

func NewWebhookService(db *gorm.DB, factory *gateways.Factory, applier *Applier, archive storage.Storage, logger *slog.Logger) *WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{db: db, factory: factory, applier: applier, archive: archive, logger: logger}
}

// Handle ingests one provider notification. The returned error means the
// caller should answer 500 so the provider retries; ErrUnknownEvent means
// the signature did not verify and the caller acknowledges generically
// without any state change.
func (s *WebhookService) Handle(ctx context.Context, providerName string, body []byte, header http.Header) error {
	provider, err := gateways.ParseProvider(providerName)
	if err != nil {
		return err
	}
	client, err := s.factory.Client(provider)
	if err != nil {
		return err
	}

	wr := client.HandleWebhook(body, header)

	switch wr.Event {
	case gateways.EventUnknown:
		s.logger.WarnContext(ctx, "webhook rejected: signature or shape not recognized",
			"provider", providerName)
		return ErrUnknownEvent
	case gateways.EventIgnored:
		s.logger.InfoContext(ctx, "webhook event ignored", "provider", providerName, "event_id", wr.EventID)
		return nil
	}

	archiveKey := s.archiveBody(ctx, providerName, wr.EventID, body)

	// Resolve the payment before opening the apply transaction: a
	// non-authoritative signal needs a gateway round-trip first.
	p, err := s.resolvePayment(ctx, providerName, wr)
	if err != nil {
		s.logger.ErrorContext(ctx, "webhook references unknown payment",
			"provider", providerName, "event_id", wr.EventID, "payment", wr.PaymentPublicID)
		return err
	}

	sig := Signal{
		Outcome:       wr.Outcome,
		GatewayStatus: wr.GatewayStatus,
		ProviderRef:   wr.ProviderRef,
		Metadata:      wr.Data,
	}
	if !wr.Authoritative {
		v := client.ValidatePayment(ctx, refFor(ctx, s.db, p))
		sig = Signal{
			Outcome:       v.Outcome,
			GatewayStatus: v.GatewayStatus,
			TransactionID: v.TransactionID,
			ProviderRef:   wr.ProviderRef,
			Metadata:      v.Metadata,
		}
	} else if wr.Outcome == gateways.OutcomeConfirmed {
		if tx, ok := wr.Data["gateway_transaction_id"]; ok {
			sig.TransactionID = tx
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		pe := ProviderEvent{
			ID:          uuid.NewString(),
			Provider:    providerName,
			EventID:     wr.EventID,
			EventType:   string(wr.Outcome),
			PayloadJSON: payloadJSON(body),
			ReceivedAt:  now,
		}
		if archiveKey != "" {
			pe.ArchiveKey = &archiveKey
		}

		if err := tx.WithContext(ctx).Create(&pe).Error; err != nil {
			if isDup(err) {
				s.logger.InfoContext(ctx, "webhook event deduplicated",
					"provider", providerName, "event_id", wr.EventID)
				return nil
			}
			return err
		}

		// Applier opens its own transaction against the root handle; the
		// dedupe row above is the only thing this tx owns.
		if err := s.applier.Apply(ctx, p.ID, sig); err != nil {
			msg := truncate(err.Error(), 250)
			_ = tx.WithContext(ctx).Model(&ProviderEvent{}).
				Where("id = ?", pe.ID).
				Updates(map[string]any{"process_error": msg}).Error
			s.logger.ErrorContext(ctx, "webhook apply failed",
				"provider", providerName, "event_id", wr.EventID, "err", err)
			return err
		}

		processed := time.Now()
		return tx.WithContext(ctx).Model(&ProviderEvent{}).
			Where("id = ?", pe.ID).
			Updates(map[string]any{"processed_at": &processed}).Error
	})
}

func (s *WebhookService) resolvePayment(ctx context.Context, providerName string, wr gateways.WebhookResult) (Payment, error) {
	var p Payment
	if wr.PaymentPublicID != "" {
		err := s.db.WithContext(ctx).First(&p, "public_id = ?", wr.PaymentPublicID).Error
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Payment{}, err
		}
	}
	if wr.ProviderRef != "" {
		err := s.db.WithContext(ctx).
			First(&p, "provider = ? AND provider_ref = ?", providerName, wr.ProviderRef).Error
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Payment{}, err
		}
	}
	return Payment{}, ErrNotFound
}

// archiveBody stores the raw payload for audit and replay. Failure is
// logged and swallowed: losing an archive copy must not bounce the webhook.
func (s *WebhookService) archiveBody(ctx context.Context, providerName, eventID string, body []byte) string {
	if s.archive == nil || eventID == "" {
		return ""
	}
	res, err := s.archive.Put(ctx, bytes.NewReader(body), storage.PutInput{
		Key:         "webhooks/" + providerName + "/" + eventID + ".json",
		ContentType: "application/json",
	})
	if err != nil {
		s.logger.WarnContext(ctx, "webhook archive failed",
			"provider", providerName, "event_id", eventID, "err", err)
		return ""
	}
	return res.Key
}

// payloadJSON wraps form-encoded provider bodies so the json column stays
// valid either way.
func payloadJSON(body []byte) datatypes.JSON {
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(body)})
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(wrapped)
}

func isDup(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
