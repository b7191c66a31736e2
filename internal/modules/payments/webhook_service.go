package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/database"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/metrics"
)

type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Provider    string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PaymentRef  string         `gorm:"type:varchar(128);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`

	ReceivedAt   time.Time  `gorm:"precision:3;not null"`
	ProcessedAt  *time.Time `gorm:"precision:3"`
	ProcessError *string    `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

type WebhookResult struct {
	Duplicate bool
	Ignored   bool
	Attempt   Attempt
}

// WebhookService records provider events once and applies their payment
// status through the reconciler.
type WebhookService struct {
	db         *gorm.DB
	reconciler *Reconciler
	provider   string
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewWebhookService(db *gorm.DB, rec *Reconciler, m *metrics.Metrics) *WebhookService {
	return &WebhookService{
		db:         db,
		reconciler: rec,
		provider:   rec.connector.Name(),
		metrics:    m,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *WebhookService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handle is safe to call again for the same event: processed events are
// acknowledged without effect, events whose apply failed are retried.
// A returned error means the provider should redeliver.
func (s *WebhookService) Handle(ctx context.Context, ev WebhookEvent, rawBody []byte) (WebhookResult, error) {
	if ev.EventID == "" || ev.PaymentRef == "" {
		s.metrics.Webhook("malformed")
		return WebhookResult{}, ErrWebhookMalformed
	}
	if !json.Valid(rawBody) {
		rawBody = []byte(`{}`)
	}

	pe := ProviderEvent{
		ID:          uuid.NewString(),
		Provider:    s.provider,
		EventID:     ev.EventID,
		EventType:   ev.Type,
		PaymentRef:  ev.PaymentRef,
		PayloadJSON: datatypes.JSON(rawBody),
		ReceivedAt:  s.now(),
	}

	// dedupe: unique(provider,event_id)
	if err := s.db.WithContext(ctx).Create(&pe).Error; err != nil {
		if !database.IsDuplicateKey(err) {
			s.logger.ErrorContext(ctx, "failed to persist provider event", "provider", s.provider, "event_id", ev.EventID, "err", err)
			return WebhookResult{}, err
		}
		var existing ProviderEvent
		if err := s.db.WithContext(ctx).
			First(&existing, "provider = ? AND event_id = ?", s.provider, ev.EventID).Error; err != nil {
			return WebhookResult{}, err
		}
		if existing.ProcessedAt != nil {
			s.logger.InfoContext(ctx, "webhook event deduplicated", "provider", s.provider, "event_id", ev.EventID, "type", ev.Type)
			s.metrics.Webhook("duplicate")
			return WebhookResult{Duplicate: true}, nil
		}
		pe = existing
	}

	a, applyErr := s.reconciler.ApplyProviderStatus(ctx, ev.PaymentRef, ev.Status)
	if errors.Is(applyErr, ErrReferenceNotFound) {
		// not one of ours; acknowledge so the provider queue keeps moving
		s.logger.WarnContext(ctx, "webhook for unknown payment", "event_id", ev.EventID, "payment_ref", ev.PaymentRef)
		s.metrics.Webhook("ignored")
		return WebhookResult{Ignored: true}, s.markProcessed(ctx, pe.ID, "unknown payment reference")
	}
	if applyErr != nil {
		msg := truncate(applyErr.Error(), 250)
		if err := s.db.WithContext(ctx).Model(&ProviderEvent{}).
			Where("id = ?", pe.ID).
			Update("process_error", msg).Error; err != nil {
			return WebhookResult{}, err
		}
		s.logger.ErrorContext(ctx, "webhook event apply failed", "provider", s.provider, "event_id", ev.EventID, "type", ev.Type, "error", msg)
		s.metrics.Webhook("error")
		return WebhookResult{}, applyErr
	}

	if err := s.markProcessed(ctx, pe.ID, ""); err != nil {
		return WebhookResult{}, err
	}
	s.metrics.Webhook("processed")
	s.logger.InfoContext(ctx, "webhook event processed", "provider", s.provider, "event_id", ev.EventID,
		"type", ev.Type, "order_id", a.OrderID, "order_status", a.OrderStatus, "changed", a.Changed)
	return WebhookResult{Attempt: a}, nil
}

func (s *WebhookService) markProcessed(ctx context.Context, id, note string) error {
	processed := s.now()
	updates := map[string]any{"processed_at": &processed, "process_error": nil}
	if note != "" {
		updates["process_error"] = note
	}
	return s.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
