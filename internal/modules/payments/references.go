package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
)

// References persists payment references. At most one row per order is
// active; Attach swaps it atomically.
type References struct {
	db  *gorm.DB
	now func() time.Time
}

func NewReferences(db *gorm.DB) *References {
	return &References{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Attach stores p as the order's active reference and deactivates the
// previous one in the same transaction.
func (r *References) Attach(ctx context.Context, p Payment) (Payment, error) {
	now := r.now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Payment{}).
			Where("order_id = ? AND active = ?", p.OrderID, true).
			Updates(map[string]any{"active": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Create(&p).Error
	})
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (r *References) Active(ctx context.Context, orderID string) (Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND active = ?", orderID, true).
		Order("created_at DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Payment{}, ErrNoActiveReference
	}
	return p, err
}

func (r *References) FindByProviderRef(ctx context.Context, provider, ref string) (Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).First(&p, "provider = ? AND provider_ref = ?", provider, ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Payment{}, ErrReferenceNotFound
	}
	return p, err
}

// History lists every reference of an order, newest first.
func (r *References) History(ctx context.Context, orderID string) ([]Payment, error) {
	var out []Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *References) SetProviderStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{"provider_status": status, "updated_at": r.now()}).Error
}

func (r *References) SetPixExpiry(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{"pix_expires_at": &at, "updated_at": r.now()}).Error
}

// PendingPix lists active PIX references whose order is still pending,
// oldest first.
func (r *References) PendingPix(ctx context.Context, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Payment
	err := r.db.WithContext(ctx).
		Table("payments").
		Select("payments.*").
		Joins("JOIN pedidos ON pedidos.id = payments.order_id").
		Where("payments.active = ? AND payments.billing_type = ? AND pedidos.status = ?", true, BillingPix, orders.StatusPending).
		Order("payments.created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
