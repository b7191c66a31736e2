package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/database"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/document"
)

const (
	actorSystem  = "system"
	maxTxRetries = 3
)

type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB returns the underlying database connection for direct queries.
func (r *Repo) DB() *gorm.DB { return r.db }

type CreatePendingInput struct {
	ProductID   string
	AmountCents int64
	Method      Method
	Buyer       Buyer
}

// CreatePending inserts a new pending order in one statement; the returned
// Order is always the fully populated row.
func (r *Repo) CreatePending(ctx context.Context, in CreatePendingInput) (Order, error) {
	name := strings.TrimSpace(in.Buyer.Name)
	email := strings.ToLower(strings.TrimSpace(in.Buyer.Email))
	cpf := document.OnlyDigits(in.Buyer.CPF)

	switch {
	case strings.TrimSpace(in.ProductID) == "":
		return Order{}, fmt.Errorf("%w: product is required", ErrInvalidOrder)
	case in.AmountCents <= 0:
		return Order{}, fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	case !in.Method.Valid():
		return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrInvalidOrder, in.Method)
	case name == "" || email == "" || cpf == "":
		return Order{}, fmt.Errorf("%w: buyer name, email and cpf are required", ErrInvalidOrder)
	}

	var phone *string
	if p := strings.TrimSpace(in.Buyer.Phone); p != "" {
		phone = &p
	}

	o := Order{
		ID:            uuid.NewString(),
		ProductID:     in.ProductID,
		Name:          name,
		Email:         email,
		Phone:         phone,
		CPF:           cpf,
		AmountCents:   in.AmountCents,
		PaymentMethod: in.Method,
		Status:        StatusPending,
		CreatedAt:     r.now(),
	}
	if err := r.db.WithContext(ctx).Create(&o).Error; err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) FindByID(ctx context.Context, id string) (Order, error) {
	var o Order
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// UpdateStatus moves a pending order to a terminal status. Any other move,
// including re-applying the current terminal status, is ErrInvalidTransition.
func (r *Repo) UpdateStatus(ctx context.Context, id string, to Status) (Order, error) {
	return r.transition(ctx, id, to, actorSystem, "reconcile", "")
}

// SetPaymentMethod switches the method of a pending order (buyer retried
// with another method). Amount and buyer data stay untouched.
func (r *Repo) SetPaymentMethod(ctx context.Context, id string, m Method) error {
	if !m.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidOrder, m)
	}
	o, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if o.Status != StatusPending {
		return ErrNotActionable
	}
	if o.PaymentMethod == m {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("forma_pagamento", m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotActionable
	}
	return nil
}

// transition retries the whole transaction on deadlocks and lock wait
// timeouts; everything else is returned as is.
func (r *Repo) transition(ctx context.Context, id string, to Status, actor, action, note string) (o Order, err error) {
	for attempt := 1; ; attempt++ {
		o, err = r.transitionOnce(ctx, id, to, actor, action, note)
		if err == nil || attempt == maxTxRetries || !database.IsRetryable(err) {
			return o, err
		}
		select {
		case <-ctx.Done():
			return Order{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
}

func (r *Repo) transitionOnce(ctx context.Context, id string, to Status, actor, action, note string) (Order, error) {
	var out Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&o, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		from := o.Status
		if err := CheckTransition(from, to); err != nil {
			return err
		}

		res := tx.Model(&Order{}).
			Where("id = ? AND status = ?", o.ID, from). // optimistic guard
			Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, o.ID)
		}

		var notePtr *string
		if n := strings.TrimSpace(note); n != "" {
			notePtr = &n
		}
		ev := OrderEvent{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			Actor:      actor,
			Action:     action,
			FromStatus: from,
			ToStatus:   to,
			Note:       notePtr,
			CreatedAt:  r.now(),
		}
		if err := tx.Create(&ev).Error; err != nil {
			return err
		}

		o.Status = to
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return out, nil
}
