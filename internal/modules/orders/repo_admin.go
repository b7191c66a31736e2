package orders

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultAdminPageSize = 30
	maxAdminPageSize     = 100
)

// AdminListParams filters the back-office order list. Zero values mean "any".
type AdminListParams struct {
	Q         string
	Status    Status
	Method    Method
	ProductID string
	Page      int
	PageSize  int
}

type AdminListResult struct {
	Items    []Order
	Total    int64
	Page     int
	PageSize int
}

func (p AdminListParams) normalize() (AdminListParams, error) {
	p.Q = strings.TrimSpace(p.Q)
	p.ProductID = strings.TrimSpace(p.ProductID)
	if p.Status != "" && !p.Status.Valid() {
		return p, fmt.Errorf("%w: unknown status filter %q", ErrInvalidOrder, p.Status)
	}
	if p.Method != "" && !p.Method.Valid() {
		return p, fmt.Errorf("%w: unknown method filter %q", ErrInvalidOrder, p.Method)
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > maxAdminPageSize {
		p.PageSize = defaultAdminPageSize
	}
	return p, nil
}

// AdminList pages orders newest first. Q matches the order id, the buyer
// email or the buyer CPF.
func (r *Repo) AdminList(ctx context.Context, in AdminListParams) (AdminListResult, error) {
	p, err := in.normalize()
	if err != nil {
		return AdminListResult{}, err
	}

	base := r.db.WithContext(ctx).Model(&Order{})
	if p.Status != "" {
		base = base.Where("status = ?", p.Status)
	}
	if p.Method != "" {
		base = base.Where("forma_pagamento = ?", p.Method)
	}
	if p.ProductID != "" {
		base = base.Where("produto_id = ?", p.ProductID)
	}
	if p.Q != "" {
		like := "%" + p.Q + "%"
		base = base.Where("(id LIKE ? OR email LIKE ? OR cpf LIKE ?)", like, like, like)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return AdminListResult{}, err
	}

	var items []Order
	if total > 0 {
		if err := base.
			Order("criado_em DESC").
			Limit(p.PageSize).
			Offset((p.Page - 1) * p.PageSize).
			Find(&items).Error; err != nil {
			return AdminListResult{}, err
		}
	}

	return AdminListResult{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize}, nil
}

// AdminGetDetail returns the order with its status history, newest first.
func (r *Repo) AdminGetDetail(ctx context.Context, orderID string) (Order, []OrderEvent, error) {
	o, err := r.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	var ev []OrderEvent
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&ev, "order_id = ?", o.ID).Error; err != nil {
		return Order{}, nil, err
	}
	return o, ev, nil
}
