package admin

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/http/handlers"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/http/middleware"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/money"
)

const pageSize = 30

type OrdersHandler struct {
	repo     *orders.Repo
	svc      *orders.AdminService
	refs     *payments.References
	notifier payments.Notifier
}

func NewOrdersHandler(repo *orders.Repo, svc *orders.AdminService, refs *payments.References, n payments.Notifier) *OrdersHandler {
	return &OrdersHandler{repo: repo, svc: svc, refs: refs, notifier: n}
}

type orderItem struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	CPF         string        `json:"cpf"`
	Status      orders.Status `json:"status"`
	Method      orders.Method `json:"payment_method"`
	AmountCents int64         `json:"amount_cents"`
	Amount      string        `json:"amount"`
	CreatedAt   time.Time     `json:"created_at"`
}

type eventItem struct {
	Actor  string        `json:"actor"`
	Action string        `json:"action"`
	From   orders.Status `json:"from"`
	To     orders.Status `json:"to"`
	Note   string        `json:"note,omitempty"`
	At     time.Time     `json:"at"`
}

type paymentItem struct {
	ProviderRef    string               `json:"provider_ref"`
	BillingType    payments.BillingType `json:"billing_type"`
	ProviderStatus string               `json:"provider_status"`
	Active         bool                 `json:"active"`
	PixExpiresAt   *time.Time           `json:"pix_expires_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// GET /api/admin/orders?q=&status=&method=&product_id=&page=
func (h *OrdersHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))

	res, err := h.repo.AdminList(c.Request.Context(), orders.AdminListParams{
		Q:         c.Query("q"),
		Status:    orders.Status(strings.TrimSpace(c.Query("status"))),
		Method:    orders.Method(strings.TrimSpace(c.Query("method"))),
		ProductID: c.Query("product_id"),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		middleware.Fail(c, handlers.AppError(err))
		return
	}

	items := make([]orderItem, 0, len(res.Items))
	for _, o := range res.Items {
		items = append(items, toItem(o))
	}
	size := int64(res.PageSize)
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"page":        res.Page,
		"total":       res.Total,
		"total_pages": (res.Total + size - 1) / size,
	})
}

// GET /api/admin/orders/:id
func (h *OrdersHandler) Detail(c *gin.Context) {
	ctx := c.Request.Context()
	o, ev, err := h.repo.AdminGetDetail(ctx, c.Param("id"))
	if err != nil {
		middleware.Fail(c, handlers.AppError(err))
		return
	}
	refs, err := h.refs.History(ctx, o.ID)
	if err != nil {
		middleware.Fail(c, handlers.AppError(err))
		return
	}

	events := make([]eventItem, 0, len(ev))
	for _, e := range ev {
		item := eventItem{Actor: e.Actor, Action: e.Action, From: e.FromStatus, To: e.ToStatus, At: e.CreatedAt}
		if e.Note != nil {
			item.Note = *e.Note
		}
		events = append(events, item)
	}
	pays := make([]paymentItem, 0, len(refs))
	for _, p := range refs {
		pays = append(pays, paymentItem{
			ProviderRef:    p.ProviderRef,
			BillingType:    p.BillingType,
			ProviderStatus: p.ProviderStatus,
			Active:         p.Active,
			PixExpiresAt:   p.PixExpiresAt,
			CreatedAt:      p.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"order": toItem(o), "events": events, "payments": pays})
}

type cancelRequest struct {
	Note string `json:"note" binding:"max=255"`
}

// POST /api/admin/orders/:id/cancel
func (h *OrdersHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.Fail(c, handlers.BindError(err))
			return
		}
	}

	actor := "admin:" + middleware.AdminSubject(c)
	o, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), actor, req.Note)
	if err != nil {
		middleware.Fail(c, handlers.AppError(err))
		return
	}
	if h.notifier != nil {
		h.notifier.OrderChanged(context.WithoutCancel(c.Request.Context()), payments.StatusChange{
			Order:  o,
			From:   orders.StatusPending,
			Source: "admin",
		})
	}
	c.JSON(http.StatusOK, gin.H{"order": toItem(o)})
}

func toItem(o orders.Order) orderItem {
	return orderItem{
		ID:          o.ID,
		Name:        o.Name,
		Email:       o.Email,
		CPF:         o.CPF,
		Status:      o.Status,
		Method:      o.PaymentMethod,
		AmountCents: o.AmountCents,
		Amount:      money.FormatBRL(o.AmountCents),
		CreatedAt:   o.CreatedAt,
	}
}
