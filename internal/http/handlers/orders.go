package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/http/middleware"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
)

type OrderRefresher interface {
	Refresh(ctx context.Context, orderID string) (payments.Attempt, error)
}

type OrdersHandler struct {
	repo *orders.Repo
	rec  OrderRefresher
}

func NewOrdersHandler(repo *orders.Repo, rec OrderRefresher) *OrdersHandler {
	return &OrdersHandler{repo: repo, rec: rec}
}

type orderStatus struct {
	ID          string        `json:"id"`
	Status      orders.Status `json:"status"`
	Method      orders.Method `json:"payment_method"`
	AmountCents int64         `json:"amount_cents"`
	Terminal    bool          `json:"terminal"`
}

// GET /api/orders/:id/status. With ?refresh=1 a pending order is reconciled
// against the provider first.
func (h *OrdersHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	o, err := h.repo.FindByID(ctx, id)
	if err != nil {
		middleware.Fail(c, AppError(err))
		return
	}
	if c.Query("refresh") == "1" && o.Status == orders.StatusPending {
		if _, err := h.rec.Refresh(ctx, id); err != nil {
			middleware.Fail(c, AppError(err))
			return
		}
		if o, err = h.repo.FindByID(ctx, id); err != nil {
			middleware.Fail(c, AppError(err))
			return
		}
	}

	c.JSON(http.StatusOK, orderStatus{
		ID:          o.ID,
		Status:      o.Status,
		Method:      o.PaymentMethod,
		AmountCents: o.AmountCents,
		Terminal:    o.Status.Terminal(),
	})
}
