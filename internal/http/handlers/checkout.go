package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/http/middleware"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/checkout"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/apperr"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/validation"
)

type CheckoutHandler struct {
	mgr *checkout.Manager
}

func NewCheckoutHandler(mgr *checkout.Manager) *CheckoutHandler {
	return &CheckoutHandler{mgr: mgr}
}

type startRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

type paymentRequest struct {
	Method  orders.Method    `json:"method" binding:"required,oneof=pix card"`
	Card    payments.Card    `json:"card"`
	Billing payments.Billing `json:"billing"`
}

// POST /api/checkout/sessions
func (h *CheckoutHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, BindError(err))
		return
	}
	v, err := h.mgr.Start(c.Request.Context(), req.ProductID)
	if err != nil {
		middleware.Fail(c, AppError(err))
		return
	}
	c.JSON(http.StatusCreated, v)
}

// GET /api/checkout/sessions/:id
func (h *CheckoutHandler) Get(c *gin.Context) {
	v, err := h.mgr.Get(c.Param("id"))
	if err != nil {
		middleware.Fail(c, AppError(err))
		return
	}
	c.JSON(http.StatusOK, v)
}

// POST /api/checkout/sessions/:id/personal-info
func (h *CheckoutHandler) PersonalInfo(c *gin.Context) {
	var req checkout.PersonalInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, BindError(err))
		return
	}
	h.respond(c, func() (checkout.View, error) {
		return h.mgr.SubmitPersonalInfo(c.Request.Context(), c.Param("id"), req)
	})
}

// POST /api/checkout/sessions/:id/back
func (h *CheckoutHandler) Back(c *gin.Context) {
	h.respond(c, func() (checkout.View, error) {
		return h.mgr.Back(c.Request.Context(), c.Param("id"))
	})
}

// POST /api/checkout/sessions/:id/payment
func (h *CheckoutHandler) Pay(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, BindError(err))
		return
	}
	req.Billing.RemoteIP = c.ClientIP()
	h.respond(c, func() (checkout.View, error) {
		return h.mgr.Submit(c.Request.Context(), c.Param("id"), checkout.PaymentInput{
			Method:  req.Method,
			Card:    req.Card,
			Billing: req.Billing,
		})
	})
}

// POST /api/checkout/sessions/:id/pix/refresh
func (h *CheckoutHandler) RefreshPix(c *gin.Context) {
	h.respond(c, func() (checkout.View, error) {
		return h.mgr.RefreshPix(c.Request.Context(), c.Param("id"))
	})
}

// DELETE /api/checkout/sessions/:id
func (h *CheckoutHandler) Close(c *gin.Context) {
	if err := h.mgr.Close(c.Param("id")); err != nil {
		middleware.Fail(c, AppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CheckoutHandler) respond(c *gin.Context, fn func() (checkout.View, error)) {
	v, err := fn()
	if err != nil {
		middleware.Fail(c, AppError(err))
		return
	}
	c.JSON(http.StatusOK, v)
}

func BindError(err error) error {
	return apperr.InvalidErr("Verifique os dados informados.", validation.FromError(err)).WithCause(err)
}
