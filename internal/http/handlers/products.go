package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/http/middleware"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/products"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/money"
)

type ProductsHandler struct {
	repo products.Repository
}

func NewProductsHandler(repo products.Repository) *ProductsHandler {
	return &ProductsHandler{repo: repo}
}

type productItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Price       string `json:"price"`
}

// List returns active products.
func (h *ProductsHandler) List(c *gin.Context) {
	limit := parseInt(c.Query("limit"), 24)
	offset := parseInt(c.Query("offset"), 0)

	items, err := h.repo.ListActive(c.Request.Context(), limit, offset)
	if err != nil {
		middleware.Fail(c, AppError(err))
		return
	}

	out := make([]productItem, 0, len(items))
	for _, p := range items {
		out = append(out, productItem{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			PriceCents:  p.PriceCents,
			Price:       money.FormatBRL(p.PriceCents),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
