package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/apperr"
)

const CtxKeyAdmin = "admin_subject"

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireAdmin accepts an HS256 bearer token whose role claim is "admin".
// An empty secret closes the admin API entirely.
func RequireAdmin(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if len(key) == 0 {
			Fail(c, apperr.ForbiddenErr("API administrativa desabilitada."))
			return
		}

		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			Fail(c, apperr.UnauthorizedErr("Autenticação necessária."))
			return
		}

		var claims AdminClaims
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			Fail(c, apperr.UnauthorizedErr("Token inválido.").WithCause(err))
			return
		}
		if claims.Role != "admin" {
			Fail(c, apperr.ForbiddenErr("Acesso restrito a administradores."))
			return
		}

		c.Set(CtxKeyAdmin, claims.Subject)
		c.Next()
	}
}

// AdminSubject is the sub claim of the authenticated admin.
func AdminSubject(c *gin.Context) string {
	return c.GetString(CtxKeyAdmin)
}
