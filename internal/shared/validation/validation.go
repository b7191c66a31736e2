// Package validation wraps go-playground/validator with JSON field names,
// the taxid rule and pt-BR messages.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/document"
)

type FieldErrors map[string]string

// New returns a validator configured like the gin binding engine.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	configure(v)
	return v
}

var ginOnce sync.Once

// RegisterGin applies the same configuration to gin's binding validator.
func RegisterGin() {
	ginOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			configure(v)
		}
	})
}

func configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	_ = v.RegisterValidation("taxid", func(fl validator.FieldLevel) bool {
		return document.ValidTaxID(fl.Field().String())
	})
}

// FromError turns validator errors into field -> message. Nested fields use
// dotted JSON names without the root struct ("card.number").
func FromError(err error) FieldErrors {
	out := FieldErrors{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fieldKey(fe.Namespace())] = messageForTag(fe.Tag(), fe.Param())
		}
		return out
	}
	out["_"] = "Dados enviados são inválidos."
	return out
}

func fieldKey(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required", "required_if":
		return "Campo obrigatório."
	case "email":
		return "Informe um e-mail válido."
	case "taxid":
		return "Informe um CPF ou CNPJ válido."
	case "min":
		return "Deve ter pelo menos " + param + " caracteres."
	case "max":
		return "Deve ter no máximo " + param + " caracteres."
	case "oneof":
		return "Valor não permitido."
	default:
		return "Valor inválido."
	}
}
