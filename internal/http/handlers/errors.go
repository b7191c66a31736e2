package handlers

import (
	"errors"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/checkout"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/products"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/settings"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/apperr"
)

// AppError maps domain errors to their public form. Anything unknown becomes
// an internal error with the cause kept for the log.
func AppError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	var (
		ve  *checkout.ValidationError
		ic  *payments.IncompleteCardError
		rej *payments.RejectedError
	)
	switch {
	case errors.As(err, &ve):
		return apperr.InvalidErr("Verifique os dados informados.", ve.Fields).WithCause(err)
	case errors.As(err, &ic):
		fields := make(map[string]string, len(ic.Fields))
		for _, f := range ic.Fields {
			fields[f] = "Campo obrigatório."
		}
		return apperr.InvalidErr("Preencha todos os dados do cartão.", fields).WithCause(err)

	case errors.Is(err, settings.ErrIntegrationDisabled):
		return apperr.UnavailableErr("Pagamentos indisponíveis no momento.").WithCause(err)
	case errors.Is(err, settings.ErrSettingsUnavailable):
		return apperr.UnavailableErr("Pagamentos indisponíveis no momento.").WithCause(err).Retryable()
	case errors.Is(err, settings.ErrMethodDisabled):
		return apperr.InvalidErr("Forma de pagamento indisponível. Selecione outra.", nil).WithCause(err)

	case errors.Is(err, payments.ErrDuplicateSubmission):
		return apperr.ConflictErr("Seu pagamento já está sendo processado.").WithCause(err)
	case errors.Is(err, checkout.ErrInvalidStep):
		return apperr.ConflictErr("Ação não permitida nesta etapa.").WithCause(err)
	case errors.Is(err, checkout.ErrAlreadyPaid):
		return apperr.ConflictErr("Este pedido já foi pago.").WithCause(err)
	case errors.Is(err, payments.ErrOrderNotPending), errors.Is(err, orders.ErrInvalidTransition):
		return apperr.ConflictErr("O pedido não está mais pendente.").WithCause(err)
	case errors.Is(err, payments.ErrNoActiveReference), errors.Is(err, payments.ErrWrongMethod):
		return apperr.ConflictErr("Nenhum pagamento PIX ativo para este pedido.").WithCause(err)

	case errors.Is(err, checkout.ErrSessionNotFound):
		return apperr.NotFoundErr("Sessão de checkout não encontrada.").WithCause(err)
	case errors.Is(err, products.ErrNotFound):
		return apperr.NotFoundErr("Produto não encontrado.").WithCause(err)
	case errors.Is(err, orders.ErrNotFound):
		return apperr.NotFoundErr("Pedido não encontrado.").WithCause(err)
	case errors.Is(err, orders.ErrInvalidOrder), errors.Is(err, orders.ErrNotActionable):
		return apperr.InvalidErr("Dados do pedido inválidos.", nil).WithCause(err)

	case errors.Is(err, payments.ErrTransport):
		return apperr.BadGatewayErr("Não foi possível contatar o provedor de pagamento.", err).Retryable()
	case errors.As(err, &rej):
		msg := payments.PublicReason(err)
		if msg == "" {
			msg = "O provedor de pagamento recusou a solicitação."
		}
		ae := apperr.BadGatewayErr(msg, err)
		if !rej.Refused() {
			ae.Retryable()
		}
		return ae
	}
	return apperr.Wrap(err)
}
