package payments

import (
	"errors"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
)

// AttemptState is the outcome of one payment attempt. It is distinct from the
// order status: a failed attempt can leave the order pending for a retry.
type AttemptState string

const (
	StatePixAwaiting AttemptState = "pix_awaiting_confirmation"
	StateCardPending AttemptState = "card_pending"
	StateUnconfirmed AttemptState = "unconfirmed"
	StateConfirmed   AttemptState = "confirmed"
	StateDeclined    AttemptState = "declined"
	StateExpired     AttemptState = "expired"
	StateCanceled    AttemptState = "canceled"
)

type Reason string

const (
	ReasonCustomerCreationFailed Reason = "customer_creation_failed"
	ReasonPaymentCreationFailed  Reason = "payment_creation_failed"
	ReasonQRCodeUnavailable      Reason = "qr_code_unavailable"
	ReasonProviderDeclined       Reason = "provider_declined"
	ReasonUnconfirmed            Reason = "payment_unconfirmed"
	ReasonTransport              Reason = "transport_failure"
	ReasonExpired                Reason = "pix_expired"
)

type Attempt struct {
	OrderID        string        `json:"order_id"`
	Method         orders.Method `json:"method"`
	State          AttemptState  `json:"state"`
	Reason         Reason        `json:"reason,omitempty"`
	Message        string        `json:"message,omitempty"`
	PaymentRef     string        `json:"payment_ref,omitempty"`
	ProviderStatus string        `json:"provider_status,omitempty"`
	Pix            *PixCode      `json:"pix,omitempty"`
	OrderStatus    orders.Status `json:"order_status"`
	// Changed is set when this call moved the order out of pending.
	Changed bool  `json:"-"`
	Cause   error `json:"-"`
}

func (a Attempt) failed(reason Reason, err error) Attempt {
	a.State = StateDeclined
	a.Reason = reason
	a.Cause = err
	a.Message = PublicReason(err)
	return a
}

// Settled reports whether the order behind the attempt reached a terminal
// status.
func (a Attempt) Settled() bool { return a.OrderStatus.Terminal() }

// PublicReason is the provider's refusal text when it is safe to show. Only
// data refusals carry text; credential, throttling and 5xx answers do not.
func PublicReason(err error) string {
	var rej *RejectedError
	if errors.As(err, &rej) && rej.Refused() {
		return rej.Reason
	}
	return ""
}

func stateFor(s orders.Status, m orders.Method) AttemptState {
	switch s {
	case orders.StatusPaid:
		return StateConfirmed
	case orders.StatusDeclined:
		return StateDeclined
	case orders.StatusExpired:
		return StateExpired
	case orders.StatusCanceled:
		return StateCanceled
	}
	if m == orders.MethodCard {
		return StateCardPending
	}
	return StatePixAwaiting
}
