package checkout

import (
	"strings"
	"sync"
	"time"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/products"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/document"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/money"
)

type Step string

const (
	StepPersonalInfo  Step = "personal_info"
	StepPaymentMethod Step = "payment_method"
	StepSubmitting    Step = "submitting"
	StepPix           Step = "pix"
	StepCardResult    Step = "card_result"
)

// Outcome is what the buyer should be told about the latest attempt.
type Outcome string

const (
	OutcomeNone                Outcome = ""
	OutcomeAwaitingPayment     Outcome = "awaiting_payment"
	OutcomeConfirmed           Outcome = "confirmed"
	OutcomeFailed              Outcome = "failed"
	OutcomePendingConfirmation Outcome = "pending_confirmation"
)

type PersonalInfo struct {
	Name  string `json:"name" validate:"required,min=2,max=255"`
	Email string `json:"email" validate:"required,email,max=255"`
	CPF   string `json:"cpf" validate:"required,taxid"`
	Phone string `json:"phone" validate:"omitempty,min=8,max=32"`
}

func (p PersonalInfo) normalize() PersonalInfo {
	p.Name = strings.Join(strings.Fields(p.Name), " ")
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.CPF = document.OnlyDigits(p.CPF)
	p.Phone = document.OnlyDigits(p.Phone)
	return p
}

func (p PersonalInfo) buyer() orders.Buyer {
	return orders.Buyer{Name: p.Name, Email: p.Email, CPF: p.CPF, Phone: p.Phone}
}

type session struct {
	mu sync.Mutex

	id        string
	product   products.Product
	methods   []orders.Method
	step      Step
	buyer     *PersonalInfo
	order     string
	status    orders.Status
	attempt   *payments.Attempt
	watch     *payments.PollHandle
	touchedAt time.Time
}

// detachWatch hands the running watch to the caller, who must Stop it after
// releasing s.mu: the watch callback takes the same lock.
func (s *session) detachWatch() *payments.PollHandle {
	h := s.watch
	s.watch = nil
	return h
}

// polling reports a watch that is still running; one that ended on its own
// (settled, timed out, parent canceled) no longer counts.
func (s *session) polling() bool {
	if s.watch == nil {
		return false
	}
	select {
	case <-s.watch.Done():
		return false
	default:
		return true
	}
}

func (s *session) record(a payments.Attempt) {
	s.attempt = &a
	if a.OrderStatus != "" {
		s.status = a.OrderStatus
	}
}

type ProductView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Price      string `json:"price"`
}

// View is a point-in-time copy of a session, safe to serialize.
type View struct {
	ID          string            `json:"id"`
	Step        Step              `json:"step"`
	Product     ProductView       `json:"product"`
	Methods     []orders.Method   `json:"methods"`
	Buyer       *PersonalInfo     `json:"buyer,omitempty"`
	OrderID     string            `json:"order_id,omitempty"`
	OrderStatus orders.Status     `json:"order_status,omitempty"`
	Attempt     *payments.Attempt `json:"attempt,omitempty"`
	Outcome     Outcome           `json:"outcome,omitempty"`
	Polling     bool              `json:"polling"`
}

func (s *session) view() View {
	v := View{
		ID:   s.id,
		Step: s.step,
		Product: ProductView{
			ID:         s.product.ID,
			Name:       s.product.Name,
			PriceCents: s.product.PriceCents,
			Price:      money.FormatBRL(s.product.PriceCents),
		},
		Methods:     append([]orders.Method(nil), s.methods...),
		OrderID:     s.order,
		OrderStatus: s.status,
		Polling:     s.polling(),
	}
	if s.buyer != nil {
		b := *s.buyer
		v.Buyer = &b
	}
	if s.attempt != nil {
		a := *s.attempt
		if a.Pix != nil {
			code := *a.Pix
			a.Pix = &code
		}
		v.Attempt = &a
		v.Outcome = outcomeOf(a)
	}
	return v
}

func outcomeOf(a payments.Attempt) Outcome {
	switch a.OrderStatus {
	case orders.StatusPaid:
		return OutcomeConfirmed
	case orders.StatusDeclined, orders.StatusExpired, orders.StatusCanceled:
		return OutcomeFailed
	}
	switch a.State {
	case payments.StateDeclined:
		return OutcomeFailed
	case payments.StateUnconfirmed, payments.StateCardPending:
		return OutcomePendingConfirmation
	case payments.StatePixAwaiting:
		return OutcomeAwaitingPayment
	}
	return OutcomeNone
}
