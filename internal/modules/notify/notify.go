// Package notify fans order status changes out to Kafka and, for paid
// orders, to the buyer's inbox. Delivery is asynchronous and best effort;
// the order row stays the source of truth.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/events"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/mailer"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/money"
)

type OrderStatusEvent struct {
	EventID     string        `json:"event_id"`
	OrderID     string        `json:"order_id"`
	ProductID   string        `json:"product_id"`
	From        orders.Status `json:"from"`
	To          orders.Status `json:"to"`
	Method      orders.Method `json:"method"`
	AmountCents int64         `json:"amount_cents"`
	Source      string        `json:"source"`
	PaymentRef  string        `json:"payment_ref,omitempty"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

type Notifier struct {
	pub    events.Publisher
	mail   mailer.Service
	logger *slog.Logger

	queue   chan payments.StatusChange
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

func New(pub events.Publisher, mail mailer.Service, logger *slog.Logger, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{pub: pub, mail: mail, logger: logger, queue: make(chan payments.StatusChange, buffer)}
	n.wg.Add(1)
	go n.run()
	return n
}

// OrderChanged never blocks the caller. When the buffer is full the change
// is dropped and logged.
func (n *Notifier) OrderChanged(ctx context.Context, c payments.StatusChange) {
	n.closeMu.RLock()
	defer n.closeMu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- c:
	default:
		n.logger.WarnContext(ctx, "notification dropped", "order_id", c.Order.ID, "to", c.Order.Status)
	}
}

// Close stops accepting changes and waits for queued ones to be delivered.
func (n *Notifier) Close(ctx context.Context) error {
	n.closeMu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for c := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		n.Deliver(ctx, c)
		cancel()
	}
}

// Deliver publishes the event and sends the paid confirmation synchronously.
func (n *Notifier) Deliver(ctx context.Context, c payments.StatusChange) {
	ev := OrderStatusEvent{
		EventID:     uuid.NewString(),
		OrderID:     c.Order.ID,
		ProductID:   c.Order.ProductID,
		From:        c.From,
		To:          c.Order.Status,
		Method:      c.Order.PaymentMethod,
		AmountCents: c.Order.AmountCents,
		Source:      c.Source,
		PaymentRef:  c.PaymentRef,
		OccurredAt:  time.Now().UTC(),
	}
	if err := n.pub.Publish(ctx, c.Order.ID, ev); err != nil && !errors.Is(err, events.ErrDisabled) {
		n.logger.ErrorContext(ctx, "order event publish failed", "order_id", c.Order.ID, "err", err)
	}

	if c.Order.Status != orders.StatusPaid {
		return
	}
	if err := n.mail.Send(ctx, paidEmail(c.Order)); err != nil {
		n.logger.ErrorContext(ctx, "paid confirmation email failed", "order_id", c.Order.ID, "err", err)
	}
}

func paidEmail(o orders.Order) mailer.Email {
	ref := o.ID
	if len(ref) > 8 {
		ref = ref[:8]
	}
	text := fmt.Sprintf("Olá %s,\n\nRecebemos o pagamento de %s referente ao pedido %s.\n\nObrigado pela compra!\n",
		o.Name, money.FormatBRL(o.AmountCents), ref)
	return mailer.Email{
		To:       []string{o.Email},
		Subject:  "Pagamento confirmado - pedido " + ref,
		TextBody: text,
		Headers:  map[string]string{"X-Order-ID": o.ID},
	}
}
