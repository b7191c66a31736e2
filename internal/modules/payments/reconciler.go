package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/metrics"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/settings"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/document"
)

type SettingsLoader interface {
	Load(ctx context.Context) (settings.Settings, error)
}

// StatusChange is emitted once per real order transition.
type StatusChange struct {
	Order      orders.Order
	From       orders.Status
	Source     string
	PaymentRef string
}

type Notifier interface {
	OrderChanged(ctx context.Context, c StatusChange)
}

type NotifierFunc func(ctx context.Context, c StatusChange)

func (f NotifierFunc) OrderChanged(ctx context.Context, c StatusChange) { f(ctx, c) }

type nopNotifier struct{}

func (nopNotifier) OrderChanged(context.Context, StatusChange) {}

// Transition sources, used in metrics and logs.
const (
	SourceCard    = "card"
	SourcePoll    = "poll"
	SourceWebhook = "webhook"
	SourceExpiry  = "expiry"
)

type Deps struct {
	Orders    *orders.Repo
	Refs      *References
	Settings  SettingsLoader
	Connector Connector
	Guard     Guard
	Notifier  Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Now       func() time.Time

	PollInterval time.Duration
	PollMax      time.Duration
}

// Reconciler drives payment attempts against the provider and is the only
// writer of provider-driven order status changes.
type Reconciler struct {
	orders    *orders.Repo
	refs      *References
	settings  SettingsLoader
	connector Connector
	guard     Guard
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	pollInterval time.Duration
	pollMax      time.Duration
}

func NewReconciler(d Deps) *Reconciler {
	r := &Reconciler{
		orders:       d.Orders,
		refs:         d.Refs,
		settings:     d.Settings,
		connector:    d.Connector,
		guard:        d.Guard,
		notifier:     d.Notifier,
		metrics:      d.Metrics,
		logger:       d.Logger,
		tracer:       d.Tracer,
		now:          d.Now,
		pollInterval: d.PollInterval,
		pollMax:      d.PollMax,
	}
	if r.guard == nil {
		r.guard = NewMemoryGuard()
	}
	if r.notifier == nil {
		r.notifier = nopNotifier{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments")
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.pollInterval <= 0 {
		r.pollInterval = 5 * time.Second
	}
	if r.pollMax <= 0 {
		r.pollMax = 30 * time.Minute
	}
	return r
}

type CreateOrderInput struct {
	ProductID   string
	AmountCents int64
	Method      orders.Method
	Buyer       orders.Buyer
}

// CreateOrder persists the pending order that correlates every later
// gateway call. No gateway call happens here.
func (r *Reconciler) CreateOrder(ctx context.Context, in CreateOrderInput) (orders.Order, error) {
	s, err := r.settings.Load(ctx)
	if err != nil {
		return orders.Order{}, err
	}
	if err := s.Require(in.Method); err != nil {
		return orders.Order{}, err
	}
	o, err := r.orders.CreatePending(ctx, orders.CreatePendingInput{
		ProductID:   in.ProductID,
		AmountCents: in.AmountCents,
		Method:      in.Method,
		Buyer:       in.Buyer,
	})
	if err != nil {
		return orders.Order{}, err
	}
	r.logger.InfoContext(ctx, "order created", "order_id", o.ID, "method", o.PaymentMethod, "amount_cents", o.AmountCents)
	return o, nil
}

// PayPix runs customer -> PIX payment -> QR code for a pending order. Gateway
// failures are reported in the Attempt and leave the order pending; the
// error return is for preconditions and storage.
func (r *Reconciler) PayPix(ctx context.Context, orderID string) (a Attempt, err error) {
	ctx, span := r.tracer.Start(ctx, "payments.PayPix", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { endSpan(span, a, err) }()

	o, s, release, err := r.begin(ctx, orderID, orders.MethodPix)
	if err != nil {
		return Attempt{}, err
	}
	defer release()

	gw := r.connector.Connect(s.Credential)
	a = Attempt{OrderID: o.ID, Method: orders.MethodPix, OrderStatus: o.Status}

	span.AddEvent("customer_creating")
	customerID, err := r.createCustomer(ctx, gw, o)
	if err != nil {
		if cerr := credentialFailure(err); cerr != nil {
			return Attempt{}, cerr
		}
		return a.failed(ReasonCustomerCreationFailed, err), nil
	}

	span.AddEvent("payment_creating")
	var res PaymentResult
	err = r.observe(ctx, "create_pix_payment", func() (err error) {
		res, err = gw.CreatePixPayment(ctx, PixPaymentInput{
			CustomerID:  customerID,
			AmountCents: o.AmountCents,
			Description: describe(o),
			ExternalRef: o.ID,
		})
		return err
	})
	if err != nil {
		if cerr := credentialFailure(err); cerr != nil {
			return Attempt{}, cerr
		}
		return a.failed(ReasonPaymentCreationFailed, err), nil
	}

	ref, err := r.refs.Attach(ctx, Payment{
		OrderID:        o.ID,
		Provider:       r.connector.Name(),
		ProviderRef:    res.PaymentID,
		CustomerRef:    customerID,
		BillingType:    BillingPix,
		ProviderStatus: res.Status,
		AmountCents:    o.AmountCents,
		DueDate:        res.DueDate,
	})
	if err != nil {
		return Attempt{}, fmt.Errorf("attach payment reference: %w", err)
	}
	a.State = StatePixAwaiting
	a.PaymentRef = ref.ProviderRef
	a.ProviderStatus = ref.ProviderStatus

	code, err := r.fetchQRCode(ctx, gw, ref)
	if err != nil {
		a.Reason = ReasonQRCodeUnavailable
		a.Cause = err
		return a, nil
	}
	a.Pix = &code
	return a, nil
}

// PayCard runs customer -> card payment and settles the order from the
// immediate provider answer. Only a 400/422 refusal declines the order. A
// rejected API key is a precondition failure; transport failures, throttling,
// 5xx answers and answers without a status leave the order pending as
// unconfirmed.
func (r *Reconciler) PayCard(ctx context.Context, orderID string, card Card, billing Billing) (a Attempt, err error) {
	ctx, span := r.tracer.Start(ctx, "payments.PayCard", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { endSpan(span, a, err) }()

	o, s, release, err := r.begin(ctx, orderID, orders.MethodCard)
	if err != nil {
		return Attempt{}, err
	}
	defer release()

	in := CardPaymentInput{
		Card:        card,
		Billing:     billing,
		AmountCents: o.AmountCents,
		Description: describe(o),
		ExternalRef: o.ID,
	}.Normalize()
	if in.Billing.Name == "" {
		in.Billing.Name = o.Name
	}
	if in.Billing.Email == "" {
		in.Billing.Email = o.Email
	}
	if err := in.Validate(); err != nil {
		return Attempt{}, err
	}

	gw := r.connector.Connect(s.Credential)
	a = Attempt{OrderID: o.ID, Method: orders.MethodCard, OrderStatus: o.Status}

	customerID, err := r.createCustomer(ctx, gw, o)
	if err != nil {
		if cerr := credentialFailure(err); cerr != nil {
			return Attempt{}, cerr
		}
		return a.failed(ReasonCustomerCreationFailed, err), nil
	}
	in.CustomerID = customerID

	var res PaymentResult
	err = r.observe(ctx, "create_card_payment", func() (err error) {
		res, err = gw.CreateCardPayment(ctx, in)
		return err
	})
	if err != nil {
		if cerr := credentialFailure(err); cerr != nil {
			return Attempt{}, cerr
		}
		var rej *RejectedError
		if errors.As(err, &rej) && rej.Refused() {
			a = a.failed(ReasonProviderDeclined, err)
			cur, changed, serr := r.settle(ctx, o, orders.StatusDeclined, SourceCard, "")
			if serr != nil {
				return Attempt{}, serr
			}
			a.OrderStatus, a.Changed = cur.Status, changed
			return a, nil
		}
		a.State = StateUnconfirmed
		a.Reason = ReasonUnconfirmed
		a.Cause = err
		r.logger.WarnContext(ctx, "card payment unconfirmed", "order_id", o.ID, "card_last4", document.Last4(in.Card.Number), "err", err)
		return a, nil
	}

	ref, err := r.refs.Attach(ctx, Payment{
		OrderID:        o.ID,
		Provider:       r.connector.Name(),
		ProviderRef:    res.PaymentID,
		CustomerRef:    customerID,
		BillingType:    BillingCard,
		ProviderStatus: res.Status,
		AmountCents:    o.AmountCents,
		DueDate:        res.DueDate,
	})
	if err != nil {
		return Attempt{}, fmt.Errorf("attach payment reference: %w", err)
	}
	a.PaymentRef = ref.ProviderRef
	a.ProviderStatus = ref.ProviderStatus

	out := MapProviderStatus(res.Status)
	if out == OutcomeUnknown {
		a.State = StateUnconfirmed
		a.Reason = ReasonUnconfirmed
		r.logger.WarnContext(ctx, "card payment without status", "order_id", o.ID, "payment_ref", ref.ProviderRef)
		return a, nil
	}
	return r.applyOutcome(ctx, o, a, out, SourceCard, true)
}

// CheckPix is one reconciliation step for a PIX order: local expiration,
// provider status, mapping. Expiration is checked again after the fetch so a
// late answer cannot override it.
func (r *Reconciler) CheckPix(ctx context.Context, orderID string) (a Attempt, err error) {
	ctx, span := r.tracer.Start(ctx, "payments.CheckPix", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { endSpan(span, a, err) }()

	o, ref, done, a, err := r.loadForCheck(ctx, orderID)
	if err != nil || done {
		return a, err
	}
	if ref.BillingType != BillingPix {
		return Attempt{}, fmt.Errorf("%w: %s is %s", ErrWrongMethod, orderID, ref.BillingType)
	}

	if r.expired(ref) {
		return r.expire(ctx, o, a)
	}

	status, err := r.fetchStatus(ctx, ref)
	if r.expired(ref) {
		r.metrics.Poll("expired")
		return r.expire(ctx, o, a)
	}
	if err != nil {
		if isPrecondition(err) {
			return Attempt{}, err
		}
		r.metrics.Poll("error")
		a.Reason = ReasonTransport
		a.Cause = err
		return a, nil
	}
	r.metrics.Poll(string(MapProviderStatus(status)))

	if status != "" && status != ref.ProviderStatus {
		if err := r.refs.SetProviderStatus(ctx, ref.ID, status); err != nil {
			return Attempt{}, err
		}
	}
	a.ProviderStatus = status
	return r.applyOutcome(ctx, o, a, MapProviderStatus(status), SourcePoll, true)
}

// Refresh reconciles any pending order once: PIX through CheckPix, card
// references under review by a single status fetch.
func (r *Reconciler) Refresh(ctx context.Context, orderID string) (Attempt, error) {
	o, ref, done, a, err := r.loadForCheck(ctx, orderID)
	if err != nil || done {
		return a, err
	}
	if ref.BillingType == BillingPix {
		return r.CheckPix(ctx, orderID)
	}

	status, err := r.fetchStatus(ctx, ref)
	if err != nil {
		if isPrecondition(err) {
			return Attempt{}, err
		}
		a.Reason = ReasonTransport
		a.Cause = err
		return a, nil
	}
	if status != "" && status != ref.ProviderStatus {
		if err := r.refs.SetProviderStatus(ctx, ref.ID, status); err != nil {
			return Attempt{}, err
		}
	}
	a.ProviderStatus = status
	return r.applyOutcome(ctx, o, a, MapProviderStatus(status), SourcePoll, true)
}

// PixCode re-fetches the QR image and payload of the active PIX reference.
func (r *Reconciler) PixCode(ctx context.Context, orderID string) (PixCode, error) {
	o, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		return PixCode{}, err
	}
	if o.Status != orders.StatusPending {
		return PixCode{}, ErrOrderNotPending
	}
	ref, err := r.refs.Active(ctx, o.ID)
	if err != nil {
		return PixCode{}, err
	}
	if ref.BillingType != BillingPix {
		return PixCode{}, fmt.Errorf("%w: %s is %s", ErrWrongMethod, orderID, ref.BillingType)
	}
	s, err := r.loadSettings(ctx, orders.MethodPix)
	if err != nil {
		return PixCode{}, err
	}
	return r.fetchQRCode(ctx, r.connector.Connect(s.Credential), ref)
}

// ApplyProviderStatus applies a provider-pushed status. A confirmation on a
// superseded reference still pays the order; a decline on one is ignored.
// A PIX code past its local expiration expires the order whatever the
// pushed status says.
func (r *Reconciler) ApplyProviderStatus(ctx context.Context, providerRef, status string) (Attempt, error) {
	ref, err := r.refs.FindByProviderRef(ctx, r.connector.Name(), providerRef)
	if err != nil {
		return Attempt{}, err
	}
	if status != "" && status != ref.ProviderStatus {
		if err := r.refs.SetProviderStatus(ctx, ref.ID, status); err != nil {
			return Attempt{}, err
		}
	}
	o, err := r.orders.FindByID(ctx, ref.OrderID)
	if err != nil {
		return Attempt{}, err
	}
	a := Attempt{
		OrderID:        o.ID,
		Method:         o.PaymentMethod,
		State:          stateFor(o.Status, o.PaymentMethod),
		PaymentRef:     ref.ProviderRef,
		ProviderStatus: status,
		OrderStatus:    o.Status,
	}
	if o.Status.Terminal() {
		return a, nil
	}
	if ref.BillingType == BillingPix && r.expired(ref) {
		if ref.Active {
			return r.expire(ctx, o, a)
		}
		return a, nil
	}
	return r.applyOutcome(ctx, o, a, MapProviderStatus(status), SourceWebhook, ref.Active)
}

type ReconcileSummary struct {
	Checked  int `json:"checked"`
	Paid     int `json:"paid"`
	Declined int `json:"declined"`
	Expired  int `json:"expired"`
	Pending  int `json:"pending"`
	Failures int `json:"failures"`
}

// ReconcilePending runs CheckPix over pending orders with an active PIX
// reference, oldest first.
func (r *Reconciler) ReconcilePending(ctx context.Context, limit int) (ReconcileSummary, error) {
	refs, err := r.refs.PendingPix(ctx, limit)
	if err != nil {
		return ReconcileSummary{}, err
	}
	var sum ReconcileSummary
	for _, ref := range refs {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Checked++
		a, err := r.CheckPix(ctx, ref.OrderID)
		if err != nil {
			sum.Failures++
			r.logger.ErrorContext(ctx, "reconcile failed", "order_id", ref.OrderID, "err", err)
			continue
		}
		switch a.OrderStatus {
		case orders.StatusPaid:
			sum.Paid++
		case orders.StatusDeclined:
			sum.Declined++
		case orders.StatusExpired:
			sum.Expired++
		default:
			sum.Pending++
		}
	}
	return sum, nil
}

func (r *Reconciler) begin(ctx context.Context, orderID string, m orders.Method) (orders.Order, settings.Settings, func(), error) {
	release, err := r.guard.Acquire(ctx, orderID)
	if err != nil {
		return orders.Order{}, settings.Settings{}, nil, err
	}
	fail := func(err error) (orders.Order, settings.Settings, func(), error) {
		release()
		return orders.Order{}, settings.Settings{}, nil, err
	}

	s, err := r.loadSettings(ctx, m)
	if err != nil {
		return fail(err)
	}
	o, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		return fail(err)
	}
	if o.Status != orders.StatusPending {
		return fail(fmt.Errorf("%w: %s is %s", ErrOrderNotPending, o.ID, o.Status))
	}
	if o.PaymentMethod != m {
		if err := r.orders.SetPaymentMethod(ctx, o.ID, m); err != nil {
			return fail(err)
		}
		o.PaymentMethod = m
	}
	return o, s, release, nil
}

func (r *Reconciler) loadSettings(ctx context.Context, m orders.Method) (settings.Settings, error) {
	s, err := r.settings.Load(ctx)
	if err != nil {
		return settings.Settings{}, err
	}
	if err := s.Require(m); err != nil {
		return settings.Settings{}, err
	}
	return s, nil
}

// loadForCheck resolves the order and its active reference. done is set when
// the order is already terminal and a carries its final state.
func (r *Reconciler) loadForCheck(ctx context.Context, orderID string) (o orders.Order, ref Payment, done bool, a Attempt, err error) {
	o, err = r.orders.FindByID(ctx, orderID)
	if err != nil {
		return o, ref, false, Attempt{}, err
	}
	a = Attempt{
		OrderID:     o.ID,
		Method:      o.PaymentMethod,
		State:       stateFor(o.Status, o.PaymentMethod),
		OrderStatus: o.Status,
	}
	ref, err = r.refs.Active(ctx, o.ID)
	if err != nil {
		if errors.Is(err, ErrNoActiveReference) && o.Status.Terminal() {
			return o, ref, true, a, nil
		}
		return o, ref, false, Attempt{}, err
	}
	a.PaymentRef = ref.ProviderRef
	a.ProviderStatus = ref.ProviderStatus
	return o, ref, o.Status.Terminal(), a, nil
}

func (r *Reconciler) fetchStatus(ctx context.Context, ref Payment) (string, error) {
	m := orders.MethodPix
	if ref.BillingType == BillingCard {
		m = orders.MethodCard
	}
	s, err := r.loadSettings(ctx, m)
	if err != nil {
		return "", err
	}
	gw := r.connector.Connect(s.Credential)
	var status string
	err = r.observe(ctx, "fetch_payment_status", func() (err error) {
		status, err = gw.FetchPaymentStatus(ctx, ref.ProviderRef)
		return err
	})
	if cerr := credentialFailure(err); cerr != nil {
		return "", cerr
	}
	return status, err
}

func (r *Reconciler) createCustomer(ctx context.Context, gw Gateway, o orders.Order) (string, error) {
	in := CustomerInput{Name: o.Name, Email: o.Email, TaxID: o.CPF}
	if o.Phone != nil {
		in.Phone = *o.Phone
	}
	var id string
	err := r.observe(ctx, "create_customer", func() (err error) {
		id, err = gw.CreateCustomer(ctx, in)
		return err
	})
	return id, err
}

func (r *Reconciler) fetchQRCode(ctx context.Context, gw Gateway, ref Payment) (PixCode, error) {
	var code PixCode
	err := r.observe(ctx, "fetch_pix_qrcode", func() (err error) {
		code, err = gw.FetchPixQRCode(ctx, ref.ProviderRef)
		return err
	})
	if err != nil {
		return PixCode{}, err
	}
	if !code.ExpiresAt.IsZero() {
		if err := r.refs.SetPixExpiry(ctx, ref.ID, code.ExpiresAt); err != nil {
			return PixCode{}, err
		}
	}
	return code, nil
}

// applyOutcome maps a provider outcome onto the order. Declines are only
// applied for the active reference.
func (r *Reconciler) applyOutcome(ctx context.Context, o orders.Order, a Attempt, out Outcome, source string, active bool) (Attempt, error) {
	to, settles := out.OrderStatus()
	if !settles || (to == orders.StatusDeclined && !active) {
		a.State = stateFor(o.Status, o.PaymentMethod)
		return a, nil
	}
	cur, changed, err := r.settle(ctx, o, to, source, a.PaymentRef)
	if err != nil {
		return Attempt{}, err
	}
	a.OrderStatus = cur.Status
	a.Changed = changed
	a.State = stateFor(cur.Status, cur.PaymentMethod)
	if cur.Status == orders.StatusDeclined && a.Reason == "" {
		a.Reason = ReasonProviderDeclined
	}
	return a, nil
}

func (r *Reconciler) expired(ref Payment) bool {
	return ref.PixExpiresAt != nil && !r.now().Before(*ref.PixExpiresAt)
}

func (r *Reconciler) expire(ctx context.Context, o orders.Order, a Attempt) (Attempt, error) {
	cur, changed, err := r.settle(ctx, o, orders.StatusExpired, SourceExpiry, a.PaymentRef)
	if err != nil {
		return Attempt{}, err
	}
	a.OrderStatus = cur.Status
	a.Changed = changed
	a.State = stateFor(cur.Status, cur.PaymentMethod)
	if cur.Status == orders.StatusExpired {
		a.Reason = ReasonExpired
	}
	return a, nil
}

// settle moves the order once. Losing a race to another writer is not an
// error: the stored status is returned and no notification is sent.
func (r *Reconciler) settle(ctx context.Context, o orders.Order, to orders.Status, source, ref string) (orders.Order, bool, error) {
	updated, err := r.orders.UpdateStatus(ctx, o.ID, to)
	if errors.Is(err, orders.ErrInvalidTransition) {
		cur, ferr := r.orders.FindByID(ctx, o.ID)
		if ferr != nil {
			return o, false, ferr
		}
		return cur, false, nil
	}
	if err != nil {
		return o, false, err
	}

	r.metrics.Transition(string(to), source)
	r.logger.InfoContext(ctx, "order status changed",
		"order_id", o.ID, "from", o.Status, "to", to, "source", source, "payment_ref", ref)
	r.notifier.OrderChanged(ctx, StatusChange{Order: updated, From: o.Status, Source: source, PaymentRef: ref})
	return updated, true, nil
}

func (r *Reconciler) observe(ctx context.Context, op string, fn func() error) error {
	started := time.Now()
	err := fn()
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTransport):
		outcome = "transport"
	case errors.Is(err, ErrRejected):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	r.metrics.ObserveGateway(op, outcome, started)
	if err != nil {
		r.logger.WarnContext(ctx, "gateway call failed", "op", op, "outcome", outcome, "err", err)
	}
	return err
}

// credentialFailure turns a 401/403 answer into a settings precondition
// failure: the stored API key is wrong, not the buyer's data.
func credentialFailure(err error) error {
	var rej *RejectedError
	if errors.As(err, &rej) && rej.Unauthorized() {
		return fmt.Errorf("%w: %w", settings.ErrSettingsUnavailable, err)
	}
	return nil
}

func isPrecondition(err error) bool {
	return errors.Is(err, settings.ErrSettingsUnavailable) ||
		errors.Is(err, settings.ErrIntegrationDisabled) ||
		errors.Is(err, settings.ErrMethodDisabled)
}

func describe(o orders.Order) string {
	id := o.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "Pedido " + id
}

func endSpan(span trace.Span, a Attempt, err error) {
	if a.State != "" {
		span.SetAttributes(attribute.String("attempt.state", string(a.State)))
	}
	if a.Reason != "" {
		span.SetAttributes(attribute.String("attempt.reason", string(a.Reason)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
