// Package checkout sequences the buyer-facing steps of a purchase. It holds
// no payment logic: every gateway interaction goes through the payments
// reconciler.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/products"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/validation"
)

type Catalog interface {
	GetActive(ctx context.Context, id string) (products.Product, error)
}

// Payments is the subset of *payments.Reconciler the checkout drives.
type Payments interface {
	CreateOrder(ctx context.Context, in payments.CreateOrderInput) (orders.Order, error)
	PayPix(ctx context.Context, orderID string) (payments.Attempt, error)
	PayCard(ctx context.Context, orderID string, card payments.Card, billing payments.Billing) (payments.Attempt, error)
	Refresh(ctx context.Context, orderID string) (payments.Attempt, error)
	PixCode(ctx context.Context, orderID string) (payments.PixCode, error)
	Watch(ctx context.Context, orderID string, onUpdate func(payments.Attempt)) *payments.PollHandle
}

type Deps struct {
	Catalog  Catalog
	Settings payments.SettingsLoader
	Payments Payments
	Logger   *slog.Logger
	Now      func() time.Time

	// TTL drops sessions untouched for this long; SweepEvery is how often
	// the sweeper looks.
	TTL        time.Duration
	SweepEvery time.Duration
}

type Manager struct {
	catalog  Catalog
	settings payments.SettingsLoader
	payments Payments
	logger   *slog.Logger
	now      func() time.Time
	validate *validator.Validate
	ttl      time.Duration

	// root outlives requests; watches hang off it.
	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager(d Deps) *Manager {
	root, cancel := context.WithCancel(context.Background())
	m := &Manager{
		catalog:  d.Catalog,
		settings: d.Settings,
		payments: d.Payments,
		logger:   d.Logger,
		now:      d.Now,
		validate: validation.New(),
		ttl:      d.TTL,
		root:     root,
		cancel:   cancel,
		sessions: map[string]*session{},
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.ttl <= 0 {
		m.ttl = time.Hour
	}
	every := d.SweepEvery
	if every <= 0 {
		every = time.Minute
	}
	m.wg.Add(1)
	go m.sweep(every)
	return m
}

// Start opens a session for an active product. The gateway settings are
// resolved here so a disabled integration fails before any buyer input.
func (m *Manager) Start(ctx context.Context, productID string) (View, error) {
	s, err := m.settings.Load(ctx)
	if err != nil {
		return View{}, err
	}
	methods := s.Methods()
	if len(methods) == 0 {
		if err := s.Require(orders.MethodPix); err != nil {
			return View{}, err
		}
	}
	p, err := m.catalog.GetActive(ctx, productID)
	if err != nil {
		return View{}, err
	}

	sess := &session{
		id:        uuid.NewString(),
		product:   p,
		methods:   methods,
		step:      StepPersonalInfo,
		touchedAt: m.now(),
	}
	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "checkout started", "session_id", sess.id, "product_id", p.ID)
	return sess.view(), nil
}

func (m *Manager) Get(id string) (View, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// SubmitPersonalInfo validates the buyer and moves to method selection.
func (m *Manager) SubmitPersonalInfo(ctx context.Context, id string, in PersonalInfo) (View, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	if err := m.validate.StructCtx(ctx, in); err != nil {
		return View{}, &ValidationError{Fields: validation.FromError(err)}
	}
	in = in.normalize()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.step != StepPersonalInfo {
		return View{}, &StepError{Step: sess.step, Action: "personal_info"}
	}
	sess.buyer = &in
	sess.step = StepPaymentMethod
	return sess.view(), nil
}

// Back moves one step back. Buyer data can be edited only while no order
// exists; from a result page the buyer returns to method selection if the
// order is still open for another attempt.
func (m *Manager) Back(ctx context.Context, id string) (View, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}

	sess.mu.Lock()
	var h *payments.PollHandle
	switch sess.step {
	case StepPaymentMethod:
		if sess.order != "" {
			sess.mu.Unlock()
			return View{}, &StepError{Step: sess.step, Action: "back"}
		}
		sess.step = StepPersonalInfo
	case StepPix, StepCardResult:
		if sess.status == orders.StatusPaid {
			sess.mu.Unlock()
			return View{}, &StepError{Step: sess.step, Action: "back"}
		}
		h = sess.detachWatch()
		sess.step = StepPaymentMethod
	default:
		sess.mu.Unlock()
		return View{}, &StepError{Step: sess.step, Action: "back"}
	}
	sess.mu.Unlock()

	if h != nil {
		h.Stop()
	}
	return m.Get(id)
}

type PaymentInput struct {
	Method  orders.Method
	Card    payments.Card
	Billing payments.Billing
}

// Submit dispatches the payment. The Submitting step doubles as the
// per-session duplicate guard; the reconciler's own guard covers other
// sessions and processes. On error the previous step is restored.
func (m *Manager) Submit(ctx context.Context, id string, in PaymentInput) (v View, err error) {
	sess, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}

	sess.mu.Lock()
	if sess.step == StepSubmitting {
		sess.mu.Unlock()
		return View{}, payments.ErrDuplicateSubmission
	}
	if sess.step != StepPaymentMethod {
		step := sess.step
		sess.mu.Unlock()
		return View{}, &StepError{Step: step, Action: "submit"}
	}
	if sess.status == orders.StatusPaid {
		sess.mu.Unlock()
		return View{}, ErrAlreadyPaid
	}
	sess.step = StepSubmitting
	buyer := *sess.buyer
	orderID := sess.order
	if orderID != "" && sess.status.Terminal() {
		orderID = ""
	}
	sess.mu.Unlock()

	defer func() {
		if err != nil {
			sess.mu.Lock()
			sess.step = StepPaymentMethod
			sess.mu.Unlock()
		}
	}()

	if !in.Method.Valid() {
		return View{}, fmt.Errorf("%w: unknown payment method %q", orders.ErrInvalidOrder, in.Method)
	}

	if orderID == "" {
		o, err := m.payments.CreateOrder(ctx, payments.CreateOrderInput{
			ProductID:   sess.product.ID,
			AmountCents: sess.product.PriceCents,
			Method:      in.Method,
			Buyer:       buyer.buyer(),
		})
		if err != nil {
			return View{}, err
		}
		orderID = o.ID
		sess.mu.Lock()
		sess.order, sess.status, sess.attempt = o.ID, o.Status, nil
		sess.mu.Unlock()
	}

	var a payments.Attempt
	switch in.Method {
	case orders.MethodPix:
		a, err = m.payments.PayPix(ctx, orderID)
	case orders.MethodCard:
		a, err = m.payments.PayCard(ctx, orderID, in.Card, in.Billing)
	}
	if errors.Is(err, payments.ErrOrderNotPending) {
		a, err = m.payments.Refresh(ctx, orderID)
	}
	if err != nil {
		return View{}, err
	}

	sess.mu.Lock()
	sess.record(a)
	sess.step = StepCardResult
	if a.Method == orders.MethodPix {
		sess.step = StepPix
	}
	if sess.step == StepPix && !a.Settled() && a.PaymentRef != "" {
		sess.watch = m.payments.Watch(m.root, orderID, m.onPoll(sess, orderID))
	}
	v = sess.view()
	sess.mu.Unlock()

	m.logger.InfoContext(ctx, "checkout submitted",
		"session_id", id, "order_id", orderID, "method", in.Method,
		"state", a.State, "order_status", a.OrderStatus)
	return v, nil
}

// onPoll records watch results, ignoring updates for an order the session
// has since moved away from.
func (m *Manager) onPoll(sess *session, orderID string) func(payments.Attempt) {
	return func(a payments.Attempt) {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if sess.order != orderID || sess.step != StepPix {
			return
		}
		if sess.attempt != nil && sess.attempt.Pix != nil && a.Pix == nil {
			a.Pix = sess.attempt.Pix
		}
		sess.record(a)
		if a.Settled() {
			// the watch exits after this callback; Stop here would wait on itself
			sess.watch = nil
		}
	}
}

// RefreshPix re-fetches a missing QR code and checks the payment once.
func (m *Manager) RefreshPix(ctx context.Context, id string) (View, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	if sess.step != StepPix {
		step := sess.step
		sess.mu.Unlock()
		return View{}, &StepError{Step: step, Action: "pix_refresh"}
	}
	if sess.attempt == nil || sess.attempt.PaymentRef == "" {
		sess.mu.Unlock()
		return View{}, payments.ErrNoActiveReference
	}
	orderID := sess.order
	code := sess.attempt.Pix
	sess.mu.Unlock()

	a, err := m.payments.Refresh(ctx, orderID)
	if err != nil {
		return View{}, err
	}
	if code == nil && !a.Settled() {
		c, err := m.payments.PixCode(ctx, orderID)
		if err != nil && !errors.Is(err, payments.ErrOrderNotPending) {
			m.logger.WarnContext(ctx, "pix code refresh failed", "order_id", orderID, "err", err)
		}
		if err == nil {
			code = &c
			a.Reason = ""
		}
	}
	if a.Pix == nil {
		a.Pix = code
	}

	sess.mu.Lock()
	var h *payments.PollHandle
	if sess.order == orderID && sess.step == StepPix {
		sess.record(a)
		if a.Settled() {
			h = sess.detachWatch()
		}
	}
	v := sess.view()
	sess.mu.Unlock()
	if h != nil {
		h.Stop()
	}
	return v, nil
}

// Close drops the session and stops its watch.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.stop(sess)
	return nil
}

// Shutdown stops every watch and the sweeper.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	all := make([]*session, 0, len(m.sessions))
	for id, sess := range m.sessions {
		all = append(all, sess)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, sess := range all {
		m.stop(sess)
	}
	m.wg.Wait()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) stop(sess *session) {
	sess.mu.Lock()
	h := sess.detachWatch()
	sess.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

func (m *Manager) lookup(id string) (*session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.mu.Lock()
	sess.touchedAt = m.now()
	sess.mu.Unlock()
	return sess, nil
}

func (m *Manager) sweep(every time.Duration) {
	defer m.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.root.Done():
			return
		case <-t.C:
			m.Expire()
		}
	}
}

// Expire drops sessions idle for longer than the TTL and returns how many.
func (m *Manager) Expire() int {
	cutoff := m.now().Add(-m.ttl)
	var stale []*session

	m.mu.Lock()
	for id, sess := range m.sessions {
		sess.mu.Lock()
		idle := sess.touchedAt.Before(cutoff) && sess.step != StepSubmitting
		sess.mu.Unlock()
		if idle {
			stale = append(stale, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range stale {
		m.stop(sess)
	}
	if len(stale) > 0 {
		m.logger.Info("checkout sessions expired", "count", len(stale))
	}
	return len(stale)
}
