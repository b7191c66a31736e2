package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/metrics"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments/paymentstest"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/settings"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/testutil"
)

type env struct {
	db       *gorm.DB
	orders   *orders.Repo
	refs     *payments.References
	gw       *paymentstest.Gateway
	conn     *paymentstest.Connector
	settings *paymentstest.Settings
	clock    *paymentstest.Clock
	notes    *paymentstest.Notes
	rec      *payments.Reconciler
}

func newEnv(t *testing.T, opts ...func(*payments.Deps)) *env {
	t.Helper()
	db := testutil.OpenDB(t, &orders.Order{}, &orders.OrderEvent{}, &payments.Payment{}, &payments.ProviderEvent{})
	e := &env{
		db:       db,
		orders:   orders.NewRepo(db),
		refs:     payments.NewReferences(db),
		gw:       paymentstest.NewGateway(),
		settings: paymentstest.Enabled(),
		clock:    paymentstest.NewClock(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)),
		notes:    &paymentstest.Notes{},
	}
	e.conn = &paymentstest.Connector{GW: e.gw}
	d := payments.Deps{
		Orders:       e.orders,
		Refs:         e.refs,
		Settings:     e.settings,
		Connector:    e.conn,
		Guard:        payments.NewMemoryGuard(),
		Notifier:     e.notes,
		Metrics:      metrics.Discard(),
		Now:          e.clock.Now,
		PollInterval: 10 * time.Millisecond,
		PollMax:      5 * time.Second,
	}
	for _, o := range opts {
		o(&d)
	}
	e.rec = payments.NewReconciler(d)
	return e
}

func (e *env) createOrder(t *testing.T, m orders.Method) orders.Order {
	t.Helper()
	o, err := e.rec.CreateOrder(context.Background(), payments.CreateOrderInput{
		ProductID:   "prod-1",
		AmountCents: 4990,
		Method:      m,
		Buyer:       orders.Buyer{Name: "Ana Silva", Email: "ana@example.com", CPF: "12345678901"},
	})
	require.NoError(t, err)
	return o
}

func validCard() (payments.Card, payments.Billing) {
	return payments.Card{
			Number:      "5162 3062 1937 8829",
			HolderName:  "ANA SILVA",
			ExpiryMonth: "05",
			ExpiryYear:  "2030",
			CVV:         "318",
		}, payments.Billing{
			TaxID:         "123.456.789-01",
			PostalCode:    "89223-005",
			AddressNumber: "277",
			Phone:         "(47) 99999-0000",
		}
}

func TestPixHappyPath(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	o := e.createOrder(t, orders.MethodPix)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, 0, e.gw.TotalCalls(), "order must exist before any gateway call")

	a, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatePixAwaiting, a.State)
	require.NotNil(t, a.Pix)
	assert.NotEmpty(t, a.Pix.Payload)
	assert.Equal(t, 1, e.gw.Calls("create_customer"))
	assert.Equal(t, 1, e.gw.Calls("create_pix_payment"))
	assert.Equal(t, int64(4990), e.gw.LastPix.AmountCents)
	assert.Equal(t, "12345678901", e.gw.LastCustomer.TaxID)

	e.gw.Set(func(g *paymentstest.Gateway) { g.Statuses = []string{"RECEIVED"} })
	a, err = e.rec.CheckPix(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StateConfirmed, a.State)
	assert.True(t, a.Changed)

	got, err := e.orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, got.Status)

	// settled orders are not polled again and never notified twice
	a, err = e.rec.CheckPix(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, a.Changed)
	assert.Equal(t, 1, e.gw.Calls("fetch_payment_status"))
	require.Len(t, e.notes.All(), 1)
	assert.Equal(t, orders.StatusPending, e.notes.All()[0].From)
	assert.Equal(t, payments.SourcePoll, e.notes.All()[0].Source)
}

func TestRetriesKeepSingleActiveReference(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.createOrder(t, orders.MethodPix)

	var last string
	for i := 0; i < 3; i++ {
		a, err := e.rec.PayPix(ctx, o.ID)
		require.NoError(t, err)
		last = a.PaymentRef
	}

	active, err := e.refs.Active(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, last, active.ProviderRef)

	history, err := e.refs.History(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	activeCount := 0
	for _, p := range history {
		if p.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestConcurrentSubmissionRejected(t *testing.T) {
	e := newEnv(t)
	o := e.createOrder(t, orders.MethodPix)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	e.gw.Set(func(g *paymentstest.Gateway) {
		g.OnCustomer = func() {
			once.Do(func() { close(entered) })
			<-unblock
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = e.rec.PayPix(context.Background(), o.ID)
	}()

	<-entered
	_, err := e.rec.PayPix(context.Background(), o.ID)
	assert.ErrorIs(t, err, payments.ErrDuplicateSubmission)

	close(unblock)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, 1, e.gw.Calls("create_customer"))
	assert.Equal(t, 1, e.gw.Calls("create_pix_payment"))
}

func TestGuardReleasedAfterFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.createOrder(t, orders.MethodPix)

	e.gw.Set(func(g *paymentstest.Gateway) {
		g.CustomerErr = &payments.TransportError{Op: "create_customer", Err: errors.New("connection reset")}
	})
	a, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StateDeclined, a.State)
	assert.Equal(t, payments.ReasonCustomerCreationFailed, a.Reason)
	assert.Equal(t, orders.StatusPending, a.OrderStatus)
	assert.Equal(t, 0, e.gw.Calls("create_pix_payment"))

	got, err := e.orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)

	e.gw.Set(func(g *paymentstest.Gateway) { g.CustomerErr = nil })
	a, err = e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatePixAwaiting, a.State)
}

func TestPixExpirationPrecedence(t *testing.T) {
	t.Run("expired before fetch", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		e.gw.ExpiresAt = e.clock.Now().Add(10 * time.Minute)
		o := e.createOrder(t, orders.MethodPix)
		_, err := e.rec.PayPix(ctx, o.ID)
		require.NoError(t, err)

		e.clock.Advance(11 * time.Minute)
		e.gw.Set(func(g *paymentstest.Gateway) { g.Statuses = []string{"CONFIRMED"} })

		a, err := e.rec.CheckPix(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.StateExpired, a.State)
		assert.Equal(t, orders.StatusExpired, a.OrderStatus)
		assert.Equal(t, 0, e.gw.Calls("fetch_payment_status"))
	})

	t.Run("stale confirmation arriving after expiry", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		e.gw.ExpiresAt = e.clock.Now().Add(10 * time.Minute)
		o := e.createOrder(t, orders.MethodPix)
		_, err := e.rec.PayPix(ctx, o.ID)
		require.NoError(t, err)

		e.clock.Advance(9 * time.Minute)
		e.gw.Set(func(g *paymentstest.Gateway) {
			g.Statuses = []string{"CONFIRMED"}
			g.OnStatus = func() { e.clock.Advance(2 * time.Minute) }
		})

		a, err := e.rec.CheckPix(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, payments.StateExpired, a.State)

		got, err := e.orders.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusExpired, got.Status)
		require.Len(t, e.notes.All(), 1)
		assert.Equal(t, payments.SourceExpiry, e.notes.All()[0].Source)
	})
}

func TestPixDeclinedAndTransportDuringPoll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.createOrder(t, orders.MethodPix)
	_, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)

	e.gw.Set(func(g *paymentstest.Gateway) {
		g.StatusErr = &payments.TransportError{Op: "fetch_payment_status", Err: context.DeadlineExceeded}
	})
	a, err := e.rec.CheckPix(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatePixAwaiting, a.State)
	assert.Equal(t, payments.ReasonTransport, a.Reason)

	e.gw.Set(func(g *paymentstest.Gateway) {
		g.StatusErr = nil
		g.Statuses = []string{"OVERDUE"}
	})
	a, err = e.rec.CheckPix(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StateDeclined, a.State)
	assert.Equal(t, orders.StatusDeclined, a.OrderStatus)
}

func TestCardOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		blank      bool
		cardErr    error
		wantState  payments.AttemptState
		wantOrder  orders.Status
		wantRef    bool
		wantMsg    string
		wantChange bool
	}{
		{name: "confirmed", status: "CONFIRMED", wantState: payments.StateConfirmed, wantOrder: orders.StatusPaid, wantRef: true, wantChange: true},
		{name: "received", status: "RECEIVED", wantState: payments.StateConfirmed, wantOrder: orders.StatusPaid, wantRef: true, wantChange: true},
		{name: "under review", status: "PENDING", wantState: payments.StateCardPending, wantOrder: orders.StatusPending, wantRef: true},
		{name: "refused status", status: "REFUSED", wantState: payments.StateDeclined, wantOrder: orders.StatusDeclined, wantRef: true, wantChange: true},
		{name: "answer without status", blank: true, wantState: payments.StateUnconfirmed, wantOrder: orders.StatusPending, wantRef: true},
		{
			name:       "provider 400",
			cardErr:    &payments.RejectedError{Op: "create_card_payment", StatusCode: 400, Reason: "Cartão de crédito recusado."},
			wantState:  payments.StateDeclined,
			wantOrder:  orders.StatusDeclined,
			wantMsg:    "Cartão de crédito recusado.",
			wantChange: true,
		},
		{
			name:      "provider 429",
			cardErr:   &payments.RejectedError{Op: "create_card_payment", StatusCode: 429, Reason: "too many requests"},
			wantState: payments.StateUnconfirmed,
			wantOrder: orders.StatusPending,
		},
		{
			name:      "provider 502",
			cardErr:   &payments.RejectedError{Op: "create_card_payment", StatusCode: 502, Reason: "bad gateway"},
			wantState: payments.StateUnconfirmed,
			wantOrder: orders.StatusPending,
		},
		{
			name:      "timeout",
			cardErr:   &payments.TransportError{Op: "create_card_payment", Err: context.DeadlineExceeded},
			wantState: payments.StateUnconfirmed,
			wantOrder: orders.StatusPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			e.gw.CardStatus = tt.status
			e.gw.BlankCardStatus = tt.blank
			e.gw.CardErr = tt.cardErr
			o := e.createOrder(t, orders.MethodCard)

			card, billing := validCard()
			a, err := e.rec.PayCard(ctx, o.ID, card, billing)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, a.State)
			assert.Equal(t, tt.wantOrder, a.OrderStatus)
			assert.Equal(t, tt.wantMsg, a.Message)
			assert.Equal(t, tt.wantChange, a.Changed)

			got, err := e.orders.FindByID(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrder, got.Status)

			_, err = e.refs.Active(ctx, o.ID)
			if tt.wantRef {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, payments.ErrNoActiveReference)
			}
			assert.Equal(t, "5162306219378829", e.gw.LastCard.Card.Number)
			assert.Equal(t, "Ana Silva", e.gw.LastCard.Billing.Name)
		})
	}
}

func TestRejectedKeyIsNotADecline(t *testing.T) {
	t.Run("card", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		e.gw.CardErr = &payments.RejectedError{Op: "create_card_payment", StatusCode: 401, Reason: "invalid access token"}
		o := e.createOrder(t, orders.MethodCard)

		card, billing := validCard()
		_, err := e.rec.PayCard(ctx, o.ID, card, billing)
		assert.ErrorIs(t, err, settings.ErrSettingsUnavailable)

		got, err := e.orders.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusPending, got.Status)
		assert.Empty(t, e.notes.All())
	})

	t.Run("pix customer", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		e.gw.CustomerErr = &payments.RejectedError{Op: "create_customer", StatusCode: 403, Reason: "forbidden"}
		o := e.createOrder(t, orders.MethodPix)

		_, err := e.rec.PayPix(ctx, o.ID)
		assert.ErrorIs(t, err, settings.ErrSettingsUnavailable)
		assert.Equal(t, 0, e.gw.Calls("create_pix_payment"))
	})

	t.Run("status poll", func(t *testing.T) {
		e := newEnv(t)
		ctx := context.Background()
		o := e.createOrder(t, orders.MethodPix)
		_, err := e.rec.PayPix(ctx, o.ID)
		require.NoError(t, err)

		e.gw.Set(func(g *paymentstest.Gateway) {
			g.StatusErr = &payments.RejectedError{Op: "fetch_payment_status", StatusCode: 401, Reason: "invalid access token"}
		})
		_, err = e.rec.CheckPix(ctx, o.ID)
		assert.ErrorIs(t, err, settings.ErrSettingsUnavailable)

		got, err := e.orders.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusPending, got.Status)
	})
}

func TestPixStatusWithoutValueKeepsWaiting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.createOrder(t, orders.MethodPix)
	_, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)

	e.gw.Set(func(g *paymentstest.Gateway) { g.Statuses = []string{""} })
	a, err := e.rec.CheckPix(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatePixAwaiting, a.State)
	assert.Equal(t, orders.StatusPending, a.OrderStatus)
	assert.False(t, a.Changed)

	ref, err := e.refs.Active(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", ref.ProviderStatus)
	assert.Empty(t, e.notes.All())
}

func TestDeclinedCardStopsFurtherCalls(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.gw.CardStatus = "REFUSED"
	o := e.createOrder(t, orders.MethodCard)

	card, billing := validCard()
	card.Number = "4000 0000 0000 0002"
	a, err := e.rec.PayCard(ctx, o.ID, card, billing)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDeclined, a.OrderStatus)
	calls := e.gw.TotalCalls()

	_, err = e.rec.PayCard(ctx, o.ID, card, billing)
	assert.ErrorIs(t, err, payments.ErrOrderNotPending)
	_, err = e.rec.Refresh(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, calls, e.gw.TotalCalls())
}

func TestIncompleteCardFailsBeforeGateway(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.createOrder(t, orders.MethodCard)

	card, billing := validCard()
	billing.PostalCode = ""
	card.CVV = " "
	_, err := e.rec.PayCard(ctx, o.ID, card, billing)
	require.ErrorIs(t, err, payments.ErrIncompleteCardDetails)

	var ice *payments.IncompleteCardError
	require.True(t, errors.As(err, &ice))
	assert.ElementsMatch(t, []string{"card.cvv", "billing.postal_code"}, ice.Fields)
	assert.Equal(t, 0, e.gw.TotalCalls())

	got, err := e.orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
}

func TestDisabledIntegrationMakesNoCalls(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.createOrder(t, orders.MethodPix)

	e.settings.Update(func(s *settings.Settings) { s.IntegrationEnabled = false })

	_, err := e.rec.CreateOrder(ctx, payments.CreateOrderInput{
		ProductID: "prod-1", AmountCents: 4990, Method: orders.MethodPix,
		Buyer: orders.Buyer{Name: "Ana Silva", Email: "ana@example.com", CPF: "12345678901"},
	})
	assert.ErrorIs(t, err, settings.ErrIntegrationDisabled)

	_, err = e.rec.PayPix(ctx, o.ID)
	assert.ErrorIs(t, err, settings.ErrIntegrationDisabled)

	card, billing := validCard()
	_, err = e.rec.PayCard(ctx, o.ID, card, billing)
	assert.ErrorIs(t, err, settings.ErrIntegrationDisabled)

	assert.Equal(t, 0, e.gw.TotalCalls())
	assert.Empty(t, e.conn.Credentials())
}

func TestMethodDisabled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.createOrder(t, orders.MethodPix)

	e.settings.Update(func(s *settings.Settings) { s.CardEnabled = false })
	card, billing := validCard()
	_, err := e.rec.PayCard(ctx, o.ID, card, billing)
	assert.ErrorIs(t, err, settings.ErrMethodDisabled)
	assert.Equal(t, 0, e.gw.TotalCalls())

	got, err := e.orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.MethodPix, got.PaymentMethod)
}

func TestSwitchingMethodUpdatesOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	o := e.createOrder(t, orders.MethodPix)

	card, billing := validCard()
	_, err := e.rec.PayCard(ctx, o.ID, card, billing)
	require.NoError(t, err)

	got, err := e.orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.MethodCard, got.PaymentMethod)
	assert.Equal(t, orders.StatusPaid, got.Status)
}

func TestQRCodeFailureKeepsReference(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.gw.QRErr = &payments.TransportError{Op: "fetch_pix_qrcode", Err: errors.New("eof")}
	o := e.createOrder(t, orders.MethodPix)

	a, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatePixAwaiting, a.State)
	assert.Equal(t, payments.ReasonQRCodeUnavailable, a.Reason)
	assert.Nil(t, a.Pix)

	e.gw.Set(func(g *paymentstest.Gateway) {
		g.QRErr = nil
		g.ExpiresAt = e.clock.Now().Add(30 * time.Minute)
	})
	code, err := e.rec.PixCode(ctx, o.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, code.Payload)

	ref, err := e.refs.Active(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, ref.PixExpiresAt)
	assert.WithinDuration(t, e.clock.Now().Add(30*time.Minute), *ref.PixExpiresAt, time.Millisecond)
}

func TestReconcilePending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	paid := e.createOrder(t, orders.MethodPix)
	_, err := e.rec.PayPix(ctx, paid.ID)
	require.NoError(t, err)
	waiting := e.createOrder(t, orders.MethodPix)
	_, err = e.rec.PayPix(ctx, waiting.ID)
	require.NoError(t, err)

	e.gw.Set(func(g *paymentstest.Gateway) { g.Statuses = []string{"RECEIVED", "PENDING"} })
	sum, err := e.rec.ReconcilePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Checked)
	assert.Equal(t, 1, sum.Paid)
	assert.Equal(t, 1, sum.Pending)

	sum, err = e.rec.ReconcilePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Checked)
}
