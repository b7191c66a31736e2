// Package paymentstest provides an in-memory Gateway for tests of packages
// that drive payments.
package paymentstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/settings"
)

const ProviderName = "asaas"

// Gateway records every call. Zero values give a working provider: PIX
// payments stay PENDING, card payments come back CONFIRMED.
type Gateway struct {
	mu    sync.Mutex
	calls map[string]int
	seq   int

	CustomerErr error
	PixErr      error
	QRErr       error
	CardErr     error
	StatusErr   error

	PixStatus  string
	CardStatus string

	// BlankCardStatus makes card payments come back with no status at all.
	BlankCardStatus bool

	// Statuses is consumed by FetchPaymentStatus in order; the last one repeats.
	Statuses  []string
	ExpiresAt time.Time

	// OnCustomer and OnStatus run before the call returns, outside the lock.
	OnCustomer func()
	OnStatus   func()

	LastCustomer payments.CustomerInput
	LastPix      payments.PixPaymentInput
	LastCard     payments.CardPaymentInput
}

func NewGateway() *Gateway {
	return &Gateway{calls: make(map[string]int)}
}

func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *Gateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

// Set mutates the gateway under its lock.
func (g *Gateway) Set(fn func(g *Gateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *Gateway) record(op string) {
	g.mu.Lock()
	g.calls[op]++
	g.mu.Unlock()
}

func (g *Gateway) CreateCustomer(_ context.Context, in payments.CustomerInput) (string, error) {
	g.record("create_customer")
	g.mu.Lock()
	hook, err := g.OnCustomer, g.CustomerErr
	g.LastCustomer = in
	g.seq++
	id := fmt.Sprintf("cus_%06d", g.seq)
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (g *Gateway) CreatePixPayment(_ context.Context, in payments.PixPaymentInput) (payments.PaymentResult, error) {
	g.record("create_pix_payment")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.LastPix = in
	if g.PixErr != nil {
		return payments.PaymentResult{}, g.PixErr
	}
	g.seq++
	status := g.PixStatus
	if status == "" {
		status = "PENDING"
	}
	return payments.PaymentResult{PaymentID: fmt.Sprintf("pay_%06d", g.seq), Status: status, DueDate: "2026-10-17"}, nil
}

func (g *Gateway) FetchPixQRCode(_ context.Context, paymentID string) (payments.PixCode, error) {
	g.record("fetch_pix_qrcode")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.QRErr != nil {
		return payments.PixCode{}, g.QRErr
	}
	return payments.PixCode{
		EncodedImage: "iVBORw0KGgo=",
		Payload:      "00020101021226820014br.gov.bcb.pix" + paymentID,
		ExpiresAt:    g.ExpiresAt,
	}, nil
}

func (g *Gateway) CreateCardPayment(_ context.Context, in payments.CardPaymentInput) (payments.PaymentResult, error) {
	g.record("create_card_payment")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.LastCard = in
	if g.CardErr != nil {
		return payments.PaymentResult{}, g.CardErr
	}
	g.seq++
	status := g.CardStatus
	if status == "" && !g.BlankCardStatus {
		status = "CONFIRMED"
	}
	return payments.PaymentResult{PaymentID: fmt.Sprintf("pay_%06d", g.seq), Status: status, DueDate: "2026-10-17"}, nil
}

func (g *Gateway) FetchPaymentStatus(_ context.Context, _ string) (string, error) {
	g.record("fetch_payment_status")
	g.mu.Lock()
	hook, err := g.OnStatus, g.StatusErr
	status := "PENDING"
	if len(g.Statuses) > 0 {
		status = g.Statuses[0]
		if len(g.Statuses) > 1 {
			g.Statuses = g.Statuses[1:]
		}
	}
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// Connector hands out the same Gateway for every credential and remembers
// which credentials were used.
type Connector struct {
	GW *Gateway

	mu    sync.Mutex
	creds []settings.Credential
}

func (c *Connector) Name() string { return ProviderName }

func (c *Connector) Connect(cred settings.Credential) payments.Gateway {
	c.mu.Lock()
	c.creds = append(c.creds, cred)
	c.mu.Unlock()
	return c.GW
}

func (c *Connector) Credentials() []settings.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]settings.Credential(nil), c.creds...)
}

// Settings is a fixed settings source.
type Settings struct {
	mu  sync.Mutex
	S   settings.Settings
	Err error
}

// Enabled returns settings with every method on and a sandbox credential.
func Enabled() *Settings {
	return &Settings{S: settings.Settings{
		IntegrationEnabled: true,
		PixEnabled:         true,
		CardEnabled:        true,
		Credential: settings.Credential{
			Environment: settings.Sandbox,
			BaseURL:     "https://sandbox.invalid/v3",
			APIKey:      "test-key",
		},
	}}
}

func (s *Settings) Load(context.Context) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.S, s.Err
}

func (s *Settings) Update(fn func(s *settings.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.S)
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Notes collects status change notifications.
type Notes struct {
	mu      sync.Mutex
	changes []payments.StatusChange
}

func (n *Notes) OrderChanged(_ context.Context, c payments.StatusChange) {
	n.mu.Lock()
	n.changes = append(n.changes, c)
	n.mu.Unlock()
}

func (n *Notes) All() []payments.StatusChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]payments.StatusChange(nil), n.changes...)
}
