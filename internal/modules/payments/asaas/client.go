// Package asaas is the Gateway implementation for the Asaas v3 REST API.
package asaas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/settings"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/document"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/money"
)

const (
	Name = "asaas"

	ProductionURL = "https://api.asaas.com/v3"
	SandboxURL    = "https://api-sandbox.asaas.com/v3"

	// the API timestamps and due dates are in Brasília local time
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"

	genericReason = "O provedor de pagamento recusou a solicitação."
)

var providerLocation = loadLocation()

func loadLocation() *time.Location {
	if loc, err := time.LoadLocation("America/Sao_Paulo"); err == nil {
		return loc
	}
	return time.FixedZone("BRT", -3*60*60)
}

type Option func(*Client)

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRetry sets how often idempotent GETs are retried.
func WithRetry(count int, wait time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryCount(count).SetRetryWaitTime(wait).SetRetryMaxWaitTime(4 * wait)
	}
}

type Client struct {
	http *resty.Client
	now  func() time.Time
}

// New binds a client to one credential. The key travels only in the
// access_token header.
func New(cred settings.Credential, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	h := resty.New().
		SetBaseURL(strings.TrimRight(cred.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("access_token", cred.APIKey).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "pix-portal-checkout").
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(retryIdempotent)

	c := &Client{http: h, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// retryIdempotent retries GETs on transport errors, 429 and 5xx. Creating
// calls are never retried so a lost answer cannot create a second payment.
func retryIdempotent(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= 500
}

type customerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	CpfCnpj     string `json:"cpfCnpj"`
	Phone       string `json:"phone,omitempty"`
	MobilePhone string `json:"mobilePhone,omitempty"`
}

type paymentRequest struct {
	Customer             string      `json:"customer"`
	BillingType          string      `json:"billingType"`
	Value                json.Number `json:"value"`
	DueDate              string      `json:"dueDate"`
	Description          string      `json:"description,omitempty"`
	ExternalReference    string      `json:"externalReference,omitempty"`
	CreditCard           *creditCard `json:"creditCard,omitempty"`
	CreditCardHolderInfo *holderInfo `json:"creditCardHolderInfo,omitempty"`
	RemoteIP             string      `json:"remoteIp,omitempty"`
}

type creditCard struct {
	HolderName  string `json:"holderName"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CCV         string `json:"ccv"`
}

type holderInfo struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	CpfCnpj       string `json:"cpfCnpj"`
	PostalCode    string `json:"postalCode"`
	AddressNumber string `json:"addressNumber"`
	Phone         string `json:"phone"`
}

type paymentResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	DueDate string `json:"dueDate"`
}

type qrCodeResponse struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

type errorResponse struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (c *Client) CreateCustomer(ctx context.Context, in payments.CustomerInput) (string, error) {
	req := customerRequest{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		CpfCnpj: document.OnlyDigits(in.TaxID),
	}
	if req.Name == "" || req.Email == "" || req.CpfCnpj == "" {
		return "", fmt.Errorf("%w: customer name, email and tax id are required", payments.ErrInvalidRequest)
	}
	if p := document.OnlyDigits(in.Phone); p != "" {
		req.Phone, req.MobilePhone = p, p
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "create_customer", http.MethodPost, "/customers", req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &payments.TransportError{Op: "create_customer", Err: errors.New("response without customer id")}
	}
	return out.ID, nil
}

// CreatePixPayment always uses today's date in provider local time as the
// due date.
func (c *Client) CreatePixPayment(ctx context.Context, in payments.PixPaymentInput) (payments.PaymentResult, error) {
	if in.CustomerID == "" || in.AmountCents <= 0 {
		return payments.PaymentResult{}, fmt.Errorf("%w: customer and positive amount required", payments.ErrInvalidRequest)
	}
	req := paymentRequest{
		Customer:          in.CustomerID,
		BillingType:       string(payments.BillingPix),
		Value:             json.Number(money.ToDecimal(in.AmountCents)),
		DueDate:           c.today(),
		Description:       in.Description,
		ExternalReference: in.ExternalRef,
	}
	return c.createPayment(ctx, "create_pix_payment", req)
}

func (c *Client) CreateCardPayment(ctx context.Context, in payments.CardPaymentInput) (payments.PaymentResult, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return payments.PaymentResult{}, err
	}
	if in.CustomerID == "" || in.AmountCents <= 0 {
		return payments.PaymentResult{}, fmt.Errorf("%w: customer and positive amount required", payments.ErrInvalidRequest)
	}
	req := paymentRequest{
		Customer:          in.CustomerID,
		BillingType:       string(payments.BillingCard),
		Value:             json.Number(money.ToDecimal(in.AmountCents)),
		DueDate:           c.today(),
		Description:       in.Description,
		ExternalReference: in.ExternalRef,
		CreditCard: &creditCard{
			HolderName:  in.Card.HolderName,
			Number:      in.Card.Number,
			ExpiryMonth: in.Card.ExpiryMonth,
			ExpiryYear:  in.Card.ExpiryYear,
			CCV:         in.Card.CVV,
		},
		CreditCardHolderInfo: &holderInfo{
			Name:          in.Billing.Name,
			Email:         in.Billing.Email,
			CpfCnpj:       in.Billing.TaxID,
			PostalCode:    in.Billing.PostalCode,
			AddressNumber: in.Billing.AddressNumber,
			Phone:         in.Billing.Phone,
		},
		RemoteIP: in.Billing.RemoteIP,
	}
	return c.createPayment(ctx, "create_card_payment", req)
}

func (c *Client) createPayment(ctx context.Context, op string, req paymentRequest) (payments.PaymentResult, error) {
	var out paymentResponse
	if err := c.do(ctx, op, http.MethodPost, "/payments", req, &out); err != nil {
		return payments.PaymentResult{}, err
	}
	if out.ID == "" {
		return payments.PaymentResult{}, &payments.TransportError{Op: op, Err: errors.New("response without payment id")}
	}
	return payments.PaymentResult{PaymentID: out.ID, Status: out.Status, DueDate: out.DueDate}, nil
}

func (c *Client) FetchPixQRCode(ctx context.Context, paymentID string) (payments.PixCode, error) {
	if paymentID == "" {
		return payments.PixCode{}, fmt.Errorf("%w: payment id required", payments.ErrInvalidRequest)
	}
	var out qrCodeResponse
	if err := c.do(ctx, "fetch_pix_qrcode", http.MethodGet, "/payments/"+url.PathEscape(paymentID)+"/pixQrCode", nil, &out); err != nil {
		return payments.PixCode{}, err
	}
	code := payments.PixCode{EncodedImage: out.EncodedImage, Payload: out.Payload}
	if out.ExpirationDate != "" {
		t, err := time.ParseInLocation(dateTimeLayout, out.ExpirationDate, providerLocation)
		if err != nil {
			return payments.PixCode{}, &payments.TransportError{Op: "fetch_pix_qrcode", Err: fmt.Errorf("expirationDate: %w", err)}
		}
		code.ExpiresAt = t.UTC()
	}
	return code, nil
}

func (c *Client) FetchPaymentStatus(ctx context.Context, paymentID string) (string, error) {
	if paymentID == "" {
		return "", fmt.Errorf("%w: payment id required", payments.ErrInvalidRequest)
	}
	var out paymentResponse
	if err := c.do(ctx, "fetch_payment_status", http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) today() string {
	return c.now().In(providerLocation).Format(dateLayout)
}

// do sends one request and decodes a 2xx body into out. Non-2xx answers
// become *payments.RejectedError; everything else is a transport failure.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return &payments.TransportError{Op: op, Err: err}
	}
	if resp.IsError() {
		return rejected(op, resp.StatusCode(), resp.Body())
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return &payments.TransportError{Op: op, Err: fmt.Errorf("unexpected status %d", code)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &payments.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// rejected extracts the first error description, falling back to a generic
// reason when the payload is absent or malformed.
func rejected(op string, status int, body []byte) error {
	reason := genericReason
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && len(er.Errors) > 0 {
		if d := strings.TrimSpace(er.Errors[0].Description); d != "" {
			reason = d
		}
	}
	return &payments.RejectedError{Op: op, StatusCode: status, Reason: reason}
}

// Connector builds clients per credential with shared options.
type Connector struct {
	timeout time.Duration
	opts    []Option
}

func NewConnector(timeout time.Duration, opts ...Option) *Connector {
	return &Connector{timeout: timeout, opts: opts}
}

func (c *Connector) Name() string { return Name }

func (c *Connector) Connect(cred settings.Credential) payments.Gateway {
	return New(cred, c.timeout, c.opts...)
}
