package payments

import (
	"context"
	"strings"
	"time"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/settings"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/document"
)

type BillingType string

const (
	BillingPix  BillingType = "PIX"
	BillingCard BillingType = "CREDIT_CARD"
)

type CustomerInput struct {
	Name  string
	Email string
	TaxID string
	Phone string
}

type PixPaymentInput struct {
	CustomerID  string
	AmountCents int64
	Description string
	ExternalRef string
}

type Card struct {
	Number      string `json:"number"`
	HolderName  string `json:"holder_name"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
}

// Billing is the card holder data the provider requires next to the card.
type Billing struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	TaxID         string `json:"tax_id"`
	PostalCode    string `json:"postal_code"`
	AddressNumber string `json:"address_number"`
	Phone         string `json:"phone"`
	// RemoteIP is the buyer's address as seen by the server.
	RemoteIP string `json:"-"`
}

type CardPaymentInput struct {
	CustomerID  string
	AmountCents int64
	Description string
	ExternalRef string
	Card        Card
	Billing     Billing
}

// Normalize strips formatting from the digit-only fields.
func (in CardPaymentInput) Normalize() CardPaymentInput {
	in.Card.Number = document.OnlyDigits(in.Card.Number)
	in.Card.HolderName = strings.TrimSpace(in.Card.HolderName)
	in.Card.ExpiryMonth = strings.TrimSpace(in.Card.ExpiryMonth)
	in.Card.ExpiryYear = strings.TrimSpace(in.Card.ExpiryYear)
	in.Card.CVV = strings.TrimSpace(in.Card.CVV)
	in.Billing.TaxID = document.OnlyDigits(in.Billing.TaxID)
	in.Billing.PostalCode = document.OnlyDigits(in.Billing.PostalCode)
	in.Billing.AddressNumber = strings.TrimSpace(in.Billing.AddressNumber)
	in.Billing.Phone = document.OnlyDigits(in.Billing.Phone)
	return in
}

// Validate reports every missing card or billing field at once. It runs
// before any network call so nothing partial reaches the provider.
func (in CardPaymentInput) Validate() error {
	n := in.Normalize()
	var missing []string
	check := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	check("card.number", n.Card.Number)
	check("card.holder_name", n.Card.HolderName)
	check("card.expiry_month", n.Card.ExpiryMonth)
	check("card.expiry_year", n.Card.ExpiryYear)
	check("card.cvv", n.Card.CVV)
	check("billing.tax_id", n.Billing.TaxID)
	check("billing.postal_code", n.Billing.PostalCode)
	check("billing.address_number", n.Billing.AddressNumber)
	check("billing.phone", n.Billing.Phone)
	if len(missing) > 0 {
		return &IncompleteCardError{Fields: missing}
	}
	return nil
}

type PaymentResult struct {
	PaymentID string
	Status    string
	DueDate   string
}

type PixCode struct {
	EncodedImage string    `json:"encoded_image"`
	Payload      string    `json:"payload"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Gateway is the provider contract. Implementations never swallow errors:
// network failures come back as *TransportError, provider refusals as
// *RejectedError.
type Gateway interface {
	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)
	CreatePixPayment(ctx context.Context, in PixPaymentInput) (PaymentResult, error)
	FetchPixQRCode(ctx context.Context, paymentID string) (PixCode, error)
	CreateCardPayment(ctx context.Context, in CardPaymentInput) (PaymentResult, error)
	FetchPaymentStatus(ctx context.Context, paymentID string) (string, error)
}

// Connector builds a Gateway bound to one credential. Settings are resolved
// per operation, so the client is too.
type Connector interface {
	Name() string
	Connect(cred settings.Credential) Gateway
}

type WebhookEvent struct {
	EventID    string
	Type       string
	PaymentRef string
	Status     string
}
