package payments

import (
	"strings"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
)

// Outcome is the local reading of a provider status string.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomePending   Outcome = "pending"
	OutcomeDeclined  Outcome = "declined"
	// OutcomeUnknown is an answer without a status; it proves nothing.
	OutcomeUnknown Outcome = "unknown"
)

// MapProviderStatus: RECEIVED and CONFIRMED settle the order, PENDING keeps
// waiting, a missing status is unknown, anything else is a decline.
func MapProviderStatus(status string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "":
		return OutcomeUnknown
	case "RECEIVED", "CONFIRMED":
		return OutcomeConfirmed
	case "PENDING":
		return OutcomePending
	default:
		return OutcomeDeclined
	}
}

func (o Outcome) OrderStatus() (orders.Status, bool) {
	switch o {
	case OutcomeConfirmed:
		return orders.StatusPaid, true
	case OutcomeDeclined:
		return orders.StatusDeclined, true
	}
	return orders.StatusPending, false
}
