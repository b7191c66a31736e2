package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments/asaas"
)

type webhookPayment struct {
	ID                string  `json:"id"`
	Customer          string  `json:"customer,omitempty"`
	BillingType       string  `json:"billingType"`
	Value             float64 `json:"value"`
	Status            string  `json:"status"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

type webhookPayload struct {
	ID          string         `json:"id"`
	Event       string         `json:"event"`
	DateCreated string         `json:"dateCreated"`
	Payment     webhookPayment `json:"payment"`
}

// eventFor picks the event name the provider sends along with a status.
func eventFor(status string) string {
	switch strings.ToUpper(status) {
	case "RECEIVED":
		return "PAYMENT_RECEIVED"
	case "CONFIRMED":
		return "PAYMENT_CONFIRMED"
	case "OVERDUE":
		return "PAYMENT_OVERDUE"
	case "REFUNDED":
		return "PAYMENT_REFUNDED"
	default:
		return "PAYMENT_UPDATED"
	}
}

func main() {
	url := flag.String("url", "http://localhost:8080/webhooks/asaas", "Webhook URL")
	token := flag.String("token", os.Getenv("ASAAS_WEBHOOK_TOKEN"), "Webhook access token")
	eventID := flag.String("event-id", "evt_"+uuid.NewString()[:8], "Event ID")
	paymentRef := flag.String("payment-ref", "", "Provider payment id (pay_...)")
	orderID := flag.String("order-id", "", "Order id sent as externalReference")
	status := flag.String("status", "RECEIVED", "Payment status (RECEIVED, CONFIRMED, PENDING, OVERDUE, REFUNDED)")
	billing := flag.String("billing-type", "PIX", "Billing type (PIX, CREDIT_CARD)")
	value := flag.Float64("value", 49.90, "Payment value")
	dryRun := flag.Bool("dry-run", false, "Only print the request, don't send")

	flag.Parse()

	if *token == "" {
		fmt.Fprintf(os.Stderr, "Error: token not provided and ASAAS_WEBHOOK_TOKEN not set\n")
		os.Exit(1)
	}
	if *paymentRef == "" {
		fmt.Fprintf(os.Stderr, "Error: -payment-ref is required\n")
		os.Exit(1)
	}

	payload := webhookPayload{
		ID:          *eventID,
		Event:       eventFor(*status),
		DateCreated: time.Now().Format("2006-01-02 15:04:05"),
		Payment: webhookPayment{
			ID:                *paymentRef,
			BillingType:       strings.ToUpper(*billing),
			Value:             *value,
			Status:            strings.ToUpper(*status),
			ExternalReference: *orderID,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling payload: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s: %s\n", asaas.TokenHeader, strings.Repeat("*", len(*token)))
	fmt.Printf("Body: %s\n", string(body))

	if *dryRun {
		fmt.Println("\n[DRY RUN] Not sending request")
		return
	}

	fmt.Printf("\nSending to %s...\n", *url)
	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(asaas.TokenHeader, *token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Response: %s\n", string(respBody))

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
