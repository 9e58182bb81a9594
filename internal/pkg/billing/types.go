package billing

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/learnspherehq/learnsphere/internal/pkg/env"
)

// EventType identifies the webhook event kinds the dispatcher acts on. Any
// other type falls through to the default ignore arm.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventChargeRefunded      EventType = "charge.refunded"
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
)

// Event is a signature-verified, provider-neutral webhook event. Raw carries
// the provider's event object payload and is decoded per event type by the
// dispatcher.
type Event struct {
	ID      string
	Type    EventType
	Created time.Time
	Raw     json.RawMessage
}

// DedupeKey returns the key the processed-event set is guarded by. The gateway
// event id uniquely identifies one logical delivery across retries.
func (e Event) DedupeKey() string {
	return string(e.Type) + ":" + e.ID
}

// checkoutSessionPayload is the slice of a checkout session object the
// dispatcher needs. Metadata is stamped at session creation time, so user
// email and price id round-trip through the gateway without a second API call.
type checkoutSessionPayload struct {
	ID                 string            `json:"id"`
	AmountTotal        int64             `json:"amount_total"`
	Currency           string            `json:"currency"`
	Customer           string            `json:"customer"`
	Subscription       string            `json:"subscription"`
	PaymentIntent      string            `json:"payment_intent"`
	PaymentLink        string            `json:"payment_link"`
	Created            int64             `json:"created"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Metadata           map[string]string `json:"metadata"`
}

type chargePayload struct {
	ID string `json:"id"`
}

type subscriptionPayload struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// sessionData is the subset of the stored raw checkout session the auto-renew
// path reads back from the transaction ledger.
type sessionData struct {
	PaymentIntent      string   `json:"payment_intent"`
	PaymentMethodTypes []string `json:"payment_method_types"`
}

// Config carries the billing engine knobs. The refund window is configuration,
// not a constant, so it can become a per-plan override later.
type Config struct {
	RefundWindowDays int
	Currency         string
	SuccessURL       string
	CancelURL        string
}

// ConfigFromEnv loads billing configuration from the environment.
func ConfigFromEnv() Config {
	refundDays := 30
	if v, err := strconv.Atoi(env.GetEnv("REFUND_WINDOW_DAYS", "30")); err == nil && v >= 0 {
		refundDays = v
	}
	return Config{
		RefundWindowDays: refundDays,
		Currency:         env.GetEnv("BILLING_CURRENCY", "aed"),
		SuccessURL:       env.GetEnv("CHECKOUT_SUCCESS_URL", "http://localhost:4000/payment/success"),
		CancelURL:        env.GetEnv("CHECKOUT_CANCEL_URL", "http://localhost:4000/payment/cancel"),
	}
}
