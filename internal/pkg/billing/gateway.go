package billing

import "context"

// CheckoutMode selects between a one-time payment (lifetime plans) and a
// recurring subscription at the gateway.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// CheckoutSession is the gateway-issued transaction context returned from
// payment-link creation.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentIntent is the slice of a gateway payment intent the auto-renew path
// needs: which payment method paid and whether it is attached to a customer.
type PaymentIntent struct {
	ID              string
	CustomerID      string
	PaymentMethodID string
	LatestChargeID  string
}

// Charge is a settled gateway charge.
type Charge struct {
	ID          string
	AmountCents int64
}

// Gateway is the contract the billing engine requires from a payment provider.
// All calls carry the request context and must respect its deadline; callers
// never mutate local state until the gateway call has succeeded.
type Gateway interface {
	CreateProduct(ctx context.Context, name string) (string, error)
	CreatePrice(ctx context.Context, amountCents int64, currency, productID string, recurringMonths int) (string, error)
	CreateCheckoutSession(ctx context.Context, priceID string, mode CheckoutMode, customerEmail string, metadata map[string]string) (*CheckoutSession, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	RetrieveCharge(ctx context.Context, id string) (*Charge, error)
	CreateRefund(ctx context.Context, chargeID string) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	CreateSetupIntent(ctx context.Context, customerID string, enabled bool, allowedTypes []string) error

	// VerifyWebhookSignature checks the signature header against the raw body
	// and returns the decoded event. ErrSignatureMissing and
	// ErrInvalidSignature are fatal to the webhook request.
	VerifyWebhookSignature(payload []byte, signatureHeader string) (*Event, error)
}
