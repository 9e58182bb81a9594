package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/charge"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/paymentmethod"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/setupintent"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/learnspherehq/learnsphere/internal/pkg/env"
)

// StripeGateway implements Gateway against Stripe.
type StripeGateway struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewStripeGatewayFromEnv builds a Stripe gateway configured from the
// environment. It sets the package-global API key, matching how the SDK is
// used for a single-tenant deployment.
func NewStripeGatewayFromEnv() *StripeGateway {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
	cfg := ConfigFromEnv()
	return &StripeGateway{
		webhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}
}

func (g *StripeGateway) CreateProduct(ctx context.Context, name string) (string, error) {
	params := &stripe.ProductParams{Name: stripe.String(name)}
	params.Context = ctx
	p, err := product.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return p.ID, nil
}

func (g *StripeGateway) CreatePrice(ctx context.Context, amountCents int64, currency, productID string, recurringMonths int) (string, error) {
	params := &stripe.PriceParams{
		UnitAmount: stripe.Int64(amountCents),
		Currency:   stripe.String(strings.ToLower(currency)),
		Product:    stripe.String(productID),
	}
	params.Context = ctx
	if recurringMonths > 0 {
		params.Recurring = &stripe.PriceRecurringParams{
			Interval:      stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			IntervalCount: stripe.Int64(int64(recurringMonths)),
		}
	}
	pr, err := price.New(params)
	if err != nil {
		return "", mapStripeError(err)
	}
	return pr.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, priceID string, mode CheckoutMode, customerEmail string, metadata map[string]string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(mode)),
		CustomerEmail: stripe.String(customerEmail),
		SuccessURL:    stripe.String(g.successURL),
		CancelURL:     stripe.String(g.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	s, err := session.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	out := &PaymentIntent{ID: pi.ID}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	if pi.PaymentMethod != nil {
		out.PaymentMethodID = pi.PaymentMethod.ID
	}
	if pi.LatestCharge != nil {
		out.LatestChargeID = pi.LatestCharge.ID
	}
	return out, nil
}

func (g *StripeGateway) RetrieveCharge(ctx context.Context, id string) (*Charge, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	ch, err := charge.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &Charge{ID: ch.ID, AmountCents: ch.Amount}, nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, chargeID string) error {
	params := &stripe.RefundParams{Charge: stripe.String(chargeID)}
	params.Context = ctx
	_, err := refund.New(params)
	if err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := subscription.Cancel(subscriptionID, params)
	if err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	_, err := paymentmethod.Attach(paymentMethodID, params)
	if err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, customerID string, enabled bool, allowedTypes []string) error {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(enabled),
		},
	}
	params.Context = ctx
	if len(allowedTypes) > 0 {
		params.PaymentMethodTypes = stripe.StringSlice(allowedTypes)
	}
	_, err := setupintent.New(params)
	if err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (*Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, ErrSignatureMissing
	}
	// Tolerate API version drift between the SDK pin and the configured
	// webhook endpoint; the dispatcher only reads stable payload fields.
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &Event{
		ID:      ev.ID,
		Type:    EventType(ev.Type),
		Created: time.Unix(ev.Created, 0),
		Raw:     ev.Data.Raw,
	}, nil
}

// mapStripeError folds SDK errors into the billing taxonomy: a structured
// Stripe error means the request was rejected, anything else (timeouts,
// transport failures) means the gateway was unreachable.
func mapStripeError(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		return fmt.Errorf("%w: %s", ErrGatewayRejected, sErr.Msg)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
