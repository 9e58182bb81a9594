package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/learnspherehq/learnsphere/app/models"
	"gorm.io/gorm"
)

// Service implements the synchronous, user-initiated side of the billing
// lifecycle: payment-link issuance, cancellation with the refund window, the
// auto-renewal toggle, and gateway provisioning of catalog plans. It shares
// the ledger and the cancellation routine with the webhook dispatcher.
type Service struct {
	repo     Repository
	gateway  Gateway
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

func NewService(repo Repository, gateway Gateway, notifier Notifier, cfg Config) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// NewServiceFromDB creates a service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway, notifier Notifier, cfg Config) *Service {
	return NewService(NewRepository(db), gateway, notifier, cfg)
}

// CreatePaymentLink requests a checkout session for the given plan and returns
// its URL. This is the only place the one-active-subscription-per-user rule is
// enforced. No local state is written; the ledger row is created when the
// corresponding webhook arrives.
func (s *Service) CreatePaymentLink(ctx context.Context, userID, planID uint) (string, error) {
	plan, err := s.repo.GetPlanByID(planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrPlanNotFound
		}
		return "", err
	}

	subscribed, err := s.repo.HasActivatedSubscription(userID)
	if err != nil {
		return "", err
	}
	if subscribed {
		return "", ErrAlreadySubscribed
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return "", err
	}

	mode := CheckoutModeSubscription
	if plan.IsLifetime() {
		mode = CheckoutModePayment
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, plan.StripePriceID, mode, user.Email, map[string]string{
		"user_email": user.Email,
		"user_id":    strconv.FormatUint(uint64(user.ID), 10),
		"plan_id":    strconv.FormatUint(uint64(plan.ID), 10),
		"price_id":   plan.StripePriceID,
		"client_ref": uuid.NewString(),
	})
	if err != nil {
		return "", err
	}
	return session.URL, nil
}

// Cancel executes the user-initiated cancellation policy. Within the refund
// window a monetary reversal is requested from the gateway first, and local
// state is only mutated after the gateway succeeded; outside the window the
// cancellation is a pure status change. Returns true when money moved.
func (s *Service) Cancel(ctx context.Context, userID uint) (bool, error) {
	txn, err := s.repo.GetLiveTransactionByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNoActiveTransaction
		}
		return false, err
	}

	sub, err := s.repo.GetActivatedSubscription(userID, txn.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNoActiveSubscription
		}
		return false, err
	}
	if sub.ActivateDate == nil {
		return false, ErrNoActiveSubscription
	}

	plan, err := s.repo.GetPlanByID(txn.PlanID)
	if err != nil {
		return false, err
	}

	elapsedDays := int(s.now().Sub(*sub.ActivateDate).Hours() / 24)
	refunded := false

	if elapsedDays <= s.cfg.RefundWindowDays {
		// Gateway first, ledger second: a gateway failure must leave local
		// state untouched.
		if plan.IsLifetime() {
			ch, err := s.gateway.RetrieveCharge(ctx, txn.ChargeID)
			if err != nil {
				return false, err
			}
			if err := s.gateway.CreateRefund(ctx, ch.ID); err != nil {
				return false, err
			}
		} else {
			if err := s.gateway.CancelSubscription(ctx, txn.StripeSubscriptionID); err != nil {
				return false, err
			}
		}
		refunded = true
	}

	var notifyUserID uint
	err = s.repo.Atomic(ctx, func(tx Repository) error {
		userID, err := CancelTransaction(tx, txn)
		if err != nil {
			return err
		}
		notifyUserID = userID
		return nil
	})
	if err != nil {
		return refunded, err
	}

	if notifyUserID != 0 {
		s.notifier.Notify(notifyUserID, NotificationCategory, MsgSubscriptionCancelled)
	}
	return refunded, nil
}

// SetAutoRenew toggles automatic renewal for the user's live transaction. The
// stored checkout session supplies the payment intent and the originally used
// payment method types; the gateway calls all precede the local write.
func (s *Service) SetAutoRenew(ctx context.Context, userID uint, enabled bool) error {
	txn, err := s.repo.GetLiveTransactionByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoActiveTransaction
		}
		return err
	}

	var data sessionData
	if err := json.Unmarshal([]byte(txn.RawSessionJSON), &data); err != nil {
		return fmt.Errorf("decode stored session for transaction %d: %w", txn.ID, err)
	}

	pi, err := s.gateway.RetrievePaymentIntent(ctx, data.PaymentIntent)
	if err != nil {
		return err
	}
	if pi.CustomerID == "" {
		if err := s.gateway.AttachPaymentMethod(ctx, pi.PaymentMethodID, txn.CustomerID); err != nil {
			return err
		}
	}

	var allowedTypes []string
	if !enabled {
		allowedTypes = data.PaymentMethodTypes
	}
	if err := s.gateway.CreateSetupIntent(ctx, txn.CustomerID, enabled, allowedTypes); err != nil {
		return err
	}

	err = s.repo.Atomic(ctx, func(tx Repository) error {
		txn.AutoRenew = enabled
		return tx.SaveTransaction(txn)
	})
	if err != nil {
		return err
	}

	msg := MsgAutoRenewEnabled
	if !enabled {
		msg = MsgAutoRenewDisabled
	}
	s.notifier.Notify(userID, NotificationCategory, msg)
	return nil
}

// ProvisionPlan creates the gateway product and price for a plan. Called on
// plan creation and again whenever price or duration change, since gateway
// prices are immutable: a changed price gets a fresh price id against the
// existing product.
func (s *Service) ProvisionPlan(ctx context.Context, plan *models.SubscriptionPlan) error {
	if plan.StripeProductID == "" {
		productID, err := s.gateway.CreateProduct(ctx, plan.PlanName)
		if err != nil {
			return err
		}
		plan.StripeProductID = productID
	}

	recurringMonths := plan.DurationMonths
	if plan.IsLifetime() {
		recurringMonths = 0
	}
	priceID, err := s.gateway.CreatePrice(ctx, plan.PriceCents(), s.cfg.Currency, plan.StripeProductID, recurringMonths)
	if err != nil {
		return err
	}
	plan.StripePriceID = priceID
	return nil
}

// LatestTransaction returns the most recent ledger entry for a user, or nil
// when the user never purchased.
func (s *Service) LatestTransaction(ctx context.Context, userID uint) (*models.TransactionRecord, error) {
	txns, err := s.repo.ListTransactionsByUser(userID, 1)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}
	return &txns[0], nil
}

// TransactionHistory returns the user's ledger entries, newest first.
func (s *Service) TransactionHistory(ctx context.Context, userID uint) ([]models.TransactionRecord, error) {
	return s.repo.ListTransactionsByUser(userID, 0)
}
