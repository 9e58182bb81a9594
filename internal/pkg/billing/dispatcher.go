package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/learnspherehq/learnsphere/app/models"
	"gorm.io/gorm"
)

// Dispatcher maps verified webhook events to state-machine transitions on the
// ledger. Every handler runs its read-decide-write sequence inside one
// repository transaction and is idempotent per external event id: redelivery
// of an already-processed event is a no-op.
type Dispatcher struct {
	repo     Repository
	gateway  Gateway
	notifier Notifier
}

func NewDispatcher(repo Repository, gateway Gateway, notifier Notifier) *Dispatcher {
	return &Dispatcher{repo: repo, gateway: gateway, notifier: notifier}
}

// Dispatch routes one verified event. A nil return includes deliberate drops
// (unknown user, unmatched plan, unknown charge): the gateway must see success
// for those so it stops retrying. ErrDuplicateEvent reports a redelivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventCheckoutCompleted:
		return d.handleCheckoutCompleted(ctx, ev)
	case EventChargeRefunded:
		return d.handleChargeRefunded(ctx, ev)
	case EventSubscriptionDeleted:
		return d.handleSubscriptionDeleted(ctx, ev)
	default:
		// Unhandled event kinds are already captured in the audit log.
		return nil
	}
}

func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, ev Event) error {
	var session checkoutSessionPayload
	if err := json.Unmarshal(ev.Raw, &session); err != nil {
		return fmt.Errorf("decode checkout.session: %w", err)
	}

	email := session.Metadata["user_email"]
	priceID := session.Metadata["price_id"]

	user, err := d.repo.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: dropping checkout %s: %v (email %q)", session.ID, ErrEventUnresolvable, email)
			return nil
		}
		return err
	}

	plan, err := d.repo.FindPlanByPriceRef(priceID, session.AmountTotal)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: dropping checkout %s: no plan matches price %q amount %d", session.ID, priceID, session.AmountTotal)
			return nil
		}
		return err
	}

	// The webhook payload carries the payment intent, not the charge; resolve
	// the charge id before opening the transaction so no state is written if
	// the gateway is unreachable.
	chargeID := ""
	if session.PaymentIntent != "" {
		pi, err := d.gateway.RetrievePaymentIntent(ctx, session.PaymentIntent)
		if err != nil {
			return fmt.Errorf("resolve charge for session %s: %w", session.ID, err)
		}
		chargeID = pi.LatestChargeID
	}

	activateAt := time.Unix(session.Created, 0)
	if session.Created == 0 {
		activateAt = ev.Created
	}

	err = d.repo.Atomic(ctx, func(tx Repository) error {
		created, err := tx.MarkEventProcessed(ev)
		if err != nil {
			return err
		}
		if !created {
			return ErrDuplicateEvent
		}
		// Second guard: the same logical purchase can arrive under distinct
		// event ids; the session id is the purchase's natural idempotency key.
		if _, err := tx.FindTransactionBySessionID(session.ID); err == nil {
			return ErrDuplicateEvent
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		txn := &models.TransactionRecord{
			UserID:               user.ID,
			PlanID:               plan.ID,
			CheckoutSessionID:    session.ID,
			ChargeID:             chargeID,
			CustomerID:           session.Customer,
			StripeSubscriptionID: session.Subscription,
			PaymentLink:          session.PaymentLink,
			PriceID:              plan.StripePriceID,
			ProductID:            plan.StripeProductID,
			RawSessionJSON:       string(ev.Raw),
			IsSubscribed:         true,
		}
		if err := tx.CreateTransaction(txn); err != nil {
			return err
		}

		sub, err := tx.GetOrCreateUserSubscription(user.ID, plan.ID)
		if err != nil {
			return err
		}
		sub.Status = models.SubscriptionStatusActivated
		sub.ActivateDate = &activateAt
		if plan.IsLifetime() {
			sub.DeactivateDate = nil
		} else {
			deactivateAt := activateAt.AddDate(0, plan.DurationMonths, 0)
			sub.DeactivateDate = &deactivateAt
		}
		return tx.SaveUserSubscription(sub)
	})
	if err != nil {
		return err
	}

	d.notifier.Notify(user.ID, NotificationCategory, MsgSubscriptionCreated)
	return nil
}

func (d *Dispatcher) handleChargeRefunded(ctx context.Context, ev Event) error {
	var ch chargePayload
	if err := json.Unmarshal(ev.Raw, &ch); err != nil {
		return fmt.Errorf("decode charge: %w", err)
	}
	return d.cancelByLookup(ctx, ev, func(tx Repository) (*models.TransactionRecord, error) {
		return tx.FindTransactionByChargeID(ch.ID)
	})
}

func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, ev Event) error {
	var sub subscriptionPayload
	if err := json.Unmarshal(ev.Raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	return d.cancelByLookup(ctx, ev, func(tx Repository) (*models.TransactionRecord, error) {
		return tx.FindTransactionBySubscriptionID(sub.ID, sub.Customer)
	})
}

// cancelByLookup applies the shared cancellation routine to whatever live
// transaction the lookup resolves. The refund or gateway-side cancellation
// already happened upstream, so no money moves here.
func (d *Dispatcher) cancelByLookup(ctx context.Context, ev Event, lookup func(Repository) (*models.TransactionRecord, error)) error {
	var notifyUserID uint
	err := d.repo.Atomic(ctx, func(tx Repository) error {
		created, err := tx.MarkEventProcessed(ev)
		if err != nil {
			return err
		}
		if !created {
			return ErrDuplicateEvent
		}

		txn, err := lookup(tx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Nothing to cancel; keep the processed marker so a retry
				// stays a no-op.
				return nil
			}
			return err
		}

		userID, err := CancelTransaction(tx, txn)
		if err != nil {
			return err
		}
		notifyUserID = userID
		return nil
	})
	if err != nil {
		return err
	}

	if notifyUserID != 0 {
		d.notifier.Notify(notifyUserID, NotificationCategory, MsgSubscriptionCancelled)
	}
	return nil
}

// CancelTransaction is the cancellation routine shared by the webhook path and
// the user-initiated path. It must run inside an Atomic block: it flips the
// ledger row to not-subscribed, marks the matching activated subscription
// cancelled, and wipes the user's accumulated progress. Returns the user id to
// notify, or 0 when no activated subscription was found.
func CancelTransaction(tx Repository, txn *models.TransactionRecord) (uint, error) {
	txn.IsSubscribed = false
	if err := tx.SaveTransaction(txn); err != nil {
		return 0, err
	}

	sub, err := tx.GetActivatedSubscription(txn.UserID, txn.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.DeleteProgressArtifacts(txn.UserID); err != nil {
				return 0, err
			}
			return 0, nil
		}
		return 0, err
	}

	sub.Status = models.SubscriptionStatusCancelled
	if err := tx.SaveUserSubscription(sub); err != nil {
		return 0, err
	}

	if err := tx.DeleteProgressArtifacts(txn.UserID); err != nil {
		return 0, err
	}
	return txn.UserID, nil
}
