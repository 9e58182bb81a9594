package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/learnspherehq/learnsphere/internal/pkg/billing"
	"github.com/learnspherehq/learnsphere/internal/pkg/database"
	"github.com/learnspherehq/learnsphere/internal/pkg/env"
	"github.com/learnspherehq/learnsphere/internal/pkg/metrics/counter"
	"github.com/learnspherehq/learnsphere/internal/pkg/usercontext"
)

func newBillingService() *billing.Service {
	db := database.GetDB()
	gateway := billing.NewStripeGatewayFromEnv()
	sendMails := env.GetEnv("MAIL_RECEIPTS_ENABLED", "false") == "true"
	return billing.NewServiceFromDB(db, gateway, billing.NewNotifier(db, sendMails), billing.ConfigFromEnv())
}

// HandleStripeWebhook receives gateway webhook deliveries. The raw payload is
// written to the audit log before the signature is checked, so even forged or
// malformed requests leave a trace.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	db := database.GetDB()
	repo := billing.NewRepository(db)
	gateway := billing.NewStripeGatewayFromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = counter.AddWebhook(counter.FieldReceived)

	// Best-effort type extraction for the audit row; verification happens below.
	var probe struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(rawBody, &probe)

	event, verifyErr := gateway.VerifyWebhookSignature(rawBody, signature)
	if err := repo.RecordWebhookEvent(probe.Type, string(rawBody), verifyErr == nil); err != nil {
		log.Printf("webhook: failed to persist audit row: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if verifyErr != nil {
		_ = counter.AddWebhook(counter.FieldRejected)
		if errors.Is(verifyErr, billing.ErrSignatureMissing) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "signature_missing"})
		}
		if errors.Is(verifyErr, billing.ErrInvalidSignature) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Printf("webhook: verification failed: %v", verifyErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "verification_failed"})
	}

	sendMails := env.GetEnv("MAIL_RECEIPTS_ENABLED", "false") == "true"
	dispatcher := billing.NewDispatcher(repo, gateway, billing.NewNotifier(db, sendMails))
	if err := dispatcher.Dispatch(ctx, *event); err != nil {
		if errors.Is(err, billing.ErrDuplicateEvent) {
			_ = counter.AddWebhook(counter.FieldDuplicate)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		}
		// Handler failures are absorbed: the event is already in the audit log
		// and returning an error would only trigger a retry storm. Nothing was
		// marked processed, so a later redelivery can still succeed.
		_ = counter.AddWebhook(counter.FieldIgnored)
		log.Printf("webhook: dispatch of %s %s failed: %v", event.Type, event.ID, err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}

	_ = counter.AddWebhook(counter.FieldProcessed)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleCreatePaymentLink issues a checkout URL for the plan in the route param.
func HandleCreatePaymentLink(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	planID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_plan_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	svc := newBillingService()
	url, err := svc.CreatePaymentLink(ctx, userCtx.UserID, uint(planID))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrPlanNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "plan_not_found"})
		case errors.Is(err, billing.ErrAlreadySubscribed):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "already_subscribed", "message": "An active subscription already exists"})
		case errors.Is(err, billing.ErrGatewayRejected):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "gateway_rejected"})
		case errors.Is(err, billing.ErrGatewayUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_unavailable"})
		}
		log.Printf("payment link for user %d plan %d failed: %v", userCtx.UserID, planID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"payment_link": url})
}

// HandleCancelSubscription executes the cancellation policy for the caller.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	svc := newBillingService()
	refunded, err := svc.Cancel(ctx, userCtx.UserID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNoActiveTransaction):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_active_transaction", "message": "No active purchase to cancel"})
		case errors.Is(err, billing.ErrNoActiveSubscription):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_active_subscription", "message": "No activated subscription to cancel"})
		case errors.Is(err, billing.ErrGatewayRejected):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "gateway_rejected"})
		case errors.Is(err, billing.ErrGatewayUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_unavailable"})
		}
		log.Printf("cancel for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "refunded": refunded})
}

// HandleSetAutoRenew toggles automatic renewal for the caller's live purchase.
func HandleSetAutoRenew(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	svc := newBillingService()
	if err := svc.SetAutoRenew(ctx, userCtx.UserID, req.Enabled); err != nil {
		switch {
		case errors.Is(err, billing.ErrNoActiveTransaction):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_active_transaction", "message": "No active purchase to update"})
		case errors.Is(err, billing.ErrGatewayRejected):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "gateway_rejected"})
		case errors.Is(err, billing.ErrGatewayUnavailable):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_unavailable"})
		}
		log.Printf("auto-renew toggle for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "auto_renew": req.Enabled})
}

// HandleTransactionHistory returns the caller's ledger, newest first.
func HandleTransactionHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc := newBillingService()
	txns, err := svc.TransactionHistory(ctx, userCtx.UserID)
	if err != nil {
		log.Printf("transaction history for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"transactions": txns})
}

// HandleLatestTransaction returns the caller's most recent ledger entry.
func HandleLatestTransaction(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc := newBillingService()
	txn, err := svc.LatestTransaction(ctx, userCtx.UserID)
	if err != nil {
		log.Printf("latest transaction for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if txn == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_transactions"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"transaction": txn})
}
