package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/learnspherehq/learnsphere/app/models"
	"github.com/learnspherehq/learnsphere/internal/pkg/billing"
	"github.com/learnspherehq/learnsphere/internal/pkg/cache"
	"github.com/learnspherehq/learnsphere/internal/pkg/database"
)

const (
	plansCacheKey = "catalog:plans:active"
	plansCacheTTL = 5 * time.Minute
)

// HandleListPlans returns the active plan catalog, cached in Redis.
func HandleListPlans(c *fiber.Ctx) error {
	if cached, err := cache.Get(plansCacheKey); err == nil {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).SendString(cached)
	} else if !cache.IsNotFound(err) {
		log.Printf("plan cache read failed: %v", err)
	}

	repo := billing.NewRepository(database.GetDB())
	plans, err := repo.ListActivePlans()
	if err != nil {
		log.Printf("plan listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	body, err := json.Marshal(fiber.Map{"plans": plans})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if err := cache.Set(plansCacheKey, string(body), plansCacheTTL); err != nil {
		log.Printf("plan cache write failed: %v", err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(body)
}

type planRequest struct {
	PlanName          string `json:"plan_name"`
	MembershipLevel   string `json:"membership_level"`
	DurationMonths    int    `json:"duration_months"`
	Price             string `json:"price"`
	Description       string `json:"description"`
	UnlockChatFeature bool   `json:"unlock_chat_feature"`
	DisplayOrder      int    `json:"display_order"`
}

// HandleCreatePlan creates a catalog plan and provisions its gateway product
// and price. Admin only.
func HandleCreatePlan(c *fiber.Ctx) error {
	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_price"})
	}

	plan := &models.SubscriptionPlan{
		PlanName:          req.PlanName,
		MembershipLevel:   req.MembershipLevel,
		DurationMonths:    req.DurationMonths,
		Price:             price,
		Description:       req.Description,
		UnlockChatFeature: req.UnlockChatFeature,
		DisplayOrder:      req.DisplayOrder,
		IsActive:          true,
	}
	if err := plan.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	repo := billing.NewRepository(database.GetDB())
	taken, err := repo.PlanDisplayOrderTaken(req.DisplayOrder)
	if err != nil {
		log.Printf("plan display order check failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if taken {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "display_order_taken", "message": "A plan with this display order already exists"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Gateway first: a failed provisioning must not leave an unprovisioned
	// catalog row behind.
	svc := newBillingService()
	if err := svc.ProvisionPlan(ctx, plan); err != nil {
		if errors.Is(err, billing.ErrGatewayRejected) || errors.Is(err, billing.ErrGatewayUnavailable) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_provisioning_failed"})
		}
		log.Printf("plan provisioning failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	if err := repo.CreatePlan(plan); err != nil {
		log.Printf("plan creation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	if err := cache.Delete(plansCacheKey); err != nil {
		log.Printf("plan cache invalidation failed: %v", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"plan": plan})
}

// HandleUpdatePlan edits a plan. A changed price or duration gets a fresh
// gateway price id against the existing product.
func HandleUpdatePlan(c *fiber.Ctx) error {
	planID, err := c.ParamsInt("id")
	if err != nil || planID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_plan_id"})
	}

	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_price"})
	}

	repo := billing.NewRepository(database.GetDB())
	plan, err := repo.GetPlanByID(uint(planID))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "plan_not_found"})
	}

	repriced := !plan.Price.Equal(price) || plan.DurationMonths != req.DurationMonths

	plan.PlanName = req.PlanName
	plan.MembershipLevel = req.MembershipLevel
	plan.DurationMonths = req.DurationMonths
	plan.Price = price
	plan.Description = req.Description
	plan.UnlockChatFeature = req.UnlockChatFeature
	if err := plan.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if repriced {
		svc := newBillingService()
		if err := svc.ProvisionPlan(ctx, plan); err != nil {
			if errors.Is(err, billing.ErrGatewayRejected) || errors.Is(err, billing.ErrGatewayUnavailable) {
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_provisioning_failed"})
			}
			log.Printf("plan re-provisioning failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}

	if err := repo.SavePlan(plan); err != nil {
		log.Printf("plan update failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	if err := cache.Delete(plansCacheKey); err != nil {
		log.Printf("plan cache invalidation failed: %v", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"plan": plan})
}
