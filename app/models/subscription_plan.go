package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LifetimeDuration is the sentinel duration (in months) for plans that are
// billed once and never expire.
const LifetimeDuration = 0

// SubscriptionPlan is a catalog entry users can purchase. Price and duration
// edits must re-provision the gateway price id (see billing.Service.ProvisionPlan).
type SubscriptionPlan struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	PlanName         string          `gorm:"type:varchar(255);not null" json:"plan_name" validate:"required,max=255"`
	MembershipLevel  string          `gorm:"type:varchar(24);default:''" json:"membership_level" validate:"max=24"`
	DurationMonths   int             `gorm:"default:0" json:"duration_months" validate:"gte=0"`
	Price            decimal.Decimal `gorm:"type:decimal(8,2);not null" json:"price"`
	StripePriceID    string          `gorm:"type:varchar(255);default:null" json:"stripe_price_id"`
	StripeProductID  string          `gorm:"type:varchar(255);default:null" json:"stripe_product_id"`
	Description      string          `gorm:"type:json" json:"description"`
	UnlockChatFeature bool           `gorm:"default:false" json:"unlock_chat_feature"`
	DisplayOrder     int             `gorm:"column:display_order;default:0;index" json:"display_order"`
	IsActive         bool            `gorm:"default:true;index" json:"is_active"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (p *SubscriptionPlan) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// IsLifetime reports whether the plan is billed once and never expires.
func (p *SubscriptionPlan) IsLifetime() bool {
	return p.DurationMonths == LifetimeDuration
}

// PriceCents returns the plan price in the gateway's minor currency unit.
func (p *SubscriptionPlan) PriceCents() int64 {
	return p.Price.Mul(decimal.NewFromInt(100)).IntPart()
}

// MatchesAmount reports whether a charged amount (in cents) equals the plan price.
// Used to cross-check webhook amounts against the catalog before activation.
func (p *SubscriptionPlan) MatchesAmount(amountCents int64) bool {
	return p.Price.Equal(decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100)))
}
