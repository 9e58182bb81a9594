package models

import (
	"time"

	"gorm.io/gorm"
)

// Activation statuses for a user's relationship to a plan.
const (
	SubscriptionStatusActivated = "activated"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// UserSubscription tracks one purchase lineage of (user, plan). A cancelled or
// expired row is terminal; a new purchase creates a fresh activation instead of
// resurrecting it. At most one row per user may be activated at a time, which
// is enforced at payment-link creation.
type UserSubscription struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	UserID         uint             `gorm:"not null;index:idx_user_subscriptions_user_status,priority:1" json:"user_id"`
	User           User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PlanID         uint             `gorm:"not null;index" json:"plan_id"`
	Plan           SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Status         string           `gorm:"type:varchar(15);not null;default:'expired';index:idx_user_subscriptions_user_status,priority:2" json:"status"`
	ActivateDate   *time.Time       `gorm:"type:timestamp;default:null" json:"activate_date,omitempty"`
	DeactivateDate *time.Time       `gorm:"type:timestamp;default:null" json:"deactivate_date,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-"`
}

// IsActivated reports whether this lineage currently grants access.
func (s *UserSubscription) IsActivated() bool {
	return s.Status == SubscriptionStatusActivated
}
