package models

import (
	"time"

	"gorm.io/gorm"
)

// TransactionRecord is an append-only ledger entry created per completed
// checkout. Rows are mutated in place only to flip is_subscribed/auto_renew
// and are never deleted. The checkout session id is the external idempotency
// key for a purchase.
type TransactionRecord struct {
	ID                   uint             `gorm:"primaryKey" json:"id"`
	UserID               uint             `gorm:"not null;index:idx_transaction_records_user_live,priority:1" json:"user_id"`
	User                 User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PlanID               uint             `gorm:"not null;index" json:"plan_id"`
	Plan                 SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	CheckoutSessionID    string           `gorm:"type:varchar(255);uniqueIndex:ux_transaction_records_session" json:"checkout_session_id"`
	ChargeID             string           `gorm:"type:varchar(255);default:null;index" json:"charge_id"`
	CustomerID           string           `gorm:"type:varchar(255);default:null;index" json:"customer_id"`
	StripeSubscriptionID string           `gorm:"type:varchar(255);default:null;index" json:"stripe_subscription_id"`
	PaymentLink          string           `gorm:"type:text" json:"payment_link"`
	PriceID              string           `gorm:"type:varchar(255);default:null" json:"price_id"`
	ProductID            string           `gorm:"type:varchar(255);default:null" json:"product_id"`
	RawSessionJSON       string           `gorm:"column:data;type:longtext" json:"-"`
	IsSubscribed         bool             `gorm:"default:false;index:idx_transaction_records_user_live,priority:2" json:"is_subscribed"`
	AutoRenew            bool             `gorm:"default:false" json:"auto_renew"`
	CreatedAt            time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt   `gorm:"index" json:"-"`
}
