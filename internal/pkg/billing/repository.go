package billing

import (
	"context"

	"github.com/learnspherehq/learnsphere/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing engine. Atomic runs a
// read-decide-write sequence against a single transaction so a crash or a
// concurrent request can never leave a transaction record and its paired
// subscription in disagreeing states.
type Repository interface {
	Atomic(ctx context.Context, fn func(Repository) error) error

	RecordWebhookEvent(eventType string, payloadJSON string, signatureValid bool) error
	MarkEventProcessed(ev Event) (bool, error)

	GetUserByID(id uint) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)

	GetPlanByID(id uint) (*models.SubscriptionPlan, error)
	FindPlanByPriceRef(priceID string, amountCents int64) (*models.SubscriptionPlan, error)
	ListActivePlans() ([]models.SubscriptionPlan, error)
	PlanDisplayOrderTaken(order int) (bool, error)
	CreatePlan(plan *models.SubscriptionPlan) error
	SavePlan(plan *models.SubscriptionPlan) error

	CreateTransaction(txn *models.TransactionRecord) error
	SaveTransaction(txn *models.TransactionRecord) error
	GetLiveTransactionByUser(userID uint) (*models.TransactionRecord, error)
	FindTransactionBySessionID(sessionID string) (*models.TransactionRecord, error)
	FindTransactionByChargeID(chargeID string) (*models.TransactionRecord, error)
	FindTransactionBySubscriptionID(subscriptionID, customerID string) (*models.TransactionRecord, error)
	ListTransactionsByUser(userID uint, limit int) ([]models.TransactionRecord, error)

	GetOrCreateUserSubscription(userID, planID uint) (*models.UserSubscription, error)
	GetActivatedSubscription(userID, planID uint) (*models.UserSubscription, error)
	HasActivatedSubscription(userID uint) (bool, error)
	SaveUserSubscription(sub *models.UserSubscription) error

	DeleteProgressArtifacts(userID uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Atomic(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) RecordWebhookEvent(eventType string, payloadJSON string, signatureValid bool) error {
	return r.db.Create(&models.WebhookEvent{
		EventType:      eventType,
		PayloadJSON:    payloadJSON,
		SignatureValid: signatureValid,
	}).Error
}

func (r *gormRepository) MarkEventProcessed(ev Event) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_key"}},
		DoNothing: true,
	}).Create(&models.ProcessedEvent{
		EventKey:  ev.DedupeKey(),
		EventType: string(ev.Type),
	})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetPlanByID(id uint) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindPlanByPriceRef matches a plan on the gateway price id AND the charged
// amount. The amount cross-check defends against price tampering; the
// comparison happens on the decimal value, not in SQL.
func (r *gormRepository) FindPlanByPriceRef(priceID string, amountCents int64) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.Where("stripe_price_id = ?", priceID).First(&plan).Error; err != nil {
		return nil, err
	}
	if !plan.MatchesAmount(amountCents) {
		return nil, gorm.ErrRecordNotFound
	}
	return &plan, nil
}

func (r *gormRepository) ListActivePlans() ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Where("is_active = ?", true).Order("display_order ASC").Find(&plans).Error
	return plans, err
}

func (r *gormRepository) PlanDisplayOrderTaken(order int) (bool, error) {
	var count int64
	err := r.db.Model(&models.SubscriptionPlan{}).Where("display_order = ?", order).Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) CreatePlan(plan *models.SubscriptionPlan) error {
	return r.db.Create(plan).Error
}

func (r *gormRepository) SavePlan(plan *models.SubscriptionPlan) error {
	return r.db.Save(plan).Error
}

func (r *gormRepository) CreateTransaction(txn *models.TransactionRecord) error {
	return r.db.Create(txn).Error
}

func (r *gormRepository) SaveTransaction(txn *models.TransactionRecord) error {
	return r.db.Save(txn).Error
}

func (r *gormRepository) GetLiveTransactionByUser(userID uint) (*models.TransactionRecord, error) {
	var txn models.TransactionRecord
	err := r.db.Where("user_id = ? AND is_subscribed = ?", userID, true).
		Order("created_at DESC").First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) FindTransactionBySessionID(sessionID string) (*models.TransactionRecord, error) {
	var txn models.TransactionRecord
	if err := r.db.Where("checkout_session_id = ?", sessionID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) FindTransactionByChargeID(chargeID string) (*models.TransactionRecord, error) {
	var txn models.TransactionRecord
	if err := r.db.Where("charge_id = ?", chargeID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) FindTransactionBySubscriptionID(subscriptionID, customerID string) (*models.TransactionRecord, error) {
	var txn models.TransactionRecord
	err := r.db.Where("stripe_subscription_id = ? AND customer_id = ?", subscriptionID, customerID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) ListTransactionsByUser(userID uint, limit int) ([]models.TransactionRecord, error) {
	var txns []models.TransactionRecord
	q := r.db.Where("user_id = ?", userID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txns).Error
	return txns, err
}

func (r *gormRepository) GetOrCreateUserSubscription(userID, planID uint) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Where("user_id = ? AND plan_id = ?", userID, planID).First(&sub).Error
	if err == nil {
		return &sub, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	sub = models.UserSubscription{
		UserID: userID,
		PlanID: planID,
		Status: models.SubscriptionStatusExpired,
	}
	if err := r.db.Create(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetActivatedSubscription(userID, planID uint) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Where("user_id = ? AND plan_id = ? AND status = ?",
		userID, planID, models.SubscriptionStatusActivated).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) HasActivatedSubscription(userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserSubscription{}).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActivated).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) SaveUserSubscription(sub *models.UserSubscription) error {
	return r.db.Save(sub).Error
}

// DeleteProgressArtifacts removes everything a user accumulated while
// subscribed. Deleting already-empty data is a no-op, so the wipe is
// idempotent across repeated cancellations.
func (r *gormRepository) DeleteProgressArtifacts(userID uint) error {
	if err := r.db.Where("user_id = ?", userID).Delete(&models.TopicProgress{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("user_id = ?", userID).Delete(&models.QuizResult{}).Error; err != nil {
		return err
	}
	return r.db.Where("user_id = ?", userID).Delete(&models.DashboardProgress{}).Error
}
