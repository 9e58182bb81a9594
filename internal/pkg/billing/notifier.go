package billing

import (
	"log"

	"github.com/learnspherehq/learnsphere/app/models"
	"github.com/learnspherehq/learnsphere/internal/pkg/mail"
	"gorm.io/gorm"
)

// Lifecycle notification messages.
const (
	NotificationCategory     = "subscription"
	MsgSubscriptionCreated   = "Subscription created successfully!"
	MsgSubscriptionCancelled = "Subscription canceled successfully"
	MsgAutoRenewEnabled      = "Subscription changed to auto renewal successfully."
	MsgAutoRenewDisabled     = "Subscription auto renewal disabled successfully."
)

// Notifier delivers lifecycle events to the notification subsystem.
// Delivery is fire-and-forget: failures are logged and never abort the
// calling operation.
type Notifier interface {
	Notify(userID uint, category, message string)
}

type dbNotifier struct {
	db        *gorm.DB
	sendMails bool
}

// NewNotifier creates a notifier that persists notification rows and mirrors
// them as e-mail receipts when sendMails is set.
func NewNotifier(db *gorm.DB, sendMails bool) Notifier {
	return &dbNotifier{db: db, sendMails: sendMails}
}

func (n *dbNotifier) Notify(userID uint, category, message string) {
	if err := models.CreateNotification(n.db, userID, category, message, userID); err != nil {
		log.Printf("notifier: failed to create notification for user %d: %v", userID, err)
	}

	if !n.sendMails {
		return
	}
	var user models.User
	if err := n.db.First(&user, userID).Error; err != nil {
		log.Printf("notifier: failed to resolve user %d for mail receipt: %v", userID, err)
		return
	}
	go func(to, body string) {
		_ = mail.SendMail(to, "LearnSphere subscription update", body)
	}(user.Email, message)
}

// NopNotifier discards all notifications. Used in tests.
type NopNotifier struct{}

func (NopNotifier) Notify(userID uint, category, message string) {}
