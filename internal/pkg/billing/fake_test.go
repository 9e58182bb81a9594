package billing

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/learnspherehq/learnsphere/app/models"
)

// fakeRepo is an in-memory Repository for exercising the dispatcher and the
// service without a database. Atomic runs the callback against the same
// store; rollback semantics are not simulated.
type fakeRepo struct {
	users     map[uint]*models.User
	plans     map[uint]*models.SubscriptionPlan
	txns      []*models.TransactionRecord
	subs      []*models.UserSubscription
	processed map[string]bool
	webhooks  []models.WebhookEvent

	progressRows  map[uint]int
	progressWipes int

	nextID uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:        map[uint]*models.User{},
		plans:        map[uint]*models.SubscriptionPlan{},
		processed:    map[string]bool{},
		progressRows: map[uint]int{},
		nextID:       1,
	}
}

func (r *fakeRepo) addUser(u *models.User) *models.User {
	if u.ID == 0 {
		u.ID = r.nextID
		r.nextID++
	}
	r.users[u.ID] = u
	return u
}

func (r *fakeRepo) addPlan(p *models.SubscriptionPlan) *models.SubscriptionPlan {
	if p.ID == 0 {
		p.ID = r.nextID
		r.nextID++
	}
	r.plans[p.ID] = p
	return p
}

func (r *fakeRepo) Atomic(ctx context.Context, fn func(Repository) error) error {
	return fn(r)
}

func (r *fakeRepo) RecordWebhookEvent(eventType string, payloadJSON string, signatureValid bool) error {
	r.webhooks = append(r.webhooks, models.WebhookEvent{
		EventType:      eventType,
		PayloadJSON:    payloadJSON,
		SignatureValid: signatureValid,
	})
	return nil
}

func (r *fakeRepo) MarkEventProcessed(ev Event) (bool, error) {
	key := ev.DedupeKey()
	if r.processed[key] {
		return false, nil
	}
	r.processed[key] = true
	return true, nil
}

func (r *fakeRepo) GetUserByID(id uint) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeRepo) GetUserByEmail(email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetPlanByID(id uint) (*models.SubscriptionPlan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *fakeRepo) FindPlanByPriceRef(priceID string, amountCents int64) (*models.SubscriptionPlan, error) {
	for _, p := range r.plans {
		if p.StripePriceID == priceID && p.MatchesAmount(amountCents) {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListActivePlans() ([]models.SubscriptionPlan, error) {
	var out []models.SubscriptionPlan
	for _, p := range r.plans {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) PlanDisplayOrderTaken(order int) (bool, error) {
	for _, p := range r.plans {
		if p.DisplayOrder == order {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) CreatePlan(plan *models.SubscriptionPlan) error {
	r.addPlan(plan)
	return nil
}

func (r *fakeRepo) SavePlan(plan *models.SubscriptionPlan) error {
	r.plans[plan.ID] = plan
	return nil
}

func (r *fakeRepo) CreateTransaction(txn *models.TransactionRecord) error {
	for _, existing := range r.txns {
		if existing.CheckoutSessionID == txn.CheckoutSessionID {
			return errors.New("duplicate checkout session id")
		}
	}
	txn.ID = r.nextID
	r.nextID++
	r.txns = append(r.txns, txn)
	return nil
}

func (r *fakeRepo) SaveTransaction(txn *models.TransactionRecord) error {
	for i, existing := range r.txns {
		if existing.ID == txn.ID {
			r.txns[i] = txn
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetLiveTransactionByUser(userID uint) (*models.TransactionRecord, error) {
	for i := len(r.txns) - 1; i >= 0; i-- {
		if r.txns[i].UserID == userID && r.txns[i].IsSubscribed {
			return r.txns[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) FindTransactionBySessionID(sessionID string) (*models.TransactionRecord, error) {
	for _, txn := range r.txns {
		if txn.CheckoutSessionID == sessionID {
			return txn, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) FindTransactionByChargeID(chargeID string) (*models.TransactionRecord, error) {
	for _, txn := range r.txns {
		if txn.ChargeID == chargeID {
			return txn, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) FindTransactionBySubscriptionID(subscriptionID, customerID string) (*models.TransactionRecord, error) {
	for _, txn := range r.txns {
		if txn.StripeSubscriptionID == subscriptionID && txn.CustomerID == customerID {
			return txn, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListTransactionsByUser(userID uint, limit int) ([]models.TransactionRecord, error) {
	var out []models.TransactionRecord
	for i := len(r.txns) - 1; i >= 0; i-- {
		if r.txns[i].UserID == userID {
			out = append(out, *r.txns[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) GetOrCreateUserSubscription(userID, planID uint) (*models.UserSubscription, error) {
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.PlanID == planID {
			return sub, nil
		}
	}
	sub := &models.UserSubscription{
		ID:     r.nextID,
		UserID: userID,
		PlanID: planID,
		Status: models.SubscriptionStatusExpired,
	}
	r.nextID++
	r.subs = append(r.subs, sub)
	return sub, nil
}

func (r *fakeRepo) GetActivatedSubscription(userID, planID uint) (*models.UserSubscription, error) {
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.PlanID == planID && sub.Status == models.SubscriptionStatusActivated {
			return sub, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) HasActivatedSubscription(userID uint) (bool, error) {
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.Status == models.SubscriptionStatusActivated {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) SaveUserSubscription(sub *models.UserSubscription) error {
	for i, existing := range r.subs {
		if existing.ID == sub.ID {
			r.subs[i] = sub
			return nil
		}
	}
	r.subs = append(r.subs, sub)
	return nil
}

func (r *fakeRepo) DeleteProgressArtifacts(userID uint) error {
	r.progressRows[userID] = 0
	r.progressWipes++
	return nil
}

// fakeGateway records calls and returns canned responses.
type fakeGateway struct {
	session *CheckoutSession
	intent  *PaymentIntent
	charge  *Charge

	checkoutErr error
	intentErr   error
	chargeErr   error
	refundErr   error
	cancelErr   error

	checkoutCalls []fakeCheckoutCall
	refunds       []string
	cancelled     []string
	attached      []string
	setupIntents  []bool
	products      []string
	prices        []int64
}

type fakeCheckoutCall struct {
	priceID  string
	mode     CheckoutMode
	email    string
	metadata map[string]string
}

func (g *fakeGateway) CreateProduct(ctx context.Context, name string) (string, error) {
	g.products = append(g.products, name)
	return "prod_fake", nil
}

func (g *fakeGateway) CreatePrice(ctx context.Context, amountCents int64, currency, productID string, recurringMonths int) (string, error) {
	g.prices = append(g.prices, amountCents)
	return "price_fake", nil
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, priceID string, mode CheckoutMode, customerEmail string, metadata map[string]string) (*CheckoutSession, error) {
	g.checkoutCalls = append(g.checkoutCalls, fakeCheckoutCall{priceID: priceID, mode: mode, email: customerEmail, metadata: metadata})
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	if g.session != nil {
		return g.session, nil
	}
	return &CheckoutSession{ID: "cs_fake", URL: "https://checkout.example/cs_fake"}, nil
}

func (g *fakeGateway) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	if g.intent != nil {
		return g.intent, nil
	}
	return &PaymentIntent{ID: id, CustomerID: "cus_fake", PaymentMethodID: "pm_fake", LatestChargeID: "ch_fake"}, nil
}

func (g *fakeGateway) RetrieveCharge(ctx context.Context, id string) (*Charge, error) {
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	if g.charge != nil {
		return g.charge, nil
	}
	return &Charge{ID: id, AmountCents: 9900}, nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, chargeID string) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, chargeID)
	return nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, subscriptionID)
	return nil
}

func (g *fakeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	g.attached = append(g.attached, paymentMethodID)
	return nil
}

func (g *fakeGateway) CreateSetupIntent(ctx context.Context, customerID string, enabled bool, allowedTypes []string) error {
	g.setupIntents = append(g.setupIntents, enabled)
	return nil
}

func (g *fakeGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (*Event, error) {
	return nil, errors.New("not implemented in fake")
}
