package billing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnspherehq/learnsphere/app/models"
)

func testConfig() Config {
	return Config{
		RefundWindowDays: 30,
		Currency:         "aed",
		SuccessURL:       "https://app.example/payment/success",
		CancelURL:        "https://app.example/payment/cancel",
	}
}

func newTestService(repo *fakeRepo, gw *fakeGateway) *Service {
	return NewService(repo, gw, NopNotifier{}, testConfig())
}

func TestCreatePaymentLinkRecurringPlan(t *testing.T) {
	repo, user, plan := seedCheckoutFixture(t, 6)
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)

	url, err := svc.CreatePaymentLink(context.Background(), user.ID, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_fake", url)

	require.Len(t, gw.checkoutCalls, 1)
	call := gw.checkoutCalls[0]
	assert.Equal(t, CheckoutModeSubscription, call.mode)
	assert.Equal(t, plan.StripePriceID, call.priceID)
	assert.Equal(t, user.Email, call.email)
	assert.Equal(t, user.Email, call.metadata["user_email"])
	assert.Equal(t, plan.StripePriceID, call.metadata["price_id"])
	assert.NotEmpty(t, call.metadata["client_ref"])
}

func TestCreatePaymentLinkLifetimePlanUsesPaymentMode(t *testing.T) {
	repo, user, plan := seedCheckoutFixture(t, models.LifetimeDuration)
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)

	_, err := svc.CreatePaymentLink(context.Background(), user.ID, plan.ID)
	require.NoError(t, err)
	require.Len(t, gw.checkoutCalls, 1)
	assert.Equal(t, CheckoutModePayment, gw.checkoutCalls[0].mode)
}

func TestCreatePaymentLinkPlanNotFound(t *testing.T) {
	repo, user, _ := seedCheckoutFixture(t, 6)
	svc := newTestService(repo, &fakeGateway{})

	_, err := svc.CreatePaymentLink(context.Background(), user.ID, 999)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCreatePaymentLinkRejectsSecondActiveSubscription(t *testing.T) {
	repo, user, plan := seedCheckoutFixture(t, 6)
	seedLiveTransaction(repo, user, plan)
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)

	_, err := svc.CreatePaymentLink(context.Background(), user.ID, plan.ID)
	assert.ErrorIs(t, err, ErrAlreadySubscribed)
	assert.Empty(t, gw.checkoutCalls)
}

func cancelFixture(t *testing.T, months, daysSinceActivation int) (*fakeRepo, *fakeGateway, *Service, *models.User) {
	t.Helper()
	repo, user, plan := seedCheckoutFixture(t, months)
	seedLiveTransaction(repo, user, plan)
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)
	activate := *repo.subs[0].ActivateDate
	svc.now = func() time.Time { return activate.AddDate(0, 0, daysSinceActivation) }
	return repo, gw, svc, user
}

func TestCancelWithinWindowRecurringPlanCancelsAtGateway(t *testing.T) {
	repo, gw, svc, user := cancelFixture(t, 6, 10)

	refunded, err := svc.Cancel(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, refunded)

	assert.Equal(t, []string{"sub_live"}, gw.cancelled)
	assert.Empty(t, gw.refunds)
	assert.False(t, repo.txns[0].IsSubscribed)
	assert.Equal(t, models.SubscriptionStatusCancelled, repo.subs[0].Status)
	assert.Equal(t, 0, repo.progressRows[user.ID])
}

func TestCancelWithinWindowLifetimePlanRefundsCharge(t *testing.T) {
	repo, gw, svc, user := cancelFixture(t, models.LifetimeDuration, 10)

	refunded, err := svc.Cancel(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, refunded)

	assert.Equal(t, []string{"ch_live"}, gw.refunds)
	assert.Empty(t, gw.cancelled)
	assert.False(t, repo.txns[0].IsSubscribed)
}

func TestCancelOnWindowBoundaryStillRefunds(t *testing.T) {
	_, gw, svc, user := cancelFixture(t, 6, 30)

	refunded, err := svc.Cancel(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, refunded)
	assert.Len(t, gw.cancelled, 1)
}

func TestCancelOutsideWindowSkipsGateway(t *testing.T) {
	repo, gw, svc, user := cancelFixture(t, 6, 40)

	refunded, err := svc.Cancel(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, refunded)

	assert.Empty(t, gw.refunds)
	assert.Empty(t, gw.cancelled)
	// The local cancellation still happens.
	assert.False(t, repo.txns[0].IsSubscribed)
	assert.Equal(t, models.SubscriptionStatusCancelled, repo.subs[0].Status)
	assert.Equal(t, 0, repo.progressRows[user.ID])
}

func TestCancelGatewayFailureLeavesStateUntouched(t *testing.T) {
	repo, gw, svc, user := cancelFixture(t, 6, 10)
	gw.cancelErr = ErrGatewayUnavailable

	_, err := svc.Cancel(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	assert.True(t, repo.txns[0].IsSubscribed)
	assert.Equal(t, models.SubscriptionStatusActivated, repo.subs[0].Status)
	assert.Equal(t, 12, repo.progressRows[user.ID])
}

func TestCancelWithoutLiveTransaction(t *testing.T) {
	repo, user, _ := seedCheckoutFixture(t, 6)
	svc := newTestService(repo, &fakeGateway{})

	_, err := svc.Cancel(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrNoActiveTransaction)
}

func TestCancelWithoutActivatedSubscription(t *testing.T) {
	repo, user, plan := seedCheckoutFixture(t, 6)
	seedLiveTransaction(repo, user, plan)
	repo.subs[0].Status = models.SubscriptionStatusExpired
	svc := newTestService(repo, &fakeGateway{})

	_, err := svc.Cancel(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestSetAutoRenewEnable(t *testing.T) {
	repo, user, plan := seedCheckoutFixture(t, 6)
	seedLiveTransaction(repo, user, plan)
	gw := &fakeGateway{intent: &PaymentIntent{ID: "pi_live", CustomerID: "cus_live", PaymentMethodID: "pm_1"}}
	svc := newTestService(repo, gw)

	require.NoError(t, svc.SetAutoRenew(context.Background(), user.ID, true))

	assert.True(t, repo.txns[0].AutoRenew)
	assert.Empty(t, gw.attached)
	assert.Equal(t, []bool{true}, gw.setupIntents)
}

func TestSetAutoRenewAttachesDetachedPaymentMethod(t *testing.T) {
	repo, user, plan := seedCheckoutFixture(t, 6)
	seedLiveTransaction(repo, user, plan)
	gw := &fakeGateway{intent: &PaymentIntent{ID: "pi_live", CustomerID: "", PaymentMethodID: "pm_1"}}
	svc := newTestService(repo, gw)

	require.NoError(t, svc.SetAutoRenew(context.Background(), user.ID, false))

	assert.Equal(t, []string{"pm_1"}, gw.attached)
	assert.Equal(t, []bool{false}, gw.setupIntents)
	assert.False(t, repo.txns[0].AutoRenew)
}

func TestSetAutoRenewWithoutLiveTransaction(t *testing.T) {
	repo, user, _ := seedCheckoutFixture(t, 6)
	svc := newTestService(repo, &fakeGateway{})

	err := svc.SetAutoRenew(context.Background(), user.ID, true)
	assert.ErrorIs(t, err, ErrNoActiveTransaction)
}

func TestProvisionPlanCreatesProductAndPrice(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)

	plan := &models.SubscriptionPlan{
		PlanName:       "Starter",
		DurationMonths: 1,
		Price:          decimal.NewFromFloat(19.99),
	}
	require.NoError(t, svc.ProvisionPlan(context.Background(), plan))

	assert.Equal(t, "prod_fake", plan.StripeProductID)
	assert.Equal(t, "price_fake", plan.StripePriceID)
	assert.Equal(t, []string{"Starter"}, gw.products)
	assert.Equal(t, []int64{1999}, gw.prices)
}

func TestProvisionPlanKeepsExistingProduct(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)

	plan := &models.SubscriptionPlan{
		PlanName:        "Starter",
		DurationMonths:  1,
		Price:           decimal.NewFromFloat(29.99),
		StripeProductID: "prod_existing",
	}
	require.NoError(t, svc.ProvisionPlan(context.Background(), plan))

	assert.Empty(t, gw.products)
	assert.Equal(t, "prod_existing", plan.StripeProductID)
	assert.Equal(t, "price_fake", plan.StripePriceID)
}

func TestTransactionHistoryNewestFirst(t *testing.T) {
	repo, user, plan := seedCheckoutFixture(t, 6)
	repo.txns = append(repo.txns,
		&models.TransactionRecord{ID: 1, UserID: user.ID, PlanID: plan.ID, CheckoutSessionID: "cs_1"},
		&models.TransactionRecord{ID: 2, UserID: user.ID, PlanID: plan.ID, CheckoutSessionID: "cs_2"},
	)
	svc := newTestService(repo, &fakeGateway{})

	txns, err := svc.TransactionHistory(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "cs_2", txns[0].CheckoutSessionID)

	latest, err := svc.LatestTransaction(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "cs_2", latest.CheckoutSessionID)
}

func TestLatestTransactionEmptyLedger(t *testing.T) {
	repo, user, _ := seedCheckoutFixture(t, 6)
	svc := newTestService(repo, &fakeGateway{})

	latest, err := svc.LatestTransaction(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}
