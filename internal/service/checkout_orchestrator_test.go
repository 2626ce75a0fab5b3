package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"storefront-client/internal/apiclient"
	"storefront-client/internal/clock"
	"storefront-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productOf(id string, price float64, discount *float64) models.Product {
	return models.Product{ID: id, Name: "Item " + id, Price: price, DiscountPrice: discount}
}

func lineOf(id string, p models.Product, qty int) models.CartItem {
	return models.CartItem{ID: id, Product: p, Quantity: qty}
}

func cartOf(items ...models.CartItem) models.Cart {
	return models.Cart{Items: items, Total: localCartTotal(items)}
}

type checkoutFixture struct {
	o        *CheckoutOrchestrator
	api      *fakeCheckoutAPI
	session  *fakeSession
	cart     *fakeCartSource
	nav      *fakeNavigator
	view     *fakeView
	receipts *fakeReceipts
	audit    *fakeAudit
	clock    *clock.Fake
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	f := &checkoutFixture{
		api: &fakeCheckoutAPI{
			createResp: &models.OrderResult{OrderID: "o-1"},
		},
		session: &fakeSession{
			token: "tok-1",
			user:  &models.User{ID: "u1", Name: "Asha Rao Kumar", Email: "asha@example.com", Phone: "9876543210"},
		},
		cart:     &fakeCartSource{cart: cartOf(lineOf("i1", productOf("p1", 499, nil), 1))},
		nav:      &fakeNavigator{},
		view:     &fakeView{},
		receipts: &fakeReceipts{},
		audit:    &fakeAudit{},
		clock:    clock.NewFake(t0),
	}
	f.o = NewCheckoutOrchestrator(f.api, f.session, f.cart, f.nav, f.view, testPayee, f.clock)
	f.o.SetReceiptRecorder(f.receipts)
	f.o.SetAuditPublisher(f.audit)
	return f
}

func (f *checkoutFixture) fillShipping(t *testing.T) {
	t.Helper()
	for field, value := range map[string]string{
		"address": "12 MG Road",
		"city":    "Pune",
		"state":   "MH",
		"zip":     "411001",
	} {
		require.NoError(t, f.o.UpdateField(field, value))
	}
}

// completeShipping fills the address and advances to the payment step.
func (f *checkoutFixture) completeShipping(t *testing.T) {
	t.Helper()
	f.fillShipping(t)
	require.NoError(t, f.o.SubmitShipping(context.Background()))
}

func TestBeginPrefillsAndSelectsDefaults(t *testing.T) {
	f := newCheckoutFixture(t)
	f.api.addresses = []models.SavedAddress{
		{ID: "a1", FirstName: "Asha", City: "Mumbai"},
		{ID: "a2", FirstName: "Asha", LastName: "Kumar", City: "Pune", IsDefault: true},
	}
	f.api.methods = []models.SavedPaymentMethod{
		{ID: "m1", CardholderName: "Asha R Kumar", Last4: "4242", ExpiryMonth: 3, ExpiryYear: 2028, IsDefault: true},
	}

	require.NoError(t, f.o.Begin(context.Background()))
	snap := f.o.Snapshot()

	assert.Equal(t, StepShipping, snap.Step)
	assert.Equal(t, "a2", snap.SelectedAddressID)
	assert.Equal(t, "Pune", snap.Form.City)
	assert.Equal(t, "Kumar", snap.Form.LastName)
	assert.Equal(t, "m1", snap.SelectedPaymentMethodID)
	assert.Equal(t, "**** **** **** 4242", snap.Form.CardNumber)
	assert.Equal(t, "03/28", snap.Form.ExpiryDate)
	assert.Equal(t, "Asha R Kumar", snap.Form.CardName)
	assert.Equal(t, AttemptNotStarted, snap.Attempt.State)
	assert.Equal(t, AppPhonePe, snap.SelectedApp)
}

func TestBeginPrefillsFromUser(t *testing.T) {
	f := newCheckoutFixture(t)

	require.NoError(t, f.o.Begin(context.Background()))
	form := f.o.Snapshot().Form

	assert.Equal(t, "Asha", form.FirstName)
	assert.Equal(t, "Rao Kumar", form.LastName)
	assert.Equal(t, "asha@example.com", form.Email)
	assert.Equal(t, "9876543210", form.Phone)
	assert.Equal(t, "Asha Rao Kumar", form.CardName)
	assert.Equal(t, "IND", form.Country)
	assert.Equal(t, NewSavedMethod, f.o.Snapshot().SelectedPaymentMethodID)
}

func TestBeginReportsPartialLoadFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	f.api.addressesErr = errors.New("boom")
	f.api.methods = []models.SavedPaymentMethod{{ID: "m1", Last4: "1111", ExpiryMonth: 1, ExpiryYear: 2030}}

	err := f.o.Begin(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saved addresses")
	assert.Equal(t, "m1", f.o.Snapshot().SelectedPaymentMethodID)
}

func TestEditingMirroredFieldsDropsSelection(t *testing.T) {
	f := newCheckoutFixture(t)
	f.api.addresses = []models.SavedAddress{{ID: "a1", City: "Pune"}}
	f.api.methods = []models.SavedPaymentMethod{{ID: "m1", Last4: "4242", ExpiryMonth: 3, ExpiryYear: 2028}}
	require.NoError(t, f.o.Begin(context.Background()))

	require.NoError(t, f.o.UpdateField("city", "Nashik"))
	assert.Empty(t, f.o.Snapshot().SelectedAddressID)

	require.NoError(t, f.o.UpdateField("cvv", "123"))
	assert.Equal(t, NewSavedMethod, f.o.Snapshot().SelectedPaymentMethodID)

	assert.ErrorIs(t, f.o.UpdateField("nickname", "x"), ErrValidation)
}

func TestSelectAddressRemirrors(t *testing.T) {
	f := newCheckoutFixture(t)
	f.api.addresses = []models.SavedAddress{
		{ID: "a1", City: "Pune", IsDefault: true},
		{ID: "a2", City: "Goa", Zip: "403001"},
	}
	require.NoError(t, f.o.Begin(context.Background()))
	f.o.SetSaveAddress(true)

	require.NoError(t, f.o.SelectAddress("a2"))
	snap := f.o.Snapshot()
	assert.Equal(t, "a2", snap.SelectedAddressID)
	assert.Equal(t, "Goa", snap.Form.City)
	assert.Equal(t, "403001", snap.Form.Zip)
	assert.False(t, snap.SaveAddress)

	assert.ErrorIs(t, f.o.SelectAddress("zz"), ErrValidation)
}

func TestSubmitShippingRequiresFields(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))

	err := f.o.SubmitShipping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, UserMessage(err), "address")
	assert.Equal(t, StepShipping, f.o.Snapshot().Step)
}

func TestSubmitShippingSavesAddressAsDefault(t *testing.T) {
	f := newCheckoutFixture(t)
	saved := models.SavedAddress{ID: "a9", City: "Pune", IsDefault: true}
	f.api.saveAddressResp = &apiclient.SaveAddressResponse{Address: saved, Addresses: []models.SavedAddress{saved}}
	require.NoError(t, f.o.Begin(context.Background()))
	f.fillShipping(t)
	f.o.SetSaveAddress(true)

	require.NoError(t, f.o.SubmitShipping(context.Background()))

	require.NotNil(t, f.api.savedAddressReq)
	assert.True(t, f.api.savedAddressReq.IsDefault)
	assert.Equal(t, "12 MG Road", f.api.savedAddressReq.Address)

	snap := f.o.Snapshot()
	assert.Equal(t, StepPayment, snap.Step)
	assert.Equal(t, "a9", snap.SelectedAddressID)
	require.Len(t, f.session.updated, 1)
	assert.Len(t, f.session.updated[0].SavedAddresses, 1)
}

func TestBackToShippingKeepsPaymentFields(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	f.fillShipping(t)
	require.NoError(t, f.o.SubmitShipping(context.Background()))
	require.NoError(t, f.o.UpdateField("expiryDate", "12/30"))

	f.o.BackToShipping()
	snap := f.o.Snapshot()
	assert.Equal(t, StepShipping, snap.Step)
	assert.Equal(t, "12/30", snap.Form.ExpiryDate)
}

func TestSubmitWithEmptyCartMakesNoNetworkCall(t *testing.T) {
	f := newCheckoutFixture(t)
	f.cart.cart = models.Cart{Items: []models.CartItem{}}
	require.NoError(t, f.o.Begin(context.Background()))
	f.fillShipping(t)
	require.NoError(t, f.o.UpdateField("cardNumber", "4111111111111111"))
	require.NoError(t, f.o.UpdateField("expiryDate", "12/30"))
	require.NoError(t, f.o.UpdateField("cvv", "123"))
	f.o.SetSaveCard(true)

	_, err := f.o.SubmitPayment(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrderSubmission)
	assert.Equal(t, "Your cart is empty.", UserMessage(err))
	assert.Equal(t, 0, f.api.saveMethodCalls)
	assert.Equal(t, 0, f.api.createCalls)

	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentPayPal))
	_, err = f.o.SubmitPayment(context.Background())
	assert.ErrorIs(t, err, ErrOrderSubmission)
	assert.Equal(t, 0, f.api.createCalls)
}

func TestSubmitRequiresUser(t *testing.T) {
	f := newCheckoutFixture(t)
	f.session.token = ""
	f.session.user = nil
	require.NoError(t, f.o.Begin(context.Background()))
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentPayPal))

	_, err := f.o.SubmitPayment(context.Background())
	assert.ErrorIs(t, err, ErrOrderSubmission)
	assert.Equal(t, "Please log in to place an order.", UserMessage(err))
	assert.Equal(t, 0, f.api.createCalls)
}

func TestExpiredCardRejectedBeforeSave(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.UpdateField("cardNumber", "4111 1111 1111 1111"))
	require.NoError(t, f.o.UpdateField("expiryDate", "01/20"))
	require.NoError(t, f.o.UpdateField("cvv", "123"))
	f.o.SetSaveCard(true)

	_, err := f.o.SubmitPayment(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Card has expired.", UserMessage(err))
	assert.Equal(t, "Card has expired.", f.o.Snapshot().PaymentError)
	assert.Equal(t, 0, f.api.saveMethodCalls)
	assert.Equal(t, 0, f.api.createCalls)
}

func TestCardSubmitWithSavedMethod(t *testing.T) {
	f := newCheckoutFixture(t)
	f.api.methods = []models.SavedPaymentMethod{
		{ID: "m1", CardholderName: "Asha Rao", Last4: "4242", ExpiryMonth: 3, ExpiryYear: 2028},
	}
	require.NoError(t, f.o.Begin(context.Background()))
	f.fillShipping(t)
	require.NoError(t, f.o.SubmitShipping(context.Background()))

	result, err := f.o.SubmitPayment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "o-1", result.OrderID)
	assert.Equal(t, models.UPIStatusPaid, result.PaymentStatus)

	p := f.api.lastPayload
	assert.Equal(t, models.PaymentMethodCard, p.PaymentMethod)
	assert.Equal(t, "m1", p.SavedPaymentMethodID)
	assert.Empty(t, p.CardNumber)
	assert.Equal(t, "Asha Rao", p.CardName)
	assert.Equal(t, "03/28", p.ExpiryDate)
	assert.Empty(t, p.UPIApp)
	assert.Empty(t, p.UPIIntentURL)
	assert.Equal(t, "u1", p.User)
	assert.Equal(t, []models.OrderItemPayload{{Product: models.OrderProductRef{ID: "p1"}, Quantity: 1}}, p.Items)
	assert.Equal(t, 499.0, p.Total)

	assert.Equal(t, 1, f.cart.cleared)
	require.Len(t, f.view.shown, 1)
	assert.Equal(t, result, f.o.Confirmation())
	require.Len(t, f.receipts.receipts, 1)
	assert.Equal(t, models.AssertedByGateway, f.receipts.receipts[0].AssertedBy)
}

func TestCardSubmitSavesNewCardFirst(t *testing.T) {
	f := newCheckoutFixture(t)
	saved := models.SavedPaymentMethod{ID: "m7", CardholderName: "Asha Rao Kumar", Last4: "1111", ExpiryMonth: 12, ExpiryYear: 2030, IsDefault: true}
	f.api.saveMethodResp = &apiclient.SavePaymentMethodResponse{PaymentMethod: saved, PaymentMethods: []models.SavedPaymentMethod{saved}}
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.UpdateField("cardNumber", "4111 1111 1111 1111"))
	require.NoError(t, f.o.UpdateField("expiryDate", "12/30"))
	require.NoError(t, f.o.UpdateField("cvv", "123"))
	f.o.SetSaveCard(true)

	_, err := f.o.SubmitPayment(context.Background())
	require.NoError(t, err)

	require.NotNil(t, f.api.savedMethodReq)
	assert.Equal(t, "4111111111111111", f.api.savedMethodReq.CardNumber)
	assert.Equal(t, 12, f.api.savedMethodReq.ExpiryMonth)
	assert.Equal(t, 2030, f.api.savedMethodReq.ExpiryYear)
	assert.True(t, f.api.savedMethodReq.IsDefault)

	assert.Equal(t, "m7", f.api.lastPayload.SavedPaymentMethodID)
	assert.Empty(t, f.api.lastPayload.CardNumber)
	require.NotEmpty(t, f.session.updated)
	assert.Len(t, f.session.updated[len(f.session.updated)-1].SavedPaymentMethods, 1)
}

func TestCardSubmitNewCardWithoutSaving(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.UpdateField("cardNumber", "4111-1111-1111-1111"))
	require.NoError(t, f.o.UpdateField("expiryDate", "12/30"))

	_, err := f.o.SubmitPayment(context.Background())
	assert.ErrorIs(t, err, ErrValidation, "cvv is required")

	require.NoError(t, f.o.UpdateField("cvv", "123"))
	_, err = f.o.SubmitPayment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", f.api.lastPayload.CardNumber)
	assert.Empty(t, f.api.lastPayload.SavedPaymentMethodID)
	assert.Equal(t, 0, f.api.saveMethodCalls)
	assert.Equal(t, "**** **** **** 1111", f.o.Snapshot().Form.CardNumber)
}

func TestPayPalSubmitIsInitiated(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentPayPal))

	result, err := f.o.SubmitPayment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.UPIStatusInitiated, result.PaymentStatus)
	assert.Equal(t, models.PaymentMethodPayPal, f.api.lastPayload.PaymentMethod)
	assert.Empty(t, f.api.lastPayload.CardName)
	assert.Empty(t, f.api.lastPayload.UPIStatus)
}

func TestSubmitFailureKeepsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	f.api.createErr = &apiclient.APIError{StatusCode: 400, Message: "Insufficient stock"}
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentPayPal))

	_, err := f.o.SubmitPayment(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrderSubmission)
	assert.Equal(t, "Insufficient stock", UserMessage(err))
	assert.Equal(t, "Insufficient stock", f.o.Snapshot().PaymentError)
	assert.Equal(t, 0, f.cart.cleared)
	assert.Len(t, f.cart.Cart().Items, 1)
	assert.Empty(t, f.view.shown)
	assert.Empty(t, f.receipts.receipts)
	assert.False(t, f.o.Snapshot().Submitting)
}

func TestOrdersRequireCompletedShipping(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	require.NoError(t, f.o.Begin(ctx))
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentPayPal))

	_, err := f.o.SubmitPayment(ctx)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Please complete your shipping details first.", UserMessage(err))
	assert.Equal(t, StepShipping, f.o.Snapshot().Step)

	f.completeShipping(t)
	f.o.BackToShipping()
	_, err = f.o.SubmitPayment(ctx)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.o.SubmitShipping(ctx))
	require.NoError(t, f.o.UpdateField("city", " "))
	_, err = f.o.SubmitPayment(ctx)
	assert.ErrorIs(t, err, ErrValidation, "address edited to blank after advancing")
	assert.Equal(t, 0, f.api.createCalls)
}

func TestPaymentAppsRequireCompletedShipping(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	require.NoError(t, f.o.Begin(ctx))
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))

	assert.ErrorIs(t, f.o.LaunchPaymentApp(ctx, AppPhonePe), ErrValidation)
	assert.Empty(t, f.nav.uris)

	require.NoError(t, f.o.SelectPaymentApp(AppQR))
	_, err := f.o.ConfirmPayment(ctx)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, AttemptLaunched, f.o.Snapshot().Attempt.State)
	assert.Equal(t, 0, f.api.createCalls)
}

func TestSubmitRejectsUnavailableProducts(t *testing.T) {
	f := newCheckoutFixture(t)
	f.cart.cart = cartOf(lineOf("i1", models.Product{ID: PlaceholderProductID, Name: PlaceholderProductName}, 1))
	require.NoError(t, f.o.Begin(context.Background()))
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentPayPal))

	_, err := f.o.SubmitPayment(context.Background())
	assert.ErrorIs(t, err, ErrOrderSubmission)
	assert.Equal(t, 0, f.api.createCalls)
}

func TestSubmitPaymentRefusesAppPayments(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))

	_, err := f.o.SubmitPayment(context.Background())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, f.api.createCalls)
}

func TestLaunchAndReturnDetection(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))

	require.NoError(t, f.o.LaunchPaymentApp(context.Background(), AppGPay))

	require.Len(t, f.nav.uris, 1)
	uri := f.nav.uris[0]
	assert.True(t, strings.HasPrefix(uri, "intent://pay?pa=zalya%40upi&pn=Zalya&am=499.00&cu=INR"), uri)
	snap := f.o.Snapshot()
	assert.Equal(t, AttemptAwaitingReturn, snap.Attempt.State)
	assert.Equal(t, uri, snap.Attempt.IntentURI)
	assert.Contains(t, uri, "tr="+snap.Attempt.ReferenceID)

	require.Len(t, f.audit.launches, 1)
	assert.Equal(t, snap.Attempt.ReferenceID, f.audit.launches[0].PaymentReference)

	assert.False(t, f.o.VisibilityChanged(false))
	assert.True(t, f.o.VisibilityChanged(true))
	snap = f.o.Snapshot()
	assert.Equal(t, AttemptConfirming, snap.Attempt.State)
	assert.NotEmpty(t, snap.Notice)
	assert.False(t, f.o.VisibilityChanged(true), "only the first return counts")
}

func TestLaunchFailureRevertsAttempt(t *testing.T) {
	f := newCheckoutFixture(t)
	f.nav.err = errors.New("no handler for phonepe://")
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))

	err := f.o.LaunchPaymentApp(context.Background(), AppPhonePe)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPaymentLaunch)
	assert.Contains(t, UserMessage(err), "QR code")

	snap := f.o.Snapshot()
	assert.Equal(t, AttemptNotStarted, snap.Attempt.State)
	assert.Empty(t, snap.Attempt.IntentURI)
	assert.False(t, f.o.VisibilityChanged(true))
	assert.Empty(t, f.audit.launches)
}

func TestLaunchRequiresAppPaymentKind(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)

	assert.ErrorIs(t, f.o.LaunchPaymentApp(context.Background(), AppPhonePe), ErrValidation)
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))
	assert.ErrorIs(t, f.o.LaunchPaymentApp(context.Background(), AppQR), ErrValidation)
	assert.Empty(t, f.nav.uris)
}

func TestConfirmRefusedBeforeAttempt(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))

	_, err := f.o.ConfirmPayment(context.Background())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, f.api.createCalls)
}

func TestConfirmAfterReturnSubmitsUPIOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))
	require.NoError(t, f.o.LaunchPaymentApp(context.Background(), AppPhonePe))
	require.True(t, f.o.DetectReturn())
	ref := f.o.Snapshot().Attempt.ReferenceID

	result, err := f.o.ConfirmPayment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.UPIStatusPaid, result.PaymentStatus)

	p := f.api.lastPayload
	assert.Equal(t, models.PaymentMethodUPIApp, p.PaymentMethod)
	assert.Equal(t, "PhonePe", p.UPIApp)
	assert.Equal(t, models.UPIStatusPaid, p.UPIStatus)
	assert.Equal(t, ref, p.UPITransactionID)
	assert.Equal(t, "zalya@upi", p.UPIVPA)
	assert.Equal(t, f.nav.uris[0], p.UPIIntentURL)
	assert.Empty(t, p.CardName)

	assert.Equal(t, 1, f.cart.cleared)
	require.Len(t, f.receipts.receipts, 1)
	assert.Equal(t, models.AssertedByUser, f.receipts.receipts[0].AssertedBy)
	assert.Equal(t, ref, f.receipts.receipts[0].PaymentReference)
	require.Len(t, f.audit.orders, 1)
	assert.Equal(t, models.AssertedByUser, f.audit.orders[0].AssertedBy)
}

func TestConfirmFailureMarksAttemptFailed(t *testing.T) {
	f := newCheckoutFixture(t)
	f.api.createErr = errors.New("connection reset")
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))
	require.NoError(t, f.o.SelectPaymentApp(AppQR))

	_, err := f.o.ConfirmPayment(context.Background())
	assert.ErrorIs(t, err, ErrOrderSubmission)
	assert.Equal(t, "Failed to place order. Please try again.", UserMessage(err))
	assert.Equal(t, AttemptFailed, f.o.Snapshot().Attempt.State)
	assert.Equal(t, 0, f.cart.cleared)
}

func TestSwitchingAppsMintsNewReference(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))
	first := f.o.Snapshot().Attempt.ReferenceID
	assert.True(t, strings.HasPrefix(first, "SV"))

	require.NoError(t, f.o.SelectPaymentApp(AppGPay))
	second := f.o.Snapshot().Attempt.ReferenceID
	assert.NotEqual(t, first, second)

	require.NoError(t, f.o.SelectPaymentApp(AppQR))
	snap := f.o.Snapshot()
	assert.NotEqual(t, second, snap.Attempt.ReferenceID)
	assert.Equal(t, AttemptLaunched, snap.Attempt.State)
	assert.Contains(t, snap.UPILink, "tr="+snap.Attempt.ReferenceID)

	link := f.o.RefreshQR()
	assert.NotEqual(t, snap.UPILink, link)
	assert.Equal(t, f.o.UPILink(), link)

	assert.ErrorIs(t, f.o.SelectPaymentApp("bhim"), ErrValidation)
}

func TestQRConfirmUsesGenericLink(t *testing.T) {
	f := newCheckoutFixture(t)
	require.NoError(t, f.o.Begin(context.Background()))
	f.completeShipping(t)
	require.NoError(t, f.o.SelectPaymentMethodKind(PaymentUPIApps))
	link := f.o.RefreshQR()

	_, err := f.o.ConfirmPayment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, link, f.api.lastPayload.UPIIntentURL)
	assert.Equal(t, "QR Code", f.api.lastPayload.UPIApp)
}

func TestRenderQRCode(t *testing.T) {
	f := newCheckoutFixture(t)

	png, err := f.o.RenderQRCode(0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestSelectSavedPaymentMethodNew(t *testing.T) {
	f := newCheckoutFixture(t)
	f.api.methods = []models.SavedPaymentMethod{{ID: "m1", CardholderName: "Someone", Last4: "4242", ExpiryMonth: 3, ExpiryYear: 2028}}
	require.NoError(t, f.o.Begin(context.Background()))

	require.NoError(t, f.o.SelectSavedPaymentMethod(NewSavedMethod))
	form := f.o.Snapshot().Form
	assert.Empty(t, form.CardNumber)
	assert.Empty(t, form.ExpiryDate)
	assert.Equal(t, "Asha Rao Kumar", form.CardName)

	require.NoError(t, f.o.SelectSavedPaymentMethod("m1"))
	assert.Equal(t, "**** **** **** 4242", f.o.Snapshot().Form.CardNumber)
	assert.ErrorIs(t, f.o.SelectSavedPaymentMethod("m9"), ErrValidation)
}

func TestSnapshotTotalsIncludeTax(t *testing.T) {
	f := newCheckoutFixture(t)
	f.o.payee.TaxRate = 0.10

	snap := f.o.Snapshot()
	assert.Equal(t, 499.0, snap.Totals.Subtotal)
	assert.Equal(t, 49.9, snap.Totals.Tax)
	assert.Equal(t, 548.9, snap.Totals.Total)
	assert.Contains(t, snap.UPILink, "am=548.90")
}
