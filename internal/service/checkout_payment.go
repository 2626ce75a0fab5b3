package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storefront-client/internal/apiclient"
	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const defaultQRSize = 256

const (
	msgLaunchFailed  = "Unable to open the app automatically. Please scan the QR code instead."
	msgReturnNotice  = "Welcome back! Tap \"Confirm Payment\" once the transfer succeeds."
	msgNotStarted    = "Start a payment attempt by opening an app or scanning the QR code first."
	msgUseAppConfirm = "Complete the payment using an app and then tap \"Confirm Payment\"."
	msgOrderFailed   = "Failed to place order. Please try again."
	msgNeedShipping  = "Please complete your shipping details first."
)

// orderRequest is the method-specific part of an order submission.
type orderRequest struct {
	method        string
	status        string
	savedMethodID string
	cardNumber    string
	cardName      string
	expiryDate    string
	app           string
	reference     string
	intentURI     string
	assertedBy    string
}

// SelectPaymentApp switches the UPI target app. Every switch discards the
// current reference id. Choosing the QR option counts as a started attempt
// since the code is already on screen.
func (o *CheckoutOrchestrator) SelectPaymentApp(appID string) error {
	if _, ok := LookupPaymentApp(appID); !ok {
		return newOpError(ErrValidation, fmt.Sprintf("Unsupported payment app %q.", appID), nil)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.selectedApp = appID
	o.attempt = PaymentAttempt{ReferenceID: o.newReferenceLocked(), State: AttemptNotStarted}
	if appID == AppQR {
		o.attempt.State = AttemptLaunched
	}
	o.paymentError = ""
	o.notice = ""
	return nil
}

// RefreshQR mints a new reference for the QR code.
func (o *CheckoutOrchestrator) RefreshQR() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.selectedApp = AppQR
	o.attempt = PaymentAttempt{ReferenceID: o.newReferenceLocked(), State: AttemptLaunched}
	o.paymentError = ""
	return o.upiLinkLocked()
}

// UPILink returns the generic intent for the current cart and reference.
func (o *CheckoutOrchestrator) UPILink() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.upiLinkLocked()
}

// RenderQRCode encodes the current UPI link as a PNG.
func (o *CheckoutOrchestrator) RenderQRCode(size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := qrcode.Encode(o.UPILink(), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return png, nil
}

// LaunchPaymentApp hands the page off to a UPI app. The attempt is Launched
// while navigating and AwaitingReturn once the hand-off went through; a
// failed navigation reverts it so the user can fall back to the QR code.
func (o *CheckoutOrchestrator) LaunchPaymentApp(ctx context.Context, appID string) error {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.LaunchPaymentApp")
	defer span.End()

	app, ok := LookupPaymentApp(appID)
	if !ok || app.ID == AppQR {
		return newOpError(ErrValidation, "Choose a payment app to open.", nil)
	}

	o.mu.Lock()
	if o.form.PaymentMethod != PaymentUPIApps {
		o.mu.Unlock()
		return newOpError(ErrValidation, "Select payment apps as the payment method first.", nil)
	}
	if o.step != StepPayment {
		o.mu.Unlock()
		return newOpError(ErrValidation, msgNeedShipping, nil)
	}
	if o.selectedApp != appID {
		o.selectedApp = appID
		o.attempt = PaymentAttempt{ReferenceID: o.newReferenceLocked()}
	}
	link := o.upiLinkLocked()
	intent := BuildAppIntent(app, link)
	o.attempt.IntentURI = intent
	o.attempt.State = AttemptLaunched
	o.paymentError = ""
	o.notice = ""
	reference := o.attempt.ReferenceID
	amount := ComputeTotals(o.cart.Cart(), o.payee.TaxRate).Total
	audit := o.audit
	o.mu.Unlock()

	if err := o.nav.Navigate(ctx, intent); err != nil {
		o.mu.Lock()
		if o.attempt.ReferenceID == reference {
			o.attempt.State = AttemptNotStarted
			o.attempt.IntentURI = ""
			o.paymentError = msgLaunchFailed
		}
		o.mu.Unlock()

		util.PaymentLaunchesTotal.WithLabelValues(appID, "failed").Inc()
		o.logger.Warn("Payment app launch failed",
			zap.String("app", appID),
			zap.String("reference", reference),
			zap.Error(err),
		)
		return newOpError(ErrPaymentLaunch, msgLaunchFailed, err)
	}

	o.mu.Lock()
	if o.attempt.ReferenceID == reference && o.attempt.State == AttemptLaunched {
		o.attempt.State = AttemptAwaitingReturn
	}
	o.mu.Unlock()

	util.PaymentLaunchesTotal.WithLabelValues(appID, "success").Inc()
	o.logger.Info("Payment app launched",
		zap.String("app", appID),
		zap.String("reference", reference),
	)

	if audit != nil {
		event := &models.PaymentAppLaunchedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentAppLaunched,
				Timestamp: o.clock.Now(),
			},
			UserID:           o.userID(),
			App:              appID,
			PaymentReference: reference,
			IntentURI:        intent,
			Amount:           amount,
		}
		if err := audit.PublishPaymentAppLaunched(ctx, event); err != nil {
			o.logger.Warn("Failed to publish payment launch event", zap.Error(err))
		}
	}
	return nil
}

// VisibilityChanged feeds page visibility into return detection. It reports
// whether this transition ended an app hand-off.
func (o *CheckoutOrchestrator) VisibilityChanged(visible bool) bool {
	if !visible {
		return false
	}
	return o.DetectReturn()
}

// DetectReturn moves an attempt that is waiting on the payment app to
// Confirming. Only the first call after a launch has an effect.
func (o *CheckoutOrchestrator) DetectReturn() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.attempt.State != AttemptAwaitingReturn {
		return false
	}
	o.attempt.State = AttemptConfirming
	o.notice = msgReturnNotice
	util.PaymentReturnsDetectedTotal.Inc()
	o.logger.Info("Payment app return detected", zap.String("reference", o.attempt.ReferenceID))
	return true
}

// ConfirmPayment submits the order for a UPI attempt on the user's word that
// the transfer succeeded. Nothing verifies the payment; the receipt and
// audit event record the user as the asserter.
func (o *CheckoutOrchestrator) ConfirmPayment(ctx context.Context) (*models.OrderResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.ConfirmPayment")
	defer span.End()

	o.mu.Lock()
	if o.attempt.State == AttemptNotStarted {
		o.paymentError = msgNotStarted
		o.mu.Unlock()
		return nil, newOpError(ErrValidation, msgNotStarted, nil)
	}
	o.mu.Unlock()

	if _, _, _, err := o.prerequisites(); err != nil {
		return nil, o.fail(err)
	}

	o.mu.Lock()
	app, _ := LookupPaymentApp(o.selectedApp)
	intent := o.attempt.IntentURI
	if intent == "" {
		intent = o.upiLinkLocked()
	}
	req := orderRequest{
		method:     models.PaymentMethodUPIApp,
		status:     models.UPIStatusPaid,
		app:        app.Label,
		reference:  o.attempt.ReferenceID,
		intentURI:  intent,
		assertedBy: models.AssertedByUser,
	}
	o.mu.Unlock()

	result, err := o.placeOrder(ctx, req)
	if err != nil {
		o.mu.Lock()
		if o.attempt.ReferenceID == req.reference {
			o.attempt.State = AttemptFailed
		}
		o.mu.Unlock()
		return nil, err
	}
	return result, nil
}

// SubmitPayment submits the order for card and wallet redirect payments,
// saving a manually entered card first when requested.
func (o *CheckoutOrchestrator) SubmitPayment(ctx context.Context) (*models.OrderResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.SubmitPayment")
	defer span.End()

	if _, _, _, err := o.prerequisites(); err != nil {
		return nil, o.fail(err)
	}

	o.mu.Lock()
	form := o.form
	methodID := o.selectedMethodID
	saveCard := o.saveCard
	o.mu.Unlock()

	switch form.PaymentMethod {
	case PaymentUPIApps:
		return nil, o.fail(newOpError(ErrValidation, msgUseAppConfirm, nil))
	case PaymentPayPal:
		return o.placeOrder(ctx, orderRequest{
			method:     models.PaymentMethodPayPal,
			status:     models.UPIStatusInitiated,
			assertedBy: models.AssertedByGateway,
		})
	case PaymentCard:
	default:
		return nil, o.fail(newOpError(ErrValidation, "Please select a payment method.", nil))
	}

	if methodID == NewSavedMethod {
		if form.CardNumber == "" || form.CardName == "" || form.ExpiryDate == "" || form.CVV == "" {
			return nil, o.fail(newOpError(ErrValidation, "Please fill in all card details.", nil))
		}
		if saveCard {
			saved, err := o.persistCard(ctx, form)
			if err != nil {
				return nil, o.fail(err)
			}
			methodID = saved.ID
			form.mirrorCard(*saved)
		}
	}

	req := orderRequest{
		method:     models.PaymentMethodCard,
		status:     models.UPIStatusPaid,
		cardName:   form.CardName,
		expiryDate: form.ExpiryDate,
		assertedBy: models.AssertedByGateway,
	}
	if methodID != NewSavedMethod {
		req.savedMethodID = methodID
	} else {
		req.cardNumber = CleanCardNumber(form.CardNumber)
	}
	return o.placeOrder(ctx, req)
}

func (o *CheckoutOrchestrator) persistCard(ctx context.Context, form CheckoutForm) (*models.SavedPaymentMethod, error) {
	card, err := ValidateCardForSave(form.CardNumber, form.CardName, form.ExpiryDate, o.clock.Now())
	if err != nil {
		return nil, err
	}

	token, ok := o.session.Token()
	if !ok {
		return nil, newOpError(ErrAuthentication, "Please log in to save payment methods.", nil)
	}

	o.mu.Lock()
	first := len(o.savedMethods) == 0
	o.mu.Unlock()

	resp, err := o.api.SavePaymentMethod(ctx, token, apiclient.SavePaymentMethodRequest{
		CardholderName: card.Holder,
		CardNumber:     card.Number,
		ExpiryMonth:    card.ExpiryMonth,
		ExpiryYear:     card.ExpiryYear,
		IsDefault:      first,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save payment method: %w", err)
	}

	o.mu.Lock()
	o.savedMethods = append([]models.SavedPaymentMethod{}, resp.PaymentMethods...)
	o.selectedMethodID = resp.PaymentMethod.ID
	o.form.mirrorCard(resp.PaymentMethod)
	o.saveCard = false
	o.mu.Unlock()

	o.syncUser(ctx, func(u *models.User) { u.SavedPaymentMethods = resp.PaymentMethods })
	return &resp.PaymentMethod, nil
}

// prerequisites checks what every order needs before anything goes out.
func (o *CheckoutOrchestrator) prerequisites() (*models.User, string, models.Cart, error) {
	user := o.session.User()
	token, ok := o.session.Token()
	if user == nil || user.ID == "" || !ok {
		return nil, "", models.Cart{}, newOpError(ErrOrderSubmission, "Please log in to place an order.", nil)
	}

	cart := o.cart.Cart()
	if len(cart.Items) == 0 {
		return nil, "", models.Cart{}, newOpError(ErrOrderSubmission, "Your cart is empty.", nil)
	}
	for _, item := range cart.Items {
		if item.Product.ID == PlaceholderProductID || item.Product.ID == "" {
			return nil, "", models.Cart{}, newOpError(ErrOrderSubmission,
				"Some items in your cart are no longer available. Please remove them and try again.", nil)
		}
	}

	o.mu.Lock()
	step, form := o.step, o.form
	o.mu.Unlock()
	if step != StepPayment || len(missingShippingFields(form)) > 0 {
		return nil, "", models.Cart{}, newOpError(ErrValidation, msgNeedShipping, nil)
	}
	return user, token, cart, nil
}

func (o *CheckoutOrchestrator) placeOrder(ctx context.Context, req orderRequest) (*models.OrderResult, error) {
	user, token, cart, err := o.prerequisites()
	if err != nil {
		return nil, o.fail(err)
	}

	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return nil, newOpError(ErrOrderSubmission, "Your order is already being placed.", nil)
	}
	o.submitting = true
	o.paymentError = ""
	form := o.form
	receipts, audit, view := o.receipts, o.audit, o.view
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.submitting = false
		o.mu.Unlock()
	}()

	totals := ComputeTotals(cart, o.payee.TaxRate)
	payload := buildOrderPayload(user.ID, form, cart, totals, req, o.payee.VPA)

	start := time.Now()
	result, err := o.api.CreateOrder(ctx, token, payload)
	util.OrderSubmissionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.OrdersSubmittedTotal.WithLabelValues(req.method, "failed").Inc()
		o.logger.Error("Order submission failed",
			zap.String("user_id", user.ID),
			zap.String("payment_method", req.method),
			zap.Error(err),
		)
		return nil, o.fail(newOpError(ErrOrderSubmission, messageOr(err, msgOrderFailed), err))
	}

	if result.PaymentMethod == "" {
		result.PaymentMethod = req.method
	}
	if result.PaymentStatus == "" {
		result.PaymentStatus = req.status
	}
	if result.Total == 0 {
		result.Total = totals.Total
	}

	util.OrdersSubmittedTotal.WithLabelValues(req.method, "success").Inc()
	o.logger.Info("Order placed",
		zap.String("order_id", result.OrderID),
		zap.String("user_id", user.ID),
		zap.String("payment_method", req.method),
		zap.String("asserted_by", req.assertedBy),
	)

	if err := o.cart.ClearCart(ctx); err != nil {
		o.logger.Warn("Failed to clear cart after order", zap.String("order_id", result.OrderID), zap.Error(err))
	}

	if receipts != nil {
		body, _ := json.Marshal(payload)
		receipt := &models.OrderReceipt{
			OrderID:          result.OrderID,
			UserID:           user.ID,
			PaymentMethod:    req.method,
			PaymentStatus:    result.PaymentStatus,
			PaymentReference: req.reference,
			IntentURI:        req.intentURI,
			AssertedBy:       req.assertedBy,
			Total:            totals.Total,
			Payload:          body,
			CreatedAt:        o.clock.Now(),
		}
		if err := receipts.RecordReceipt(ctx, receipt); err != nil {
			o.logger.Warn("Failed to record receipt", zap.String("order_id", result.OrderID), zap.Error(err))
		}
	}

	if audit != nil {
		event := &models.OrderPlacedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPlaced,
				Timestamp: o.clock.Now(),
			},
			OrderID:          result.OrderID,
			UserID:           user.ID,
			PaymentMethod:    req.method,
			PaymentStatus:    result.PaymentStatus,
			PaymentReference: req.reference,
			AssertedBy:       req.assertedBy,
			Total:            totals.Total,
			ItemCount:        totals.ItemCount,
		}
		if err := audit.PublishOrderPlaced(ctx, event); err != nil {
			o.logger.Warn("Failed to publish order event", zap.String("order_id", result.OrderID), zap.Error(err))
		}
	}

	o.mu.Lock()
	o.confirmation = result
	o.notice = ""
	o.mu.Unlock()

	if view != nil {
		view.ShowConfirmation(result)
	}
	return result, nil
}

func buildOrderPayload(userID string, form CheckoutForm, cart models.Cart, totals Totals, req orderRequest, payeeVPA string) *models.OrderPayload {
	items := make([]models.OrderItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, models.OrderItemPayload{
			Product:  models.OrderProductRef{ID: item.Product.ID},
			Quantity: item.Quantity,
		})
	}

	payload := &models.OrderPayload{
		User:          userID,
		FirstName:     strings.TrimSpace(form.FirstName),
		LastName:      strings.TrimSpace(form.LastName),
		Email:         strings.TrimSpace(form.Email),
		Address:       strings.TrimSpace(form.Address),
		City:          strings.TrimSpace(form.City),
		State:         strings.TrimSpace(form.State),
		Zip:           strings.TrimSpace(form.Zip),
		Country:       strings.TrimSpace(form.Country),
		Phone:         strings.TrimSpace(form.Phone),
		PaymentMethod: req.method,
		Items:         items,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		Total:         totals.Total,
	}

	switch req.method {
	case models.PaymentMethodCard:
		payload.SavedPaymentMethodID = req.savedMethodID
		payload.CardNumber = req.cardNumber
		payload.CardName = strings.TrimSpace(req.cardName)
		payload.ExpiryDate = strings.TrimSpace(req.expiryDate)
	case models.PaymentMethodUPIApp:
		payload.UPIApp = req.app
		payload.UPITransactionID = req.reference
		payload.UPIVPA = payeeVPA
		payload.UPIStatus = req.status
		payload.UPIIntentURL = req.intentURI
	}
	return payload
}

// fail records err as the visible payment error.
func (o *CheckoutOrchestrator) fail(err error) error {
	o.mu.Lock()
	o.paymentError = UserMessage(err)
	o.mu.Unlock()
	return err
}

func (o *CheckoutOrchestrator) upiLinkLocked() string {
	total := ComputeTotals(o.cart.Cart(), o.payee.TaxRate).Total
	return BuildUPILink(o.payee, total, o.attempt.ReferenceID)
}

// newReferenceLocked mints SV<epoch millis>, strictly increasing even when
// called twice in the same millisecond.
func (o *CheckoutOrchestrator) newReferenceLocked() string {
	millis := o.clock.Now().UnixMilli()
	if millis <= o.lastReferenceMillis {
		millis = o.lastReferenceMillis + 1
	}
	o.lastReferenceMillis = millis
	return fmt.Sprintf("SV%d", millis)
}

func (o *CheckoutOrchestrator) userID() string {
	if user := o.session.User(); user != nil {
		return user.ID
	}
	return ""
}
