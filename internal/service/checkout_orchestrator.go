package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"storefront-client/internal/apiclient"
	"storefront-client/internal/clock"
	"storefront-client/internal/models"
	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// CheckoutStep is the wizard step.
type CheckoutStep string

const (
	StepShipping CheckoutStep = "shipping"
	StepPayment  CheckoutStep = "payment"
)

// PaymentKind is the payment choice offered by the form.
type PaymentKind string

const (
	PaymentCard    PaymentKind = "credit-card"
	PaymentPayPal  PaymentKind = "paypal"
	PaymentUPIApps PaymentKind = "payment-apps"
)

// NewSavedMethod selects manual card entry instead of a saved card.
const NewSavedMethod = "new"

// CheckoutForm is the working draft of shipping and payment fields.
type CheckoutForm struct {
	FirstName     string      `json:"firstName"`
	LastName      string      `json:"lastName"`
	Email         string      `json:"email"`
	Address       string      `json:"address"`
	City          string      `json:"city"`
	State         string      `json:"state"`
	Zip           string      `json:"zip"`
	Country       string      `json:"country"`
	Phone         string      `json:"phone"`
	PaymentMethod PaymentKind `json:"paymentMethod"`
	CardNumber    string      `json:"cardNumber"`
	CardName      string      `json:"cardName"`
	ExpiryDate    string      `json:"expiryDate"`
	CVV           string      `json:"-"`
}

var (
	addressFields = map[string]bool{
		"firstName": true, "lastName": true, "email": true, "phone": true, "address": true,
		"city": true, "state": true, "zip": true, "country": true,
	}
	cardFields = map[string]bool{
		"cardNumber": true, "cardName": true, "expiryDate": true, "cvv": true,
	}
)

func (f *CheckoutForm) set(field, value string) bool {
	switch field {
	case "firstName":
		f.FirstName = value
	case "lastName":
		f.LastName = value
	case "email":
		f.Email = value
	case "address":
		f.Address = value
	case "city":
		f.City = value
	case "state":
		f.State = value
	case "zip":
		f.Zip = value
	case "country":
		f.Country = value
	case "phone":
		f.Phone = value
	case "cardNumber":
		f.CardNumber = value
	case "cardName":
		f.CardName = value
	case "expiryDate":
		f.ExpiryDate = value
	case "cvv":
		f.CVV = value
	default:
		return false
	}
	return true
}

func (f *CheckoutForm) mirrorAddress(a models.SavedAddress) {
	f.FirstName = a.FirstName
	f.LastName = a.LastName
	f.Email = a.Email
	f.Phone = a.Phone
	f.Address = a.Address
	f.City = a.City
	f.State = a.State
	f.Zip = a.Zip
	f.Country = a.Country
}

func (f *CheckoutForm) mirrorCard(m models.SavedPaymentMethod) {
	f.CardName = m.CardholderName
	f.CardNumber = MaskedCardNumber(m.Last4)
	f.ExpiryDate = FormatExpiry(m.ExpiryMonth, m.ExpiryYear)
}

// AttemptState is the state of a UPI app payment attempt.
type AttemptState string

const (
	AttemptNotStarted     AttemptState = "not_started"
	AttemptLaunched       AttemptState = "launched"
	AttemptAwaitingReturn AttemptState = "awaiting_return"
	AttemptConfirming     AttemptState = "confirming"
	AttemptFailed         AttemptState = "failed"
)

// PaymentAttempt is the live UPI attempt. ReferenceID is the tr parameter
// of every intent built for it.
type PaymentAttempt struct {
	ReferenceID string       `json:"referenceId"`
	IntentURI   string       `json:"intentUri,omitempty"`
	State       AttemptState `json:"state"`
}

// CheckoutAPI is the subset of the backend used by checkout.
type CheckoutAPI interface {
	ListAddresses(ctx context.Context, token string) ([]models.SavedAddress, error)
	SaveAddress(ctx context.Context, token string, req apiclient.SaveAddressRequest) (*apiclient.SaveAddressResponse, error)
	ListPaymentMethods(ctx context.Context, token string) ([]models.SavedPaymentMethod, error)
	SavePaymentMethod(ctx context.Context, token string, req apiclient.SavePaymentMethodRequest) (*apiclient.SavePaymentMethodResponse, error)
	CreateOrder(ctx context.Context, token string, payload *models.OrderPayload) (*models.OrderResult, error)
}

// CheckoutSession is what checkout needs from the session.
type CheckoutSession interface {
	Token() (string, bool)
	User() *models.User
	UpdateUser(ctx context.Context, user *models.User) error
}

// CartSource is read by checkout; ClearCart is its only cart write.
type CartSource interface {
	Cart() models.Cart
	ClearCart(ctx context.Context) error
}

// Navigator hands the browsing context off to a URI.
type Navigator interface {
	Navigate(ctx context.Context, uri string) error
}

// ConfirmationView receives the placed order.
type ConfirmationView interface {
	ShowConfirmation(result *models.OrderResult)
}

// ReceiptRecorder keeps a local ledger of placed orders.
type ReceiptRecorder interface {
	RecordReceipt(ctx context.Context, receipt *models.OrderReceipt) error
}

// AuditPublisher publishes checkout audit events.
type AuditPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishPaymentAppLaunched(ctx context.Context, event *models.PaymentAppLaunchedEvent) error
}

// CheckoutSnapshot is a read-only view of the checkout state.
type CheckoutSnapshot struct {
	Step                    CheckoutStep                `json:"step"`
	Form                    CheckoutForm                `json:"form"`
	SavedAddresses          []models.SavedAddress       `json:"savedAddresses"`
	SelectedAddressID       string                      `json:"selectedAddressId,omitempty"`
	SaveAddress             bool                        `json:"saveAddress"`
	SavedPaymentMethods     []models.SavedPaymentMethod `json:"savedPaymentMethods"`
	SelectedPaymentMethodID string                      `json:"selectedPaymentMethodId"`
	SaveCard                bool                        `json:"saveCard"`
	SelectedApp             string                      `json:"selectedApp"`
	Attempt                 PaymentAttempt              `json:"attempt"`
	UPILink                 string                      `json:"upiLink"`
	Totals                  Totals                      `json:"totals"`
	PaymentError            string                      `json:"paymentError,omitempty"`
	Notice                  string                      `json:"notice,omitempty"`
	Submitting              bool                        `json:"submitting"`
}

// CheckoutOrchestrator drives the shipping and payment wizard, the UPI app
// hand-off protocol and order submission. Cart state is read from the cart
// source and written back only by clearing it after a successful order.
type CheckoutOrchestrator struct {
	api      CheckoutAPI
	session  CheckoutSession
	cart     CartSource
	nav      Navigator
	view     ConfirmationView
	payee    PayeeConfig
	clock    clock.Clock
	receipts ReceiptRecorder
	audit    AuditPublisher
	logger   *zap.Logger

	mu                  sync.Mutex
	step                CheckoutStep
	form                CheckoutForm
	userPrefilled       bool
	savedAddresses      []models.SavedAddress
	selectedAddressID   string
	saveAddress         bool
	savedMethods        []models.SavedPaymentMethod
	selectedMethodID    string
	saveCard            bool
	selectedApp         string
	attempt             PaymentAttempt
	paymentError        string
	notice              string
	submitting          bool
	lastReferenceMillis int64
	confirmation        *models.OrderResult
}

// NewCheckoutOrchestrator creates an orchestrator in its initial state.
func NewCheckoutOrchestrator(
	api CheckoutAPI,
	session CheckoutSession,
	cart CartSource,
	nav Navigator,
	view ConfirmationView,
	payee PayeeConfig,
	clk clock.Clock,
) *CheckoutOrchestrator {
	o := &CheckoutOrchestrator{
		api:     api,
		session: session,
		cart:    cart,
		nav:     nav,
		view:    view,
		payee:   payee,
		clock:   clk,
		logger:  util.GetLogger(),
	}
	o.resetLocked()
	return o
}

// SetReceiptRecorder enables the local receipt ledger.
func (o *CheckoutOrchestrator) SetReceiptRecorder(r ReceiptRecorder) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.receipts = r
}

// SetAuditPublisher enables checkout audit events.
func (o *CheckoutOrchestrator) SetAuditPublisher(p AuditPublisher) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audit = p
}

func (o *CheckoutOrchestrator) resetLocked() {
	o.step = StepShipping
	o.form = CheckoutForm{Country: "IND", PaymentMethod: PaymentCard}
	o.userPrefilled = false
	o.savedAddresses = []models.SavedAddress{}
	o.selectedAddressID = ""
	o.saveAddress = false
	o.savedMethods = []models.SavedPaymentMethod{}
	o.selectedMethodID = NewSavedMethod
	o.saveCard = false
	o.selectedApp = AppPhonePe
	o.attempt = PaymentAttempt{ReferenceID: o.newReferenceLocked(), State: AttemptNotStarted}
	o.paymentError = ""
	o.notice = ""
	o.confirmation = nil
}

// Begin starts a checkout session: the draft is reset, prefilled from the
// user and the saved addresses and cards are loaded. Failures to load saved
// records are returned joined; whatever loaded is still applied.
func (o *CheckoutOrchestrator) Begin(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.Begin")
	defer span.End()

	user := o.session.User()

	o.mu.Lock()
	o.resetLocked()
	if user != nil {
		o.prefillFromUserLocked(user)
	}
	o.mu.Unlock()

	token, ok := o.session.Token()
	if user == nil || !ok {
		return nil
	}

	var (
		wg                    sync.WaitGroup
		addresses             []models.SavedAddress
		methods               []models.SavedPaymentMethod
		addressErr, methodErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		addresses, addressErr = o.api.ListAddresses(ctx, token)
	}()
	go func() {
		defer wg.Done()
		methods, methodErr = o.api.ListPaymentMethods(ctx, token)
	}()
	wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	if addressErr != nil {
		errs = append(errs, fmt.Errorf("failed to load saved addresses: %w", addressErr))
	} else {
		o.applyAddressesLocked(addresses)
	}
	if methodErr != nil {
		errs = append(errs, fmt.Errorf("failed to load saved payment methods: %w", methodErr))
	} else {
		o.applyMethodsLocked(methods)
	}

	if err := errors.Join(errs...); err != nil {
		o.logger.Warn("Checkout saved data partially unavailable", zap.Error(err))
		return err
	}
	return nil
}

func (o *CheckoutOrchestrator) prefillFromUserLocked(user *models.User) {
	if o.userPrefilled {
		return
	}
	tokens := strings.Fields(user.Name)
	var first, last string
	if len(tokens) > 0 {
		first = tokens[0]
		last = strings.Join(tokens[1:], " ")
	}
	if o.form.FirstName == "" {
		o.form.FirstName = first
	}
	if o.form.LastName == "" {
		o.form.LastName = last
	}
	if o.form.Email == "" {
		o.form.Email = user.Email
	}
	if o.form.Phone == "" {
		o.form.Phone = user.Phone
	}
	if o.form.CardName == "" {
		o.form.CardName = user.Name
	}
	o.userPrefilled = true
}

func (o *CheckoutOrchestrator) applyAddressesLocked(addresses []models.SavedAddress) {
	o.savedAddresses = append([]models.SavedAddress{}, addresses...)
	if len(addresses) == 0 || o.selectedAddressID != "" {
		return
	}
	def := addresses[0]
	for _, a := range addresses {
		if a.IsDefault {
			def = a
			break
		}
	}
	o.selectedAddressID = def.ID
	o.form.mirrorAddress(def)
}

func (o *CheckoutOrchestrator) applyMethodsLocked(methods []models.SavedPaymentMethod) {
	o.savedMethods = append([]models.SavedPaymentMethod{}, methods...)
	if len(methods) == 0 || o.selectedMethodID != NewSavedMethod {
		return
	}
	def := methods[0]
	for _, m := range methods {
		if m.IsDefault {
			def = m
			break
		}
	}
	o.selectedMethodID = def.ID
	o.form.mirrorCard(def)
	o.saveCard = false
}

// UpdateField edits one form field. Editing a mirrored address field drops
// the saved-address selection; editing a card field switches to manual card
// entry.
func (o *CheckoutOrchestrator) UpdateField(field, value string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.form.set(field, value) {
		return newOpError(ErrValidation, fmt.Sprintf("Unknown checkout field %q.", field), nil)
	}
	if addressFields[field] {
		o.selectedAddressID = ""
	}
	if cardFields[field] {
		o.selectedMethodID = NewSavedMethod
	}
	return nil
}

// SelectAddress mirrors a saved address into the form.
func (o *CheckoutOrchestrator) SelectAddress(addressID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, a := range o.savedAddresses {
		if a.ID == addressID {
			o.selectedAddressID = a.ID
			o.form.mirrorAddress(a)
			o.saveAddress = false
			return nil
		}
	}
	return newOpError(ErrValidation, "Saved address not found.", nil)
}

// SetSaveAddress sets whether SubmitShipping saves the entered address.
func (o *CheckoutOrchestrator) SetSaveAddress(save bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saveAddress = save
}

// SetSaveCard sets whether submitting a manually entered card saves it.
func (o *CheckoutOrchestrator) SetSaveCard(save bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saveCard = save
}

// SubmitShipping completes the shipping step, saving the address first when
// requested. On failure the step does not advance.
func (o *CheckoutOrchestrator) SubmitShipping(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "CheckoutOrchestrator.SubmitShipping")
	defer span.End()

	o.mu.Lock()
	form := o.form
	save := o.saveAddress
	o.mu.Unlock()

	if missing := missingShippingFields(form); len(missing) > 0 {
		return newOpError(ErrValidation, "Please fill in all shipping details: "+strings.Join(missing, ", ")+".", nil)
	}

	if save {
		token, ok := o.session.Token()
		if !ok {
			return newOpError(ErrAuthentication, "Please log in to save addresses for future orders.", nil)
		}

		resp, err := o.api.SaveAddress(ctx, token, apiclient.SaveAddressRequest{
			FirstName: form.FirstName,
			LastName:  form.LastName,
			Email:     form.Email,
			Phone:     form.Phone,
			Address:   form.Address,
			City:      form.City,
			State:     form.State,
			Zip:       form.Zip,
			Country:   form.Country,
			IsDefault: true,
		})
		if err != nil {
			return fmt.Errorf("failed to save address: %w", err)
		}

		o.mu.Lock()
		o.savedAddresses = append([]models.SavedAddress{}, resp.Addresses...)
		o.selectedAddressID = resp.Address.ID
		o.saveAddress = false
		o.mu.Unlock()

		o.syncUser(ctx, func(u *models.User) { u.SavedAddresses = resp.Addresses })
	}

	o.mu.Lock()
	o.step = StepPayment
	o.mu.Unlock()
	return nil
}

// BackToShipping returns to the shipping step keeping payment fields.
func (o *CheckoutOrchestrator) BackToShipping() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.step = StepShipping
}

// SelectPaymentMethodKind switches between card, wallet redirect and UPI
// apps. Choosing UPI apps starts over with a fresh reference id.
func (o *CheckoutOrchestrator) SelectPaymentMethodKind(kind PaymentKind) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch kind {
	case PaymentCard, PaymentPayPal, PaymentUPIApps:
	default:
		return newOpError(ErrValidation, fmt.Sprintf("Unsupported payment method %q.", kind), nil)
	}

	o.form.PaymentMethod = kind
	if kind != PaymentCard {
		o.selectedMethodID = NewSavedMethod
		o.saveCard = false
	}
	o.paymentError = ""
	o.notice = ""
	if kind == PaymentUPIApps {
		o.selectedApp = AppPhonePe
		o.attempt = PaymentAttempt{ReferenceID: o.newReferenceLocked(), State: AttemptNotStarted}
		return nil
	}
	o.attempt.State = AttemptNotStarted
	o.attempt.IntentURI = ""
	return nil
}

// SelectSavedPaymentMethod mirrors a saved card, or with NewSavedMethod
// clears the card fields for manual entry.
func (o *CheckoutOrchestrator) SelectSavedPaymentMethod(methodID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if methodID == NewSavedMethod {
		o.selectedMethodID = NewSavedMethod
		o.form.CardNumber = ""
		o.form.ExpiryDate = ""
		o.form.CVV = ""
		o.form.CardName = ""
		if user := o.session.User(); user != nil {
			o.form.CardName = user.Name
		}
		o.saveCard = false
		return nil
	}

	for _, m := range o.savedMethods {
		if m.ID == methodID {
			o.selectedMethodID = m.ID
			o.form.mirrorCard(m)
			o.saveCard = false
			return nil
		}
	}
	return newOpError(ErrValidation, "Saved payment method not found.", nil)
}

// Snapshot returns the current state. Manually entered card numbers are
// masked.
func (o *CheckoutOrchestrator) Snapshot() CheckoutSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	form := o.form
	form.CVV = ""
	if o.selectedMethodID == NewSavedMethod {
		form.CardNumber = maskManualCard(form.CardNumber)
	}
	totals := ComputeTotals(o.cart.Cart(), o.payee.TaxRate)

	return CheckoutSnapshot{
		Step:                    o.step,
		Form:                    form,
		SavedAddresses:          append([]models.SavedAddress{}, o.savedAddresses...),
		SelectedAddressID:       o.selectedAddressID,
		SaveAddress:             o.saveAddress,
		SavedPaymentMethods:     append([]models.SavedPaymentMethod{}, o.savedMethods...),
		SelectedPaymentMethodID: o.selectedMethodID,
		SaveCard:                o.saveCard,
		SelectedApp:             o.selectedApp,
		Attempt:                 o.attempt,
		UPILink:                 BuildUPILink(o.payee, totals.Total, o.attempt.ReferenceID),
		Totals:                  totals,
		PaymentError:            o.paymentError,
		Notice:                  o.notice,
		Submitting:              o.submitting,
	}
}

// Confirmation returns the last placed order of this checkout session.
func (o *CheckoutOrchestrator) Confirmation() *models.OrderResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.confirmation
}

// syncUser mirrors saved records into the session user.
func (o *CheckoutOrchestrator) syncUser(ctx context.Context, apply func(*models.User)) {
	user := o.session.User()
	if user == nil {
		return
	}
	apply(user)
	if err := o.session.UpdateUser(ctx, user); err != nil {
		o.logger.Warn("Failed to update session user", zap.Error(err))
	}
}

func missingShippingFields(f CheckoutForm) []string {
	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"firstName", f.FirstName},
		{"lastName", f.LastName},
		{"email", f.Email},
		{"address", f.Address},
		{"city", f.City},
		{"state", f.State},
		{"zip", f.Zip},
		{"country", f.Country},
		{"phone", f.Phone},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

func maskManualCard(number string) string {
	cleaned := CleanCardNumber(number)
	if len(cleaned) <= 4 {
		return number
	}
	return MaskedCardNumber(cleaned[len(cleaned)-4:])
}
