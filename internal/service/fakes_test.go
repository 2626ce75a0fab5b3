package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"storefront-client/internal/apiclient"
	"storefront-client/internal/models"
)

var t0 = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

type fakeAuthAPI struct {
	mu           sync.Mutex
	loginResp    *apiclient.AuthResponse
	loginErr     error
	registerResp *apiclient.AuthResponse
	accountTypes []string
	profileRaw   json.RawMessage
	pictureUser  *models.User

	// when set, Login waits for it to be closed
	block   chan struct{}
	started chan struct{}
}

func (f *fakeAuthAPI) Login(ctx context.Context, email, password, accountType string) (*apiclient.AuthResponse, error) {
	f.mu.Lock()
	f.accountTypes = append(f.accountTypes, accountType)
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResp, nil
}

func (f *fakeAuthAPI) Register(ctx context.Context, name, email, password string) (*apiclient.AuthResponse, error) {
	return f.registerResp, nil
}

func (f *fakeAuthAPI) UpdateProfile(ctx context.Context, token string, updates map[string]interface{}) (json.RawMessage, error) {
	return f.profileRaw, nil
}

func (f *fakeAuthAPI) UpdateProfilePicture(ctx context.Context, token, filename string, image io.Reader) (*models.User, error) {
	return f.pictureUser, nil
}

type fakeChannel struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
}

func (f *fakeChannel) Connect(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, token)
	return nil
}

func (f *fakeChannel) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

// fakeSession satisfies both SessionReader and CheckoutSession.
type fakeSession struct {
	mu      sync.Mutex
	token   string
	user    *models.User
	updated []*models.User
}

func (f *fakeSession) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token != ""
}

func (f *fakeSession) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeSession) User() *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user.Clone()
}

func (f *fakeSession) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return ""
	}
	return f.user.ID
}

func (f *fakeSession) UpdateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = user.Clone()
	f.updated = append(f.updated, user.Clone())
	return nil
}

type cartCall struct {
	op       string
	itemID   string
	quantity int
	add      apiclient.AddItemRequest
}

type fakeCartAPI struct {
	mu    sync.Mutex
	calls []cartCall
	resp  json.RawMessage
	err   error

	block   chan struct{}
	started chan struct{}

	active    int32
	maxActive int32
}

func (f *fakeCartAPI) record(c cartCall) (json.RawMessage, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	f.calls = append(f.calls, c)
	if n > f.maxActive {
		f.maxActive = n
	}
	block, started := f.block, f.started
	f.started = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resp, f.err
}

func (f *fakeCartAPI) FetchCart(ctx context.Context, token string) (json.RawMessage, error) {
	return f.record(cartCall{op: "fetch"})
}

func (f *fakeCartAPI) AddToCart(ctx context.Context, token string, item apiclient.AddItemRequest) (json.RawMessage, error) {
	return f.record(cartCall{op: "add", add: item})
}

func (f *fakeCartAPI) RemoveFromCart(ctx context.Context, token, itemID string) (json.RawMessage, error) {
	return f.record(cartCall{op: "remove", itemID: itemID})
}

func (f *fakeCartAPI) UpdateQuantity(ctx context.Context, token, itemID string, quantity int) (json.RawMessage, error) {
	return f.record(cartCall{op: "update_quantity", itemID: itemID, quantity: quantity})
}

func (f *fakeCartAPI) ClearCart(ctx context.Context, token string) (json.RawMessage, error) {
	return f.record(cartCall{op: "clear"})
}

func (f *fakeCartAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCheckoutAPI struct {
	mu sync.Mutex

	addresses    []models.SavedAddress
	addressesErr error
	methods      []models.SavedPaymentMethod
	methodsErr   error

	savedAddressReq *apiclient.SaveAddressRequest
	saveAddressResp *apiclient.SaveAddressResponse

	saveMethodCalls int
	savedMethodReq  *apiclient.SavePaymentMethodRequest
	saveMethodResp  *apiclient.SavePaymentMethodResponse

	createCalls int
	lastPayload *models.OrderPayload
	createResp  *models.OrderResult
	createErr   error
}

func (f *fakeCheckoutAPI) ListAddresses(ctx context.Context, token string) ([]models.SavedAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addresses, f.addressesErr
}

func (f *fakeCheckoutAPI) SaveAddress(ctx context.Context, token string, req apiclient.SaveAddressRequest) (*apiclient.SaveAddressResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedAddressReq = &req
	return f.saveAddressResp, nil
}

func (f *fakeCheckoutAPI) ListPaymentMethods(ctx context.Context, token string) ([]models.SavedPaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.methods, f.methodsErr
}

func (f *fakeCheckoutAPI) SavePaymentMethod(ctx context.Context, token string, req apiclient.SavePaymentMethodRequest) (*apiclient.SavePaymentMethodResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveMethodCalls++
	f.savedMethodReq = &req
	return f.saveMethodResp, nil
}

func (f *fakeCheckoutAPI) CreateOrder(ctx context.Context, token string, payload *models.OrderPayload) (*models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastPayload = payload
	if f.createErr != nil {
		return nil, f.createErr
	}
	result := *f.createResp
	return &result, nil
}

type fakeCartSource struct {
	mu      sync.Mutex
	cart    models.Cart
	cleared int
}

func (f *fakeCartSource) Cart() models.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cart.Clone()
}

func (f *fakeCartSource) ClearCart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.cart = models.Cart{Items: []models.CartItem{}}
	return nil
}

type fakeNavigator struct {
	uris []string
	err  error
}

func (f *fakeNavigator) Navigate(ctx context.Context, uri string) error {
	f.uris = append(f.uris, uri)
	return f.err
}

type fakeView struct {
	shown []*models.OrderResult
}

func (f *fakeView) ShowConfirmation(result *models.OrderResult) {
	f.shown = append(f.shown, result)
}

type fakeReceipts struct {
	receipts []*models.OrderReceipt
}

func (f *fakeReceipts) RecordReceipt(ctx context.Context, receipt *models.OrderReceipt) error {
	f.receipts = append(f.receipts, receipt)
	return nil
}

type fakeAudit struct {
	orders   []*models.OrderPlacedEvent
	launches []*models.PaymentAppLaunchedEvent
}

func (f *fakeAudit) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	f.orders = append(f.orders, event)
	return nil
}

func (f *fakeAudit) PublishPaymentAppLaunched(ctx context.Context, event *models.PaymentAppLaunchedEvent) error {
	f.launches = append(f.launches, event)
	return nil
}
