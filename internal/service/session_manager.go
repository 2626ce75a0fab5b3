package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"storefront-client/internal/apiclient"
	"storefront-client/internal/clock"
	"storefront-client/internal/models"
	"storefront-client/internal/storage"
	"storefront-client/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultSessionDuration is how long a login stays valid on this client.
const DefaultSessionDuration = 2 * time.Hour

// SessionState is the authentication state of the client.
type SessionState int

const (
	StateLoggedOut SessionState = iota
	StateAuthenticating
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "logged_out"
	}
}

// Transition reasons
const (
	ReasonLogin    = "login"
	ReasonRegister = "register"
	ReasonRestore  = "restore"
	ReasonLogout   = "logout"
	ReasonExpired  = "expired"
	ReasonCorrupt  = "corrupt"
	ReasonFailed   = "failed"
)

// Transition is published to subscribers on every state change. User is a
// copy of the session user when To is StateAuthenticated.
type Transition struct {
	From   SessionState
	To     SessionState
	Reason string
	User   *models.User
}

// AuthAPI is the subset of the backend used for authentication.
type AuthAPI interface {
	Login(ctx context.Context, email, password, accountType string) (*apiclient.AuthResponse, error)
	Register(ctx context.Context, name, email, password string) (*apiclient.AuthResponse, error)
	UpdateProfile(ctx context.Context, token string, updates map[string]interface{}) (json.RawMessage, error)
	UpdateProfilePicture(ctx context.Context, token, filename string, image io.Reader) (*models.User, error)
}

// EventChannel is the realtime connection owned by the session.
type EventChannel interface {
	Connect(ctx context.Context, token string) error
	Disconnect() error
}

// SessionManager owns the single session of this client: credentials, the
// persisted mirror, the expiry timer and the event channel.
type SessionManager struct {
	api      AuthAPI
	store    storage.Store
	channel  EventChannel
	clock    clock.Clock
	duration time.Duration
	logger   *zap.Logger

	mu          sync.RWMutex
	state       SessionState
	token       string
	user        *models.User
	role        string
	expiresAt   time.Time
	timer       clock.Timer
	timerGen    uint64
	epoch       uint64
	initialized bool
	subscribers []func(Transition)

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSessionManager creates a session manager. It reports loading until
// InitializeAuth has run.
func NewSessionManager(
	api AuthAPI,
	store storage.Store,
	channel EventChannel,
	clk clock.Clock,
	duration time.Duration,
) *SessionManager {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionManager{
		api:      api,
		store:    store,
		channel:  channel,
		clock:    clk,
		duration: duration,
		logger:   util.GetLogger(),
		ready:    make(chan struct{}),
	}
}

// Subscribe registers fn for state transitions. Callbacks run synchronously
// on the goroutine that caused the transition, after internal locks are
// released.
func (sm *SessionManager) Subscribe(fn func(Transition)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.subscribers = append(sm.subscribers, fn)
}

// Login authenticates with email and password. accountType selects the user
// or admin endpoint.
func (sm *SessionManager) Login(ctx context.Context, email, password, accountType string) error {
	ctx, span := util.StartSpan(ctx, "SessionManager.Login")
	defer span.End()

	if accountType == "" {
		accountType = models.RoleUser
	}

	epoch, err := sm.beginAuthenticating(ctx)
	if err != nil {
		return err
	}

	resp, err := sm.api.Login(ctx, email, password, accountType)
	if err != nil {
		sm.rollback(epoch)
		util.LoginsTotal.WithLabelValues(ReasonLogin, "failure").Inc()
		sm.logger.Warn("Login failed", zap.String("email", email), zap.Error(err))
		return newOpError(ErrAuthentication, messageOr(err, "Login failed"), err)
	}

	user := normalizeUser(resp.User)
	if err := sm.establish(ctx, epoch, resp.Token, user, ReasonLogin); err != nil {
		util.LoginsTotal.WithLabelValues(ReasonLogin, "failure").Inc()
		return err
	}

	util.LoginsTotal.WithLabelValues(ReasonLogin, "success").Inc()
	sm.logger.Info("User logged in",
		zap.String("user_id", user.ID),
		zap.String("role", user.Role))
	return nil
}

// Register creates an account and starts its session with an empty cart.
func (sm *SessionManager) Register(ctx context.Context, name, email, password string) error {
	ctx, span := util.StartSpan(ctx, "SessionManager.Register")
	defer span.End()

	epoch, err := sm.beginAuthenticating(ctx)
	if err != nil {
		return err
	}

	resp, err := sm.api.Register(ctx, name, email, password)
	if err != nil {
		sm.rollback(epoch)
		util.LoginsTotal.WithLabelValues(ReasonRegister, "failure").Inc()
		sm.logger.Warn("Registration failed", zap.String("email", email), zap.Error(err))
		return newOpError(ErrAuthentication, messageOr(err, "Registration failed"), err)
	}

	user := normalizeUser(resp.User)
	if err := sm.establish(ctx, epoch, resp.Token, user, ReasonRegister); err != nil {
		util.LoginsTotal.WithLabelValues(ReasonRegister, "failure").Inc()
		return err
	}

	util.LoginsTotal.WithLabelValues(ReasonRegister, "success").Inc()
	sm.logger.Info("User registered", zap.String("user_id", user.ID))
	return nil
}

// Logout tears the session down. It is safe to call when logged out.
func (sm *SessionManager) Logout(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "SessionManager.Logout")
	defer span.End()

	return sm.teardown(ctx, ReasonLogout)
}

// InitializeAuth restores a persisted session once at boot. Partial or
// corrupt state and expired sessions are cleared silently.
func (sm *SessionManager) InitializeAuth(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "SessionManager.InitializeAuth")
	defer span.End()
	defer sm.markReady()

	sm.mu.Lock()
	if sm.initialized {
		sm.mu.Unlock()
		return fmt.Errorf("session already initialized")
	}
	sm.initialized = true
	sm.mu.Unlock()

	token, hasToken, err := sm.readKey(ctx, storage.KeyToken)
	if err != nil {
		return err
	}
	userJSON, hasUser, err := sm.readKey(ctx, storage.KeyUser)
	if err != nil {
		return err
	}
	expiryRaw, hasExpiry, err := sm.readKey(ctx, storage.KeyTokenExpiry)
	if err != nil {
		return err
	}

	if !hasToken && !hasUser && !hasExpiry {
		util.SessionRestoresTotal.WithLabelValues("empty").Inc()
		return nil
	}
	if !hasToken || !hasUser || !hasExpiry {
		sm.logger.Warn("Incomplete persisted session, clearing",
			zap.Bool("token", hasToken),
			zap.Bool("user", hasUser),
			zap.Bool("expiry", hasExpiry))
		util.SessionRestoresTotal.WithLabelValues(ReasonCorrupt).Inc()
		return sm.teardown(ctx, ReasonCorrupt)
	}

	var user models.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		sm.logger.Warn("Failed to parse persisted user, clearing", zap.Error(err))
		util.SessionRestoresTotal.WithLabelValues(ReasonCorrupt).Inc()
		return sm.teardown(ctx, ReasonCorrupt)
	}

	now := sm.clock.Now()
	expiryMillis, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil || !time.UnixMilli(expiryMillis).After(now) {
		sm.logger.Info("Persisted session expired or unreadable, clearing", zap.String("expiry", expiryRaw))
		util.SessionRestoresTotal.WithLabelValues(ReasonExpired).Inc()
		return sm.teardown(ctx, ReasonExpired)
	}
	if tokenExpired(token, now) {
		sm.logger.Info("Persisted token carries an elapsed exp claim, clearing")
		util.SessionRestoresTotal.WithLabelValues(ReasonExpired).Inc()
		return sm.teardown(ctx, ReasonExpired)
	}

	expiresAt := time.UnixMilli(expiryMillis)
	restored := normalizeUser(user)

	sm.mu.Lock()
	from := sm.state
	sm.state = StateAuthenticated
	sm.token = token
	sm.user = restored
	sm.role = restored.Role
	sm.expiresAt = expiresAt
	sm.scheduleLocked(expiresAt)
	subs := sm.subscribersLocked()
	sm.mu.Unlock()

	sm.notify(subs, Transition{From: from, To: StateAuthenticated, Reason: ReasonRestore, User: restored.Clone()})
	sm.connect(ctx, token)

	util.SessionRestoresTotal.WithLabelValues("restored").Inc()
	sm.logger.Info("Session restored",
		zap.String("user_id", restored.ID),
		zap.Time("expires_at", expiresAt))
	return nil
}

// IsLoading reports whether boot restoration is still running.
func (sm *SessionManager) IsLoading() bool {
	select {
	case <-sm.ready:
		return false
	default:
		return true
	}
}

// WaitReady blocks until boot restoration has finished.
func (sm *SessionManager) WaitReady(ctx context.Context) error {
	select {
	case <-sm.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateUser replaces the session user and its persisted mirror. The expiry
// timer is not touched.
func (sm *SessionManager) UpdateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	if !sm.IsAuthenticated() {
		return newOpError(ErrAuthentication, "Please log in to update your profile.", nil)
	}

	next := user.Clone()
	if err := sm.persistUser(ctx, next); err != nil {
		return err
	}

	sm.mu.Lock()
	sm.user = next
	sm.mu.Unlock()
	return nil
}

// UpdateProfile sends a partial profile update and merges the server's user
// over the current one. Cart and saved records are kept when the server
// omits them.
func (sm *SessionManager) UpdateProfile(ctx context.Context, updates map[string]interface{}) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "SessionManager.UpdateProfile")
	defer span.End()

	token, ok := sm.Token()
	if !ok {
		return nil, newOpError(ErrAuthentication, "No authentication token found", nil)
	}

	raw, err := sm.api.UpdateProfile(ctx, token, updates)
	if err != nil {
		return nil, fmt.Errorf("profile update failed: %w", err)
	}

	merged, err := mergeUser(sm.User(), raw)
	if err != nil {
		return nil, fmt.Errorf("failed to merge profile: %w", err)
	}
	if err := sm.UpdateUser(ctx, merged); err != nil {
		return nil, err
	}
	return merged.Clone(), nil
}

// UpdateProfilePicture uploads a new picture and replaces the session user
// with the one returned.
func (sm *SessionManager) UpdateProfilePicture(ctx context.Context, filename string, image io.Reader) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "SessionManager.UpdateProfilePicture")
	defer span.End()

	token, ok := sm.Token()
	if !ok {
		return nil, newOpError(ErrAuthentication, "No authentication token found", nil)
	}

	user, err := sm.api.UpdateProfilePicture(ctx, token, filename, image)
	if err != nil {
		return nil, fmt.Errorf("profile picture update failed: %w", err)
	}

	next := normalizeUser(*user)
	if err := sm.UpdateUser(ctx, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// State returns the current state.
func (sm *SessionManager) State() SessionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// IsAuthenticated reports whether a session is active.
func (sm *SessionManager) IsAuthenticated() bool {
	return sm.State() == StateAuthenticated
}

// Token returns the bearer token of the active session.
func (sm *SessionManager) Token() (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.state != StateAuthenticated || sm.token == "" {
		return "", false
	}
	return sm.token, true
}

// User returns a copy of the session user, or nil.
func (sm *SessionManager) User() *models.User {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.state != StateAuthenticated {
		return nil
	}
	return sm.user.Clone()
}

// UserID returns the id of the session user, or "".
func (sm *SessionManager) UserID() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.state != StateAuthenticated || sm.user == nil {
		return ""
	}
	return sm.user.ID
}

// Session returns the active session, or nil.
func (sm *SessionManager) Session() *models.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.state != StateAuthenticated {
		return nil
	}
	return &models.Session{
		UserID:      sm.user.ID,
		Role:        sm.role,
		BearerToken: sm.token,
		ExpiresAt:   sm.expiresAt,
	}
}

func (sm *SessionManager) beginAuthenticating(ctx context.Context) (uint64, error) {
	sm.mu.RLock()
	state := sm.state
	sm.mu.RUnlock()

	switch state {
	case StateAuthenticating:
		return 0, newOpError(ErrAuthentication, "A login is already in progress.", nil)
	case StateAuthenticated:
		// a new login replaces the current session
		if err := sm.teardown(ctx, ReasonLogout); err != nil {
			sm.logger.Warn("Failed to clear previous session", zap.Error(err))
		}
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateLoggedOut {
		return 0, newOpError(ErrAuthentication, "A login is already in progress.", nil)
	}
	sm.state = StateAuthenticating
	return sm.epoch, nil
}

func (sm *SessionManager) rollback(epoch uint64) {
	sm.mu.Lock()
	if sm.epoch != epoch || sm.state != StateAuthenticating {
		sm.mu.Unlock()
		return
	}
	sm.state = StateLoggedOut
	subs := sm.subscribersLocked()
	sm.mu.Unlock()

	sm.notify(subs, Transition{From: StateAuthenticating, To: StateLoggedOut, Reason: ReasonFailed})
}

// establish persists a fresh session, arms the timer and connects the
// channel.
func (sm *SessionManager) establish(ctx context.Context, epoch uint64, token string, user *models.User, reason string) error {
	expiresAt := sm.clock.Now().Add(sm.duration)

	if err := sm.persistSession(ctx, token, user, expiresAt); err != nil {
		if delErr := sm.store.Delete(ctx, storage.SessionKeys...); delErr != nil {
			sm.logger.Error("Failed to clean up partial session", zap.Error(delErr))
		}
		sm.rollback(epoch)
		return err
	}

	sm.mu.Lock()
	if sm.epoch != epoch || sm.state != StateAuthenticating {
		// logged out while the request was in flight
		sm.mu.Unlock()
		if err := sm.store.Delete(ctx, storage.SessionKeys...); err != nil {
			sm.logger.Error("Failed to discard superseded session", zap.Error(err))
		}
		return newOpError(ErrAuthentication, "Login was cancelled.", nil)
	}
	sm.state = StateAuthenticated
	sm.token = token
	sm.user = user
	sm.role = user.Role
	sm.expiresAt = expiresAt
	sm.scheduleLocked(expiresAt)
	subs := sm.subscribersLocked()
	sm.mu.Unlock()

	sm.notify(subs, Transition{From: StateAuthenticating, To: StateAuthenticated, Reason: reason, User: user.Clone()})
	sm.connect(ctx, token)
	return nil
}

// scheduleLocked cancels any pending expiry and arms a new one.
func (sm *SessionManager) scheduleLocked(expiresAt time.Time) {
	if sm.timer != nil {
		sm.timer.Stop()
		sm.timer = nil
	}
	sm.timerGen++
	gen := sm.timerGen

	remaining := expiresAt.Sub(sm.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	sm.timer = sm.clock.AfterFunc(remaining, func() {
		sm.expire(gen)
	})
}

func (sm *SessionManager) expire(gen uint64) {
	current := func() bool {
		return gen == sm.timerGen && sm.state == StateAuthenticated
	}
	torn, err := sm.teardownIf(context.Background(), ReasonExpired, current)
	if err != nil {
		sm.logger.Error("Failed to clear expired session", zap.Error(err))
	}
	if torn {
		sm.logger.Info("Session expired")
	}
}

// teardown clears in-memory and persisted session state and disconnects the
// channel. Subscribers are notified only when the state changed.
func (sm *SessionManager) teardown(ctx context.Context, reason string) error {
	_, err := sm.teardownIf(ctx, reason, nil)
	return err
}

// teardownIf runs teardown when guard, evaluated under the lock, is nil or
// true.
func (sm *SessionManager) teardownIf(ctx context.Context, reason string, guard func() bool) (bool, error) {
	sm.mu.Lock()
	if guard != nil && !guard() {
		sm.mu.Unlock()
		return false, nil
	}
	if sm.timer != nil {
		sm.timer.Stop()
		sm.timer = nil
	}
	sm.timerGen++
	sm.epoch++
	from := sm.state
	sm.state = StateLoggedOut
	sm.token = ""
	sm.user = nil
	sm.role = ""
	sm.expiresAt = time.Time{}
	subs := sm.subscribersLocked()
	sm.mu.Unlock()

	storeErr := sm.store.Delete(ctx, storage.SessionKeys...)
	if storeErr != nil {
		sm.logger.Error("Failed to clear persisted session", zap.Error(storeErr))
	}

	if from != StateLoggedOut {
		util.LogoutsTotal.WithLabelValues(reason).Inc()
		sm.notify(subs, Transition{From: from, To: StateLoggedOut, Reason: reason})
	}

	if err := sm.channel.Disconnect(); err != nil {
		sm.logger.Warn("Failed to disconnect event channel", zap.Error(err))
	}

	if storeErr != nil {
		return true, fmt.Errorf("failed to clear persisted session: %w", storeErr)
	}
	return true, nil
}

func (sm *SessionManager) connect(ctx context.Context, token string) {
	if err := sm.channel.Connect(ctx, token); err != nil {
		sm.logger.Warn("Failed to connect event channel", zap.Error(err))
	}
}

func (sm *SessionManager) persistSession(ctx context.Context, token string, user *models.User, expiresAt time.Time) error {
	if err := sm.store.Set(ctx, storage.KeyToken, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	if err := sm.persistUser(ctx, user); err != nil {
		return err
	}
	if err := sm.store.Set(ctx, storage.KeyTokenExpiry, strconv.FormatInt(expiresAt.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("failed to persist token expiry: %w", err)
	}
	return nil
}

func (sm *SessionManager) persistUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := sm.store.Set(ctx, storage.KeyUser, string(data)); err != nil {
		return fmt.Errorf("failed to persist user: %w", err)
	}
	return nil
}

// readKey treats an empty value as absent.
func (sm *SessionManager) readKey(ctx context.Context, key string) (string, bool, error) {
	val, ok, err := sm.store.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return val, ok && val != "", nil
}

func (sm *SessionManager) subscribersLocked() []func(Transition) {
	return append(([]func(Transition))(nil), sm.subscribers...)
}

func (sm *SessionManager) notify(subs []func(Transition), t Transition) {
	for _, fn := range subs {
		fn(t)
	}
}

func (sm *SessionManager) markReady() {
	sm.readyOnce.Do(func() { close(sm.ready) })
}

// normalizeUser fills the defaults the backend may leave out.
func normalizeUser(u models.User) *models.User {
	user := u.Clone()
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.Following == nil {
		user.Following = []json.RawMessage{}
	}
	if user.Followers == nil {
		user.Followers = []json.RawMessage{}
	}
	if user.Preferences.FavoriteCategories == nil {
		user.Preferences.FavoriteCategories = []string{}
	}
	if user.Preferences.Sizes == nil {
		user.Preferences.Sizes = []string{}
	}
	if user.Wishlist == nil {
		user.Wishlist = []string{}
	}
	if user.SavedAddresses == nil {
		user.SavedAddresses = []models.SavedAddress{}
	}
	if user.SavedPaymentMethods == nil {
		user.SavedPaymentMethods = []models.SavedPaymentMethod{}
	}
	return user
}

// mergeUser overlays the fields present in patch on current.
func mergeUser(current *models.User, patch json.RawMessage) (*models.User, error) {
	base := map[string]json.RawMessage{}
	if current != nil {
		data, err := json.Marshal(current)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &base); err != nil {
			return nil, err
		}
	}

	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, err
	}
	for k, v := range overlay {
		if string(v) == "null" {
			switch k {
			case "cart", "savedAddresses", "savedPaymentMethods":
				continue
			}
		}
		base[k] = v
	}

	data, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var merged models.User
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	return normalizeUser(merged), nil
}

// tokenExpired reports whether token is a JWT whose exp claim has elapsed.
// Opaque tokens and tokens without exp are never considered expired here.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.Time.After(now)
}

func messageOr(err error, fallback string) string {
	if msg := apiclient.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}
