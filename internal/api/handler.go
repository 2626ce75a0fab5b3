package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"storefront-client/internal/models"
	"storefront-client/internal/service"
	"storefront-client/internal/util"
	"storefront-client/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	session  *service.SessionManager
	cart     *service.CartSynchronizer
	checkout *service.CheckoutOrchestrator
	feed     *worker.NotificationFeed
	bridge   *ShellBridge
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	session *service.SessionManager,
	cart *service.CartSynchronizer,
	checkout *service.CheckoutOrchestrator,
	feed *worker.NotificationFeed,
	bridge *ShellBridge,
) *Handler {
	return &Handler{
		session:  session,
		cart:     cart,
		checkout: checkout,
		feed:     feed,
		bridge:   bridge,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/session/login", h.login)
		v1.POST("/session/register", h.register)
		v1.POST("/session/logout", h.logout)
		v1.GET("/session", h.getSession)
		v1.PUT("/session/profile", h.updateProfile)
		v1.POST("/session/profile/picture", h.updateProfilePicture)

		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PATCH("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)
		v1.DELETE("/cart", h.clearCart)
		v1.POST("/cart/refresh", h.refreshCart)

		v1.POST("/checkout/begin", h.beginCheckout)
		v1.GET("/checkout", h.getCheckout)
		v1.PATCH("/checkout/form", h.updateCheckoutForm)
		v1.POST("/checkout/addresses/select", h.selectAddress)
		v1.POST("/checkout/shipping", h.submitShipping)
		v1.POST("/checkout/back", h.backToShipping)
		v1.POST("/checkout/payment-method", h.selectPaymentMethod)
		v1.POST("/checkout/saved-cards/select", h.selectSavedCard)
		v1.POST("/checkout/payment-apps/select", h.selectPaymentApp)
		v1.POST("/checkout/payment-apps/launch", h.launchPaymentApp)
		v1.GET("/checkout/qr", h.getQRCode)
		v1.POST("/checkout/qr/refresh", h.refreshQRCode)
		v1.POST("/checkout/visibility", h.visibilityChanged)
		v1.POST("/checkout/confirm", h.confirmPayment)
		v1.POST("/checkout/submit", h.submitPayment)
		v1.GET("/checkout/confirmation", h.getConfirmation)
		v1.GET("/checkout/navigation", h.takeNavigation)

		v1.GET("/notifications", h.listNotifications)
		v1.POST("/notifications/read-all", h.markAllNotificationsRead)
		v1.POST("/notifications/:id/read", h.markNotificationRead)
		v1.DELETE("/notifications/:id", h.removeNotification)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports not ready until the persisted session was restored
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.session.IsLoading() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "loading",
			"time":   time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type loginRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	AccountType string `json:"accountType"`
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.session.Login(c.Request.Context(), req.Email, req.Password, req.AccountType); err != nil {
		writeError(c, err)
		return
	}
	h.getSession(c)
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.session.Register(c.Request.Context(), req.Name, req.Email, req.Password); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
	h.getSession(c)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.session.Logout(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getSession(c *gin.Context) {
	c.JSON(c.Writer.Status(), gin.H{
		"state":   h.session.State().String(),
		"loading": h.session.IsLoading(),
		"session": h.session.Session(),
		"user":    h.session.User(),
	})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.session.UpdateProfile(c.Request.Context(), updates)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) updateProfilePicture(c *gin.Context) {
	header, err := c.FormFile("profilePicture")
	if err != nil {
		badRequest(c, err)
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer file.Close()

	user, err := h.session.UpdateProfilePicture(c.Request.Context(), header.Filename, file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type addItemRequest struct {
	ProductID     string `json:"productId" binding:"required"`
	Quantity      int    `json:"quantity"`
	SelectedSize  string `json:"selectedSize"`
	SelectedColor string `json:"selectedColor"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) getCart(c *gin.Context) {
	cart := h.cart.Cart()
	c.JSON(http.StatusOK, gin.H{
		"cart":      cart,
		"itemCount": cart.ItemCount(),
	})
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product := models.Product{ID: req.ProductID}
	if err := h.cart.AddToCart(c.Request.Context(), product, req.Quantity, req.SelectedSize, req.SelectedColor); err != nil {
		writeError(c, err)
		return
	}
	h.getCart(c)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.cart.UpdateQuantity(c.Request.Context(), c.Param("id"), req.Quantity); err != nil {
		writeError(c, err)
		return
	}
	h.getCart(c)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	if err := h.cart.RemoveFromCart(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	h.getCart(c)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.cart.ClearCart(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.getCart(c)
}

func (h *Handler) refreshCart(c *gin.Context) {
	if err := h.cart.FetchCart(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.getCart(c)
}

type checkoutFormRequest struct {
	Fields      map[string]string `json:"fields"`
	SaveAddress *bool             `json:"saveAddress"`
	SaveCard    *bool             `json:"saveCard"`
}

type selectRequest struct {
	ID string `json:"id" binding:"required"`
}

type paymentMethodRequest struct {
	Method string `json:"method" binding:"required"`
}

type appRequest struct {
	App string `json:"app" binding:"required"`
}

type visibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// beginCheckout starts a checkout. Saved records that failed to load are
// reported as a warning next to the usable snapshot.
func (h *Handler) beginCheckout(c *gin.Context) {
	if err := h.checkout.Begin(c.Request.Context()); err != nil {
		h.logger.Warn("Checkout started with missing saved data", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"checkout": h.checkout.Snapshot(),
			"warning":  messageFor(err),
		})
		return
	}
	h.getCheckout(c)
}

func (h *Handler) getCheckout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"checkout": h.checkout.Snapshot()})
}

// updateCheckoutForm applies field edits in name order.
func (h *Handler) updateCheckoutForm(c *gin.Context) {
	var req checkoutFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	names := make([]string, 0, len(req.Fields))
	for name := range req.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checkout.UpdateField(name, req.Fields[name]); err != nil {
			writeError(c, err)
			return
		}
	}

	if req.SaveAddress != nil {
		h.checkout.SetSaveAddress(*req.SaveAddress)
	}
	if req.SaveCard != nil {
		h.checkout.SetSaveCard(*req.SaveCard)
	}
	h.getCheckout(c)
}

func (h *Handler) selectAddress(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.checkout.SelectAddress(req.ID); err != nil {
		writeError(c, err)
		return
	}
	h.getCheckout(c)
}

func (h *Handler) submitShipping(c *gin.Context) {
	if err := h.checkout.SubmitShipping(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.getCheckout(c)
}

func (h *Handler) backToShipping(c *gin.Context) {
	h.checkout.BackToShipping()
	h.getCheckout(c)
}

func (h *Handler) selectPaymentMethod(c *gin.Context) {
	var req paymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.checkout.SelectPaymentMethodKind(service.PaymentKind(req.Method)); err != nil {
		writeError(c, err)
		return
	}
	h.getCheckout(c)
}

func (h *Handler) selectSavedCard(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.checkout.SelectSavedPaymentMethod(req.ID); err != nil {
		writeError(c, err)
		return
	}
	h.getCheckout(c)
}

func (h *Handler) selectPaymentApp(c *gin.Context) {
	var req appRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.checkout.SelectPaymentApp(req.App); err != nil {
		writeError(c, err)
		return
	}
	h.getCheckout(c)
}

func (h *Handler) launchPaymentApp(c *gin.Context) {
	var req appRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.checkout.LaunchPaymentApp(c.Request.Context(), req.App); err != nil {
		writeError(c, err)
		return
	}
	h.getCheckout(c)
}

func (h *Handler) getQRCode(c *gin.Context) {
	size, _ := strconv.Atoi(c.Query("size"))
	png, err := h.checkout.RenderQRCode(size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) refreshQRCode(c *gin.Context) {
	link := h.checkout.RefreshQR()
	c.JSON(http.StatusOK, gin.H{
		"upiLink":  link,
		"checkout": h.checkout.Snapshot(),
	})
}

func (h *Handler) visibilityChanged(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	returned := h.checkout.VisibilityChanged(*req.Visible)
	c.JSON(http.StatusOK, gin.H{
		"returnDetected": returned,
		"checkout":       h.checkout.Snapshot(),
	})
}

func (h *Handler) confirmPayment(c *gin.Context) {
	result, err := h.checkout.ConfirmPayment(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": result})
}

func (h *Handler) submitPayment(c *gin.Context) {
	result, err := h.checkout.SubmitPayment(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": result})
}

func (h *Handler) getConfirmation(c *gin.Context) {
	result := h.bridge.Confirmation()
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No order has been placed yet."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": result})
}

func (h *Handler) takeNavigation(c *gin.Context) {
	uri, ok := h.bridge.TakeNavigation()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uri": uri})
}

func (h *Handler) listNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notifications": h.feed.List(),
		"unreadCount":   h.feed.UnreadCount(),
	})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	found, err := h.feed.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	h.listNotifications(c)
}

func (h *Handler) markAllNotificationsRead(c *gin.Context) {
	if err := h.feed.MarkAllRead(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.listNotifications(c)
}

func (h *Handler) removeNotification(c *gin.Context) {
	found, err := h.feed.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	h.listNotifications(c)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
