package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/notes"
	"storefront/internal/pricing"
	"storefront/internal/receipt"
	"storefront/internal/session"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SessionHeader carries the browsing session id in both directions.
const SessionHeader = "X-Session-ID"

const sessionKey = "session"

// OrderArchive looks up archived orders.
type OrderArchive interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
}

// Handler contains HTTP handlers
type Handler struct {
	catalog  *catalog.Provider
	sessions *session.Manager
	policy   pricing.Policy
	archive  OrderArchive
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a new HTTP handler. archive may be nil.
func NewHandler(catalogProvider *catalog.Provider, sessions *session.Manager, policy pricing.Policy, archive OrderArchive) *Handler {
	return &Handler{
		catalog:  catalogProvider,
		sessions: sessions,
		policy:   policy,
		archive:  archive,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/categories", h.listCategories)
		v1.GET("/categories/:name/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
	}

	s := v1.Group("", h.sessionMiddleware())
	{
		s.GET("/cart", h.getCart)
		s.POST("/cart/items", h.addCartItem)
		s.DELETE("/cart/items/:id", h.removeCartItem)
		s.PATCH("/cart/items/:id", h.updateCartItem)
		s.DELETE("/cart", h.clearCart)

		s.GET("/checkout/review", h.reviewCheckout)
		s.POST("/checkout", h.submitCheckout)

		s.GET("/orders/last", h.getLastOrder)
		s.GET("/orders/last/receipt.pdf", h.getLastOrderPDF)
		s.GET("/orders/:id", h.getOrder)

		s.GET("/notes", h.listNotes)
		s.POST("/notes", h.addNote)
		s.DELETE("/notes/:id", h.deleteNote)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the default category can be served.
func (h *Handler) readinessCheck(c *gin.Context) {
	if _, err := h.catalog.GetCategory(c.Request.Context(), h.catalog.DefaultCategory()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// sessionMiddleware resolves the caller's session, issuing a new id when the
// header is missing or malformed.
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Header(SessionHeader, id)
		c.Set(sessionKey, h.sessions.Get(id))
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func (h *Handler) listCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.catalog.Categories()})
}

func (h *Handler) listProducts(c *gin.Context) {
	name := c.Param("name")
	products, err := h.catalog.GetCategory(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Catalog unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": name,
		"products": products,
	})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, ok := h.catalog.GetProductByID(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// totalsView renders a pricing snapshot with two fixed decimals.
type totalsView struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
	Units    int    `json:"units"`
}

func newTotalsView(p models.PricingSnapshot) totalsView {
	return totalsView{
		Subtotal: p.Subtotal.StringFixed(2),
		Tax:      p.Tax.StringFixed(2),
		Shipping: p.Shipping.StringFixed(2),
		Total:    p.GrandTotal.StringFixed(2),
		Units:    p.Units,
	}
}

type cartView struct {
	Items  []models.CartLineItem `json:"items"`
	Totals totalsView            `json:"totals"`
	Count  int                   `json:"count"`
}

func (h *Handler) cartView(ctx context.Context, svc *cart.Service) cartView {
	current := svc.Load(ctx)
	items := current.Items
	if items == nil {
		items = []models.CartLineItem{}
	}
	return cartView{
		Items:  items,
		Totals: newTotalsView(h.policy.Quote(items)),
		Count:  current.Units(),
	}
}

func (h *Handler) getCart(c *gin.Context) {
	sess := currentSession(c)
	c.JSON(http.StatusOK, h.cartView(c.Request.Context(), sess.Cart))
}

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	product, ok := h.catalog.GetProductByID(ctx, req.ProductID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	sess := currentSession(c)
	if err := sess.Cart.AddItem(ctx, product); err != nil {
		h.writeCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.cartView(ctx, sess.Cart))
}

func (h *Handler) removeCartItem(c *gin.Context) {
	ctx := c.Request.Context()
	sess := currentSession(c)
	if err := sess.Cart.RemoveItem(ctx, c.Param("id")); err != nil {
		h.writeCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.cartView(ctx, sess.Cart))
}

type updateItemRequest struct {
	Delta *int `json:"delta" binding:"required"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	sess := currentSession(c)
	if err := sess.Cart.SetQuantityDelta(ctx, c.Param("id"), *req.Delta); err != nil {
		h.writeCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.cartView(ctx, sess.Cart))
}

func (h *Handler) clearCart(c *gin.Context) {
	ctx := c.Request.Context()
	sess := currentSession(c)
	if err := sess.Cart.Clear(ctx); err != nil {
		h.writeCartError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.cartView(ctx, sess.Cart))
}

func (h *Handler) writeCartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cart.ErrOutOfStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrInvalidProduct):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Warn("Cart update not saved", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Cart could not be saved",
			"details": err.Error(),
		})
	}
}

func (h *Handler) reviewCheckout(c *gin.Context) {
	sess := currentSession(c)
	review := sess.Checkout.Review(c.Request.Context())
	if review.Items == nil {
		review.Items = []models.CartLineItem{}
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  review.Items,
		"totals": newTotalsView(review.Totals),
	})
}

// submitCheckout handles order submission
func (h *Handler) submitCheckout(c *gin.Context) {
	var form checkout.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	sess := currentSession(c)
	result, err := sess.Checkout.Submit(c.Request.Context(), form)
	if err != nil {
		var verr *checkout.ValidationError
		var serr *checkout.SubmissionError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "Please correct the highlighted fields",
				"fields": verr.Fields,
			})
		case errors.Is(err, checkout.ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, checkout.ErrSubmissionInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.As(err, &serr):
			c.JSON(http.StatusBadGateway, gin.H{"error": serr.UserMessage()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to submit order",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"orderId":      result.Response.OrderID,
		"status":       result.Response.Status,
		"message":      result.Response.Message,
		"confirmation": receipt.NewConfirmation(result.Receipt, h.now()),
	})
}

func (h *Handler) getLastOrder(c *gin.Context) {
	sess := currentSession(c)
	last, ok := sess.Receipts.Last(c.Request.Context())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": receipt.ErrNoReceipt.Error()})
		return
	}
	c.JSON(http.StatusOK, receipt.NewConfirmation(last, h.now()))
}

func (h *Handler) getLastOrderPDF(c *gin.Context) {
	sess := currentSession(c)
	last, ok := sess.Receipts.Last(c.Request.Context())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": receipt.ErrNoReceipt.Error()})
		return
	}

	var buf bytes.Buffer
	if err := receipt.WritePDF(&buf, last, h.now()); err != nil {
		h.logger.Error("Failed to render receipt PDF", zap.String("order_id", last.OrderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render receipt"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+receipt.Filename(last)+`"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// getOrder handles get order by ID from the archive
func (h *Handler) getOrder(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order archive is disabled"})
		return
	}

	order, err := h.archive.GetOrderByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) listNotes(c *gin.Context) {
	sess := currentSession(c)
	c.JSON(http.StatusOK, gin.H{"notes": sess.Notes.List(c.Request.Context())})
}

type addNoteRequest struct {
	Text string `json:"text"`
}

func (h *Handler) addNote(c *gin.Context) {
	var req addNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	sess := currentSession(c)
	note, err := sess.Notes.Add(c.Request.Context(), req.Text)
	if errors.Is(err, notes.ErrEmptyNote) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Note could not be saved",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *Handler) deleteNote(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid note ID"})
		return
	}

	sess := currentSession(c)
	if err := sess.Notes.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Note could not be deleted",
			"details": err.Error(),
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
