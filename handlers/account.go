package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentwise/portal/internal/checkout"
	"github.com/rentwise/portal/internal/entitlements"
	"github.com/rentwise/portal/internal/guard"
	"github.com/rentwise/portal/internal/models"
	"github.com/rentwise/portal/pkg/logger"
	"github.com/rentwise/portal/pkg/middleware"
)

// SubscriptionReader is the cached subscription view the guard also reads.
type SubscriptionReader interface {
	FetchSubscription(ctx context.Context, userID string) (*models.Subscription, error)
}

// PropertyCounter reports how many properties a user owns.
type PropertyCounter interface {
	List(ctx context.Context, ownerID string) ([]*models.Property, error)
}

// AccountHandler serves the signed-in views that need no membership.
type AccountHandler struct {
	subs       SubscriptionReader
	checkout   checkout.Provider
	properties PropertyCounter
}

// NewAccountHandler wires the handler. checkout and properties may be nil.
func NewAccountHandler(subs SubscriptionReader, co checkout.Provider, props PropertyCounter) *AccountHandler {
	return &AccountHandler{subs: subs, checkout: co, properties: props}
}

// RegisterPlans mounts the public pricing list.
func RegisterPlans(rg *gin.RouterGroup) {
	rg.GET("/plans", func(c *gin.Context) {
		c.JSON(http.StatusOK, entitlements.Plans())
	})
}

// Register mounts /me, /subscription and /checkout on a Basic-guarded group.
func (h *AccountHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/me", h.Me)
	rg.GET("/subscription", h.Subscription)
	rg.POST("/checkout", h.Checkout)
}

// RegisterDashboard mounts /dashboard on an EndUser-guarded group.
func (h *AccountHandler) RegisterDashboard(rg *gin.RouterGroup) {
	rg.GET("/dashboard", h.Dashboard)
}

func (h *AccountHandler) Me(c *gin.Context) {
	s, ok := subject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": s.User, "userId": s.UserID, "role": s.Role, "synthetic": s.Synthetic})
}

func (h *AccountHandler) Subscription(c *gin.Context) {
	s, ok := subject(c)
	if !ok {
		return
	}
	sub, err := h.subs.FetchSubscription(c.Request.Context(), s.UserID)
	if err != nil {
		logger.Errorf("subscription lookup for %s: %v", s.UserID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "subscription unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub, "plan": entitlements.PlanSummary(sub), "hasAccess": entitlements.HasAccess(sub)})
}

func (h *AccountHandler) Checkout(c *gin.Context) {
	s, ok := subject(c)
	if !ok {
		return
	}
	if h.checkout == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "checkout not configured"})
		return
	}
	var req struct {
		PriceID string `json:"priceId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cr := checkout.Request{PriceID: req.PriceID, UserID: s.UserID}
	if s.User != nil {
		cr.Email = s.User.Email
	}
	u, err := h.checkout.CreateSession(c.Request.Context(), cr)
	switch {
	case errors.Is(err, checkout.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.Errorf("checkout for %s: %v", s.UserID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "checkout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

func (h *AccountHandler) Dashboard(c *gin.Context) {
	s, ok := subject(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	out := gin.H{"userId": s.UserID, "role": s.Role, "synthetic": s.Synthetic}

	sub, err := h.subs.FetchSubscription(ctx, s.UserID)
	if err != nil {
		logger.Warnf("dashboard: subscription for %s: %v", s.UserID, err)
	}
	out["plan"] = entitlements.PlanSummary(sub)
	out["hasAccess"] = entitlements.HasAccess(sub)

	if h.properties != nil && entitlements.HasAccess(sub) {
		list, err := h.properties.List(ctx, s.UserID)
		if err != nil {
			logger.Warnf("dashboard: properties for %s: %v", s.UserID, err)
		}
		out["properties"] = len(list)
	}
	c.JSON(http.StatusOK, out)
}

func subject(c *gin.Context) (*guard.Subject, bool) {
	s, ok := middleware.SubjectFrom(c)
	if !ok || s == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return nil, false
	}
	return s, true
}
