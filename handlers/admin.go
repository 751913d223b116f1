package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentwise/portal/internal/subscriptions"
	"github.com/rentwise/portal/internal/users"
	"github.com/rentwise/portal/pkg/logger"
)

// AdminHandler manages subscriptions and administrator flags. Mount it on a
// group guarded by the elevated policy plus an administrator role check.
type AdminHandler struct {
	subs  *subscriptions.Service
	users *users.Service
}

func NewAdminHandler(subs *subscriptions.Service, u *users.Service) *AdminHandler {
	return &AdminHandler{subs: subs, users: u}
}

func (h *AdminHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/subscriptions")
	s.GET("", h.ListSubscriptions)
	s.GET("/:userId", h.GetSubscription)
	s.PATCH("/:userId", h.UpdateSubscription)
	s.DELETE("/:userId", h.DeleteSubscription)

	rg.POST("/users/:sub/admin", h.SetAdmin)
}

func (h *AdminHandler) ListSubscriptions(c *gin.Context) {
	list, err := h.subs.List(c.Request.Context())
	if err != nil {
		logger.Errorf("admin: list subscriptions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AdminHandler) GetSubscription(c *gin.Context) {
	sub, err := h.subs.GetByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		logger.Errorf("admin: get subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// UpdateSubscription applies a partial change; the service publishes the
// invalidation so open views of that user re-check membership.
func (h *AdminHandler) UpdateSubscription(c *gin.Context) {
	var ch subscriptions.Change
	if err := c.ShouldBindJSON(&ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub, err := h.subs.Apply(c.Request.Context(), c.Param("userId"), ch)
	if err != nil {
		if errors.Is(err, subscriptions.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("admin: update subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *AdminHandler) DeleteSubscription(c *gin.Context) {
	if err := h.subs.Delete(c.Request.Context(), c.Param("userId")); err != nil {
		if errors.Is(err, subscriptions.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return
		}
		logger.Errorf("admin: delete subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) SetAdmin(c *gin.Context) {
	var req struct {
		Admin *bool `json:"admin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sub := c.Param("sub")
	if err := h.users.SetAdminFlag(c.Request.Context(), sub, *req.Admin); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		logger.Errorf("admin: set admin flag: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	logger.Infof("admin: %s is_admin=%t", sub, *req.Admin)
	c.JSON(http.StatusOK, gin.H{"sub": sub, "admin": *req.Admin})
}
