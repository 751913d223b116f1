package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rentwise/portal/internal/invalidation"
	"github.com/rentwise/portal/internal/override"
	"github.com/rentwise/portal/internal/roles"
	"github.com/rentwise/portal/pkg/logger"
	"github.com/rentwise/portal/pkg/middleware"
)

const overrideTrackTimeout = 5 * time.Second

// TrackOverrides binds the synthetic user to a view session while its
// override is on, so subscription changes for that user reach the
// entitlement cache.
func TrackOverrides(reg *override.Registry, tr *invalidation.Tracker, userID string) {
	reg.OnChange(func(key string, enabled bool) {
		if !enabled {
			tr.Forget(key)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), overrideTrackTimeout)
		defer cancel()
		if err := tr.Track(ctx, key, userID); err != nil {
			logger.Warnf("override: invalidation subscribe for %s: %v", userID, err)
		}
	})
}

// RegisterOverride mounts the developer access override under /dev/override.
// The state is scoped to the caller's view session.
func RegisterOverride(rg *gin.RouterGroup, reg *override.Registry) {
	g := rg.Group("/dev/override")

	g.GET("", func(c *gin.Context) {
		vs := middleware.ViewSessionID(c)
		st, notice := override.State{Role: roles.Regular}, ""
		if s, ok := reg.Lookup(vs); ok {
			st, notice = s.Snapshot()
		}
		c.JSON(http.StatusOK, gin.H{"enabled": st.Enabled, "role": st.Role, "notice": notice, "available": !reg.Production()})
	})

	g.POST("", func(c *gin.Context) {
		var req struct {
			Role string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, ok := store(c, reg)
		if !ok {
			return
		}
		if err := s.Enable(roles.Parse(req.Role)); err != nil {
			overrideError(c, err)
			return
		}
		respondState(c, s)
	})

	g.POST("/toggle", func(c *gin.Context) {
		var req struct {
			Role string `json:"role"`
		}
		_ = c.ShouldBindJSON(&req)
		s, ok := store(c, reg)
		if !ok {
			return
		}
		if _, err := s.Toggle(roles.Parse(req.Role)); err != nil {
			overrideError(c, err)
			return
		}
		respondState(c, s)
	})

	g.DELETE("", func(c *gin.Context) {
		if s, ok := reg.Lookup(middleware.ViewSessionID(c)); ok {
			s.Disable()
		}
		c.JSON(http.StatusOK, gin.H{"enabled": false, "role": roles.Regular})
	})
}

func store(c *gin.Context, reg *override.Registry) (*override.Store, bool) {
	vs := middleware.ViewSessionID(c)
	if vs == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no view session"})
		return nil, false
	}
	return reg.Ensure(vs), true
}

func respondState(c *gin.Context, s *override.Store) {
	st, notice := s.Snapshot()
	c.JSON(http.StatusOK, gin.H{"enabled": st.Enabled, "role": st.Role, "notice": notice})
}

func overrideError(c *gin.Context, err error) {
	if errors.Is(err, override.ErrOverrideDenied) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "override failed"})
}
