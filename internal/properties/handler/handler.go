package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentwise/portal/internal/properties/service"
	"github.com/rentwise/portal/pkg/logger"
	"github.com/rentwise/portal/pkg/middleware"
)

const maxPhotoBytes = 8 << 20

// RegisterPropertyRoutes mounts the property views on rg. rg must already be
// guarded; the admitted subject owns every record it touches.
func RegisterPropertyRoutes(rg *gin.RouterGroup, svc *service.Service) {
	g := rg.Group("/properties")

	g.GET("", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), owner(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	g.POST("", func(c *gin.Context) {
		var in service.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := svc.Create(c.Request.Context(), owner(c), in)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	})

	g.GET("/:id", func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), owner(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	g.PUT("/:id", func(c *gin.Context) {
		var in service.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := svc.Update(c.Request.Context(), owner(c), c.Param("id"), in)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	g.DELETE("/:id", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), owner(c), c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.POST("/:id/photo", func(c *gin.Context) {
		fh, err := c.FormFile("photo")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "photo file required"})
			return
		}
		if fh.Size > maxPhotoBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
			return
		}
		defer f.Close()
		p, err := svc.AttachPhoto(c.Request.Context(), owner(c), c.Param("id"), f, fh.Size, fh.Header.Get("Content-Type"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	g.GET("/:id/photo", func(c *gin.Context) {
		u, err := svc.PhotoURL(c.Request.Context(), owner(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": u})
	})
}

func owner(c *gin.Context) string {
	if s, ok := middleware.SubjectFrom(c); ok {
		return s.UserID
	}
	return ""
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNoPhoto):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrBadContent):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoStorage):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage unavailable"})
	default:
		logger.Errorf("properties: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
