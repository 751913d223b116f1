package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rentwise/portal/internal/contact"
)

// RegisterContact mounts the public contact form endpoint.
func RegisterContact(rg *gin.RouterGroup, m contact.Mailer) {
	rg.POST("/contact", func(c *gin.Context) {
		var msg contact.Message
		if err := c.ShouldBindJSON(&msg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := msg.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := m.Send(c.Request.Context(), msg); err != nil {
			if errors.Is(err, contact.ErrInvalid) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "message could not be delivered"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "sent"})
	})
}
