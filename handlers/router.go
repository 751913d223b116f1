package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rentwise/portal/internal/contact"
	"github.com/rentwise/portal/internal/guard"
	"github.com/rentwise/portal/internal/invalidation"
	"github.com/rentwise/portal/internal/override"
	prophandler "github.com/rentwise/portal/internal/properties/handler"
	propservice "github.com/rentwise/portal/internal/properties/service"
	"github.com/rentwise/portal/internal/roles"
	"github.com/rentwise/portal/pkg/middleware"
)

// Portal collects what Mount needs. Auth and Properties may be nil.
type Portal struct {
	Evaluator  *guard.Evaluator
	Overrides  *override.Registry
	Tracker    *invalidation.Tracker
	Auth       *AuthHandler
	Account    *AccountHandler
	Admin      *AdminHandler
	Properties *propservice.Service
	Mailer     contact.Mailer
}

// Mount registers every portal route on r. Each page class sits behind the
// guard policy that protects it.
func Mount(r *gin.Engine, p Portal) {
	RegisterSwagger(r)
	if p.Auth != nil {
		p.Auth.Register(r.Group("/"))
	}

	api := r.Group("/api")
	RegisterPlans(api)
	if p.Mailer != nil {
		RegisterContact(api, p.Mailer)
	}
	RegisterOverride(api, p.Overrides)
	if p.Overrides != nil && p.Tracker != nil {
		TrackOverrides(p.Overrides, p.Tracker, p.Evaluator.OverrideUserID())
	}

	guarded := func(pol guard.Policy) gin.HandlerFunc {
		return middleware.Guard(p.Evaluator, pol, p.Overrides, p.Tracker)
	}

	p.Account.Register(api.Group("", guarded(guard.Basic)))
	p.Account.RegisterDashboard(api.Group("", guarded(guard.EndUser)))
	if p.Properties != nil {
		prophandler.RegisterPropertyRoutes(api.Group("", guarded(guard.Membership)), p.Properties)
	}
	p.Admin.Register(api.Group("/admin", guarded(guard.Elevated), middleware.RequireRole(roles.Administrator)))
}
