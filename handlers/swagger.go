package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the API description.
// - GET /swagger/index.html  -> Swagger UI page
// - GET /swagger/doc.json    -> OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>rentwise portal API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Guarded routes answer HTML clients with 303 redirects. API clients get
// 401 (login), 402 (upgrade), 303 + JSON (role home) or 503 (identity loading).
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "rentwise-portal", "version": "v0.2.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Log in with an authorization code or, outside production, a password",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string","enum":["auth_code","password"]},"username":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"state":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens returned" }, "401": { "description": "authentication failed" }, "503": { "description": "identity provider not ready" } }
      }
    },
    "/auth/login/url": { "get": { "summary": "Identity provider login URL", "responses": { "200": { "description": "url and state" } } } },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the refresh session and blacklist the access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/api/plans": { "get": { "summary": "Plan summaries for the pricing page", "responses": { "200": { "description": "plans" } } } },
    "/api/contact": { "post": { "summary": "Send a contact form message", "responses": { "202": { "description": "accepted" }, "400": { "description": "invalid message" } } } },
    "/api/dev/override": {
      "get": { "summary": "Access override state of this view session", "responses": { "200": { "description": "state" } } },
      "post": { "summary": "Enable the access override with a role", "responses": { "200": { "description": "state" }, "403": { "description": "disabled in production" } } },
      "delete": { "summary": "Disable the access override", "responses": { "200": { "description": "state" } } }
    },
    "/api/dev/override/toggle": { "post": { "summary": "Toggle the access override", "responses": { "200": { "description": "state" }, "403": { "description": "disabled in production" } } } },
    "/api/me": { "get": { "summary": "Current subject (basic policy)", "responses": { "200": { "description": "subject" }, "401": { "description": "login required" } } } },
    "/api/subscription": { "get": { "summary": "Own subscription and plan summary (basic policy)", "responses": { "200": { "description": "subscription" } } } },
    "/api/checkout": { "post": { "summary": "Start a checkout session (basic policy)", "responses": { "200": { "description": "checkout url" }, "503": { "description": "checkout not configured" } } } },
    "/api/dashboard": { "get": { "summary": "End-user dashboard; administrators are sent to the admin home", "responses": { "200": { "description": "dashboard" }, "303": { "description": "role home" } } } },
    "/api/properties": {
      "get": { "summary": "List own properties (membership policy)", "responses": { "200": { "description": "properties" }, "402": { "description": "upgrade required" } } },
      "post": { "summary": "Create a property (membership policy)", "responses": { "201": { "description": "created" } } }
    },
    "/api/properties/{id}": {
      "get": { "summary": "Get a property", "responses": { "200": { "description": "property" }, "404": { "description": "not found" } } },
      "put": { "summary": "Update a property", "responses": { "200": { "description": "property" } } },
      "delete": { "summary": "Delete a property", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/properties/{id}/photo": {
      "get": { "summary": "Presigned photo URL", "responses": { "200": { "description": "url" } } },
      "post": { "summary": "Upload a photo (multipart field 'photo')", "responses": { "200": { "description": "property" } } }
    },
    "/api/admin/subscriptions": { "get": { "summary": "List subscriptions (administrators)", "responses": { "200": { "description": "subscriptions" }, "403": { "description": "not an administrator" } } } },
    "/api/admin/subscriptions/{userId}": {
      "get": { "summary": "Get a user's subscription", "responses": { "200": { "description": "subscription" } } },
      "patch": { "summary": "Change a user's subscription and notify open views", "responses": { "200": { "description": "subscription" } } },
      "delete": { "summary": "Delete a user's subscription", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/admin/users/{sub}/admin": { "post": { "summary": "Set the metadata administrator flag", "responses": { "200": { "description": "updated" } } } },
    "/health": { "get": { "summary": "Liveness", "responses": { "200": { "description": "ok" } } } },
    "/ready": { "get": { "summary": "Readiness (identity provider discovered)", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
