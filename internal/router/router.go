package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/sowells/pay-webapp/internal/handler"
	"github.com/sowells/pay-webapp/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterGift registers the gift endpoints under /v1/gifts.  Every route
// runs the identity middleware chosen by jwtSecret; claiming is also
// wrapped by limit, which may be a pass-through.
func RegisterGift(e *echo.Echo, h *handler.GiftHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/gifts", middleware.Identity(jwtSecret))
	g.POST("", h.Create)
	g.PUT("/:token", h.Receive, limit)
	g.GET("/:token", h.Info)
}
