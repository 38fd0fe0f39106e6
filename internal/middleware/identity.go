package middleware

// identity.go resolves who is calling and from which chat room.  With a
// JWT secret configured the caller is the token subject; otherwise the
// X-USER-ID header is trusted as-is, which is how the chat gateway in front
// of this service forwards identities.

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID = "X-USER-ID"
	HeaderRoomID = "X-ROOM-ID"

	// ContextUserID is the echo context key holding the caller id as a string.
	ContextUserID = "user_id"
)

// Identity picks JWTAuth when secret is set and HeaderIdentity otherwise.
func Identity(secret string) echo.MiddlewareFunc {
	if secret != "" {
		return JWTAuth(secret)
	}
	return HeaderIdentity()
}

// HeaderIdentity copies X-USER-ID into the context, rejecting requests
// without it.
func HeaderIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
			if uid == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing " + HeaderUserID + " header"})
			}
			c.Set(ContextUserID, uid)
			return next(c)
		}
	}
}

// RoomID returns the trimmed X-ROOM-ID header.
func RoomID(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(HeaderRoomID))
}

// userID returns the caller id stored by Identity, or "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get(ContextUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
