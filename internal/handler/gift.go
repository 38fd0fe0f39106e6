package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/sowells/pay-webapp/internal/middleware"
	"github.com/sowells/pay-webapp/internal/service"
)

// GiftHandler exposes the gift core over HTTP.  It assumes Identity
// middleware has already stored the caller id under "user_id"; the room is
// read from the X-ROOM-ID header on every request.
type GiftHandler struct {
	Gifts *service.GiftService
}

// NewGiftHandler panics if svc is nil.
func NewGiftHandler(svc *service.GiftService) *GiftHandler {
	if svc == nil {
		panic("nil service passed to NewGiftHandler")
	}
	return &GiftHandler{Gifts: svc}
}

type createGiftRequest struct {
	TotalAmount   int64 `json:"total_amount"`
	MaxRecipients int   `json:"max_recipients"`
}

// Create handles POST /v1/gifts.  It returns 201 with the token the
// creator shares in the room.
func (h *GiftHandler) Create(c echo.Context) error {
	userID, roomID, err := caller(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": service.ErrInvalidInput.Code, "error": err.Error()})
	}
	var body createGiftRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": service.ErrInvalidInput.Code, "error": "invalid request body"})
	}

	token, err := h.Gifts.Create(c.Request().Context(), userID, roomID, body.TotalAmount, body.MaxRecipients)
	if err != nil {
		return giftError(c, err, logrus.Fields{"op": "create", "user_id": userID, "room_id": roomID})
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": token})
}

// Receive handles PUT /v1/gifts/:token and returns the amount credited to
// the caller.
func (h *GiftHandler) Receive(c echo.Context) error {
	userID, roomID, err := caller(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": service.ErrInvalidInput.Code, "error": err.Error()})
	}
	token := c.Param("token")

	amount, err := h.Gifts.Receive(c.Request().Context(), userID, roomID, token)
	if err != nil {
		return giftError(c, err, logrus.Fields{"op": "receive", "user_id": userID, "room_id": roomID, "token": token})
	}
	return c.JSON(http.StatusOK, echo.Map{"amount": amount})
}

// Info handles GET /v1/gifts/:token for the creator of the gift.
func (h *GiftHandler) Info(c echo.Context) error {
	userID, roomID, err := caller(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": service.ErrInvalidInput.Code, "error": err.Error()})
	}
	token := c.Param("token")

	info, err := h.Gifts.Info(c.Request().Context(), userID, roomID, token)
	if err != nil {
		return giftError(c, err, logrus.Fields{"op": "info", "user_id": userID, "room_id": roomID, "token": token})
	}
	return c.JSON(http.StatusOK, info)
}

// caller extracts the numeric user id and the room id.
func caller(c echo.Context) (int64, string, error) {
	userID, err := getUserID(c)
	if err != nil {
		return 0, "", err
	}
	roomID := middleware.RoomID(c)
	if roomID == "" {
		return 0, "", errors.New("missing " + middleware.HeaderRoomID + " header")
	}
	return userID, roomID, nil
}

// getUserID converts the user_id stored in the context to int64.
func getUserID(c echo.Context) (int64, error) {
	switch t := c.Get(middleware.ContextUserID).(type) {
	case int64:
		return t, nil
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil && n >= 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user id")
}

// giftError maps service rejections to 400 and anything else to 500.
func giftError(c echo.Context, err error, fields logrus.Fields) error {
	log := logrus.WithFields(fields).WithError(err)
	var ge *service.GiftError
	if errors.As(err, &ge) && ge.Client {
		log.Warn("gift request rejected")
		return c.JSON(http.StatusBadRequest, echo.Map{"code": ge.Code, "error": ge.Message})
	}
	log.Error("gift request failed")
	if ge != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": ge.Code, "error": ge.Message})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "internal error"})
}
