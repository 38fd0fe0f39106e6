package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sowells/pay-webapp/internal/config"
	"github.com/sowells/pay-webapp/internal/middleware"
	"github.com/sowells/pay-webapp/internal/model"
	"github.com/sowells/pay-webapp/internal/repository"
	"github.com/sowells/pay-webapp/internal/service"
)

var giftCfg = config.GiftConfig{TokenSize: 3, ExpireDuration: 10 * time.Minute, VisiblePeriod: 24 * time.Hour, MaxRecipients: 300}

func newTestServer(store repository.OrderStore) *echo.Echo {
	e := echo.New()
	h := NewGiftHandler(service.NewGiftService(store, giftCfg))
	g := e.Group("/v1/gifts", middleware.HeaderIdentity())
	g.POST("", h.Create)
	g.PUT("/:token", h.Receive)
	g.GET("/:token", h.Info)
	e.GET("/healthz", Health)
	return e
}

func call(e *echo.Echo, method, path, user, room, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	if room != "" {
		req.Header.Set(middleware.HeaderRoomID, room)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestGiftHandler_Flow(t *testing.T) {
	e := newTestServer(repository.NewMemoryStore())

	rec := call(e, http.MethodPost, "/v1/gifts", "1", "room", `{"total_amount":1000,"max_recipients":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	token := decode[map[string]string](t, rec)["token"]
	if len(token) != 3 {
		t.Fatalf("token = %q", token)
	}

	rec = call(e, http.MethodPut, "/v1/gifts/"+token, "2", "room", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("receive status = %d: %s", rec.Code, rec.Body.String())
	}
	amount := decode[map[string]int64](t, rec)["amount"]
	if amount < 250 || amount > 750 {
		t.Errorf("amount = %d, want within [250, 750]", amount)
	}

	rec = call(e, http.MethodPut, "/v1/gifts/"+token, "2", "room", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("repeat receive status = %d", rec.Code)
	}
	if code := decode[map[string]string](t, rec)["code"]; code != service.ErrAlreadyReceived.Code {
		t.Errorf("repeat receive code = %q", code)
	}

	rec = call(e, http.MethodGet, "/v1/gifts/"+token, "1", "room", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d: %s", rec.Code, rec.Body.String())
	}
	info := decode[model.GiftInfo](t, rec)
	if info.TotalAmount != 1000 || info.ReceivedAmount != amount || len(info.Receivings) != 1 || info.Receivings[0].ReceiverID != 2 {
		t.Errorf("info = %+v", info)
	}

	rec = call(e, http.MethodGet, "/v1/gifts/"+token, "2", "room", "")
	if code := decode[map[string]string](t, rec)["code"]; rec.Code != http.StatusBadRequest || code != service.ErrOnlyAllowedToCreator.Code {
		t.Errorf("info by receiver = %d %q", rec.Code, code)
	}
}

func TestGiftHandler_BadRequests(t *testing.T) {
	e := newTestServer(repository.NewMemoryStore())

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		room   string
		body   string
		status int
		code   string
	}{
		{"missing user", http.MethodPost, "/v1/gifts", "", "room", `{}`, http.StatusUnauthorized, ""},
		{"non numeric user", http.MethodPost, "/v1/gifts", "bob", "room", `{"total_amount":10,"max_recipients":1}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing room", http.MethodPost, "/v1/gifts", "1", "", `{"total_amount":10,"max_recipients":1}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed body", http.MethodPost, "/v1/gifts", "1", "room", `{"total_amount":`, http.StatusBadRequest, "INVALID_INPUT"},
		{"zero amount", http.MethodPost, "/v1/gifts", "1", "room", `{"total_amount":0,"max_recipients":1}`, http.StatusBadRequest, "MUST_BE_POSITIVE"},
		{"amount below recipients", http.MethodPost, "/v1/gifts", "1", "room", `{"total_amount":1,"max_recipients":2}`, http.StatusBadRequest, "AMOUNT_MUST_EXCEED_RECIPIENTS"},
		{"unknown token", http.MethodPut, "/v1/gifts/zzz", "1", "room", "", http.StatusBadRequest, "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(e, tt.method, tt.path, tt.user, tt.room, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code != "" {
				if code := decode[map[string]string](t, rec)["code"]; code != tt.code {
					t.Errorf("code = %q, want %q", code, tt.code)
				}
			}
		})
	}
}

type brokenStore struct{ repository.OrderStore }

func (brokenStore) FindOrderByRoomAndToken(context.Context, string, string) (*model.Order, error) {
	return nil, errors.New("connection refused")
}

func TestGiftHandler_InternalError(t *testing.T) {
	e := newTestServer(brokenStore{OrderStore: repository.NewMemoryStore()})

	rec := call(e, http.MethodPut, "/v1/gifts/abc", "1", "room", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("internal error leaked to client: %s", rec.Body.String())
	}

	rec = call(e, http.MethodPost, "/v1/gifts", "1", "room", `{"total_amount":10,"max_recipients":1}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("create status = %d, want 500", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newTestServer(repository.NewMemoryStore())
	rec := call(e, http.MethodGet, "/healthz", "", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}
