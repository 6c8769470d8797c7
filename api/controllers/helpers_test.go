package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var testCartConfig = config.CartConfig{CookieName: "cart_id", CookieMaxAge: 720 * time.Hour}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", resp.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	env := decodeEnvelope(t, resp)
	if env.Error != nil {
		t.Fatalf("unexpected error response %+v", env.Error)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func expectError(t *testing.T, resp *httptest.ResponseRecorder, status int, code string) envelope {
	t.Helper()
	if resp.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, resp.Code, resp.Body.String())
	}
	env := decodeEnvelope(t, resp)
	if env.Error == nil || env.Error.Code != code {
		t.Fatalf("expected error code %s, got %s", code, resp.Body.String())
	}
	return env
}

func asUser(req *http.Request, userID string, role enums.Role) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), userID, role))
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func findCookie(resp *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range resp.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
