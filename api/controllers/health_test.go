package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthLive(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	resp := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Header().Get(envHeader) != "dev" {
		t.Fatalf("expected env header, got %q", resp.Header().Get(envHeader))
	}
}

func TestHealthReadyReportsFailedDependency(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	checks := map[string]Pinger{
		"db":    pingerFunc(func(context.Context) error { return nil }),
		"redis": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	}
	resp := httptest.NewRecorder()
	HealthReady(cfg, nil, checks).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	env := expectError(t, resp, http.StatusServiceUnavailable, string(pkgerrors.CodeDependency))
	failed, _ := env.Error.Details["failed"].([]any)
	if len(failed) != 1 || failed[0] != "redis" {
		t.Fatalf("expected redis to be reported, got %v", env.Error.Details)
	}
}

func TestHealthReadyAllUp(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	checks := map[string]Pinger{"db": pingerFunc(func(context.Context) error { return nil })}
	resp := httptest.NewRecorder()
	HealthReady(cfg, nil, checks).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
