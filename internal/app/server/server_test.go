package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permitflow/internal/domain/auth"
	"permitflow/internal/platform/config"
	"permitflow/internal/platform/metrics"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func testConfig() config.Config {
	return config.Config{
		JWTSecret:          "router-secret",
		Environment:        "production",
		MaxBodyBytes:       1 << 20,
		MaxUploadBytes:     4 << 20,
		RateLimitPerMinute: 100,
		MetricsEnabled:     true,
		CORSAllowedOrigins: []string{"https://hr.example.com"},
		WorkdayStart:       "08:00",
		WorkdayEnd:         "15:00",
		WorkingDays:        []string{"mon", "tue", "wed", "thu", "fri"},
		MinPermitDuration:  15 * time.Minute,
		MaxPermitDuration:  8 * time.Hour,
		Timezone:           "Europe/Madrid",
	}
}

func TestHealthAndReadiness(t *testing.T) {
	ready := true
	router := NewRouter(RouterDeps{
		Config:  testConfig(),
		Metrics: metrics.New(),
		Perms:   auth.StaticPermissions{},
		DB: pingerFunc(func(context.Context) error {
			if ready {
				return nil
			}
			return errors.New("down")
		}),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	ready = false
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointNeedsPermission(t *testing.T) {
	cfg := testConfig()
	collector := metrics.New()
	collector.BalanceAnomaly()
	router := NewRouter(RouterDeps{Config: cfg, Metrics: collector, Perms: auth.StaticPermissions{}})

	call := func(role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
		if role != "" {
			token, err := auth.GenerateToken(cfg.JWTSecret, auth.Claims{UserID: "x", Role: role}, time.Hour)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusForbidden, call(auth.RoleEmployee).Code)
	rec := call(auth.RoleHR)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balanceAnomaliesTotal":1`)
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(RouterDeps{Config: testConfig(), Metrics: metrics.New(), Perms: auth.StaticPermissions{}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/permits", nil)
	req.Header.Set("Origin", "https://hr.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://hr.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPolicyConfigFromEnvironmentSettings(t *testing.T) {
	cfg := testConfig()
	out, err := PolicyConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, out.WorkdayStart)
	assert.Equal(t, 15*time.Hour, out.WorkdayEnd)
	assert.Len(t, out.WorkingDays, 5)
	assert.Equal(t, "Europe/Madrid", out.Location.String())

	cfg.WorkdayEnd = "07:00"
	_, err = PolicyConfig(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.WorkingDays = []string{"someday"}
	_, err = PolicyConfig(cfg)
	assert.Error(t, err)
}
