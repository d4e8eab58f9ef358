//go:build integration

package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/kart-shop/internal/domain/auth"
	"github.com/xenking/kart-shop/internal/domain/coupon"
	"github.com/xenking/kart-shop/internal/domain/product"
	"github.com/xenking/kart-shop/internal/repository"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func seed(ctx context.Context, t *testing.T, databaseURL, pepper string) {
	t.Helper()
	require.NoError(t, repository.RunMigrations(databaseURL))
	pool, err := repository.NewPool(ctx, databaseURL)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, repository.NewProductRepository(pool).Upsert(ctx, product.Product{
		ID: "1", Name: "Green Tea", Price: decimal.RequireFromString("6.50"), Category: "Tea", Available: true,
	}))
	now := time.Now().UTC()
	require.NoError(t, repository.NewCouponRepository(pool).Upsert(ctx, &coupon.Coupon{
		Code: "SUMMER10", ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour), Discount: 10, Active: true,
	}))
	require.NoError(t, repository.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID: "staff", KeyHash: auth.HashKey([]byte(pepper), "staff-key"), Name: "Staff", Scopes: []string{auth.ScopeStaff},
	}))
}

func TestRun_Checkout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := postgres.Run(ctx, "postgres:17.6-alpine3.22",
		postgres.WithDatabase("kart"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pg) })

	databaseURL, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	const pepper = "integration-pepper"
	seed(ctx, t, databaseURL, pepper)

	mr := miniredis.RunT(t)
	cfg := &Config{
		Addr:         freeAddr(t),
		DatabaseURL:  databaseURL,
		APIKeyPepper: pepper,
		Redis:        RedisConfig{Addr: mr.Addr()},
		Session: SessionConfig{
			Name:      "sessionid",
			Secret:    strings.Repeat("k", 32),
			MaxAge:    time.Hour,
			CartKey:   "cart",
			CouponKey: "coupon_id",
		},
		Notify:    NotifyConfig{Mode: NotifyQueue, QueueSize: 8, MailFrom: "admin@myshop.com"},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}},
		Graceful:  GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- Run(runCtx, zaptest.NewLogger(t), noopTelemetry{}, cfg) }()
	defer func() {
		stop()
		require.NoError(t, <-done)
	}()

	base := "http://" + cfg.Addr
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 200*time.Millisecond)

	postForm := func(path string, form url.Values) (int, string) {
		resp, err := client.PostForm(base+path, form)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := postForm("/cart/add/1", url.Values{"quantity": {"2"}})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Green Tea")
	assert.Contains(t, body, "$13.00")

	code, body = postForm("/coupons/apply", url.Values{"code": {"summer10"}})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "$11.70")

	code, body = postForm("/orders/create", url.Values{
		"first_name":  {"Ada"},
		"last_name":   {"Lovelace"},
		"email":       {"ada@example.com"},
		"address":     {"12 Analytical St"},
		"postal_code": {"1000"},
		"city":        {"London"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Your order number is <strong>1</strong>")

	// The cart was cleared in the stored session.
	code, body = postForm("/orders/create", url.Values{"first_name": {"Ada"}, "last_name": {"L"},
		"email": {"ada@example.com"}, "address": {"x"}, "postal_code": {"1"}, "city": {"y"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "cart is empty")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/admin/orders/1", nil)
	require.NoError(t, err)
	req.Header.Set("api_key", "staff-key")
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"total_cost":"11.70"`)
	assert.Contains(t, string(raw), `"discount":10`)
}
