package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func call(t *testing.T, endpoint http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func passing(context.Context) error { return nil }

func runN(h *Health, n int) {
	for range n {
		for _, p := range h.probes {
			p.run(context.Background())
		}
	}
}

func TestLiveEndpoint(t *testing.T) {
	for _, tt := range []struct {
		name   string
		check  CheckFunc
		runs   int
		code   int
		status string
	}{
		{name: "Passing", check: passing, runs: 3, code: http.StatusOK, status: "ok"},
		{name: "BelowThreshold", check: failing("temporary"), runs: 2, code: http.StatusOK, status: "ok"},
		{name: "Failing", check: failing("connection refused"), runs: 3, code: http.StatusServiceUnavailable, status: "unhealthy"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.Register(Check{Name: "db", Kind: Liveness, Func: tt.check})
			runN(h, tt.runs)

			code, body := call(t, h.LiveEndpoint)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, body.Status)
			if tt.code != http.StatusOK {
				assert.Equal(t, "connection refused", body.Checks["db"])
			}
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.Register(Check{Name: "redis", Kind: Readiness, Func: failing("down"), FailureThreshold: 1})
	h.Register(Check{Name: "goroutines", Kind: Liveness, Func: failing("leak"), FailureThreshold: 1})

	code, body := call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"_readiness": "service is not ready"}, body.Checks)

	h.SetReady(true)
	code, _ = call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	runN(h, 1)
	code, body = call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"redis": "down"}, body.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestCheckRecovers(t *testing.T) {
	var mu sync.Mutex
	fail := true
	h := New()
	h.Register(Check{Name: "flaky", Kind: Readiness, SuccessThreshold: 2, Func: func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return errors.New("flaky")
		}
		return nil
	}})
	h.SetReady(true)

	runN(h, 3)
	require.False(t, h.IsReady())

	mu.Lock()
	fail = false
	mu.Unlock()

	runN(h, 1)
	assert.False(t, h.IsReady())
	runN(h, 1)
	assert.True(t, h.IsReady())
}

func TestStartStop(t *testing.T) {
	h := New()
	h.Register(Check{Name: "db", Kind: Readiness, Func: failing("down"), FailureThreshold: 1})
	h.SetReady(true)

	h.Start(context.Background(), 10*time.Millisecond)
	assert.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.Register(Check{Name: "a", Kind: Liveness, Func: passing})
	h.Register(Check{Name: "b", Kind: Readiness, Func: failing("x")})
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
			h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			_ = h.IsReady()
		})
	}
	wg.Wait()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPostgresCheck(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, PostgresCheck(pinger{})(ctx))
	require.ErrorContains(t, PostgresCheck(pinger{err: errors.New("refused")})(ctx), "ping postgres: refused")
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := RedisCheck(client)
	require.NoError(t, check(context.Background()))

	mr.Close()
	require.Error(t, check(context.Background()))
}

func TestKafkaCheck(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.ErrorContains(t, KafkaCheck(nil)(ctx), "no kafka brokers")

	// A closed listener refuses connections.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	require.ErrorContains(t, KafkaCheck([]string{addr})(ctx), "dial kafka")
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}
