package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-shop/internal/cart"
	"github.com/xenking/kart-shop/internal/domain/order"
	"github.com/xenking/kart-shop/internal/handler"
	"github.com/xenking/kart-shop/internal/notify"
	"github.com/xenking/kart-shop/internal/render"
	"github.com/xenking/kart-shop/internal/repository"
	"github.com/xenking/kart-shop/internal/session"
	"github.com/xenking/kart-shop/pkg/health"
	"github.com/xenking/kart-shop/pkg/httpmiddleware"
)

// NewRedisClient accepts either a host:port address or a redis:// URL.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		opts, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// Telemetry provides the tracer and meter providers; *app.Telemetry of
// go-faster/sdk implements it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("notify", cfg.Notify.Mode))

	// PostgreSQL pool + migrations.
	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	// Redis session store.
	rdb, err := NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	store := session.NewRedisStore(rdb, [][]byte{[]byte(cfg.Session.Secret)},
		session.WithOptions(sessions.Options{
			Path:     "/",
			MaxAge:   int(cfg.Session.MaxAge.Seconds()),
			Secure:   cfg.Session.Secure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}),
	)

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Health check service.
	healthSvc := health.New()
	healthSvc.Register(health.Check{Name: "postgres", Kind: health.Readiness, Timeout: 5 * time.Second, Func: health.PostgresCheck(pool)})
	healthSvc.Register(health.Check{Name: "redis", Kind: health.Readiness, Timeout: 2 * time.Second, Func: health.RedisCheck(rdb)})
	healthSvc.Register(health.Check{Name: "goroutines", Kind: health.Liveness, Func: health.GoroutineCountCheck(10000)})

	g, gctx := errgroup.WithContext(ctx)

	// Order notifications.
	var dispatcher order.Dispatcher
	switch cfg.Notify.Mode {
	case NotifyKafka:
		kafkaCfg := notify.KafkaConfig{Brokers: cfg.Notify.Brokers, Topic: cfg.Notify.Topic}
		kd := notify.NewKafkaDispatcher(kafkaCfg, lg.Named("notify"))
		defer func() {
			if err := kd.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		dispatcher = kd
		healthSvc.Register(health.Check{Name: "kafka", Kind: health.Readiness, Timeout: 2 * time.Second, Func: health.KafkaCheck(cfg.Notify.Brokers)})
	default:
		mailer := notify.NewMailHandler(orderRepo, notify.NewLogMailer(lg.Named("mail")), cfg.Notify.MailFrom)
		q := notify.NewQueue(cfg.Notify.QueueSize, mailer)
		g.Go(func() error {
			return q.Run(zctx.Base(gctx, lg.Named("notify")))
		})
		dispatcher = q
	}

	orderService, err := order.NewService(orderRepo, dispatcher, order.Options{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	renderer, err := render.New()
	if err != nil {
		return errors.Wrap(err, "load templates")
	}

	h := handler.New(handler.Config{
		ImageBaseURL: cfg.ImageBaseURL,
		Cart:         cart.Config{SessionKey: cfg.Session.CartKey, CouponKey: cfg.Session.CouponKey},
		APIKeyPepper: []byte(cfg.APIKeyPepper),
	}, productRepo, couponRepo, orderService, apikeyRepo, renderer)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/", h.Routes(session.Middleware(store, cfg.Session.Name)))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument("kart-shop", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
