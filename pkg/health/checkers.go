package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresCheck pings the database pool.
func PostgresCheck(db Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping postgres")
		}
		return nil
	}
}

// RedisCheck pings the session store.
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		return nil
	}
}

// KafkaCheck passes when at least one broker accepts a connection.
func KafkaCheck(brokers []string) CheckFunc {
	return func(ctx context.Context) error {
		var lastErr error
		for _, addr := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			_ = conn.Close()
			return nil
		}
		if lastErr == nil {
			return errors.New("no kafka brokers configured")
		}
		return errors.Wrap(lastErr, "dial kafka")
	}
}

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
