// Command notify-worker consumes order events from Kafka and sends the
// order confirmation mails.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/kart-shop/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		cfg, err := appkg.LoadWorkerConfig()
		if err != nil {
			return err
		}
		return appkg.RunWorker(ctx, lg, cfg)
	})
}
