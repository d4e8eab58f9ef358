package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/notify"
	"github.com/xenking/kart-shop/internal/repository"
)

// RunWorker consumes order events until ctx is cancelled and sends a
// confirmation mail for each.
func RunWorker(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	lg.Info("Initializing worker",
		zap.Strings("brokers", cfg.Notify.Brokers),
		zap.String("topic", cfg.Notify.Topic),
		zap.String("group", cfg.Notify.GroupID),
	)

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	mailer := notify.NewMailHandler(
		repository.NewOrderRepository(pool),
		notify.NewLogMailer(lg.Named("mail")),
		cfg.Notify.MailFrom,
	)
	consumer := notify.NewConsumer(notify.KafkaConfig{
		Brokers: cfg.Notify.Brokers,
		Topic:   cfg.Notify.Topic,
		GroupID: cfg.Notify.GroupID,
	}, mailer)
	defer func() {
		if err := consumer.Close(); err != nil {
			lg.Warn("Close kafka reader", zap.Error(err))
		}
	}()

	if err := consumer.Run(zctx.Base(ctx, lg)); err != nil {
		return errors.Wrap(err, "consume")
	}
	return nil
}
