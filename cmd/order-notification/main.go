// Command order-notification consumes the order notification queue and
// emails every order to the configured recipients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/slackmgr/orderbus/config"
	"github.com/slackmgr/orderbus/email"
	"github.com/slackmgr/orderbus/internal/logging"
	"github.com/slackmgr/orderbus/microservice"
	"github.com/slackmgr/orderbus/orders"
	"github.com/slackmgr/orderbus/sqs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	logger := logging.Stderr(cfg.LogLevel, cfg.LogFormat).WithField("service", "order-notification")

	recipients, err := orders.NewRecipients(cfg.Notification)
	if err != nil {
		return err
	}

	opts := []email.Option{email.WithLogger(logger)}
	if cfg.Notification.MailgunAPI != "" {
		opts = append(opts, email.WithAPIBase(cfg.Notification.MailgunAPI))
	}

	sender, err := email.New(cfg.Notification.MailgunDomain, cfg.Notification.MailgunAPIKey, opts...)
	if err != nil {
		return err
	}

	awsCfg, err := cfg.AWS.LoadAWS(ctx)
	if err != nil {
		return err
	}

	queue, err := orders.ConsumerQueue(orders.NotificationPattern, orders.NotificationQueueKey, cfg.Source(), cfg.Consumer)
	if err != nil {
		return err
	}

	registry := sqs.NewRegistry()
	registry.MustRegister(orders.NotificationPattern, orders.NotificationHandler(sender, recipients, logger))

	server, err := sqs.NewServer(&awsCfg, registry, logger, orders.ServerOptions(cfg.Consumer, queue)...).Init(ctx)
	if err != nil {
		return err
	}

	logger.Infof("Consuming %s", queue.QueueURL)

	return microservice.New(logger, server).Run(ctx)
}
