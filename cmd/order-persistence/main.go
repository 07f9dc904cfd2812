// Command order-persistence consumes the order persistence queue and writes
// every order to the configured store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/slackmgr/orderbus/config"
	"github.com/slackmgr/orderbus/dynamodb"
	"github.com/slackmgr/orderbus/internal/logging"
	"github.com/slackmgr/orderbus/microservice"
	"github.com/slackmgr/orderbus/orders"
	"github.com/slackmgr/orderbus/postgres"
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

	logger := logging.Stderr(cfg.LogLevel, cfg.LogFormat).WithField("service", "order-persistence")

	awsCfg, err := cfg.AWS.LoadAWS(ctx)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, &awsCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	queue, err := orders.ConsumerQueue(orders.PersistencePattern, orders.PersistenceQueueKey, cfg.Source(), cfg.Consumer)
	if err != nil {
		return err
	}

	registry := sqs.NewRegistry()
	registry.MustRegister(orders.PersistencePattern, orders.PersistenceHandler(store, logger))

	server, err := sqs.NewServer(&awsCfg, registry, logger, orders.ServerOptions(cfg.Consumer, queue)...).Init(ctx)
	if err != nil {
		return err
	}

	logger.WithField("store", cfg.Orders.Store).Infof("Consuming %s", queue.QueueURL)

	return microservice.New(logger, server).Run(ctx)
}

func openStore(ctx context.Context, cfg *config.Config, awsCfg *aws.Config) (orders.Store, func(), error) {
	switch cfg.Orders.Store {
	case "dynamodb":
		client := dynamodb.New(awsCfg, cfg.Orders.TableName)

		if err := client.Connect(); err != nil {
			return nil, nil, err
		}

		if err := client.Init(ctx, false); err != nil {
			return nil, nil, err
		}

		return client, func() {}, nil
	case "postgres":
		client := postgres.New(postgres.FromConfig(cfg.Orders.Postgres, cfg.Orders.TableName)...)

		if err := client.Connect(ctx); err != nil {
			return nil, nil, err
		}

		if err := client.Init(ctx, false); err != nil {
			_ = client.Close(ctx)
			return nil, nil, err
		}

		return client, func() { _ = client.Close(context.WithoutCancel(ctx)) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown ORDERS_STORE %q, expected dynamodb or postgres", cfg.Orders.Store)
	}
}
