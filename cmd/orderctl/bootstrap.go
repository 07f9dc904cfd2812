package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/slackmgr/orderbus/config"
	"github.com/slackmgr/orderbus/dynamodb"
	"github.com/slackmgr/orderbus/orders"
	"github.com/spf13/cobra"
)

const (
	defaultPersistenceQueue  = "order-persistence-queue"
	defaultNotificationQueue = "order-notification-queue"
)

// queueAPI is the subset of the SQS client used to provision queues.
type queueAPI interface {
	ListQueues(ctx context.Context, params *awssqs.ListQueuesInput, optFns ...func(*awssqs.Options)) (*awssqs.ListQueuesOutput, error)
	CreateQueue(ctx context.Context, params *awssqs.CreateQueueInput, optFns ...func(*awssqs.Options)) (*awssqs.CreateQueueOutput, error)
	GetQueueUrl(ctx context.Context, params *awssqs.GetQueueUrlInput, optFns ...func(*awssqs.Options)) (*awssqs.GetQueueUrlOutput, error)
}

type tableCreator interface {
	CreateTableIfNotExists(ctx context.Context) (bool, error)
}

type bootstrapper struct {
	queues        queueAPI
	table         tableCreator
	out           io.Writer
	retries       int
	retryInterval time.Duration
}

type bootstrapPlan struct {
	persistenceQueue  string
	notificationQueue string
	tableName         string
	aws               config.AWSConfig
}

func newBootstrapCommand(envFile *string) *cobra.Command {
	var (
		plan          bootstrapPlan
		retries       int
		retryInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the order queues and table",
		Long:  "Create the order queues and the DynamoDB orders table against a local endpoint such as LocalStack, then print the environment the services need.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}

			if plan.tableName == "" {
				plan.tableName = cfg.Orders.TableName
			}
			plan.aws = cfg.AWS

			awsCfg, err := cfg.AWS.LoadAWS(ctx)
			if err != nil {
				return err
			}

			table := dynamodb.New(&awsCfg, plan.tableName)
			if err := table.Connect(); err != nil {
				return err
			}

			b := &bootstrapper{
				queues:        awssqs.NewFromConfig(awsCfg),
				table:         table,
				out:           cmd.OutOrStdout(),
				retries:       retries,
				retryInterval: retryInterval,
			}

			return b.run(ctx, plan)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&plan.persistenceQueue, "persistence-queue", defaultPersistenceQueue, "name of the persistence queue")
	flags.StringVar(&plan.notificationQueue, "notification-queue", defaultNotificationQueue, "name of the notification queue, empty to skip")
	flags.StringVar(&plan.tableName, "table", "", "name of the orders table (default ORDERS_TABLE_NAME)")
	flags.IntVar(&retries, "retries", 15, "attempts while waiting for the endpoint")
	flags.DurationVar(&retryInterval, "retry-interval", time.Second, "delay between endpoint attempts")

	return cmd
}

func (b *bootstrapper) run(ctx context.Context, plan bootstrapPlan) error {
	if plan.persistenceQueue == "" {
		return errors.New("persistence queue name is required")
	}

	if err := b.waitForEndpoint(ctx); err != nil {
		return err
	}

	persistenceURL, err := b.ensureQueue(ctx, plan.persistenceQueue)
	if err != nil {
		return err
	}

	var notificationURL string

	if plan.notificationQueue != "" {
		if notificationURL, err = b.ensureQueue(ctx, plan.notificationQueue); err != nil {
			return err
		}
	}

	created, err := b.table.CreateTableIfNotExists(ctx)
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintf(b.out, "Created table %s\n", plan.tableName)
	}

	fmt.Fprintf(b.out, "Table ready: %s\n", plan.tableName)

	fmt.Fprintln(b.out, "\nSet the following environment variables for the services:")
	fmt.Fprintf(b.out, "AWS_REGION=%s\n", plan.aws.Region)
	if plan.aws.EndpointURL != "" {
		fmt.Fprintf(b.out, "AWS_ENDPOINT_URL=%s\n", plan.aws.EndpointURL)
	}
	fmt.Fprintf(b.out, "%s_URL=%s\n", orders.PersistenceQueueKey, persistenceURL)
	if notificationURL != "" {
		fmt.Fprintf(b.out, "%s_URL=%s\n", orders.NotificationQueueKey, notificationURL)
	}
	fmt.Fprintf(b.out, "ORDERS_TABLE_NAME=%s\n", plan.tableName)

	return nil
}

func (b *bootstrapper) waitForEndpoint(ctx context.Context) error {
	attempts := max(b.retries, 1)

	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		if _, err = b.queues.ListQueues(ctx, &awssqs.ListQueuesInput{MaxResults: aws.Int32(1)}); err == nil {
			fmt.Fprintln(b.out, "Endpoint is ready.")
			return nil
		}

		if attempt == attempts {
			break
		}

		fmt.Fprintf(b.out, "Waiting for the endpoint to become available (attempt %d/%d)...\n", attempt, attempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.retryInterval):
		}
	}

	return fmt.Errorf("endpoint did not become ready: %w", err)
}

func (b *bootstrapper) ensureQueue(ctx context.Context, name string) (string, error) {
	_, err := b.queues.CreateQueue(ctx, &awssqs.CreateQueueInput{
		QueueName: aws.String(name),
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNameVisibilityTimeout):             "60",
			string(sqstypes.QueueAttributeNameReceiveMessageWaitTimeSeconds): "20",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create queue %s: %w", name, err)
	}

	out, err := b.queues.GetQueueUrl(ctx, &awssqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("failed to resolve queue %s: %w", name, err)
	}

	url := aws.ToString(out.QueueUrl)
	if url == "" {
		return "", fmt.Errorf("no URL returned for queue %s", name)
	}

	fmt.Fprintf(b.out, "Queue ready: %s\n", url)

	return url, nil
}
