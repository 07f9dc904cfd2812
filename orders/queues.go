package orders

import (
	"errors"

	"github.com/slackmgr/orderbus/config"
	"github.com/slackmgr/orderbus/queueconfig"
	"github.com/slackmgr/orderbus/sqs"
)

const (
	// PersistencePattern routes order events to the persistence handler.
	PersistencePattern sqs.Pattern = "orderPersistence"

	// NotificationPattern routes order events to the notification handler.
	NotificationPattern sqs.Pattern = "orderNotification"

	// PersistenceQueueKey is the queue key of the persistence queue.
	PersistenceQueueKey = "ORDER_PERSISTENCE_QUEUE"

	// NotificationQueueKey is the queue key of the notification queue.
	NotificationQueueKey = "ORDER_NOTIFICATION_QUEUE"

	persistenceProducer  = "orderPersistenceProducer"
	notificationProducer = "orderNotificationProducer"
)

// ProducerDestinations resolves the queues an order is published to. The
// persistence queue is required; the notification queue is used when
// configured.
func ProducerDestinations(src queueconfig.Source) ([]queueconfig.Destination, error) {
	persistence, err := queueconfig.Resolve(persistenceProducer, PersistenceQueueKey, src)
	if err != nil {
		return nil, err
	}

	dests := []queueconfig.Destination{persistence}

	notification, err := queueconfig.Resolve(notificationProducer, NotificationQueueKey, src)

	var cfgErr *queueconfig.ConfigError

	switch {
	case err == nil:
		dests = append(dests, notification)
	case !errors.As(err, &cfgErr):
		return nil, err
	}

	return dests, nil
}

// ConsumerQueue resolves the queue key and applies the process-wide consumer
// tuning.
func ConsumerQueue(pattern sqs.Pattern, key string, src queueconfig.Source, tuning config.ConsumerConfig) (sqs.QueueConfig, error) {
	url, err := queueconfig.ResolveURL(key, src)
	if err != nil {
		return sqs.QueueConfig{}, err
	}

	return sqs.NewQueueConfig(pattern, url,
		sqs.WithBatchSize(tuning.BatchSize),
		sqs.WithWaitTimeSeconds(tuning.WaitTimeSeconds),
		sqs.WithVisibilityTimeout(tuning.VisibilityTimeoutSeconds),
		sqs.WithDeleteOnSuccess(tuning.DeleteOnSuccess),
		sqs.WithRequeueOnError(tuning.RequeueOnError),
	), nil
}

// ServerOptions turns the consumer tuning into server options for queues.
func ServerOptions(tuning config.ConsumerConfig, queues ...sqs.QueueConfig) []sqs.Option {
	opts := []sqs.Option{
		sqs.WithQueues(queues...),
		sqs.WithPollingInterval(tuning.PollingInterval()),
	}

	if tuning.AutoExtendVisibility {
		opts = append(opts, sqs.WithVisibilityExtension(tuning.MaxMessageExtension))
	}

	return opts
}
