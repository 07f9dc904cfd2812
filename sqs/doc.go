// Package sqs is a queue-backed microservice transport on AWS SQS. It
// consumes queues and routes messages to handlers by pattern, and it
// publishes events to several queues at once.
//
// # Server
//
// [Server] long-polls every configured queue in its own goroutine and calls
// the [Handler] registered for the queue's [Pattern]:
//
//	registry := sqs.NewRegistry()
//	registry.MustRegister("orderPersistence", handleOrder)
//
//	server, err := sqs.NewServer(&awsCfg, registry, logger,
//	    sqs.WithQueue(sqs.NewQueueConfig("orderPersistence", queueURL)),
//	).Init(ctx)
//
//	err = server.Listen(ctx)
//
// A message is deleted after its handler returns nil, unless the queue was
// configured with WithDeleteOnSuccess(false). When the handler fails the
// message stays on the queue and is redelivered after its visibility timeout,
// unless the queue was configured with WithRequeueOnError(false), in which
// case it is deleted. Messages for a pattern without a handler are logged and
// left on the queue.
//
// Handlers receive a [MessageContext] to delete the message early or to
// change its visibility timeout.
//
// # Publisher
//
// [Publisher] sends one [Event] to a static list of destinations
// concurrently. FIFO destinations get a message group id (the event's
// partition key) and a fresh deduplication id per publish. A failure on one
// destination does not stop delivery to the others; Publish returns a
// [*PublishError] describing the first failure.
//
// # Visibility Extension
//
// With [WithVisibilityExtension] the server keeps extending the visibility
// timeout of a message while its handler runs. Extension is best-effort. If
// an extension call fails, the message is removed from extension tracking
// and will become visible in SQS again after the current timeout expires.
// Handlers should therefore be idempotent.
//
// Delivery is at-least-once in every configuration.
package sqs
