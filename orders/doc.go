// Package orders wires the order services onto the SQS transport: the order
// event, its producer, and the persistence and notification handlers.
package orders
