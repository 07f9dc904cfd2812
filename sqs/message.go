package sqs

import (
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Pattern is the routing key that binds a queue to its handler.
type Pattern string

func (p Pattern) String() string {
	return string(p)
}

// InboundMessage is a message received from a queue.
type InboundMessage struct {
	ID            string
	ReceiptHandle string
	Body          []byte

	// Attributes holds the SQS system attributes, e.g. ApproximateReceiveCount.
	Attributes map[string]string

	// MessageAttributes holds the string-valued message attributes set by the producer.
	MessageAttributes map[string]string

	ReceivedAt time.Time
}

// OutboundMessage is a message ready to be sent to one destination.
// GroupID and DeduplicationID are set only for FIFO destinations.
type OutboundMessage struct {
	Body              string
	MessageAttributes map[string]string
	GroupID           string
	DeduplicationID   string
}

// DecodeJSON unmarshals the message body into v. Decoding failures are
// returned as [*ParseError].
func DecodeJSON(msg *InboundMessage, v any) error {
	if err := json.Unmarshal(msg.Body, v); err != nil {
		return &ParseError{MessageID: msg.ID, Err: err}
	}

	return nil
}

func newInboundMessage(m sqstypes.Message, receivedAt time.Time) *InboundMessage {
	msg := &InboundMessage{
		ID:                aws.ToString(m.MessageId),
		ReceiptHandle:     aws.ToString(m.ReceiptHandle),
		Body:              []byte(aws.ToString(m.Body)),
		Attributes:        make(map[string]string, len(m.Attributes)),
		MessageAttributes: make(map[string]string, len(m.MessageAttributes)),
		ReceivedAt:        receivedAt,
	}

	for k, v := range m.Attributes {
		msg.Attributes[k] = v
	}

	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			msg.MessageAttributes[k] = *v.StringValue
		}
	}

	return msg
}

func toMessageAttributes(attrs map[string]string) map[string]sqstypes.MessageAttributeValue {
	if len(attrs) == 0 {
		return nil
	}

	out := make(map[string]sqstypes.MessageAttributeValue, len(attrs))

	for k, v := range attrs {
		// SQS rejects empty attribute values.
		if v == "" {
			continue
		}

		out[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	return out
}
