package queueconfig

import (
	"strings"
)

const (
	// EndpointKey names the AWS endpoint root, e.g. "http://localhost:4566".
	EndpointKey = "AWS_ENDPOINT_URL"

	// AccountIDKey names the AWS account id used when composing queue URLs.
	AccountIDKey = "AWS_ACCOUNT_ID"

	// RegionKey names the AWS region of the queues.
	RegionKey = "AWS_REGION"

	// DefaultAccountID is the LocalStack account id.
	DefaultAccountID = "000000000000"

	// DefaultRegion is used when RegionKey is absent.
	DefaultRegion = "us-east-1"

	fifoSuffix = ".fifo"
)

// Destination is a resolved queue.
type Destination struct {
	// Name is a stable label used in logs and errors, e.g. "orderPersistenceProducer".
	Name string

	// Key is the queue key the destination was resolved from.
	Key string

	URL    string
	Region string

	// FIFO is true when URL names a FIFO queue.
	FIFO bool
}

// IsFIFO reports whether the queue URL names a FIFO queue.
func IsFIFO(url string) bool {
	return strings.HasSuffix(url, fifoSuffix)
}

// ResolveURL returns the queue URL for key.
func ResolveURL(key string, src Source) (string, error) {
	if key == "" {
		return "", &ConfigError{Key: key, Reason: "queue key is empty"}
	}

	if url, ok := src.Lookup(key + "_URL"); ok {
		return url, nil
	}

	endpoint, hasEndpoint := src.Lookup(EndpointKey)
	name, hasName := src.Lookup(key + "_NAME")

	if !hasEndpoint || !hasName {
		return "", &ConfigError{Key: key}
	}

	accountID, ok := src.Lookup(AccountIDKey)
	if !ok {
		accountID = DefaultAccountID
	}

	return strings.TrimSuffix(endpoint, "/") + "/" + accountID + "/" + name, nil
}

// Resolve builds the destination called name from the queue key.
func Resolve(name, key string, src Source) (Destination, error) {
	url, err := ResolveURL(key, src)
	if err != nil {
		return Destination{}, err
	}

	region, ok := src.Lookup(RegionKey)
	if !ok {
		region = DefaultRegion
	}

	return Destination{
		Name:   name,
		Key:    key,
		URL:    url,
		Region: region,
		FIFO:   IsFIFO(url),
	}, nil
}
