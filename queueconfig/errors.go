package queueconfig

import "fmt"

// ConfigError reports a queue key that could not be resolved to a URL.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("queue %s: %s", e.Key, e.Reason)
	}

	return fmt.Sprintf("queue %s: set %s_URL or AWS_ENDPOINT_URL and %s_NAME", e.Key, e.Key, e.Key)
}
