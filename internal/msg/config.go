package msg

import (
	"strings"
)

// Config holds Kafka configuration
type Config struct {
	Brokers  []string
	ClientID string
}

// Topic names
const (
	// TopicFull carries every decoded frame, keyed by PartitionKey.
	TopicFull = "coinbase.full"
	// TopicRejects carries the journal of frames that failed to decode.
	TopicRejects = "coinbase.rejects"
)

// DefaultClientID is used when Config.ClientID is empty
const DefaultClientID = "fullfeed"

// ParseBrokers splits a comma-separated broker list, dropping blanks
func ParseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c Config) clientID() string {
	if c.ClientID == "" {
		return DefaultClientID
	}
	return c.ClientID
}
