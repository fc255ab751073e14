// Package kafka publishes messages with segmentio/kafka-go.
//
// Producer owns a single kafka-go Writer created on first use, so a node
// can start while the brokers are still coming up.
package kafka
