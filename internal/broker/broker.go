// Package broker abstracts the partitioned, ordered, at-least-once log the
// pipeline publishes to. Per-partition-key ordering is the broker's concern;
// the pipeline only guarantees it hands records over keyed.
package broker

import "context"

// Message is a single publish request.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Publisher publishes messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Delivery is a message received from the broker. Offset identifies the entry
// within its topic for DLQ forensics.
type Delivery struct {
	Topic   string
	Offset  string
	Key     string
	Value   []byte
	Headers map[string]string
}

// HandlerFunc processes one delivery. Returning nil acknowledges the message.
type HandlerFunc func(ctx context.Context, d Delivery) error

// Subscriber consumes a topic as part of a consumer group.
type Subscriber interface {
	Consume(ctx context.Context, topic, group, consumer string, fn HandlerFunc) error
}
