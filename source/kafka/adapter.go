package kafka

import (
	"context"
	"time"
)

// Message is one consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// EmitFunc handles one message. A returned error stops the claim; the
// message is not marked and will be redelivered.
type EmitFunc func(context.Context, Message) error

type Adapter interface {
	Configure(Config) error
	Run(context.Context, EmitFunc) error
	Close() error
}
