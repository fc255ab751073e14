package events

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/infermesh/kafka"
)

// MessageWriter is the subset of kafka.Producer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

var _ MessageWriter = (*kafka.Producer)(nil)

// KafkaSink publishes events as JSON keyed by the peer address, so all
// changes for one peer land on the same partition.
type KafkaSink struct {
	w MessageWriter
}

func NewKafkaSink(w MessageWriter) *KafkaSink {
	return &KafkaSink{w: w}
}

func (s *KafkaSink) Publish(ctx context.Context, e Event) error {
	msg, err := kafka.JSONMessage(e.Peer.String(), e)
	if err != nil {
		return err
	}
	msg.Headers = append(msg.Headers, kafkago.Header{Key: "event-type", Value: []byte(e.Type)})
	return s.w.WriteMessages(ctx, msg)
}
